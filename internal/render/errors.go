package render

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// ErrAtlasFull is returned by GlyphAtlas.AddGlyph when the packer has no
// space left for the requested glyph. Callers should skip the glyph for the
// frame rather than abort; the atlas itself stays usable for glyphs that
// still fit.
var ErrAtlasFull = errors.New("render: glyph atlas full")

// vkCheck converts a non-success Vulkan result into an error carrying the
// failed operation name. Every error produced this way is fatal to the
// renderer except where the orchestrator explicitly filters it.
func vkCheck(res vk.Result, op string) error {
	if res != vk.Success {
		return fmt.Errorf("%s: %w", op, vk.Error(res))
	}
	return nil
}
