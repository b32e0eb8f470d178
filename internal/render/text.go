package render

import (
	"errors"
	"fmt"
	"unsafe"

	"atelier/internal/text"
)

// textEntry holds the GPU-side state cached for one text entity.
type textEntry struct {
	vertexBuffer *Buffer
	vertexCount  uint32
	transform    *Buffer
	set          *DescriptorSet
}

// TextResources caches per-entity text vertex buffers and uniforms. Vertex
// buffers grow but never shrink: editing text shorter reuses the existing
// allocation. All text entities sample the one shared glyph atlas.
type TextResources struct {
	dev   deviceOps
	atlas *GlyphAtlas
	proj  *Projection

	entries map[EntityID]*textEntry
	seen    map[EntityID]struct{}

	// scratch vertex staging reused across frames
	verts []float32
}

func NewTextResources(dev deviceOps, atlas *GlyphAtlas, proj *Projection) *TextResources {
	return &TextResources{
		dev:     dev,
		atlas:   atlas,
		proj:    proj,
		entries: make(map[EntityID]*textEntry),
		seen:    make(map[EntityID]struct{}),
	}
}

// AtlasSet returns the shared atlas descriptor set, bound once per frame.
func (t *TextResources) AtlasSet() *DescriptorSet { return t.atlas.Set() }

// Prepare brings the cache in line with this frame's text commands and
// returns draws in command order. Entities absent from the list are evicted.
func (t *TextResources) Prepare(cmds []TextCommand) ([]TextDraw, error) {
	clear(t.seen)
	draws := make([]TextDraw, 0, len(cmds))

	for i := range cmds {
		cmd := &cmds[i]
		if _, dup := t.seen[cmd.Entity]; dup {
			return nil, fmt.Errorf("text entity %d appears twice in one frame", cmd.Entity)
		}
		t.seen[cmd.Entity] = struct{}{}

		entry, err := t.prepareEntity(cmd)
		if err != nil {
			return nil, fmt.Errorf("prepare text entity %d: %w", cmd.Entity, err)
		}
		if entry.vertexCount > 0 {
			draws = append(draws, TextDraw{
				VertexBuffer: entry.vertexBuffer,
				VertexCount:  entry.vertexCount,
				Set:          entry.set,
			})
		}
	}

	t.evict()
	return draws, nil
}

func (t *TextResources) prepareEntity(cmd *TextCommand) (*textEntry, error) {
	entry, ok := t.entries[cmd.Entity]
	if !ok {
		entry = &textEntry{}
		tb, err := t.dev.createUniformBuffer(64)
		if err != nil {
			return nil, err
		}
		entry.transform = tb
		set, err := t.dev.allocEntitySet()
		if err != nil {
			t.freeEntry(entry)
			return nil, err
		}
		entry.set = set
		t.dev.writeUniformDescriptors(set, t.proj.Buffer(), tb)
		t.entries[cmd.Entity] = entry

		if err := t.rebuildVertices(entry, cmd.Layout); err != nil {
			return nil, err
		}
	} else if cmd.Changed {
		if err := t.rebuildVertices(entry, cmd.Layout); err != nil {
			return nil, err
		}
	}

	if err := t.dev.writeBuffer(entry.transform, matBytes(&cmd.Transform)); err != nil {
		return nil, err
	}
	return entry, nil
}

// rebuildVertices turns the layout into textured quads, rasterizing and
// packing any glyph the atlas has not seen. A full atlas degrades to
// skipping the glyph; the rest of the string still renders.
func (t *TextResources) rebuildVertices(entry *textEntry, layout *text.Layout) error {
	face := layout.Face()
	t.verts = t.verts[:0]

	for _, g := range layout.Glyphs() {
		key := GlyphKey{Font: face.FontName(), Glyph: g.Rune, Size: face.Size()}
		info, ok := t.atlas.Lookup(key)
		if !ok {
			bm, rok := face.Rasterize(g.Rune)
			if !rok {
				continue
			}
			var err error
			info, err = t.atlas.AddGlyph(key, bm)
			if errors.Is(err, ErrAtlasFull) {
				logger().Warn("glyph atlas full, glyph skipped",
					"font", face.FontName(), "rune", string(g.Rune), "size", face.Size())
				continue
			}
			if err != nil {
				return err
			}
		}
		if info.W == 0 || info.H == 0 {
			continue
		}

		x0, y0 := g.X, g.Y
		x1, y1 := g.X+float32(g.W), g.Y+float32(g.H)
		// atlas rows run top-down, local quad space runs bottom-up
		u0, v0 := info.UVMin[0], info.UVMax[1]
		u1, v1 := info.UVMax[0], info.UVMin[1]

		t.verts = append(t.verts,
			x0, y0, u0, v0,
			x1, y0, u1, v0,
			x1, y1, u1, v1,
			x0, y0, u0, v0,
			x1, y1, u1, v1,
			x0, y1, u0, v1,
		)
	}

	if len(t.verts) == 0 {
		entry.vertexCount = 0
		return nil
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(&t.verts[0])), len(t.verts)*4)
	if entry.vertexBuffer == nil || len(data) > entry.vertexBuffer.Size() {
		vb, err := t.dev.createVertexBuffer(len(data))
		if err != nil {
			return err
		}
		if entry.vertexBuffer != nil {
			t.dev.destroyBuffer(entry.vertexBuffer)
		}
		entry.vertexBuffer = vb
	}
	if err := t.dev.writeBuffer(entry.vertexBuffer, data); err != nil {
		return err
	}
	entry.vertexCount = uint32(len(t.verts) / 4)
	return nil
}

func (t *TextResources) evict() {
	for id, entry := range t.entries {
		if _, ok := t.seen[id]; ok {
			continue
		}
		t.freeEntry(entry)
		delete(t.entries, id)
		logger().Debug("text entity evicted", "entity", uint64(id))
	}
}

func (t *TextResources) freeEntry(entry *textEntry) {
	if entry.set != nil {
		t.dev.freeSet(entry.set)
		entry.set = nil
	}
	if entry.vertexBuffer != nil {
		t.dev.destroyBuffer(entry.vertexBuffer)
		entry.vertexBuffer = nil
	}
	if entry.transform != nil {
		t.dev.destroyBuffer(entry.transform)
		entry.transform = nil
	}
}

// Len reports how many text entities currently hold cached resources.
func (t *TextResources) Len() int { return len(t.entries) }

// Destroy frees every cached entry. The atlas is owned by the caller.
func (t *TextResources) Destroy() {
	for id, entry := range t.entries {
		t.freeEntry(entry)
		delete(t.entries, id)
	}
}
