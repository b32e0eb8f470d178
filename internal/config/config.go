package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration, loaded from a TOML file with
// every field optional. Missing fields keep their defaults.
type Config struct {
	Window WindowConfig `toml:"window"`
	Render RenderConfig `toml:"render"`
	Font   FontConfig   `toml:"font"`
	// Hotkeys overrides default key bindings, action name to key name,
	// for example select = "mouse_left" or delete = "x".
	Hotkeys map[string]string `toml:"hotkeys"`
	Widgets []WidgetConfig    `toml:"widgets"`
}

// WidgetConfig is a named shape template the editor can instantiate.
type WidgetConfig struct {
	Name   string  `toml:"name"`
	Kind   string  `toml:"kind"` // "rect" or "ellipse"
	Width  float32 `toml:"width"`
	Height float32 `toml:"height"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type RenderConfig struct {
	// Validation enables the Vulkan validation layer.
	Validation bool `toml:"validation"`
	// AtlasSize is the glyph atlas width and height in texels.
	AtlasSize int `toml:"atlas_size"`
	// MaxEntities bounds descriptor pool capacity.
	MaxEntities int `toml:"max_entities"`
	// ShaderDir is the directory compiled SPIR-V shaders live in.
	ShaderDir  string     `toml:"shader_dir"`
	ClearColor [4]float32 `toml:"clear_color"`
}

type FontConfig struct {
	// Path to a TTF/OTF file; empty selects the embedded fallback font.
	Path string `toml:"path"`
	Size int    `toml:"size"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Window: WindowConfig{
			Title:  "atelier",
			Width:  1280,
			Height: 800,
		},
		Render: RenderConfig{
			AtlasSize:   1024,
			MaxEntities: 4096,
			ShaderDir:   "assets/shaders",
			ClearColor:  [4]float32{0.12, 0.12, 0.14, 1},
		},
		Font: FontConfig{
			Size: 16,
		},
	}
}

// Load reads the config file at path, layering it over the defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.validate()
}

func (c Config) validate() (Config, error) {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return c, fmt.Errorf("window size %dx%d out of range", c.Window.Width, c.Window.Height)
	}
	if c.Render.AtlasSize < 64 {
		return c, fmt.Errorf("atlas size %d too small", c.Render.AtlasSize)
	}
	if c.Render.MaxEntities <= 0 {
		return c, fmt.Errorf("max entities %d out of range", c.Render.MaxEntities)
	}
	if c.Font.Size <= 0 {
		return c, fmt.Errorf("font size %d out of range", c.Font.Size)
	}
	for _, w := range c.Widgets {
		if w.Kind != "rect" && w.Kind != "ellipse" {
			return c, fmt.Errorf("widget %q has unknown kind %q", w.Name, w.Kind)
		}
		if w.Width <= 0 || w.Height <= 0 {
			return c, fmt.Errorf("widget %q has size %gx%g", w.Name, w.Width, w.Height)
		}
	}
	return c, nil
}
