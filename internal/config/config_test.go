package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Window != def.Window {
		t.Errorf("window = %+v, want defaults %+v", cfg.Window, def.Window)
	}
	if cfg.Render.AtlasSize != def.Render.AtlasSize {
		t.Errorf("atlas size = %d, want %d", cfg.Render.AtlasSize, def.Render.AtlasSize)
	}
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atelier.toml")
	body := `
[window]
title = "sketchpad"
width = 640

[font]
size = 22
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Title != "sketchpad" || cfg.Window.Width != 640 {
		t.Errorf("window = %+v", cfg.Window)
	}
	// Untouched fields keep defaults.
	if cfg.Window.Height != Default().Window.Height {
		t.Errorf("height = %d, want default", cfg.Window.Height)
	}
	if cfg.Font.Size != 22 {
		t.Errorf("font size = %d, want 22", cfg.Font.Size)
	}
}

func TestLoadParsesHotkeysAndWidgets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atelier.toml")
	body := `
[hotkeys]
delete = "x"
pan = "mouse_right"

[[widgets]]
name = "card"
kind = "rect"
width = 200
height = 120

[[widgets]]
name = "dot"
kind = "ellipse"
width = 24
height = 24
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hotkeys["delete"] != "x" || cfg.Hotkeys["pan"] != "mouse_right" {
		t.Errorf("hotkeys = %+v", cfg.Hotkeys)
	}
	if len(cfg.Widgets) != 2 {
		t.Fatalf("widgets = %d, want 2", len(cfg.Widgets))
	}
	if cfg.Widgets[0] != (WidgetConfig{Name: "card", Kind: "rect", Width: 200, Height: 120}) {
		t.Errorf("widget[0] = %+v", cfg.Widgets[0])
	}
}

func TestLoadRejectsBadWidgetKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_widget.toml")
	body := "[[widgets]]\nname = \"blob\"\nkind = \"star\"\nwidth = 10\nheight = 10\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown widget kind not rejected")
	}
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[window\nwidth=-"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config not rejected")
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[window]\nwidth = -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("negative window width not rejected")
	}
}
