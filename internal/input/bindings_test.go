package input

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func TestApplyBindingsOverridesDefault(t *testing.T) {
	m := NewManager()
	if err := m.ApplyBindings(map[string]string{"add_rect": "n"}); err != nil {
		t.Fatalf("ApplyBindings: %v", err)
	}

	m.HandleKeyEvent(glfw.KeyN, glfw.Press)
	if !m.IsActive(ActionAddRect) {
		t.Error("rebound key does not trigger action")
	}
	m.HandleKeyEvent(glfw.KeyN, glfw.Release)

	// The default binding must be gone after the override.
	m.HandleKeyEvent(glfw.KeyR, glfw.Press)
	if m.IsActive(ActionAddRect) {
		t.Error("default key still bound after override")
	}
}

func TestApplyBindingsSupportsMouseButtons(t *testing.T) {
	m := NewManager()
	if err := m.ApplyBindings(map[string]string{"pan": "mouse_right"}); err != nil {
		t.Fatalf("ApplyBindings: %v", err)
	}
	m.HandleMouseButtonEvent(glfw.MouseButtonRight, glfw.Press)
	if !m.IsActive(ActionPan) {
		t.Error("rebound mouse button does not trigger action")
	}
	m.HandleMouseButtonEvent(glfw.MouseButtonRight, glfw.Release)

	m.HandleMouseButtonEvent(glfw.MouseButtonMiddle, glfw.Press)
	if m.IsActive(ActionPan) {
		t.Error("default mouse button still bound after override")
	}
}

func TestApplyBindingsRejectsUnknownNames(t *testing.T) {
	m := NewManager()
	if err := m.ApplyBindings(map[string]string{"fly": "f"}); err == nil {
		t.Error("unknown action accepted")
	}
	if err := m.ApplyBindings(map[string]string{"delete": "hyperkey"}); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestParseKeyLettersAndDigits(t *testing.T) {
	if key, ok := parseKey("q"); !ok || key != glfw.KeyQ {
		t.Errorf("parseKey(q) = %v, %v", key, ok)
	}
	if key, ok := parseKey("7"); !ok || key != glfw.Key7 {
		t.Errorf("parseKey(7) = %v, %v", key, ok)
	}
	if _, ok := parseKey("%"); ok {
		t.Error("parseKey accepted a symbol")
	}
}
