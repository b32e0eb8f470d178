package input

import (
	"fmt"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
)

var actionNames = map[string]Action{
	"select":           ActionSelect,
	"pan":              ActionPan,
	"add_rect":         ActionAddRect,
	"add_ellipse":      ActionAddEllipse,
	"add_text":         ActionAddText,
	"delete":           ActionDelete,
	"duplicate":        ActionDuplicate,
	"bring_forward":    ActionBringForward,
	"send_backward":    ActionSendBackward,
	"toggle_profiling": ActionToggleProfiling,
	"quit":             ActionQuit,
}

var keyNames = map[string]glfw.Key{
	"escape":        glfw.KeyEscape,
	"space":         glfw.KeySpace,
	"enter":         glfw.KeyEnter,
	"tab":           glfw.KeyTab,
	"delete":        glfw.KeyDelete,
	"backspace":     glfw.KeyBackspace,
	"left_bracket":  glfw.KeyLeftBracket,
	"right_bracket": glfw.KeyRightBracket,
	"f1":            glfw.KeyF1,
	"f2":            glfw.KeyF2,
	"f3":            glfw.KeyF3,
	"f4":            glfw.KeyF4,
	"f5":            glfw.KeyF5,
}

var buttonNames = map[string]glfw.MouseButton{
	"mouse_left":   glfw.MouseButtonLeft,
	"mouse_right":  glfw.MouseButtonRight,
	"mouse_middle": glfw.MouseButtonMiddle,
}

func parseKey(name string) (glfw.Key, bool) {
	if key, ok := keyNames[name]; ok {
		return key, true
	}
	// single letters and digits map straight onto the glfw constants
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return glfw.KeyA + glfw.Key(c-'a'), true
		case c >= '0' && c <= '9':
			return glfw.Key0 + glfw.Key(c-'0'), true
		}
	}
	return 0, false
}

// Rebind removes every existing key and button binding for the action and
// binds it to the given key.
func (m *Manager) Rebind(action Action, key glfw.Key) {
	m.unbindAction(action)
	m.BindKey(key, action)
}

// RebindMouseButton removes every existing binding for the action and binds
// it to the given mouse button.
func (m *Manager) RebindMouseButton(action Action, button glfw.MouseButton) {
	m.unbindAction(action)
	m.BindMouseButton(button, action)
}

func (m *Manager) unbindAction(action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, actions := range m.keyToActions {
		m.keyToActions[key] = removeAction(actions, action)
		if len(m.keyToActions[key]) == 0 {
			delete(m.keyToActions, key)
		}
	}
	for button, actions := range m.buttonToActions {
		m.buttonToActions[button] = removeAction(actions, action)
		if len(m.buttonToActions[button]) == 0 {
			delete(m.buttonToActions, button)
		}
	}
}

func removeAction(actions []Action, target Action) []Action {
	out := actions[:0]
	for _, a := range actions {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}

// ApplyBindings overrides defaults from a config map of action name to key
// or button name. Unknown names are errors so typos in a config file do not
// silently leave an action on its default.
func (m *Manager) ApplyBindings(bindings map[string]string) error {
	for actionName, keyName := range bindings {
		action, ok := actionNames[strings.ToLower(actionName)]
		if !ok {
			return fmt.Errorf("unknown action %q", actionName)
		}
		name := strings.ToLower(keyName)
		if button, ok := buttonNames[name]; ok {
			m.RebindMouseButton(action, button)
			continue
		}
		key, ok := parseKey(name)
		if !ok {
			return fmt.Errorf("unknown key %q for action %q", keyName, actionName)
		}
		m.Rebind(action, key)
	}
	return nil
}
