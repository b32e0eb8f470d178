package input

import (
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// Action is a logical editor action, decoupled from the physical key or
// button that triggers it.
type Action int

const (
	ActionSelect Action = iota
	ActionPan
	ActionAddRect
	ActionAddEllipse
	ActionAddText
	ActionDelete
	ActionDuplicate
	ActionBringForward
	ActionSendBackward
	ActionToggleProfiling
	ActionQuit
	ActionModControl
	ActionModShift
	ActionModAlt
	ActionCount // sentinel for array sizing
)

// Manager maps physical keys and mouse buttons to logical actions and tracks
// held/just-pressed/just-released state per action. Event handlers may run on
// the GLFW callback goroutine, so state is guarded.
type Manager struct {
	mu sync.RWMutex

	keyToActions    map[glfw.Key][]Action
	buttonToActions map[glfw.MouseButton][]Action

	currentState [ActionCount]bool
	justPressed  [ActionCount]bool
	justReleased [ActionCount]bool

	cursorX, cursorY float64
}

// NewManager creates a manager with the default bindings.
func NewManager() *Manager {
	m := &Manager{
		keyToActions:    make(map[glfw.Key][]Action),
		buttonToActions: make(map[glfw.MouseButton][]Action),
	}

	m.BindKey(glfw.KeyR, ActionAddRect)
	m.BindKey(glfw.KeyE, ActionAddEllipse)
	m.BindKey(glfw.KeyT, ActionAddText)
	m.BindKey(glfw.KeyDelete, ActionDelete)
	m.BindKey(glfw.KeyBackspace, ActionDelete)
	m.BindKey(glfw.KeyD, ActionDuplicate)
	m.BindKey(glfw.KeyRightBracket, ActionBringForward)
	m.BindKey(glfw.KeyLeftBracket, ActionSendBackward)
	m.BindKey(glfw.KeyF3, ActionToggleProfiling)
	m.BindKey(glfw.KeyEscape, ActionQuit)

	m.BindMouseButton(glfw.MouseButtonLeft, ActionSelect)
	m.BindMouseButton(glfw.MouseButtonMiddle, ActionPan)

	m.BindKey(glfw.KeyLeftControl, ActionModControl)
	m.BindKey(glfw.KeyRightControl, ActionModControl)
	m.BindKey(glfw.KeyLeftShift, ActionModShift)
	m.BindKey(glfw.KeyRightShift, ActionModShift)
	m.BindKey(glfw.KeyLeftAlt, ActionModAlt)
	m.BindKey(glfw.KeyRightAlt, ActionModAlt)

	return m
}

// BindKey binds a key to an action. A key may trigger several actions and an
// action may have several keys.
func (m *Manager) BindKey(key glfw.Key, action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if action < 0 || action >= ActionCount {
		return
	}
	m.keyToActions[key] = append(m.keyToActions[key], action)
}

// UnbindKey removes all bindings for a key.
func (m *Manager) UnbindKey(key glfw.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keyToActions, key)
}

// BindMouseButton binds a mouse button to an action.
func (m *Manager) BindMouseButton(button glfw.MouseButton, action Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if action < 0 || action >= ActionCount {
		return
	}
	m.buttonToActions[button] = append(m.buttonToActions[button], action)
}

// HandleKeyEvent feeds one key event into the action state. Edges are
// detected at event time, not at poll time.
func (m *Manager) HandleKeyEvent(key glfw.Key, action glfw.Action) {
	m.mu.RLock()
	actions, ok := m.keyToActions[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.apply(actions, action == glfw.Press || action == glfw.Repeat)
}

// HandleMouseButtonEvent feeds one mouse button event into the action state.
func (m *Manager) HandleMouseButtonEvent(button glfw.MouseButton, action glfw.Action) {
	m.mu.RLock()
	actions, ok := m.buttonToActions[button]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.apply(actions, action == glfw.Press)
}

func (m *Manager) apply(actions []Action, pressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, act := range actions {
		if act < 0 || act >= ActionCount {
			continue
		}
		if pressed && !m.currentState[act] {
			m.justPressed[act] = true
		}
		if !pressed && m.currentState[act] {
			m.justReleased[act] = true
		}
		m.currentState[act] = pressed
	}
}

// HandleCursorPos records the latest cursor position in window coordinates.
func (m *Manager) HandleCursorPos(x, y float64) {
	m.mu.Lock()
	m.cursorX, m.cursorY = x, y
	m.mu.Unlock()
}

// CursorPos returns the last reported cursor position.
func (m *Manager) CursorPos() (x, y float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursorX, m.cursorY
}

// InstallCallbacks wires the manager into a window's input callbacks.
func (m *Manager) InstallCallbacks(window *glfw.Window) {
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		m.HandleKeyEvent(key, action)
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		m.HandleMouseButtonEvent(button, action)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		m.HandleCursorPos(x, y)
	})
}

// PostUpdate clears edge flags. Call once at the end of each frame, after
// all input checks.
func (m *Manager) PostUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range ActionCount {
		m.justPressed[i] = false
		m.justReleased[i] = false
	}
}

// IsActive reports whether the action is currently held.
func (m *Manager) IsActive(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState[action]
}

// JustPressed reports whether the action was pressed this frame.
func (m *Manager) JustPressed(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.justPressed[action]
}

// JustReleased reports whether the action was released this frame.
func (m *Manager) JustReleased(action Action) bool {
	if action < 0 || action >= ActionCount {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.justReleased[action]
}
