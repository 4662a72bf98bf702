package engine

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// trackedKeys are the keys the engine reads; others are not polled.
var trackedKeys = []glfw.Key{
	glfw.KeyW, glfw.KeyA, glfw.KeyS, glfw.KeyD,
	glfw.KeySpace, glfw.KeyLeftControl, glfw.KeyLeftShift,
	glfw.KeyG, glfw.KeyV, glfw.KeyI, glfw.KeyO,
	glfw.KeyEscape,
}

// InputHandler tracks keyboard and mouse state between frames.
type InputHandler struct {
	window            *glfw.Window
	currentKeys       map[glfw.Key]bool
	previousKeys      map[glfw.Key]bool
	currentMousePos   [2]float64
	previousMousePos  [2]float64
	currentMouseBtns  map[glfw.MouseButton]bool
	previousMouseBtns map[glfw.MouseButton]bool
	mouseDelta        [2]float64
}

// NewInputHandler creates an input handler for window.
func NewInputHandler(window *glfw.Window) *InputHandler {
	handler := &InputHandler{
		window:            window,
		currentKeys:       make(map[glfw.Key]bool),
		previousKeys:      make(map[glfw.Key]bool),
		currentMouseBtns:  make(map[glfw.MouseButton]bool),
		previousMouseBtns: make(map[glfw.MouseButton]bool),
	}
	x, y := window.GetCursorPos()
	handler.currentMousePos = [2]float64{x, y}
	return handler
}

// Update polls the window; call once per frame after glfw.PollEvents.
func (ih *InputHandler) Update() {
	for k, v := range ih.currentKeys {
		ih.previousKeys[k] = v
	}
	for b, v := range ih.currentMouseBtns {
		ih.previousMouseBtns[b] = v
	}

	ih.previousMousePos = ih.currentMousePos
	x, y := ih.window.GetCursorPos()
	ih.currentMousePos = [2]float64{x, y}
	ih.mouseDelta[0] = ih.currentMousePos[0] - ih.previousMousePos[0]
	ih.mouseDelta[1] = ih.currentMousePos[1] - ih.previousMousePos[1]

	for _, key := range trackedKeys {
		ih.currentKeys[key] = ih.window.GetKey(key) == glfw.Press
	}
	for btn := glfw.MouseButton1; btn <= glfw.MouseButtonLast; btn++ {
		ih.currentMouseBtns[btn] = ih.window.GetMouseButton(btn) == glfw.Press
	}
}

// IsKeyDown reports whether key is held.
func (ih *InputHandler) IsKeyDown(key glfw.Key) bool {
	return ih.currentKeys[key]
}

// IsKeyPressed reports whether key went down this frame.
func (ih *InputHandler) IsKeyPressed(key glfw.Key) bool {
	return ih.currentKeys[key] && !ih.previousKeys[key]
}

// IsMouseButtonDown reports whether button is held.
func (ih *InputHandler) IsMouseButtonDown(button glfw.MouseButton) bool {
	return ih.currentMouseBtns[button]
}

// GetMouseDelta returns the cursor movement since the previous frame.
func (ih *InputHandler) GetMouseDelta() [2]float64 {
	return ih.mouseDelta
}

// Controls maps the held keys to movement. The mouse turns the camera
// only while the right button is held.
func (ih *InputHandler) Controls() Controls {
	c := Controls{
		Forward: ih.IsKeyDown(glfw.KeyW),
		Back:    ih.IsKeyDown(glfw.KeyS),
		Left:    ih.IsKeyDown(glfw.KeyA),
		Right:   ih.IsKeyDown(glfw.KeyD),
		Up:      ih.IsKeyDown(glfw.KeySpace),
		Down:    ih.IsKeyDown(glfw.KeyLeftControl),
		Sprint:  ih.IsKeyDown(glfw.KeyLeftShift),
	}
	if ih.IsMouseButtonDown(glfw.MouseButtonRight) {
		c.Look = ih.mouseDelta
	}
	return c
}

// Toggles returns the debug keys pressed this frame.
func (ih *InputHandler) Toggles() Toggles {
	return Toggles{
		GI:           ih.IsKeyPressed(glfw.KeyG),
		VoxelView:    ih.IsKeyPressed(glfw.KeyV),
		IndirectOnly: ih.IsKeyPressed(glfw.KeyI),
		DirectOnly:   ih.IsKeyPressed(glfw.KeyO),
	}
}
