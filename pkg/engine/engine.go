// Package engine runs a level: it owns the window, the device, input and
// the fly camera, and drives one world frame per loop iteration.
package engine

import (
	"fmt"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"lumen/internal/imageio"
	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
	"lumen/pkg/gfx/gldevice"
	"lumen/pkg/gfx/soft"
	"lumen/pkg/illumination"
	"lumen/pkg/world"
)

// Device names accepted in graphics.device.
const (
	DeviceOpenGL = "opengl"
	DeviceSoft   = "soft"
)

// Engine represents the main render loop.
type Engine struct {
	window       *glfw.Window
	input        *InputHandler
	config       *config.Config
	logger       *logger.Logger
	root         *logger.Logger
	dev          gfx.Device
	gl           *gldevice.Device
	world        *world.World
	camera       *FlyCamera
	collider     Collider
	solids       []gfx.Box
	debug        illumination.DebugContext
	isRunning    bool
	lastUpdate   time.Time
	frameRate    int
	frames       int
	windowWidth  int
	windowHeight int
}

// New creates the engine for the device named in graphics.device.
func New(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	switch cfg.Graphics.Device {
	case DeviceSoft:
		return NewHeadless(cfg, log)
	case DeviceOpenGL, "":
		return NewEngine(cfg, log)
	default:
		return nil, fmt.Errorf("unknown graphics device %q", cfg.Graphics.Device)
	}
}

// NewEngine opens a window with an OpenGL 4.5 core context, creates the
// GL device and loads the level. It must run on the main OS thread.
func NewEngine(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 5)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	var monitor *glfw.Monitor
	if cfg.Graphics.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}
	window, err := glfw.CreateWindow(cfg.Graphics.Width, cfg.Graphics.Height, "Lumen", monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create GLFW window: %v", err)
	}
	window.MakeContextCurrent()
	if cfg.Graphics.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	dev, err := gldevice.NewDevice(log)
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("failed to initialize OpenGL device: %w", err)
	}

	e := newEngine(cfg, log, dev)
	e.window = window
	e.gl = dev
	e.input = NewInputHandler(window)
	e.windowWidth, e.windowHeight = window.GetFramebufferSize()
	window.SetFramebufferSizeCallback(e.resizeCallback)

	if err := e.load(); err != nil {
		e.cleanup()
		return nil, err
	}
	return e, nil
}

// NewHeadless loads the level on the soft device without a window.
func NewHeadless(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	e := newEngine(cfg, log, soft.NewDevice(log))
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(cfg *config.Config, log *logger.Logger, dev gfx.Device) *Engine {
	return &Engine{
		config:    cfg,
		logger:    log.With("engine"),
		root:      log,
		dev:       dev,
		camera:    NewFlyCamera(cfg),
		collider:  Collider{Radius: cfg.Camera.CollisionRadius},
		frameRate: cfg.Graphics.FrameRate,
	}
}

func (e *Engine) load() error {
	w, err := world.New(e.dev, e.config, e.root)
	if err != nil {
		return fmt.Errorf("failed to load level: %w", err)
	}
	e.world = w
	e.debug = w.DefaultDebug()
	return nil
}

// World returns the loaded level.
func (e *Engine) World() *world.World { return e.world }

// Debug returns the current debug toggles.
func (e *Engine) Debug() illumination.DebugContext { return e.debug }

// Frames returns the number of frames rendered.
func (e *Engine) Frames() int { return e.frames }

// Run drives the windowed loop until the window closes, Escape is
// pressed or maxFrames frames have been rendered (0 means unbounded).
// Without a window it renders maxFrames frames, at least one. The level
// stays loaded until Close.
func (e *Engine) Run(maxFrames int) error {
	if e.window == nil {
		return e.RunHeadless(max(1, maxFrames))
	}
	e.isRunning = true
	e.lastUpdate = time.Now()

	for e.isRunning && !e.window.ShouldClose() {
		currentTime := time.Now()
		deltaTime := currentTime.Sub(e.lastUpdate).Seconds()
		e.lastUpdate = currentTime

		glfw.PollEvents()
		e.processInput(float32(deltaTime))

		if err := e.render(); err != nil {
			return err
		}
		if err := e.gl.Present(e.world.Output(), e.windowWidth, e.windowHeight); err != nil {
			return err
		}
		e.window.SwapBuffers()

		if maxFrames > 0 && e.frames >= maxFrames {
			break
		}
		if e.frameRate > 0 {
			frameTime := time.Since(currentTime)
			targetFrameTime := time.Second / time.Duration(e.frameRate)
			if frameTime < targetFrameTime {
				time.Sleep(targetFrameTime - frameTime)
			}
		}
	}
	return nil
}

// RunHeadless renders frames frames from the start camera.
func (e *Engine) RunHeadless(frames int) error {
	start := time.Now()
	for i := 0; i < frames; i++ {
		if err := e.render(); err != nil {
			return err
		}
	}
	e.logger.Infof("rendered %d frames in %s", frames, time.Since(start).Round(time.Millisecond))
	return nil
}

// Step applies one frame of controls and toggles without a window.
func (e *Engine) Step(dt float32, in Controls, t Toggles) error {
	e.apply(dt, in, t)
	return e.render()
}

func (e *Engine) processInput(dt float32) {
	e.input.Update()
	if e.input.IsKeyDown(glfw.KeyEscape) {
		e.isRunning = false
	}
	e.apply(dt, e.input.Controls(), e.input.Toggles())
}

func (e *Engine) apply(dt float32, in Controls, t Toggles) {
	if e.camera.Update(dt, in) {
		e.solids = e.world.Scene.Opaque(e.solids)
		e.camera.Position = e.collider.Resolve(e.camera.Position, e.solids)
	}
	if t.Any() {
		e.debug = t.Apply(e.debug)
		e.logger.Infof("debug view: gi=%t voxels=%t indirect-only=%t direct-only=%t",
			e.debug.GIEnabled, e.debug.VoxelView, e.debug.IndirectOnly, e.debug.DirectOnly)
	}
}

func (e *Engine) render() error {
	aspect := float32(e.config.Graphics.Width) / float32(e.config.Graphics.Height)
	if err := e.world.Frame(e.camera.Camera(aspect), e.debug); err != nil {
		return fmt.Errorf("frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// Snapshot writes the last composited frame to path as WebP.
func (e *Engine) Snapshot(path string) error {
	data, err := e.world.Illum.ReadOutput()
	if err != nil {
		return err
	}
	w, h := e.world.Illum.Size()
	if err := imageio.Save(path, data, w, h, e.config.Graphics.Width); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	e.logger.Infof("snapshot written to %s (%dx%d)", path, w, h)
	return nil
}

func (e *Engine) resizeCallback(_ *glfw.Window, width int, height int) {
	e.logger.Debugf("window resized to %dx%d", width, height)
	e.windowWidth = width
	e.windowHeight = height
}

// Close releases the level, the device and the window.
func (e *Engine) Close() {
	e.cleanup()
}

func (e *Engine) cleanup() {
	if e.world != nil {
		e.world.Release()
		e.world = nil
	}
	if e.gl != nil {
		e.gl.Close()
		e.gl = nil
	}
	if e.window != nil {
		e.logger.Info("Shutting down engine...")
		e.window.Destroy()
		e.window = nil
		glfw.Terminate()
	}
}
