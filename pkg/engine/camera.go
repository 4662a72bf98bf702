package engine

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/config"
	"lumen/pkg/geom"
)

// maxPitch keeps the fly camera just short of looking straight up or down.
const maxPitch = 1.55

// Controls is one frame of movement intent, decoupled from the window.
type Controls struct {
	Forward, Back bool
	Left, Right   bool
	Up, Down      bool
	Sprint        bool
	// Look is the mouse delta in pixels; applied only while looking.
	Look [2]float64
}

// FlyCamera is a free-flying first-person camera.
type FlyCamera struct {
	Position       mgl32.Vec3
	Yaw            float32 // radians, 0 looks down +Z
	Pitch          float32 // radians, positive looks up
	MoveSpeed      float32 // units per second
	Sensitivity    float32 // radians per pixel
	SprintModifier float32

	fovY, near, far float32
}

// NewFlyCamera starts at the scene camera of cfg.
func NewFlyCamera(cfg *config.Config) *FlyCamera {
	return &FlyCamera{
		Position:       mgl32.Vec3(cfg.Scene.CameraPosition),
		Yaw:            mgl32.DegToRad(cfg.Scene.CameraYaw),
		Pitch:          mgl32.DegToRad(cfg.Scene.CameraPitch),
		MoveSpeed:      cfg.Camera.MoveSpeed,
		Sensitivity:    cfg.Camera.MouseSensitivity,
		SprintModifier: 2.5,
		fovY:           mgl32.DegToRad(cfg.Camera.FOV),
		near:           cfg.Camera.Near,
		far:            cfg.Camera.Far,
	}
}

// Update turns by the look delta, then moves along the view basis.
// It reports whether the camera changed.
func (c *FlyCamera) Update(dt float32, in Controls) bool {
	moved := false
	if in.Look != [2]float64{} {
		c.Yaw -= float32(in.Look[0]) * c.Sensitivity
		c.Pitch = mgl32.Clamp(c.Pitch-float32(in.Look[1])*c.Sensitivity, -maxPitch, maxPitch)
		moved = true
	}

	forward := mgl32.Vec3{
		math32.Cos(c.Pitch) * math32.Sin(c.Yaw),
		math32.Sin(c.Pitch),
		math32.Cos(c.Pitch) * math32.Cos(c.Yaw),
	}
	right := forward.Cross(mgl32.Vec3{0, 1, 0}).Normalize()

	var dir mgl32.Vec3
	if in.Forward {
		dir = dir.Add(forward)
	}
	if in.Back {
		dir = dir.Sub(forward)
	}
	if in.Right {
		dir = dir.Add(right)
	}
	if in.Left {
		dir = dir.Sub(right)
	}
	if in.Up {
		dir = dir.Add(mgl32.Vec3{0, 1, 0})
	}
	if in.Down {
		dir = dir.Sub(mgl32.Vec3{0, 1, 0})
	}
	if dir.Len() == 0 {
		return moved
	}

	speed := c.MoveSpeed
	if in.Sprint {
		speed *= c.SprintModifier
	}
	c.Position = c.Position.Add(dir.Normalize().Mul(speed * dt))
	return true
}

// Camera returns the render camera for the given aspect ratio.
func (c *FlyCamera) Camera(aspect float32) geom.Camera {
	return geom.CameraFromAngles(c.Position, c.Yaw, c.Pitch, c.fovY, aspect, c.near, c.far)
}
