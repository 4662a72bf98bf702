package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera with an explicit orthonormal basis.
// Right is stored rather than derived so cube-face cameras can use the
// mirrored basis cubemap layouts expect.
type Camera struct {
	Position mgl32.Vec3
	Forward  mgl32.Vec3
	Up       mgl32.Vec3
	Right    mgl32.Vec3
	FovY     float32 // radians
	Aspect   float32
	Near     float32
	Far      float32
}

// NewCamera builds a right-handed camera looking along forward.
func NewCamera(position, forward, up mgl32.Vec3, fovY, aspect, near, far float32) Camera {
	f := forward.Normalize()
	r := f.Cross(up).Normalize()
	u := r.Cross(f).Normalize()
	return Camera{
		Position: position,
		Forward:  f,
		Up:       u,
		Right:    r,
		FovY:     fovY,
		Aspect:   aspect,
		Near:     near,
		Far:      far,
	}
}

// CameraFromAngles builds a camera from yaw/pitch in radians.
// Yaw 0 looks down +Z; positive pitch looks up.
func CameraFromAngles(position mgl32.Vec3, yaw, pitch, fovY, aspect, near, far float32) Camera {
	forward := mgl32.Vec3{
		math32.Cos(pitch) * math32.Sin(yaw),
		math32.Sin(pitch),
		math32.Cos(pitch) * math32.Cos(yaw),
	}
	return NewCamera(position, forward, mgl32.Vec3{0, 1, 0}, fovY, aspect, near, far)
}

// View returns the world-to-view matrix built from the stored basis.
func (c Camera) View() mgl32.Mat4 {
	r, u, f, p := c.Right, c.Up, c.Forward, c.Position
	return mgl32.Mat4{
		r[0], u[0], -f[0], 0,
		r[1], u[1], -f[1], 0,
		r[2], u[2], -f[2], 0,
		-r.Dot(p), -u.Dot(p), f.Dot(p), 1,
	}
}

// Projection returns the perspective projection matrix.
func (c Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

// RayDirection returns the normalized world-space direction through the
// image position (s, t), both in [0,1] with t growing downwards.
func (c Camera) RayDirection(s, t float32) mgl32.Vec3 {
	tanY := math32.Tan(c.FovY / 2)
	tanX := tanY * c.Aspect
	x := (2*s - 1) * tanX
	y := (1 - 2*t) * tanY
	return c.Forward.Add(c.Right.Mul(x)).Add(c.Up.Mul(y)).Normalize()
}
