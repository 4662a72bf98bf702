package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CubeFaceCount is the number of faces of a cubemap.
const CubeFaceCount = 6

// Cube faces in the conventional +X, -X, +Y, -Y, +Z, -Z layer order.
const (
	CubePosX = iota
	CubeNegX
	CubePosY
	CubeNegY
	CubePosZ
	CubeNegZ
)

// cubeBasis holds the forward, visual-up and right axis of every face.
// right is not forward x up: the cubemap layout is mirrored relative to a
// right-handed camera, so the axis is spelled out per face.
var cubeBasis = [CubeFaceCount]struct {
	forward, up, right mgl32.Vec3
}{
	CubePosX: {mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, -1}},
	CubeNegX: {mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	CubePosY: {mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{1, 0, 0}},
	CubeNegY: {mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}},
	CubePosZ: {mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}},
	CubeNegZ: {mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{-1, 0, 0}},
}

// CubeFaceCamera returns the 90 degree camera that renders one cube face
// as seen from position.
func CubeFaceCamera(face int, position mgl32.Vec3, near, far float32) Camera {
	b := cubeBasis[face]
	return Camera{
		Position: position,
		Forward:  b.forward,
		Up:       b.up,
		Right:    b.right,
		FovY:     math32.Pi / 2,
		Aspect:   1,
		Near:     near,
		Far:      far,
	}
}

// CubeTexelDirection returns the normalized direction through face
// position (s, t) in [0,1], t growing downwards.
func CubeTexelDirection(face int, s, t float32) mgl32.Vec3 {
	b := cubeBasis[face]
	return b.forward.Add(b.right.Mul(2*s - 1)).Add(b.up.Mul(1 - 2*t)).Normalize()
}

// DirectionToCubeTexel maps a direction to the face it hits and the
// face position (s, t) in [0,1].
func DirectionToCubeTexel(dir mgl32.Vec3) (int, float32, float32) {
	ax, ay, az := math32.Abs(dir[0]), math32.Abs(dir[1]), math32.Abs(dir[2])
	var face int
	var sc, tc, ma float32
	switch {
	case ax >= ay && ax >= az:
		ma = ax
		if dir[0] > 0 {
			face, sc, tc = CubePosX, -dir[2], -dir[1]
		} else {
			face, sc, tc = CubeNegX, dir[2], -dir[1]
		}
	case ay >= az:
		ma = ay
		if dir[1] > 0 {
			face, sc, tc = CubePosY, dir[0], dir[2]
		} else {
			face, sc, tc = CubeNegY, dir[0], -dir[2]
		}
	default:
		ma = az
		if dir[2] > 0 {
			face, sc, tc = CubePosZ, dir[0], -dir[1]
		} else {
			face, sc, tc = CubeNegZ, -dir[0], -dir[1]
		}
	}
	if ma == 0 {
		return CubePosX, 0.5, 0.5
	}
	return face, (sc/ma + 1) / 2, (tc/ma + 1) / 2
}

// CubeTexelSolidAngle approximates the solid angle covered by texel (x, y)
// of a face of the given size.
func CubeTexelSolidAngle(x, y, size int) float32 {
	u := (2*(float32(x)+0.5))/float32(size) - 1
	v := (2*(float32(y)+0.5))/float32(size) - 1
	texel := 2 / float32(size)
	d := 1 + u*u + v*v
	return texel * texel / (d * math32.Sqrt(d))
}
