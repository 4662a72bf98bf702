package engine

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/gfx"
)

// Collider keeps a sphere of Radius around the camera out of solid boxes.
type Collider struct {
	Radius float32
}

func clampToBox(b gfx.Box, p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		mgl32.Clamp(p[0], b.Min[0], b.Max[0]),
		mgl32.Clamp(p[1], b.Min[1], b.Max[1]),
		mgl32.Clamp(p[2], b.Min[2], b.Max[2]),
	}
}

// exitFace returns the point on the face of b nearest to the inside point
// p, and that face's outward normal.
func exitFace(b gfx.Box, p mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	axis, side, sign, best := 0, b.Min[0], float32(-1), math32.Inf(1)
	for a := 0; a < 3; a++ {
		if d := p[a] - b.Min[a]; d < best {
			axis, side, sign, best = a, b.Min[a], -1, d
		}
		if d := b.Max[a] - p[a]; d < best {
			axis, side, sign, best = a, b.Max[a], 1, d
		}
	}
	var n mgl32.Vec3
	n[axis] = sign
	p[axis] = side
	return p, n
}

func contains(b gfx.Box, p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Resolve pushes position out of every box it overlaps.
func (c Collider) Resolve(position mgl32.Vec3, boxes []gfx.Box) mgl32.Vec3 {
	if c.Radius <= 0 {
		return position
	}
	for _, b := range boxes {
		if contains(b, position) {
			face, n := exitFace(b, position)
			position = face.Add(n.Mul(c.Radius))
			continue
		}
		push := position.Sub(clampToBox(b, position))
		if distance := push.Len(); distance < c.Radius {
			position = position.Add(push.Mul((c.Radius - distance) / distance))
		}
	}
	return position
}

// IsPositionValid reports whether the sphere at position touches no box.
func (c Collider) IsPositionValid(position mgl32.Vec3, boxes []gfx.Box) bool {
	for _, b := range boxes {
		if contains(b, position) || position.Sub(clampToBox(b, position)).Len() < c.Radius {
			return false
		}
	}
	return true
}
