// Package geom holds the small amount of spatial math shared by the
// illumination subsystem: boxes, cameras and cube-face bases.
package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box. Min and Max are inclusive.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABB returns the box spanning the two corners in any order.
func NewAABB(a, b mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])},
		Max: mgl32.Vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])},
	}
}

// CenteredAABB returns a cube of the given half size around center.
func CenteredAABB(center mgl32.Vec3, half float32) AABB {
	h := mgl32.Vec3{half, half, half}
	return AABB{Min: center.Sub(h), Max: center.Add(h)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// HalfExtents returns half the size of the box on each axis.
func (b AABB) HalfExtents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Size returns the full size of the box on each axis.
func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside the box, boundary included.
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// ContainsXZ is Contains with the Y axis ignored.
func (b AABB) ContainsXZ(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// Overlaps reports whether the two boxes share any point.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Encloses reports whether o lies entirely inside b.
func (b AABB) Encloses(o AABB) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Translate moves the box by v.
func (b AABB) Translate(v mgl32.Vec3) AABB {
	return AABB{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

// Expand grows the box by eps on every side.
func (b AABB) Expand(eps float32) AABB {
	e := mgl32.Vec3{eps, eps, eps}
	return AABB{Min: b.Min.Sub(e), Max: b.Max.Add(e)}
}

// IntersectRay runs a slab test and returns the nearest positive hit
// distance along dir together with the surface normal at that point.
// A ray starting inside the box reports the exit point.
func (b AABB) IntersectRay(origin, dir mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	const eps = 1e-4
	tNear := -math32.Inf(1)
	tFar := math32.Inf(1)
	nearAxis, farAxis := -1, -1

	for axis := 0; axis < 3; axis++ {
		if math32.Abs(dir[axis]) < 1e-9 {
			if origin[axis] < b.Min[axis] || origin[axis] > b.Max[axis] {
				return 0, mgl32.Vec3{}, false
			}
			continue
		}
		inv := 1 / dir[axis]
		t0 := (b.Min[axis] - origin[axis]) * inv
		t1 := (b.Max[axis] - origin[axis]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear, nearAxis = t0, axis
		}
		if t1 < tFar {
			tFar, farAxis = t1, axis
		}
		if tNear > tFar {
			return 0, mgl32.Vec3{}, false
		}
	}

	if tFar < eps {
		return 0, mgl32.Vec3{}, false
	}
	if tNear > eps && nearAxis >= 0 {
		var n mgl32.Vec3
		n[nearAxis] = -sign(dir[nearAxis])
		return tNear, n, true
	}
	if farAxis < 0 {
		return 0, mgl32.Vec3{}, false
	}
	var n mgl32.Vec3
	n[farAxis] = sign(dir[farAxis])
	return tFar, n, true
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}
