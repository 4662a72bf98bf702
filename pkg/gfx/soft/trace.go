package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/util"
	"lumen/pkg/gfx"
)

// hit describes the nearest surface a ray reached.
type hit struct {
	dist   float32
	pos    mgl32.Vec3
	normal mgl32.Vec3
	box    int
}

// traceBoxes returns the nearest box hit closer than maxDist.
func traceBoxes(boxes []gfx.Box, origin, dir mgl32.Vec3, maxDist float32) (hit, bool) {
	best := hit{dist: maxDist, box: -1}
	for i := range boxes {
		t, n, ok := boxes[i].Bounds().IntersectRay(origin, dir)
		if ok && t < best.dist {
			best.dist, best.normal, best.box = t, n, i
		}
	}
	if best.box < 0 {
		return best, false
	}
	best.pos = origin.Add(dir.Mul(best.dist))
	return best, true
}

// occluded reports whether anything blocks the path from p towards the sun.
func occluded(boxes []gfx.Box, p, n, toLight mgl32.Vec3) bool {
	origin := p.Add(n.Mul(1e-3))
	_, ok := traceBoxes(boxes, origin, toLight, math32.Inf(1))
	return ok
}

func toLight(env gfx.Environment) mgl32.Vec3 {
	if env.SunDirection.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return env.SunDirection.Mul(-1).Normalize()
}

// skyRadiance is the gradient between ground and sky seen along dir.
func skyRadiance(env gfx.Environment, dir mgl32.Vec3) mgl32.Vec3 {
	f := util.Clamp(dir[1]*0.5+0.5, 0, 1)
	return env.GroundColor.Add(env.SkyColor.Sub(env.GroundColor).Mul(f))
}

// directRadiance is emitted plus sun light leaving a diffuse surface.
// visibility scales the sun term.
func directRadiance(env gfx.Environment, b gfx.Box, n mgl32.Vec3, visibility float32) mgl32.Vec3 {
	ndl := max(0, n.Dot(toLight(env)))
	sun := env.SunColor.Mul(env.SunIntensity * ndl * visibility)
	return mul3(b.Albedo, sun).Add(b.Albedo.Mul(b.Emission))
}

// shadeHit lights a traced hit with a shadow ray.
func shadeHit(env gfx.Environment, boxes []gfx.Box, h hit) mgl32.Vec3 {
	vis := float32(1)
	l := toLight(env)
	if h.normal.Dot(l) > 0 && occluded(boxes, h.pos, h.normal, l) {
		vis = 0
	}
	return directRadiance(env, boxes[h.box], h.normal, vis)
}
