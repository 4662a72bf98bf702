package soft

import (
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

func runGBuffer(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.GBufferConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 3); err != nil {
		return err
	}
	var rt [3]*texture
	for i := range rt {
		if rt[i], err = d.tex(p.Targets[i]); err != nil {
			return err
		}
	}
	w, h, _ := rt[0].desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				s := (float32(x) + 0.5) / float32(w)
				t := (float32(y) + 0.5) / float32(h)
				dir := c.Camera.RayDirection(s, t)
				surf, ok := traceBoxes(p.Objects, c.Camera.Position, dir, c.Camera.Far)
				if !ok {
					rt[0].store(0, 0, x, y, 0, mgl32.Vec4{})
					rt[1].store(0, 0, x, y, 0, mgl32.Vec4{})
					rt[2].store(0, 0, x, y, 0, mgl32.Vec4{})
					continue
				}
				b := p.Objects[surf.box]
				rt[0].store(0, 0, x, y, 0, b.Albedo.Vec4(b.Emission))
				rt[1].store(0, 0, x, y, 0, surf.normal.Vec4(b.Roughness))
				rt[2].store(0, 0, x, y, 0, surf.pos.Vec4(1))
			}
		}
	})
	return nil
}

func runShadowDepth(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.ShadowDepthConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	rt, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	inv := c.ViewProjection.Inv()
	w, h, _ := rt.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				nx := 2*(float32(x)+0.5)/float32(w) - 1
				ny := 1 - 2*(float32(y)+0.5)/float32(h)
				near := mgl32.TransformCoordinate(mgl32.Vec3{nx, ny, -1}, inv)
				far := mgl32.TransformCoordinate(mgl32.Vec3{nx, ny, 1}, inv)
				span := far.Sub(near)
				depth := float32(1)
				if surf, ok := traceBoxes(p.Objects, near, span.Normalize(), span.Len()); ok {
					ndc := mgl32.TransformCoordinate(surf.pos, c.ViewProjection)
					depth = ndc[2]*0.5 + 0.5
				}
				rt.store(0, 0, x, y, 0, mgl32.Vec4{depth})
			}
		}
	})
	return nil
}

// runProbeFace renders one cube face from the probe position into mip 0
// of Targets[0] (color) and optionally Targets[1] (linear depth).
func runProbeFace(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.ProbeFaceConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	color, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	var depth *texture
	if len(p.Targets) > 1 {
		if depth, err = d.optTex(p.Targets[1]); err != nil {
			return err
		}
	}
	face := p.Layer % geom.CubeFaceCount
	size, _, _ := color.desc.MipSize(0)
	d.parallel(size, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < size; x++ {
				s := (float32(x) + 0.5) / float32(size)
				t := (float32(y) + 0.5) / float32(size)
				dir := geom.CubeTexelDirection(face, s, t)
				origin := c.Position.Add(dir.Mul(c.Near))
				radiance := skyRadiance(c.Env, dir)
				dist := c.Far
				if h, ok := traceBoxes(p.Objects, origin, dir, c.Far-c.Near); ok {
					radiance = shadeHit(c.Env, p.Objects, h)
					dist = c.Near + h.dist
				}
				color.store(p.Layer, 0, x, y, 0, radiance.Vec4(1))
				if depth != nil {
					depth.store(p.Layer, 0, x, y, 0, mgl32.Vec4{dist})
				}
			}
		}
	})
	return nil
}
