package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/util"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// lighting holds everything a lighting pass binds, decoded once per pass.
type lighting struct {
	c          gfx.LightingConstants
	gbuffer    [3]*texture
	specular   *texture
	global     *texture
	shadows    []*texture
	diffCells  []int32
	diffProbes []mgl32.Vec4
	sh         []mgl32.Vec4
	specCells  []int32
	specProbes []mgl32.Vec4
	slots      []int32
}

func (d *Device) bindLighting(p gfx.PassDesc) (*lighting, *texture, error) {
	c, err := constants[gfx.LightingConstants](p)
	if err != nil {
		return nil, nil, err
	}
	if err := needTargets(p, 1); err != nil {
		return nil, nil, err
	}
	if err := needInputs(p, 5); err != nil {
		return nil, nil, err
	}
	out, err := d.tex(p.Targets[0])
	if err != nil {
		return nil, nil, err
	}
	l := &lighting{c: c}
	for i := range l.gbuffer {
		if l.gbuffer[i], err = d.tex(p.Inputs[i]); err != nil {
			return nil, nil, err
		}
	}
	if l.specular, err = d.optTex(p.Inputs[3]); err != nil {
		return nil, nil, err
	}
	if l.global, err = d.optTex(p.Inputs[4]); err != nil {
		return nil, nil, err
	}
	for i := 0; i < c.ShadowCount && 5+i < len(p.Inputs); i++ {
		s, err := d.tex(p.Inputs[5+i])
		if err != nil {
			return nil, nil, err
		}
		l.shadows = append(l.shadows, s)
	}

	raw := make([][]byte, 6)
	for i := range raw {
		if i >= len(p.Buffers) || p.Buffers[i] == nil {
			continue
		}
		b, err := d.buf(p.Buffers[i])
		if err != nil {
			return nil, nil, err
		}
		raw[i] = b.data
	}
	l.diffCells = gfx.UnpackInts(raw[0])
	l.diffProbes = gfx.UnpackVec4s(raw[1])
	l.sh = gfx.UnpackVec4s(raw[2])
	l.specCells = gfx.UnpackInts(raw[3])
	l.specProbes = gfx.UnpackVec4s(raw[4])
	l.slots = gfx.UnpackInts(raw[5])
	return l, out, nil
}

// cellIndex is the lookup the probe grid performs on the CPU, repeated
// here against the uploaded grid description.
func cellIndex(g gfx.ProbeGridParams, p mgl32.Vec3) int {
	const eps = 1e-4
	var idx [3]int32
	for a := 0; a < 3; a++ {
		if g.Is2D && a == 1 {
			continue
		}
		f := (p[a] - g.Min[a]) / g.Spacing
		if f < -eps || f > float32(g.CellCounts[a])+eps {
			return -1
		}
		idx[a] = util.Clamp(int32(math32.Floor(f)), 0, g.CellCounts[a]-1)
	}
	return int((idx[1]*g.CellCounts[2]+idx[2])*g.CellCounts[0] + idx[0])
}

func (l *lighting) shSlot(i int) []mgl32.Vec3 {
	base := i * geom.SHCoefficientCount
	if base < 0 || base+geom.SHCoefficientCount > len(l.sh) {
		return nil
	}
	out := make([]mgl32.Vec3, geom.SHCoefficientCount)
	for k := range out {
		out[k] = l.sh[base+k].Vec3()
	}
	return out
}

// diffuse blends the SH probes of the cell holding p by inverse squared
// distance, falling back to the global probe.
func (l *lighting) diffuse(p, n mgl32.Vec3) mgl32.Vec3 {
	g := l.c.Diffuse
	if g.Enabled && g.CellCapacity > 0 {
		if cell := cellIndex(g, p); cell >= 0 {
			var sum mgl32.Vec3
			var total float32
			base := cell * int(g.CellCapacity)
			for k := 0; k < int(g.CellCapacity) && base+k < len(l.diffCells); k++ {
				idx := int(l.diffCells[base+k])
				if idx < 0 || idx >= len(l.diffProbes) {
					continue
				}
				coeffs := l.shSlot(idx)
				if coeffs == nil {
					continue
				}
				d := l.diffProbes[idx].Vec3().Sub(p)
				w := 1 / (d.Dot(d) + 1e-3)
				sum = sum.Add(geom.EvalSH(coeffs, n).Mul(w))
				total += w
			}
			if total > 0 {
				return clampPositive(sum.Mul(1 / total))
			}
		}
	}
	if coeffs := l.shSlot(int(g.ProbeCount)); coeffs != nil {
		return clampPositive(geom.EvalSH(coeffs, n))
	}
	return mgl32.Vec3{}
}

// specularTerm looks up the nearest packed probe of the cell holding p. A
// probe without a slot contributes nothing; the global cube is used only
// when the cell has no packed probe at all.
func (l *lighting) specularTerm(p, n, view mgl32.Vec3, roughness float32) mgl32.Vec3 {
	r := view.Sub(n.Mul(2 * view.Dot(n))).Normalize()
	lod := roughness * float32(max(0, l.c.SpecularMips-1))
	var radiance mgl32.Vec3
	found := false
	g := l.c.Specular
	if g.Enabled && g.CellCapacity > 0 && l.specular != nil {
		if cell := cellIndex(g, p); cell >= 0 {
			best := math32.Inf(1)
			slot := -1
			base := cell * int(g.CellCapacity)
			for k := 0; k < int(g.CellCapacity) && base+k < len(l.specCells); k++ {
				idx := int(l.specCells[base+k])
				if idx < 0 || idx >= len(l.slots) || idx >= len(l.specProbes) || l.slots[idx] < 0 {
					continue
				}
				d := l.specProbes[idx].Vec3().Sub(p)
				if dist := d.Dot(d); dist < best {
					best, slot = dist, int(l.slots[idx])
				}
			}
			if slot >= 0 {
				radiance = l.specular.sampleCube(slot*geom.CubeFaceCount, lod, r).Vec3()
				found = true
			}
		}
	}
	if !found && l.global != nil {
		radiance = l.global.sampleCube(0, lod, r).Vec3()
	}
	ndv := max(0, -view.Dot(n))
	fresnel := 0.04 + 0.96*math32.Pow(1-ndv, 5)
	return radiance.Mul(fresnel * (1 - 0.5*roughness))
}

// visibility returns 0 when p is in shadow in the first cascade that
// covers it.
func (l *lighting) visibility(p mgl32.Vec3) float32 {
	for i, sm := range l.shadows {
		ndc := mgl32.TransformCoordinate(p, l.c.ShadowViewProj[i])
		if ndc[0] < -1 || ndc[0] > 1 || ndc[1] < -1 || ndc[1] > 1 || ndc[2] < -1 || ndc[2] > 1 {
			continue
		}
		w, h, _ := sm.desc.MipSize(0)
		x := int((ndc[0]*0.5 + 0.5) * float32(w))
		y := int((0.5 - ndc[1]*0.5) * float32(h))
		stored := sm.fetch(0, 0, x, y, 0)[0]
		if ndc[2]*0.5+0.5-l.c.ShadowBias > stored {
			return 0
		}
		return 1
	}
	return 1
}

func (l *lighting) shade(p, n, albedo mgl32.Vec3, emission, roughness float32) mgl32.Vec3 {
	view := p.Sub(l.c.Camera.Position).Normalize()
	b := gfx.Box{Albedo: albedo, Emission: emission}
	direct := directRadiance(l.c.Env, b, n, l.visibility(p))
	ambient := mul3(albedo, l.diffuse(p, n))
	return direct.Add(ambient).Add(l.specularTerm(p, n, view, roughness))
}

func clampPositive(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(0, v[0]), max(0, v[1]), max(0, v[2])}
}

func runDeferredLighting(d *Device, p gfx.PassDesc) error {
	l, out, err := d.bindLighting(p)
	if err != nil {
		return err
	}
	w, h, _ := out.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				pos := l.gbuffer[2].fetch(0, 0, x, y, 0)
				if pos[3] < 0.5 {
					u := (float32(x) + 0.5) / float32(w)
					v := (float32(y) + 0.5) / float32(h)
					sky := skyRadiance(l.c.Env, l.c.Camera.RayDirection(u, v))
					out.store(0, 0, x, y, 0, sky.Vec4(1))
					continue
				}
				albedo := l.gbuffer[0].fetch(0, 0, x, y, 0)
				normal := l.gbuffer[1].fetch(0, 0, x, y, 0)
				c := l.shade(pos.Vec3(), normal.Vec3().Normalize(), albedo.Vec3(), albedo[3], normal[3])
				out.store(0, 0, x, y, 0, c.Vec4(1))
			}
		}
	})
	return nil
}

// runForwardLighting blends translucent Objects over the deferred result
// wherever they lie in front of the opaque surface.
func runForwardLighting(d *Device, p gfx.PassDesc) error {
	l, out, err := d.bindLighting(p)
	if err != nil {
		return err
	}
	if len(p.Objects) == 0 {
		return nil
	}
	cam := l.c.Camera
	w, h, _ := out.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				v := (float32(y) + 0.5) / float32(h)
				limit := cam.Far
				if pos := l.gbuffer[2].fetch(0, 0, x, y, 0); pos[3] >= 0.5 {
					limit = pos.Vec3().Sub(cam.Position).Len()
				}
				surf, ok := traceBoxes(p.Objects, cam.Position, cam.RayDirection(u, v), limit)
				if !ok {
					continue
				}
				b := p.Objects[surf.box]
				c := l.shade(surf.pos, surf.normal, b.Albedo, b.Emission, b.Roughness)
				dst := out.fetch(0, 0, x, y, 0)
				out.store(0, 0, x, y, 0, lerp4(dst, c.Vec4(1), b.Alpha))
			}
		}
	})
	return nil
}
