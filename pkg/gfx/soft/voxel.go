package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/util"
	"lumen/pkg/gfx"
)

// runVoxelize splats every object into mip 0 of the cascade volume. Voxels
// store outgoing radiance in rgb and coverage in alpha; the sun term uses
// the normal of the box face nearest to the voxel centre.
func runVoxelize(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.VoxelizeConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	vol, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	n := c.Cascade.Size
	if w, _, _ := vol.desc.MipSize(0); w != n {
		return gfx.ErrInvalidResource
	}
	voxel := c.Cascade.VoxelSize()
	origin := c.Cascade.Bounds().Min

	for _, b := range p.Objects {
		lo := b.Min.Sub(origin).Mul(c.Cascade.WorldScale)
		hi := b.Max.Sub(origin).Mul(c.Cascade.WorldScale)
		var x0, x1 [3]int
		for a := 0; a < 3; a++ {
			x0[a] = util.Clamp(int(math32.Floor(lo[a])), 0, n)
			x1[a] = util.Clamp(int(math32.Ceil(hi[a])), 0, n)
		}
		for z := x0[2]; z < x1[2]; z++ {
			for y := x0[1]; y < x1[1]; y++ {
				for x := x0[0]; x < x1[0]; x++ {
					centre := origin.Add(mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}.Mul(voxel))
					radiance := directRadiance(c.Env, b, nearestFaceNormal(b, centre), 1)
					vol.store(0, 0, x, y, z, radiance.Vec4(b.Alpha))
				}
			}
		}
	}
	return nil
}

func nearestFaceNormal(b gfx.Box, p mgl32.Vec3) mgl32.Vec3 {
	best := math32.Inf(1)
	var n mgl32.Vec3
	for a := 0; a < 3; a++ {
		if dmin := p[a] - b.Min[a]; dmin < best {
			best = dmin
			n = mgl32.Vec3{}
			n[a] = -1
		}
		if dmax := b.Max[a] - p[a]; dmax < best {
			best = dmax
			n = mgl32.Vec3{}
			n[a] = 1
		}
	}
	return n
}

// runVoxelDebug draws every occupied voxel of Inputs[0] as a single point.
func runVoxelDebug(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.VoxelDebugConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	if err := needInputs(p, 1); err != nil {
		return err
	}
	rt, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	vol, err := d.tex(p.Inputs[0])
	if err != nil {
		return err
	}
	w, h, _ := rt.desc.MipSize(0)
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = 1
	}
	clear(rt.levels[0][0])

	n := c.Cascade.Size
	voxel := c.Cascade.VoxelSize()
	origin := c.Cascade.Bounds().Min
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				v := vol.fetch(0, 0, x, y, z)
				if v[3] <= 0 {
					continue
				}
				centre := origin.Add(mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}.Mul(voxel))
				clip := c.ViewProjection.Mul4x1(centre.Vec4(1))
				if clip[3] <= 0 {
					continue
				}
				ndc := clip.Vec3().Mul(1 / clip[3])
				if ndc[0] < -1 || ndc[0] > 1 || ndc[1] < -1 || ndc[1] > 1 || ndc[2] < -1 || ndc[2] > 1 {
					continue
				}
				px := util.Clamp(int((ndc[0]*0.5+0.5)*float32(w)), 0, w-1)
				py := util.Clamp(int((0.5-ndc[1]*0.5)*float32(h)), 0, h-1)
				z01 := ndc[2]*0.5 + 0.5
				if z01 < depth[py*w+px] {
					depth[py*w+px] = z01
					rt.store(0, 0, px, py, 0, mgl32.Vec4{v[0], v[1], v[2], 1})
				}
			}
		}
	}
	return nil
}

// Cone set for diffuse tracing: one along the normal and four tilted 60
// degrees around it.
var coneWeights = [5]float32{0.25, 0.1875, 0.1875, 0.1875, 0.1875}

func coneDirections(n mgl32.Vec3) [5]mgl32.Vec3 {
	up := mgl32.Vec3{0, 1, 0}
	if math32.Abs(n[1]) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}
	t := up.Cross(n).Normalize()
	b := n.Cross(t)
	const sin60, cos60 = 0.8660254, 0.5
	return [5]mgl32.Vec3{
		n,
		n.Mul(cos60).Add(t.Mul(sin60)).Normalize(),
		n.Mul(cos60).Sub(t.Mul(sin60)).Normalize(),
		n.Mul(cos60).Add(b.Mul(sin60)).Normalize(),
		n.Mul(cos60).Sub(b.Mul(sin60)).Normalize(),
	}
}

// runConeTrace marches diffuse cones through the cascades. Each sample
// reads the finest cascade that contains it; the mip follows the cone
// diameter. Output rgb is gathered radiance, alpha is unoccluded fraction.
func runConeTrace(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.ConeTraceConstants](p)
	if err != nil {
		return err
	}
	if c.CascadeCount < 1 || c.CascadeCount > gfx.MaxCascades {
		return gfx.ErrInvalidResource
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	if err := needInputs(p, 3+c.CascadeCount); err != nil {
		return err
	}
	out, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	var gb [3]*texture
	for i := range gb {
		if gb[i], err = d.tex(p.Inputs[i]); err != nil {
			return err
		}
	}
	vols := make([]*texture, c.CascadeCount)
	for i := range vols {
		if vols[i], err = d.tex(p.Inputs[3+i]); err != nil {
			return err
		}
	}
	aperture := c.Aperture
	if aperture <= 0 {
		aperture = 0.577
	}

	w, h, _ := out.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				v := (float32(y) + 0.5) / float32(h)
				pos := gb[2].sample2D(0, 0, u, v)
				if pos[3] < 0.5 {
					out.store(0, 0, x, y, 0, mgl32.Vec4{})
					continue
				}
				n := gb[1].sample2D(0, 0, u, v).Vec3()
				if n.Len() == 0 {
					out.store(0, 0, x, y, 0, mgl32.Vec4{})
					continue
				}
				n = n.Normalize()
				var gathered mgl32.Vec3
				var visible float32
				for k, dir := range coneDirections(n) {
					rgb, occ := traceCone(&c, vols, pos.Vec3(), n, dir, aperture)
					gathered = gathered.Add(rgb.Mul(coneWeights[k]))
					visible += (1 - occ) * coneWeights[k]
				}
				out.store(0, 0, x, y, 0, gathered.Mul(c.Strength).Vec4(visible))
			}
		}
	})
	return nil
}

func traceCone(c *gfx.ConeTraceConstants, vols []*texture, origin, n, dir mgl32.Vec3, aperture float32) (mgl32.Vec3, float32) {
	finest := c.Cascades[0].VoxelSize()
	start := origin.Add(n.Mul(finest))
	maxDist := c.MaxDistance
	if maxDist <= 0 {
		maxDist = c.Cascades[c.CascadeCount-1].Bounds().Size()[0] / 2
	}
	var rgb mgl32.Vec3
	var alpha float32
	t := finest
	for alpha < 0.99 && t < maxDist {
		diameter := max(finest, 2*aperture*t)
		p := start.Add(dir.Mul(t))
		i := cascadeFor(c, p)
		if i < 0 {
			break
		}
		cc := c.Cascades[i]
		bounds := cc.Bounds()
		uvw := p.Sub(bounds.Min).Mul(cc.WorldScale / float32(cc.Size))
		lod := math32.Log2(diameter / cc.VoxelSize())
		s := vols[i].sample3DLod(uvw[0], uvw[1], uvw[2], lod)
		weight := (1 - alpha) * s[3]
		rgb = rgb.Add(s.Vec3().Mul(weight))
		alpha += weight
		t += diameter * 0.5
	}
	return rgb, alpha
}

func cascadeFor(c *gfx.ConeTraceConstants, p mgl32.Vec3) int {
	for i := 0; i < c.CascadeCount; i++ {
		if c.Cascades[i].Bounds().Contains(p) {
			return i
		}
	}
	return -1
}
