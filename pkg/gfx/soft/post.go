package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/gfx"
)

// runUpsampleBlur resamples the low-resolution cone-trace output to the
// target size with a box blur of Radius low-resolution texels.
func runUpsampleBlur(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.UpsampleBlurConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	if err := needInputs(p, 1); err != nil {
		return err
	}
	out, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	src, err := d.tex(p.Inputs[0])
	if err != nil {
		return err
	}
	r := max(0, c.Radius)
	sw, sh, _ := src.desc.MipSize(0)
	du, dv := 1/float32(sw), 1/float32(sh)
	taps := float32((2*r + 1) * (2*r + 1))
	w, h, _ := out.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				v := (float32(y) + 0.5) / float32(h)
				var acc mgl32.Vec4
				for oy := -r; oy <= r; oy++ {
					for ox := -r; ox <= r; ox++ {
						acc = acc.Add(src.sample2D(0, 0, u+float32(ox)*du, v+float32(oy)*dv))
					}
				}
				out.store(0, 0, x, y, 0, acc.Mul(1/taps))
			}
		}
	})
	return nil
}

// runComposite combines local lighting with the indirect term. Inputs are
// local, gi, albedo and the optional voxel debug image.
func runComposite(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.CompositeConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	if err := needInputs(p, 3); err != nil {
		return err
	}
	out, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	var in [4]*texture
	for i := range in {
		if i >= len(p.Inputs) {
			break
		}
		if in[i], err = d.optTex(p.Inputs[i]); err != nil {
			return err
		}
	}
	if in[0] == nil || in[1] == nil || in[2] == nil {
		return gfx.ErrInvalidResource
	}
	if c.Mode == gfx.CompositeVoxelDebug && in[3] == nil {
		return gfx.ErrInvalidResource
	}

	w, h, _ := out.desc.MipSize(0)
	d.parallel(h, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < w; x++ {
				u := (float32(x) + 0.5) / float32(w)
				v := (float32(y) + 0.5) / float32(h)
				local := in[0].sample2D(0, 0, u, v).Vec3()
				indirect := mul3(in[1].sample2D(0, 0, u, v).Vec3(), in[2].sample2D(0, 0, u, v).Vec3()).Mul(c.IndirectStrength)
				var rgb mgl32.Vec3
				switch c.Mode {
				case gfx.CompositeDirectOnly:
					rgb = local
				case gfx.CompositeIndirectOnly:
					rgb = indirect
				case gfx.CompositeVoxelDebug:
					rgb = in[3].sample2D(0, 0, u, v).Vec3()
				default:
					rgb = local.Add(indirect)
				}
				if c.Exposure > 0 {
					for k := range rgb {
						rgb[k] = 1 - math32.Exp(-rgb[k]*c.Exposure)
					}
				}
				out.store(0, 0, x, y, 0, rgb.Vec4(1))
			}
		}
	})
	return nil
}
