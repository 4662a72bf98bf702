package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// cubeTexel is one source texel prepared for integration.
type cubeTexel struct {
	dir      mgl32.Vec3
	solid    float32
	radiance mgl32.Vec3
}

func gatherCube(src *texture, mip int) []cubeTexel {
	size, _, _ := src.desc.MipSize(mip)
	out := make([]cubeTexel, 0, geom.CubeFaceCount*size*size)
	for face := 0; face < geom.CubeFaceCount; face++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				s := (float32(x) + 0.5) / float32(size)
				t := (float32(y) + 0.5) / float32(size)
				out = append(out, cubeTexel{
					dir:      geom.CubeTexelDirection(face, s, t),
					solid:    geom.CubeTexelSolidAngle(x, y, size),
					radiance: src.fetch(face, mip, x, y, 0).Vec3(),
				})
			}
		}
	}
	return out
}

// specularExponent maps roughness to a Phong lobe exponent.
func specularExponent(roughness float32) float32 {
	a := roughness * roughness
	return max(1, 2/(a*a)-2)
}

// runConvolve filters one face of Inputs[0] (a single cube) into
// Targets[0] at Layer and Mip. Diffuse output is cosine-weighted irradiance
// divided by pi; specular output is the normalized lobe average.
func runConvolve(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.ConvolveConstants](p)
	if err != nil {
		return err
	}
	if err := needTargets(p, 1); err != nil {
		return err
	}
	if err := needInputs(p, 1); err != nil {
		return err
	}
	dst, err := d.tex(p.Targets[0])
	if err != nil {
		return err
	}
	src, err := d.tex(p.Inputs[0])
	if err != nil {
		return err
	}
	if p.Mip >= dst.desc.Mips || c.SourceMip >= src.desc.Mips {
		return gfx.ErrInvalidResource
	}
	face := p.Layer % geom.CubeFaceCount
	size, _, _ := dst.desc.MipSize(p.Mip)

	if c.Mode == gfx.ConvolveSpecular && c.Roughness <= 0 {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dir := geom.CubeTexelDirection(face, (float32(x)+0.5)/float32(size), (float32(y)+0.5)/float32(size))
				dst.store(p.Layer, p.Mip, x, y, 0, src.sampleCube(0, float32(c.SourceMip), dir))
			}
		}
		return nil
	}

	texels := gatherCube(src, c.SourceMip)
	exponent := specularExponent(c.Roughness)
	d.parallel(size, func(lo, hi int) {
		for y := lo; y < hi; y++ {
			for x := 0; x < size; x++ {
				n := geom.CubeTexelDirection(face, (float32(x)+0.5)/float32(size), (float32(y)+0.5)/float32(size))
				var sum mgl32.Vec3
				var weight float32
				for _, tx := range texels {
					cos := n.Dot(tx.dir)
					if cos <= 0 {
						continue
					}
					w := tx.solid * cos
					if c.Mode == gfx.ConvolveSpecular {
						w = tx.solid * math32.Pow(cos, exponent)
					}
					sum = sum.Add(tx.radiance.Mul(w))
					weight += w
				}
				var out mgl32.Vec3
				switch {
				case c.Mode == gfx.ConvolveDiffuse:
					out = sum.Mul(1 / math32.Pi)
				case weight > 0:
					out = sum.Mul(1 / weight)
				}
				dst.store(p.Layer, p.Mip, x, y, 0, out.Vec4(1))
			}
		}
	})
	return nil
}
