package soft

import (
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/gfx"
)

// runPlaceOnTerrain snaps each input position onto the heightmap. The
// output w is 1 for accepted points and 0 for points outside the terrain
// or rejected by the splat mask.
func runPlaceOnTerrain(d *Device, p gfx.PassDesc) error {
	c, err := constants[gfx.PlaceOnTerrainConstants](p)
	if err != nil {
		return err
	}
	if err := needInputs(p, 1); err != nil {
		return err
	}
	if len(p.Buffers) < 1 || len(p.RWBuffers) < 1 {
		return gfx.ErrInvalidResource
	}
	height, err := d.tex(p.Inputs[0])
	if err != nil {
		return err
	}
	var splat *texture
	if len(p.Inputs) > 1 {
		if splat, err = d.optTex(p.Inputs[1]); err != nil {
			return err
		}
	}
	in, err := d.buf(p.Buffers[0])
	if err != nil {
		return err
	}
	out, err := d.buf(p.RWBuffers[0])
	if err != nil {
		return err
	}
	if c.Count*16 > len(in.data) || c.Count*16 > len(out.data) || c.WorldSize <= 0 {
		return gfx.ErrInvalidResource
	}

	points := gfx.UnpackVec4s(in.data[:c.Count*16])
	placed := make([]mgl32.Vec4, len(points))
	for i, pt := range points {
		u := (pt[0] - c.Origin[0]) / c.WorldSize
		v := (pt[2] - c.Origin[1]) / c.WorldSize
		if u < 0 || u > 1 || v < 0 || v > 1 {
			placed[i] = mgl32.Vec4{pt[0], pt[1], pt[2], 0}
			continue
		}
		y := height.sample2D(0, 0, u, v)[0]*c.HeightScale + c.HeightDelta
		accepted := float32(1)
		if splat != nil && c.SplatChannel >= 0 && c.SplatChannel < 4 {
			if splat.sample2D(0, 0, u, v)[c.SplatChannel] < 0.5 {
				accepted = 0
			}
		}
		placed[i] = mgl32.Vec4{pt[0], y, pt[2], accepted}
	}
	copy(out.data, gfx.PackVec4s(placed))
	return nil
}
