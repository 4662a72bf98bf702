package soft

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/util"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// fetch reads one texel with clamp-to-edge addressing. Single-channel
// formats return the value in x.
func (t *texture) fetch(layer, mip, x, y, z int) mgl32.Vec4 {
	w, h, dp := t.desc.MipSize(mip)
	x = util.Clamp(x, 0, w-1)
	y = util.Clamp(y, 0, h-1)
	z = util.Clamp(z, 0, dp-1)
	ch := t.channels()
	i := ((z*h+y)*w + x) * ch
	data := t.levels[layer][mip]
	if ch == 1 {
		return mgl32.Vec4{data[i], 0, 0, 0}
	}
	return mgl32.Vec4{data[i], data[i+1], data[i+2], data[i+3]}
}

// store writes one texel. 8-bit formats saturate.
func (t *texture) store(layer, mip, x, y, z int, v mgl32.Vec4) {
	w, h, _ := t.desc.MipSize(mip)
	ch := t.channels()
	i := ((z*h+y)*w + x) * ch
	data := t.levels[layer][mip]
	if t.desc.Format == gfx.FormatRGBA8 {
		for c := range v {
			v[c] = util.Clamp(v[c], 0, 1)
		}
	}
	if ch == 1 {
		data[i] = v[0]
		return
	}
	data[i], data[i+1], data[i+2], data[i+3] = v[0], v[1], v[2], v[3]
}

// sample2D filters bilinearly at normalized (u, v), v growing downwards.
func (t *texture) sample2D(layer, mip int, u, v float32) mgl32.Vec4 {
	w, h, _ := t.desc.MipSize(mip)
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5
	x0, y0 := math32.Floor(x), math32.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	a := t.fetch(layer, mip, ix, iy, 0)
	b := t.fetch(layer, mip, ix+1, iy, 0)
	c := t.fetch(layer, mip, ix, iy+1, 0)
	d := t.fetch(layer, mip, ix+1, iy+1, 0)
	return lerp4(lerp4(a, b, fx), lerp4(c, d, fx), fy)
}

// sample3D filters trilinearly at normalized (u, v, w).
func (t *texture) sample3D(mip int, u, v, w float32) mgl32.Vec4 {
	sw, sh, sd := t.desc.MipSize(mip)
	x := u*float32(sw) - 0.5
	y := v*float32(sh) - 0.5
	z := w*float32(sd) - 0.5
	x0, y0, z0 := math32.Floor(x), math32.Floor(y), math32.Floor(z)
	fx, fy, fz := x-x0, y-y0, z-z0
	ix, iy, iz := int(x0), int(y0), int(z0)
	plane := func(zz int) mgl32.Vec4 {
		a := t.fetch(0, mip, ix, iy, zz)
		b := t.fetch(0, mip, ix+1, iy, zz)
		c := t.fetch(0, mip, ix, iy+1, zz)
		d := t.fetch(0, mip, ix+1, iy+1, zz)
		return lerp4(lerp4(a, b, fx), lerp4(c, d, fx), fy)
	}
	return lerp4(plane(iz), plane(iz+1), fz)
}

// sample3DLod blends the two mips around a fractional level of detail.
func (t *texture) sample3DLod(u, v, w, lod float32) mgl32.Vec4 {
	lod = util.Clamp(lod, 0, float32(t.desc.Mips-1))
	m0 := int(lod)
	if m0 >= t.desc.Mips-1 {
		return t.sample3D(m0, u, v, w)
	}
	f := lod - float32(m0)
	return lerp4(t.sample3D(m0, u, v, w), t.sample3D(m0+1, u, v, w), f)
}

// sampleCube looks up a direction in the cube whose +X face is layer base.
func (t *texture) sampleCube(base int, lod float32, dir mgl32.Vec3) mgl32.Vec4 {
	face, s, tt := geom.DirectionToCubeTexel(dir)
	lod = util.Clamp(lod, 0, float32(t.desc.Mips-1))
	m0 := int(lod)
	a := t.sample2D(base+face, m0, s, tt)
	if m0 >= t.desc.Mips-1 {
		return a
	}
	return lerp4(a, t.sample2D(base+face, m0+1, s, tt), lod-float32(m0))
}

func lerp4(a, b mgl32.Vec4, f float32) mgl32.Vec4 {
	return a.Add(b.Sub(a).Mul(f))
}

func mul3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
