package soft

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

func newTestDevice() *Device {
	return NewDevice(logger.Discard())
}

func TestCreateTextureValidation(t *testing.T) {
	d := newTestDevice()

	_, err := d.CreateTexture(gfx.TextureDesc{Name: "bad", Kind: gfx.Texture2D, Width: 0, Height: 4})
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)

	_, err = d.CreateTexture(gfx.TextureDesc{Name: "cube", Kind: gfx.TextureCube, Width: 8, Height: 4})
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)

	_, err = d.CreateTexture(gfx.TextureDesc{Name: "mips", Kind: gfx.Texture2D, Width: 4, Height: 4, Mips: 5})
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)

	tex, err := d.CreateTexture(gfx.TextureDesc{Name: "ok", Kind: gfx.TextureCubeArray, Format: gfx.FormatRGBA16F, Width: 8, Height: 8, Layers: 12, Mips: 4})
	require.NoError(t, err)
	assert.Equal(t, 12, tex.Desc().LayerCount())
	assert.Equal(t, 1, d.Stats().Textures)

	d.Release(tex)
	assert.Equal(t, 0, d.Stats().Textures)
	assert.ErrorIs(t, d.ClearTexture(tex, [4]float32{}), gfx.ErrInvalidResource)
}

func TestClearAndGenerateMips(t *testing.T) {
	d := newTestDevice()
	vol, err := d.CreateTexture(gfx.TextureDesc{Name: "vol", Kind: gfx.Texture3D, Format: gfx.FormatRGBA8, Width: 4, Height: 4, Depth: 4, Mips: 3})
	require.NoError(t, err)

	require.NoError(t, d.ClearTexture(vol, [4]float32{0.5, 0.25, 0, 1}))
	require.NoError(t, d.GenerateMips(vol))

	top, err := d.ReadTexture(vol, 0, 2)
	require.NoError(t, err)
	require.Len(t, top, 4)
	assert.InDelta(t, 0.5, top[0], 1e-6)
	assert.InDelta(t, 0.25, top[1], 1e-6)
	assert.InDelta(t, 1, top[3], 1e-6)
}

func TestGenerateMipsAverages(t *testing.T) {
	d := newTestDevice()
	tex, err := d.CreateTexture(gfx.TextureDesc{Name: "h", Kind: gfx.Texture2D, Format: gfx.FormatR32F, Width: 2, Height: 2, Mips: 2})
	require.NoError(t, err)
	require.NoError(t, d.WriteTexture(tex, 0, 0, []float32{0, 1, 2, 3}))
	require.NoError(t, d.GenerateMips(tex))
	top, err := d.ReadTexture(tex, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, top[0], 1e-6)
}

func TestCopySubresourceCopiesEveryMip(t *testing.T) {
	d := newTestDevice()
	desc := gfx.TextureDesc{Kind: gfx.TextureCube, Format: gfx.FormatRGBA16F, Width: 4, Height: 4, Mips: 3}
	desc.Name = "src"
	src, err := d.CreateTexture(desc)
	require.NoError(t, err)
	arrDesc := desc
	arrDesc.Name, arrDesc.Kind, arrDesc.Layers = "arr", gfx.TextureCubeArray, 12
	arr, err := d.CreateTexture(arrDesc)
	require.NoError(t, err)

	require.NoError(t, d.ClearTexture(src, [4]float32{1, 2, 3, 4}))
	require.NoError(t, d.CopySubresource(arr, 6, src, 0, 6))
	assert.Equal(t, 1, d.Stats().Copies)

	got, err := d.ReadTexture(arr, 11, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)
	untouched, err := d.ReadTexture(arr, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, untouched[0])

	assert.ErrorIs(t, d.CopySubresource(arr, 8, src, 0, 6), gfx.ErrInvalidResource)
}

func TestBuffersRoundTrip(t *testing.T) {
	d := newTestDevice()
	b, err := d.CreateBuffer(gfx.BufferDesc{Name: "ints", Size: 16})
	require.NoError(t, err)
	require.NoError(t, d.WriteBuffer(b, 4, gfx.PackInts([]int32{7, -1})))
	raw, err := d.ReadBuffer(b)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 7, -1, 0}, gfx.UnpackInts(raw))
	assert.ErrorIs(t, d.WriteBuffer(b, 12, make([]byte, 8)), gfx.ErrInvalidResource)

	_, err = d.CreateBuffer(gfx.BufferDesc{Name: "odd", Size: 6})
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)
}

func TestExecuteRejectsUnknownPass(t *testing.T) {
	d := newTestDevice()
	assert.ErrorIs(t, d.Execute(gfx.PassDesc{Pass: gfx.PassCount}), gfx.ErrUnsupportedPass)
	assert.ErrorIs(t, d.Execute(gfx.PassDesc{Pass: gfx.PassComposite, Constants: 3}), gfx.ErrInvalidResource)
}

func TestStrictModeChecksStates(t *testing.T) {
	d := newTestDevice()
	d.SetStrict(true)
	in, err := d.CreateTexture(gfx.TextureDesc{Name: "in", Kind: gfx.Texture2D, Format: gfx.FormatRGBA16F, Width: 4, Height: 4})
	require.NoError(t, err)
	out, err := d.CreateTexture(gfx.TextureDesc{Name: "out", Kind: gfx.Texture2D, Format: gfx.FormatRGBA16F, Width: 4, Height: 4})
	require.NoError(t, err)

	pass := gfx.PassDesc{
		Pass:      gfx.PassUpsampleBlur,
		Targets:   []gfx.Texture{out},
		Inputs:    []gfx.Texture{in},
		Constants: gfx.UpsampleBlurConstants{Radius: 1},
	}
	assert.ErrorIs(t, d.Execute(pass), gfx.ErrInvalidResource)

	d.Transition(in, gfx.StateShaderResource)
	d.Transition(out, gfx.StateUnorderedAccess)
	require.NoError(t, d.Execute(pass))
	assert.Equal(t, 1, d.Stats().Executed(gfx.PassUpsampleBlur))
}

func constantSky(c float32) gfx.Environment {
	return gfx.Environment{
		SunDirection: mgl32.Vec3{0, -1, 0},
		SkyColor:     mgl32.Vec3{c, c, c},
		GroundColor:  mgl32.Vec3{c, c, c},
	}
}

func TestProbeFaceAndDiffuseConvolution(t *testing.T) {
	d := newTestDevice()
	color, err := d.CreateTexture(gfx.TextureDesc{Name: "color", Kind: gfx.TextureCube, Format: gfx.FormatRGBA16F, Width: 8, Height: 8, Mips: 4})
	require.NoError(t, err)
	conv, err := d.CreateTexture(gfx.TextureDesc{Name: "conv", Kind: gfx.TextureCube, Format: gfx.FormatRGBA16F, Width: 4, Height: 4})
	require.NoError(t, err)

	env := constantSky(0.6)
	for face := 0; face < geom.CubeFaceCount; face++ {
		require.NoError(t, d.Execute(gfx.PassDesc{
			Pass:      gfx.PassProbeFace,
			Targets:   []gfx.Texture{color},
			Layer:     face,
			Constants: gfx.ProbeFaceConstants{Near: 0.1, Far: 100, Env: env},
		}))
	}
	require.NoError(t, d.GenerateMips(color))
	for face := 0; face < geom.CubeFaceCount; face++ {
		require.NoError(t, d.Execute(gfx.PassDesc{
			Pass:      gfx.PassConvolve,
			Targets:   []gfx.Texture{conv},
			Inputs:    []gfx.Texture{color},
			Layer:     face,
			Constants: gfx.ConvolveConstants{Mode: gfx.ConvolveDiffuse},
		}))
	}
	assert.Equal(t, 6, d.Stats().Executed(gfx.PassProbeFace))

	texels, err := d.ReadTexture(conv, geom.CubePosY, 0)
	require.NoError(t, err)
	// a uniform environment integrates to itself
	assert.InDelta(t, 0.6, texels[0], 0.03)
}

func TestProbeFaceSeesOccluder(t *testing.T) {
	d := newTestDevice()
	color, err := d.CreateTexture(gfx.TextureDesc{Name: "color", Kind: gfx.TextureCube, Format: gfx.FormatRGBA16F, Width: 4, Height: 4})
	require.NoError(t, err)
	depth, err := d.CreateTexture(gfx.TextureDesc{Name: "depth", Kind: gfx.TextureCube, Format: gfx.FormatR32F, Width: 4, Height: 4})
	require.NoError(t, err)

	wall := gfx.Box{Min: mgl32.Vec3{5, -50, -50}, Max: mgl32.Vec3{6, 50, 50}, Albedo: mgl32.Vec3{1, 0, 0}, Emission: 2, Alpha: 1}
	require.NoError(t, d.Execute(gfx.PassDesc{
		Pass:      gfx.PassProbeFace,
		Targets:   []gfx.Texture{color, depth},
		Layer:     geom.CubePosX,
		Objects:   []gfx.Box{wall},
		Constants: gfx.ProbeFaceConstants{Near: 0.1, Far: 100, Env: constantSky(0.1)},
	}))
	c, err := d.ReadTexture(color, geom.CubePosX, 0)
	require.NoError(t, err)
	dist, err := d.ReadTexture(depth, geom.CubePosX, 0)
	require.NoError(t, err)

	// centre-ish texel looks straight at the wall
	i := 1*4 + 1
	assert.InDelta(t, 2, c[4*i], 1e-4)
	assert.Zero(t, c[4*i+1])
	assert.Less(t, dist[i], float32(10))
}

func TestPlaceOnTerrain(t *testing.T) {
	d := newTestDevice()
	height, err := d.CreateTexture(gfx.TextureDesc{Name: "height", Kind: gfx.Texture2D, Format: gfx.FormatR32F, Width: 2, Height: 2})
	require.NoError(t, err)
	require.NoError(t, d.WriteTexture(height, 0, 0, []float32{1, 1, 1, 1}))
	splat, err := d.CreateTexture(gfx.TextureDesc{Name: "splat", Kind: gfx.Texture2D, Format: gfx.FormatRGBA8, Width: 2, Height: 2})
	require.NoError(t, err)
	require.NoError(t, d.ClearTexture(splat, [4]float32{1, 0, 0, 0}))

	points := []mgl32.Vec4{{0, 0, 0, 1}, {500, 0, 500, 1}}
	in, err := d.CreateBuffer(gfx.BufferDesc{Name: "in", Size: 32})
	require.NoError(t, err)
	out, err := d.CreateBuffer(gfx.BufferDesc{Name: "out", Size: 32})
	require.NoError(t, err)
	require.NoError(t, d.WriteBuffer(in, 0, gfx.PackVec4s(points)))

	run := func(channel int) []mgl32.Vec4 {
		require.NoError(t, d.Execute(gfx.PassDesc{
			Pass:      gfx.PassPlaceOnTerrain,
			Inputs:    []gfx.Texture{height, splat},
			Buffers:   []gfx.Buffer{in},
			RWBuffers: []gfx.Buffer{out},
			Constants: gfx.PlaceOnTerrainConstants{
				Count: 2, SplatChannel: channel, HeightDelta: 2,
				Origin: mgl32.Vec2{-100, -100}, WorldSize: 200, HeightScale: 10,
			},
		}))
		raw, err := d.ReadBuffer(out)
		require.NoError(t, err)
		return gfx.UnpackVec4s(raw)
	}

	got := run(0)
	assert.InDelta(t, 12, got[0][1], 1e-5)
	assert.Equal(t, float32(1), got[0][3])
	assert.Equal(t, float32(0), got[1][3], "outside the terrain")

	got = run(1)
	assert.Equal(t, float32(0), got[0][3], "rejected by splat channel")
}

func TestVoxelizeAndConeTrace(t *testing.T) {
	d := newTestDevice()
	cascade := gfx.CascadeParams{Anchor: mgl32.Vec3{}, WorldScale: 1, Size: 16}
	vol, err := d.CreateTexture(gfx.TextureDesc{Name: "vol", Kind: gfx.Texture3D, Format: gfx.FormatRGBA8, Width: 16, Height: 16, Depth: 16, Mips: 5})
	require.NoError(t, err)

	ceiling := gfx.Box{Min: mgl32.Vec3{-8, 3, -8}, Max: mgl32.Vec3{8, 4, 8}, Albedo: mgl32.Vec3{1, 1, 1}, Emission: 1, Alpha: 1}
	require.NoError(t, d.Execute(gfx.PassDesc{
		Pass:      gfx.PassVoxelize,
		Targets:   []gfx.Texture{vol},
		Objects:   []gfx.Box{ceiling},
		Constants: gfx.VoxelizeConstants{Cascade: cascade},
	}))
	require.NoError(t, d.GenerateMips(vol))

	v := func(x, y, z int) []float32 {
		level, err := d.ReadTexture(vol, 0, 0)
		require.NoError(t, err)
		i := ((z*16+y)*16 + x) * 4
		return level[i : i+4]
	}
	assert.Equal(t, float32(1), v(8, 11, 8)[3])
	assert.Equal(t, float32(0), v(8, 8, 8)[3])

	mk := func(name string) gfx.Texture {
		tex, err := d.CreateTexture(gfx.TextureDesc{Name: name, Kind: gfx.Texture2D, Format: gfx.FormatRGBA32F, Width: 1, Height: 1})
		require.NoError(t, err)
		return tex
	}
	albedo, normal, position, gi := mk("albedo"), mk("normal"), mk("position"), mk("gi")
	require.NoError(t, d.ClearTexture(normal, [4]float32{0, 1, 0, 0}))
	require.NoError(t, d.ClearTexture(position, [4]float32{0, 0, 0, 1}))

	var params [gfx.MaxCascades]gfx.CascadeParams
	params[0] = cascade
	require.NoError(t, d.Execute(gfx.PassDesc{
		Pass:      gfx.PassConeTrace,
		Targets:   []gfx.Texture{gi},
		Inputs:    []gfx.Texture{albedo, normal, position, vol},
		Constants: gfx.ConeTraceConstants{Cascades: params, CascadeCount: 1, Strength: 1},
	}))
	out, err := d.ReadTexture(gi, 0, 0)
	require.NoError(t, err)
	assert.Greater(t, out[0], float32(0.1), "emissive ceiling lights the floor point")
	assert.Less(t, out[3], float32(1), "ceiling occludes part of the hemisphere")
}
