package voxel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/gfx/soft"
	"lumen/pkg/scene"
)

func testDevice() *soft.Device {
	dev := soft.NewDevice(logger.Discard())
	dev.SetStrict(true)
	return dev
}

func box(name string, min, max mgl32.Vec3) *scene.Object {
	return &scene.Object{
		Name:     name,
		Bounds:   geom.NewAABB(min, max),
		Albedo:   mgl32.Vec3{0.8, 0.8, 0.8},
		Alpha:    1,
		Voxelize: true,
	}
}

var sun = gfx.Environment{
	SunDirection: mgl32.Vec3{0, -1, 0},
	SunColor:     mgl32.Vec3{1, 1, 1},
	SunIntensity: 2,
}

func TestRecenterOnlyWhenLeavingTheVolume(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{{SizeTexels: 256, WorldScale: 2}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()
	c := s.Cascade(0)
	assert.Equal(t, float32(64), c.HalfExtent())

	assert.Zero(t, s.RecenterIfNeeded(mgl32.Vec3{64, 0, 0}), "the boundary is inside")
	assert.Equal(t, 1, s.RecenterIfNeeded(mgl32.Vec3{70, 0, 0}))
	assert.Equal(t, mgl32.Vec3{70, 0, 0}, c.Anchor)
	assert.True(t, c.Dirty())

	for _, x := range []float32{70, 6, 134, 100, 40} {
		assert.Zero(t, s.RecenterIfNeeded(mgl32.Vec3{x, 0, 0}), "x=%g", x)
	}
	assert.Equal(t, 1, s.Recenters())
}

func TestWalkingTriggersOneRecenter(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{{SizeTexels: 256, WorldScale: 2}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	for x := float32(0); x <= 70; x += 0.5 {
		s.RecenterIfNeeded(mgl32.Vec3{x, 0, 0})
	}
	assert.Equal(t, 1, s.Recenters())
	assert.Equal(t, float32(64.5), s.Cascade(0).Anchor[0])
}

func TestFinestCascadeWins(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{
		{SizeTexels: 16, WorldScale: 1},
		{SizeTexels: 16, WorldScale: 0.25},
	}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	// cascade 1 spans [4, 68] on X and only clips the object
	s.Cascade(1).Anchor = mgl32.Vec3{36, 0, 0}

	inner := box("inner", mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{5, 5, 5})
	far := box("far", mgl32.Vec3{40, -1, -1}, mgl32.Vec3{42, 1, 1})
	away := box("away", mgl32.Vec3{200, 0, 0}, mgl32.Vec3{201, 1, 1})
	s.CullObjectsAgainstCascades([]*scene.Object{inner, far, away})

	assert.True(t, s.Cascade(0).Contains(inner))
	assert.False(t, s.Cascade(1).Contains(inner))
	assert.True(t, s.Cascade(1).Contains(far))
	assert.Equal(t, []*scene.Object{far}, s.Cascade(1).Members())
	for i := 0; i < s.Count(); i++ {
		assert.False(t, s.Cascade(i).Contains(away))
	}
}

func TestFinestCascadeInvariantAlongAPath(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{
		{SizeTexels: 16, WorldScale: 1},
		{SizeTexels: 16, WorldScale: 0.5},
		{SizeTexels: 16, WorldScale: 0.125},
	}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	var objects []*scene.Object
	for i := 0; i < 40; i++ {
		x := float32(i*7%90) - 45
		z := float32(i*13%70) - 35
		objects = append(objects, box("o", mgl32.Vec3{x, 0, z}, mgl32.Vec3{x + 3, 2, z + 3}))
	}
	for step := 0; step < 30; step++ {
		cam := mgl32.Vec3{float32(step) * 4, 0, float32(step) * -2}
		s.RecenterIfNeeded(cam)
		s.CullObjectsAgainstCascades(objects)
		for _, o := range objects {
			held := 0
			for i := 0; i < s.Count(); i++ {
				if s.Cascade(i).Contains(o) {
					held++
				}
			}
			require.LessOrEqual(t, held, 1, "step %d", step)
		}
	}
}

func TestMembershipChangeMarksDirty(t *testing.T) {
	dev := testDevice()
	s, err := NewCascadeSet(dev, []config.CascadeConfig{{SizeTexels: 8, WorldScale: 1}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	o := box("o", mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	s.CullObjectsAgainstCascades([]*scene.Object{o})
	require.NoError(t, s.Voxelize(0, sun))
	assert.False(t, s.Cascade(0).Dirty())

	s.CullObjectsAgainstCascades([]*scene.Object{o})
	assert.False(t, s.Cascade(0).Dirty(), "same members")

	s.CullObjectsAgainstCascades(nil)
	assert.True(t, s.Cascade(0).Dirty())
	assert.Empty(t, s.Cascade(0).Members())
}

func TestMembersSurviveTheNextCull(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{{SizeTexels: 8, WorldScale: 1}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	a := box("a", mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{0, 0, 0})
	b := box("b", mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	s.CullObjectsAgainstCascades([]*scene.Object{a, b})
	before := s.Cascade(0).Members()
	require.Equal(t, []*scene.Object{a, b}, before)

	s.CullObjectsAgainstCascades([]*scene.Object{b})
	assert.Equal(t, []*scene.Object{a, b}, before)
	assert.Equal(t, []*scene.Object{b}, s.Cascade(0).Members())
}

func TestVolumesKeepEmissiveRadianceAboveOne(t *testing.T) {
	dev := testDevice()
	s, err := NewCascadeSet(dev, []config.CascadeConfig{{SizeTexels: 8, WorldScale: 1}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()
	vol := s.Cascade(0).Volume
	assert.Equal(t, gfx.FormatRGBA16F, vol.Desc().Format)

	lamp := box("lamp", mgl32.Vec3{-2, -2, -2}, mgl32.Vec3{2, 2, 2})
	lamp.Albedo = mgl32.Vec3{1, 1, 1}
	lamp.Emission = 4
	s.CullObjectsAgainstCascades([]*scene.Object{lamp})
	require.NoError(t, s.Voxelize(0, gfx.Environment{}))

	texels, err := dev.ReadTexture(vol, 0, 0)
	require.NoError(t, err)
	// voxel (4,4,4) sits at the volume centre, inside the lamp
	i := ((4*8+4)*8 + 4) * 4
	assert.InDelta(t, 4, texels[i], 1e-4)
	assert.Equal(t, float32(1), texels[i+3])
}

func TestVoxelizeSkipsObjectsWithoutVoxelization(t *testing.T) {
	dev := testDevice()
	s, err := NewCascadeSet(dev, []config.CascadeConfig{{SizeTexels: 16, WorldScale: 1}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	solid := box("solid", mgl32.Vec3{-6, -6, -6}, mgl32.Vec3{-2, -2, -2})
	ghost := box("ghost", mgl32.Vec3{2, 2, 2}, mgl32.Vec3{6, 6, 6})
	ghost.Voxelize = false
	s.CullObjectsAgainstCascades([]*scene.Object{solid, ghost})
	require.Len(t, s.Cascade(0).Members(), 2)

	require.NoError(t, s.Voxelize(0, sun))
	vol := s.Cascade(0).Volume
	assert.Equal(t, gfx.StateShaderResource, vol.State())
	assert.Equal(t, 1, dev.Stats().Executed(gfx.PassVoxelize))

	texels, err := dev.ReadTexture(vol, 0, 0)
	require.NoError(t, err)
	alpha := func(x, y, z int) float32 {
		return texels[((z*16+y)*16+x)*4+3]
	}
	// world -4 and +4 are voxels 4 and 12 with the volume starting at -8
	assert.Equal(t, float32(1), alpha(4, 4, 4))
	assert.Equal(t, float32(0), alpha(12, 12, 12))

	top, err := dev.ReadTexture(vol, 0, vol.Desc().Mips-1)
	require.NoError(t, err)
	assert.Greater(t, top[3], float32(0), "coverage reaches the last mip")
}

func TestVoxelizeClearsStaleVoxels(t *testing.T) {
	dev := testDevice()
	s, err := NewCascadeSet(dev, []config.CascadeConfig{{SizeTexels: 8, WorldScale: 1}}, mgl32.Vec3{}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	s.CullObjectsAgainstCascades([]*scene.Object{box("o", mgl32.Vec3{-2, -2, -2}, mgl32.Vec3{2, 2, 2})})
	require.NoError(t, s.Voxelize(0, sun))
	s.CullObjectsAgainstCascades(nil)
	require.NoError(t, s.Voxelize(0, sun))

	texels, err := dev.ReadTexture(s.Cascade(0).Volume, 0, 0)
	require.NoError(t, err)
	for i := 3; i < len(texels); i += 4 {
		require.Zero(t, texels[i])
	}
}

func TestParamsFillFixedArray(t *testing.T) {
	s, err := NewCascadeSet(testDevice(), []config.CascadeConfig{
		{SizeTexels: 8, WorldScale: 1},
		{SizeTexels: 8, WorldScale: 0.5},
	}, mgl32.Vec3{1, 2, 3}, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	params, n := s.Params()
	assert.Equal(t, 2, n)
	assert.Equal(t, gfx.CascadeParams{Anchor: mgl32.Vec3{1, 2, 3}, WorldScale: 0.5, Size: 8}, params[1])
	assert.Equal(t, gfx.CascadeParams{}, params[2])
	assert.Len(t, s.Volumes(), 2)
}

func TestNewCascadeSetRejectsBadConfig(t *testing.T) {
	dev := testDevice()
	_, err := NewCascadeSet(dev, nil, mgl32.Vec3{}, logger.Discard())
	assert.Error(t, err)
	_, err = NewCascadeSet(dev, make([]config.CascadeConfig, gfx.MaxCascades+1), mgl32.Vec3{}, logger.Discard())
	assert.Error(t, err)
	_, err = NewCascadeSet(dev, []config.CascadeConfig{{SizeTexels: 8, WorldScale: 0}}, mgl32.Vec3{}, logger.Discard())
	assert.Error(t, err)
	assert.Zero(t, dev.Stats().Textures)
}
