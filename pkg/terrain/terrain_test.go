package terrain

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
	"lumen/pkg/gfx/soft"
)

func testTerrain(t *testing.T) (*Terrain, *soft.Device) {
	t.Helper()
	dev := soft.NewDevice(logger.Discard())
	dev.SetStrict(true)
	cfg := config.DefaultConfig().Terrain
	cfg.Resolution = 32
	cfg.WorldSize = 64
	cfg.Seed = 42
	ter, err := New(dev, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(ter.Release)
	return ter, dev
}

func TestGenerationIsDeterministic(t *testing.T) {
	a, _ := testTerrain(t)
	b, _ := testTerrain(t)
	assert.Equal(t, a.heights, b.heights)
	for _, h := range a.heights {
		assert.GreaterOrEqual(t, h, float32(0))
		assert.LessOrEqual(t, h, float32(1))
	}
}

func TestMaterialThresholds(t *testing.T) {
	assert.Equal(t, SplatLowland, materialFor(0.1))
	assert.Equal(t, SplatGrass, materialFor(0.4))
	assert.Equal(t, SplatRock, materialFor(0.6))
	assert.Equal(t, SplatSnow, materialFor(0.9))
}

func TestHeightAtOutside(t *testing.T) {
	ter, _ := testTerrain(t)
	_, ok := ter.HeightAt(1000, 0)
	assert.False(t, ok)
	h, ok := ter.HeightAt(0, 0)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, h, float32(0))
}

func TestPlaceOnTerrainMatchesCPUHeights(t *testing.T) {
	ter, dev := testTerrain(t)
	positions := []mgl32.Vec4{
		{0, 99, 0, 1},
		{10.3, 0, -7.7, 1},
		{-31, 0, 31, 1},
		{500, 3, 0, 1},
	}
	in, err := dev.CreateBuffer(gfx.BufferDesc{Name: "in", Size: 16 * len(positions)})
	require.NoError(t, err)
	out, err := dev.CreateBuffer(gfx.BufferDesc{Name: "out", Size: 16 * len(positions)})
	require.NoError(t, err)

	want := make([]mgl32.Vec4, len(positions))
	copy(want, positions)
	require.NoError(t, ter.PlaceOnTerrain(out, in, positions, -1, 2))

	for i, p := range positions[:3] {
		h, ok := ter.HeightAt(want[i][0], want[i][2])
		require.True(t, ok)
		assert.InDelta(t, h+2, p[1], 1e-4, "point %d", i)
		assert.Equal(t, float32(1), p[3])
		assert.Equal(t, want[i][0], p[0])
		assert.Equal(t, want[i][2], p[2])
	}
	assert.Equal(t, float32(0), positions[3][3], "outside the terrain is rejected")
	assert.Equal(t, 1, dev.Stats().Executed(gfx.PassPlaceOnTerrain))
	assert.Equal(t, 1, dev.Stats().Readbacks)
}

func TestPlaceOnTerrainSplatChannel(t *testing.T) {
	ter, dev := testTerrain(t)
	var positions []mgl32.Vec4
	for z := -30; z <= 30; z += 6 {
		for x := -30; x <= 30; x += 6 {
			positions = append(positions, mgl32.Vec4{float32(x), 0, float32(z), 1})
		}
	}
	in, _ := dev.CreateBuffer(gfx.BufferDesc{Name: "in", Size: 16 * len(positions)})
	out, _ := dev.CreateBuffer(gfx.BufferDesc{Name: "out", Size: 16 * len(positions)})
	require.NoError(t, ter.PlaceOnTerrain(out, in, positions, SplatSnow, 0))

	for _, p := range positions {
		if p[3] == 1 {
			h, _ := ter.HeightAt(p[0], p[2])
			assert.Greater(t, h/ter.cfg.HeightScale, float32(0.5), "snow only sits on high ground")
		}
	}
}

func TestPlaceOnTerrainRejectsSmallBuffers(t *testing.T) {
	ter, dev := testTerrain(t)
	in, _ := dev.CreateBuffer(gfx.BufferDesc{Name: "in", Size: 16})
	out, _ := dev.CreateBuffer(gfx.BufferDesc{Name: "out", Size: 16})
	err := ter.PlaceOnTerrain(out, in, make([]mgl32.Vec4, 2), -1, 0)
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)
}

func TestTilesCoverTheTerrain(t *testing.T) {
	ter, _ := testTerrain(t)
	tiles := ter.Tiles()
	require.Len(t, tiles, 16)
	var area float32
	for _, tile := range tiles {
		s := tile.Bounds.Size()
		area += s[0] * s[2]
		assert.True(t, tile.Voxelize)
	}
	assert.InDelta(t, 64*64, area, 1e-2)
}

func TestScatterPropsSitOnTheSurface(t *testing.T) {
	ter, _ := testTerrain(t)
	ter.cfg.TreeDensity = 100
	ter.cfg.RockDensity = 100
	props, err := ter.ScatterProps()
	require.NoError(t, err)
	require.NotEmpty(t, props)
	for _, p := range props {
		c := p.Bounds.Center()
		h, ok := ter.HeightAt(c[0], c[2])
		require.True(t, ok)
		assert.InDelta(t, h, p.Bounds.Min[1], 1e-3, p.Name)
	}
}
