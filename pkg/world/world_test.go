package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
	"lumen/pkg/gfx/soft"
	"lumen/pkg/probes"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Graphics.Width, cfg.Graphics.Height = 16, 12
	cfg.Illumination.Cascades = []config.CascadeConfig{
		{SizeTexels: 8, WorldScale: 1},
		{SizeTexels: 8, WorldScale: 0.25},
	}
	cfg.Probes.CacheDir = t.TempDir()
	cfg.Probes.FaceSize = 8
	cfg.Probes.DiffuseSize = 4
	cfg.Probes.Far = 60
	cfg.Probes.MaxCubemapsPerAxis = 2
	cfg.Shadows.Resolution = 16
	cfg.Shadows.Splits = []float32{10, 40}
	cfg.Terrain.Resolution = 16
	cfg.Terrain.WorldSize = 32
	cfg.Terrain.TileSize = 8
	cfg.Terrain.Seed = 7
	cfg.Terrain.TreeDensity = 100
	cfg.Terrain.RockDensity = 0
	cfg.Scene.BoundsMin = [3]float32{-16, 0, -16}
	cfg.Scene.BoundsMax = [3]float32{16, 0, 16}
	cfg.Scene.DiffuseProbeSpacing = 16
	cfg.Scene.SpecularProbeSpacing = 16
	cfg.Scene.GlobalProbePosition = [3]float32{0, 20, 0}
	cfg.Scene.CameraPosition = [3]float32{0, 8, -14}
	cfg.Scene.CameraPitch = -20
	require.NoError(t, cfg.Validate())
	return cfg
}

func testDevice() *soft.Device {
	dev := soft.NewDevice(logger.Discard())
	dev.SetStrict(true)
	return dev
}

func TestLoadAndRenderLevel(t *testing.T) {
	cfg := testConfig(t)
	dev := testDevice()
	w, err := New(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer w.Release()

	require.NotNil(t, w.Terrain)
	assert.Len(t, w.Probes.DiffuseProbes(), 9)
	for _, p := range w.Probes.DiffuseProbes() {
		h, ok := w.Terrain.HeightAt(p.Position[0], p.Position[2])
		require.True(t, ok)
		assert.InDelta(t, h+cfg.Scene.ProbeHeightDelta, p.Position[1], 1e-3, "probe %d sits above the terrain", p.Index)
	}

	require.NoError(t, w.Frame(w.Camera(), w.DefaultDebug()))
	assert.Equal(t, 1, dev.Stats().Executed(gfx.PassConeTrace))
	assert.Equal(t, len(cfg.Shadows.Splits), dev.Stats().Executed(gfx.PassShadowDepth))
	assert.Greater(t, w.Probes.PackedCount(), 0)

	texels, err := w.Illum.ReadOutput()
	require.NoError(t, err)
	lit := false
	for i := 0; i < len(texels); i += 4 {
		if texels[i]+texels[i+1]+texels[i+2] > 0 {
			lit = true
			break
		}
	}
	assert.True(t, lit)
}

func TestSecondLoadUsesTheProbeCache(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(testDevice(), cfg, logger.Discard())
	require.NoError(t, err)
	first.Release()

	dev := testDevice()
	second, err := New(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer second.Release()
	assert.Zero(t, dev.Stats().Executed(gfx.PassProbeFace), "every probe was loaded from disk")
	assert.True(t, second.Probes.GlobalDiffuse().IsLoadedFromDisk())
}

func TestPlacementWithoutTerrainFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Terrain.Enabled = false
	_, err := New(testDevice(), cfg, logger.Discard())
	assert.ErrorIs(t, err, probes.ErrTerrainMissing)
}

func TestFlatLevelWithoutShadows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Terrain.Enabled = false
	cfg.Shadows.Enabled = false
	cfg.Scene.PlaceOnTerrain = false
	cfg.Scene.DiffuseProbeSpacing = -1
	cfg.Scene.Objects = []config.ObjectConfig{
		{Name: "floor", Min: [3]float32{-10, -1, -10}, Max: [3]float32{10, 0, 10}, Albedo: [3]float32{0.5, 0.5, 0.5}, Voxelize: true},
		{Name: "lamp", Min: [3]float32{-1, 0, -1}, Max: [3]float32{1, 2, 1}, Albedo: [3]float32{1, 0.8, 0.4}, Emission: 4, Voxelize: true},
	}
	dev := testDevice()
	w, err := New(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer w.Release()

	assert.Nil(t, w.Shadows)
	assert.Nil(t, w.Probes.DiffuseGrid())
	debug := w.DefaultDebug()
	debug.VoxelView = true
	require.NoError(t, w.Frame(w.Camera(), debug))
	assert.Zero(t, dev.Stats().Executed(gfx.PassShadowDepth))
	assert.Equal(t, 1, dev.Stats().Executed(gfx.PassVoxelDebug))
}
