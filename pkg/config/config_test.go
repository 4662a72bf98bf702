package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	c := DefaultConfig()
	c.Illumination.Cascades = []CascadeConfig{{SizeTexels: 48, WorldScale: 1}, {SizeTexels: 64, WorldScale: 2}}
	c.Probes.MaxCubemapsPerAxis = 0
	c.Scene.DiffuseProbeSpacing = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size_texels")
	assert.Contains(t, err.Error(), "coarser")
	assert.Contains(t, err.Error(), "max_cubemaps_per_axis")
	assert.Contains(t, err.Error(), "diffuse_probe_spacing")
}

func TestValidateCascadeCount(t *testing.T) {
	c := DefaultConfig()
	c.Illumination.Cascades = nil
	assert.Error(t, c.Validate())

	c.Illumination.Cascades = make([]CascadeConfig, MaxCascades+1)
	assert.Error(t, c.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, DefaultConfig(), c)
}

func TestLoadOverridesAndReplacesLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yaml")
	yaml := `
graphics:
  device: soft
illumination:
  cascades:
    - size_texels: 32
      world_scale: 2
scene:
  diffuse_probe_spacing: -1
  bounds_min: [-10, 0, -10]
  objects:
    - name: crate
      min: [0, 0, 0]
      max: [1, 1, 1]
      voxelize: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "soft", c.Graphics.Device)
	assert.Equal(t, []CascadeConfig{{SizeTexels: 32, WorldScale: 2}}, c.Illumination.Cascades)
	assert.Equal(t, []float32{30, 120}, c.Shadows.Splits, "untouched list keeps its default")
	assert.Equal(t, float32(-1), c.Scene.DiffuseProbeSpacing)
	assert.Equal(t, [3]float32{-10, 0, -10}, c.Scene.BoundsMin)
	require.Len(t, c.Scene.Objects, 1)
	assert.True(t, c.Scene.Objects[0].Voxelize)
	assert.NoError(t, c.Validate())
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	c := DefaultConfig()
	c.Probes.CacheDir = "elsewhere"
	require.NoError(t, SaveConfig(c, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", loaded.Probes.CacheDir)
	assert.Equal(t, c.Illumination.Cascades, loaded.Illumination.Cascades)
}
