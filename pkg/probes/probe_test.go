package probes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/gfx/soft"
)

func testProbesConfig(t *testing.T) config.ProbesConfig {
	cfg := config.DefaultConfig().Probes
	cfg.CacheDir = t.TempDir()
	cfg.FaceSize = 8
	cfg.DiffuseSize = 4
	cfg.Far = 100
	cfg.MaxCubemapsPerAxis = 2
	cfg.Workers = 3
	return cfg
}

func testDevice() *soft.Device {
	dev := soft.NewDevice(logger.Discard())
	dev.SetStrict(true)
	return dev
}

var uniformSky = gfx.Environment{
	SunDirection: mgl32.Vec3{0, -1, 0},
	SkyColor:     mgl32.Vec3{0.3, 0.6, 0.9},
	GroundColor:  mgl32.Vec3{0.3, 0.6, 0.9},
}

func TestCacheName(t *testing.T) {
	p := NewLightProbe(Diffuse, 3, mgl32.Vec3{12.7, -3.9, 50})
	assert.Equal(t, "diffuse_probe_12_-3_50.sh", p.CacheName())

	g := NewLightProbe(Specular, GlobalIndex, mgl32.Vec3{0, 30.5, 0})
	assert.True(t, g.IsGlobal())
	assert.Equal(t, "specular_probe_0_30_0_global.dds", g.CacheName())
	assert.Equal(t, "specular", Specular.String())
}

func TestDiffuseBakeUnderUniformSky(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	s, err := NewScratch(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	p := NewLightProbe(Diffuse, 0, mgl32.Vec3{0, 2, 0})
	require.NoError(t, p.Compute(s, nil, uniformSky))
	assert.True(t, p.IsLoadedFromDisk())
	assert.Nil(t, p.Cubemap)

	for _, d := range []mgl32.Vec3{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}} {
		got := geom.EvalSH(p.SH[:], d)
		for a := 0; a < 3; a++ {
			assert.InEpsilon(t, uniformSky.SkyColor[a], got[a], 0.08)
		}
	}
	assert.FileExists(t, filepath.Join(cfg.CacheDir, p.CacheName()))
}

func TestComputeIsIdempotent(t *testing.T) {
	dev := testDevice()
	s, err := NewScratch(dev, testProbesConfig(t), logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	p := NewLightProbe(Specular, 0, mgl32.Vec3{})
	require.NoError(t, p.Compute(s, nil, uniformSky))
	first := dev.Stats()
	assert.Equal(t, geom.CubeFaceCount, first.Executed(gfx.PassProbeFace))

	require.NoError(t, p.Compute(s, nil, uniformSky))
	assert.Equal(t, first, dev.Stats(), "second compute submits nothing")
	p.Release(dev)
}

func TestSpecularCacheRoundTrip(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	s, err := NewScratch(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	box := []gfx.Box{{Min: mgl32.Vec3{2, -1, -1}, Max: mgl32.Vec3{3, 1, 1}, Albedo: mgl32.Vec3{1, 0, 0}, Emission: 2, Alpha: 1}}
	baked := NewLightProbe(Specular, 4, mgl32.Vec3{})
	require.NoError(t, baked.Compute(s, box, uniformSky))
	require.NotNil(t, baked.Cubemap)
	assert.Equal(t, s.SpecularMips(), baked.Cubemap.Desc().Mips)
	want, err := dev.ReadTexture(baked.Cubemap, geom.CubePosX, 1)
	require.NoError(t, err)

	loaded := NewLightProbe(Specular, 4, mgl32.Vec3{})
	require.True(t, loaded.LoadFromDisk(cfg.CacheDir))
	assert.Nil(t, loaded.Cubemap, "loading only stages host data")
	require.NoError(t, loaded.Upload(dev))
	require.NotNil(t, loaded.Cubemap)
	got, err := dev.ReadTexture(loaded.Cubemap, geom.CubePosX, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	passes := dev.Stats().Executed(gfx.PassProbeFace)
	require.NoError(t, loaded.Compute(s, box, uniformSky))
	assert.Equal(t, passes, dev.Stats().Executed(gfx.PassProbeFace), "a loaded probe is never baked")
}

func TestLoadFromDiskMisses(t *testing.T) {
	dir := t.TempDir()
	p := NewLightProbe(Diffuse, 0, mgl32.Vec3{1, 2, 3})
	assert.False(t, p.LoadFromDisk(dir))
	assert.False(t, p.LoadFromDisk(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, p.CacheName()), []byte("r 1 2\n"), 0644))
	assert.False(t, p.LoadFromDisk(dir), "corrupt file is a miss")
	assert.False(t, p.IsLoadedFromDisk())
}

func TestPersistFailureIsFatal(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	blocker := filepath.Join(cfg.CacheDir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	cfg.CacheDir = blocker

	s, err := NewScratch(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	p := NewLightProbe(Diffuse, 0, mgl32.Vec3{})
	err = p.Compute(s, nil, uniformSky)
	assert.ErrorIs(t, err, ErrPersist)
	assert.False(t, p.IsLoadedFromDisk())
}

func TestFaceDumps(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	cfg.DumpDir = t.TempDir()
	s, err := NewScratch(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer s.Release()

	p := NewLightProbe(Diffuse, 0, mgl32.Vec3{})
	require.NoError(t, p.Compute(s, nil, uniformSky))
	entries, err := os.ReadDir(cfg.DumpDir)
	require.NoError(t, err)
	assert.Len(t, entries, geom.CubeFaceCount)
}

func TestBakerLoadsWhatItBaked(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	b, err := NewBaker(dev, cfg, logger.Discard())
	require.NoError(t, err)
	defer b.Release()

	newProbes := func() []*LightProbe {
		var out []*LightProbe
		for i := 0; i < 7; i++ {
			out = append(out, NewLightProbe(ProbeType(i%2), i, mgl32.Vec3{float32(i) * 10, 0, 0}))
		}
		return out
	}

	first := newProbes()
	require.NoError(t, b.ComputeOrLoad(first, nil, uniformSky))
	baked := dev.Stats().Executed(gfx.PassProbeFace)
	assert.Equal(t, 7*geom.CubeFaceCount, baked)

	second := newProbes()
	require.NoError(t, b.ComputeOrLoad(second, nil, uniformSky))
	assert.Equal(t, baked, dev.Stats().Executed(gfx.PassProbeFace), "every probe came from the cache")
	for i, p := range second {
		assert.True(t, p.IsLoadedFromDisk())
		assert.Equal(t, first[i].SH, p.SH)
		if p.Type == Specular {
			assert.NotNil(t, p.Cubemap)
		}
	}
}
