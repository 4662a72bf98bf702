package probes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
)

// flatTerrain places every point at a fixed height, rejecting points
// outside its square.
type flatTerrain struct {
	height float32
	half   float32
	calls  int
}

func (f *flatTerrain) PlaceOnTerrain(out, in gfx.Buffer, positions []mgl32.Vec4, splatChannel int, heightDelta float32) error {
	f.calls++
	for i, p := range positions {
		if p[0] < -f.half || p[0] > f.half || p[2] < -f.half || p[2] > f.half {
			positions[i][3] = 0
			continue
		}
		positions[i] = mgl32.Vec4{p[0], f.height + heightDelta, p[2], 1}
	}
	return nil
}

func testScene() config.SceneConfig {
	sc := config.DefaultConfig().Scene
	sc.PlaceOnTerrain = false
	sc.BoundsMin = [3]float32{-100, 0, -100}
	sc.BoundsMax = [3]float32{100, 0, 100}
	sc.DiffuseProbeSpacing = 50
	sc.SpecularProbeSpacing = 50
	return sc
}

func TestVolumeOnTerrain(t *testing.T) {
	dev := testDevice()
	sc := testScene()
	sc.PlaceOnTerrain = true
	sc.ProbeHeightDelta = 2
	placer := &flatTerrain{height: 7, half: 75}

	m, err := NewVolumeManager(dev, testProbesConfig(t), sc, placer, logger.Discard())
	require.NoError(t, err)
	defer m.Release()

	assert.Equal(t, 2, placer.calls)
	g := m.DiffuseGrid()
	require.NotNil(t, g)
	assert.True(t, g.Is2D)
	assert.Equal(t, [3]int{5, 1, 5}, g.ProbeCounts)
	require.Len(t, m.DiffuseProbes(), 25)
	for _, c := range g.Cells {
		assert.Len(t, c.Probes, 4)
	}
	for _, p := range m.DiffuseProbes() {
		inside := p.Position[0] >= -75 && p.Position[0] <= 75 && p.Position[2] >= -75 && p.Position[2] <= 75
		if inside {
			assert.Equal(t, float32(9), p.Position[1])
		} else {
			assert.Equal(t, float32(0), p.Position[1], "rejected points keep their height")
		}
		assert.Contains(t, g.Cells[g.GetCellIndex(p.Position)].Probes, p.Index)
	}
}

func TestVolumeNeedsTerrainForPlacement(t *testing.T) {
	sc := testScene()
	sc.PlaceOnTerrain = true
	_, err := NewVolumeManager(testDevice(), testProbesConfig(t), sc, nil, logger.Discard())
	assert.ErrorIs(t, err, ErrTerrainMissing)
}

func TestDisabledGridsLeaveGlobalProbes(t *testing.T) {
	dev := testDevice()
	sc := testScene()
	sc.DiffuseProbeSpacing = -1
	sc.SpecularProbeSpacing = -1
	m, err := NewVolumeManager(dev, testProbesConfig(t), sc, nil, logger.Discard())
	require.NoError(t, err)
	defer m.Release()

	assert.Nil(t, m.DiffuseGrid())
	assert.Empty(t, m.SpecularProbes())
	require.NoError(t, m.ComputeOrLoadProbes(nil, uniformSky))
	assert.True(t, m.GlobalDiffuse().IsLoadedFromDisk())
	assert.NotNil(t, m.GlobalSpecular().Cubemap)

	b := m.Bindings()
	assert.False(t, b.Diffuse.Enabled)
	assert.Equal(t, int32(0), b.Diffuse.ProbeCount)
	assert.Equal(t, m.GlobalSpecular().Cubemap, b.GlobalSpecular)
	require.Len(t, b.Buffers, 6)

	raw, err := dev.ReadBuffer(b.Buffers[bufDiffuseSH])
	require.NoError(t, err)
	sh := gfx.UnpackVec4s(raw)
	require.Len(t, sh, 9)
	assert.Equal(t, m.GlobalDiffuse().SH[0], sh[0].Vec3(), "global probe sits after the grid probes")
}

func TestDenseProbesOverflowCells(t *testing.T) {
	sc := testScene()
	sc.BoundsMin = [3]float32{0, 0, 0}
	sc.BoundsMax = [3]float32{1, 1, 1}
	sc.DiffuseProbeSpacing = 1
	_, err := NewVolumeManager(testDevice(), testProbesConfig(t), sc, nil, logger.Discard())
	require.NoError(t, err, "8 corners fit a 3D cell")

	g, err := BuildGrid(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 1, false)
	require.NoError(t, err)
	positions := append(g.ProbePositions(), mgl32.Vec3{0.5, 0.5, 0.5})
	assert.ErrorIs(t, g.AssignProbesToCells(positions), ErrCellCapacity)
}

func checkPacking(t *testing.T, m *VolumeManager) {
	t.Helper()
	require.LessOrEqual(t, m.PackedCount(), m.Capacity())
	seen := map[int]bool{}
	for i, p := range m.SpecularProbes() {
		slot := m.Slot(i)
		if slot < 0 {
			continue
		}
		assert.False(t, p.Culled, "packed probe %d is inside the volume", i)
		assert.False(t, seen[slot], "slot %d used twice", slot)
		seen[slot] = true
	}
}

func TestRepackSpecularProbes(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	m, err := NewVolumeManager(dev, cfg, testScene(), nil, logger.Discard())
	require.NoError(t, err)
	defer m.Release()
	require.NoError(t, m.ComputeOrLoadProbes(nil, uniformSky))
	require.Equal(t, 8, m.Capacity())

	// 9 probes within 60 units of the origin, one more than fits.
	require.NoError(t, m.RepackSpecularProbes(mgl32.Vec3{}))
	checkPacking(t, m)
	assert.Equal(t, 8, m.PackedCount())
	copies := dev.Stats().Copies
	assert.Equal(t, 8, copies)

	require.NoError(t, m.RepackSpecularProbes(mgl32.Vec3{}))
	assert.Equal(t, copies, dev.Stats().Copies, "a still camera copies nothing")

	require.NoError(t, m.RepackSpecularProbes(mgl32.Vec3{100, 0, 100}))
	checkPacking(t, m)
	assert.Equal(t, 4, m.PackedCount())

	raw, err := dev.ReadBuffer(m.Bindings().Buffers[bufSpecularSlots])
	require.NoError(t, err)
	slots := gfx.UnpackInts(raw)
	for i := range m.SpecularProbes() {
		assert.Equal(t, int32(m.Slot(i)), slots[i])
	}
}

func TestPackingNeverExceedsCapacity(t *testing.T) {
	dev := testDevice()
	cfg := testProbesConfig(t)
	cfg.MaxCubemapsPerAxis = 1
	m, err := NewVolumeManager(dev, cfg, testScene(), nil, logger.Discard())
	require.NoError(t, err)
	defer m.Release()
	require.NoError(t, m.ComputeOrLoadProbes(nil, uniformSky))

	for step := 0; step <= 40; step++ {
		x := -150 + float32(step)*7.5
		require.NoError(t, m.RepackSpecularProbes(mgl32.Vec3{x, 0, x * 0.5}))
		checkPacking(t, m)
	}
}
