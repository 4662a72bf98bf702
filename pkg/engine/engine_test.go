package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
	"lumen/pkg/illumination"
)

func smallConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Graphics.Device = DeviceSoft
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
	cfg.Terrain.Enabled = false
	cfg.Scene.PlaceOnTerrain = false
	cfg.Scene.BoundsMin = [3]float32{-16, 0, -16}
	cfg.Scene.BoundsMax = [3]float32{16, 0, 16}
	cfg.Scene.DiffuseProbeSpacing = 16
	cfg.Scene.SpecularProbeSpacing = 16
	cfg.Scene.GlobalProbePosition = [3]float32{0, 20, 0}
	cfg.Scene.CameraPosition = [3]float32{0, 8, -14}
	cfg.Scene.CameraPitch = -20
	cfg.Scene.Objects = []config.ObjectConfig{
		{Name: "floor", Min: [3]float32{-16, -1, -16}, Max: [3]float32{16, 0, 16}, Albedo: [3]float32{0.6, 0.6, 0.6}, Roughness: 0.9, Alpha: 1, Voxelize: true},
		{Name: "wall", Min: [3]float32{-4, 0, 2}, Max: [3]float32{4, 6, 3}, Albedo: [3]float32{0.8, 0.2, 0.2}, Roughness: 0.7, Alpha: 1, Voxelize: true},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestFlyCameraMoves(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Scene.CameraYaw = 0
	cfg.Scene.CameraPitch = 0
	cfg.Camera.MoveSpeed = 2
	c := NewFlyCamera(cfg)
	start := c.Position

	assert.False(t, c.Update(1, Controls{}))
	assert.Equal(t, start, c.Position)

	require.True(t, c.Update(0.5, Controls{Forward: true}))
	assert.InDelta(t, start.Z()+1, c.Position.Z(), 1e-5)

	c.Position = start
	c.Update(0.5, Controls{Forward: true, Sprint: true})
	assert.InDelta(t, start.Z()+2.5, c.Position.Z(), 1e-5)

	c.Position = start
	c.Update(1, Controls{Up: true})
	assert.InDelta(t, start.Y()+2, c.Position.Y(), 1e-5)

	c.Position = start
	c.Update(1, Controls{Forward: true, Back: true})
	assert.Equal(t, start, c.Position)
}

func TestFlyCameraPitchIsClamped(t *testing.T) {
	c := NewFlyCamera(smallConfig(t))
	c.Sensitivity = 0.01

	c.Update(0, Controls{Look: [2]float64{0, -1e6}})
	assert.InDelta(t, maxPitch, c.Pitch, 1e-6)
	c.Update(0, Controls{Look: [2]float64{0, 1e6}})
	assert.InDelta(t, -maxPitch, c.Pitch, 1e-6)

	yaw := c.Yaw
	c.Update(0, Controls{Look: [2]float64{10, 0}})
	assert.InDelta(t, yaw-0.1, c.Yaw, 1e-5)

	cam := c.Camera(4.0 / 3.0)
	assert.Equal(t, c.Position, cam.Position)
	assert.InDelta(t, 1, cam.Forward.Len(), 1e-5)
	assert.Less(t, cam.Forward.Dot(mgl32.Vec3{0, 1, 0}), float32(0))
}

func TestTogglesApply(t *testing.T) {
	d := illumination.DebugContext{GIEnabled: true}
	assert.False(t, Toggles{}.Any())
	assert.Equal(t, d, Toggles{}.Apply(d))

	d = Toggles{GI: true}.Apply(d)
	assert.False(t, d.GIEnabled)
	d = Toggles{GI: true, VoxelView: true}.Apply(d)
	assert.True(t, d.GIEnabled)
	assert.True(t, d.VoxelView)

	d = Toggles{IndirectOnly: true}.Apply(d)
	assert.True(t, d.IndirectOnly)
	d = Toggles{DirectOnly: true}.Apply(d)
	assert.True(t, d.DirectOnly)
	assert.False(t, d.IndirectOnly, "direct-only clears indirect-only")
	d = Toggles{DirectOnly: true}.Apply(d)
	assert.False(t, d.DirectOnly)
}

func TestHeadlessRunAndSnapshot(t *testing.T) {
	cfg := smallConfig(t)
	e, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Run(2))
	assert.Equal(t, 2, e.Frames())
	assert.True(t, e.Debug().GIEnabled)

	require.NoError(t, e.Step(0.1, Controls{Forward: true}, Toggles{IndirectOnly: true}))
	assert.Equal(t, 3, e.Frames())
	assert.True(t, e.Debug().IndirectOnly)

	path := filepath.Join(t.TempDir(), "frame.webp")
	require.NoError(t, e.Snapshot(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestUnknownDevice(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Graphics.Device = "vulkan"
	_, err := New(cfg, logger.Discard())
	assert.ErrorContains(t, err, "vulkan")
}

func TestColliderResolve(t *testing.T) {
	box := gfx.Box{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{2, 2, 2}}
	c := Collider{Radius: 0.5}

	far := mgl32.Vec3{5, 1, 1}
	assert.Equal(t, far, c.Resolve(far, []gfx.Box{box}))
	assert.True(t, c.IsPositionValid(far, []gfx.Box{box}))

	near := mgl32.Vec3{2.25, 1, 1}
	assert.False(t, c.IsPositionValid(near, []gfx.Box{box}))
	got := c.Resolve(near, []gfx.Box{box})
	assert.InDelta(t, 2.5, got.X(), 1e-5)

	inside := mgl32.Vec3{1, 1.9, 1}
	got = c.Resolve(inside, []gfx.Box{box})
	assert.InDelta(t, 2.5, got.Y(), 1e-5, "leaves through the nearest face")
	assert.True(t, c.IsPositionValid(got, []gfx.Box{box}))

	assert.Equal(t, inside, Collider{}.Resolve(inside, []gfx.Box{box}))
}

func TestStepKeepsCameraOutOfWalls(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Scene.CameraPosition = [3]float32{0, 3, 1}
	cfg.Scene.CameraPitch = 0
	cfg.Camera.MoveSpeed = 2
	e, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, e.Step(0.1, Controls{Forward: true}, Toggles{}))
	}
	assert.LessOrEqual(t, e.camera.Position.Z(), float32(2-cfg.Camera.CollisionRadius)+1e-4)
}
