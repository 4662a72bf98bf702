package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/pkg/config"
)

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Scene
	cfg.Objects = []config.ObjectConfig{
		{Name: "wall", Min: [3]float32{0, 0, 0}, Max: [3]float32{1, 4, 8}, Albedo: [3]float32{1, 1, 1}, Voxelize: true},
		{Name: "glass", Min: [3]float32{3, 0, 0}, Max: [3]float32{2, 2, 2}, Alpha: 0.4},
	}
	s := New(cfg)
	require.Len(t, s.Objects, 2)

	assert.Equal(t, float32(1), s.Objects[0].Alpha, "zero alpha means opaque")
	assert.False(t, s.Objects[0].Forward())
	assert.True(t, s.Objects[1].Forward())
	assert.Equal(t, mgl32.Vec3{2, 0, 0}, s.Objects[1].Bounds.Min, "corners are sorted")
	assert.InDelta(t, 1, s.Env.SunDirection.Len(), 1e-5)

	assert.Len(t, s.Opaque(nil), 1)
	assert.Len(t, s.Translucent(nil), 1)
	assert.Len(t, s.All(nil), 2)

	b := s.Bounds()
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, b.Min)
	assert.Equal(t, mgl32.Vec3{3, 4, 8}, b.Max)
}

func TestDrawListsReuseStorage(t *testing.T) {
	s := &Scene{}
	s.Add(&Object{Name: "a", Alpha: 1}, &Object{Name: "b", Alpha: 1})
	buf := s.Opaque(nil)
	again := s.Opaque(buf)
	assert.Equal(t, &buf[0], &again[0])
}
