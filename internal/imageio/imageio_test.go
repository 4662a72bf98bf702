package imageio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNRGBAClamps(t *testing.T) {
	img, err := ToNRGBA([]float32{-1, 0.5, 2, 0.1}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255, 255}, img.Pix)

	_, err = ToNRGBA(make([]float32, 3), 1, 1)
	assert.Error(t, err)
}

func TestScaleKeepsAspect(t *testing.T) {
	img, err := ToNRGBA(make([]float32, 4*4*2), 4, 2)
	require.NoError(t, err)
	out := Scale(img, 16)
	assert.Equal(t, 16, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())
}

func TestSaveWritesWebP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "frame.webp")
	data := make([]float32, 8*8*4)
	for i := range data {
		data[i] = 0.5
	}
	require.NoError(t, Save(path, data, 8, 8, 32))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 12)
	assert.Equal(t, "RIFF", string(raw[:4]))
	assert.Equal(t, "WEBP", string(raw[8:12]))
}
