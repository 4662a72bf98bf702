package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(7, 0, 3))
	assert.Equal(t, float32(-1), Clamp(float32(-4), -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestMipCountAndPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, MipCount(1))
	assert.Equal(t, 6, MipCount(32))
	assert.Equal(t, 9, MipCount(256))
	assert.True(t, IsPowerOfTwo(64))
	assert.False(t, IsPowerOfTwo(48))
	assert.False(t, IsPowerOfTwo(0))
}

func TestCreateDirIfNotExist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateDirIfNotExist(dir))
	assert.True(t, DirExists(dir))
	require.NoError(t, CreateDirIfNotExist(dir))

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.Error(t, CreateDirIfNotExist(filepath.Join(file, "child")))
}
