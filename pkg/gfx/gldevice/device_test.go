package gldevice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/pkg/gfx"
)

func TestEveryPassHasAKernel(t *testing.T) {
	for p := gfx.Pass(0); p < gfx.PassCount; p++ {
		assert.NotEmpty(t, kernelSources[p], "source for %s", p)
		assert.NotNil(t, binders[p], "binder for %s", p)
		assert.Contains(t, kernelSources[p], "void main()", "%s", p)
	}
}

func TestPreludeStartsWithVersion(t *testing.T) {
	assert.True(t, strings.HasPrefix(strings.TrimSpace(shaderPrelude), "#version 450 core"))
}

func TestFormatsAndKindsAreMapped(t *testing.T) {
	for _, f := range []gfx.Format{gfx.FormatRGBA8, gfx.FormatRGBA16F, gfx.FormatRGBA32F, gfx.FormatR32F} {
		_, ok := formats[f]
		assert.True(t, ok, "%s", f)
	}
	for _, k := range []gfx.TextureKind{gfx.Texture2D, gfx.Texture2DArray, gfx.Texture3D, gfx.TextureCube, gfx.TextureCubeArray} {
		_, ok := targets[k]
		assert.True(t, ok, "kind %d", k)
	}
}

func TestGroupsRoundUp(t *testing.T) {
	assert.Equal(t, uint32(1), groups(1, tile2D))
	assert.Equal(t, uint32(1), groups(8, tile2D))
	assert.Equal(t, uint32(2), groups(9, tile2D))
	assert.Equal(t, uint32(0), groups(0, tile1D))
}

func TestConstantsTypeMismatch(t *testing.T) {
	_, err := constants[gfx.GBufferConstants](gfx.PassDesc{Constants: gfx.CompositeConstants{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, gfx.ErrInvalidResource)

	c, err := constants[gfx.UpsampleBlurConstants](gfx.PassDesc{Constants: gfx.UpsampleBlurConstants{Radius: 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Radius)
}

func TestTextureRegion(t *testing.T) {
	vol := &texture{desc: gfx.TextureDesc{Kind: gfx.Texture3D, Width: 16, Height: 16, Depth: 16, Mips: 5}}
	w, h, z, depth := vol.region(0, 1)
	assert.Equal(t, [4]int32{8, 8, 0, 8}, [4]int32{w, h, z, depth})

	cube := &texture{desc: gfx.TextureDesc{Kind: gfx.TextureCubeArray, Width: 8, Height: 8, Layers: 12, Mips: 4}}
	w, h, z, depth = cube.region(7, 2)
	assert.Equal(t, [4]int32{2, 2, 7, 1}, [4]int32{w, h, z, depth})
}
