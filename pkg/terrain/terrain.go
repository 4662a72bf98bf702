// Package terrain generates a noise heightmap, answers height queries on
// the CPU and snaps batches of points onto the surface through the device.
package terrain

import (
	"fmt"
	"math"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/logger"
	"lumen/internal/noise"
	"lumen/internal/util"
	"lumen/pkg/config"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
	"lumen/pkg/scene"
)

// Splat channels of the material mask.
const (
	SplatLowland = iota
	SplatGrass
	SplatRock
	SplatSnow
)

var materialAlbedo = [4]mgl32.Vec3{
	SplatLowland: {0.22, 0.27, 0.2},
	SplatGrass:   {0.3, 0.48, 0.2},
	SplatRock:    {0.45, 0.42, 0.4},
	SplatSnow:    {0.9, 0.9, 0.95},
}

// Terrain is a square heightmap centred on the world origin.
type Terrain struct {
	log    *logger.Logger
	dev    gfx.Device
	cfg    config.TerrainConfig
	noise  *noise.Generator
	seed   int64
	res    int
	origin mgl32.Vec2

	heights   []float32 // normalized elevation, row-major by z
	materials []int

	heightTex gfx.Texture
	splatTex  gfx.Texture
}

// New generates the heightmap and uploads it with its splat mask.
func New(dev gfx.Device, cfg config.TerrainConfig, log *logger.Logger) (*Terrain, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t := &Terrain{
		log:    log.With("terrain"),
		dev:    dev,
		cfg:    cfg,
		noise:  noise.NewGenerator(seed),
		seed:   seed,
		res:    cfg.Resolution,
		origin: mgl32.Vec2{-cfg.WorldSize / 2, -cfg.WorldSize / 2},
	}
	start := time.Now()
	t.generate()
	if err := t.upload(); err != nil {
		t.Release()
		return nil, err
	}
	t.log.Infof("generated %dx%d heightmap over %.0f units in %s", t.res, t.res, cfg.WorldSize, util.Since(start))
	return t, nil
}

func (t *Terrain) generate() {
	n := t.res
	t.heights = make([]float32, n*n)
	t.materials = make([]int, n*n)
	scale := 0.1 * 128 / float64(n)
	octaves := max(1, t.cfg.Octaves)
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			wx := float64(x - n/2)
			wz := float64(z - n/2)
			e := t.noise.FBM2D(wx*scale, wz*scale, octaves, 2.0, 0.5, t.seed)
			e = (e + 1) * 0.5
			e = t.applyFeatures(e, wx, wz, scale)
			t.heights[z*n+x] = float32(e)
			t.materials[z*n+x] = materialFor(e)
		}
	}
}

// applyFeatures carves a central valley and adds ridges.
func (t *Terrain) applyFeatures(e, x, z, scale float64) float64 {
	dist := math.Sqrt(x*x+z*z) / float64(t.res) * 1.28
	valley := math.Pow(math.Max(0, 1-dist), 3) * 0.3
	e -= valley
	e += t.noise.Ridge2D(x*scale*1.5, z*scale*1.5, t.seed+123) * 0.2
	return math.Max(0, math.Min(1, e))
}

func materialFor(e float64) int {
	switch {
	case e < 0.3:
		return SplatLowland
	case e < 0.5:
		return SplatGrass
	case e < 0.7:
		return SplatRock
	}
	return SplatSnow
}

func (t *Terrain) upload() error {
	var err error
	t.heightTex, err = t.dev.CreateTexture(gfx.TextureDesc{
		Name: "terrain-height", Kind: gfx.Texture2D, Format: gfx.FormatR32F,
		Width: t.res, Height: t.res, Usage: gfx.UsageShaderResource,
	})
	if err != nil {
		return fmt.Errorf("failed to create height texture: %w", err)
	}
	t.splatTex, err = t.dev.CreateTexture(gfx.TextureDesc{
		Name: "terrain-splat", Kind: gfx.Texture2D, Format: gfx.FormatRGBA8,
		Width: t.res, Height: t.res, Usage: gfx.UsageShaderResource,
	})
	if err != nil {
		return fmt.Errorf("failed to create splat texture: %w", err)
	}
	splat := make([]float32, 4*len(t.materials))
	for i, m := range t.materials {
		splat[4*i+m] = 1
	}
	if err := t.dev.WriteTexture(t.heightTex, 0, 0, t.heights); err != nil {
		return fmt.Errorf("failed to upload heights: %w", err)
	}
	if err := t.dev.WriteTexture(t.splatTex, 0, 0, splat); err != nil {
		return fmt.Errorf("failed to upload splat mask: %w", err)
	}
	t.dev.Transition(t.heightTex, gfx.StateShaderResource)
	t.dev.Transition(t.splatTex, gfx.StateShaderResource)
	return nil
}

// Release frees the device textures.
func (t *Terrain) Release() {
	if t.heightTex != nil {
		t.dev.Release(t.heightTex)
		t.heightTex = nil
	}
	if t.splatTex != nil {
		t.dev.Release(t.splatTex)
		t.splatTex = nil
	}
}

// Bounds returns the XZ extent of the terrain and its height range.
func (t *Terrain) Bounds() geom.AABB {
	return geom.AABB{
		Min: mgl32.Vec3{t.origin[0], 0, t.origin[1]},
		Max: mgl32.Vec3{t.origin[0] + t.cfg.WorldSize, t.cfg.HeightScale, t.origin[1] + t.cfg.WorldSize},
	}
}

func (t *Terrain) texel(x, z int) float32 {
	x = util.Clamp(x, 0, t.res-1)
	z = util.Clamp(z, 0, t.res-1)
	return t.heights[z*t.res+x]
}

// HeightAt returns the world height under (x, z) using the same bilinear
// filter as the device sampler. ok is false outside the terrain.
func (t *Terrain) HeightAt(x, z float32) (float32, bool) {
	u := (x - t.origin[0]) / t.cfg.WorldSize
	v := (z - t.origin[1]) / t.cfg.WorldSize
	if u < 0 || u > 1 || v < 0 || v > 1 {
		return 0, false
	}
	fx := u*float32(t.res) - 0.5
	fz := v*float32(t.res) - 0.5
	x0, z0 := math32.Floor(fx), math32.Floor(fz)
	ix, iz := int(x0), int(z0)
	sx, sz := fx-x0, fz-z0
	top := util.Lerp(t.texel(ix, iz), t.texel(ix+1, iz), sx)
	bottom := util.Lerp(t.texel(ix, iz+1), t.texel(ix+1, iz+1), sx)
	return util.Lerp(top, bottom, sz) * t.cfg.HeightScale, true
}

// PlaceOnTerrain snaps positions onto the surface plus heightDelta. The
// batch is written to in, dispatched into out and read back with a
// blocking fence wait; positions is updated in place. w becomes 0 for
// points outside the terrain or outside splatChannel (-1 accepts all).
func (t *Terrain) PlaceOnTerrain(out, in gfx.Buffer, positions []mgl32.Vec4, splatChannel int, heightDelta float32) error {
	if len(positions) == 0 {
		return nil
	}
	need := 16 * len(positions)
	if in.Size() < need || out.Size() < need {
		return fmt.Errorf("placement buffers hold %d/%d bytes, need %d: %w", in.Size(), out.Size(), need, gfx.ErrInvalidResource)
	}
	t.dev.Transition(in, gfx.StateCopyDest)
	if err := t.dev.WriteBuffer(in, 0, gfx.PackVec4s(positions)); err != nil {
		return fmt.Errorf("failed to upload placement batch: %w", err)
	}
	t.dev.Transition(in, gfx.StateShaderResource)
	t.dev.Transition(out, gfx.StateUnorderedAccess)
	err := t.dev.Execute(gfx.PassDesc{
		Pass:      gfx.PassPlaceOnTerrain,
		Inputs:    []gfx.Texture{t.heightTex, t.splatTex},
		Buffers:   []gfx.Buffer{in},
		RWBuffers: []gfx.Buffer{out},
		Constants: gfx.PlaceOnTerrainConstants{
			Count:        len(positions),
			SplatChannel: splatChannel,
			HeightDelta:  heightDelta,
			Origin:       t.origin,
			WorldSize:    t.cfg.WorldSize,
			HeightScale:  t.cfg.HeightScale,
		},
	})
	if err != nil {
		return fmt.Errorf("placement dispatch failed: %w", err)
	}
	t.dev.Transition(out, gfx.StateCopySource)
	raw, err := t.dev.ReadBuffer(out)
	if err != nil {
		return fmt.Errorf("placement readback failed: %w", err)
	}
	copy(positions, gfx.UnpackVec4s(raw[:need]))
	return nil
}

// Tiles returns the heightmap as a field of boxes, one per TileSize
// square of texels, each rising to the tile's mean height.
func (t *Terrain) Tiles() []*scene.Object {
	step := max(1, t.cfg.TileSize)
	texel := t.cfg.WorldSize / float32(t.res)
	var tiles []*scene.Object
	for z0 := 0; z0 < t.res; z0 += step {
		for x0 := 0; x0 < t.res; x0 += step {
			var sum float32
			var counts [4]int
			n := 0
			for z := z0; z < min(z0+step, t.res); z++ {
				for x := x0; x < min(x0+step, t.res); x++ {
					sum += t.heights[z*t.res+x]
					counts[t.materials[z*t.res+x]]++
					n++
				}
			}
			dominant := 0
			for m := range counts {
				if counts[m] > counts[dominant] {
					dominant = m
				}
			}
			top := max(0.05, sum/float32(n)*t.cfg.HeightScale)
			minX := t.origin[0] + float32(x0)*texel
			minZ := t.origin[1] + float32(z0)*texel
			tiles = append(tiles, &scene.Object{
				Name: fmt.Sprintf("terrain_%d_%d", x0/step, z0/step),
				Bounds: geom.NewAABB(
					mgl32.Vec3{minX, -1, minZ},
					mgl32.Vec3{minX + float32(min(step, t.res-x0))*texel, top, minZ + float32(min(step, t.res-z0))*texel},
				),
				Albedo:    materialAlbedo[dominant],
				Roughness: 0.9,
				Alpha:     1,
				Voxelize:  true,
			})
		}
	}
	return tiles
}
