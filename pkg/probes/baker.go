package probes

import (
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"lumen/internal/logger"
	"lumen/internal/util"
	"lumen/pkg/config"
	"lumen/pkg/gfx"
)

// Scratch holds the render targets every bake reuses: the unfiltered
// colour cube with its mip chain, the face depth cube and the small
// irradiance cube diffuse probes are projected from. One probe is in
// flight at a time, so nothing guards them.
type Scratch struct {
	Color      gfx.Texture
	Depth      gfx.Texture
	Irradiance gfx.Texture

	dev              gfx.Device
	log              *logger.Logger
	near, far        float32
	cacheDir         string
	dumpDir          string
	specularMips     int
	diffuseSourceMip int
}

// NewScratch allocates the shared bake targets.
func NewScratch(dev gfx.Device, cfg config.ProbesConfig, log *logger.Logger) (*Scratch, error) {
	s := &Scratch{
		dev:          dev,
		log:          log,
		near:         cfg.Near,
		far:          cfg.Far,
		cacheDir:     cfg.CacheDir,
		dumpDir:      cfg.DumpDir,
		specularMips: min(SpecularProbeMipCount, util.MipCount(cfg.FaceSize)),
	}
	for size := cfg.FaceSize; size > 2*cfg.DiffuseSize; size /= 2 {
		s.diffuseSourceMip++
	}
	var err error
	cube := func(name string, format gfx.Format, size, mips int, usage gfx.Usage) gfx.Texture {
		if err != nil {
			return nil
		}
		var t gfx.Texture
		t, err = dev.CreateTexture(gfx.TextureDesc{
			Name: name, Kind: gfx.TextureCube, Format: format,
			Width: size, Height: size, Mips: mips, Usage: usage,
		})
		return t
	}
	s.Color = cube("probe-color", gfx.FormatRGBA16F, cfg.FaceSize, util.MipCount(cfg.FaceSize), gfx.UsageRenderTarget|gfx.UsageShaderResource)
	s.Depth = cube("probe-depth", gfx.FormatR32F, cfg.FaceSize, 1, gfx.UsageDepthStencil)
	s.Irradiance = cube("probe-irradiance", gfx.FormatRGBA16F, cfg.DiffuseSize, 1, gfx.UsageRenderTarget|gfx.UsageCopy)
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("failed to create probe scratch targets: %w", err)
	}
	return s, nil
}

// SpecularMips returns the mip count of baked specular cubes.
func (s *Scratch) SpecularMips() int { return s.specularMips }

// Release frees the scratch targets.
func (s *Scratch) Release() {
	for _, t := range []gfx.Texture{s.Color, s.Depth, s.Irradiance} {
		if t != nil {
			s.dev.Release(t)
		}
	}
	s.Color, s.Depth, s.Irradiance = nil, nil, nil
}

// Baker loads probes from the cache in parallel and bakes the misses
// serially on the calling goroutine.
type Baker struct {
	log     *logger.Logger
	dev     gfx.Device
	cfg     config.ProbesConfig
	scratch *Scratch
	workers int
}

// NewBaker creates a baker with its scratch targets.
func NewBaker(dev gfx.Device, cfg config.ProbesConfig, log *logger.Logger) (*Baker, error) {
	log = log.With("baker")
	scratch, err := NewScratch(dev, cfg, log)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Baker{log: log, dev: dev, cfg: cfg, scratch: scratch, workers: workers}, nil
}

// Scratch returns the shared bake targets.
func (b *Baker) Scratch() *Scratch { return b.scratch }

// Release frees the scratch targets.
func (b *Baker) Release() { b.scratch.Release() }

// ComputeOrLoad runs the two bake phases. Workers each scan a contiguous
// slice of probes and only read the cache; after they join, every probe
// that missed is baked here, one at a time, because device submission is
// single-threaded. Staged cache data is uploaded in the same serial phase.
func (b *Baker) ComputeOrLoad(probes []*LightProbe, objects []gfx.Box, env gfx.Environment) error {
	start := time.Now()
	loaded := make([]bool, len(probes))
	if b.cfg.CacheDir != "" && len(probes) > 0 {
		workers := min(b.workers, len(probes))
		chunk := (len(probes) + workers - 1) / workers
		var g errgroup.Group
		for lo := 0; lo < len(probes); lo += chunk {
			hi := min(lo+chunk, len(probes))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if !probes[i].IsLoadedFromDisk() {
						loaded[i] = probes[i].LoadFromDisk(b.cfg.CacheDir)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	hits, baked := 0, 0
	for i, p := range probes {
		if loaded[i] {
			if err := p.Upload(b.dev); err != nil {
				return err
			}
			hits++
			continue
		}
		if p.IsLoadedFromDisk() {
			continue
		}
		if err := p.Compute(b.scratch, objects, env); err != nil {
			return fmt.Errorf("bake %s: %w", p.CacheName(), err)
		}
		baked++
	}
	b.log.Infof("%d probes: %d from cache, %d baked in %s", len(probes), hits, baked, util.Since(start))
	return nil
}
