package probes

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"lumen/internal/imageio"
	"lumen/internal/util"
	"lumen/pkg/geom"
	"lumen/pkg/gfx"
)

// SpecularProbeMipCount is the number of roughness levels a specular
// probe keeps, from mirror (mip 0) to fully rough.
const SpecularProbeMipCount = 5

// GlobalIndex marks the fallback probe that covers positions outside
// every grid.
const GlobalIndex = -1

// ProbeType selects how a probe is convolved, stored and cached.
type ProbeType int

// Probe types.
const (
	Diffuse ProbeType = iota
	Specular
	probeTypeCount
)

func (t ProbeType) String() string {
	if t >= 0 && t < probeTypeCount {
		return probeNames[t]
	}
	return "unknown"
}

// probeNames and probeExts hold the per-type cache naming. They stay out
// of probeKinds, whose functions build cache names themselves.
var (
	probeNames = [probeTypeCount]string{Diffuse: "diffuse", Specular: "specular"}
	probeExts  = [probeTypeCount]string{Diffuse: ".sh", Specular: ".dds"}
)

// probeKind is the per-type behaviour table.
type probeKind struct {
	load    func(p *LightProbe, path string) error
	save    func(p *LightProbe, s *Scratch, path string) error
	resolve func(p *LightProbe, s *Scratch) error
}

var probeKinds = [probeTypeCount]probeKind{
	Diffuse:  {load: loadDiffuse, save: saveDiffuse, resolve: resolveDiffuse},
	Specular: {load: loadSpecular, save: saveSpecular, resolve: resolveSpecular},
}

// LightProbe is one bakeable point sample of incoming light.
type LightProbe struct {
	Type     ProbeType
	Index    int
	Position mgl32.Vec3
	// SH holds the irradiance expansion of a diffuse probe.
	SH SHCoefficients
	// Cubemap is the prefiltered mip chain of a specular probe.
	Cubemap gfx.Texture
	// Culled is recomputed every frame for specular probes.
	Culled bool

	loaded bool
	staged *CubeData
}

// NewLightProbe creates an unbaked probe.
func NewLightProbe(t ProbeType, index int, position mgl32.Vec3) *LightProbe {
	return &LightProbe{Type: t, Index: index, Position: position}
}

// IsGlobal reports whether this is a fallback probe.
func (p *LightProbe) IsGlobal() bool { return p.Index == GlobalIndex }

// IsLoadedFromDisk reports whether the probe holds final data, either
// read from the cache or baked and persisted this session.
func (p *LightProbe) IsLoadedFromDisk() bool { return p.loaded }

// CacheName returns the file name the probe is cached under. It is keyed
// by the truncated world position.
func (p *LightProbe) CacheName() string {
	suffix := ""
	if p.IsGlobal() {
		suffix = "_global"
	}
	return fmt.Sprintf("%s_probe_%d_%d_%d%s%s",
		p.Type, int(p.Position[0]), int(p.Position[1]), int(p.Position[2]), suffix, probeExts[p.Type])
}

// LoadFromDisk reads the probe from the cache directory. It only touches
// host memory and may run on a worker goroutine; specular data is staged
// for Upload. A missing or corrupt file returns false.
func (p *LightProbe) LoadFromDisk(dir string) bool {
	if dir == "" {
		return false
	}
	if err := probeKinds[p.Type].load(p, filepath.Join(dir, p.CacheName())); err != nil {
		return false
	}
	p.loaded = true
	return true
}

// Upload moves staged cache data onto the device. It is a no-op for
// diffuse probes and for probes with nothing staged.
func (p *LightProbe) Upload(dev gfx.Device) error {
	if p.staged == nil {
		return nil
	}
	c := p.staged
	p.staged = nil
	tex, err := newProbeCube(dev, p.CacheName(), c.Size, c.Mips)
	if err != nil {
		return err
	}
	for f := range c.Levels {
		for m := 0; m < c.Mips; m++ {
			if err := dev.WriteTexture(tex, f, m, c.Levels[f][m]); err != nil {
				dev.Release(tex)
				return fmt.Errorf("upload %s face %d mip %d: %w", p.CacheName(), f, m, err)
			}
		}
	}
	dev.Transition(tex, gfx.StateShaderResource)
	p.replaceCubemap(dev, tex)
	return nil
}

func (p *LightProbe) replaceCubemap(dev gfx.Device, tex gfx.Texture) {
	if p.Cubemap != nil {
		dev.Release(p.Cubemap)
	}
	p.Cubemap = tex
}

// Release frees the probe's device texture.
func (p *LightProbe) Release(dev gfx.Device) {
	if p.Cubemap != nil {
		dev.Release(p.Cubemap)
		p.Cubemap = nil
	}
}

// Compute renders the six faces around the probe into the shared scratch
// targets, convolves them and persists the result. It does nothing when
// the probe already holds final data.
func (p *LightProbe) Compute(s *Scratch, objects []gfx.Box, env gfx.Environment) error {
	if p.loaded {
		return nil
	}
	dev := s.dev
	dev.Transition(s.Color, gfx.StateRenderTarget)
	dev.Transition(s.Depth, gfx.StateDepthWrite)
	for face := 0; face < geom.CubeFaceCount; face++ {
		err := dev.Execute(gfx.PassDesc{
			Pass:    gfx.PassProbeFace,
			Targets: []gfx.Texture{s.Color, s.Depth},
			Layer:   face,
			Objects: objects,
			Constants: gfx.ProbeFaceConstants{
				Position: p.Position,
				Near:     s.near,
				Far:      s.far,
				Env:      env,
			},
		})
		if err != nil {
			return fmt.Errorf("render face %d: %w", face, err)
		}
	}
	if err := dev.GenerateMips(s.Color); err != nil {
		return err
	}
	dev.Transition(s.Color, gfx.StateShaderResource)

	if err := probeKinds[p.Type].resolve(p, s); err != nil {
		return err
	}
	if s.dumpDir != "" {
		if err := s.dumpFaces(p); err != nil {
			s.log.Warnf("face dump for %s failed: %v", p.CacheName(), err)
		}
	}
	if s.cacheDir != "" {
		if err := util.CreateDirIfNotExist(s.cacheDir); err != nil {
			return fmt.Errorf("%s: %v: %w", p.CacheName(), err, ErrPersist)
		}
		if err := probeKinds[p.Type].save(p, s, filepath.Join(s.cacheDir, p.CacheName())); err != nil {
			return fmt.Errorf("%s: %v: %w", p.CacheName(), err, ErrPersist)
		}
	}
	p.loaded = true
	return nil
}

func resolveDiffuse(p *LightProbe, s *Scratch) error {
	dev := s.dev
	dev.Transition(s.Irradiance, gfx.StateRenderTarget)
	for face := 0; face < geom.CubeFaceCount; face++ {
		err := dev.Execute(gfx.PassDesc{
			Pass:      gfx.PassConvolve,
			Targets:   []gfx.Texture{s.Irradiance},
			Inputs:    []gfx.Texture{s.Color},
			Layer:     face,
			Constants: gfx.ConvolveConstants{Mode: gfx.ConvolveDiffuse, SourceMip: s.diffuseSourceMip},
		})
		if err != nil {
			return fmt.Errorf("diffuse convolve face %d: %w", face, err)
		}
	}
	dev.Transition(s.Irradiance, gfx.StateCopySource)
	faces := make([][]float32, geom.CubeFaceCount)
	for face := range faces {
		data, err := dev.ReadTexture(s.Irradiance, face, 0)
		if err != nil {
			return err
		}
		faces[face] = data
	}
	sh, err := ProjectSH(faces, s.Irradiance.Desc().Width)
	if err != nil {
		return err
	}
	p.SH = sh
	return nil
}

func resolveSpecular(p *LightProbe, s *Scratch) error {
	dev := s.dev
	tex, err := newProbeCube(dev, p.CacheName(), s.Color.Desc().Width, s.specularMips)
	if err != nil {
		return err
	}
	dev.Transition(tex, gfx.StateRenderTarget)
	for mip := 0; mip < s.specularMips; mip++ {
		roughness := float32(mip) / float32(max(1, s.specularMips-1))
		for face := 0; face < geom.CubeFaceCount; face++ {
			err := dev.Execute(gfx.PassDesc{
				Pass:      gfx.PassConvolve,
				Targets:   []gfx.Texture{tex},
				Inputs:    []gfx.Texture{s.Color},
				Layer:     face,
				Mip:       mip,
				Constants: gfx.ConvolveConstants{Mode: gfx.ConvolveSpecular, Roughness: roughness, SourceMip: mip},
			})
			if err != nil {
				dev.Release(tex)
				return fmt.Errorf("specular convolve face %d mip %d: %w", face, mip, err)
			}
		}
	}
	dev.Transition(tex, gfx.StateShaderResource)
	p.replaceCubemap(dev, tex)
	return nil
}

func newProbeCube(dev gfx.Device, name string, size, mips int) (gfx.Texture, error) {
	return dev.CreateTexture(gfx.TextureDesc{
		Name:   name,
		Kind:   gfx.TextureCube,
		Format: gfx.FormatRGBA16F,
		Width:  size,
		Height: size,
		Mips:   mips,
		Usage:  gfx.UsageShaderResource | gfx.UsageRenderTarget | gfx.UsageCopy,
	})
}

func loadDiffuse(p *LightProbe, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sh, err := ReadSH(f)
	if err != nil {
		return err
	}
	p.SH = sh
	return nil
}

func saveDiffuse(p *LightProbe, _ *Scratch, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSH(f, p.SH); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadSpecular(p *LightProbe, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	c, err := ReadDDS(f)
	if err != nil {
		return err
	}
	p.staged = c
	return nil
}

func saveSpecular(p *LightProbe, s *Scratch, path string) error {
	desc := p.Cubemap.Desc()
	c := &CubeData{Size: desc.Width, Mips: desc.Mips}
	s.dev.Transition(p.Cubemap, gfx.StateCopySource)
	defer s.dev.Transition(p.Cubemap, gfx.StateShaderResource)
	for f := range c.Levels {
		c.Levels[f] = make([][]float32, c.Mips)
		for m := range c.Levels[f] {
			data, err := s.dev.ReadTexture(p.Cubemap, f, m)
			if err != nil {
				return err
			}
			c.Levels[f][m] = data
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDDS(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// dumpFaces writes mip 0 of the rendered faces as WebP images.
func (s *Scratch) dumpFaces(p *LightProbe) error {
	size := s.Color.Desc().Width
	for face := 0; face < geom.CubeFaceCount; face++ {
		data, err := s.dev.ReadTexture(s.Color, face, 0)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s_face%d.webp", p.CacheName(), face)
		if err := imageio.Save(filepath.Join(s.dumpDir, name), data, size, size, 0); err != nil {
			return err
		}
	}
	return nil
}
