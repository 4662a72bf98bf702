// Package soft is a CPU implementation of gfx.Device. It is deterministic
// and needs no window or driver, so it backs headless runs and the tests.
package soft

import (
	"fmt"
	"runtime"
	"sync"

	"lumen/internal/logger"
	"lumen/internal/util"
	"lumen/pkg/gfx"
)

// Stats counts the work a Device has been asked to do.
type Stats struct {
	Passes      [gfx.PassCount]int
	Transitions int
	Copies      int
	Readbacks   int
	Textures    int
	Buffers     int
}

// Executed returns how many times pass p ran.
func (s Stats) Executed(p gfx.Pass) int {
	return s.Passes[p]
}

type texture struct {
	dev      *Device
	desc     gfx.TextureDesc
	state    gfx.ResourceState
	levels   [][][]float32 // [layer][mip]
	released bool
}

func (t *texture) Name() string { return t.desc.Name }
func (t *texture) State() gfx.ResourceState { return t.state }
func (t *texture) Desc() gfx.TextureDesc { return t.desc }
func (t *texture) channels() int { return gfx.Channels(t.desc.Format) }
func (t *texture) level(layer, mip int) []float32 { return t.levels[layer][mip] }

type buffer struct {
	dev      *Device
	name     string
	state    gfx.ResourceState
	data     []byte
	released bool
}

func (b *buffer) Name() string { return b.name }
func (b *buffer) State() gfx.ResourceState { return b.state }
func (b *buffer) Size() int { return len(b.data) }

type kernel func(d *Device, p gfx.PassDesc) error

// kernels is indexed by pass; a nil entry means the pass is unsupported.
var kernels = [gfx.PassCount]kernel{
	gfx.PassGBuffer:          runGBuffer,
	gfx.PassShadowDepth:      runShadowDepth,
	gfx.PassVoxelize:         runVoxelize,
	gfx.PassVoxelDebug:       runVoxelDebug,
	gfx.PassConeTrace:        runConeTrace,
	gfx.PassUpsampleBlur:     runUpsampleBlur,
	gfx.PassProbeFace:        runProbeFace,
	gfx.PassConvolve:         runConvolve,
	gfx.PassDeferredLighting: runDeferredLighting,
	gfx.PassForwardLighting:  runForwardLighting,
	gfx.PassComposite:        runComposite,
	gfx.PassPlaceOnTerrain:   runPlaceOnTerrain,
}

// Device is the CPU reference device.
type Device struct {
	log     *logger.Logger
	workers int
	strict  bool
	stats   Stats
}

// NewDevice creates a soft device. Row-parallel kernels use one goroutine
// per CPU.
func NewDevice(log *logger.Logger) *Device {
	return &Device{
		log:     log.With("soft"),
		workers: runtime.NumCPU(),
	}
}

// SetStrict makes Execute reject passes whose resources are not in the
// state the pass needs: targets in RenderTarget or UnorderedAccess,
// inputs in ShaderResource.
func (d *Device) SetStrict(strict bool) {
	d.strict = strict
}

// Stats returns a snapshot of the work counters.
func (d *Device) Stats() Stats {
	return d.stats
}

func (d *Device) Name() string { return "soft" }

func (d *Device) CreateTexture(desc gfx.TextureDesc) (gfx.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("texture %q: bad size %dx%d: %w", desc.Name, desc.Width, desc.Height, gfx.ErrInvalidResource)
	}
	switch desc.Kind {
	case gfx.Texture3D:
		if desc.Depth <= 0 {
			return nil, fmt.Errorf("texture %q: 3D texture needs depth: %w", desc.Name, gfx.ErrInvalidResource)
		}
	case gfx.TextureCube, gfx.TextureCubeArray:
		if desc.Width != desc.Height {
			return nil, fmt.Errorf("texture %q: cube faces must be square: %w", desc.Name, gfx.ErrInvalidResource)
		}
		if desc.Kind == gfx.TextureCubeArray && (desc.Layers <= 0 || desc.Layers%6 != 0) {
			return nil, fmt.Errorf("texture %q: cube array layers must be a multiple of 6: %w", desc.Name, gfx.ErrInvalidResource)
		}
	}
	largest := max(desc.Width, desc.Height)
	if desc.Kind == gfx.Texture3D {
		largest = max(largest, desc.Depth)
	}
	if desc.Mips <= 0 {
		desc.Mips = 1
	}
	if desc.Mips > util.MipCount(largest) {
		return nil, fmt.Errorf("texture %q: %d mips exceed chain of %d: %w", desc.Name, desc.Mips, util.MipCount(largest), gfx.ErrInvalidResource)
	}

	t := &texture{dev: d, desc: desc}
	ch := gfx.Channels(desc.Format)
	t.levels = make([][][]float32, desc.LayerCount())
	for l := range t.levels {
		t.levels[l] = make([][]float32, desc.Mips)
		for m := range t.levels[l] {
			w, h, dp := desc.MipSize(m)
			t.levels[l][m] = make([]float32, w*h*dp*ch)
		}
	}
	d.stats.Textures++
	return t, nil
}

func (d *Device) CreateBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	if desc.Size <= 0 || desc.Size%4 != 0 {
		return nil, fmt.Errorf("buffer %q: size %d must be a positive multiple of 4: %w", desc.Name, desc.Size, gfx.ErrInvalidResource)
	}
	d.stats.Buffers++
	return &buffer{dev: d, name: desc.Name, data: make([]byte, desc.Size)}, nil
}

func (d *Device) Release(r gfx.Resource) {
	switch v := r.(type) {
	case *texture:
		if v.dev == d && !v.released {
			v.released = true
			v.levels = nil
			d.stats.Textures--
		}
	case *buffer:
		if v.dev == d && !v.released {
			v.released = true
			v.data = nil
			d.stats.Buffers--
		}
	}
}

func (d *Device) Transition(r gfx.Resource, state gfx.ResourceState) {
	switch v := r.(type) {
	case *texture:
		v.state = state
	case *buffer:
		v.state = state
	default:
		return
	}
	d.stats.Transitions++
}

func (d *Device) tex(t gfx.Texture) (*texture, error) {
	v, ok := t.(*texture)
	if !ok || v == nil || v.dev != d || v.released {
		return nil, gfx.ErrInvalidResource
	}
	return v, nil
}

// optTex resolves a texture that a pass may leave unbound.
func (d *Device) optTex(t gfx.Texture) (*texture, error) {
	if t == nil {
		return nil, nil
	}
	return d.tex(t)
}

func (d *Device) buf(b gfx.Buffer) (*buffer, error) {
	v, ok := b.(*buffer)
	if !ok || v == nil || v.dev != d || v.released {
		return nil, gfx.ErrInvalidResource
	}
	return v, nil
}

func (d *Device) ClearTexture(t gfx.Texture, color [4]float32) error {
	tx, err := d.tex(t)
	if err != nil {
		return err
	}
	ch := tx.channels()
	for _, layer := range tx.levels {
		for _, data := range layer {
			for i := 0; i < len(data); i += ch {
				copy(data[i:i+ch], color[:ch])
			}
		}
	}
	return nil
}

func (d *Device) GenerateMips(t gfx.Texture) error {
	tx, err := d.tex(t)
	if err != nil {
		return err
	}
	for l := range tx.levels {
		for m := 1; m < tx.desc.Mips; m++ {
			downsample(tx, l, m)
		}
	}
	return nil
}

// downsample box-filters mip m-1 of a layer into mip m.
func downsample(tx *texture, layer, m int) {
	ch := tx.channels()
	sw, sh, sd := tx.desc.MipSize(m - 1)
	w, h, dp := tx.desc.MipSize(m)
	src := tx.levels[layer][m-1]
	dst := tx.levels[layer][m]
	for z := 0; z < dp; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var acc [4]float32
				n := 0
				for dz := 0; dz < 2; dz++ {
					zz := min(2*z+dz, sd-1)
					for dy := 0; dy < 2; dy++ {
						yy := min(2*y+dy, sh-1)
						for dx := 0; dx < 2; dx++ {
							xx := min(2*x+dx, sw-1)
							i := ((zz*sh+yy)*sw + xx) * ch
							for c := 0; c < ch; c++ {
								acc[c] += src[i+c]
							}
							n++
						}
					}
				}
				o := ((z*h+y)*w + x) * ch
				for c := 0; c < ch; c++ {
					dst[o+c] = acc[c] / float32(n)
				}
			}
		}
	}
}

func (d *Device) CopySubresource(dst gfx.Texture, dstLayer int, src gfx.Texture, srcLayer int, layers int) error {
	dt, err := d.tex(dst)
	if err != nil {
		return err
	}
	st, err := d.tex(src)
	if err != nil {
		return err
	}
	if dt.desc.Format != st.desc.Format || dt.desc.Width != st.desc.Width ||
		dt.desc.Height != st.desc.Height || dt.desc.Mips != st.desc.Mips {
		return fmt.Errorf("copy %s -> %s: mismatched subresources: %w", st.desc.Name, dt.desc.Name, gfx.ErrInvalidResource)
	}
	if dstLayer < 0 || srcLayer < 0 || dstLayer+layers > len(dt.levels) || srcLayer+layers > len(st.levels) {
		return fmt.Errorf("copy %s -> %s: layer range out of bounds: %w", st.desc.Name, dt.desc.Name, gfx.ErrInvalidResource)
	}
	for l := 0; l < layers; l++ {
		for m := range dt.levels[dstLayer+l] {
			copy(dt.levels[dstLayer+l][m], st.levels[srcLayer+l][m])
		}
	}
	d.stats.Copies++
	return nil
}

func (d *Device) WriteBuffer(b gfx.Buffer, offset int, data []byte) error {
	bf, err := d.buf(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > len(bf.data) {
		return fmt.Errorf("write %d bytes at %d into %s (%d bytes): %w", len(data), offset, bf.name, len(bf.data), gfx.ErrInvalidResource)
	}
	copy(bf.data[offset:], data)
	return nil
}

func (d *Device) ReadBuffer(b gfx.Buffer) ([]byte, error) {
	bf, err := d.buf(b)
	if err != nil {
		return nil, err
	}
	d.stats.Readbacks++
	out := make([]byte, len(bf.data))
	copy(out, bf.data)
	return out, nil
}

func (d *Device) subresource(t gfx.Texture, layer, mip int) (*texture, []float32, error) {
	tx, err := d.tex(t)
	if err != nil {
		return nil, nil, err
	}
	if layer < 0 || layer >= len(tx.levels) || mip < 0 || mip >= tx.desc.Mips {
		return nil, nil, fmt.Errorf("%s: no subresource layer %d mip %d: %w", tx.desc.Name, layer, mip, gfx.ErrInvalidResource)
	}
	return tx, tx.levels[layer][mip], nil
}

func (d *Device) WriteTexture(t gfx.Texture, layer, mip int, data []float32) error {
	tx, level, err := d.subresource(t, layer, mip)
	if err != nil {
		return err
	}
	if len(data) != len(level) {
		return fmt.Errorf("%s: upload of %d floats into %d: %w", tx.desc.Name, len(data), len(level), gfx.ErrInvalidResource)
	}
	copy(level, data)
	return nil
}

func (d *Device) ReadTexture(t gfx.Texture, layer, mip int) ([]float32, error) {
	_, level, err := d.subresource(t, layer, mip)
	if err != nil {
		return nil, err
	}
	d.stats.Readbacks++
	out := make([]float32, len(level))
	copy(out, level)
	return out, nil
}

func (d *Device) Execute(p gfx.PassDesc) error {
	if p.Pass < 0 || p.Pass >= gfx.PassCount || kernels[p.Pass] == nil {
		return fmt.Errorf("pass %d: %w", p.Pass, gfx.ErrUnsupportedPass)
	}
	if d.strict {
		if err := checkStates(p); err != nil {
			return err
		}
	}
	if err := kernels[p.Pass](d, p); err != nil {
		return fmt.Errorf("%s: %w", p.Pass, err)
	}
	d.stats.Passes[p.Pass]++
	return nil
}

func checkStates(p gfx.PassDesc) error {
	for _, t := range p.Targets {
		if t == nil {
			continue
		}
		if s := t.State(); s != gfx.StateRenderTarget && s != gfx.StateUnorderedAccess && s != gfx.StateDepthWrite {
			return fmt.Errorf("%s: target %s in state %s: %w", p.Pass, t.Name(), s, gfx.ErrInvalidResource)
		}
	}
	for _, t := range p.Inputs {
		if t == nil {
			continue
		}
		if s := t.State(); s != gfx.StateShaderResource {
			return fmt.Errorf("%s: input %s in state %s: %w", p.Pass, t.Name(), s, gfx.ErrInvalidResource)
		}
	}
	return nil
}

// parallel splits [0, n) into contiguous bands, one goroutine each.
func (d *Device) parallel(n int, fn func(lo, hi int)) {
	workers := min(d.workers, n)
	if workers <= 1 {
		fn(0, n)
		return
	}
	band := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += band {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, min(lo+band, n))
	}
	wg.Wait()
}

// needTargets and needInputs validate the bindings a kernel indexes.
func needTargets(p gfx.PassDesc, n int) error {
	if len(p.Targets) < n {
		return fmt.Errorf("needs %d targets, got %d: %w", n, len(p.Targets), gfx.ErrInvalidResource)
	}
	return nil
}

func needInputs(p gfx.PassDesc, n int) error {
	if len(p.Inputs) < n {
		return fmt.Errorf("needs %d inputs, got %d: %w", n, len(p.Inputs), gfx.ErrInvalidResource)
	}
	return nil
}

func constants[T any](p gfx.PassDesc) (T, error) {
	c, ok := p.Constants.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("constants %T, want %T: %w", p.Constants, zero, gfx.ErrInvalidResource)
	}
	return c, nil
}
