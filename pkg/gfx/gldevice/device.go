// Package gldevice implements gfx.Device on OpenGL 4.5 compute shaders.
// Every pass is one compute program mirroring the soft kernels; resources
// are immutable-storage textures and buffers created through DSA.
//
// A Device must be created and used on the goroutine that owns the GL
// context.
package gldevice

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.5-core/gl"

	"lumen/internal/logger"
	"lumen/pkg/gfx"
)

// readbackTimeout bounds the fence wait of a blocking readback, in ns.
const readbackTimeout = uint64(5e9)

type formatInfo struct {
	internal uint32
	pixel    uint32
}

var formats = map[gfx.Format]formatInfo{
	gfx.FormatRGBA8:   {gl.RGBA8, gl.RGBA},
	gfx.FormatRGBA16F: {gl.RGBA16F, gl.RGBA},
	gfx.FormatRGBA32F: {gl.RGBA32F, gl.RGBA},
	gfx.FormatR32F:    {gl.R32F, gl.RED},
}

var targets = map[gfx.TextureKind]uint32{
	gfx.Texture2D:        gl.TEXTURE_2D,
	gfx.Texture2DArray:   gl.TEXTURE_2D_ARRAY,
	gfx.Texture3D:        gl.TEXTURE_3D,
	gfx.TextureCube:      gl.TEXTURE_CUBE_MAP,
	gfx.TextureCubeArray: gl.TEXTURE_CUBE_MAP_ARRAY,
}

type texture struct {
	dev      *Device
	id       uint32
	target   uint32
	format   formatInfo
	desc     gfx.TextureDesc
	state    gfx.ResourceState
	released bool
}

func (t *texture) Name() string             { return t.desc.Name }
func (t *texture) State() gfx.ResourceState { return t.state }
func (t *texture) Desc() gfx.TextureDesc    { return t.desc }

// region returns the z offset and depth addressing one layer of a mip.
func (t *texture) region(layer, mip int) (w, h, z, depth int32) {
	mw, mh, md := t.desc.MipSize(mip)
	if t.desc.Kind == gfx.Texture3D {
		return int32(mw), int32(mh), 0, int32(md)
	}
	return int32(mw), int32(mh), int32(layer), 1
}

type buffer struct {
	dev      *Device
	id       uint32
	name     string
	size     int
	state    gfx.ResourceState
	released bool
}

func (b *buffer) Name() string             { return b.name }
func (b *buffer) State() gfx.ResourceState { return b.state }
func (b *buffer) Size() int                { return b.size }

// Device is the OpenGL compute device.
type Device struct {
	log      *logger.Logger
	programs [gfx.PassCount]*program
	linear   uint32
	boxes    uint32
	boxCap   int
	// empty is bound in place of absent probe tables; every word is -1.
	empty   uint32
	passes  [gfx.PassCount]int
	present *presenter
}

// NewDevice loads GL entry points for the current context and compiles
// every pass program.
func NewDevice(log *logger.Logger) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise OpenGL: %w", err)
	}
	d := &Device{log: log.With("gl")}
	d.log.Infof("OpenGL %s on %s", gl.GoStr(gl.GetString(gl.VERSION)), gl.GoStr(gl.GetString(gl.RENDERER)))

	gl.Enable(gl.TEXTURE_CUBE_MAP_SEAMLESS)
	for pass, src := range kernelSources {
		if src == "" {
			continue
		}
		prog, err := newComputeProgram(shaderPrelude + src)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("%s: %w", gfx.Pass(pass), err)
		}
		d.programs[pass] = prog
	}

	gl.CreateSamplers(1, &d.linear)
	gl.SamplerParameteri(d.linear, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.SamplerParameteri(d.linear, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	for _, wrap := range []uint32{gl.TEXTURE_WRAP_S, gl.TEXTURE_WRAP_T, gl.TEXTURE_WRAP_R} {
		gl.SamplerParameteri(d.linear, wrap, gl.CLAMP_TO_EDGE)
	}

	empty := []int32{-1, -1, -1, -1}
	gl.CreateBuffers(1, &d.empty)
	gl.NamedBufferStorage(d.empty, len(empty)*4, gl.Ptr(empty), 0)
	gl.CreateBuffers(1, &d.boxes)
	return d, nil
}

// Executed returns how many times pass p ran.
func (d *Device) Executed(p gfx.Pass) int {
	return d.passes[p]
}

func (d *Device) Name() string { return "gl" }

func (d *Device) CreateTexture(desc gfx.TextureDesc) (gfx.Texture, error) {
	f, ok := formats[desc.Format]
	target, kindOK := targets[desc.Kind]
	if !ok || !kindOK || desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("texture %q: %w", desc.Name, gfx.ErrInvalidResource)
	}
	if desc.Mips < 1 {
		desc.Mips = 1
	}
	t := &texture{dev: d, target: target, format: f, desc: desc, state: gfx.StateCommon}
	gl.CreateTextures(target, 1, &t.id)
	w, h := int32(desc.Width), int32(desc.Height)
	switch desc.Kind {
	case gfx.Texture2D, gfx.TextureCube:
		gl.TextureStorage2D(t.id, int32(desc.Mips), f.internal, w, h)
	case gfx.Texture3D:
		if desc.Depth <= 0 {
			gl.DeleteTextures(1, &t.id)
			return nil, fmt.Errorf("texture %q: depth %d: %w", desc.Name, desc.Depth, gfx.ErrInvalidResource)
		}
		gl.TextureStorage3D(t.id, int32(desc.Mips), f.internal, w, h, int32(desc.Depth))
	default:
		gl.TextureStorage3D(t.id, int32(desc.Mips), f.internal, w, h, int32(desc.LayerCount()))
	}
	if desc.Name != "" {
		gl.ObjectLabel(gl.TEXTURE, t.id, int32(len(desc.Name)), gl.Str(desc.Name+"\x00"))
	}
	return t, nil
}

func (d *Device) CreateBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("buffer %q: size %d: %w", desc.Name, desc.Size, gfx.ErrInvalidResource)
	}
	b := &buffer{dev: d, name: desc.Name, size: desc.Size, state: gfx.StateCommon}
	gl.CreateBuffers(1, &b.id)
	gl.NamedBufferStorage(b.id, desc.Size, nil, gl.DYNAMIC_STORAGE_BIT|gl.MAP_READ_BIT)
	return b, nil
}

func (d *Device) Release(r gfx.Resource) {
	switch v := r.(type) {
	case *texture:
		if v.dev == d && !v.released {
			gl.DeleteTextures(1, &v.id)
			v.released = true
		}
	case *buffer:
		if v.dev == d && !v.released {
			gl.DeleteBuffers(1, &v.id)
			v.released = true
		}
	}
}

// Transition records the new state. Leaving a writable state issues a
// full memory barrier so later passes and copies see compute writes.
func (d *Device) Transition(r gfx.Resource, state gfx.ResourceState) {
	var prev gfx.ResourceState
	switch v := r.(type) {
	case *texture:
		prev, v.state = v.state, state
	case *buffer:
		prev, v.state = v.state, state
	default:
		return
	}
	if prev == gfx.StateUnorderedAccess || prev == gfx.StateRenderTarget || prev == gfx.StateDepthWrite {
		gl.MemoryBarrier(gl.ALL_BARRIER_BITS)
	}
}

func (d *Device) tex(t gfx.Texture) (*texture, error) {
	tx, ok := t.(*texture)
	if !ok || tx.dev != d || tx.released {
		return nil, fmt.Errorf("texture %v: %w", t, gfx.ErrInvalidResource)
	}
	return tx, nil
}

// optTex accepts a nil texture.
func (d *Device) optTex(t gfx.Texture) (*texture, error) {
	if t == nil {
		return nil, nil
	}
	return d.tex(t)
}

func (d *Device) buf(b gfx.Buffer) (*buffer, error) {
	bf, ok := b.(*buffer)
	if !ok || bf.dev != d || bf.released {
		return nil, fmt.Errorf("buffer %v: %w", b, gfx.ErrInvalidResource)
	}
	return bf, nil
}

func (d *Device) ClearTexture(t gfx.Texture, color [4]float32) error {
	tx, err := d.tex(t)
	if err != nil {
		return err
	}
	for m := 0; m < tx.desc.Mips; m++ {
		gl.ClearTexImage(tx.id, int32(m), tx.format.pixel, gl.FLOAT, unsafe.Pointer(&color[0]))
	}
	return nil
}

func (d *Device) GenerateMips(t gfx.Texture) error {
	tx, err := d.tex(t)
	if err != nil {
		return err
	}
	gl.MemoryBarrier(gl.TEXTURE_FETCH_BARRIER_BIT | gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
	gl.GenerateTextureMipmap(tx.id)
	return nil
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
	if dt.desc.Mips != st.desc.Mips || dt.desc.Width != st.desc.Width || dt.desc.Height != st.desc.Height ||
		srcLayer+layers > st.desc.LayerCount() || dstLayer+layers > dt.desc.LayerCount() || layers < 1 {
		return fmt.Errorf("copy %s -> %s: %w", st.desc.Name, dt.desc.Name, gfx.ErrInvalidResource)
	}
	gl.MemoryBarrier(gl.TEXTURE_UPDATE_BARRIER_BIT)
	for m := 0; m < st.desc.Mips; m++ {
		w, h, _ := st.desc.MipSize(m)
		gl.CopyImageSubData(
			st.id, st.target, int32(m), 0, 0, int32(srcLayer),
			dt.id, dt.target, int32(m), 0, 0, int32(dstLayer),
			int32(w), int32(h), int32(layers))
	}
	return nil
}

func (d *Device) WriteBuffer(b gfx.Buffer, offset int, data []byte) error {
	bf, err := d.buf(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > bf.size {
		return fmt.Errorf("buffer %s: write [%d,%d) of %d: %w", bf.name, offset, offset+len(data), bf.size, gfx.ErrInvalidResource)
	}
	if len(data) == 0 {
		return nil
	}
	gl.NamedBufferSubData(bf.id, offset, len(data), gl.Ptr(data))
	return nil
}

// ReadBuffer waits on a fence for outstanding work, then maps the buffer.
func (d *Device) ReadBuffer(b gfx.Buffer) ([]byte, error) {
	bf, err := d.buf(b)
	if err != nil {
		return nil, err
	}
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT | gl.SHADER_STORAGE_BARRIER_BIT)
	if err := d.wait(); err != nil {
		return nil, err
	}
	ptr := gl.MapNamedBufferRange(bf.id, 0, bf.size, gl.MAP_READ_BIT)
	if ptr == nil {
		return nil, fmt.Errorf("buffer %s: map failed", bf.name)
	}
	out := make([]byte, bf.size)
	copy(out, unsafe.Slice((*byte)(ptr), bf.size))
	gl.UnmapNamedBuffer(bf.id)
	return out, nil
}

func (d *Device) wait() error {
	sync := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	defer gl.DeleteSync(sync)
	switch gl.ClientWaitSync(sync, gl.SYNC_FLUSH_COMMANDS_BIT, readbackTimeout) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return nil
	}
	return fmt.Errorf("readback fence timed out")
}

func (d *Device) subresource(t gfx.Texture, layer, mip int) (*texture, int, error) {
	tx, err := d.tex(t)
	if err != nil {
		return nil, 0, err
	}
	if layer < 0 || layer >= tx.desc.LayerCount() || mip < 0 || mip >= tx.desc.Mips {
		return nil, 0, fmt.Errorf("texture %s layer %d mip %d: %w", tx.desc.Name, layer, mip, gfx.ErrInvalidResource)
	}
	w, h, _, depth := tx.region(layer, mip)
	return tx, int(w*h*depth) * gfx.Channels(tx.desc.Format), nil
}

func (d *Device) WriteTexture(t gfx.Texture, layer, mip int, data []float32) error {
	tx, n, err := d.subresource(t, layer, mip)
	if err != nil {
		return err
	}
	if len(data) != n {
		return fmt.Errorf("texture %s: %d floats, want %d: %w", tx.desc.Name, len(data), n, gfx.ErrInvalidResource)
	}
	w, h, z, depth := tx.region(layer, mip)
	gl.TextureSubImage3D(tx.id, int32(mip), 0, 0, z, w, h, depth, tx.format.pixel, gl.FLOAT, gl.Ptr(data))
	return nil
}

func (d *Device) ReadTexture(t gfx.Texture, layer, mip int) ([]float32, error) {
	tx, n, err := d.subresource(t, layer, mip)
	if err != nil {
		return nil, err
	}
	gl.MemoryBarrier(gl.TEXTURE_UPDATE_BARRIER_BIT)
	out := make([]float32, n)
	w, h, z, depth := tx.region(layer, mip)
	gl.GetTextureSubImage(tx.id, int32(mip), 0, 0, z, w, h, depth, tx.format.pixel, gl.FLOAT, int32(4*n), gl.Ptr(out))
	return out, nil
}

func (d *Device) Execute(p gfx.PassDesc) error {
	if p.Pass < 0 || p.Pass >= gfx.PassCount || d.programs[p.Pass] == nil || binders[p.Pass] == nil {
		return fmt.Errorf("pass %d: %w", p.Pass, gfx.ErrUnsupportedPass)
	}
	prog := d.programs[p.Pass]
	groups, err := binders[p.Pass](d, prog, p)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Pass, err)
	}
	gl.UseProgram(prog.id)
	if groups[0] > 0 && groups[1] > 0 && groups[2] > 0 {
		gl.DispatchCompute(groups[0], groups[1], groups[2])
	}
	d.passes[p.Pass]++
	return nil
}

// Close deletes the programs and device-owned objects. Textures and
// buffers handed out stay owned by their creators.
func (d *Device) Close() {
	if d.present != nil {
		d.present.close()
		d.present = nil
	}
	for i, prog := range d.programs {
		if prog != nil {
			gl.DeleteProgram(prog.id)
			d.programs[i] = nil
		}
	}
	if d.linear != 0 {
		gl.DeleteSamplers(1, &d.linear)
	}
	for _, id := range []*uint32{&d.boxes, &d.empty} {
		if *id != 0 {
			gl.DeleteBuffers(1, id)
			*id = 0
		}
	}
}
