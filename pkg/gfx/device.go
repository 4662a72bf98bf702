// Package gfx describes the graphics device capability the illumination
// subsystem consumes. Backends live in sub-packages: soft (CPU reference)
// and gldevice (OpenGL compute).
package gfx

import "errors"

var (
	// ErrUnsupportedPass is returned when a backend has no kernel for a pass.
	ErrUnsupportedPass = errors.New("unsupported pass")
	// ErrInvalidResource is returned for foreign, released or mismatched resources.
	ErrInvalidResource = errors.New("invalid resource")
)

// Format is a texel format.
type Format int

// Texel formats.
const (
	FormatRGBA8 Format = iota
	FormatRGBA16F
	FormatRGBA32F
	FormatR32F
)

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGBA16F:
		return "RGBA16F"
	case FormatRGBA32F:
		return "RGBA32F"
	case FormatR32F:
		return "R32F"
	}
	return "unknown"
}

// TextureKind is the dimensionality of a texture.
type TextureKind int

// Texture kinds.
const (
	Texture2D TextureKind = iota
	Texture2DArray
	Texture3D
	TextureCube
	TextureCubeArray
)

// Usage flags describe how a texture or buffer will be bound.
type Usage uint32

// Usage flags.
const (
	UsageShaderResource Usage = 1 << iota
	UsageRenderTarget
	UsageUnorderedAccess
	UsageDepthStencil
	UsageCopy
)

// ResourceState mirrors an explicit transition barrier state.
type ResourceState int

// Resource states.
const (
	StateCommon ResourceState = iota
	StateRenderTarget
	StateUnorderedAccess
	StateShaderResource
	StateCopySource
	StateCopyDest
	StateDepthWrite
)

var stateNames = [...]string{
	StateCommon:          "common",
	StateRenderTarget:    "render-target",
	StateUnorderedAccess: "unordered-access",
	StateShaderResource:  "shader-resource",
	StateCopySource:      "copy-source",
	StateCopyDest:        "copy-dest",
	StateDepthWrite:      "depth-write",
}

func (s ResourceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// TextureDesc describes a texture to create.
// Layers counts array slices; a cube array of N cubes has 6*N layers.
type TextureDesc struct {
	Name   string
	Kind   TextureKind
	Format Format
	Width  int
	Height int
	Depth  int
	Layers int
	Mips   int
	Usage  Usage
}

// MipSize returns the dimensions of mip level m.
func (d TextureDesc) MipSize(m int) (w, h, depth int) {
	w, h, depth = max(1, d.Width>>m), max(1, d.Height>>m), 1
	if d.Kind == Texture3D {
		depth = max(1, d.Depth>>m)
	}
	return
}

// LayerCount returns the number of array layers, at least 1.
func (d TextureDesc) LayerCount() int {
	switch d.Kind {
	case TextureCube:
		return 6
	case Texture3D, Texture2D:
		return 1
	}
	return max(1, d.Layers)
}

// BufferDesc describes a structured GPU buffer.
type BufferDesc struct {
	Name  string
	Size  int
	Usage Usage
}

// Resource is anything a device owns and tracks state for.
type Resource interface {
	Name() string
	State() ResourceState
}

// Texture is a device texture.
type Texture interface {
	Resource
	Desc() TextureDesc
}

// Buffer is a device buffer.
type Buffer interface {
	Resource
	Size() int
}

// Device is the graphics capability: resource creation, explicit state
// transitions, copies, blocking readback and pass execution.
//
// A Device is driven from a single render goroutine; none of its methods
// are safe for concurrent use.
type Device interface {
	Name() string

	CreateTexture(desc TextureDesc) (Texture, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	Release(r Resource)

	// Transition records a barrier moving r into state.
	Transition(r Resource, state ResourceState)

	ClearTexture(t Texture, color [4]float32) error
	GenerateMips(t Texture) error

	// CopySubresource copies every mip of layers [srcLayer, srcLayer+layers)
	// of src into dst starting at dstLayer. Mip chains must match in size.
	CopySubresource(dst Texture, dstLayer int, src Texture, srcLayer int, layers int) error

	WriteBuffer(b Buffer, offset int, data []byte) error
	// ReadBuffer submits outstanding work, waits on a fence and maps b
	// for reading. It blocks the caller.
	ReadBuffer(b Buffer) ([]byte, error)

	// WriteTexture uploads tightly packed RGBA float data into one layer
	// and mip. R32F textures take one float per texel.
	WriteTexture(t Texture, layer, mip int, data []float32) error
	// ReadTexture blocks and returns one layer and mip as float data.
	ReadTexture(t Texture, layer, mip int) ([]float32, error)

	Execute(p PassDesc) error
}

// Channels returns floats per texel for the format.
func Channels(f Format) int {
	if f == FormatR32F {
		return 1
	}
	return 4
}
