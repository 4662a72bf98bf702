package probes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"lumen/pkg/geom"
)

// DDS constants for an uncompressed RGBA32F cubemap with mips.
const (
	ddsMagic       = 0x20534444 // "DDS "
	ddsHeaderSize  = 124
	ddsPixelSize   = 32
	ddsFourCCFloat = 116 // A32B32G32R32F

	ddsdCaps        = 0x1
	ddsdHeight      = 0x2
	ddsdWidth       = 0x4
	ddsdPixelFormat = 0x1000
	ddsdMipMapCount = 0x20000
	ddpfFourCC      = 0x4
	ddsCapsComplex  = 0x8
	ddsCapsTexture  = 0x1000
	ddsCapsMipMap   = 0x400000
	ddsCaps2Cube    = 0x200
	ddsCaps2Faces   = 0xFC00
)

type ddsPixelFormat struct {
	Size, Flags, FourCC, RGBBitCount uint32
	RMask, GMask, BMask, AMask       uint32
}

type ddsHeader struct {
	Magic             uint32
	Size, Flags       uint32
	Height, Width     uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       ddsPixelFormat
	Caps, Caps2       uint32
	Caps3, Caps4      uint32
	Reserved2         uint32
}

var errNotCubemap = errors.New("not an RGBA32F cubemap")

// CubeData is a cubemap in host memory, indexed [face][mip] with RGBA
// floats per texel.
type CubeData struct {
	Size   int
	Mips   int
	Levels [geom.CubeFaceCount][][]float32
}

func mipSize(size, mip int) int {
	return max(1, size>>mip)
}

// WriteDDS writes the cube as a DDS cubemap, faces outermost.
func WriteDDS(w io.Writer, c *CubeData) error {
	h := ddsHeader{
		Magic:       ddsMagic,
		Size:        ddsHeaderSize,
		Flags:       ddsdCaps | ddsdHeight | ddsdWidth | ddsdPixelFormat | ddsdMipMapCount,
		Height:      uint32(c.Size),
		Width:       uint32(c.Size),
		MipMapCount: uint32(c.Mips),
		PixelFormat: ddsPixelFormat{Size: ddsPixelSize, Flags: ddpfFourCC, FourCC: ddsFourCCFloat},
		Caps:        ddsCapsComplex | ddsCapsTexture | ddsCapsMipMap,
		Caps2:       ddsCaps2Cube | ddsCaps2Faces,
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf := make([]byte, 0, 4*4*c.Size*c.Size)
	for f := range c.Levels {
		for m := 0; m < c.Mips; m++ {
			buf = buf[:0]
			for _, v := range c.Levels[f][m] {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadDDS reads a cubemap written by WriteDDS.
func ReadDDS(r io.Reader) (*CubeData, error) {
	var h ddsHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != ddsMagic || h.Size != ddsHeaderSize || h.Width != h.Height || h.Width == 0 {
		return nil, fmt.Errorf("bad dds header: %w", errNotCubemap)
	}
	if h.PixelFormat.Flags&ddpfFourCC == 0 || h.PixelFormat.FourCC != ddsFourCCFloat || h.Caps2&ddsCaps2Cube == 0 {
		return nil, errNotCubemap
	}
	c := &CubeData{Size: int(h.Width), Mips: max(1, int(h.MipMapCount))}
	if c.Size > 1<<14 || c.Mips > 15 {
		return nil, fmt.Errorf("dds %dx%d with %d mips: %w", c.Size, c.Size, c.Mips, errNotCubemap)
	}
	for f := range c.Levels {
		c.Levels[f] = make([][]float32, c.Mips)
		for m := range c.Levels[f] {
			s := mipSize(c.Size, m)
			raw := make([]byte, 4*4*s*s)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, fmt.Errorf("face %d mip %d: %w", f, m, err)
			}
			level := make([]float32, 4*s*s)
			for i := range level {
				level[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
			}
			c.Levels[f][m] = level
		}
	}
	return c, nil
}
