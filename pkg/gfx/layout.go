package gfx

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Buffers are little-endian, tightly packed 32-bit words.

// PackFloats encodes float32 words.
func PackFloats(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// UnpackFloats decodes float32 words.
func UnpackFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// PackInts encodes int32 words.
func PackInts(v []int32) []byte {
	out := make([]byte, 4*len(v))
	for i, n := range v {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(n))
	}
	return out
}

// UnpackInts decodes int32 words.
func UnpackInts(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// PackVec4s encodes vec4 records.
func PackVec4s(v []mgl32.Vec4) []byte {
	out := make([]byte, 16*len(v))
	for i, p := range v {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(out[16*i+4*c:], math.Float32bits(p[c]))
		}
	}
	return out
}

// UnpackVec4s decodes vec4 records.
func UnpackVec4s(b []byte) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, len(b)/16)
	for i := range out {
		for c := 0; c < 4; c++ {
			out[i][c] = math.Float32frombits(binary.LittleEndian.Uint32(b[16*i+4*c:]))
		}
	}
	return out
}
