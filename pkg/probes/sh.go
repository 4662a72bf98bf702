package probes

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"lumen/pkg/geom"
)

// SHCoefficients is an order-2 RGB spherical harmonic expansion.
type SHCoefficients [geom.SHCoefficientCount]mgl32.Vec3

// ProjectSH projects a cube of RGBA faces, each size x size in GL face
// order, onto the SH basis. The weights are renormalised so the texel
// solid angles sum to the full sphere.
func ProjectSH(faces [][]float32, size int) (SHCoefficients, error) {
	var sh SHCoefficients
	if len(faces) != geom.CubeFaceCount {
		return sh, fmt.Errorf("sh projection needs %d faces, got %d", geom.CubeFaceCount, len(faces))
	}
	var total float32
	for face, data := range faces {
		if len(data) != size*size*4 {
			return sh, fmt.Errorf("face %d holds %d floats, want %d", face, len(data), size*size*4)
		}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dir := geom.CubeTexelDirection(face, (float32(x)+0.5)/float32(size), (float32(y)+0.5)/float32(size))
				w := geom.CubeTexelSolidAngle(x, y, size)
				i := 4 * (y*size + x)
				c := mgl32.Vec3{data[i], data[i+1], data[i+2]}.Mul(w)
				basis := geom.SHBasis(dir)
				for k := range sh {
					sh[k] = sh[k].Add(c.Mul(basis[k]))
				}
				total += w
			}
		}
	}
	norm := 4 * math32.Pi / total
	for k := range sh {
		sh[k] = sh[k].Mul(norm)
	}
	return sh, nil
}

var shChannels = [3]string{"r", "g", "b"}

// WriteSH writes one line per colour channel: the channel letter followed
// by nine coefficients in shortest round-trip form.
func WriteSH(w io.Writer, sh SHCoefficients) error {
	bw := bufio.NewWriter(w)
	for ch, name := range shChannels {
		bw.WriteString(name)
		for k := range sh {
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(float64(sh[k][ch]), 'g', -1, 32))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadSH parses the format written by WriteSH.
func ReadSH(r io.Reader) (SHCoefficients, error) {
	var sh SHCoefficients
	seen := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		ch := -1
		for i, name := range shChannels {
			if fields[0] == name {
				ch = i
			}
		}
		if ch < 0 || len(fields) != geom.SHCoefficientCount+1 {
			return sh, fmt.Errorf("malformed sh line %q", sc.Text())
		}
		for k, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return sh, fmt.Errorf("sh coefficient %d of %s: %w", k, fields[0], err)
			}
			sh[k][ch] = float32(v)
		}
		seen |= 1 << ch
	}
	if err := sc.Err(); err != nil {
		return sh, err
	}
	if seen != 0b111 {
		return sh, fmt.Errorf("sh file is missing channels")
	}
	return sh, nil
}
