// Package noise provides deterministic gradient noise for terrain generation.
package noise

import (
	"math"
	"math/rand"
)

// Generator produces seeded noise values and random numbers.
// The random source is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a new noise generator with the given seed
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// RandomFloat returns a random float in range [0.0, 1.0)
func (g *Generator) RandomFloat() float64 {
	return g.rng.Float64()
}

// RandomRange returns a random float in range [min, max)
func (g *Generator) RandomRange(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}

// Perlin2D generates 2D Perlin noise in roughly [-1, 1]
func (g *Generator) Perlin2D(x, y float64, seed int64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	x1 := x0 + 1.0
	y1 := y0 + 1.0

	sx := fade(x - x0)
	sy := fade(y - y0)

	s := int(seed)
	g00 := gradient2D(hash(int(x0), int(y0), 0, s))
	g10 := gradient2D(hash(int(x1), int(y0), 0, s))
	g01 := gradient2D(hash(int(x0), int(y1), 0, s))
	g11 := gradient2D(hash(int(x1), int(y1), 0, s))

	dp00 := g00[0]*(x-x0) + g00[1]*(y-y0)
	dp10 := g10[0]*(x-x1) + g10[1]*(y-y0)
	dp01 := g01[0]*(x-x0) + g01[1]*(y-y1)
	dp11 := g11[0]*(x-x1) + g11[1]*(y-y1)

	return lerp(lerp(dp00, dp10, sx), lerp(dp01, dp11, sx), sy)
}

// FBM2D sums octaves of Perlin noise and normalizes the result
func (g *Generator) FBM2D(x, y float64, octaves int, lacunarity, gain float64, seed int64) float64 {
	result := 0.0
	amplitude := 1.0
	frequency := 1.0
	total := 0.0

	for i := 0; i < octaves; i++ {
		result += g.Perlin2D(x*frequency, y*frequency, seed+int64(i)) * amplitude
		total += amplitude
		amplitude *= gain
		frequency *= lacunarity
	}
	if total == 0 {
		return 0
	}
	return result / total
}

// Ridge2D generates 2D ridge noise in [0, 1] (sharp crests where Perlin crosses zero)
func (g *Generator) Ridge2D(x, y float64, seed int64) float64 {
	n := 1.0 - math.Abs(g.Perlin2D(x, y, seed))
	return n * n
}

// hash combines the coordinates and seed to create a unique hash
func hash(x, y, z, seed int) int {
	h := seed + x*374761393 + y*668265263 + z*374761393
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

// gradient2D picks one of eight lattice gradients
func gradient2D(h int) [2]float64 {
	switch h & 7 {
	case 0:
		return [2]float64{1, 0}
	case 1:
		return [2]float64{-1, 0}
	case 2:
		return [2]float64{0, 1}
	case 3:
		return [2]float64{0, -1}
	case 4:
		return [2]float64{1, 1}
	case 5:
		return [2]float64{-1, 1}
	case 6:
		return [2]float64{1, -1}
	default:
		return [2]float64{-1, -1}
	}
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// fade is the improved Perlin curve 6t^5 - 15t^4 + 10t^3
func fade(t float64) float64 {
	return t * t * t * (t*(t*6.0-15.0) + 10.0)
}
