package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerlinIsDeterministic(t *testing.T) {
	g := NewGenerator(1)
	a := g.Perlin2D(3.7, -1.2, 42)
	b := NewGenerator(99).Perlin2D(3.7, -1.2, 42)
	assert.Equal(t, a, b)
}

func TestPerlinVanishesOnLattice(t *testing.T) {
	g := NewGenerator(1)
	for x := -3; x <= 3; x++ {
		assert.InDelta(t, 0, g.Perlin2D(float64(x), float64(x*2), 7), 1e-12)
	}
}

func TestFBMAndRidgeRanges(t *testing.T) {
	g := NewGenerator(5)
	for i := 0; i < 200; i++ {
		x := float64(i) * 0.37
		y := float64(i) * 0.11
		f := g.FBM2D(x, y, 4, 2, 0.5, 3)
		assert.True(t, f >= -1.5 && f <= 1.5, "fbm out of range: %v", f)
		r := g.Ridge2D(x, y, 3)
		assert.True(t, r >= 0 && r <= 1, "ridge out of range: %v", r)
	}
}

func TestRandomRange(t *testing.T) {
	g := NewGenerator(11)
	for i := 0; i < 100; i++ {
		v := g.RandomRange(-2, 3)
		assert.GreaterOrEqual(t, v, -2.0)
		assert.Less(t, v, 3.0)
	}
}
