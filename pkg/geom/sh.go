package geom

import "github.com/go-gl/mathgl/mgl32"

// SHCoefficientCount is the number of order-2 real spherical harmonics.
const SHCoefficientCount = 9

// SHBasis evaluates the nine real SH basis functions for a unit direction
// in the usual band order: l0; l1 (y, z, x); l2 (xy, yz, 3z^2-1, xz, x^2-y^2).
func SHBasis(d mgl32.Vec3) [SHCoefficientCount]float32 {
	x, y, z := d[0], d[1], d[2]
	return [SHCoefficientCount]float32{
		0.282095,
		0.488603 * y,
		0.488603 * z,
		0.488603 * x,
		1.092548 * x * y,
		1.092548 * y * z,
		0.315392 * (3*z*z - 1),
		1.092548 * x * z,
		0.546274 * (x*x - y*y),
	}
}

// EvalSH reconstructs the RGB value stored in coeffs along direction d.
func EvalSH(coeffs []mgl32.Vec3, d mgl32.Vec3) mgl32.Vec3 {
	basis := SHBasis(d)
	var out mgl32.Vec3
	for i := 0; i < SHCoefficientCount && i < len(coeffs); i++ {
		out = out.Add(coeffs[i].Mul(basis[i]))
	}
	return out
}
