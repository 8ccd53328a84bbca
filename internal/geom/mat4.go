package geom

// Mat4 is a 4x4 row-major transform: m00,m01,m02,m03, m10,... The upper-left
// 3x3 block is the rotation, the fourth column the translation.
type Mat4 [16]float64

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[row*4+k] * n[k*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// ApplyPoint transforms p as a point (translation applied).
func (m Mat4) ApplyPoint(p Vec3) Vec3 {
	return Vec3{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// ApplyVector transforms v as a direction (rotation only, no translation).
func (m Mat4) ApplyVector(v Vec3) Vec3 {
	return Vec3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[4]*v.X + m[5]*v.Y + m[6]*v.Z,
		Z: m[8]*v.X + m[9]*v.Y + m[10]*v.Z,
	}
}

// Translation returns the translation column of m.
func (m Mat4) Translation() Vec3 {
	return Vec3{X: m[3], Y: m[7], Z: m[11]}
}

// BasisX returns the first rotation column (the transform of the +X axis).
func (m Mat4) BasisX() Vec3 {
	return Vec3{X: m[0], Y: m[4], Z: m[8]}
}

// BasisY returns the second rotation column.
func (m Mat4) BasisY() Vec3 {
	return Vec3{X: m[1], Y: m[5], Z: m[9]}
}

// BasisZ returns the third rotation column.
func (m Mat4) BasisZ() Vec3 {
	return Vec3{X: m[2], Y: m[6], Z: m[10]}
}
