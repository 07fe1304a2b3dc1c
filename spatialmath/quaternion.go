package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RotateVector applies the rotation q to the vector v.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuatFromAxisAngle returns the rotation of angle radians about the given
// (not necessarily unit) axis.
func QuatFromAxisAngle(axis r3.Vector, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	u := axis.Mul(1 / n)
	s := math.Sin(angle / 2)
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: u.X * s,
		Jmag: u.Y * s,
		Kmag: u.Z * s,
	}
}

// QuatFromRPY converts fixed-axis roll/pitch/yaw angles (the URDF origin
// convention) to a quaternion.
func QuatFromRPY(roll, pitch, yaw float64) quat.Number {
	qx := QuatFromAxisAngle(r3.Vector{X: 1}, roll)
	qy := QuatFromAxisAngle(r3.Vector{Y: 1}, pitch)
	qz := QuatFromAxisAngle(r3.Vector{Z: 1}, yaw)
	return quat.Mul(qz, quat.Mul(qy, qx))
}

// RPYFromQuat is the inverse of QuatFromRPY. At the pitch singularity the
// roll is set to zero.
func RPYFromQuat(q quat.Number) (roll, pitch, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
		yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
		return 0, pitch, yaw
	}
	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	pitch = math.Asin(sinp)
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// QuatFromEulerXYZ composes rotations about the moving x, y and z axes in
// that order: R = Rx(a)·Ry(b)·Rz(c). This is the convention of the virtual
// floating-base linkage.
func QuatFromEulerXYZ(a, b, c float64) quat.Number {
	qx := QuatFromAxisAngle(r3.Vector{X: 1}, a)
	qy := QuatFromAxisAngle(r3.Vector{Y: 1}, b)
	qz := QuatFromAxisAngle(r3.Vector{Z: 1}, c)
	return quat.Mul(qx, quat.Mul(qy, qz))
}

// EulerXYZFromQuat decomposes q into R = Rx(a)·Ry(b)·Rz(c). At the
// b = ±π/2 singularity a is set to zero.
func EulerXYZFromQuat(q quat.Number) (a, b, c float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	// entries of the rotation matrix R = Rx(a)Ry(b)Rz(c)
	r00 := 1 - 2*(y*y+z*z)
	r01 := 2 * (x*y - w*z)
	r02 := 2 * (x*z + w*y)
	r12 := 2 * (y*z - w*x)
	r22 := 1 - 2*(x*x+y*y)
	if math.Abs(r02) >= 1 {
		b = math.Copysign(math.Pi/2, r02)
		r10 := 2 * (x*y + w*z)
		r11 := 1 - 2*(x*x+z*z)
		c = math.Atan2(r10, r11)
		return 0, b, c
	}
	a = math.Atan2(-r12, r22)
	b = math.Asin(r02)
	c = math.Atan2(-r01, r00)
	return a, b, c
}

// Normalize scales q to unit norm. The zero quaternion is returned unchanged.
func Normalize(q quat.Number) quat.Number {
	n := quatNorm(q)
	if n == 0 {
		return q
	}
	return quat.Scale(1/n, q)
}

func quatNorm(q quat.Number) float64 {
	return math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}
