// Package spatialmath implements the SE(3) algebra used by the whole-body
// control runtime: rigid poses, twists, spatial accelerations, wrenches and
// the adjoint maps that move them between frames.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// UnitQuaternionTolerance is how far the norm of a rotation quaternion may
// deviate from 1 before the pose is considered invalid.
const UnitQuaternionTolerance = 1e-6

// Pose is a rigid transformation, a rotation followed by a translation.
type Pose struct {
	rotation    quat.Number
	translation r3.Vector
}

// NewZeroPose returns the identity transformation.
func NewZeroPose() Pose {
	return Pose{rotation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and rotation.
func NewPose(point r3.Vector, rotation quat.Number) Pose {
	return Pose{rotation: rotation, translation: point}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{rotation: quat.Number{Real: 1}, translation: point}
}

// NewPoseFromRPY returns a pose rotated by the given roll/pitch/yaw angles
// (XYZ convention, as used by URDF origin elements) and then translated.
func NewPoseFromRPY(point r3.Vector, roll, pitch, yaw float64) Pose {
	return Pose{rotation: QuatFromRPY(roll, pitch, yaw), translation: point}
}

// Point returns the translation part.
func (p Pose) Point() r3.Vector {
	return p.translation
}

// Rotation returns the rotation quaternion.
func (p Pose) Rotation() quat.Number {
	return p.rotation
}

// Compose returns a*b, the pose of a frame c in frame x given b as pose of c
// in y and a as pose of y in x.
func Compose(a, b Pose) Pose {
	return Pose{
		rotation:    quat.Mul(a.rotation, b.rotation),
		translation: a.translation.Add(RotateVector(a.rotation, b.translation)),
	}
}

// Invert returns the inverse transformation.
func (p Pose) Invert() Pose {
	inv := quat.Conj(p.rotation)
	return Pose{
		rotation:    inv,
		translation: RotateVector(inv, p.translation.Mul(-1)),
	}
}

// TransformPoint maps a point given in this pose's child frame into the
// parent frame.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.translation.Add(RotateVector(p.rotation, pt))
}

// RotateVector rotates a free vector, ignoring the translation.
func (p Pose) RotateVector(v r3.Vector) r3.Vector {
	return RotateVector(p.rotation, v)
}

// IsValid reports whether all components are finite and the rotation is a
// unit quaternion within UnitQuaternionTolerance.
func (p Pose) IsValid() bool {
	if !vectorIsFinite(p.translation) {
		return false
	}
	n := quatNorm(p.rotation)
	return !math.IsNaN(n) && math.Abs(n-1) <= UnitQuaternionTolerance
}

// AlmostEqual reports whether two poses agree to within epsilon on both the
// translation and the rotation (quaternion double cover respected).
func AlmostEqual(a, b Pose, epsilon float64) bool {
	if a.translation.Sub(b.translation).Norm() > epsilon {
		return false
	}
	d := quat.Mul(quat.Conj(a.rotation), b.rotation)
	return math.Abs(math.Abs(d.Real)-1) <= epsilon
}

func vectorIsFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
