package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Twist is a spatial velocity. The linear part comes first, matching the
// (linear_xyz, angular_xyz) row ordering of the Jacobians.
type Twist struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// SpatialAcceleration is the time derivative of a twist.
type SpatialAcceleration struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// Wrench is a spatial force, force first.
type Wrench struct {
	Force  r3.Vector
	Torque r3.Vector
}

// TransformTwist re-expresses a twist given in this pose's child frame in the
// parent frame: the adjoint map of the pose.
func (p Pose) TransformTwist(tw Twist) Twist {
	ang := RotateVector(p.rotation, tw.Angular)
	lin := RotateVector(p.rotation, tw.Linear).Add(p.translation.Cross(ang))
	return Twist{Linear: lin, Angular: ang}
}

// TransformAcceleration re-expresses a spatial acceleration in the parent
// frame using the same adjoint map as TransformTwist.
func (p Pose) TransformAcceleration(acc SpatialAcceleration) SpatialAcceleration {
	ang := RotateVector(p.rotation, acc.Angular)
	lin := RotateVector(p.rotation, acc.Linear).Add(p.translation.Cross(ang))
	return SpatialAcceleration{Linear: lin, Angular: ang}
}

// IsFinite reports whether all six components are finite.
func (t Twist) IsFinite() bool {
	return vectorIsFinite(t.Linear) && vectorIsFinite(t.Angular)
}

// IsFinite reports whether all six components are finite.
func (a SpatialAcceleration) IsFinite() bool {
	return vectorIsFinite(a.Linear) && vectorIsFinite(a.Angular)
}

// Slice returns the components as (linear, angular) in a single slice.
func (t Twist) Slice() []float64 {
	return []float64{t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.X, t.Angular.Y, t.Angular.Z}
}

// Slice returns the components as (linear, angular) in a single slice.
func (a SpatialAcceleration) Slice() []float64 {
	return []float64{a.Linear.X, a.Linear.Y, a.Linear.Z, a.Angular.X, a.Angular.Y, a.Angular.Z}
}

// Slice returns the components as (force, torque) in a single slice.
func (w Wrench) Slice() []float64 {
	return []float64{w.Force.X, w.Force.Y, w.Force.Z, w.Torque.X, w.Torque.Y, w.Torque.Z}
}

// TwistFromSlice builds a twist from a (linear, angular) slice of length 6.
func TwistFromSlice(v []float64) Twist {
	return Twist{
		Linear:  r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Angular: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}
}

// AccelerationFromSlice builds a spatial acceleration from a slice of length 6.
func AccelerationFromSlice(v []float64) SpatialAcceleration {
	return SpatialAcceleration{
		Linear:  r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Angular: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}
}

// WrenchFromSlice builds a wrench from a (force, torque) slice of length 6.
func WrenchFromSlice(v []float64) Wrench {
	return Wrench{
		Force:  r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Torque: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}
}
