package robotmodel

import (
	"time"

	"go.viam.com/wbc/spatialmath"
)

// RigidBodyStateSE3 is the full kinematic state of a rigid body: pose, twist
// and spatial acceleration, expressed in the frame named by FrameID.
type RigidBodyStateSE3 struct {
	FrameID      string
	Pose         spatialmath.Pose
	Twist        spatialmath.Twist
	Acceleration spatialmath.SpatialAcceleration
	Time         time.Time
}

// NewRigidBodyStateSE3 returns a state at the identity pose with zero motion.
func NewRigidBodyStateSE3(frameID string) RigidBodyStateSE3 {
	return RigidBodyStateSE3{FrameID: frameID, Pose: spatialmath.NewZeroPose()}
}

// HasValidPose reports whether the pose components are finite and the
// rotation is a unit quaternion within tolerance.
func (s *RigidBodyStateSE3) HasValidPose() bool {
	return s.Pose.IsValid()
}

// HasValidTwist reports whether all twist components are finite.
func (s *RigidBodyStateSE3) HasValidTwist() bool {
	return s.Twist.IsFinite()
}

// HasValidAcceleration reports whether all acceleration components are finite.
func (s *RigidBodyStateSE3) HasValidAcceleration() bool {
	return s.Acceleration.IsFinite()
}
