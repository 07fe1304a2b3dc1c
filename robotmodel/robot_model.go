// Package robotmodel defines the data model and the uniform query interface
// over a possibly floating-base articulated body: forward kinematics,
// Jacobians and their derivatives, joint-space inertia, bias forces,
// selection and contact information. Two back-ends implement the interface,
// a serial-tree model (kintree) and a parallel-submechanism model (submech).
package robotmodel

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/spatialmath"
)

// Limit is a closed interval.
type Limit struct {
	Min float64
	Max float64
}

// JointLimits carries the per-joint limits read from the model file.
type JointLimits struct {
	Position Limit
	Velocity Limit
	Effort   Limit
}

// JointCommand is the per-tick output of a scene, ordered by actuated joint.
type JointCommand struct {
	Names  []string
	Values []JointValue
	Time   time.Time
}

// NewJointCommand returns a zero command for the given actuated joints.
func NewJointCommand(names []string) JointCommand {
	return JointCommand{
		Names:  append([]string{}, names...),
		Values: make([]JointValue, len(names)),
	}
}

// RobotModel is the uniform query interface over an articulated body. All
// per-tick queries return ErrNotUpdated before the first successful Update.
//
// Jacobian rows are ordered (linear_xyz, angular_xyz); columns span the full
// joint ordering of the model with zeros for joints off the chain.
type RobotModel interface {
	// Configure parses the model file, applies the joint blacklist,
	// optionally injects the floating-base linkage and sizes all internal
	// buffers. On failure the model is left in its pre-configure state.
	Configure(cfg Config) error

	// Update copies the measured joint state (and, on floating-base robots,
	// the floating-base estimate) into the model and recomputes kinematics
	// and dynamics quantities.
	Update(state JointState, floatingBase *RigidBodyStateSE3) error

	// RigidBodyState returns pose, twist and spatial acceleration of tip
	// expressed in root.
	RigidBodyState(root, tip string) (RigidBodyStateSE3, error)

	// SpaceJacobian maps joint velocities to the tip twist in the root frame.
	SpaceJacobian(root, tip string) (*mat.Dense, error)

	// BodyJacobian maps joint velocities to the tip twist in the tip frame.
	BodyJacobian(root, tip string) (*mat.Dense, error)

	// JacobianDot is the time derivative of SpaceJacobian. Back-ends that
	// cannot compute it return ErrNotImplemented.
	JacobianDot(root, tip string) (*mat.Dense, error)

	// SpatialAccelerationBias returns the J̇·q̇ term for the chain.
	SpatialAccelerationBias(root, tip string) (spatialmath.SpatialAcceleration, error)

	// JointSpaceInertiaMatrix returns the symmetric positive definite mass
	// matrix in the full joint ordering.
	JointSpaceInertiaMatrix() (*mat.Dense, error)

	// BiasForces returns the Coriolis, centrifugal and gravity torques.
	BiasForces() (*mat.VecDense, error)

	// SelectionMatrix maps full joint torques to actuated ones.
	SelectionMatrix() *mat.Dense

	// CenterOfMass returns the whole-body center of mass in the model root
	// frame (the world frame when a floating base is configured).
	CenterOfMass() (r3.Vector, error)

	// CoMJacobian maps joint velocities to the linear CoM velocity.
	CoMJacobian() (*mat.Dense, error)

	// JointState returns the current state of the named joints.
	JointState(names []string) (JointState, error)

	// Limits returns the per-joint limits, indexed like JointNames.
	Limits() []JointLimits

	// ActiveContacts returns the contact set. The caller may flip Active
	// flags between ticks; SetActiveContacts replaces the flags wholesale.
	ActiveContacts() ActiveContacts
	SetActiveContacts(contacts ActiveContacts) error

	WorldFrame() string
	BaseFrame() string

	JointNames() []string
	ActuatedJointNames() []string
	JointIndex(name string) (int, error)
	NumJoints() int
	NumActuatedJoints() int

	HasLink(name string) bool
	HasJoint(name string) bool
	HasActuatedJoint(name string) bool

	// FloatingBase reports whether the virtual 6-DoF linkage is present.
	FloatingBase() bool

	// Clear releases all model state; Configure must run again before use.
	Clear()
}
