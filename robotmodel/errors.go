package robotmodel

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotUpdated is returned by all queries that run before the first
	// successful Update call.
	ErrNotUpdated = errors.New("robot model has not been updated, call Update with a valid timestamp first")

	// ErrNotImplemented is returned by back-ends that cannot satisfy a query.
	ErrNotImplemented = errors.New("not implemented by this robot model back-end")
)

// NewUnknownJointError returns an error for a joint name lookup failure.
func NewUnknownJointError(name string) error {
	return errors.Errorf("joint %q does not exist in the robot model", name)
}

// NewUnknownFrameError returns an error for a frame name lookup failure.
func NewUnknownFrameError(name string) error {
	return errors.Errorf("frame %q does not exist in the robot model", name)
}

// NewInvalidFrameError indicates a frame pair the back-end cannot serve.
func NewInvalidFrameError(root, tip string) error {
	return errors.Errorf("cannot compute kinematics from %q to %q with this back-end", root, tip)
}

// NewDimensionMismatchError reports an input whose size disagrees with the
// model sizing.
func NewDimensionMismatchError(what string, got, want int) error {
	return errors.Errorf("%s has %d elements, robot model expects %d", what, got, want)
}

// NewInvalidJointStateError wraps a joint state validation failure.
func NewInvalidJointStateError(reason string) error {
	return errors.Errorf("invalid joint state: %s", reason)
}

// NewNumericError reports a non-finite value in an output or intermediate.
func NewNumericError(where string) error {
	return errors.Errorf("non-finite value encountered in %s", where)
}
