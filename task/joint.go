package task

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/wbc/robotmodel"
)

// jointTask is the shared shape of the joint-space tasks: A is a row
// selector mapping each configured joint to a unit entry in the joint
// ordered variable block.
type jointTask struct {
	*baseTask
	ref []float64
}

func newJointTask(cfg Config, nx int, clk clock.Clock) *jointTask {
	return &jointTask{
		baseTask: newBaseTask(cfg, nx, clk),
		ref:      make([]float64, len(cfg.JointNames)),
	}
}

// SetReference sets the per-joint reference, ordered like the configured
// joint names.
func (t *jointTask) SetReference(values []float64) error {
	if len(values) != len(t.cfg.JointNames) {
		return errors.Errorf("got %d reference values, task has %d joints", len(values), len(t.cfg.JointNames))
	}
	copy(t.ref, values)
	t.markReference()
	return nil
}

func (t *jointTask) update(model robotmodel.RobotModel) error {
	t.a.Zero()
	for i, name := range t.cfg.JointNames {
		idx, err := model.JointIndex(name)
		if err != nil {
			return err
		}
		t.a.Set(i, idx, 1)
		t.yRef.SetVec(i, t.ref[i])
		t.yRefRoot.SetVec(i, t.ref[i])
		t.weightsRoot.SetVec(i, t.weights.AtVec(i))
	}
	return nil
}

// JointVelocityTask tracks reference velocities of individual joints.
type JointVelocityTask struct {
	*jointTask
}

// NewJointVelocityTask creates the task for a scene with nx joints.
func NewJointVelocityTask(cfg Config, nx int, clk clock.Clock) *JointVelocityTask {
	return &JointVelocityTask{jointTask: newJointTask(cfg, nx, clk)}
}

// Update implements Task.
func (t *JointVelocityTask) Update(model robotmodel.RobotModel) error {
	return t.update(model)
}

// JointAccelerationTask tracks reference accelerations of individual joints.
type JointAccelerationTask struct {
	*jointTask
}

// NewJointAccelerationTask creates the task for a scene with nx joints.
func NewJointAccelerationTask(cfg Config, nx int, clk clock.Clock) *JointAccelerationTask {
	return &JointAccelerationTask{jointTask: newJointTask(cfg, nx, clk)}
}

// Update implements Task.
func (t *JointAccelerationTask) Update(model robotmodel.RobotModel) error {
	return t.update(model)
}
