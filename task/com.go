package task

import (
	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"

	"go.viam.com/wbc/robotmodel"
)

// CoMAccelerationTask tracks a reference linear acceleration of the
// whole-body center of mass. A is the 3 x n_q CoM Jacobian; the reference is
// already expressed in the model root frame.
type CoMAccelerationTask struct {
	*baseTask
	ref r3.Vector
}

// NewCoMAccelerationTask creates the task for a scene with nx joints.
func NewCoMAccelerationTask(cfg Config, nx int, clk clock.Clock) *CoMAccelerationTask {
	return &CoMAccelerationTask{baseTask: newBaseTask(cfg, nx, clk)}
}

// SetReference sets the desired CoM acceleration in the model root frame.
func (t *CoMAccelerationTask) SetReference(acc r3.Vector) {
	t.ref = acc
	t.markReference()
}

// Update implements Task.
func (t *CoMAccelerationTask) Update(model robotmodel.RobotModel) error {
	jac, err := model.CoMJacobian()
	if err != nil {
		return err
	}
	t.a.Copy(jac)
	ref := []float64{t.ref.X, t.ref.Y, t.ref.Z}
	copyVec(t.yRef, ref)
	copyVec(t.yRefRoot, ref)
	for i := 0; i < 3; i++ {
		t.weightsRoot.SetVec(i, t.weights.AtVec(i))
	}
	return nil
}
