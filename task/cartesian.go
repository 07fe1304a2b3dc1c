package task

import (
	"math"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/spatialmath"
)

// CartesianVelocityTask tracks a reference twist of a tip frame relative to
// a root frame. A is the space Jacobian of the chain; the reference is given
// in the tip frame and re-expressed in the root frame via the adjoint of the
// current relative pose.
type CartesianVelocityTask struct {
	*baseTask
	ref spatialmath.Twist
}

// NewCartesianVelocityTask creates the task for a scene with nx joints.
func NewCartesianVelocityTask(cfg Config, nx int, clk clock.Clock) *CartesianVelocityTask {
	return &CartesianVelocityTask{baseTask: newBaseTask(cfg, nx, clk)}
}

// SetReference sets the desired tip twist, expressed in the tip frame.
func (t *CartesianVelocityTask) SetReference(tw spatialmath.Twist) {
	t.ref = tw
	t.markReference()
}

// Update implements Task.
func (t *CartesianVelocityTask) Update(model robotmodel.RobotModel) error {
	jac, err := model.SpaceJacobian(t.cfg.RootFrame, t.cfg.TipFrame)
	if err != nil {
		return err
	}
	t.a.Copy(jac)

	state, err := model.RigidBodyState(t.cfg.RootFrame, t.cfg.TipFrame)
	if err != nil {
		return err
	}
	refRoot := state.Pose.TransformTwist(t.ref)
	copyVec(t.yRef, t.ref.Slice())
	copyVec(t.yRefRoot, refRoot.Slice())
	rotateWeights(t.weightsRoot, t.weights, state.Pose)
	return nil
}

// CartesianAccelerationTask tracks a reference spatial acceleration of a tip
// frame relative to a root frame on the acceleration level. The J̇·q̇ bias
// is subtracted here, so y_ref_root is directly a reference on J·q̈.
type CartesianAccelerationTask struct {
	*baseTask
	ref spatialmath.SpatialAcceleration
}

// NewCartesianAccelerationTask creates the task for a scene with nx joints.
func NewCartesianAccelerationTask(cfg Config, nx int, clk clock.Clock) *CartesianAccelerationTask {
	return &CartesianAccelerationTask{baseTask: newBaseTask(cfg, nx, clk)}
}

// SetReference sets the desired tip spatial acceleration, expressed in the
// tip frame.
func (t *CartesianAccelerationTask) SetReference(acc spatialmath.SpatialAcceleration) {
	t.ref = acc
	t.markReference()
}

// Update implements Task.
func (t *CartesianAccelerationTask) Update(model robotmodel.RobotModel) error {
	jac, err := model.SpaceJacobian(t.cfg.RootFrame, t.cfg.TipFrame)
	if err != nil {
		return err
	}
	t.a.Copy(jac)

	state, err := model.RigidBodyState(t.cfg.RootFrame, t.cfg.TipFrame)
	if err != nil {
		return err
	}
	bias, err := model.SpatialAccelerationBias(t.cfg.RootFrame, t.cfg.TipFrame)
	if err != nil {
		return err
	}
	refRoot := state.Pose.TransformAcceleration(t.ref)
	refRoot.Linear = refRoot.Linear.Sub(bias.Linear)
	refRoot.Angular = refRoot.Angular.Sub(bias.Angular)
	copyVec(t.yRef, t.ref.Slice())
	copyVec(t.yRefRoot, refRoot.Slice())
	rotateWeights(t.weightsRoot, t.weights, state.Pose)
	return nil
}

// rotateWeights re-expresses the per-row weights of a Cartesian task in the
// root frame: each 3-block is rotated and taken component-wise absolute, so
// the weighting stays a non-negative diagonal.
func rotateWeights(dst, src *mat.VecDense, pose spatialmath.Pose) {
	lin := pose.RotateVector(r3.Vector{X: src.AtVec(0), Y: src.AtVec(1), Z: src.AtVec(2)})
	ang := pose.RotateVector(r3.Vector{X: src.AtVec(3), Y: src.AtVec(4), Z: src.AtVec(5)})
	dst.SetVec(0, math.Abs(lin.X))
	dst.SetVec(1, math.Abs(lin.Y))
	dst.SetVec(2, math.Abs(lin.Z))
	dst.SetVec(3, math.Abs(ang.X))
	dst.SetVec(4, math.Abs(ang.Y))
	dst.SetVec(5, math.Abs(ang.Z))
}
