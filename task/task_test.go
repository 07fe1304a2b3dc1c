package task

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/robotmodel/kintree"
	"go.viam.com/wbc/spatialmath"
	"go.viam.com/wbc/wbctest"
)

func armModel(t *testing.T) *kintree.Model {
	t.Helper()
	m := kintree.NewModel(golog.NewTestLogger(t))
	test.That(t, m.Configure(robotmodel.Config{File: wbctest.WriteSevenDOFArm(t)}), test.ShouldBeNil)
	state := robotmodel.NewJointState(wbctest.ArmJointNames)
	state.Time = time.Now()
	test.That(t, m.Update(state, nil), test.ShouldBeNil)
	return m
}

func cartesianConfig(timeout float64) Config {
	return Config{
		Name:           "ee_pose",
		Type:           TypeCartesian,
		Activation:     1,
		TimeoutSeconds: timeout,
		RootFrame:      "base_link",
		TipFrame:       "ee_link",
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := cartesianConfig(0)
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	bad := cfg
	bad.Name = ""
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = cfg
	bad.Activation = 1.5
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = cfg
	bad.Priority = -1
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = cfg
	bad.TipFrame = ""
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = cfg
	bad.Weights = []float64{1, 2}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	jnt := Config{Name: "joints", Type: TypeJoint, Activation: 1}
	test.That(t, jnt.Validate(), test.ShouldNotBeNil)
	jnt.JointNames = []string{"joint1"}
	test.That(t, jnt.Validate(), test.ShouldBeNil)
}

func TestCartesianVelocityTaskUpdate(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	task := NewCartesianVelocityTask(cartesianConfig(0), m.NumJoints(), clk)

	ref := spatialmath.Twist{Linear: r3.Vector{X: 0.1}}
	task.SetReference(ref)
	task.CheckTimeout()
	test.That(t, task.Update(m), test.ShouldBeNil)
	test.That(t, task.ApplyWeights(onesN(7)), test.ShouldBeNil)

	// at the zero configuration the tip frame is aligned with the base
	test.That(t, task.YRefRoot().AtVec(0), test.ShouldAlmostEqual, 0.1, 1e-12)

	jac, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 7; j++ {
			test.That(t, task.A().At(i, j), test.ShouldAlmostEqual, jac.At(i, j), 1e-12)
			test.That(t, task.Aw().At(i, j), test.ShouldAlmostEqual, jac.At(i, j), 1e-12)
		}
	}
}

func TestTimeout(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	task := NewCartesianVelocityTask(cartesianConfig(0.5), m.NumJoints(), clk)

	// no reference yet: timed out
	task.CheckTimeout()
	test.That(t, task.TimedOut(), test.ShouldBeTrue)

	task.SetReference(spatialmath.Twist{Linear: r3.Vector{X: 1}})
	task.CheckTimeout()
	test.That(t, task.TimedOut(), test.ShouldBeFalse)

	clk.Add(400 * time.Millisecond)
	task.CheckTimeout()
	test.That(t, task.TimedOut(), test.ShouldBeFalse)

	clk.Add(200 * time.Millisecond)
	task.CheckTimeout()
	test.That(t, task.TimedOut(), test.ShouldBeTrue)

	// a timed out task contributes zero rows
	test.That(t, task.Update(m), test.ShouldBeNil)
	test.That(t, task.ApplyWeights(onesN(7)), test.ShouldBeNil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 7; j++ {
			test.That(t, task.Aw().At(i, j), test.ShouldEqual, 0.0)
		}
	}

	// a fresh reference clears the timeout
	task.SetReference(spatialmath.Twist{})
	task.CheckTimeout()
	test.That(t, task.TimedOut(), test.ShouldBeFalse)
}

func TestActivationZeroClearsReference(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	task := NewCartesianVelocityTask(cartesianConfig(0), m.NumJoints(), clk)

	task.SetReference(spatialmath.Twist{Linear: r3.Vector{X: 0.2}})
	task.CheckTimeout()
	test.That(t, task.Update(m), test.ShouldBeNil)
	test.That(t, task.SetActivation(0), test.ShouldBeNil)
	test.That(t, task.ApplyWeights(onesN(7)), test.ShouldBeNil)

	// y_ref and y_ref_root are zeroed for this tick
	for i := 0; i < 6; i++ {
		test.That(t, task.YRef().AtVec(i), test.ShouldEqual, 0.0)
		test.That(t, task.YRefRoot().AtVec(i), test.ShouldEqual, 0.0)
		for j := 0; j < 7; j++ {
			test.That(t, task.Aw().At(i, j), test.ShouldEqual, 0.0)
		}
	}
}

func TestJointTask(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	cfg := Config{
		Name:       "posture",
		Type:       TypeJoint,
		Activation: 1,
		JointNames: []string{"joint3", "joint5"},
	}
	task := NewJointVelocityTask(cfg, m.NumJoints(), clk)
	test.That(t, task.SetReference([]float64{0.4, -0.2}), test.ShouldBeNil)
	test.That(t, task.SetReference([]float64{0.4}), test.ShouldNotBeNil)
	task.CheckTimeout()
	test.That(t, task.Update(m), test.ShouldBeNil)
	test.That(t, task.ApplyWeights(onesN(7)), test.ShouldBeNil)

	// unit selector rows at the configured joint columns
	test.That(t, task.A().At(0, 2), test.ShouldEqual, 1.0)
	test.That(t, task.A().At(1, 4), test.ShouldEqual, 1.0)
	test.That(t, task.YRefRoot().AtVec(0), test.ShouldEqual, 0.4)
	test.That(t, task.YRefRoot().AtVec(1), test.ShouldEqual, -0.2)
}

func TestJointWeightColumnScaling(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	task := NewCartesianVelocityTask(cartesianConfig(0), m.NumJoints(), clk)
	task.SetReference(spatialmath.Twist{})
	task.CheckTimeout()
	test.That(t, task.Update(m), test.ShouldBeNil)

	weights := onesN(7)
	weights[3] = 0
	test.That(t, task.ApplyWeights(weights), test.ShouldBeNil)
	for i := 0; i < 6; i++ {
		test.That(t, task.Aw().At(i, 3), test.ShouldEqual, 0.0)
	}
}

func TestCoMTask(t *testing.T) {
	m := armModel(t)
	clk := clock.NewMock()
	cfg := Config{Name: "balance", Type: TypeCoM, Activation: 1}
	task := NewCoMAccelerationTask(cfg, m.NumJoints(), clk)
	task.SetReference(r3.Vector{X: 0.5})
	task.CheckTimeout()
	test.That(t, task.Update(m), test.ShouldBeNil)
	test.That(t, task.ApplyWeights(onesN(7)), test.ShouldBeNil)

	rows, cols := task.A().Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 7)
	test.That(t, task.YRefRoot().AtVec(0), test.ShouldEqual, 0.5)
}

func onesN(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
