package submech

import (
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/robotmodel/kintree"
	"go.viam.com/wbc/wbctest"
)

func armState(q []float64, names []string, at time.Time) robotmodel.JointState {
	s := robotmodel.NewJointState(names)
	for i := range s.Values {
		if q != nil {
			s.Values[i].Position = q[i]
		}
	}
	s.Time = at
	return s
}

func TestParseDescription(t *testing.T) {
	path := wbctest.WriteSubmechanism(t, wbctest.CoupledSubmechanismYAML)
	d, err := ParseDescriptionFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(d.IndependentJoints), test.ShouldEqual, 6)
	test.That(t, len(d.Couplings), test.ShouldEqual, 1)
	test.That(t, d.Couplings[0].Joint, test.ShouldEqual, "joint7")
}

func TestDescriptionValidation(t *testing.T) {
	bad := &Description{
		SpanningTreeJoints: []string{"a", "b"},
		IndependentJoints:  []string{"a"},
		Couplings:          []Coupling{{Joint: "b", Independent: "c", Factor: 1}},
	}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = &Description{
		IndependentJoints: []string{"a"},
		ActiveJoints:      []string{"z"},
	}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = &Description{}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestConfigureRequiresDescription(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	err := m.Configure(robotmodel.Config{File: wbctest.WriteSevenDOFArm(t)})
	test.That(t, err, test.ShouldNotBeNil)
}

// TestIdentityMechanismMatchesSerialTree is the cross-back-end validation:
// with a trivial mechanism both back-ends must agree numerically.
func TestIdentityMechanismMatchesSerialTree(t *testing.T) {
	logger := golog.NewTestLogger(t)
	urdf := wbctest.WriteSevenDOFArm(t)

	serial := kintree.NewModel(logger)
	test.That(t, serial.Configure(robotmodel.Config{File: urdf}), test.ShouldBeNil)

	parallel := NewModel(logger)
	test.That(t, parallel.Configure(robotmodel.Config{
		File:             urdf,
		SubmechanismFile: wbctest.WriteSubmechanism(t, wbctest.IdentitySubmechanismYAML),
	}), test.ShouldBeNil)

	q := []float64{0.3, -0.5, 0.8, 0.2, -0.9, 0.4, 1.1}
	now := time.Now()
	state := armState(q, wbctest.ArmJointNames, now)
	test.That(t, serial.Update(state, nil), test.ShouldBeNil)
	test.That(t, parallel.Update(state, nil), test.ShouldBeNil)

	jacS, err := serial.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	jacP, err := parallel.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	for r := 0; r < 6; r++ {
		for c := 0; c < 7; c++ {
			test.That(t, jacP.At(r, c), test.ShouldAlmostEqual, jacS.At(r, c), 1e-5)
		}
	}

	hS, err := serial.JointSpaceInertiaMatrix()
	test.That(t, err, test.ShouldBeNil)
	hP, err := parallel.JointSpaceInertiaMatrix()
	test.That(t, err, test.ShouldBeNil)
	for r := 0; r < 7; r++ {
		for c := 0; c < 7; c++ {
			test.That(t, hP.At(r, c), test.ShouldAlmostEqual, hS.At(r, c), 1e-3)
		}
	}

	biasS, err := serial.BiasForces()
	test.That(t, err, test.ShouldBeNil)
	biasP, err := parallel.BiasForces()
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 7; i++ {
		test.That(t, biasP.AtVec(i), test.ShouldAlmostEqual, biasS.AtVec(i), 1e-6)
	}

	stateS, err := serial.RigidBodyState("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	stateP, err := parallel.RigidBodyState("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stateS.Pose.Point().Sub(stateP.Pose.Point()).Norm(), test.ShouldBeLessThan, 1e-9)
}

func TestCoupledMechanism(t *testing.T) {
	logger := golog.NewTestLogger(t)
	m := NewModel(logger)
	test.That(t, m.Configure(robotmodel.Config{
		File:             wbctest.WriteSevenDOFArm(t),
		SubmechanismFile: wbctest.WriteSubmechanism(t, wbctest.CoupledSubmechanismYAML),
	}), test.ShouldBeNil)

	test.That(t, m.NumJoints(), test.ShouldEqual, 6)
	test.That(t, m.HasJoint("joint7"), test.ShouldBeFalse)

	names := m.JointNames()
	q := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	test.That(t, m.Update(armState(q, names, time.Now()), nil), test.ShouldBeNil)

	// joint7 mirrors joint6 inside the spanning tree
	inner, err := m.JointState([]string{"joint7"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inner.Values[0].Position, test.ShouldAlmostEqual, 0.6, 1e-12)

	jac, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	_, cols := jac.Dims()
	test.That(t, cols, test.ShouldEqual, 6)
}

func TestJacobianDotNotImplemented(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	test.That(t, m.Configure(robotmodel.Config{
		File:             wbctest.WriteSevenDOFArm(t),
		SubmechanismFile: wbctest.WriteSubmechanism(t, wbctest.IdentitySubmechanismYAML),
	}), test.ShouldBeNil)

	_, err := m.JacobianDot("base_link", "ee_link")
	test.That(t, errors.Is(err, robotmodel.ErrNotImplemented), test.ShouldBeTrue)
}

func TestInvalidRootFrame(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	test.That(t, m.Configure(robotmodel.Config{
		File:             wbctest.WriteSevenDOFArm(t),
		SubmechanismFile: wbctest.WriteSubmechanism(t, wbctest.IdentitySubmechanismYAML),
	}), test.ShouldBeNil)
	state := armState(nil, wbctest.ArmJointNames, time.Now())
	test.That(t, m.Update(state, nil), test.ShouldBeNil)

	_, err := m.SpaceJacobian("link3", "ee_link")
	test.That(t, err, test.ShouldNotBeNil)
}
