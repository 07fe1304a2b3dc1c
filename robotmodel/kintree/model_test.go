package kintree

import (
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/spatialmath"
	"go.viam.com/wbc/wbctest"
)

func configuredArm(t *testing.T) *Model {
	t.Helper()
	m := NewModel(golog.NewTestLogger(t))
	err := m.Configure(robotmodel.Config{File: wbctest.WriteSevenDOFArm(t)})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func armState(q, qd []float64, at time.Time) robotmodel.JointState {
	s := robotmodel.NewJointState(wbctest.ArmJointNames)
	for i := range s.Values {
		if q != nil {
			s.Values[i].Position = q[i]
		}
		if qd != nil {
			s.Values[i].Velocity = qd[i]
		}
	}
	s.Time = at
	return s
}

func TestConfigure(t *testing.T) {
	m := configuredArm(t)
	test.That(t, m.NumJoints(), test.ShouldEqual, 7)
	test.That(t, m.NumActuatedJoints(), test.ShouldEqual, 7)
	test.That(t, m.JointNames(), test.ShouldResemble, wbctest.ArmJointNames)
	test.That(t, m.BaseFrame(), test.ShouldEqual, "base_link")
	test.That(t, m.WorldFrame(), test.ShouldEqual, "base_link")
	test.That(t, m.HasLink("ee_link"), test.ShouldBeTrue)
	test.That(t, m.HasJoint("joint3"), test.ShouldBeTrue)
	test.That(t, m.HasJoint("ee_joint"), test.ShouldBeFalse)
	test.That(t, m.HasActuatedJoint("joint7"), test.ShouldBeTrue)

	limits := m.Limits()
	test.That(t, limits[0].Position.Max, test.ShouldEqual, 2.9)
	test.That(t, limits[0].Velocity.Max, test.ShouldEqual, 2.0)
	test.That(t, limits[0].Effort.Max, test.ShouldEqual, 200.0)
}

func TestConfigureIdempotent(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	cfg := robotmodel.Config{File: wbctest.WriteSevenDOFArm(t)}
	test.That(t, m.Configure(cfg), test.ShouldBeNil)
	names := append([]string{}, m.JointNames()...)
	base := m.BaseFrame()

	test.That(t, m.Configure(cfg), test.ShouldBeNil)
	test.That(t, m.JointNames(), test.ShouldResemble, names)
	test.That(t, m.BaseFrame(), test.ShouldEqual, base)
	test.That(t, m.NumJoints(), test.ShouldEqual, len(names))
}

func TestConfigureFailures(t *testing.T) {
	logger := golog.NewTestLogger(t)

	m := NewModel(logger)
	err := m.Configure(robotmodel.Config{File: "/missing.urdf"})
	test.That(t, err, test.ShouldNotBeNil)

	err = m.Configure(robotmodel.Config{
		File:          wbctest.WriteSevenDOFArm(t),
		ContactPoints: []string{"not_a_link"},
	})
	test.That(t, err, test.ShouldNotBeNil)

	err = m.Configure(robotmodel.Config{
		File:           wbctest.WriteSevenDOFArm(t),
		JointBlacklist: []string{"not_a_joint"},
	})
	test.That(t, err, test.ShouldNotBeNil)

	err = m.Configure(robotmodel.Config{
		File:               wbctest.WriteSevenDOFArm(t),
		ActuatedJointNames: []string{"not_a_joint"},
	})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNotUpdated(t *testing.T) {
	m := configuredArm(t)
	_, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, errors.Is(err, robotmodel.ErrNotUpdated), test.ShouldBeTrue)
	_, err = m.JointSpaceInertiaMatrix()
	test.That(t, errors.Is(err, robotmodel.ErrNotUpdated), test.ShouldBeTrue)
	_, err = m.JointState(wbctest.ArmJointNames)
	test.That(t, errors.Is(err, robotmodel.ErrNotUpdated), test.ShouldBeTrue)
}

func TestUpdateValidation(t *testing.T) {
	m := configuredArm(t)

	// null timestamp
	err := m.Update(armState(nil, nil, time.Time{}), nil)
	test.That(t, err, test.ShouldNotBeNil)

	// non-finite entry
	bad := armState(nil, nil, time.Now())
	bad.Values[2].Position = math.NaN()
	test.That(t, m.Update(bad, nil), test.ShouldNotBeNil)

	// missing joint name
	short := robotmodel.NewJointState([]string{"joint1"})
	short.Time = time.Now()
	test.That(t, m.Update(short, nil), test.ShouldNotBeNil)

	// monotone timestamps
	now := time.Now()
	test.That(t, m.Update(armState(nil, nil, now), nil), test.ShouldBeNil)
	err = m.Update(armState(nil, nil, now.Add(-time.Second)), nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUnknownFrame(t *testing.T) {
	m := configuredArm(t)
	test.That(t, m.Update(armState(nil, nil, time.Now()), nil), test.ShouldBeNil)
	_, err := m.SpaceJacobian("base_link", "nope")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.RigidBodyState("nope", "ee_link")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.JointIndex("nope")
	test.That(t, err, test.ShouldNotBeNil)
}

// TestForwardKinematics checks the FK against a manual composition of the
// segment transforms along the chain.
func TestForwardKinematics(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.3, -0.5, 0.8, 0.2, -0.9, 0.4, 1.1}
	test.That(t, m.Update(armState(q, nil, time.Now()), nil), test.ShouldBeNil)

	axes := []r3.Vector{{Z: 1}, {Y: 1}, {Z: 1}, {Y: 1}, {Z: 1}, {Y: 1}, {Z: 1}}
	manual := spatialmath.NewZeroPose()
	for i := 0; i < 7; i++ {
		manual = spatialmath.Compose(manual, spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.3}))
		manual = spatialmath.Compose(manual, spatialmath.NewPose(r3.Vector{}, spatialmath.QuatFromAxisAngle(axes[i], q[i])))
	}
	manual = spatialmath.Compose(manual, spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.1}))

	state, err := m.RigidBodyState("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.AlmostEqual(state.Pose, manual, 1e-9), test.ShouldBeTrue)
}

// TestJacobianFiniteDifference checks every linear Jacobian column against a
// central difference of the tip position.
func TestJacobianFiniteDifference(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.1, 0.7, -0.3, 1.2, 0.5, -0.8, 0.25}
	now := time.Now()
	test.That(t, m.Update(armState(q, nil, now), nil), test.ShouldBeNil)
	jac, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)

	const delta = 1e-6
	for i := 0; i < 7; i++ {
		perturb := func(sign float64) r3.Vector {
			qp := append([]float64{}, q...)
			qp[i] += sign * delta
			now = now.Add(time.Millisecond)
			test.That(t, m.Update(armState(qp, nil, now), nil), test.ShouldBeNil)
			state, err := m.RigidBodyState("base_link", "ee_link")
			test.That(t, err, test.ShouldBeNil)
			return state.Pose.Point()
		}
		plus := perturb(1)
		minus := perturb(-1)
		diff := plus.Sub(minus).Mul(1 / (2 * delta))
		test.That(t, diff.X, test.ShouldAlmostEqual, jac.At(0, i), 1e-5)
		test.That(t, diff.Y, test.ShouldAlmostEqual, jac.At(1, i), 1e-5)
		test.That(t, diff.Z, test.ShouldAlmostEqual, jac.At(2, i), 1e-5)
	}
}

// TestJacobianDotFiniteDifference checks J̇ against the finite difference of
// J along the current velocity.
func TestJacobianDotFiniteDifference(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.2, -0.6, 0.9, 0.4, -0.2, 0.7, -1.0}
	qd := []float64{0.5, -0.3, 0.8, -0.1, 0.6, 0.2, -0.4}
	now := time.Now()
	test.That(t, m.Update(armState(q, qd, now), nil), test.ShouldBeNil)
	jacDot, err := m.JacobianDot("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)

	const delta = 1e-6
	jacAt := func(sign float64) *mat.Dense {
		qp := make([]float64, 7)
		for i := range qp {
			qp[i] = q[i] + sign*delta*qd[i]
		}
		now = now.Add(time.Millisecond)
		test.That(t, m.Update(armState(qp, qd, now), nil), test.ShouldBeNil)
		jac, err := m.SpaceJacobian("base_link", "ee_link")
		test.That(t, err, test.ShouldBeNil)
		return jac
	}
	plus := jacAt(1)
	minus := jacAt(-1)
	for r := 0; r < 6; r++ {
		for c := 0; c < 7; c++ {
			fd := (plus.At(r, c) - minus.At(r, c)) / (2 * delta)
			test.That(t, fd, test.ShouldAlmostEqual, jacDot.At(r, c), 1e-5)
		}
	}
}

// TestSpatialAccelerationBias checks J̇·q̇ consistency between the two APIs.
func TestSpatialAccelerationBias(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.2, -0.6, 0.9, 0.4, -0.2, 0.7, -1.0}
	qd := []float64{0.5, -0.3, 0.8, -0.1, 0.6, 0.2, -0.4}
	test.That(t, m.Update(armState(q, qd, time.Now()), nil), test.ShouldBeNil)

	jacDot, err := m.JacobianDot("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	bias, err := m.SpatialAccelerationBias("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)

	var prod mat.VecDense
	prod.MulVec(jacDot, mat.NewVecDense(7, qd))
	got := bias.Slice()
	for i := 0; i < 6; i++ {
		test.That(t, got[i], test.ShouldAlmostEqual, prod.AtVec(i), 1e-10)
	}
}

func TestInertiaMatrixProperties(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.4, -0.2, 0.6, 1.0, -0.5, 0.3, 0.1}
	test.That(t, m.Update(armState(q, nil, time.Now()), nil), test.ShouldBeNil)

	h, err := m.JointSpaceInertiaMatrix()
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 7; i++ {
		for j := 0; j < 7; j++ {
			test.That(t, h.At(i, j), test.ShouldAlmostEqual, h.At(j, i), 1e-10)
		}
	}
	// positive definite along random directions
	x := mat.NewVecDense(7, []float64{0.3, -1, 0.2, 0.8, -0.4, 1.1, -0.7})
	var hx mat.VecDense
	hx.MulVec(h, x)
	test.That(t, mat.Dot(x, &hx), test.ShouldBeGreaterThan, 0.0)
}

// TestBiasForcesGravity checks the gravity part of the bias vector against a
// central difference of the potential energy.
func TestBiasForcesGravity(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.3, 0.9, -0.4, 0.7, 0.2, -0.6, 0.5}
	now := time.Now()
	test.That(t, m.Update(armState(q, nil, now), nil), test.ShouldBeNil)
	biasVec, err := m.BiasForces()
	test.That(t, err, test.ShouldBeNil)
	// copy before the finite-difference updates overwrite the buffer
	bias := make([]float64, biasVec.Len())
	for i := range bias {
		bias[i] = biasVec.AtVec(i)
	}

	const totalMass = 9.0 // base 2.0 + 7 links of 1.0
	potential := func(qs []float64) float64 {
		now = now.Add(time.Millisecond)
		test.That(t, m.Update(armState(qs, nil, now), nil), test.ShouldBeNil)
		com, err := m.CenterOfMass()
		test.That(t, err, test.ShouldBeNil)
		return totalMass * 9.81 * com.Z
	}

	const delta = 1e-6
	for i := 0; i < 7; i++ {
		qPlus := append([]float64{}, q...)
		qMinus := append([]float64{}, q...)
		qPlus[i] += delta
		qMinus[i] -= delta
		grad := (potential(qPlus) - potential(qMinus)) / (2 * delta)
		test.That(t, bias[i], test.ShouldAlmostEqual, grad, 1e-5)
	}
}

// TestCoMJacobianFiniteDifference checks the CoM Jacobian columns.
func TestCoMJacobianFiniteDifference(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.5, -0.7, 0.2, 0.9, -0.3, 0.6, -0.1}
	now := time.Now()
	test.That(t, m.Update(armState(q, nil, now), nil), test.ShouldBeNil)
	comJac, err := m.CoMJacobian()
	test.That(t, err, test.ShouldBeNil)
	// copy before the finite-difference updates overwrite the buffer
	jac := mat.DenseCopyOf(comJac)

	const delta = 1e-6
	for i := 0; i < 7; i++ {
		comAt := func(sign float64) r3.Vector {
			qp := append([]float64{}, q...)
			qp[i] += sign * delta
			now = now.Add(time.Millisecond)
			test.That(t, m.Update(armState(qp, nil, now), nil), test.ShouldBeNil)
			com, err := m.CenterOfMass()
			test.That(t, err, test.ShouldBeNil)
			return com
		}
		diff := comAt(1).Sub(comAt(-1)).Mul(1 / (2 * delta))
		test.That(t, diff.X, test.ShouldAlmostEqual, jac.At(0, i), 1e-5)
		test.That(t, diff.Y, test.ShouldAlmostEqual, jac.At(1, i), 1e-5)
		test.That(t, diff.Z, test.ShouldAlmostEqual, jac.At(2, i), 1e-5)
	}
}

func TestSelectionMatrix(t *testing.T) {
	m := configuredArm(t)
	s := m.SelectionMatrix()
	r, c := s.Dims()
	test.That(t, r, test.ShouldEqual, 7)
	test.That(t, c, test.ShouldEqual, 7)
	for i := 0; i < 7; i++ {
		test.That(t, s.At(i, i), test.ShouldEqual, 1.0)
	}
}

func TestTwistMatchesJacobian(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	qd := []float64{-0.3, 0.5, 0.1, -0.7, 0.2, 0.9, -0.4}
	test.That(t, m.Update(armState(q, qd, time.Now()), nil), test.ShouldBeNil)

	jac, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	state, err := m.RigidBodyState("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)

	var tw mat.VecDense
	tw.MulVec(jac, mat.NewVecDense(7, qd))
	got := state.Twist.Slice()
	for i := 0; i < 6; i++ {
		test.That(t, got[i], test.ShouldAlmostEqual, tw.AtVec(i), 1e-10)
	}
}

func TestBodyJacobianRotation(t *testing.T) {
	m := configuredArm(t)
	q := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	test.That(t, m.Update(armState(q, nil, time.Now()), nil), test.ShouldBeNil)

	space, err := m.SpaceJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	body, err := m.BodyJacobian("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)
	state, err := m.RigidBodyState("base_link", "ee_link")
	test.That(t, err, test.ShouldBeNil)

	// rotating the body Jacobian columns into the base frame recovers the
	// space Jacobian
	for c := 0; c < 7; c++ {
		lin := state.Pose.RotateVector(r3.Vector{X: body.At(0, c), Y: body.At(1, c), Z: body.At(2, c)})
		ang := state.Pose.RotateVector(r3.Vector{X: body.At(3, c), Y: body.At(4, c), Z: body.At(5, c)})
		test.That(t, lin.X, test.ShouldAlmostEqual, space.At(0, c), 1e-10)
		test.That(t, lin.Y, test.ShouldAlmostEqual, space.At(1, c), 1e-10)
		test.That(t, lin.Z, test.ShouldAlmostEqual, space.At(2, c), 1e-10)
		test.That(t, ang.X, test.ShouldAlmostEqual, space.At(3, c), 1e-10)
		test.That(t, ang.Y, test.ShouldAlmostEqual, space.At(4, c), 1e-10)
		test.That(t, ang.Z, test.ShouldAlmostEqual, space.At(5, c), 1e-10)
	}
}

func TestFloatingBase(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	cfg := robotmodel.Config{
		File:         wbctest.WriteSevenDOFArm(t),
		FloatingBase: true,
	}
	test.That(t, m.Configure(cfg), test.ShouldBeNil)
	test.That(t, m.NumJoints(), test.ShouldEqual, 13)
	test.That(t, m.NumActuatedJoints(), test.ShouldEqual, 7)
	test.That(t, m.WorldFrame(), test.ShouldEqual, "world")
	test.That(t, m.BaseFrame(), test.ShouldEqual, "base_link")
	test.That(t, m.JointNames()[:6], test.ShouldResemble, robotmodel.FloatingBaseJointNames)

	fb := robotmodel.NewRigidBodyStateSE3("world")
	fb.Pose = spatialmath.NewPoseFromRPY(r3.Vector{X: 1, Y: -2, Z: 0.5}, 0.3, -0.2, 0.7)
	fb.Time = time.Now()

	test.That(t, m.Update(armState(nil, nil, time.Now()), &fb), test.ShouldBeNil)

	state, err := m.RigidBodyState("world", "base_link")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.AlmostEqual(state.Pose, fb.Pose, 1e-9), test.ShouldBeTrue)

	// selection matrix has zero columns for the virtual joints
	s := m.SelectionMatrix()
	for i := 0; i < 7; i++ {
		for j := 0; j < 6; j++ {
			test.That(t, s.At(i, j), test.ShouldEqual, 0.0)
		}
	}
}

func TestJointBlacklistRemovesJoint(t *testing.T) {
	m := NewModel(golog.NewTestLogger(t))
	cfg := robotmodel.Config{
		File:           wbctest.WriteSevenDOFArm(t),
		JointBlacklist: []string{"joint7"},
	}
	test.That(t, m.Configure(cfg), test.ShouldBeNil)
	test.That(t, m.NumJoints(), test.ShouldEqual, 6)
	test.That(t, m.HasJoint("joint7"), test.ShouldBeFalse)
	_, err := m.JointIndex("joint7")
	test.That(t, err, test.ShouldNotBeNil)
	// the link itself is still part of the kinematics
	test.That(t, m.HasLink("link7"), test.ShouldBeTrue)
}
