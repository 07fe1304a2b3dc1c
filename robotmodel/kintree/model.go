package kintree

import (
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/spatialmath"
)

// DefaultGravity is the world-frame gravity vector used by the dynamics
// recursions.
var DefaultGravity = r3.Vector{Z: -9.81}

// bodyState holds the per-tick kinematic quantities of one body, all
// expressed in the tree root frame.
type bodyState struct {
	pose  spatialmath.Pose
	axisW r3.Vector // joint axis in root coordinates
	omega r3.Vector // angular velocity
	vel   r3.Vector // linear velocity of the link frame origin
	alpha r3.Vector // angular acceleration (measured q̈)
	acc   r3.Vector // linear acceleration of the link frame origin (measured q̈)
}

// Model is the serial-tree robot model back-end.
type Model struct {
	logger golog.Logger

	cfg          robotmodel.Config
	urdf         *robotmodel.URDF
	tree         *tree
	worldFrame   string
	baseFrame    string
	floatingBase bool
	gravity      r3.Vector

	jointNames    []string
	actuatedNames []string
	jointIdx      map[string]int
	limits        []robotmodel.JointLimits
	contacts      robotmodel.ActiveContacts
	selection     *mat.Dense

	q, qd, qdd []float64
	jointState robotmodel.JointState
	states     []bodyState
	inertiaMat *mat.Dense
	biasVec    *mat.VecDense
	comPos     r3.Vector
	comJac     *mat.Dense

	// scratch buffers sized at Configure so per-tick updates do not allocate
	scratchJac *mat.Dense
	biasAlpha  []r3.Vector
	biasAcc    []r3.Vector
	forceAcc   []r3.Vector
	torqueAcc  []r3.Vector

	updated  bool
	lastTime time.Time
}

// NewModel returns an unconfigured serial-tree model.
func NewModel(logger golog.Logger) *Model {
	return &Model{logger: logger, gravity: DefaultGravity}
}

// Configure implements robotmodel.RobotModel. On any failure the model keeps
// its pre-configure state.
func (m *Model) Configure(cfg robotmodel.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid robot model config")
	}
	if cfg.SubmechanismFile != "" {
		m.logger.Warnw("submechanism file is ignored by the serial-tree back-end", "file", cfg.SubmechanismFile)
	}

	u, err := robotmodel.ParseURDFFile(cfg.File)
	if err != nil {
		return err
	}
	if err := u.ApplyJointBlacklist(cfg.JointBlacklist); err != nil {
		return err
	}

	baseFrame, err := u.RootLink()
	if err != nil {
		return err
	}
	worldFrame := baseFrame
	if cfg.FloatingBase {
		worldFrame = cfg.WorldFrame()
		if _, err := u.AddFloatingBase(worldFrame); err != nil {
			return err
		}
	}

	t, err := newTreeFromURDF(u)
	if err != nil {
		return err
	}

	jointNames, err := resolveJointOrdering(t, cfg)
	if err != nil {
		return err
	}
	jointIdx := make(map[string]int, len(jointNames))
	for i, name := range jointNames {
		jointIdx[name] = i
		t.bodies[t.jointToBody[name]].joint.qIdx = i
	}

	actuatedNames := cfg.ActuatedJointNames
	if len(actuatedNames) == 0 {
		if cfg.FloatingBase {
			actuatedNames = jointNames[robotmodel.NumFloatingBaseJoints:]
		} else {
			actuatedNames = jointNames
		}
	}
	selection := mat.NewDense(len(actuatedNames), len(jointNames), nil)
	for i, name := range actuatedNames {
		idx, ok := jointIdx[name]
		if !ok {
			return robotmodel.NewUnknownJointError(name)
		}
		selection.Set(i, idx, 1)
	}

	for _, c := range cfg.ContactPoints {
		if !u.HasLink(c) {
			return errors.Errorf("contact point %q is not a link in the robot model", c)
		}
	}

	limits := make([]robotmodel.JointLimits, len(jointNames))
	for i, name := range jointNames {
		limits[i] = t.bodies[t.jointToBody[name]].joint.limits
	}

	nq := len(jointNames)
	m.cfg = cfg
	m.urdf = u
	m.tree = t
	m.worldFrame = worldFrame
	m.baseFrame = baseFrame
	m.floatingBase = cfg.FloatingBase
	m.jointNames = jointNames
	m.actuatedNames = append([]string{}, actuatedNames...)
	m.jointIdx = jointIdx
	m.limits = limits
	m.contacts = robotmodel.NewActiveContacts(cfg.ContactPoints)
	m.selection = selection
	m.q = make([]float64, nq)
	m.qd = make([]float64, nq)
	m.qdd = make([]float64, nq)
	m.jointState = robotmodel.NewJointState(jointNames)
	m.states = make([]bodyState, len(t.bodies))
	m.inertiaMat = mat.NewDense(nq, nq, nil)
	m.biasVec = mat.NewVecDense(nq, nil)
	m.comJac = mat.NewDense(3, nq, nil)
	m.scratchJac = mat.NewDense(6, nq, nil)
	m.biasAlpha = make([]r3.Vector, len(t.bodies))
	m.biasAcc = make([]r3.Vector, len(t.bodies))
	m.forceAcc = make([]r3.Vector, len(t.bodies))
	m.torqueAcc = make([]r3.Vector, len(t.bodies))
	m.updated = false
	m.lastTime = time.Time{}

	if cfg.FloatingBase && cfg.FloatingBaseState.HasValidPose() {
		m.writeFloatingBaseState(&cfg.FloatingBaseState)
	}
	return nil
}

func resolveJointOrdering(t *tree, cfg robotmodel.Config) ([]string, error) {
	treeOrder := t.movableJointNames()
	if len(cfg.JointNames) == 0 {
		return treeOrder, nil
	}
	if len(cfg.JointNames) != len(treeOrder) {
		return nil, robotmodel.NewDimensionMismatchError("joint_names", len(cfg.JointNames), len(treeOrder))
	}
	for _, name := range cfg.JointNames {
		if _, ok := t.jointToBody[name]; !ok {
			return nil, robotmodel.NewUnknownJointError(name)
		}
	}
	return append([]string{}, cfg.JointNames...), nil
}

// Update implements robotmodel.RobotModel.
func (m *Model) Update(state robotmodel.JointState, floatingBase *robotmodel.RigidBodyStateSE3) error {
	if m.tree == nil {
		return errors.New("robot model is not configured")
	}
	if err := state.Validate(); err != nil {
		return err
	}
	if !m.lastTime.IsZero() && state.Time.Before(m.lastTime) {
		return robotmodel.NewInvalidJointStateError("timestamp is older than the previous update")
	}

	start := 0
	if m.floatingBase {
		start = robotmodel.NumFloatingBaseJoints
		if floatingBase != nil {
			if !floatingBase.HasValidPose() || !floatingBase.HasValidTwist() {
				return robotmodel.NewInvalidJointStateError("floating-base state has an invalid pose or twist")
			}
			m.writeFloatingBaseState(floatingBase)
		}
	}

	for i := start; i < len(m.jointNames); i++ {
		v, err := state.ByName(m.jointNames[i])
		if err != nil {
			return robotmodel.NewInvalidJointStateError(err.Error())
		}
		m.q[i] = v.Position
		m.qd[i] = v.Velocity
		m.qdd[i] = v.Acceleration
		m.jointState.Values[i] = v
	}
	m.jointState.Time = state.Time
	m.lastTime = state.Time

	m.forwardPass()
	if err := m.computeDynamics(); err != nil {
		return err
	}
	m.computeCoM()
	m.updated = true
	return nil
}

// writeFloatingBaseState converts the floating-base estimate into the six
// virtual joint coordinates.
func (m *Model) writeFloatingBaseState(s *robotmodel.RigidBodyStateSE3) {
	p := s.Pose.Point()
	a, b, c := spatialmath.EulerXYZFromQuat(s.Pose.Rotation())
	vals := []float64{p.X, p.Y, p.Z, a, b, c}
	rates := eulerXYZRates(a, b, c, s.Twist.Angular)
	accels := eulerXYZRates(a, b, c, s.Acceleration.Angular)
	lin := s.Twist.Linear
	linAcc := s.Acceleration.Linear
	qds := []float64{lin.X, lin.Y, lin.Z, rates.X, rates.Y, rates.Z}
	// rate coupling term of the Euler kinematics is neglected here
	qdds := []float64{linAcc.X, linAcc.Y, linAcc.Z, accels.X, accels.Y, accels.Z}
	for i := 0; i < robotmodel.NumFloatingBaseJoints; i++ {
		m.q[i] = vals[i]
		m.qd[i] = qds[i]
		m.qdd[i] = qdds[i]
		m.jointState.Values[i] = robotmodel.JointValue{
			Position:     vals[i],
			Velocity:     qds[i],
			Acceleration: qdds[i],
		}
	}
}

// eulerXYZRates maps a world-frame angular velocity to the rates of the
// Rx(a)·Ry(b)·Rz(c) decomposition: omega = x̂·ȧ + Rx·ŷ·ḃ + Rx·Ry·ẑ·ċ.
func eulerXYZRates(a, b, _ float64, omega r3.Vector) r3.Vector {
	sa, ca := math.Sin(a), math.Cos(a)
	sb, cb := math.Sin(b), math.Cos(b)
	e := mat.NewDense(3, 3, []float64{
		1, 0, sb,
		0, ca, -sa * cb,
		0, sa, ca * cb,
	})
	var rates mat.VecDense
	if err := rates.SolveVec(e, mat.NewVecDense(3, []float64{omega.X, omega.Y, omega.Z})); err != nil {
		// gimbal lock, fall back to the raw angular components
		return omega
	}
	return r3.Vector{X: rates.AtVec(0), Y: rates.AtVec(1), Z: rates.AtVec(2)}
}

// Clear implements robotmodel.RobotModel.
func (m *Model) Clear() {
	*m = Model{logger: m.logger, gravity: m.gravity}
}

// SetGravity overrides the default gravity vector. Must be called before
// Update to take effect in the same tick.
func (m *Model) SetGravity(g r3.Vector) {
	m.gravity = g
}

// WorldFrame implements robotmodel.RobotModel.
func (m *Model) WorldFrame() string { return m.worldFrame }

// BaseFrame implements robotmodel.RobotModel.
func (m *Model) BaseFrame() string { return m.baseFrame }

// JointNames implements robotmodel.RobotModel.
func (m *Model) JointNames() []string { return m.jointNames }

// ActuatedJointNames implements robotmodel.RobotModel.
func (m *Model) ActuatedJointNames() []string { return m.actuatedNames }

// NumJoints implements robotmodel.RobotModel.
func (m *Model) NumJoints() int { return len(m.jointNames) }

// NumActuatedJoints implements robotmodel.RobotModel.
func (m *Model) NumActuatedJoints() int { return len(m.actuatedNames) }

// JointIndex implements robotmodel.RobotModel.
func (m *Model) JointIndex(name string) (int, error) {
	idx, ok := m.jointIdx[name]
	if !ok {
		return -1, robotmodel.NewUnknownJointError(name)
	}
	return idx, nil
}

// HasLink implements robotmodel.RobotModel.
func (m *Model) HasLink(name string) bool {
	if m.tree == nil {
		return false
	}
	_, ok := m.tree.bodyIndex[name]
	return ok
}

// HasJoint implements robotmodel.RobotModel.
func (m *Model) HasJoint(name string) bool {
	_, ok := m.jointIdx[name]
	return ok
}

// HasActuatedJoint implements robotmodel.RobotModel.
func (m *Model) HasActuatedJoint(name string) bool {
	for _, n := range m.actuatedNames {
		if n == name {
			return true
		}
	}
	return false
}

// FloatingBase implements robotmodel.RobotModel.
func (m *Model) FloatingBase() bool { return m.floatingBase }

// Limits implements robotmodel.RobotModel.
func (m *Model) Limits() []robotmodel.JointLimits { return m.limits }

// SelectionMatrix implements robotmodel.RobotModel.
func (m *Model) SelectionMatrix() *mat.Dense { return m.selection }

// ActiveContacts implements robotmodel.RobotModel.
func (m *Model) ActiveContacts() robotmodel.ActiveContacts { return m.contacts }

// SetActiveContacts implements robotmodel.RobotModel.
func (m *Model) SetActiveContacts(contacts robotmodel.ActiveContacts) error {
	if len(contacts.Names) != len(m.contacts.Names) || len(contacts.Active) != len(contacts.Names) {
		return robotmodel.NewDimensionMismatchError("active contacts", len(contacts.Names), len(m.contacts.Names))
	}
	for i, name := range contacts.Names {
		if name != m.contacts.Names[i] {
			return robotmodel.NewUnknownFrameError(name)
		}
	}
	copy(m.contacts.Active, contacts.Active)
	return nil
}

// JointState implements robotmodel.RobotModel.
func (m *Model) JointState(names []string) (robotmodel.JointState, error) {
	if !m.updated {
		return robotmodel.JointState{}, robotmodel.ErrNotUpdated
	}
	return m.jointState.Select(names)
}

var _ robotmodel.RobotModel = (*Model)(nil)
