package submech

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/robotmodel/kintree"
	"go.viam.com/wbc/spatialmath"
)

// Model is the parallel-submechanism back-end. The spanning tree of the
// mechanism runs as an inner serial model; the constant projection matrix G
// maps independent joint coordinates to spanning-tree coordinates, so
//
//	J_u = J·G,  H_u = Gᵀ·H·G,  C_u = Gᵀ·C.
type Model struct {
	logger golog.Logger

	inner *kintree.Model
	desc  *Description

	jointNames    []string // floating base (if any) + independent joints
	actuatedNames []string
	jointIdx      map[string]int
	projection    *mat.Dense // n_spanning x n_independent
	selection     *mat.Dense
	limits        []robotmodel.JointLimits
	floatingBase  bool

	spanningState robotmodel.JointState
	updated       bool
}

// NewModel returns an unconfigured submechanism model.
func NewModel(logger golog.Logger) *Model {
	return &Model{logger: logger, inner: kintree.NewModel(logger)}
}

// Configure implements robotmodel.RobotModel. The joint ordering always
// comes from the submechanism description; a configured ordering is ignored
// with a warning, as the mechanism fixes it.
func (m *Model) Configure(cfg robotmodel.Config) error {
	if cfg.SubmechanismFile == "" {
		return errors.New("submechanism back-end requires a submechanism file")
	}
	if len(cfg.JointNames) > 0 {
		m.logger.Warnw("configured joint names are ignored, the submechanism description fixes the ordering")
	}
	if len(cfg.ActuatedJointNames) > 0 {
		m.logger.Warnw("configured actuated joint names are ignored, the submechanism description fixes them")
	}

	desc, err := ParseDescriptionFile(cfg.SubmechanismFile)
	if err != nil {
		return err
	}

	innerCfg := cfg
	innerCfg.SubmechanismFile = ""
	innerCfg.JointNames = nil
	innerCfg.ActuatedJointNames = nil
	inner := kintree.NewModel(m.logger)
	if err := inner.Configure(innerCfg); err != nil {
		return err
	}

	jointNames := []string{}
	if cfg.FloatingBase {
		jointNames = append(jointNames, robotmodel.FloatingBaseJointNames...)
	}
	jointNames = append(jointNames, desc.IndependentJoints...)
	jointIdx := make(map[string]int, len(jointNames))
	for i, n := range jointNames {
		jointIdx[n] = i
	}

	projection, err := buildProjection(inner, desc, jointNames)
	if err != nil {
		return err
	}

	actuated := desc.ActiveJoints
	if len(actuated) == 0 {
		actuated = desc.IndependentJoints
	}
	selection := mat.NewDense(len(actuated), len(jointNames), nil)
	for i, name := range actuated {
		selection.Set(i, jointIdx[name], 1)
	}

	limits := make([]robotmodel.JointLimits, len(jointNames))
	innerLimits := inner.Limits()
	for i, name := range jointNames {
		idx, err := inner.JointIndex(name)
		if err != nil {
			return err
		}
		limits[i] = innerLimits[idx]
	}

	m.inner = inner
	m.desc = desc
	m.jointNames = jointNames
	m.actuatedNames = append([]string{}, actuated...)
	m.jointIdx = jointIdx
	m.projection = projection
	m.selection = selection
	m.limits = limits
	m.floatingBase = cfg.FloatingBase
	m.spanningState = robotmodel.NewJointState(inner.JointNames())
	m.updated = false
	return nil
}

// buildProjection assembles G, one row per spanning-tree coordinate and one
// column per independent coordinate.
func buildProjection(inner *kintree.Model, desc *Description, jointNames []string) (*mat.Dense, error) {
	g := mat.NewDense(inner.NumJoints(), len(jointNames), nil)
	for col, name := range jointNames {
		row, err := inner.JointIndex(name)
		if err != nil {
			return nil, err
		}
		g.Set(row, col, 1)
	}
	for _, c := range desc.Couplings {
		row, err := inner.JointIndex(c.Joint)
		if err != nil {
			return nil, err
		}
		col := -1
		for i, name := range jointNames {
			if name == c.Independent {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, robotmodel.NewUnknownJointError(c.Independent)
		}
		g.Set(row, col, c.Factor)
	}
	return g, nil
}

// Update implements robotmodel.RobotModel. The measured independent state is
// expanded over the couplings into the spanning tree before the inner model
// runs.
func (m *Model) Update(state robotmodel.JointState, floatingBase *robotmodel.RigidBodyStateSE3) error {
	if m.desc == nil {
		return errors.New("robot model is not configured")
	}
	if err := state.Validate(); err != nil {
		return err
	}

	start := 0
	if m.floatingBase {
		start = robotmodel.NumFloatingBaseJoints
	}
	for i := start; i < len(m.jointNames); i++ {
		name := m.jointNames[i]
		v, err := state.ByName(name)
		if err != nil {
			return robotmodel.NewInvalidJointStateError(err.Error())
		}
		idx, err := m.spanningState.Index(name)
		if err != nil {
			return err
		}
		m.spanningState.Values[idx] = v
	}
	for _, c := range m.desc.Couplings {
		src, err := m.spanningState.ByName(c.Independent)
		if err != nil {
			return err
		}
		idx, err := m.spanningState.Index(c.Joint)
		if err != nil {
			return err
		}
		m.spanningState.Values[idx] = robotmodel.JointValue{
			Position:     c.Factor*src.Position + c.Offset,
			Velocity:     c.Factor * src.Velocity,
			Acceleration: c.Factor * src.Acceleration,
			Effort:       0,
		}
	}
	m.spanningState.Time = state.Time

	if err := m.inner.Update(m.spanningState, floatingBase); err != nil {
		return err
	}
	m.updated = true
	return nil
}

// checkRoot restricts queries to the base (or world) frame as root; the
// projected kinematics are only valid from the root of the spanning tree.
func (m *Model) checkRoot(root, tip string) error {
	if !m.updated {
		return robotmodel.ErrNotUpdated
	}
	if root != m.inner.BaseFrame() && root != m.inner.WorldFrame() {
		return robotmodel.NewInvalidFrameError(root, tip)
	}
	return nil
}

// RigidBodyState implements robotmodel.RobotModel.
func (m *Model) RigidBodyState(root, tip string) (robotmodel.RigidBodyStateSE3, error) {
	if err := m.checkRoot(root, tip); err != nil {
		return robotmodel.RigidBodyStateSE3{}, err
	}
	return m.inner.RigidBodyState(root, tip)
}

// SpaceJacobian implements robotmodel.RobotModel.
func (m *Model) SpaceJacobian(root, tip string) (*mat.Dense, error) {
	if err := m.checkRoot(root, tip); err != nil {
		return nil, err
	}
	full, err := m.inner.SpaceJacobian(root, tip)
	if err != nil {
		return nil, err
	}
	return m.project(full), nil
}

// BodyJacobian implements robotmodel.RobotModel.
func (m *Model) BodyJacobian(root, tip string) (*mat.Dense, error) {
	if err := m.checkRoot(root, tip); err != nil {
		return nil, err
	}
	full, err := m.inner.BodyJacobian(root, tip)
	if err != nil {
		return nil, err
	}
	return m.project(full), nil
}

// JacobianDot implements robotmodel.RobotModel. The submechanism back-end
// cannot compute it.
func (m *Model) JacobianDot(root, tip string) (*mat.Dense, error) {
	return nil, robotmodel.ErrNotImplemented
}

// SpatialAccelerationBias implements robotmodel.RobotModel. G is constant,
// so the bias of the projected Jacobian equals the spanning-tree bias.
func (m *Model) SpatialAccelerationBias(root, tip string) (spatialmath.SpatialAcceleration, error) {
	if err := m.checkRoot(root, tip); err != nil {
		return spatialmath.SpatialAcceleration{}, err
	}
	return m.inner.SpatialAccelerationBias(root, tip)
}

// JointSpaceInertiaMatrix implements robotmodel.RobotModel.
func (m *Model) JointSpaceInertiaMatrix() (*mat.Dense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	full, err := m.inner.JointSpaceInertiaMatrix()
	if err != nil {
		return nil, err
	}
	nu := len(m.jointNames)
	out := mat.NewDense(nu, nu, nil)
	var tmp mat.Dense
	tmp.Mul(full, m.projection)
	out.Mul(m.projection.T(), &tmp)
	return out, nil
}

// BiasForces implements robotmodel.RobotModel.
func (m *Model) BiasForces() (*mat.VecDense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	full, err := m.inner.BiasForces()
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(len(m.jointNames), nil)
	out.MulVec(m.projection.T(), full)
	return out, nil
}

// CenterOfMass implements robotmodel.RobotModel.
func (m *Model) CenterOfMass() (r3.Vector, error) {
	if !m.updated {
		return r3.Vector{}, robotmodel.ErrNotUpdated
	}
	return m.inner.CenterOfMass()
}

// CoMJacobian implements robotmodel.RobotModel.
func (m *Model) CoMJacobian() (*mat.Dense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	full, err := m.inner.CoMJacobian()
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(3, len(m.jointNames), nil)
	out.Mul(full, m.projection)
	return out, nil
}

// project maps a full-width Jacobian into the independent joint space.
func (m *Model) project(full *mat.Dense) *mat.Dense {
	r, _ := full.Dims()
	out := mat.NewDense(r, len(m.jointNames), nil)
	out.Mul(full, m.projection)
	return out
}

// JointState implements robotmodel.RobotModel.
func (m *Model) JointState(names []string) (robotmodel.JointState, error) {
	if !m.updated {
		return robotmodel.JointState{}, robotmodel.ErrNotUpdated
	}
	return m.inner.JointState(names)
}

// Limits implements robotmodel.RobotModel.
func (m *Model) Limits() []robotmodel.JointLimits { return m.limits }

// SelectionMatrix implements robotmodel.RobotModel.
func (m *Model) SelectionMatrix() *mat.Dense { return m.selection }

// ActiveContacts implements robotmodel.RobotModel.
func (m *Model) ActiveContacts() robotmodel.ActiveContacts { return m.inner.ActiveContacts() }

// SetActiveContacts implements robotmodel.RobotModel.
func (m *Model) SetActiveContacts(contacts robotmodel.ActiveContacts) error {
	return m.inner.SetActiveContacts(contacts)
}

// WorldFrame implements robotmodel.RobotModel.
func (m *Model) WorldFrame() string { return m.inner.WorldFrame() }

// BaseFrame implements robotmodel.RobotModel.
func (m *Model) BaseFrame() string { return m.inner.BaseFrame() }

// JointNames implements robotmodel.RobotModel.
func (m *Model) JointNames() []string { return m.jointNames }

// ActuatedJointNames implements robotmodel.RobotModel.
func (m *Model) ActuatedJointNames() []string { return m.actuatedNames }

// JointIndex implements robotmodel.RobotModel.
func (m *Model) JointIndex(name string) (int, error) {
	idx, ok := m.jointIdx[name]
	if !ok {
		return -1, robotmodel.NewUnknownJointError(name)
	}
	return idx, nil
}

// NumJoints implements robotmodel.RobotModel.
func (m *Model) NumJoints() int { return len(m.jointNames) }

// NumActuatedJoints implements robotmodel.RobotModel.
func (m *Model) NumActuatedJoints() int { return len(m.actuatedNames) }

// HasLink implements robotmodel.RobotModel.
func (m *Model) HasLink(name string) bool { return m.inner.HasLink(name) }

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

// Clear implements robotmodel.RobotModel.
func (m *Model) Clear() {
	logger := m.logger
	*m = Model{logger: logger, inner: kintree.NewModel(logger)}
}

var _ robotmodel.RobotModel = (*Model)(nil)
