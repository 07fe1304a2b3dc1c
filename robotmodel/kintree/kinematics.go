package kintree

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/spatialmath"
)

// forwardPass computes pose, velocity and acceleration of every body in tree
// order, all expressed in the tree root frame. Accelerations use the
// measured joint accelerations and do not include gravity.
func (m *Model) forwardPass() {
	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.parent < 0 {
			m.states[i] = bodyState{pose: spatialmath.NewZeroPose()}
			continue
		}
		p := &m.states[b.parent]
		s := &m.states[i]

		jointPose := b.joint.origin
		var q, qd, qdd float64
		if b.joint.qIdx >= 0 {
			q, qd, qdd = m.q[b.joint.qIdx], m.qd[b.joint.qIdx], m.qdd[b.joint.qIdx]
		}
		switch b.joint.typ {
		case jointRevolute:
			jointPose = spatialmath.Compose(jointPose,
				spatialmath.NewPose(r3.Vector{}, spatialmath.QuatFromAxisAngle(b.joint.axis, q)))
		case jointPrismatic:
			jointPose = spatialmath.Compose(jointPose,
				spatialmath.NewPoseFromPoint(b.joint.axis.Mul(q)))
		case jointFixed:
		}
		s.pose = spatialmath.Compose(p.pose, jointPose)
		s.axisW = s.pose.RotateVector(b.joint.axis)

		r := s.pose.Point().Sub(p.pose.Point())
		s.omega = p.omega
		s.vel = p.vel.Add(p.omega.Cross(r))
		s.alpha = p.alpha
		s.acc = p.acc.Add(p.alpha.Cross(r)).Add(p.omega.Cross(p.omega.Cross(r)))

		switch b.joint.typ {
		case jointRevolute:
			s.omega = s.omega.Add(s.axisW.Mul(qd))
			s.alpha = s.alpha.Add(s.axisW.Mul(qdd)).Add(p.omega.Cross(s.axisW.Mul(qd)))
		case jointPrismatic:
			axisVel := s.axisW.Mul(qd)
			s.vel = s.vel.Add(axisVel)
			s.acc = s.acc.Add(s.axisW.Mul(qdd)).Add(p.omega.Cross(axisVel).Mul(2))
		case jointFixed:
		}
	}
}

// markAncestors flags every body on the path from the root to idx.
func (m *Model) markAncestors(idx int, flags []bool) {
	for i := range flags {
		flags[i] = false
	}
	for i := idx; i >= 0; i = m.tree.bodies[i].parent {
		flags[i] = true
	}
}

// relativeJacobian fills a 6 x nq Jacobian of the motion of point (given in
// root-frame/world coordinates, attached to the tip body) relative to the
// root body, expressed in tree root coordinates. Row order is
// (linear_xyz, angular_xyz).
func (m *Model) relativeJacobian(rootIdx, tipIdx int, point r3.Vector, jac *mat.Dense) {
	jac.Zero()
	ancTip := make([]bool, len(m.tree.bodies))
	ancRoot := make([]bool, len(m.tree.bodies))
	m.markAncestors(tipIdx, ancTip)
	m.markAncestors(rootIdx, ancRoot)

	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.joint.qIdx < 0 {
			continue
		}
		sign := 0.0
		switch {
		case ancTip[i] && !ancRoot[i]:
			sign = 1
		case ancRoot[i] && !ancTip[i]:
			sign = -1
		default:
			continue
		}
		s := &m.states[i]
		var lin, ang r3.Vector
		switch b.joint.typ {
		case jointRevolute:
			lin = s.axisW.Cross(point.Sub(s.pose.Point()))
			ang = s.axisW
		case jointPrismatic:
			lin = s.axisW
		case jointFixed:
		}
		col := b.joint.qIdx
		jac.Set(0, col, sign*lin.X)
		jac.Set(1, col, sign*lin.Y)
		jac.Set(2, col, sign*lin.Z)
		jac.Set(3, col, sign*ang.X)
		jac.Set(4, col, sign*ang.Y)
		jac.Set(5, col, sign*ang.Z)
	}
}

// relativeJacobianDot fills the time derivative of relativeJacobian, still in
// tree root coordinates, with the point fixed to the tip body.
func (m *Model) relativeJacobianDot(rootIdx, tipIdx int, jacDot *mat.Dense) {
	jacDot.Zero()
	ancTip := make([]bool, len(m.tree.bodies))
	ancRoot := make([]bool, len(m.tree.bodies))
	m.markAncestors(tipIdx, ancTip)
	m.markAncestors(rootIdx, ancRoot)

	tip := &m.states[tipIdx]
	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.joint.qIdx < 0 {
			continue
		}
		sign := 0.0
		switch {
		case ancTip[i] && !ancRoot[i]:
			sign = 1
		case ancRoot[i] && !ancTip[i]:
			sign = -1
		default:
			continue
		}
		s := &m.states[i]
		sDot := s.omega.Cross(s.axisW)
		var dlin, dang r3.Vector
		switch b.joint.typ {
		case jointRevolute:
			dlin = sDot.Cross(tip.pose.Point().Sub(s.pose.Point())).
				Add(s.axisW.Cross(tip.vel.Sub(s.vel)))
			dang = sDot
		case jointPrismatic:
			dlin = sDot
		case jointFixed:
		}
		col := b.joint.qIdx
		jacDot.Set(0, col, sign*dlin.X)
		jacDot.Set(1, col, sign*dlin.Y)
		jacDot.Set(2, col, sign*dlin.Z)
		jacDot.Set(3, col, sign*dang.X)
		jacDot.Set(4, col, sign*dang.Y)
		jacDot.Set(5, col, sign*dang.Z)
	}
}

// rotateJacobianInto re-expresses a tree-root-frame Jacobian in the frame of
// the given body by rotating both three-row blocks.
func (m *Model) rotateJacobianInto(frameIdx int, jac *mat.Dense) {
	rot := m.states[frameIdx].pose.Invert()
	_, nq := jac.Dims()
	for c := 0; c < nq; c++ {
		lin := rot.RotateVector(r3.Vector{X: jac.At(0, c), Y: jac.At(1, c), Z: jac.At(2, c)})
		ang := rot.RotateVector(r3.Vector{X: jac.At(3, c), Y: jac.At(4, c), Z: jac.At(5, c)})
		jac.Set(0, c, lin.X)
		jac.Set(1, c, lin.Y)
		jac.Set(2, c, lin.Z)
		jac.Set(3, c, ang.X)
		jac.Set(4, c, ang.Y)
		jac.Set(5, c, ang.Z)
	}
}

func (m *Model) frameIndex(name string) (int, error) {
	idx, ok := m.tree.bodyIndex[name]
	if !ok {
		return -1, robotmodel.NewUnknownFrameError(name)
	}
	return idx, nil
}

func (m *Model) framePair(root, tip string) (int, int, error) {
	if !m.updated {
		return -1, -1, robotmodel.ErrNotUpdated
	}
	rootIdx, err := m.frameIndex(root)
	if err != nil {
		return -1, -1, err
	}
	tipIdx, err := m.frameIndex(tip)
	if err != nil {
		return -1, -1, err
	}
	return rootIdx, tipIdx, nil
}

// SpaceJacobian implements robotmodel.RobotModel.
func (m *Model) SpaceJacobian(root, tip string) (*mat.Dense, error) {
	rootIdx, tipIdx, err := m.framePair(root, tip)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(6, m.NumJoints(), nil)
	m.relativeJacobian(rootIdx, tipIdx, m.states[tipIdx].pose.Point(), jac)
	m.rotateJacobianInto(rootIdx, jac)
	return jac, nil
}

// BodyJacobian implements robotmodel.RobotModel.
func (m *Model) BodyJacobian(root, tip string) (*mat.Dense, error) {
	rootIdx, tipIdx, err := m.framePair(root, tip)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(6, m.NumJoints(), nil)
	m.relativeJacobian(rootIdx, tipIdx, m.states[tipIdx].pose.Point(), jac)
	m.rotateJacobianInto(tipIdx, jac)
	return jac, nil
}

// JacobianDot implements robotmodel.RobotModel. The derivative accounts for
// a moving root frame, so J̇·q̇ stays the true bias of J·q̈.
func (m *Model) JacobianDot(root, tip string) (*mat.Dense, error) {
	rootIdx, tipIdx, err := m.framePair(root, tip)
	if err != nil {
		return nil, err
	}
	nq := m.NumJoints()
	jac := mat.NewDense(6, nq, nil)
	jacDot := mat.NewDense(6, nq, nil)
	m.relativeJacobian(rootIdx, tipIdx, m.states[tipIdx].pose.Point(), jac)
	m.relativeJacobianDot(rootIdx, tipIdx, jacDot)

	// d/dt (Rᵀ J) = Rᵀ (J̇ − ω_root × J)
	rootState := &m.states[rootIdx]
	rot := rootState.pose.Invert()
	for c := 0; c < nq; c++ {
		lin := r3.Vector{X: jac.At(0, c), Y: jac.At(1, c), Z: jac.At(2, c)}
		ang := r3.Vector{X: jac.At(3, c), Y: jac.At(4, c), Z: jac.At(5, c)}
		dlin := r3.Vector{X: jacDot.At(0, c), Y: jacDot.At(1, c), Z: jacDot.At(2, c)}
		dang := r3.Vector{X: jacDot.At(3, c), Y: jacDot.At(4, c), Z: jacDot.At(5, c)}
		dlin = rot.RotateVector(dlin.Sub(rootState.omega.Cross(lin)))
		dang = rot.RotateVector(dang.Sub(rootState.omega.Cross(ang)))
		jacDot.Set(0, c, dlin.X)
		jacDot.Set(1, c, dlin.Y)
		jacDot.Set(2, c, dlin.Z)
		jacDot.Set(3, c, dang.X)
		jacDot.Set(4, c, dang.Y)
		jacDot.Set(5, c, dang.Z)
	}
	return jacDot, nil
}

// SpatialAccelerationBias implements robotmodel.RobotModel.
func (m *Model) SpatialAccelerationBias(root, tip string) (spatialmath.SpatialAcceleration, error) {
	jacDot, err := m.JacobianDot(root, tip)
	if err != nil {
		return spatialmath.SpatialAcceleration{}, err
	}
	var bias mat.VecDense
	bias.MulVec(jacDot, mat.NewVecDense(len(m.qd), m.qd))
	return spatialmath.AccelerationFromSlice(bias.RawVector().Data), nil
}

// RigidBodyState implements robotmodel.RobotModel. Twist and acceleration
// follow the Jacobian algebra of the scene, so J·q̇ and J·q̈ + J̇·q̇
// reproduce them exactly.
func (m *Model) RigidBodyState(root, tip string) (robotmodel.RigidBodyStateSE3, error) {
	rootIdx, tipIdx, err := m.framePair(root, tip)
	if err != nil {
		return robotmodel.RigidBodyStateSE3{}, err
	}

	jac := mat.NewDense(6, m.NumJoints(), nil)
	m.relativeJacobian(rootIdx, tipIdx, m.states[tipIdx].pose.Point(), jac)
	m.rotateJacobianInto(rootIdx, jac)
	var twist mat.VecDense
	twist.MulVec(jac, mat.NewVecDense(len(m.qd), m.qd))

	bias, err := m.SpatialAccelerationBias(root, tip)
	if err != nil {
		return robotmodel.RigidBodyStateSE3{}, err
	}
	var accTerm mat.VecDense
	accTerm.MulVec(jac, mat.NewVecDense(len(m.qdd), m.qdd))
	acc := spatialmath.AccelerationFromSlice(accTerm.RawVector().Data)
	acc.Linear = acc.Linear.Add(bias.Linear)
	acc.Angular = acc.Angular.Add(bias.Angular)

	return robotmodel.RigidBodyStateSE3{
		FrameID:      root,
		Pose:         spatialmath.Compose(m.states[rootIdx].pose.Invert(), m.states[tipIdx].pose),
		Twist:        spatialmath.TwistFromSlice(twist.RawVector().Data),
		Acceleration: acc,
		Time:         m.lastTime,
	}, nil
}
