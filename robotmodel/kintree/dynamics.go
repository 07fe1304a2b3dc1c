package kintree

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
)

// computeDynamics fills the joint-space inertia matrix and the bias force
// vector for the current state.
func (m *Model) computeDynamics() error {
	m.computeInertia()
	m.computeBiasForces()
	if !matIsFinite(m.inertiaMat) || !vecIsFinite(m.biasVec) {
		return robotmodel.NewNumericError("joint space dynamics")
	}
	return nil
}

// computeInertia builds H = Σ mᵢ·Jvᵢᵀ·Jvᵢ + Jωᵢᵀ·Iᵢ·Jωᵢ over all bodies,
// with the Jacobians taken at each body's center of mass in the tree root
// frame. The sum over bodies is what a composite-rigid-body recursion
// produces, written as an explicit quadratic form.
func (m *Model) computeInertia() {
	nq := m.NumJoints()
	m.inertiaMat.Zero()
	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.mass == 0 && b.inertia == ([9]float64{}) {
			continue
		}
		s := &m.states[i]
		comW := s.pose.TransformPoint(b.com)
		m.relativeJacobian(0, i, comW, m.scratchJac)

		rot := rotationMatrix(s.pose.Rotation())
		iw := rotateInertiaWorld(rot, b.inertia)

		for c1 := 0; c1 < nq; c1++ {
			lin1 := colVec(m.scratchJac, 0, c1)
			ang1 := colVec(m.scratchJac, 3, c1)
			iwAng1 := mulInertia(iw, ang1)
			for c2 := c1; c2 < nq; c2++ {
				lin2 := colVec(m.scratchJac, 0, c2)
				ang2 := colVec(m.scratchJac, 3, c2)
				v := b.mass*lin1.Dot(lin2) + iwAng1.Dot(ang2)
				m.inertiaMat.Set(c1, c2, m.inertiaMat.At(c1, c2)+v)
				if c1 != c2 {
					m.inertiaMat.Set(c2, c1, m.inertiaMat.At(c2, c1)+v)
				}
			}
		}
	}
}

// computeBiasForces runs a recursive Newton-Euler sweep with zero joint
// accelerations and the root seeded with -g, which yields the Coriolis,
// centrifugal and gravity torques in one vector.
func (m *Model) computeBiasForces() {
	n := len(m.tree.bodies)

	// forward sweep: accelerations with q̈ = 0, gravity folded into the seed
	for i := 0; i < n; i++ {
		b := &m.tree.bodies[i]
		if b.parent < 0 {
			m.biasAlpha[i] = r3.Vector{}
			m.biasAcc[i] = m.gravity.Mul(-1)
			continue
		}
		p := b.parent
		s := &m.states[i]
		ps := &m.states[p]
		r := s.pose.Point().Sub(ps.pose.Point())
		m.biasAlpha[i] = m.biasAlpha[p]
		m.biasAcc[i] = m.biasAcc[p].
			Add(m.biasAlpha[p].Cross(r)).
			Add(ps.omega.Cross(ps.omega.Cross(r)))

		if b.joint.qIdx >= 0 {
			qd := m.qd[b.joint.qIdx]
			switch b.joint.typ {
			case jointRevolute:
				m.biasAlpha[i] = m.biasAlpha[i].Add(ps.omega.Cross(s.axisW.Mul(qd)))
			case jointPrismatic:
				m.biasAcc[i] = m.biasAcc[i].Add(ps.omega.Cross(s.axisW.Mul(qd)).Mul(2))
			case jointFixed:
			}
		}
	}

	// backward sweep: accumulate forces and torques towards the root
	for i := 0; i < n; i++ {
		b := &m.tree.bodies[i]
		s := &m.states[i]
		comW := s.pose.TransformPoint(b.com)
		rc := comW.Sub(s.pose.Point())
		aCom := m.biasAcc[i].
			Add(m.biasAlpha[i].Cross(rc)).
			Add(s.omega.Cross(s.omega.Cross(rc)))

		rot := rotationMatrix(s.pose.Rotation())
		iw := rotateInertiaWorld(rot, b.inertia)

		m.forceAcc[i] = aCom.Mul(b.mass)
		m.torqueAcc[i] = mulInertia(iw, m.biasAlpha[i]).
			Add(s.omega.Cross(mulInertia(iw, s.omega))).
			Add(rc.Cross(aCom.Mul(b.mass)))
	}
	for i := n - 1; i > 0; i-- {
		b := &m.tree.bodies[i]
		p := b.parent
		r := m.states[i].pose.Point().Sub(m.states[p].pose.Point())
		m.forceAcc[p] = m.forceAcc[p].Add(m.forceAcc[i])
		m.torqueAcc[p] = m.torqueAcc[p].Add(m.torqueAcc[i]).Add(r.Cross(m.forceAcc[i]))
	}

	m.biasVec.Zero()
	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.joint.qIdx < 0 {
			continue
		}
		s := &m.states[i]
		switch b.joint.typ {
		case jointRevolute:
			m.biasVec.SetVec(b.joint.qIdx, s.axisW.Dot(m.torqueAcc[i]))
		case jointPrismatic:
			m.biasVec.SetVec(b.joint.qIdx, s.axisW.Dot(m.forceAcc[i]))
		case jointFixed:
		}
	}
}

// computeCoM fills the whole-body center of mass and its Jacobian.
func (m *Model) computeCoM() {
	nq := m.NumJoints()
	m.comJac.Zero()
	m.comPos = r3.Vector{}
	total := 0.0
	for i := range m.tree.bodies {
		b := &m.tree.bodies[i]
		if b.mass == 0 {
			continue
		}
		comW := m.states[i].pose.TransformPoint(b.com)
		m.comPos = m.comPos.Add(comW.Mul(b.mass))
		total += b.mass

		m.relativeJacobian(0, i, comW, m.scratchJac)
		for c := 0; c < nq; c++ {
			for r := 0; r < 3; r++ {
				m.comJac.Set(r, c, m.comJac.At(r, c)+b.mass*m.scratchJac.At(r, c))
			}
		}
	}
	if total > 0 {
		m.comPos = m.comPos.Mul(1 / total)
		m.comJac.Scale(1/total, m.comJac)
	}
}

// JointSpaceInertiaMatrix implements robotmodel.RobotModel.
func (m *Model) JointSpaceInertiaMatrix() (*mat.Dense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	return m.inertiaMat, nil
}

// BiasForces implements robotmodel.RobotModel.
func (m *Model) BiasForces() (*mat.VecDense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	return m.biasVec, nil
}

// CenterOfMass implements robotmodel.RobotModel.
func (m *Model) CenterOfMass() (r3.Vector, error) {
	if !m.updated {
		return r3.Vector{}, robotmodel.ErrNotUpdated
	}
	return m.comPos, nil
}

// CoMJacobian implements robotmodel.RobotModel.
func (m *Model) CoMJacobian() (*mat.Dense, error) {
	if !m.updated {
		return nil, robotmodel.ErrNotUpdated
	}
	return m.comJac, nil
}

func colVec(jac *mat.Dense, rowOffset, col int) r3.Vector {
	return r3.Vector{
		X: jac.At(rowOffset, col),
		Y: jac.At(rowOffset+1, col),
		Z: jac.At(rowOffset+2, col),
	}
}

// rotateInertiaWorld computes R·I·Rᵀ with I given row major.
func rotateInertiaWorld(r [9]float64, local [9]float64) [9]float64 {
	var tmp, out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0.0
			for k := 0; k < 3; k++ {
				s += r[i*3+k] * local[k*3+j]
			}
			tmp[i*3+j] = s
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0.0
			for k := 0; k < 3; k++ {
				s += tmp[i*3+k] * r[j*3+k]
			}
			out[i*3+j] = s
		}
	}
	return out
}

func mulInertia(i [9]float64, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: i[0]*v.X + i[1]*v.Y + i[2]*v.Z,
		Y: i[3]*v.X + i[4]*v.Y + i[5]*v.Z,
		Z: i[6]*v.X + i[7]*v.Y + i[8]*v.Z,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func matIsFinite(a *mat.Dense) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !isFinite(a.At(i, j)) {
				return false
			}
		}
	}
	return true
}

func vecIsFinite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if !isFinite(v.AtVec(i)) {
			return false
		}
	}
	return true
}
