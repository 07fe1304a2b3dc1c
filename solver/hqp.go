// Package solver contains the numeric back-ends of the whole-body control
// runtime: a weighted damped pseudo-inverse, a hierarchical weighted damped
// least-squares solver for velocity-level problems and a dense active-set
// solver for the quadratic programs assembled by the scenes.
package solver

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Unbounded is the sentinel written into unconstrained bound slots.
const Unbounded = 1e6

// QPProblem is one dense quadratic program
//
//	min ½xᵀHx + gᵀx  s.t.  Ax = b,  lb_y ≤ Cx ≤ ub_y,  lb_x ≤ x ≤ ub_x.
//
// The VelocityScene leaves H and G nil and uses A and B as the stacked task
// rows of one priority; the hierarchical least-squares solver treats them as
// its objective.
type QPProblem struct {
	NQ int

	H *mat.Dense
	G *mat.VecDense

	A *mat.Dense
	B *mat.VecDense

	C      *mat.Dense
	LowerY *mat.VecDense
	UpperY *mat.VecDense

	LowerX *mat.VecDense
	UpperX *mat.VecDense
}

// NewQPProblem returns a problem with all buffers sized, zero cost and
// sentinel bounds.
func NewQPProblem(nq, nEq, nIneq int) *QPProblem {
	p := &QPProblem{
		NQ:     nq,
		H:      mat.NewDense(nq, nq, nil),
		G:      mat.NewVecDense(nq, nil),
		LowerX: mat.NewVecDense(nq, nil),
		UpperX: mat.NewVecDense(nq, nil),
	}
	if nEq > 0 {
		p.A = mat.NewDense(nEq, nq, nil)
		p.B = mat.NewVecDense(nEq, nil)
	}
	if nIneq > 0 {
		p.C = mat.NewDense(nIneq, nq, nil)
		p.LowerY = mat.NewVecDense(nIneq, nil)
		p.UpperY = mat.NewVecDense(nIneq, nil)
	}
	p.ResetBounds()
	return p
}

// ResetBounds writes the ±Unbounded sentinels into every bound slot.
func (p *QPProblem) ResetBounds() {
	for i := 0; i < p.NQ; i++ {
		p.LowerX.SetVec(i, -Unbounded)
		p.UpperX.SetVec(i, Unbounded)
	}
	if p.LowerY != nil {
		for i := 0; i < p.LowerY.Len(); i++ {
			p.LowerY.SetVec(i, -Unbounded)
			p.UpperY.SetVec(i, Unbounded)
		}
	}
}

// HierarchicalQP is the ordered stack of programs handed from a scene to a
// solver, highest priority first.
type HierarchicalQP struct {
	Problems []*QPProblem
	// Wq are the per-joint weights of the scene.
	Wq   []float64
	Time time.Time
}

// QPSolver is the contract between a scene and any QP back-end.
type QPSolver interface {
	// Solve writes the solution of the hierarchy into out, which must have
	// length Problems[0].NQ.
	Solve(hqp *HierarchicalQP, out []float64) error
}
