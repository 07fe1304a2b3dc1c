package solver

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	activeSetMaxIter   = 100
	activeSetTolerance = 1e-9
)

// ErrSolverFailure is returned when the QP solver cannot produce a finite,
// feasible solution.
var ErrSolverFailure = errors.New("QP solver failed")

// ActiveSetSolver is a dense primal active-set solver for a single-priority
// QP with equality constraints, double-sided inequality rows and variable
// bounds. It is the reference back-end of the QP scenes; any external solver
// implementing QPSolver can replace it.
type ActiveSetSolver struct {
	logger golog.Logger
}

// NewActiveSetSolver returns a ready solver.
func NewActiveSetSolver(logger golog.Logger) *ActiveSetSolver {
	return &ActiveSetSolver{logger: logger}
}

// oneSided is an inequality in the form aᵀx ≤ b.
type oneSided struct {
	a []float64
	b float64
}

// Solve implements QPSolver.
func (s *ActiveSetSolver) Solve(hqp *HierarchicalQP, out []float64) error {
	if len(hqp.Problems) != 1 {
		return errors.Wrapf(ErrSolverFailure, "the dense active-set solver supports exactly one priority, got %d", len(hqp.Problems))
	}
	p := hqp.Problems[0]
	nq := p.NQ
	if len(out) != nq {
		return errors.Wrapf(ErrSolverFailure, "output buffer has %d entries, expected %d", len(out), nq)
	}
	if p.H == nil || p.G == nil {
		return errors.Wrap(ErrSolverFailure, "problem has no quadratic cost")
	}

	inequalities := gatherInequalities(p)

	nEq := 0
	if p.A != nil {
		nEq, _ = p.A.Dims()
	}
	active := []int{} // indices into inequalities
	x := mat.NewVecDense(nq, nil)

	converged := false
	for iter := 0; iter < activeSetMaxIter; iter++ {
		multipliers, err := s.solveKKT(p, inequalities, active, x)
		if err != nil {
			return errors.Wrap(ErrSolverFailure, err.Error())
		}

		// most violated inactive inequality
		worst, worstViolation := -1, activeSetTolerance
		for i, c := range inequalities {
			if intsContain(active, i) {
				continue
			}
			v := dot(c.a, x) - c.b
			if v > worstViolation {
				worst, worstViolation = i, v
			}
		}
		if worst >= 0 {
			active = append(active, worst)
			continue
		}

		// all feasible: drop the most negative multiplier, if any
		dropPos, dropVal := -1, -activeSetTolerance
		for pos := range active {
			mu := multipliers[nEq+pos]
			if mu < dropVal {
				dropPos, dropVal = pos, mu
			}
		}
		if dropPos < 0 {
			converged = true
			break
		}
		active = append(active[:dropPos], active[dropPos+1:]...)
	}
	if !converged {
		s.logger.Warnw("active-set iteration limit reached", "iterations", activeSetMaxIter)
		return errors.Wrap(ErrSolverFailure, "active set did not converge")
	}

	for i := 0; i < nq; i++ {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrSolverFailure, "solution is non-finite")
		}
		out[i] = v
	}
	return nil
}

// solveKKT solves the equality-constrained QP given by the equalities plus
// the active inequalities, overwriting x and returning the constraint
// multipliers.
func (s *ActiveSetSolver) solveKKT(p *QPProblem, inequalities []oneSided, active []int, x *mat.VecDense) ([]float64, error) {
	nq := p.NQ
	nEq := 0
	if p.A != nil {
		nEq, _ = p.A.Dims()
	}
	k := nEq + len(active)
	dim := nq + k

	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	for i := 0; i < nq; i++ {
		for j := 0; j < nq; j++ {
			kkt.Set(i, j, p.H.At(i, j))
		}
		rhs.SetVec(i, -p.G.AtVec(i))
	}
	for r := 0; r < nEq; r++ {
		for j := 0; j < nq; j++ {
			kkt.Set(nq+r, j, p.A.At(r, j))
			kkt.Set(j, nq+r, p.A.At(r, j))
		}
		rhs.SetVec(nq+r, p.B.AtVec(r))
	}
	for pos, idx := range active {
		c := inequalities[idx]
		for j := 0; j < nq; j++ {
			kkt.Set(nq+nEq+pos, j, c.a[j])
			kkt.Set(j, nq+nEq+pos, c.a[j])
		}
		rhs.SetVec(nq+nEq+pos, c.b)
	}

	sol := mat.NewVecDense(dim, nil)
	if err := sol.SolveVec(kkt, rhs); err != nil {
		// regularize a semi-definite Hessian and retry once
		for i := 0; i < nq; i++ {
			kkt.Set(i, i, kkt.At(i, i)+1e-10)
		}
		if err := sol.SolveVec(kkt, rhs); err != nil {
			return nil, errors.Wrap(err, "KKT system is singular")
		}
	}

	for i := 0; i < nq; i++ {
		x.SetVec(i, sol.AtVec(i))
	}
	multipliers := make([]float64, k)
	for i := 0; i < k; i++ {
		multipliers[i] = sol.AtVec(nq + i)
	}
	return multipliers, nil
}

// gatherInequalities normalizes the double-sided rows and the variable
// bounds to aᵀx ≤ b form. Sentinel bounds are skipped.
func gatherInequalities(p *QPProblem) []oneSided {
	nq := p.NQ
	var out []oneSided
	if p.C != nil {
		rows, _ := p.C.Dims()
		for r := 0; r < rows; r++ {
			row := make([]float64, nq)
			neg := make([]float64, nq)
			for j := 0; j < nq; j++ {
				row[j] = p.C.At(r, j)
				neg[j] = -row[j]
			}
			if ub := p.UpperY.AtVec(r); ub < Unbounded {
				out = append(out, oneSided{a: row, b: ub})
			}
			if lb := p.LowerY.AtVec(r); lb > -Unbounded {
				out = append(out, oneSided{a: neg, b: -lb})
			}
		}
	}
	for i := 0; i < nq; i++ {
		if ub := p.UpperX.AtVec(i); ub < Unbounded {
			a := make([]float64, nq)
			a[i] = 1
			out = append(out, oneSided{a: a, b: ub})
		}
		if lb := p.LowerX.AtVec(i); lb > -Unbounded {
			a := make([]float64, nq)
			a[i] = -1
			out = append(out, oneSided{a: a, b: -lb})
		}
	}
	return out
}

func dot(a []float64, x *mat.VecDense) float64 {
	sum := 0.0
	for i, v := range a {
		sum += v * x.AtVec(i)
	}
	return sum
}

func intsContain(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
