package solver

import (
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PriorityData is the per-priority debug output of the hierarchical solver.
type PriorityData struct {
	Time          time.Time
	Priority      int
	NumRows       int
	NumJoints     int
	YDes          []float64
	YSolution     []float64
	SingularVals  []float64
	Damping       float64
	ErrorRatio    float64 // ‖y_des‖ / ‖y_solution‖
}

// HierarchicalWDLSSolver solves a stack of velocity-level least-squares
// problems by projecting every priority into the nullspace of all higher
// ones:
//
//	q̇_p = q̇_{p−1} + (A_p·N_{p−1})⁺·(y_p − A_p·q̇_{p−1})
//	N_p = N_{p−1}·(I − (A_p·N_{p−1})⁺·(A_p·N_{p−1}))
//
// The inverse is the weighted damped pseudo-inverse of GeneralizedInverse,
// with the scene's joint weights as column weights and the damping bounded
// by the configured maximum solution norm.
type HierarchicalWDLSSolver struct {
	logger  golog.Logger
	inverse *GeneralizedInverse
	normMax float64

	priorityData []PriorityData
}

// NewHierarchicalWDLSSolver returns a solver bounding each priority's
// contribution to the given norm.
func NewHierarchicalWDLSSolver(logger golog.Logger, normMax float64) *HierarchicalWDLSSolver {
	inv := NewGeneralizedInverse()
	inv.SetNormMax(normMax)
	return &HierarchicalWDLSSolver{logger: logger, inverse: inv, normMax: normMax}
}

// PriorityData returns the debug data of the last solve, one entry per
// priority.
func (s *HierarchicalWDLSSolver) PriorityData() []PriorityData {
	return s.priorityData
}

// Solve implements QPSolver. Only the A/B blocks of each problem are read;
// lower priorities cannot alter higher-priority residuals.
func (s *HierarchicalWDLSSolver) Solve(hqp *HierarchicalQP, out []float64) error {
	if len(hqp.Problems) == 0 {
		return errors.New("hierarchical QP contains no priorities")
	}
	nq := hqp.Problems[0].NQ
	if len(out) != nq {
		return errors.Errorf("output buffer has %d entries, expected %d", len(out), nq)
	}
	if len(hqp.Wq) > 0 {
		s.inverse.SetColWeights(hqp.Wq)
	} else {
		s.inverse.SetColWeights(nil)
	}

	x := mat.NewVecDense(nq, nil)
	nullspace := identity(nq)
	s.priorityData = s.priorityData[:0]

	for p, prob := range hqp.Problems {
		if prob.A == nil || prob.B == nil {
			return errors.Errorf("priority %d has no task rows", p)
		}
		rows, cols := prob.A.Dims()
		if cols != nq {
			return errors.Errorf("priority %d has %d columns, expected %d", p, cols, nq)
		}

		var projected mat.Dense
		projected.Mul(prob.A, nullspace)

		// residual of this priority under the solution so far
		residual := mat.NewVecDense(rows, nil)
		residual.MulVec(prob.A, x)
		residual.SubVec(prob.B, residual)

		inv := mat.NewDense(nq, rows, nil)
		if err := s.inverse.ComputeInverseForRHS(&projected, residual, inv); err != nil {
			return errors.Wrapf(err, "priority %d", p)
		}

		var step mat.VecDense
		step.MulVec(inv, residual)
		x.AddVec(x, &step)

		// N ← N·(I − inv·projected)
		var invProj mat.Dense
		invProj.Mul(inv, &projected)
		reducer := identity(nq)
		reducer.Sub(reducer, &invProj)
		var next mat.Dense
		next.Mul(nullspace, reducer)
		nullspace.Copy(&next)

		s.priorityData = append(s.priorityData, s.makePriorityData(p, prob, x, hqp.Time))
	}

	for i := 0; i < nq; i++ {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("hierarchical solver produced a non-finite solution")
		}
		out[i] = v
	}
	return nil
}

func (s *HierarchicalWDLSSolver) makePriorityData(p int, prob *QPProblem, x *mat.VecDense, t time.Time) PriorityData {
	rows, _ := prob.A.Dims()
	data := PriorityData{
		Time:         t,
		Priority:     p,
		NumRows:      rows,
		NumJoints:    prob.NQ,
		YDes:         make([]float64, rows),
		YSolution:    make([]float64, rows),
		SingularVals: append([]float64{}, s.inverse.SingularValues()...),
		Damping:      s.inverse.CurrentDamping(),
	}
	var ySol mat.VecDense
	ySol.MulVec(prob.A, x)
	desNorm, solNorm := 0.0, 0.0
	for i := 0; i < rows; i++ {
		data.YDes[i] = prob.B.AtVec(i)
		data.YSolution[i] = ySol.AtVec(i)
		desNorm += data.YDes[i] * data.YDes[i]
		solNorm += data.YSolution[i] * data.YSolution[i]
	}
	if solNorm > 0 {
		data.ErrorRatio = math.Sqrt(desNorm) / math.Sqrt(solNorm)
	} else {
		data.ErrorRatio = math.NaN()
	}
	return data
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
