package solver

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestActiveSetUnconstrained(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(2, 0, 0)
	p.H.Set(0, 0, 2)
	p.H.Set(1, 1, 2)
	p.G.SetVec(0, -2) // minimum at (1, -3)
	p.G.SetVec(1, 6)

	out := make([]float64, 2)
	test.That(t, s.Solve(&HierarchicalQP{Problems: []*QPProblem{p}}, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, out[1], test.ShouldAlmostEqual, -3, 1e-9)
}

func TestActiveSetEqualityConstraint(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(2, 1, 0)
	p.H.Set(0, 0, 2)
	p.H.Set(1, 1, 2)
	p.A.Set(0, 0, 1)
	p.A.Set(0, 1, 1)
	p.B.SetVec(0, 1)

	out := make([]float64, 2)
	test.That(t, s.Solve(&HierarchicalQP{Problems: []*QPProblem{p}}, out), test.ShouldBeNil)
	// minimum norm point on x0+x1=1
	test.That(t, out[0], test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, out[1], test.ShouldAlmostEqual, 0.5, 1e-9)
}

func TestActiveSetBoundClipping(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(1, 0, 0)
	p.H.Set(0, 0, 2)
	p.G.SetVec(0, -10) // unconstrained minimum at 5
	p.UpperX.SetVec(0, 1)

	out := make([]float64, 1)
	test.That(t, s.Solve(&HierarchicalQP{Problems: []*QPProblem{p}}, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-9)
}

func TestActiveSetInequalityRow(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(2, 0, 1)
	p.H.Set(0, 0, 2)
	p.H.Set(1, 1, 2)
	p.G.SetVec(0, -4) // unconstrained minimum at (2, 2)
	p.G.SetVec(1, -4)
	p.C.Set(0, 0, 1)
	p.C.Set(0, 1, 1)
	p.UpperY.SetVec(0, 2) // x0 + x1 ≤ 2

	out := make([]float64, 2)
	test.That(t, s.Solve(&HierarchicalQP{Problems: []*QPProblem{p}}, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, out[1], test.ShouldAlmostEqual, 1, 1e-9)
}

func TestActiveSetDropsInactiveConstraint(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(1, 0, 0)
	p.H.Set(0, 0, 2)
	p.G.SetVec(0, 2) // minimum at -1
	p.LowerX.SetVec(0, -5)
	p.UpperX.SetVec(0, 5)

	out := make([]float64, 1)
	test.That(t, s.Solve(&HierarchicalQP{Problems: []*QPProblem{p}}, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, -1, 1e-9)
}

func TestActiveSetRejectsMultiplePriorities(t *testing.T) {
	s := NewActiveSetSolver(golog.NewTestLogger(t))
	p := NewQPProblem(1, 0, 0)
	p.H.Set(0, 0, 1)
	out := make([]float64, 1)
	err := s.Solve(&HierarchicalQP{Problems: []*QPProblem{p, p}}, out)
	test.That(t, err, test.ShouldNotBeNil)
}
