package scene

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/task"
)

// DefaultDampingThreshold is the smallest singular value of H below which
// VelocitySceneQuadraticCost starts damping.
const DefaultDampingThreshold = 1e-5

// DefaultMaxDamping is the damping factor applied when H is fully singular.
const DefaultMaxDamping = 1e-2

// VelocitySceneQuadraticCost folds all tasks of a single priority into the
// cost function, H = Σ AwᵀAw and g = −Σ Awᵀy, and guards kinematic
// singularities with variable damping: when the smallest singular value of H
// drops below the threshold, a damping term tapered linearly in
// σ_min/threshold is added to the diagonal.
type VelocitySceneQuadraticCost struct {
	*baseScene

	dampingThreshold float64
	maxDamping       float64
	dampingFactor    float64

	hqp solver.HierarchicalQP
}

// NewVelocitySceneQuadraticCost creates the scene.
func NewVelocitySceneQuadraticCost(logger golog.Logger, model robotmodel.RobotModel, qpSolver solver.QPSolver) *VelocitySceneQuadraticCost {
	s := &VelocitySceneQuadraticCost{
		dampingThreshold: DefaultDampingThreshold,
		maxDamping:       DefaultMaxDamping,
	}
	s.baseScene = newBaseScene(logger, model, qpSolver, newVelocityTask)
	return s
}

// SetDampingThreshold overrides the singular value threshold.
func (s *VelocitySceneQuadraticCost) SetDampingThreshold(thresh float64) {
	s.dampingThreshold = thresh
}

// CurrentDampingFactor returns the damping applied by the last Update.
func (s *VelocitySceneQuadraticCost) CurrentDampingFactor() float64 {
	return s.dampingFactor
}

// Update implements Scene.
func (s *VelocitySceneQuadraticCost) Update() (*solver.HierarchicalQP, error) {
	if err := s.updateTasks(s.jointWeights); err != nil {
		return nil, err
	}
	if len(s.tasks) != 1 {
		return nil, errors.Errorf("a quadratic cost scene supports exactly one priority, got %d", len(s.tasks))
	}

	nq := s.model.NumJoints()
	prob := solver.NewQPProblem(nq, 0, 0)
	accumulateCost(prob, s.tasks[0], nq)
	s.dampingFactor = applyVariableDamping(prob.H, s.dampingThreshold, s.maxDamping)

	s.hqp.Problems = append(s.hqp.Problems[:0], prob)
	s.hqp.Wq = append(s.hqp.Wq[:0], s.jointWeights...)
	s.hqp.Time = s.clk.Now()
	return &s.hqp, nil
}

// accumulateCost adds every task's AwᵀAw and −Awᵀ·y_ref_root into the
// top-left nj x nj region of the cost; the remaining decision variables of
// wider layouts are untouched by tasks. The weight, activation and timeout
// factors are already folded into Aw, which also zeroes the contribution of
// a deactivated or timed-out task.
func accumulateCost(prob *solver.QPProblem, tasks []task.Task, nj int) {
	for _, t := range tasks {
		aw := t.Aw()
		rows, _ := aw.Dims()
		for i := 0; i < rows; i++ {
			y := t.YRefRoot().AtVec(i)
			for j := 0; j < nj; j++ {
				aij := aw.At(i, j)
				if aij == 0 {
					continue
				}
				prob.G.SetVec(j, prob.G.AtVec(j)-aij*y)
				for k := j; k < nj; k++ {
					v := aij * aw.At(i, k)
					prob.H.Set(j, k, prob.H.At(j, k)+v)
					if k != j {
						prob.H.Set(k, j, prob.H.At(k, j)+v)
					}
				}
			}
		}
	}
}

// applyVariableDamping regularizes H when it is close to singular and
// returns the damping factor used.
func applyVariableDamping(h *mat.Dense, threshold, maxDamping float64) float64 {
	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	sMin := 0.0
	if len(values) > 0 {
		sMin = values[len(values)-1]
	}
	if sMin >= threshold {
		return 0
	}
	factor := maxDamping * (1 - sMin/threshold)
	n, _ := h.Dims()
	for i := 0; i < n; i++ {
		h.Set(i, i, h.At(i, i)+factor)
	}
	return factor
}

// Solve implements Scene.
func (s *VelocitySceneQuadraticCost) Solve(hqp *solver.HierarchicalQP) (robotmodel.JointCommand, error) {
	if err := s.solveRaw(hqp); err != nil {
		return robotmodel.JointCommand{}, err
	}
	return s.unpackVelocities()
}

// UpdateTasksStatus implements Scene.
func (s *VelocitySceneQuadraticCost) UpdateTasksStatus() (TasksStatus, error) {
	return s.tasksStatus(s.solvedVec(), false)
}
