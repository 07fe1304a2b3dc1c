package scene

import (
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/task"
)

// VelocityScene assembles one least-squares problem per priority over the
// joint velocities: A holds the weighted task rows, b the weighted
// references. The downstream solver projects each priority into the
// nullspace of the higher ones, classically the hierarchical weighted
// damped least-squares solver.
type VelocityScene struct {
	*baseScene
	hqp solver.HierarchicalQP
}

// NewVelocityScene creates the scene. The model is shared with the caller;
// the solver becomes owned by the scene.
func NewVelocityScene(logger golog.Logger, model robotmodel.RobotModel, qpSolver solver.QPSolver) *VelocityScene {
	s := &VelocityScene{}
	s.baseScene = newBaseScene(logger, model, qpSolver, newVelocityTask)
	return s
}

func newVelocityTask(cfg task.Config, nx int, clk clock.Clock) (task.Task, error) {
	switch cfg.Type {
	case task.TypeCartesian:
		return task.NewCartesianVelocityTask(cfg, nx, clk), nil
	case task.TypeJoint:
		return task.NewJointVelocityTask(cfg, nx, clk), nil
	default:
		return nil, errors.Errorf("task %q has type %q, which a velocity scene cannot serve", cfg.Name, cfg.Type)
	}
}

// Update implements Scene. Joint weights go to the solver as column weights
// rather than into the task rows.
func (s *VelocityScene) Update() (*solver.HierarchicalQP, error) {
	if err := s.updateTasks(ones(s.model.NumJoints())); err != nil {
		return nil, err
	}
	nq := s.model.NumJoints()

	s.hqp.Problems = s.hqp.Problems[:0]
	for _, group := range s.tasks {
		rows := 0
		for _, t := range group {
			r, _ := t.Aw().Dims()
			rows += r
		}
		prob := &solver.QPProblem{
			NQ: nq,
			A:  mat.NewDense(rows, nq, nil),
			B:  mat.NewVecDense(rows, nil),
		}
		row := 0
		for _, t := range group {
			r, _ := t.Aw().Dims()
			gate := gateOf(t)
			for i := 0; i < r; i++ {
				for j := 0; j < nq; j++ {
					prob.A.Set(row+i, j, t.Aw().At(i, j))
				}
				prob.B.SetVec(row+i, gate*t.WeightsRoot().AtVec(i)*t.YRefRoot().AtVec(i))
			}
			row += r
		}
		s.hqp.Problems = append(s.hqp.Problems, prob)
	}
	s.hqp.Wq = append(s.hqp.Wq[:0], s.jointWeights...)
	s.hqp.Time = s.clk.Now()
	return &s.hqp, nil
}

// Solve implements Scene.
func (s *VelocityScene) Solve(hqp *solver.HierarchicalQP) (robotmodel.JointCommand, error) {
	if err := s.solveRaw(hqp); err != nil {
		return robotmodel.JointCommand{}, err
	}
	return s.unpackVelocities()
}

func (s *baseScene) unpackVelocities() (robotmodel.JointCommand, error) {
	cmd := robotmodel.NewJointCommand(s.model.ActuatedJointNames())
	for i, name := range cmd.Names {
		idx, err := s.model.JointIndex(name)
		if err != nil {
			return robotmodel.JointCommand{}, err
		}
		cmd.Values[i].Velocity = s.solverOutput[idx]
	}
	cmd.Time = s.clk.Now()
	return cmd, nil
}

// UpdateTasksStatus implements Scene.
func (s *VelocityScene) UpdateTasksStatus() (TasksStatus, error) {
	return s.tasksStatus(s.solvedVec(), false)
}

// solvedVec exposes the last solver output as a vector, nil before the first
// solve.
func (s *baseScene) solvedVec() *mat.VecDense {
	if s.solverOutput == nil {
		return nil
	}
	return mat.NewVecDense(len(s.solverOutput), s.solverOutput)
}
