package scene

import (
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/task"
)

// AccelerationScene assembles a single quadratic cost over the joint
// accelerations, without dynamics or contact constraints. Cost assembly is
// identical to VelocitySceneQuadraticCost, only on the acceleration level.
type AccelerationScene struct {
	*baseScene
	hqp solver.HierarchicalQP
}

// NewAccelerationScene creates the scene.
func NewAccelerationScene(logger golog.Logger, model robotmodel.RobotModel, qpSolver solver.QPSolver) *AccelerationScene {
	s := &AccelerationScene{}
	s.baseScene = newBaseScene(logger, model, qpSolver, newAccelerationTask)
	return s
}

func newAccelerationTask(cfg task.Config, nx int, clk clock.Clock) (task.Task, error) {
	switch cfg.Type {
	case task.TypeCartesian:
		return task.NewCartesianAccelerationTask(cfg, nx, clk), nil
	case task.TypeJoint:
		return task.NewJointAccelerationTask(cfg, nx, clk), nil
	case task.TypeCoM:
		return task.NewCoMAccelerationTask(cfg, nx, clk), nil
	default:
		return nil, errors.Errorf("task %q has type %q, which an acceleration scene cannot serve", cfg.Name, cfg.Type)
	}
}

// Update implements Scene.
func (s *AccelerationScene) Update() (*solver.HierarchicalQP, error) {
	if err := s.updateTasks(s.jointWeights); err != nil {
		return nil, err
	}
	if len(s.tasks) != 1 {
		return nil, errors.Errorf("an acceleration scene supports exactly one priority, got %d", len(s.tasks))
	}

	nq := s.model.NumJoints()
	prob := solver.NewQPProblem(nq, 0, 0)
	accumulateCost(prob, s.tasks[0], nq)
	for i := 0; i < nq; i++ {
		prob.H.Set(i, i, prob.H.At(i, i)+DefaultHessianRegularizer)
	}

	s.hqp.Problems = append(s.hqp.Problems[:0], prob)
	s.hqp.Wq = append(s.hqp.Wq[:0], s.jointWeights...)
	s.hqp.Time = s.clk.Now()
	return &s.hqp, nil
}

// Solve implements Scene.
func (s *AccelerationScene) Solve(hqp *solver.HierarchicalQP) (robotmodel.JointCommand, error) {
	if err := s.solveRaw(hqp); err != nil {
		return robotmodel.JointCommand{}, err
	}
	cmd := robotmodel.NewJointCommand(s.model.ActuatedJointNames())
	for i, name := range cmd.Names {
		idx, err := s.model.JointIndex(name)
		if err != nil {
			return robotmodel.JointCommand{}, err
		}
		cmd.Values[i].Acceleration = s.solverOutput[idx]
	}
	cmd.Time = s.clk.Now()
	return cmd, nil
}

// UpdateTasksStatus implements Scene.
func (s *AccelerationScene) UpdateTasksStatus() (TasksStatus, error) {
	return s.tasksStatus(s.solvedVec(), true)
}
