// Package scene lowers tasks and hard constraints into hierarchical
// quadratic programs once per control tick, dispatches them to a solver and
// unpacks the solution into joint commands.
package scene

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/task"
)

// TaskStatus reports per-task tracking information after a solve: y is the
// task velocity or acceleration the robot actually achieved, YSolution the
// one the solver output would achieve.
type TaskStatus struct {
	Time       time.Time
	Config     task.Config
	Activation float64
	Timeout    bool
	YRef       []float64
	Y          []float64
	YSolution  []float64
}

// TasksStatus maps task names to their status.
type TasksStatus map[string]*TaskStatus

// Scene is the per-tick compiler from tasks and constraints to a
// hierarchical QP. A scene owns its tasks and constraints; they are
// destroyed on reconfigure. The robot model is shared with the caller, the
// solver is owned by the scene.
type Scene interface {
	// Configure creates the scene's tasks. Any prior task set is released.
	Configure(configs []task.Config) error

	// Update assembles the hierarchical QP for the current model state.
	Update() (*solver.HierarchicalQP, error)

	// Solve runs the solver and unpacks the solution into a joint command.
	Solve(hqp *solver.HierarchicalQP) (robotmodel.JointCommand, error)

	// UpdateTasksStatus computes tracking information for every task from
	// the last solve.
	UpdateTasksStatus() (TasksStatus, error)

	// Task looks a task up by name.
	Task(name string) (task.Task, error)

	// HasTask reports whether the named task exists.
	HasTask(name string) bool

	// SetJointWeights replaces the per-joint weights.
	SetJointWeights(weights []float64) error

	// Clear releases all tasks; Configure must run again before use.
	Clear()
}

// taskFactory builds the scene-specific task variant for one config.
type taskFactory func(cfg task.Config, nx int, clk clock.Clock) (task.Task, error)

// baseScene implements the update logic shared by all scene shapes.
type baseScene struct {
	logger   golog.Logger
	model    robotmodel.RobotModel
	qpSolver solver.QPSolver
	clk      clock.Clock

	newTask      taskFactory
	tasks        [][]task.Task // grouped by priority, highest first
	jointWeights []float64
	solverOutput []float64
	configured   bool
}

func newBaseScene(logger golog.Logger, model robotmodel.RobotModel, qpSolver solver.QPSolver, newTask taskFactory) *baseScene {
	weights := make([]float64, model.NumJoints())
	for i := range weights {
		weights[i] = 1
	}
	return &baseScene{
		logger:       logger,
		model:        model,
		qpSolver:     qpSolver,
		clk:          clock.New(),
		newTask:      newTask,
		jointWeights: weights,
	}
}

// Configure implements Scene.
func (s *baseScene) Configure(configs []task.Config) error {
	if len(configs) == 0 {
		return errors.New("task configuration is empty")
	}
	seen := map[string]bool{}
	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			return err
		}
		if seen[configs[i].Name] {
			return errors.Errorf("duplicate task name %q", configs[i].Name)
		}
		seen[configs[i].Name] = true
	}

	sorted := sortByPriority(configs)
	tasks := make([][]task.Task, len(sorted))
	for p, group := range sorted {
		for _, cfg := range group {
			t, err := s.newTask(cfg, s.model.NumJoints(), s.clk)
			if err != nil {
				return err
			}
			tasks[p] = append(tasks[p], t)
		}
	}

	s.tasks = tasks
	s.solverOutput = nil
	s.configured = true
	return nil
}

// sortByPriority groups configs by ascending priority, dropping empty
// levels.
func sortByPriority(configs []task.Config) [][]task.Config {
	maxPrio := 0
	for i := range configs {
		if configs[i].Priority > maxPrio {
			maxPrio = configs[i].Priority
		}
	}
	sorted := make([][]task.Config, 0, maxPrio+1)
	for p := 0; p <= maxPrio; p++ {
		var group []task.Config
		for i := range configs {
			if configs[i].Priority == p {
				group = append(group, configs[i])
			}
		}
		if len(group) > 0 {
			sorted = append(sorted, group)
		}
	}
	return sorted
}

// updateTasks runs the per-tick task protocol. The joint weights passed here
// are folded into Aw; the hierarchical least-squares path passes ones and
// hands the weights to the solver instead.
func (s *baseScene) updateTasks(awJointWeights []float64) error {
	if !s.configured {
		return errors.New("scene has not been configured, call Configure before Update")
	}
	for _, group := range s.tasks {
		for _, t := range group {
			t.CheckTimeout()
			if err := t.Update(s.model); err != nil {
				return errors.Wrapf(err, "task %q", t.Config().Name)
			}
			if err := t.ApplyWeights(awJointWeights); err != nil {
				return errors.Wrapf(err, "task %q", t.Config().Name)
			}
		}
	}
	return nil
}

// Task implements Scene.
func (s *baseScene) Task(name string) (task.Task, error) {
	for _, group := range s.tasks {
		for _, t := range group {
			if t.Config().Name == name {
				return t, nil
			}
		}
	}
	return nil, errors.Errorf("no task named %q", name)
}

// HasTask implements Scene.
func (s *baseScene) HasTask(name string) bool {
	_, err := s.Task(name)
	return err == nil
}

// SetJointWeights implements Scene.
func (s *baseScene) SetJointWeights(weights []float64) error {
	if len(weights) != s.model.NumJoints() {
		return errors.Errorf("got %d joint weights, model has %d joints", len(weights), s.model.NumJoints())
	}
	for _, w := range weights {
		if w < 0 {
			return errors.New("joint weights must be non-negative")
		}
	}
	copy(s.jointWeights, weights)
	return nil
}

// Clear implements Scene.
func (s *baseScene) Clear() {
	s.tasks = nil
	s.solverOutput = nil
	s.configured = false
}

// ones returns a weight vector of all ones.
func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// gateOf is the common activation·(1−timeout) factor of a task.
func gateOf(t task.Task) float64 {
	if t.TimedOut() {
		return 0
	}
	return t.Activation()
}

// solveRaw runs the solver and keeps the raw output for status reporting.
func (s *baseScene) solveRaw(hqp *solver.HierarchicalQP) error {
	if len(hqp.Problems) == 0 {
		return errors.New("hierarchical QP contains no priorities")
	}
	nq := hqp.Problems[0].NQ
	if len(s.solverOutput) != nq {
		s.solverOutput = make([]float64, nq)
	}
	if err := s.qpSolver.Solve(hqp, s.solverOutput); err != nil {
		return err
	}
	for _, v := range s.solverOutput {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return solver.ErrSolverFailure
		}
	}
	return nil
}

// measuredVec returns the named derivative of the measured joint state in
// model ordering.
func (s *baseScene) measuredVec(acceleration bool) (*mat.VecDense, error) {
	state, err := s.model.JointState(s.model.JointNames())
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(state.Len(), nil)
	for i, v := range state.Values {
		if acceleration {
			out.SetVec(i, v.Acceleration)
		} else {
			out.SetVec(i, v.Velocity)
		}
	}
	return out, nil
}

// tasksStatus assembles the per-task report. solved holds the joint-space
// slice of the solver output relevant to the tasks (q̇ or q̈); acceleration
// compares against the measured q̈ instead of q̇ and adds the spatial
// acceleration bias for Cartesian tasks.
func (s *baseScene) tasksStatus(solved *mat.VecDense, acceleration bool) (TasksStatus, error) {
	measured, err := s.measuredVec(acceleration)
	if err != nil {
		return nil, err
	}
	out := TasksStatus{}
	for _, group := range s.tasks {
		for _, t := range group {
			cfg := t.Config()
			status := &TaskStatus{
				Time:       t.Time(),
				Config:     cfg,
				Activation: t.Activation(),
				Timeout:    t.TimedOut(),
				YRef:       vecSlice(t.YRefRoot()),
			}
			var y, ySol mat.VecDense
			y.MulVec(t.A(), measured)
			if solved != nil {
				ySol.MulVec(t.A(), solved)
			}
			if acceleration && cfg.Type == task.TypeCartesian {
				bias, err := s.model.SpatialAccelerationBias(cfg.RootFrame, cfg.TipFrame)
				if err != nil {
					return nil, err
				}
				for i, b := range bias.Slice() {
					y.SetVec(i, y.AtVec(i)+b)
					if solved != nil {
						ySol.SetVec(i, ySol.AtVec(i)+b)
					}
				}
			}
			status.Y = vecSlice(&y)
			if solved != nil {
				status.YSolution = vecSlice(&ySol)
			}
			out[cfg.Name] = status
		}
	}
	return out, nil
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// ensure the variants satisfy the interface
var (
	_ Scene = (*VelocityScene)(nil)
	_ Scene = (*VelocitySceneQuadraticCost)(nil)
	_ Scene = (*AccelerationScene)(nil)
	_ Scene = (*AccelerationSceneTSID)(nil)
)
