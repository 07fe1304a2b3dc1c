package scene

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/constraint"
	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/spatialmath"
)

// DefaultHessianRegularizer is added to the cost diagonal of the
// acceleration-level scenes so H stays positive definite.
const DefaultHessianRegularizer = 1e-8

// AccelerationSceneTSID is the task-space inverse dynamics scene. The
// decision variables are joint accelerations, actuator torques and one
// six-component wrench per contact point; rigid-body dynamics, contact
// consistency and joint limits enter as hard constraints, tasks act on the
// acceleration block of the cost only.
type AccelerationSceneTSID struct {
	*baseScene

	reduced            bool
	hessianRegularizer float64
	constraints        []constraint.HardConstraint
	jointLimits        *constraint.JointLimitsAccelerationConstraint

	hqp             solver.HierarchicalQP
	contactWrenches robotmodel.ContactWrenches
}

// NewAccelerationSceneTSID creates the scene for control step dt. With
// reduced set, the torque block is dropped and only the six floating-base
// dynamics rows are enforced.
func NewAccelerationSceneTSID(logger golog.Logger, model robotmodel.RobotModel, qpSolver solver.QPSolver, dt float64, reduced bool) (*AccelerationSceneTSID, error) {
	limits, err := constraint.NewJointLimitsAccelerationConstraint(dt, reduced)
	if err != nil {
		return nil, err
	}
	s := &AccelerationSceneTSID{
		reduced:            reduced,
		hessianRegularizer: DefaultHessianRegularizer,
		constraints: []constraint.HardConstraint{
			constraint.NewRigidBodyDynamicsConstraint(reduced),
			constraint.NewContactsAccelerationConstraint(reduced),
			limits,
		},
		jointLimits: limits,
	}
	s.baseScene = newBaseScene(logger, model, qpSolver, newAccelerationTask)
	return s, nil
}

// JointLimits exposes the joint-limits constraint so its acceleration and
// wrench box bounds can be configured.
func (s *AccelerationSceneTSID) JointLimits() *constraint.JointLimitsAccelerationConstraint {
	return s.jointLimits
}

// ContactWrenches returns the per-contact wrenches of the last solve.
func (s *AccelerationSceneTSID) ContactWrenches() robotmodel.ContactWrenches {
	return s.contactWrenches
}

// Update implements Scene. Constraints update first, since they determine
// the QP sizing, then the task cost is accumulated.
func (s *AccelerationSceneTSID) Update() (*solver.HierarchicalQP, error) {
	nEq, nIneq := 0, 0
	for _, c := range s.constraints {
		if err := c.Update(s.model); err != nil {
			return nil, err
		}
		switch c.Type() {
		case constraint.TypeEquality:
			nEq += c.Size()
		case constraint.TypeInequality:
			nIneq += c.Size()
		case constraint.TypeBounds:
		}
	}

	if err := s.updateTasks(s.jointWeights); err != nil {
		return nil, err
	}
	if len(s.tasks) != 1 {
		return nil, errors.Errorf("the TSID scene supports exactly one priority, got %d", len(s.tasks))
	}

	layout := constraint.LayoutOf(s.model, s.reduced)
	width := layout.Width()
	prob := solver.NewQPProblem(width, nEq, nIneq)

	// tasks act on the acceleration block only
	accumulateCost(prob, s.tasks[0], layout.NJ)
	for i := 0; i < width; i++ {
		prob.H.Set(i, i, prob.H.At(i, i)+s.hessianRegularizer)
	}

	eqRow, ineqRow := 0, 0
	for _, c := range s.constraints {
		switch c.Type() {
		case constraint.TypeBounds:
			for i := 0; i < width; i++ {
				prob.LowerX.SetVec(i, c.LowerX().AtVec(i))
				prob.UpperX.SetVec(i, c.UpperX().AtVec(i))
			}
		case constraint.TypeEquality:
			for r := 0; r < c.Size(); r++ {
				for j := 0; j < width; j++ {
					prob.A.Set(eqRow+r, j, c.A().At(r, j))
				}
				prob.B.SetVec(eqRow+r, c.B().AtVec(r))
			}
			eqRow += c.Size()
		case constraint.TypeInequality:
			for r := 0; r < c.Size(); r++ {
				for j := 0; j < width; j++ {
					prob.C.Set(ineqRow+r, j, c.A().At(r, j))
				}
				prob.LowerY.SetVec(ineqRow+r, c.LowerY().AtVec(r))
				prob.UpperY.SetVec(ineqRow+r, c.UpperY().AtVec(r))
			}
			ineqRow += c.Size()
		}
	}

	s.hqp.Problems = append(s.hqp.Problems[:0], prob)
	s.hqp.Wq = append(s.hqp.Wq[:0], s.jointWeights...)
	s.hqp.Time = s.clk.Now()
	return &s.hqp, nil
}

// Solve implements Scene. Joint j receives acceleration x[jointIndex(j)] and
// effort from the torque block, where an actuated joint sits at its full
// joint index shifted past the unactuated columns; contact i receives the
// wrench x[off : off+6] in (force, torque) order.
func (s *AccelerationSceneTSID) Solve(hqp *solver.HierarchicalQP) (robotmodel.JointCommand, error) {
	if err := s.solveRaw(hqp); err != nil {
		return robotmodel.JointCommand{}, err
	}
	layout := constraint.LayoutOf(s.model, s.reduced)

	cmd := robotmodel.NewJointCommand(s.model.ActuatedJointNames())
	shift := layout.NJ - layout.NA
	for i, name := range cmd.Names {
		idx, err := s.model.JointIndex(name)
		if err != nil {
			return robotmodel.JointCommand{}, err
		}
		cmd.Values[i].Acceleration = s.solverOutput[idx]
		if !s.reduced {
			cmd.Values[i].Effort = s.solverOutput[layout.TorqueOffset()+idx-shift]
		}
	}
	cmd.Time = s.clk.Now()

	contacts := s.model.ActiveContacts()
	s.contactWrenches = robotmodel.ContactWrenches{
		Names:    append([]string{}, contacts.Names...),
		Wrenches: make([]spatialmath.Wrench, contacts.Len()),
		Time:     cmd.Time,
	}
	for i := range contacts.Names {
		off := layout.WrenchOffset(i)
		s.contactWrenches.Wrenches[i] = spatialmath.WrenchFromSlice(s.solverOutput[off : off+6])
	}
	return cmd, nil
}

// UpdateTasksStatus implements Scene. Only the acceleration slice of the
// solution enters the task-space products.
func (s *AccelerationSceneTSID) UpdateTasksStatus() (TasksStatus, error) {
	var solved *mat.VecDense
	if s.solverOutput != nil {
		nj := s.model.NumJoints()
		solved = mat.NewVecDense(nj, s.solverOutput[:nj])
	}
	return s.tasksStatus(solved, true)
}
