package constraint

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/solver"
)

// JointLimitsAccelerationConstraint synthesizes acceleration bounds that
// keep every actuated joint inside its position and velocity limits over the
// next control step:
//
//	a_lo = max(a_min, (v_min − q̇)/dt, 2·(q_min − q − q̇·dt)/dt²)
//	a_hi = min(a_max, (v_max − q̇)/dt, 2·(q_max − q − q̇·dt)/dt²)
//
// Torque bounds come from the model's effort limits; wrench bounds are the
// configured friction-cone box approximation.
type JointLimitsAccelerationConstraint struct {
	baseConstraint
	dt      float64
	reduced bool

	// AccelerationLimit bounds q̈ symmetrically; zero means unbounded.
	AccelerationLimit float64
	// ForceLimit and TorqueLimit bound each wrench component; zero means
	// unbounded.
	ForceLimit  float64
	TorqueLimit float64
}

// NewJointLimitsAccelerationConstraint returns the constraint for control
// step dt.
func NewJointLimitsAccelerationConstraint(dt float64, reduced bool) (*JointLimitsAccelerationConstraint, error) {
	if dt <= 0 {
		return nil, errors.Errorf("control step must be positive, got %f", dt)
	}
	return &JointLimitsAccelerationConstraint{
		baseConstraint: baseConstraint{typ: TypeBounds},
		dt:             dt,
		reduced:        reduced,
	}, nil
}

// Update implements HardConstraint.
func (c *JointLimitsAccelerationConstraint) Update(model robotmodel.RobotModel) error {
	layout := LayoutOf(model, c.reduced)
	c.resize(layout.Width())

	state, err := model.JointState(model.JointNames())
	if err != nil {
		return err
	}
	limits := model.Limits()

	accLo, accHi := math.Inf(-1), math.Inf(1)
	if c.AccelerationLimit > 0 {
		accLo, accHi = -c.AccelerationLimit, c.AccelerationLimit
	}

	for _, name := range model.ActuatedJointNames() {
		idx, err := model.JointIndex(name)
		if err != nil {
			return err
		}
		lim := limits[idx]
		q := state.Values[idx].Position
		qd := state.Values[idx].Velocity

		lo := accLo
		hi := accHi
		if !math.IsInf(lim.Velocity.Min, 0) {
			lo = math.Max(lo, (lim.Velocity.Min-qd)/c.dt)
		}
		if !math.IsInf(lim.Velocity.Max, 0) {
			hi = math.Min(hi, (lim.Velocity.Max-qd)/c.dt)
		}
		if !math.IsInf(lim.Position.Min, 0) {
			lo = math.Max(lo, 2*(lim.Position.Min-q-qd*c.dt)/(c.dt*c.dt))
		}
		if !math.IsInf(lim.Position.Max, 0) {
			hi = math.Min(hi, 2*(lim.Position.Max-q-qd*c.dt)/(c.dt*c.dt))
		}
		c.lowerX.SetVec(idx, clampBound(lo))
		c.upperX.SetVec(idx, clampBound(hi))

		if !c.reduced {
			tauIdx, err := torqueIndex(model, name, layout)
			if err != nil {
				return err
			}
			c.lowerX.SetVec(tauIdx, clampBound(lim.Effort.Min))
			c.upperX.SetVec(tauIdx, clampBound(lim.Effort.Max))
		}
	}

	contacts := model.ActiveContacts()
	for i := range contacts.Names {
		off := layout.WrenchOffset(i)
		for k := 0; k < 3; k++ {
			if c.ForceLimit > 0 {
				c.lowerX.SetVec(off+k, -c.ForceLimit)
				c.upperX.SetVec(off+k, c.ForceLimit)
			}
			if c.TorqueLimit > 0 {
				c.lowerX.SetVec(off+3+k, -c.TorqueLimit)
				c.upperX.SetVec(off+3+k, c.TorqueLimit)
			}
		}
	}
	return nil
}

// torqueIndex places an actuated joint inside the torque block: its full
// joint index shifted past the unactuated (floating-base) columns.
func torqueIndex(model robotmodel.RobotModel, name string, layout Layout) (int, error) {
	idx, err := model.JointIndex(name)
	if err != nil {
		return -1, err
	}
	shift := layout.NJ - layout.NA
	return layout.TorqueOffset() + idx - shift, nil
}

func clampBound(v float64) float64 {
	if math.IsInf(v, -1) || v < -solver.Unbounded {
		return -solver.Unbounded
	}
	if math.IsInf(v, 1) || v > solver.Unbounded {
		return solver.Unbounded
	}
	return v
}

func (c *JointLimitsAccelerationConstraint) resize(cols int) {
	if c.lowerX == nil || c.lowerX.Len() != cols {
		c.lowerX = mat.NewVecDense(cols, nil)
		c.upperX = mat.NewVecDense(cols, nil)
	}
	for i := 0; i < cols; i++ {
		c.lowerX.SetVec(i, -solver.Unbounded)
		c.upperX.SetVec(i, solver.Unbounded)
	}
}
