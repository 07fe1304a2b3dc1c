// Package constraint assembles the hard feasibility rows of the whole-body
// control problem: rigid-body dynamics, contact consistency and joint limits
// against the current robot model state.
package constraint

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
)

// Type discriminates the three hard constraint variants.
type Type int

// The hard constraint variants.
const (
	TypeEquality Type = iota
	TypeInequality
	TypeBounds
)

// Layout describes the decision variable blocks of an acceleration-level
// scene: accelerations, then actuator torques, then one 6-wide wrench block
// per configured contact point. In the reduced formulation the torque block
// is absent.
type Layout struct {
	NJ      int
	NA      int
	NC      int
	Reduced bool
}

// LayoutOf derives the layout from the model.
func LayoutOf(model robotmodel.RobotModel, reduced bool) Layout {
	contacts := model.ActiveContacts()
	return Layout{
		NJ:      model.NumJoints(),
		NA:      model.NumActuatedJoints(),
		NC:      contacts.Len(),
		Reduced: reduced,
	}
}

// Width is the total number of decision variables.
func (l Layout) Width() int {
	if l.Reduced {
		return l.NJ + 6*l.NC
	}
	return l.NJ + l.NA + 6*l.NC
}

// TorqueOffset is the first column of the torque block. Calling it on a
// reduced layout is a bug.
func (l Layout) TorqueOffset() int { return l.NJ }

// WrenchOffset is the first column of contact i's wrench block.
func (l Layout) WrenchOffset(i int) int {
	if l.Reduced {
		return l.NJ + 6*i
	}
	return l.NJ + l.NA + 6*i
}

// HardConstraint produces equality rows (A, b), inequality rows
// (A, lb_y, ub_y) or variable bounds (lb_x, ub_x) against the current model
// state. Update must run before the accessors each tick; the scene reads
// Size to place the rows.
type HardConstraint interface {
	Type() Type
	Update(model robotmodel.RobotModel) error

	// Size is the number of rows; zero for bound constraints.
	Size() int

	A() *mat.Dense
	B() *mat.VecDense
	LowerY() *mat.VecDense
	UpperY() *mat.VecDense
	LowerX() *mat.VecDense
	UpperX() *mat.VecDense
}

// baseConstraint holds the buffers shared by the variants.
type baseConstraint struct {
	typ    Type
	a      *mat.Dense
	b      *mat.VecDense
	lowerY *mat.VecDense
	upperY *mat.VecDense
	lowerX *mat.VecDense
	upperX *mat.VecDense
}

// Type implements HardConstraint.
func (c *baseConstraint) Type() Type { return c.typ }

// Size implements HardConstraint.
func (c *baseConstraint) Size() int {
	if c.a == nil {
		return 0
	}
	r, _ := c.a.Dims()
	return r
}

// A implements HardConstraint.
func (c *baseConstraint) A() *mat.Dense { return c.a }

// B implements HardConstraint.
func (c *baseConstraint) B() *mat.VecDense { return c.b }

// LowerY implements HardConstraint.
func (c *baseConstraint) LowerY() *mat.VecDense { return c.lowerY }

// UpperY implements HardConstraint.
func (c *baseConstraint) UpperY() *mat.VecDense { return c.upperY }

// LowerX implements HardConstraint.
func (c *baseConstraint) LowerX() *mat.VecDense { return c.lowerX }

// UpperX implements HardConstraint.
func (c *baseConstraint) UpperX() *mat.VecDense { return c.upperX }
