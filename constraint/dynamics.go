package constraint

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
)

// RigidBodyDynamicsConstraint enforces the equations of motion
//
//	H·q̈ − Sᵀ·τ − Σᵢ J_c,lin,iᵀ·fᵢ = −C
//
// over the (q̈, τ, f_ext) blocks. Only the linear part of each active
// contact Jacobian enters; the torque columns of a wrench block stay zero.
// In the reduced form only the six floating-base rows are kept and the
// torque block is absent.
type RigidBodyDynamicsConstraint struct {
	baseConstraint
	reduced bool
}

// NewRigidBodyDynamicsConstraint returns the constraint; reduced selects the
// floating-base-only form without torques.
func NewRigidBodyDynamicsConstraint(reduced bool) *RigidBodyDynamicsConstraint {
	return &RigidBodyDynamicsConstraint{
		baseConstraint: baseConstraint{typ: TypeEquality},
		reduced:        reduced,
	}
}

// Update implements HardConstraint.
func (c *RigidBodyDynamicsConstraint) Update(model robotmodel.RobotModel) error {
	layout := LayoutOf(model, c.reduced)
	rows := layout.NJ
	if c.reduced {
		rows = 6
	}
	c.resize(rows, layout.Width())

	inertia, err := model.JointSpaceInertiaMatrix()
	if err != nil {
		return err
	}
	bias, err := model.BiasForces()
	if err != nil {
		return err
	}

	for r := 0; r < rows; r++ {
		for j := 0; j < layout.NJ; j++ {
			c.a.Set(r, j, inertia.At(r, j))
		}
		c.b.SetVec(r, -bias.AtVec(r))
	}

	if !c.reduced {
		selection := model.SelectionMatrix()
		for i := 0; i < layout.NA; i++ {
			for r := 0; r < rows; r++ {
				c.a.Set(r, layout.TorqueOffset()+i, -selection.At(i, r))
			}
		}
	}

	contacts := model.ActiveContacts()
	for i, name := range contacts.Names {
		if !contacts.Active[i] {
			continue
		}
		jac, err := model.SpaceJacobian(model.WorldFrame(), name)
		if err != nil {
			return err
		}
		off := layout.WrenchOffset(i)
		// -J_linᵀ into the force columns of the wrench block
		for r := 0; r < rows; r++ {
			for k := 0; k < 3; k++ {
				c.a.Set(r, off+k, -jac.At(k, r))
			}
		}
	}
	return nil
}

func (c *RigidBodyDynamicsConstraint) resize(rows, cols int) {
	if c.a != nil {
		if r, cc := c.a.Dims(); r == rows && cc == cols {
			c.a.Zero()
			c.b.Zero()
			return
		}
	}
	c.a = mat.NewDense(rows, cols, nil)
	c.b = mat.NewVecDense(rows, nil)
}
