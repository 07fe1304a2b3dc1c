package constraint

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/wbc/robotmodel"
)

// ContactsAccelerationConstraint pins every active contact point to zero
// spatial acceleration:
//
//	J_c·q̈ = −J̇_c·q̇
//
// one six-row block per active contact, written into the acceleration
// columns only.
type ContactsAccelerationConstraint struct {
	baseConstraint
	reduced bool
}

// NewContactsAccelerationConstraint returns the constraint for the given
// variable formulation.
func NewContactsAccelerationConstraint(reduced bool) *ContactsAccelerationConstraint {
	return &ContactsAccelerationConstraint{
		baseConstraint: baseConstraint{typ: TypeEquality},
		reduced:        reduced,
	}
}

// Update implements HardConstraint.
func (c *ContactsAccelerationConstraint) Update(model robotmodel.RobotModel) error {
	layout := LayoutOf(model, c.reduced)
	contacts := model.ActiveContacts()
	rows := 6 * contacts.NumActive()
	c.resize(rows, layout.Width())
	if rows == 0 {
		return nil
	}

	row := 0
	for i, name := range contacts.Names {
		if !contacts.Active[i] {
			continue
		}
		jac, err := model.SpaceJacobian(model.WorldFrame(), name)
		if err != nil {
			return err
		}
		bias, err := model.SpatialAccelerationBias(model.WorldFrame(), name)
		if err != nil {
			return err
		}
		biasVec := bias.Slice()
		for r := 0; r < 6; r++ {
			for j := 0; j < layout.NJ; j++ {
				c.a.Set(row+r, j, jac.At(r, j))
			}
			c.b.SetVec(row+r, -biasVec[r])
		}
		row += 6
	}
	return nil
}

func (c *ContactsAccelerationConstraint) resize(rows, cols int) {
	if rows == 0 {
		c.a = nil
		c.b = nil
		return
	}
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
