// Package kintree implements the serial-tree robot model back-end. The
// kinematic tree is stored as parent-index arrays ordered parent before
// child; all kinematics and dynamics quantities are computed with plain
// vector recursions over that order.
package kintree

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/spatialmath"
)

type jointType int

const (
	jointFixed jointType = iota
	jointRevolute
	jointPrismatic
)

// joint attaches a body to its parent. The axis is expressed in the child
// link frame, the origin maps the parent link frame to the joint frame.
type joint struct {
	name   string
	typ    jointType
	axis   r3.Vector
	origin spatialmath.Pose
	limits robotmodel.JointLimits
	qIdx   int // index into the generalized coordinate vector, -1 when fixed
}

// body is one link of the tree together with the joint that attaches it.
type body struct {
	name    string
	parent  int // index of the parent body, -1 for the root
	joint   joint
	mass    float64
	com     r3.Vector  // center of mass in the link frame
	inertia [9]float64 // rotational inertia about the com, link frame, row major
}

type tree struct {
	bodies      []body
	bodyIndex   map[string]int
	jointToBody map[string]int // movable joint name -> child body index
}

// newTreeFromURDF builds the parent-index representation. Bodies are laid
// out so that a parent always precedes its children.
func newTreeFromURDF(u *robotmodel.URDF) (*tree, error) {
	root, err := u.RootLink()
	if err != nil {
		return nil, err
	}

	childJoints := map[string][]robotmodel.URDFJoint{}
	for _, j := range u.Joints {
		childJoints[j.Parent.Link] = append(childJoints[j.Parent.Link], j)
	}

	linkByName := map[string]*robotmodel.URDFLink{}
	for i := range u.Links {
		linkByName[u.Links[i].Name] = &u.Links[i]
	}

	t := &tree{
		bodyIndex:   map[string]int{},
		jointToBody: map[string]int{},
	}
	rootBody, err := newBody(linkByName[root], joint{qIdx: -1, origin: spatialmath.NewZeroPose()}, -1)
	if err != nil {
		return nil, err
	}
	t.bodies = append(t.bodies, rootBody)
	t.bodyIndex[root] = 0

	// breadth-first walk keeps parents ahead of children
	queue := []string{root}
	for len(queue) > 0 {
		parentName := queue[0]
		queue = queue[1:]
		parentIdx := t.bodyIndex[parentName]
		for _, uj := range childJoints[parentName] {
			link, ok := linkByName[uj.Child.Link]
			if !ok {
				return nil, errors.Errorf("joint %q references unknown child link %q", uj.Name, uj.Child.Link)
			}
			if _, seen := t.bodyIndex[uj.Child.Link]; seen {
				return nil, errors.Errorf("link %q has more than one parent joint", uj.Child.Link)
			}
			j, err := newJoint(uj)
			if err != nil {
				return nil, err
			}
			b, err := newBody(link, j, parentIdx)
			if err != nil {
				return nil, err
			}
			t.bodyIndex[uj.Child.Link] = len(t.bodies)
			if j.typ != jointFixed {
				t.jointToBody[j.name] = len(t.bodies)
			}
			t.bodies = append(t.bodies, b)
			queue = append(queue, uj.Child.Link)
		}
	}

	if len(t.bodies) != len(u.Links) {
		return nil, errors.Errorf("%d of %d links are not connected to the root", len(u.Links)-len(t.bodies), len(u.Links))
	}
	return t, nil
}

func newJoint(uj robotmodel.URDFJoint) (joint, error) {
	j := joint{name: uj.Name, qIdx: -1}
	switch uj.Type {
	case "fixed":
		j.typ = jointFixed
	case "revolute", "continuous":
		j.typ = jointRevolute
	case "prismatic":
		j.typ = jointPrismatic
	default:
		return joint{}, errors.Errorf("joint %q has unsupported type %q", uj.Name, uj.Type)
	}

	origin, err := uj.Origin.Pose()
	if err != nil {
		return joint{}, errors.Wrapf(err, "joint %q", uj.Name)
	}
	j.origin = origin

	axis, err := uj.Axis.Vector()
	if err != nil {
		return joint{}, errors.Wrapf(err, "joint %q", uj.Name)
	}
	if n := axis.Norm(); n > 0 {
		axis = axis.Mul(1 / n)
	}
	j.axis = axis

	j.limits = robotmodel.JointLimits{
		Position: robotmodel.Limit{Min: math.Inf(-1), Max: math.Inf(1)},
		Velocity: robotmodel.Limit{Min: math.Inf(-1), Max: math.Inf(1)},
		Effort:   robotmodel.Limit{Min: math.Inf(-1), Max: math.Inf(1)},
	}
	if uj.Limit != nil {
		if uj.Limit.Lower != 0 || uj.Limit.Upper != 0 {
			j.limits.Position = robotmodel.Limit{Min: uj.Limit.Lower, Max: uj.Limit.Upper}
		}
		if uj.Limit.Velocity > 0 {
			j.limits.Velocity = robotmodel.Limit{Min: -uj.Limit.Velocity, Max: uj.Limit.Velocity}
		}
		if uj.Limit.Effort > 0 {
			j.limits.Effort = robotmodel.Limit{Min: -uj.Limit.Effort, Max: uj.Limit.Effort}
		}
	}
	return j, nil
}

func newBody(link *robotmodel.URDFLink, j joint, parent int) (body, error) {
	b := body{name: link.Name, parent: parent, joint: j}
	if link.Inertial == nil {
		return b, nil
	}

	b.mass = link.Inertial.Mass.Value
	origin, err := link.Inertial.Origin.Pose()
	if err != nil {
		return body{}, errors.Wrapf(err, "link %q inertial origin", link.Name)
	}
	b.com = origin.Point()

	// rotate the inertia tensor from the inertial frame into the link frame
	in := link.Inertial.Inertia
	local := [9]float64{
		in.Ixx, in.Ixy, in.Ixz,
		in.Ixy, in.Iyy, in.Iyz,
		in.Ixz, in.Iyz, in.Izz,
	}
	b.inertia = rotateInertia(origin.Rotation(), local)
	return b, nil
}

func rotateInertia(q quat.Number, local [9]float64) [9]float64 {
	return rotateInertiaWorld(rotationMatrix(q), local)
}

func rotationMatrix(q quat.Number) [9]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// ancestors returns the body indices on the path from the root to idx,
// root side first.
func (t *tree) ancestors(idx int) []int {
	var path []int
	for i := idx; i >= 0; i = t.bodies[i].parent {
		path = append(path, i)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// movableJointNames lists the movable joints in tree order.
func (t *tree) movableJointNames() []string {
	var names []string
	for _, b := range t.bodies {
		if b.joint.typ != jointFixed {
			names = append(names, b.joint.name)
		}
	}
	return names
}
