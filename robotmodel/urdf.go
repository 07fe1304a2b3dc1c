package robotmodel

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/wbc/spatialmath"
)

// URDF represents the fields of a Universal Robot Description Format file
// that the robot model back-ends consume.
type URDF struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []URDFLink  `xml:"link"`
	Joints  []URDFJoint `xml:"joint"`
}

// URDFLink is a single link element with its optional inertial data.
type URDFLink struct {
	Name     string        `xml:"name,attr"`
	Inertial *URDFInertial `xml:"inertial,omitempty"`
}

// URDFInertial carries mass, center of mass and rotational inertia.
type URDFInertial struct {
	Origin *URDFPose `xml:"origin,omitempty"`
	Mass   struct {
		Value float64 `xml:"value,attr"`
	} `xml:"mass"`
	Inertia URDFInertia `xml:"inertia"`
}

// URDFInertia is the symmetric rotational inertia about the inertial origin.
type URDFInertia struct {
	Ixx float64 `xml:"ixx,attr"`
	Ixy float64 `xml:"ixy,attr"`
	Ixz float64 `xml:"ixz,attr"`
	Iyy float64 `xml:"iyy,attr"`
	Iyz float64 `xml:"iyz,attr"`
	Izz float64 `xml:"izz,attr"`
}

// URDFPose is an origin element, xyz translation plus fixed-axis rpy.
type URDFPose struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

// URDFAxis is a joint axis element.
type URDFAxis struct {
	XYZ string `xml:"xyz,attr"`
}

// URDFLimit carries joint limits; translation limits are in meters,
// revolute limits in radians.
type URDFLimit struct {
	Lower    float64 `xml:"lower,attr"`
	Upper    float64 `xml:"upper,attr"`
	Velocity float64 `xml:"velocity,attr"`
	Effort   float64 `xml:"effort,attr"`
}

// URDFFrame is a parent or child reference inside a joint element.
type URDFFrame struct {
	Link string `xml:"link,attr"`
}

// URDFJoint is a single joint element.
type URDFJoint struct {
	Name   string     `xml:"name,attr"`
	Type   string     `xml:"type,attr"`
	Parent URDFFrame  `xml:"parent"`
	Child  URDFFrame  `xml:"child"`
	Origin *URDFPose  `xml:"origin,omitempty"`
	Axis   *URDFAxis  `xml:"axis,omitempty"`
	Limit  *URDFLimit `xml:"limit,omitempty"`
}

// ParseURDFFile reads and parses a URDF file.
func ParseURDFFile(filename string) (*URDF, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read URDF file")
	}
	return ParseURDF(data)
}

// ParseURDF parses URDF XML data.
func ParseURDF(data []byte) (*URDF, error) {
	if len(data) == 0 {
		return nil, errors.New("URDF data is empty")
	}
	u := &URDF{}
	if err := xml.Unmarshal(data, u); err != nil {
		return nil, errors.Wrap(err, "failed to parse URDF")
	}
	if len(u.Links) == 0 {
		return nil, errors.New("URDF contains no links")
	}
	return u, nil
}

// RootLink returns the unique link that is never a child of any joint.
func (u *URDF) RootLink() (string, error) {
	children := map[string]bool{}
	for _, j := range u.Joints {
		children[j.Child.Link] = true
	}
	root := ""
	for _, l := range u.Links {
		if !children[l.Name] {
			if root != "" {
				return "", errors.Errorf("URDF has more than one root link: %q and %q", root, l.Name)
			}
			root = l.Name
		}
	}
	if root == "" {
		return "", errors.New("URDF has no root link, the joint graph is cyclic")
	}
	return root, nil
}

// HasLink reports whether the named link exists.
func (u *URDF) HasLink(name string) bool {
	for _, l := range u.Links {
		if l.Name == name {
			return true
		}
	}
	return false
}

// ApplyJointBlacklist freezes the named joints in place by turning them into
// fixed joints. They disappear from the movable joint set, so referencing
// one after load fails as an unknown joint.
func (u *URDF) ApplyJointBlacklist(blacklist []string) error {
	for _, name := range blacklist {
		found := false
		for i := range u.Joints {
			if u.Joints[i].Name == name {
				u.Joints[i].Type = "fixed"
				u.Joints[i].Limit = nil
				found = true
				break
			}
		}
		if !found {
			return errors.Errorf("blacklisted joint %q does not exist in the URDF", name)
		}
	}
	return nil
}

// AddFloatingBase prepends a virtual 6-DoF linkage between a new world link
// and the current root: three prismatic joints along the world axes followed
// by three revolute joints about them, in the canonical
// (trans_x, trans_y, trans_z, rot_x, rot_y, rot_z) order. It returns the
// names of the injected joints.
func (u *URDF) AddFloatingBase(worldFrame string) ([]string, error) {
	if u.HasLink(worldFrame) {
		return nil, errors.Errorf("cannot add floating base, link %q already exists", worldFrame)
	}
	root, err := u.RootLink()
	if err != nil {
		return nil, err
	}

	axes := []string{"1 0 0", "0 1 0", "0 0 1", "1 0 0", "0 1 0", "0 0 1"}
	parent := worldFrame
	u.Links = append(u.Links, URDFLink{Name: worldFrame})
	for i, name := range FloatingBaseJointNames {
		jointType := "prismatic"
		if i >= 3 {
			jointType = "revolute"
		}
		child := name + "_link"
		if i == NumFloatingBaseJoints-1 {
			child = root
		} else {
			u.Links = append(u.Links, URDFLink{Name: child})
		}
		u.Joints = append(u.Joints, URDFJoint{
			Name:   name,
			Type:   jointType,
			Parent: URDFFrame{Link: parent},
			Child:  URDFFrame{Link: child},
			Axis:   &URDFAxis{XYZ: axes[i]},
		})
		parent = child
	}
	return append([]string{}, FloatingBaseJointNames...), nil
}

// ParseVector parses a whitespace separated xyz attribute.
func ParseVector(s string) (r3.Vector, error) {
	if strings.TrimSpace(s) == "" {
		return r3.Vector{}, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return r3.Vector{}, errors.Errorf("expected 3 fields in vector attribute %q", s)
	}
	var out [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "bad vector attribute %q", s)
		}
		out[i] = v
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}

// Pose converts an origin element to a rigid transformation.
func (p *URDFPose) Pose() (spatialmath.Pose, error) {
	if p == nil {
		return spatialmath.NewZeroPose(), nil
	}
	xyz, err := ParseVector(p.XYZ)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	rpy, err := ParseVector(p.RPY)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return spatialmath.NewPoseFromRPY(xyz, rpy.X, rpy.Y, rpy.Z), nil
}

// Vector converts an axis element to a vector, defaulting to the x axis as
// the URDF specification does.
func (a *URDFAxis) Vector() (r3.Vector, error) {
	if a == nil || strings.TrimSpace(a.XYZ) == "" {
		return r3.Vector{X: 1}, nil
	}
	return ParseVector(a.XYZ)
}
