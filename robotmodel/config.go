package robotmodel

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// FloatingBaseJointNames are the six virtual joints injected under the world
// frame when a floating base is requested, in canonical order.
var FloatingBaseJointNames = []string{
	"floating_base_trans_x",
	"floating_base_trans_y",
	"floating_base_trans_z",
	"floating_base_rot_x",
	"floating_base_rot_y",
	"floating_base_rot_z",
}

// NumFloatingBaseJoints is the width of the virtual floating-base linkage.
const NumFloatingBaseJoints = 6

// DefaultWorldFrameID names the world frame when none is configured.
const DefaultWorldFrameID = "world"

// Config describes how a robot model back-end is loaded.
type Config struct {
	// File is the path to the URDF model file.
	File string `yaml:"file"`
	// SubmechanismFile describes the parallel submechanisms. Only the
	// submechanism back-end reads it.
	SubmechanismFile string `yaml:"submechanism_file,omitempty"`
	// JointNames fixes the joint ordering. Empty means "take the ordering
	// from the model file".
	JointNames []string `yaml:"joint_names,omitempty"`
	// ActuatedJointNames lists the joints with actuators. Must be a subset
	// of JointNames. Empty means all non-virtual joints are actuated.
	ActuatedJointNames []string `yaml:"actuated_joint_names,omitempty"`
	// JointBlacklist is stripped from the model before loading.
	JointBlacklist []string `yaml:"joint_blacklist,omitempty"`
	// ContactPoints name links that may be in contact with the environment.
	ContactPoints []string `yaml:"contact_points,omitempty"`
	// FloatingBase injects a virtual 6-DoF linkage under the model root.
	FloatingBase bool `yaml:"floating_base"`
	// WorldFrameID names the world frame the floating base hangs from.
	WorldFrameID string `yaml:"world_frame_id,omitempty"`
	// FloatingBaseState is the initial state of the virtual linkage.
	FloatingBaseState RigidBodyStateSE3 `yaml:"-"`
}

// Validate checks the internal consistency of the configuration. It does not
// touch the filesystem; file level failures surface at Configure.
func (c *Config) Validate() error {
	var err error
	if c.File == "" {
		err = multierr.Append(err, errors.New("no model file given"))
	}
	for _, a := range c.ActuatedJointNames {
		if len(c.JointNames) > 0 && !contains(c.JointNames, a) {
			err = multierr.Append(err, errors.Errorf("actuated joint %q is not in joint_names", a))
		}
	}
	if c.FloatingBase {
		if len(c.JointNames) >= NumFloatingBaseJoints {
			for i, name := range FloatingBaseJointNames {
				if c.JointNames[i] != name {
					err = multierr.Append(err,
						errors.Errorf("joint_names[%d] must be the virtual joint %q on a floating-base robot, got %q", i, name, c.JointNames[i]))
					break
				}
			}
		}
		if s := &c.FloatingBaseState; !s.Time.IsZero() && !s.HasValidPose() {
			err = multierr.Append(err, errors.New("floating-base initial pose has a non-unit quaternion or non-finite entries"))
		}
	}
	return err
}

// WorldFrame returns the configured world frame id or the default.
func (c *Config) WorldFrame() string {
	if c.WorldFrameID == "" {
		return DefaultWorldFrameID
	}
	return c.WorldFrameID
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
