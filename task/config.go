package task

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Type selects the task space.
type Type string

// The supported task spaces.
const (
	TypeCartesian Type = "cart"
	TypeJoint     Type = "jnt"
	TypeCoM       Type = "com"
)

// Config describes a single task of the whole-body control problem. Names
// are unique within a scene.
type Config struct {
	Name string `yaml:"name"`
	Type Type   `yaml:"type"`
	// Priority is 0-based, 0 is the highest priority.
	Priority int `yaml:"priority"`
	// Weights holds one entry per task row.
	Weights []float64 `yaml:"weights"`
	// Activation switches the task on (1), off (0) or in between.
	Activation float64 `yaml:"activation"`
	// TimeoutSeconds marks the task as timed out when no reference arrived
	// for this long. Zero disables the timeout.
	TimeoutSeconds float64 `yaml:"timeout"`
	// RootFrame and TipFrame define the kinematic chain of a Cartesian task.
	RootFrame string `yaml:"root_frame,omitempty"`
	TipFrame  string `yaml:"tip_frame,omitempty"`
	// JointNames lists the joints of a joint-space task.
	JointNames []string `yaml:"joint_names,omitempty"`
}

// rows returns the number of task rows for the configured type.
func (c *Config) rows() int {
	switch c.Type {
	case TypeCartesian:
		return 6
	case TypeCoM:
		return 3
	default:
		return len(c.JointNames)
	}
}

// Validate checks the configuration, combining every violation found.
func (c *Config) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("task has no name"))
	}
	if c.Priority < 0 {
		err = multierr.Append(err, errors.Errorf("task %q has negative priority %d", c.Name, c.Priority))
	}
	if c.Activation < 0 || c.Activation > 1 {
		err = multierr.Append(err, errors.Errorf("task %q has activation %f outside [0, 1]", c.Name, c.Activation))
	}
	if c.TimeoutSeconds < 0 {
		err = multierr.Append(err, errors.Errorf("task %q has a negative timeout", c.Name))
	}
	switch c.Type {
	case TypeCartesian:
		if c.RootFrame == "" || c.TipFrame == "" {
			err = multierr.Append(err, errors.Errorf("cartesian task %q needs both root_frame and tip_frame", c.Name))
		}
		if len(c.JointNames) > 0 {
			err = multierr.Append(err, errors.Errorf("cartesian task %q must not list joint names", c.Name))
		}
	case TypeJoint:
		if len(c.JointNames) == 0 {
			err = multierr.Append(err, errors.Errorf("joint task %q lists no joints", c.Name))
		}
	case TypeCoM:
		if len(c.JointNames) > 0 || c.TipFrame != "" {
			err = multierr.Append(err, errors.Errorf("com task %q must not list joint names or a tip frame", c.Name))
		}
	default:
		err = multierr.Append(err, errors.Errorf("task %q has invalid type %q", c.Name, c.Type))
	}
	if len(c.Weights) != 0 && len(c.Weights) != c.rows() {
		err = multierr.Append(err, errors.Errorf("task %q has %d weights, expected %d", c.Name, len(c.Weights), c.rows()))
	}
	for _, w := range c.Weights {
		if w < 0 {
			err = multierr.Append(err, errors.Errorf("task %q has a negative weight", c.Name))
			break
		}
	}
	return err
}
