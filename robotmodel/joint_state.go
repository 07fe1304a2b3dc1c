package robotmodel

import (
	"math"
	"time"

	"go.uber.org/multierr"
)

// JointValue is the measured or commanded state of a single joint.
type JointValue struct {
	Position     float64
	Velocity     float64
	Acceleration float64
	Effort       float64
}

// JointState is an ordered, named set of joint values. The name to index
// mapping is bijective. A zero Time marks a state that was never updated.
type JointState struct {
	Names  []string
	Values []JointValue
	Time   time.Time
}

// NewJointState returns a zero-valued state for the given joint names.
func NewJointState(names []string) JointState {
	return JointState{
		Names:  append([]string{}, names...),
		Values: make([]JointValue, len(names)),
	}
}

// Len returns the number of joints.
func (s *JointState) Len() int {
	return len(s.Names)
}

// Index returns the index of the named joint.
func (s *JointState) Index(name string) (int, error) {
	for i, n := range s.Names {
		if n == name {
			return i, nil
		}
	}
	return -1, NewUnknownJointError(name)
}

// ByName returns the value of the named joint.
func (s *JointState) ByName(name string) (JointValue, error) {
	idx, err := s.Index(name)
	if err != nil {
		return JointValue{}, err
	}
	return s.Values[idx], nil
}

// Select returns the sub-state for the given names, in that order.
func (s *JointState) Select(names []string) (JointState, error) {
	out := JointState{
		Names:  append([]string{}, names...),
		Values: make([]JointValue, len(names)),
		Time:   s.Time,
	}
	for i, name := range names {
		v, err := s.ByName(name)
		if err != nil {
			return JointState{}, err
		}
		out.Values[i] = v
	}
	return out, nil
}

// Validate checks sizing, timestamp and finiteness. The returned error
// combines every violation found.
func (s *JointState) Validate() error {
	var err error
	if len(s.Names) != len(s.Values) {
		err = multierr.Append(err, NewInvalidJointStateError("names and values differ in length"))
	}
	if s.Time.IsZero() {
		err = multierr.Append(err, NewInvalidJointStateError("timestamp is null"))
	}
	for i, v := range s.Values {
		if !finite(v.Position) || !finite(v.Velocity) || !finite(v.Acceleration) || !finite(v.Effort) {
			name := "?"
			if i < len(s.Names) {
				name = s.Names[i]
			}
			err = multierr.Append(err, NewInvalidJointStateError("non-finite value for joint "+name))
		}
	}
	return err
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
