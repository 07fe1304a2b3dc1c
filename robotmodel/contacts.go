package robotmodel

import (
	"time"

	"go.viam.com/wbc/spatialmath"
)

// ActiveContacts tracks which of the configured contact points currently
// carry load. The arrays are parallel; the set of names is fixed at
// configuration time and only the Active flags are mutated between ticks.
type ActiveContacts struct {
	Names  []string
	Active []bool
}

// NewActiveContacts returns a contact set with every contact active.
func NewActiveContacts(names []string) ActiveContacts {
	active := make([]bool, len(names))
	for i := range active {
		active[i] = true
	}
	return ActiveContacts{Names: append([]string{}, names...), Active: active}
}

// Len returns the number of configured contact points.
func (c *ActiveContacts) Len() int {
	return len(c.Names)
}

// NumActive returns how many contacts are currently active.
func (c *ActiveContacts) NumActive() int {
	n := 0
	for _, a := range c.Active {
		if a {
			n++
		}
	}
	return n
}

// Index returns the index of the named contact point.
func (c *ActiveContacts) Index(name string) (int, error) {
	for i, n := range c.Names {
		if n == name {
			return i, nil
		}
	}
	return -1, NewUnknownFrameError(name)
}

// ContactWrenches is the per-contact wrench output of a TSID solve, names
// parallel to the active contact set.
type ContactWrenches struct {
	Names    []string
	Wrenches []spatialmath.Wrench
	Time     time.Time
}
