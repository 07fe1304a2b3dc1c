// Package submech implements the parallel-submechanism robot model back-end.
// It runs a serial spanning-tree model underneath and projects every query
// into the independent joint space through a constant coupling matrix read
// from a submechanism description file.
package submech

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Coupling ties a dependent spanning-tree joint to an independent joint:
// q_dep = factor*q_ind + offset.
type Coupling struct {
	Joint       string  `yaml:"joint"`
	Independent string  `yaml:"independent"`
	Factor      float64 `yaml:"factor"`
	Offset      float64 `yaml:"offset"`
}

// Description is the on-disk submechanism description.
type Description struct {
	SpanningTreeJoints []string   `yaml:"jointnames_spanningtree"`
	IndependentJoints  []string   `yaml:"jointnames_independent"`
	ActiveJoints       []string   `yaml:"jointnames_active"`
	Couplings          []Coupling `yaml:"couplings"`
}

// ParseDescriptionFile reads and validates a submechanism description.
func ParseDescriptionFile(filename string) (*Description, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read submechanism file")
	}
	d := &Description{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, errors.Wrap(err, "failed to parse submechanism file")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the internal consistency of the description.
func (d *Description) Validate() error {
	if len(d.IndependentJoints) == 0 {
		return errors.New("submechanism description lists no independent joints")
	}
	inSpanning := map[string]bool{}
	for _, j := range d.SpanningTreeJoints {
		inSpanning[j] = true
	}
	for _, j := range d.IndependentJoints {
		if len(d.SpanningTreeJoints) > 0 && !inSpanning[j] {
			return errors.Errorf("independent joint %q is not in the spanning tree", j)
		}
	}
	independent := map[string]bool{}
	for _, j := range d.IndependentJoints {
		independent[j] = true
	}
	for _, c := range d.Couplings {
		if !independent[c.Independent] {
			return errors.Errorf("coupling of %q references %q, which is not an independent joint", c.Joint, c.Independent)
		}
		if independent[c.Joint] {
			return errors.Errorf("coupled joint %q cannot itself be independent", c.Joint)
		}
		if len(d.SpanningTreeJoints) > 0 && !inSpanning[c.Joint] {
			return errors.Errorf("coupled joint %q is not in the spanning tree", c.Joint)
		}
	}
	for _, j := range d.ActiveJoints {
		if !independent[j] {
			return errors.Errorf("active joint %q is not an independent joint", j)
		}
	}
	return nil
}
