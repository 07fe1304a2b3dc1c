// Package wbcconfig loads whole-body control profiles, one YAML file tying
// together a robot model, a scene with its task set and a solver, and builds
// the runtime from them. It replaces any global scene registry: the factory
// is explicit and its lifetime is the application's.
package wbcconfig

import (
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/robotmodel/kintree"
	"go.viam.com/wbc/robotmodel/submech"
	"go.viam.com/wbc/scene"
	"go.viam.com/wbc/solver"
	"go.viam.com/wbc/task"
)

// SceneType names a scene shape.
type SceneType string

// The available scene shapes.
const (
	SceneVelocity         SceneType = "velocity"
	SceneVelocityQP       SceneType = "velocity_qp"
	SceneAcceleration     SceneType = "acceleration"
	SceneAccelerationTSID SceneType = "acceleration_tsid"
)

// BackendType names a robot model back-end.
type BackendType string

// The available robot model back-ends.
const (
	BackendSerialTree   BackendType = "serial_tree"
	BackendSubmechanism BackendType = "submechanism"
)

// SolverConfig selects and parameterizes the solver.
type SolverConfig struct {
	// NormMax bounds the per-priority solution norm of the hierarchical
	// least-squares solver. Zero keeps the default.
	NormMax float64 `yaml:"norm_max,omitempty"`
}

// DefaultNormMax bounds the hierarchical solver when the profile is silent.
const DefaultNormMax = 10.0

// SceneConfig parameterizes one scene.
type SceneConfig struct {
	Type SceneType `yaml:"type"`
	// DT is the control step, required by the acceleration_tsid scene.
	DT float64 `yaml:"dt,omitempty"`
	// Reduced selects the floating-base-only TSID formulation.
	Reduced      bool          `yaml:"reduced,omitempty"`
	JointWeights []float64     `yaml:"joint_weights,omitempty"`
	Tasks        []task.Config `yaml:"tasks"`
}

// Profile is a complete whole-body control setup.
type Profile struct {
	RobotModel robotmodel.Config `yaml:"robot_model"`
	Backend    BackendType       `yaml:"backend,omitempty"`
	Scene      SceneConfig       `yaml:"scene"`
	Solver     SolverConfig      `yaml:"solver,omitempty"`
}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read profile")
	}
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "failed to parse profile")
	}
	return p, nil
}

// Build configures the robot model, scene and solver described by the
// profile. The returned model is shared between the caller and the scene.
func (p *Profile) Build(logger golog.Logger) (robotmodel.RobotModel, scene.Scene, error) {
	var model robotmodel.RobotModel
	switch p.Backend {
	case BackendSubmechanism:
		model = submech.NewModel(logger)
	case BackendSerialTree, "":
		model = kintree.NewModel(logger)
	default:
		return nil, nil, errors.Errorf("unknown robot model back-end %q", p.Backend)
	}
	if err := model.Configure(p.RobotModel); err != nil {
		return nil, nil, err
	}

	normMax := p.Solver.NormMax
	if normMax <= 0 {
		normMax = DefaultNormMax
	}

	var sc scene.Scene
	switch p.Scene.Type {
	case SceneVelocity:
		sc = scene.NewVelocityScene(logger, model, solver.NewHierarchicalWDLSSolver(logger, normMax))
	case SceneVelocityQP:
		sc = scene.NewVelocitySceneQuadraticCost(logger, model, solver.NewActiveSetSolver(logger))
	case SceneAcceleration:
		sc = scene.NewAccelerationScene(logger, model, solver.NewActiveSetSolver(logger))
	case SceneAccelerationTSID:
		tsid, err := scene.NewAccelerationSceneTSID(logger, model, solver.NewActiveSetSolver(logger), p.Scene.DT, p.Scene.Reduced)
		if err != nil {
			return nil, nil, err
		}
		sc = tsid
	default:
		return nil, nil, errors.Errorf("unknown scene type %q", p.Scene.Type)
	}

	if err := sc.Configure(p.Scene.Tasks); err != nil {
		return nil, nil, err
	}
	if len(p.Scene.JointWeights) > 0 {
		if err := sc.SetJointWeights(p.Scene.JointWeights); err != nil {
			return nil, nil, err
		}
	}
	return model, sc, nil
}
