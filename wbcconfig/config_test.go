package wbcconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/wbctest"
)

func writeProfile(t *testing.T, urdfPath, sceneType, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`robot_model:
  file: %s
backend: serial_tree
scene:
  type: %s
%s  tasks:
    - name: ee
      type: cart
      activation: 1
      root_frame: base_link
      tip_frame: ee_link
solver:
  norm_max: 50
`, urdfPath, sceneType, extra)
	path := filepath.Join(t.TempDir(), "profile.yml")
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestLoadProfile(t *testing.T) {
	urdf := wbctest.WriteSevenDOFArm(t)
	p, err := LoadProfile(writeProfile(t, urdf, "velocity", ""))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Scene.Type, test.ShouldEqual, SceneVelocity)
	test.That(t, p.Backend, test.ShouldEqual, BackendSerialTree)
	test.That(t, p.Solver.NormMax, test.ShouldEqual, 50.0)
	test.That(t, len(p.Scene.Tasks), test.ShouldEqual, 1)
	test.That(t, p.Scene.Tasks[0].Name, test.ShouldEqual, "ee")

	_, err = LoadProfile("/missing.yml")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuildVelocityScene(t *testing.T) {
	urdf := wbctest.WriteSevenDOFArm(t)
	p, err := LoadProfile(writeProfile(t, urdf, "velocity", ""))
	test.That(t, err, test.ShouldBeNil)

	model, sc, err := p.Build(golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.NumJoints(), test.ShouldEqual, 7)
	test.That(t, sc.HasTask("ee"), test.ShouldBeTrue)

	// a built profile runs a full tick
	state := robotmodel.NewJointState(wbctest.ArmJointNames)
	state.Time = time.Now()
	test.That(t, model.Update(state, nil), test.ShouldBeNil)
	hqp, err := sc.Update()
	test.That(t, err, test.ShouldBeNil)
	_, err = sc.Solve(hqp)
	test.That(t, err, test.ShouldBeNil)
}

func TestBuildTSIDScene(t *testing.T) {
	urdf := wbctest.WriteSevenDOFArm(t)
	p, err := LoadProfile(writeProfile(t, urdf, "acceleration_tsid", "  dt: 0.01\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Scene.DT, test.ShouldEqual, 0.01)

	_, sc, err := p.Build(golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sc.HasTask("ee"), test.ShouldBeTrue)
}

func TestBuildFailures(t *testing.T) {
	urdf := wbctest.WriteSevenDOFArm(t)
	logger := golog.NewTestLogger(t)

	p, err := LoadProfile(writeProfile(t, urdf, "no_such_scene", ""))
	test.That(t, err, test.ShouldBeNil)
	_, _, err = p.Build(logger)
	test.That(t, err, test.ShouldNotBeNil)

	p, err = LoadProfile(writeProfile(t, urdf, "velocity", ""))
	test.That(t, err, test.ShouldBeNil)
	p.Backend = "no_such_backend"
	_, _, err = p.Build(logger)
	test.That(t, err, test.ShouldNotBeNil)

	p.Backend = BackendSerialTree
	p.RobotModel.File = "/missing.urdf"
	_, _, err = p.Build(logger)
	test.That(t, err, test.ShouldNotBeNil)
}
