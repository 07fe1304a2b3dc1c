// Package wbctest provides robot model fixtures shared by the test suites.
package wbctest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SevenDOFArmURDF is a seven joint serial arm with alternating z/y axes,
// uniform link inertia and an end effector link. All tests that need a
// redundant fixed-base manipulator use it.
const SevenDOFArmURDF = `<?xml version="1.0"?>
<robot name="seven_dof_arm">
  <link name="base_link">
    <inertial>
      <origin xyz="0 0 0.05"/>
      <mass value="2.0"/>
      <inertia ixx="0.02" ixy="0" ixz="0" iyy="0.02" iyz="0" izz="0.02"/>
    </inertial>
  </link>
  LINKS
  <link name="ee_link"/>
  JOINTS
  <joint name="ee_joint" type="fixed">
    <parent link="link7"/>
    <child link="ee_link"/>
    <origin xyz="0 0 0.1"/>
  </joint>
</robot>
`

// ArmJointNames are the movable joints of SevenDOFArmURDF in tree order.
var ArmJointNames = []string{"joint1", "joint2", "joint3", "joint4", "joint5", "joint6", "joint7"}

// WriteSevenDOFArm writes the arm fixture into a temporary directory and
// returns its path.
func WriteSevenDOFArm(tb testing.TB) string {
	tb.Helper()
	return WriteURDF(tb, "seven_dof_arm.urdf", buildSevenDOFArm())
}

func buildSevenDOFArm() string {
	var links, joints strings.Builder
	axes := []string{"0 0 1", "0 1 0", "0 0 1", "0 1 0", "0 0 1", "0 1 0", "0 0 1"}
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&links, `  <link name="link%d">
    <inertial>
      <origin xyz="0 0 0.15"/>
      <mass value="1.0"/>
      <inertia ixx="0.01" ixy="0" ixz="0" iyy="0.01" iyz="0" izz="0.01"/>
    </inertial>
  </link>
`, i)
		parent := "base_link"
		if i > 1 {
			parent = fmt.Sprintf("link%d", i-1)
		}
		fmt.Fprintf(&joints, `  <joint name="joint%d" type="revolute">
    <parent link="%s"/>
    <child link="link%d"/>
    <origin xyz="0 0 0.3"/>
    <axis xyz="%s"/>
    <limit lower="-2.9" upper="2.9" velocity="2.0" effort="200.0"/>
  </joint>
`, i, parent, i, axes[i-1])
	}
	out := strings.Replace(SevenDOFArmURDF, "  LINKS\n", links.String(), 1)
	out = strings.Replace(out, "  JOINTS\n", joints.String(), 1)
	return out
}

// WriteURDF writes content into a temporary file and returns its path.
func WriteURDF(tb testing.TB, name, content string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		tb.Fatal(err)
	}
	return path
}

// PlanarArmURDF is a two joint planar arm used by the hand-checkable
// kinematics tests.
const PlanarArmURDF = `<?xml version="1.0"?>
<robot name="planar_arm">
  <link name="base_link"/>
  <link name="upper">
    <inertial>
      <origin xyz="0.25 0 0"/>
      <mass value="1.0"/>
      <inertia ixx="0.01" ixy="0" ixz="0" iyy="0.01" iyz="0" izz="0.01"/>
    </inertial>
  </link>
  <link name="lower">
    <inertial>
      <origin xyz="0.25 0 0"/>
      <mass value="1.0"/>
      <inertia ixx="0.01" ixy="0" ixz="0" iyy="0.01" iyz="0" izz="0.01"/>
    </inertial>
  </link>
  <joint name="shoulder" type="revolute">
    <parent link="base_link"/>
    <child link="upper"/>
    <axis xyz="0 1 0"/>
    <limit lower="-3.1" upper="3.1" velocity="3.0" effort="50.0"/>
  </joint>
  <joint name="elbow" type="revolute">
    <parent link="upper"/>
    <child link="lower"/>
    <origin xyz="0.5 0 0"/>
    <axis xyz="0 1 0"/>
    <limit lower="-3.1" upper="3.1" velocity="3.0" effort="50.0"/>
  </joint>
</robot>
`

// WritePlanarArm writes the planar fixture and returns its path.
func WritePlanarArm(tb testing.TB) string {
	tb.Helper()
	return WriteURDF(tb, "planar_arm.urdf", PlanarArmURDF)
}

// IdentitySubmechanismYAML describes the seven axis arm as a trivial
// mechanism where every joint is independent; the submechanism back-end must
// then agree with the serial-tree back-end exactly.
const IdentitySubmechanismYAML = `jointnames_spanningtree: [joint1, joint2, joint3, joint4, joint5, joint6, joint7]
jointnames_independent: [joint1, joint2, joint3, joint4, joint5, joint6, joint7]
jointnames_active: [joint1, joint2, joint3, joint4, joint5, joint6, joint7]
`

// CoupledSubmechanismYAML couples joint7 rigidly to joint6, reducing the arm
// to six independent coordinates.
const CoupledSubmechanismYAML = `jointnames_spanningtree: [joint1, joint2, joint3, joint4, joint5, joint6, joint7]
jointnames_independent: [joint1, joint2, joint3, joint4, joint5, joint6]
jointnames_active: [joint1, joint2, joint3, joint4, joint5, joint6]
couplings:
  - joint: joint7
    independent: joint6
    factor: 1.0
    offset: 0.0
`

// WriteSubmechanism writes a submechanism description and returns its path.
func WriteSubmechanism(tb testing.TB, content string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "submechanism.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		tb.Fatal(err)
	}
	return path
}
