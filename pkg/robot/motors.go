// Package robot drives a Feetech STS servo arm in joint space. It backs the
// operator's "go to corner joints" command when no motion bridge joint control
// is available, and the setup command that records motor ranges.
package robot

import "github.com/pkg/errors"

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-101 arm.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// ErrUnknownMotor is returned for a motor name the arm does not have.
var ErrUnknownMotor = errors.New("unknown motor")

// AllMotors returns all motor names in joint order, which is also servo ID
// order starting at 1.
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// JointIndex returns the position of name in a joint vector.
func JointIndex(name MotorName) (int, error) {
	for i, n := range AllMotors() {
		if n == name {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrUnknownMotor, "%q", name)
}
