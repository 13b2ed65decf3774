package robot

import (
	"context"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// BaudRate of the STS servo bus.
const BaudRate = 1_000_000

// Arm is a servo arm on one serial bus. Joint values are normalized to
// [-100, 100] of each motor's calibrated range and ordered as AllMotors.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration

	// mu serializes bus transactions.
	mu sync.Mutex
}

// NewArm opens the bus on port. The calibration must cover every motor.
func NewArm(port string, cal Calibration) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid calibration")
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", port)
	}

	return &Arm{
		bus:         bus,
		group:       feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...),
		calibration: cal,
	}, nil
}

// Close releases torque and closes the bus.
func (a *Arm) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return multierr.Append(a.Disable(ctx), a.bus.Close())
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.group.DisableAll(ctx)
}

// ReadPositions reads normalized positions of all motors.
func (a *Arm) ReadPositions(ctx context.Context) (map[MotorName]float64, error) {
	a.mu.Lock()
	raw, err := a.group.Positions(ctx)
	a.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "read positions")
	}

	positions := make(map[MotorName]float64, len(raw))
	for id, pos := range raw {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(pos)
	}
	return positions, nil
}

// WritePositions commands normalized positions.
func (a *Arm) WritePositions(ctx context.Context, positions map[MotorName]float64) error {
	raw := make(feetech.PositionMap, len(positions))
	for name, norm := range positions {
		cal, ok := a.calibration[name]
		if !ok {
			return errors.Wrapf(ErrUnknownMotor, "%q", name)
		}
		raw[cal.ID] = cal.Denormalize(norm)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.group.SetPositions(ctx, raw); err != nil {
		return errors.Wrap(err, "write positions")
	}
	return nil
}

// Joints returns the normalized joint vector.
func (a *Arm) Joints(ctx context.Context) ([]float64, error) {
	positions, err := a.ReadPositions(ctx)
	if err != nil {
		return nil, err
	}
	return JointsFromPositions(positions)
}

// MoveJoints enables torque and commands the joint vector.
func (a *Arm) MoveJoints(ctx context.Context, joints []float64) error {
	positions, err := PositionsFromJoints(joints)
	if err != nil {
		return err
	}
	if err := a.Enable(ctx); err != nil {
		return errors.Wrap(err, "enable torque")
	}
	return a.WritePositions(ctx, positions)
}

// JointsFromPositions orders positions as AllMotors. Every motor must be present.
func JointsFromPositions(positions map[MotorName]float64) ([]float64, error) {
	motors := AllMotors()
	joints := make([]float64, len(motors))
	for i, name := range motors {
		v, ok := positions[name]
		if !ok {
			return nil, errors.Errorf("no position for %s", name)
		}
		joints[i] = v
	}
	return joints, nil
}

// PositionsFromJoints is the inverse of JointsFromPositions.
func PositionsFromJoints(joints []float64) (map[MotorName]float64, error) {
	motors := AllMotors()
	if len(joints) != len(motors) {
		return nil, errors.Errorf("got %d joint values, arm has %d motors", len(joints), len(motors))
	}
	positions := make(map[MotorName]float64, len(motors))
	for i, name := range motors {
		positions[name] = joints[i]
	}
	return positions, nil
}
