package robot

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MotorCalibration holds the servo ID and recorded raw range of one motor.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration maps motor names to their calibration.
type Calibration map[MotorName]MotorCalibration

// LoadCalibration reads a calibration file written by Calibration.Save.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration file")
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, errors.Wrap(err, "parse calibration JSON")
	}
	return cal, nil
}

// Save writes the calibration as indented JSON.
func (c Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that every motor is calibrated with a unique servo ID and a
// non-empty range.
func (c Calibration) Validate() error {
	var err error
	ids := make(map[int]MotorName, len(c))
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok {
			err = multierr.Append(err, errors.Errorf("%s: not calibrated", name))
			continue
		}
		if other, dup := ids[mc.ID]; dup {
			err = multierr.Append(err, errors.Errorf("%s: servo id %d already used by %s", name, mc.ID, other))
		}
		ids[mc.ID] = name
		if mc.RangeMax <= mc.RangeMin {
			err = multierr.Append(err, errors.Errorf("%s: empty range [%d, %d]", name, mc.RangeMin, mc.RangeMax))
		}
	}
	for name := range c {
		if _, jerr := JointIndex(name); jerr != nil {
			err = multierr.Append(err, jerr)
		}
	}
	return err
}

// Normalize converts a raw servo position to a value in [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a value in [-100, 100] to a raw servo position. Values
// outside that interval are clamped to the recorded range.
func (c MotorCalibration) Denormalize(norm float64) int {
	norm = min(max(norm, -100), 100)
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// MotorIDs returns the servo IDs in joint order.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns the motor name and calibration for a servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
