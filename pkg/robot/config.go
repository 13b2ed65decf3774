package robot

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/scene"
)

const DefaultConfigFile = "armgoto.json"

// Config is the project configuration file.
type Config struct {
	CornersFile   string  `json:"corners_file"`
	SideFacesFile string  `json:"side_faces_file,omitempty"`
	GridSpacing   float64 `json:"grid_spacing"`

	Listen       string `json:"listen"`
	BridgeURL    string `json:"bridge_url"`
	EffectorLink string `json:"effector_link"`

	Motion MotionConfig `json:"motion"`
	Scene  SceneConfig  `json:"scene"`
	Servo  ServoConfig  `json:"servo"`
}

// MotionConfig tunes planning and the arrival check.
type MotionConfig struct {
	Step           float64 `json:"step"`
	JumpThreshold  float64 `json:"jump_threshold"`
	Tolerance      float64 `json:"tolerance"`
	Attempts       int     `json:"attempts"`
	IntervalMS     int     `json:"interval_ms"`
	RequireArrival bool    `json:"require_arrival,omitempty"`
}

// SceneConfig describes the collision objects added at startup.
type SceneConfig struct {
	Disabled   bool        `json:"disabled,omitempty"`
	IntervalMS int         `json:"interval_ms"`
	TimeoutMS  int         `json:"timeout_ms"`
	Boxes      []scene.Box `json:"boxes"`
}

// ServoConfig is the optional servo arm used for joint-space corner moves.
type ServoConfig struct {
	Port        string      `json:"port,omitempty"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if the servo arm has calibration data.
func (s *ServoConfig) IsCalibrated() bool {
	return len(s.Calibration) > 0
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return (&Config{}).withDefaults()
}

func (c *Config) withDefaults() *Config {
	if c.CornersFile == "" {
		c.CornersFile = "data/corners.json"
	}
	if c.GridSpacing == 0 {
		c.GridSpacing = 0.05
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.BridgeURL == "" {
		c.BridgeURL = "http://localhost:8090"
	}
	if c.EffectorLink == "" {
		c.EffectorLink = "tool0"
	}

	def := motion.DefaultConfig()
	if c.Motion.Step == 0 {
		c.Motion.Step = def.Step
	}
	if c.Motion.JumpThreshold == 0 {
		c.Motion.JumpThreshold = def.JumpThreshold
	}
	if c.Motion.Tolerance == 0 {
		c.Motion.Tolerance = def.Tolerance
	}
	if c.Motion.Attempts == 0 {
		c.Motion.Attempts = def.Attempts
	}
	if c.Motion.IntervalMS == 0 {
		c.Motion.IntervalMS = int(def.Interval / time.Millisecond)
	}

	if c.Scene.IntervalMS == 0 {
		c.Scene.IntervalMS = int(scene.DefaultInterval / time.Millisecond)
	}
	if c.Scene.TimeoutMS == 0 {
		c.Scene.TimeoutMS = int(scene.DefaultTimeout / time.Millisecond)
	}
	if c.Scene.Boxes == nil {
		c.Scene.Boxes = scene.DefaultBoxes()
	}
	return c
}

// MotionSettings converts the motion section for the executor.
func (c *Config) MotionSettings() motion.Config {
	return motion.Config{
		Step:           c.Motion.Step,
		JumpThreshold:  c.Motion.JumpThreshold,
		Tolerance:      c.Motion.Tolerance,
		Attempts:       c.Motion.Attempts,
		Interval:       time.Duration(c.Motion.IntervalMS) * time.Millisecond,
		RequireArrival: c.Motion.RequireArrival,
	}
}

// SceneTimings returns the scene polling interval and timeout.
func (c *Config) SceneTimings() (interval, timeout time.Duration) {
	return time.Duration(c.Scene.IntervalMS) * time.Millisecond,
		time.Duration(c.Scene.TimeoutMS) * time.Millisecond
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.GridSpacing <= 0:
		return errors.Errorf("grid_spacing must be positive, got %g", c.GridSpacing)
	case c.Motion.Tolerance <= 0:
		return errors.Errorf("motion.tolerance must be positive, got %g", c.Motion.Tolerance)
	case c.Motion.Attempts < 0 || c.Motion.IntervalMS < 0:
		return errors.New("motion.attempts and motion.interval_ms must not be negative")
	case c.Scene.IntervalMS < 0 || c.Scene.TimeoutMS < 0:
		return errors.New("scene.interval_ms and scene.timeout_ms must not be negative")
	}
	if c.Servo.Port != "" {
		if err := c.Servo.Calibration.Validate(); err != nil {
			return errors.Wrap(err, "servo calibration")
		}
	}
	return nil
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from path and fills in defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg.withDefaults(), nil
}

// SaveTo saves configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if path exists.
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
