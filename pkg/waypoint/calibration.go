package waypoint

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/geom"
)

// cornerFile is the on-disk layout of recorded corners.
type cornerFile struct {
	Poses  []geom.Pose `json:"corner_poses"`
	Joints [][]float64 `json:"corner_joint_values,omitempty"`
}

// LoadCorners reads recorded corner poses and joint configurations.
func LoadCorners(path string) ([]Corner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read corners file")
	}

	var raw cornerFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse corners JSON")
	}
	if len(raw.Joints) > 0 && len(raw.Joints) != len(raw.Poses) {
		return nil, errors.Errorf("corners file has %d poses but %d joint configurations",
			len(raw.Poses), len(raw.Joints))
	}

	corners := make([]Corner, len(raw.Poses))
	for i, p := range raw.Poses {
		corners[i].Pose = p
		if len(raw.Joints) > 0 {
			corners[i].Joints = raw.Joints[i]
		}
	}
	return corners, nil
}

// SaveCorners writes corners in the layout read by LoadCorners.
func SaveCorners(path string, corners []Corner) error {
	raw := cornerFile{Poses: make([]geom.Pose, len(corners))}
	hasJoints := false
	for i, c := range corners {
		raw.Poses[i] = c.Pose
		hasJoints = hasJoints || len(c.Joints) > 0
	}
	if hasJoints {
		raw.Joints = make([][]float64, len(corners))
		for i, c := range corners {
			raw.Joints[i] = c.Joints
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create corners directory")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSidePoints reads side-face positions stored as [[x, y, z], ...].
// An empty path yields no points.
func LoadSidePoints(path string) ([]SidePoint, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read side faces file")
	}

	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "parse side faces JSON")
	}
	points := make([]SidePoint, len(rows))
	for i, row := range rows {
		if len(row) != 3 {
			return nil, errors.Errorf("side face point %d has %d coordinates, want 3", i, len(row))
		}
		points[i] = r3.Vector{X: row[0], Y: row[1], Z: row[2]}
	}
	return points, nil
}
