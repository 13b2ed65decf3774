// Package waypoint builds the ordered, immutable list of poses the arm can be
// sent to by index.
//
// The list is laid out as
//
//	[corners] ++ [corners] ++ [grid samples] ++ [side-face points]
//
// The corner prefix appears twice. Existing clients address corners by their
// low indices and also expect them at the start of the waypoint body, so the
// duplication is kept as is.
package waypoint

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/geom"
)

var (
	// ErrTooFewCorners is returned when the corners do not span a polygon.
	ErrTooFewCorners = errors.New("at least 3 non-collinear corners are required")
	// ErrInvalidSpacing is returned for a non-positive or non-finite grid spacing.
	ErrInvalidSpacing = errors.New("grid spacing must be positive")
	// ErrGridTooDense is returned when the lattice exceeds MaxGridSamples.
	ErrGridTooDense = errors.New("grid spacing too small for region")
)

// Corner is a taught boundary pose of the work surface together with the joint
// configuration the arm had when it was recorded.
type Corner struct {
	Pose   geom.Pose
	Joints []float64
}

// SidePoint is an auxiliary position, e.g. on a lateral face of the surface.
type SidePoint = r3.Vector

// Counts breaks the waypoint list down by origin.
type Counts struct {
	Corners int
	Grid    int
	Sides   int
}

// Total is the length of the waypoint list, including the duplicated corner prefix.
func (c Counts) Total() int {
	return 2*c.Corners + c.Grid + c.Sides
}

// Set is the immutable waypoint list.
type Set struct {
	corners []Corner
	poses   []geom.Pose
	counts  Counts
}

// Build samples the polygon spanned by corners at the given spacing and returns
// the complete waypoint list. Every grid and side-face waypoint takes the
// orientation of the first corner.
func Build(corners []Corner, spacing float64, sides []SidePoint) (*Set, error) {
	positions := make([]r3.Vector, len(corners))
	for i, c := range corners {
		positions[i] = c.Pose.Position()
	}
	region, err := NewRegion(positions)
	if err != nil {
		return nil, err
	}
	grid, err := region.Grid(spacing)
	if err != nil {
		return nil, err
	}

	counts := Counts{Corners: len(corners), Grid: len(grid), Sides: len(sides)}
	poses := make([]geom.Pose, 0, counts.Total())
	for range 2 {
		for _, c := range corners {
			poses = append(poses, c.Pose)
		}
	}
	reference := corners[0].Pose
	for _, p := range grid {
		poses = append(poses, reference.WithPosition(p))
	}
	for _, p := range sides {
		poses = append(poses, reference.WithPosition(p))
	}

	kept := make([]Corner, len(corners))
	for i, c := range corners {
		kept[i] = Corner{Pose: c.Pose, Joints: append([]float64(nil), c.Joints...)}
	}
	return &Set{corners: kept, poses: poses, counts: counts}, nil
}

// Len returns the number of addressable waypoints.
func (s *Set) Len() int {
	return len(s.poses)
}

// At returns waypoint i, or false when i is out of range.
func (s *Set) At(i int) (geom.Pose, bool) {
	if i < 0 || i >= len(s.poses) {
		return geom.Pose{}, false
	}
	return s.poses[i], true
}

// Corner returns corner i, or false when i is out of range.
func (s *Set) Corner(i int) (Corner, bool) {
	if i < 0 || i >= len(s.corners) {
		return Corner{}, false
	}
	c := s.corners[i]
	return Corner{Pose: c.Pose, Joints: append([]float64(nil), c.Joints...)}, true
}

// NumCorners returns the number of taught corners.
func (s *Set) NumCorners() int {
	return len(s.corners)
}

// Counts returns the breakdown of the list by origin.
func (s *Set) Counts() Counts {
	return s.counts
}

// Poses returns a copy of the waypoint list.
func (s *Set) Poses() []geom.Pose {
	return append([]geom.Pose(nil), s.poses...)
}
