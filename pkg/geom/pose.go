// Package geom provides the pose value type shared by the planner, the waypoint
// builder and the collision world.
package geom

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Identity is the orientation with no rotation.
var Identity = quat.Number{Real: 1}

// Pose is a position in metres plus a unit quaternion orientation.
// The zero value is a pose at the origin with identity orientation.
type Pose struct {
	position    r3.Vector
	orientation quat.Number
	set         bool
}

// NewPose returns a pose with the orientation normalised to unit length.
// A zero (or non-finite) quaternion is replaced by the identity.
func NewPose(position r3.Vector, orientation quat.Number) Pose {
	return Pose{position: position, orientation: normalize(orientation), set: true}
}

// NewPosition returns a pose at position with identity orientation.
func NewPosition(x, y, z float64) Pose {
	return NewPose(r3.Vector{X: x, Y: y, Z: z}, Identity)
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Position returns the position component.
func (p Pose) Position() r3.Vector {
	return p.position
}

// Orientation returns the unit quaternion orientation.
func (p Pose) Orientation() quat.Number {
	if !p.set {
		return Identity
	}
	return p.orientation
}

// WithPosition returns a copy of p moved to position, keeping the orientation.
func (p Pose) WithPosition(position r3.Vector) Pose {
	return NewPose(position, p.Orientation())
}

// WithOrientation returns a copy of p with a new orientation, keeping the position.
func (p Pose) WithOrientation(orientation quat.Number) Pose {
	return NewPose(p.position, orientation)
}

// Translate returns a copy of p shifted by offset.
func (p Pose) Translate(offset r3.Vector) Pose {
	return p.WithPosition(p.position.Add(offset))
}

// Distance is the Euclidean distance between the positions of a and b.
func Distance(a, b Pose) float64 {
	return a.position.Distance(b.position)
}

// SameOrientation reports whether a and b describe the same rotation within tol.
// q and -q are the same rotation.
func SameOrientation(a, b quat.Number, tol float64) bool {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return math.Abs(math.Abs(dot)-1) <= tol
}

func (p Pose) String() string {
	o := p.Orientation()
	return fmt.Sprintf("pos(%.4f, %.4f, %.4f) rot(%.4f, %.4f, %.4f, %.4f)",
		p.position.X, p.position.Y, p.position.Z, o.Imag, o.Jmag, o.Kmag, o.Real)
}

type vectorJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type quaternionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type poseJSON struct {
	Position    vectorJSON      `json:"position"`
	Orientation *quaternionJSON `json:"orientation,omitempty"`
}

// MarshalJSON encodes the pose in the ROS geometry_msgs/Pose layout.
func (p Pose) MarshalJSON() ([]byte, error) {
	o := p.Orientation()
	return json.Marshal(poseJSON{
		Position:    vectorJSON{X: p.position.X, Y: p.position.Y, Z: p.position.Z},
		Orientation: &quaternionJSON{X: o.Imag, Y: o.Jmag, Z: o.Kmag, W: o.Real},
	})
}

// UnmarshalJSON decodes the ROS geometry_msgs/Pose layout. A missing
// orientation decodes as identity.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var raw poseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	orientation := Identity
	if raw.Orientation != nil {
		orientation = quat.Number{
			Real: raw.Orientation.W,
			Imag: raw.Orientation.X,
			Jmag: raw.Orientation.Y,
			Kmag: raw.Orientation.Z,
		}
	}
	*p = NewPose(r3.Vector{X: raw.Position.X, Y: raw.Position.Y, Z: raw.Position.Z}, orientation)
	return nil
}
