package waypoint

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// planeEpsilon is the tolerance for degenerate (coincident or collinear) corners.
	planeEpsilon = 1e-9
	// hullEpsilon is how far outside the polygon a lattice sample may sit and still be kept.
	hullEpsilon = 1e-9
	// MaxGridSamples bounds the lattice size so a tiny spacing cannot exhaust memory.
	MaxGridSamples = 1_000_000
)

// point2 is a position in the region's plane coordinates.
type point2 struct {
	s, t float64
}

// Region is the convex polygon spanned by the taught corner positions,
// expressed in an orthonormal frame lying in the corners' plane.
type Region struct {
	origin r3.Vector
	u, v   r3.Vector
	normal r3.Vector
	offset float64
	hull   []point2
}

// NewRegion fits a plane through the corner positions and computes their
// convex hull. At least three non-collinear positions are required. The
// lattice axis u follows the hull edge leaving the vertex closest to the
// first corner, so the grid depends on the polygon and not on corner order.
func NewRegion(positions []r3.Vector) (*Region, error) {
	if len(positions) < 3 {
		return nil, errors.Wrapf(ErrTooFewCorners, "got %d", len(positions))
	}

	origin := positions[0]
	var u r3.Vector
	found := false
	for _, p := range positions[1:] {
		if d := p.Sub(origin); d.Norm() > planeEpsilon {
			u = d.Normalize()
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrap(ErrTooFewCorners, "all corners coincide")
	}

	var normal r3.Vector
	found = false
	for _, p := range positions[1:] {
		d := p.Sub(origin)
		c := u.Cross(d)
		if c.Norm() > planeEpsilon*math.Max(1, d.Norm()) {
			normal = canonicalNormal(c.Normalize())
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrap(ErrTooFewCorners, "corners are collinear")
	}

	r := &Region{origin: origin, u: u, v: normal.Cross(u), normal: normal}
	hull := convexHull(r.project(positions))
	if len(hull) < 3 {
		return nil, errors.Wrap(ErrTooFewCorners, "corners span no area")
	}

	start := 0
	for i, p := range hull {
		if math.Hypot(p.s, p.t) < math.Hypot(hull[start].s, hull[start].t) {
			start = i
		}
	}
	a, b := hull[start], hull[(start+1)%len(hull)]
	r.u = r.u.Mul(b.s - a.s).Add(r.v.Mul(b.t - a.t)).Normalize()
	r.v = normal.Cross(r.u)

	projected := r.project(positions)
	var offset float64
	for _, p := range positions {
		offset += p.Sub(origin).Dot(normal)
	}
	r.offset = offset / float64(len(positions))
	r.hull = convexHull(projected)
	if len(r.hull) < 3 {
		return nil, errors.Wrap(ErrTooFewCorners, "corners span no area")
	}
	return r, nil
}

// canonicalNormal orients n so its first non-zero component is positive.
func canonicalNormal(n r3.Vector) r3.Vector {
	for _, c := range []float64{n.X, n.Y, n.Z} {
		if math.Abs(c) > planeEpsilon {
			if c < 0 {
				return n.Mul(-1)
			}
			return n
		}
	}
	return n
}

func (r *Region) project(positions []r3.Vector) []point2 {
	projected := make([]point2, len(positions))
	for i, p := range positions {
		d := p.Sub(r.origin)
		projected[i] = point2{s: d.Dot(r.u), t: d.Dot(r.v)}
	}
	return projected
}

// Grid samples the region on a regular lattice with the given spacing along
// both in-plane axes. Samples are returned row by row; samples outside the
// polygon are discarded, samples on its boundary are kept.
func (r *Region) Grid(spacing float64) ([]r3.Vector, error) {
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return nil, errors.Wrapf(ErrInvalidSpacing, "spacing %v", spacing)
	}

	minS, maxS, minT, maxT := r.bounds()
	fcols := math.Floor((maxS-minS)/spacing+hullEpsilon) + 1
	frows := math.Floor((maxT-minT)/spacing+hullEpsilon) + 1
	if !(fcols*frows <= MaxGridSamples) {
		return nil, errors.Wrapf(ErrGridTooDense, "%g x %g samples at spacing %v", fcols, frows, spacing)
	}
	cols, rows := int(fcols), int(frows)

	var grid []r3.Vector
	for j := 0; j < rows; j++ {
		t := minT + float64(j)*spacing
		for i := 0; i < cols; i++ {
			s := minS + float64(i)*spacing
			if !r.contains(point2{s, t}) {
				continue
			}
			grid = append(grid, r.lift(point2{s, t}))
		}
	}
	return grid, nil
}

func (r *Region) bounds() (minS, maxS, minT, maxT float64) {
	ss := make([]float64, len(r.hull))
	ts := make([]float64, len(r.hull))
	for i, p := range r.hull {
		ss[i], ts[i] = p.s, p.t
	}
	return floats.Min(ss), floats.Max(ss), floats.Min(ts), floats.Max(ts)
}

// contains reports whether p lies inside or on the counter-clockwise hull.
func (r *Region) contains(p point2) bool {
	for i := range r.hull {
		a := r.hull[i]
		b := r.hull[(i+1)%len(r.hull)]
		if cross(a, b, p) < -hullEpsilon {
			return false
		}
	}
	return true
}

func (r *Region) lift(p point2) r3.Vector {
	return r.origin.
		Add(r.u.Mul(p.s)).
		Add(r.v.Mul(p.t)).
		Add(r.normal.Mul(r.offset))
}

// cross is the z component of (b-a) x (p-a).
func cross(a, b, p point2) float64 {
	return (b.s-a.s)*(p.t-a.t) - (b.t-a.t)*(p.s-a.s)
}

// convexHull returns the hull of pts in counter-clockwise order using
// Andrew's monotone chain. Collinear boundary points are dropped.
func convexHull(pts []point2) []point2 {
	sorted := append([]point2(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if !scalar.EqualWithinAbs(sorted[i].s, sorted[j].s, planeEpsilon) {
			return sorted[i].s < sorted[j].s
		}
		return sorted[i].t < sorted[j].t
	})
	if len(sorted) < 3 {
		return sorted
	}

	hull := make([]point2, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= planeEpsilon {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= planeEpsilon {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
