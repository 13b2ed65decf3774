package main

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

func TestWaypointRows(t *testing.T) {
	corners := []waypoint.Corner{
		{Pose: geom.NewPosition(0, 0, 0)},
		{Pose: geom.NewPosition(1, 0, 0)},
		{Pose: geom.NewPosition(1, 1, 0)},
		{Pose: geom.NewPosition(0, 1, 0)},
	}
	set, err := waypoint.Build(corners, 0.5, []waypoint.SidePoint{r3.Vector{X: 0.5, Y: 0.5, Z: 0.2}})
	require.NoError(t, err)

	rows := waypointRows(set)
	require.Len(t, rows, 18)
	assert.Equal(t, []string{"1", "corner 1", "1.0000", "0.0000", "0.0000"}, rows[1])
	assert.Equal(t, "corner 1", rows[5][1])
	assert.Equal(t, "grid", rows[8][1])
	assert.Equal(t, "grid", rows[16][1])
	assert.Equal(t, []string{"17", "side", "0.5000", "0.5000", "0.2000"}, rows[17])

	assert.Contains(t, renderWaypoints(set), "corner 3")
}
