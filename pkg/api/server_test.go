package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/sim"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

func newTestServer(t *testing.T) (*httptest.Server, *arbiter.Arbiter, *sim.Arm) {
	t.Helper()
	corners := []waypoint.Corner{
		{Pose: geom.NewPosition(0, 0, 0)},
		{Pose: geom.NewPosition(1, 0, 0)},
		{Pose: geom.NewPosition(1, 1, 0)},
		{Pose: geom.NewPosition(0, 1, 0)},
	}
	set, err := waypoint.Build(corners, 0.5, nil)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t).Sugar()
	arm := sim.NewArm()
	cfg := motion.DefaultConfig()
	cfg.Interval = time.Millisecond
	a := arbiter.New(set, motion.NewExecutor(arm, cfg, logger), arm, logger)

	srv := httptest.NewServer(NewServer(a, Options{}, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, a, arm
}

func postGoTo(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/goto", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestGoTo(t *testing.T) {
	srv, _, arm := newTestServer(t)

	code, out := postGoTo(t, srv.URL, `{"waypoint_idx": 16}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", out["status"])
	assert.Equal(t, true, out["executed"])
	assert.Equal(t, true, out["arrived"])
	assert.Equal(t, float64(16), out["waypoint_idx"])
	assert.NotEmpty(t, out["id"])
	assert.NotContains(t, out, "reason")

	calls := len(arm.Calls())
	code, out = postGoTo(t, srv.URL, `{"waypoint_idx": 17}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "aborted", out["status"])
	assert.Equal(t, "out_of_range", out["reason"])
	assert.Equal(t, float64(-1), out["distance"])
	assert.Len(t, arm.Calls(), calls)
}

func TestGoTo_RequestIDsAreUnique(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, first := postGoTo(t, srv.URL, `{"waypoint_idx": 1}`)
	_, second := postGoTo(t, srv.URL, `{"waypoint_idx": 1}`)
	assert.NotEqual(t, first["id"], second["id"])
}

func TestGoTo_ManualMode(t *testing.T) {
	srv, a, arm := newTestServer(t)
	require.NoError(t, a.EnterManual(context.Background()))
	arm.Reset()

	_, out := postGoTo(t, srv.URL, `{"waypoint_idx": 3}`)
	assert.Equal(t, "aborted", out["status"])
	assert.Equal(t, "manual_active", out["reason"])
	assert.Empty(t, arm.Calls())

	var mode map[string]string
	getJSON(t, srv.URL+"/api/v1/mode", &mode)
	assert.Equal(t, "manual", mode["mode"])

	var count map[string]int
	getJSON(t, srv.URL+"/api/v1/waypoints/count", &count)
	assert.Equal(t, 17, count["count"])
}

func TestGoTo_BadRequests(t *testing.T) {
	srv, _, arm := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing index", `{}`, "invalid_request"},
		{"not json", `waypoint 3`, "invalid_json"},
		{"unknown field", `{"waypoint": 3}`, "invalid_json"},
		{"wrong type", `{"waypoint_idx": "3"}`, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := postGoTo(t, srv.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			require.Contains(t, out, "error")
			assert.Equal(t, tt.code, out["error"].(map[string]any)["code"])
		})
	}
	assert.Empty(t, arm.Calls())
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/goto")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/waypoints/count", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWaypoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var out WaypointsResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/waypoints", &out))
	assert.Equal(t, 17, out.Count)
	assert.Equal(t, 4, out.Corners)
	assert.Equal(t, 9, out.Grid)
	assert.Zero(t, out.Sides)
	require.Len(t, out.Waypoints, 17)
	assert.Equal(t, geom.NewPosition(1, 0, 0).Position(), out.Waypoints[5].Position())
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var out HealthResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/health", &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "automatic", out.Mode)
	assert.False(t, out.StartedAt.IsZero())
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
