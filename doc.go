// Package armgoto moves a robotic manipulator to numbered waypoints over a
// planar acquisition region.
//
// The region is taught as three or more corner poses. The waypoint list is the
// corners, the corners again, a square grid over the region, and optional side
// points, all sharing the orientation of the first corner.
//
// # Installation
//
//	go install github.com/gwillem/armgoto/cmd/armgoto@latest
//
// # Usage
//
// Record the corners, then start the server:
//
//	armgoto teach
//	armgoto serve
//
// Remote callers POST {"waypoint_idx": n} to /api/v1/goto. Pressing "m" in the
// server's terminal hands control to the operator until they exit manual mode.
//
// # Packages
//
//   - cmd/armgoto: CLI with serve, waypoints, teach and setup commands
//   - pkg/waypoint: corner calibration and waypoint list construction
//   - pkg/motion: move-and-confirm execution against a motion planner
//   - pkg/scene: collision objects and world state synchronization
//   - pkg/arbiter: automatic/manual mode arbitration and the operator loop
//   - pkg/api: HTTP/JSON request and query endpoints
//   - pkg/bridge: HTTP client for the motion bridge
//   - pkg/console: keyboard input and terminal dashboard
//   - pkg/robot: servo arm joint moves, calibration and configuration
//   - pkg/sim: simulated arm and collision world
//   - pkg/geom, pkg/poll: pose type and bounded polling
package armgoto
