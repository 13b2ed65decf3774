// Package bridge talks JSON over HTTP to the motion bridge, a small service
// next to the motion planner that exposes the move group and the planning
// scene.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/scene"
)

var (
	_ motion.Planner     = (*Client)(nil)
	_ scene.World        = (*Client)(nil)
	_ arbiter.JointMover = (*Client)(nil)
)

// Config describes how to reach the bridge.
type Config struct {
	URL string
	// Link is the end effector link whose pose is reported.
	Link string
	// RequestTimeout bounds every call except plan execution.
	RequestTimeout time.Duration
	// ConnectAttempts and ConnectBackoff control Connect.
	ConnectAttempts uint
	ConnectBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 8
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 100 * time.Millisecond
	}
	return c
}

// Client implements the motion, scene and joint collaborators over HTTP.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *zap.SugaredLogger
}

// NewClient creates a client. It does not contact the bridge; see Connect.
func NewClient(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse bridge url %q", cfg.URL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("bridge url %q needs a scheme and host", cfg.URL)
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{},
		logger: logger,
	}, nil
}

// StatusError is returned when the bridge answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("bridge returned %d", e.StatusCode)
	}
	return fmt.Sprintf("bridge returned %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Connect waits until the bridge reports healthy, backing off exponentially
// between attempts.
func (c *Client) Connect(ctx context.Context) error {
	err := retry.Retry(
		func(attempt uint) error {
			err := c.Health(ctx)
			if err != nil {
				c.logger.Debugw("Bridge not ready", "url", c.base.String(), "attempt", attempt, "error", err)
			}
			return err
		},
		func(uint) bool { return ctx.Err() == nil },
		strategy.Limit(c.cfg.ConnectAttempts),
		strategy.Backoff(backoff.BinaryExponential(c.cfg.ConnectBackoff)),
	)
	if err != nil {
		return errors.Wrapf(err, "connect to bridge %s", c.base)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "connect to bridge %s", c.base)
	}
	c.logger.Infow("Connected to motion bridge", "url", c.base.String())
	return nil
}

// Health checks that the bridge is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

type poseResponse struct {
	Pose geom.Pose `json:"pose"`
}

// CurrentPose implements motion.Planner and scene.PoseReader.
func (c *Client) CurrentPose(ctx context.Context) (geom.Pose, error) {
	var out poseResponse
	q := url.Values{}
	if c.cfg.Link != "" {
		q.Set("link", c.cfg.Link)
	}
	if err := c.do(ctx, http.MethodGet, "/pose", q, nil, &out); err != nil {
		return geom.Pose{}, err
	}
	return out.Pose, nil
}

type cartesianPathRequest struct {
	Waypoints     []geom.Pose `json:"waypoints"`
	EefStep       float64     `json:"eef_step"`
	JumpThreshold float64     `json:"jump_threshold"`
}

type cartesianPathResponse struct {
	PlanID   string  `json:"plan_id"`
	Fraction float64 `json:"fraction"`
}

// ComputeCartesianPath implements motion.Planner.
func (c *Client) ComputeCartesianPath(ctx context.Context, waypoints []geom.Pose, step, jumpThreshold float64) (motion.Plan, error) {
	var out cartesianPathResponse
	req := cartesianPathRequest{Waypoints: waypoints, EefStep: step, JumpThreshold: jumpThreshold}
	if err := c.do(ctx, http.MethodPost, "/cartesian_path", nil, req, &out); err != nil {
		return motion.Plan{}, err
	}
	return motion.Plan{
		ID:        out.PlanID,
		Waypoints: append([]geom.Pose(nil), waypoints...),
		Fraction:  out.Fraction,
	}, nil
}

type executeRequest struct {
	PlanID string `json:"plan_id"`
	Wait   bool   `json:"wait"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// Execute implements motion.Planner. With wait set the call blocks until the
// bridge reports the trajectory finished, so it is only bounded by ctx.
func (c *Client) Execute(ctx context.Context, plan motion.Plan, wait bool) (bool, error) {
	var out successResponse
	if err := c.doUnbounded(ctx, http.MethodPost, "/execute", nil, executeRequest{PlanID: plan.ID, Wait: wait}, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

// Stop implements motion.Planner.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stop", nil, struct{}{}, nil)
}

type jointsBody struct {
	Joints []float64 `json:"joints"`
}

// Joints returns the current joint values in planning group order.
func (c *Client) Joints(ctx context.Context) ([]float64, error) {
	var out jointsBody
	if err := c.do(ctx, http.MethodGet, "/joints", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Joints, nil
}

// MoveJoints implements arbiter.JointMover.
func (c *Client) MoveJoints(ctx context.Context, joints []float64) error {
	var out successResponse
	if err := c.doUnbounded(ctx, http.MethodPost, "/joints", nil, jointsBody{Joints: joints}, &out); err != nil {
		return err
	}
	if !out.Success {
		return errors.New("joint move failed")
	}
	return nil
}

type boxRequest struct {
	Name string     `json:"name"`
	Pose geom.Pose  `json:"pose"`
	Size [3]float64 `json:"size"`
}

// AddBox implements scene.World.
func (c *Client) AddBox(ctx context.Context, name string, pose geom.Pose, size r3.Vector) error {
	return c.do(ctx, http.MethodPost, "/scene/boxes", nil,
		boxRequest{Name: name, Pose: pose, Size: [3]float64{size.X, size.Y, size.Z}}, nil)
}

type attachRequest struct {
	Link       string   `json:"link"`
	Name       string   `json:"name"`
	TouchLinks []string `json:"touch_links,omitempty"`
}

// AttachBox implements scene.World.
func (c *Client) AttachBox(ctx context.Context, link, name string, touchLinks []string) error {
	return c.do(ctx, http.MethodPost, "/scene/attach", nil,
		attachRequest{Link: link, Name: name, TouchLinks: touchLinks}, nil)
}

// RemoveAttachedObject implements scene.World.
func (c *Client) RemoveAttachedObject(ctx context.Context, link, name string) error {
	return c.do(ctx, http.MethodPost, "/scene/detach", nil, attachRequest{Link: link, Name: name}, nil)
}

// RemoveWorldObject implements scene.World.
func (c *Client) RemoveWorldObject(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/scene/objects/"+url.PathEscape(name), nil, nil, nil)
}

type namesResponse struct {
	Names []string `json:"names"`
}

// AttachedObjects implements scene.World.
func (c *Client) AttachedObjects(ctx context.Context, names []string) ([]string, error) {
	q := url.Values{}
	if len(names) > 0 {
		q.Set("names", strings.Join(names, ","))
	}
	var out namesResponse
	if err := c.do(ctx, http.MethodGet, "/scene/attached", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Names, nil
}

// KnownObjectNames implements scene.World.
func (c *Client) KnownObjectNames(ctx context.Context) ([]string, error) {
	var out namesResponse
	if err := c.do(ctx, http.MethodGet, "/scene/known", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Names, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return c.doUnbounded(ctx, method, path, query, in, out)
}

func (c *Client) doUnbounded(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		var payload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			serr.Code, serr.Message = payload.Error.Code, payload.Error.Message
		}
		return errors.Wrapf(serr, "%s %s", method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}
