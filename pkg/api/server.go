// Package api serves GoTo requests and waypoint queries over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

// Controller is the arbiter as seen by remote callers.
type Controller interface {
	GoTo(ctx context.Context, idx int) arbiter.Result
	WaypointCount() int
	Waypoints() *waypoint.Set
	Mode() arbiter.Mode
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Server struct {
	opts      Options
	ctrl      Controller
	logger    *zap.SugaredLogger
	startedAt time.Time
	server    *http.Server
}

func NewServer(ctrl Controller, opts Options, logger *zap.SugaredLogger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		opts:      opts,
		ctrl:      ctrl,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: cors.AllowAll().Handler(mux),
	}
	return s
}

// Handler returns the HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Infow("API listening", "addr", s.opts.Addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "serve api")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown api")
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/mode", s.handleMode)
	mux.HandleFunc("/api/v1/goto", s.handleGoTo)
	mux.HandleFunc("/api/v1/waypoints", s.handleWaypoints)
	mux.HandleFunc("/api/v1/waypoints/count", s.handleWaypointCount)
}

type GoToRequest struct {
	WaypointIdx *int `json:"waypoint_idx"`
}

type GoToResponse struct {
	ID          string  `json:"id"`
	WaypointIdx int     `json:"waypoint_idx"`
	Status      string  `json:"status"`
	Reason      string  `json:"reason,omitempty"`
	Executed    bool    `json:"executed"`
	Arrived     bool    `json:"arrived"`
	Distance    float64 `json:"distance"`
	Error       string  `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	Now       time.Time `json:"now"`
}

type WaypointsResponse struct {
	Count     int         `json:"count"`
	Corners   int         `json:"corners"`
	Grid      int         `json:"grid"`
	Sides     int         `json:"sides"`
	Waypoints []geom.Pose `json:"waypoints"`
}

func (s *Server) handleGoTo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var payload GoToRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if payload.WaypointIdx == nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "waypoint_idx is required")
		return
	}

	id := uuid.NewString()
	idx := *payload.WaypointIdx
	s.logger.Infow("GoTo request received", "request", id, "waypoint", idx)

	// The motion runs to completion even if the client goes away.
	res := s.ctrl.GoTo(context.WithoutCancel(req.Context()), idx)

	resp := GoToResponse{
		ID:          id,
		WaypointIdx: idx,
		Status:      string(res.Status),
		Reason:      string(res.Reason),
		Executed:    res.Outcome.Executed,
		Arrived:     res.Outcome.Arrived,
		Distance:    res.Outcome.Distance,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	s.logger.Infow("GoTo request finished", "request", id, "waypoint", idx,
		"status", resp.Status, "reason", resp.Reason)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWaypointCount(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": s.ctrl.WaypointCount()})
}

func (s *Server) handleWaypoints(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	set := s.ctrl.Waypoints()
	counts := set.Counts()
	writeJSON(w, http.StatusOK, WaypointsResponse{
		Count:     set.Len(),
		Corners:   counts.Corners,
		Grid:      counts.Grid,
		Sides:     counts.Sides,
		Waypoints: set.Poses(),
	})
}

func (s *Server) handleMode(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": s.ctrl.Mode().String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Mode:      s.ctrl.Mode().String(),
		StartedAt: s.startedAt,
		Now:       time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(req *http.Request, out any) error {
	if req.Body == nil {
		return errors.New("request body is required")
	}
	defer req.Body.Close()
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": apiError{
			Code:    strings.TrimSpace(code),
			Message: strings.TrimSpace(message),
		},
	})
}
