// Package httpapi implements the loopback-only HTTP surface (spec §6, §1
// Non-goals: "no surface is network-exposed"): read-only listing endpoints
// for goals, traces, approvals, jobs, and connectors, plus POST endpoints
// for goal submission and cancel, approval decisions, and job control.
// Goal and approval writes go through internal/gateway.Gateway; the
// listing endpoints read the Store directly, and job run-now/pause/resume
// call the Scheduler.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/scheduler"
	"github.com/Djtony707/TITAN/internal/store"
)

// Server binds chi's router to a loopback address and serves the HTTP
// surface described above.
type Server struct {
	addr   string
	st     *store.Store
	gw     *gateway.Gateway
	sched  *scheduler.Scheduler
	router chi.Router
	srv    *http.Server
}

// New validates addr resolves to loopback and builds a Server. It returns
// apperr.Validation for any address whose host is not localhost or a
// loopback IP (127.0.0.0/8, ::1) — the HTTP surface is never permitted to bind a
// network-exposed address, independent of what a config file says.
func New(addr string, st *store.Store, gw *gateway.Gateway, sched *scheduler.Scheduler) (*Server, error) {
	if err := requireLoopback(addr); err != nil {
		return nil, err
	}
	s := &Server{addr: addr, st: st, gw: gw, sched: sched}
	s.router = s.buildRouter()
	return s, nil
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return apperr.Validation("http_addr_invalid", err)
	}
	if host == "" {
		// "" (e.g. ":8733") means "all interfaces" to net.Listen — exactly
		// the network-exposed bind the spec forbids.
		return apperr.Validation("http_addr_not_loopback", fmt.Errorf("%q binds all interfaces", addr))
	}
	ip := net.ParseIP(host)
	switch {
	case host == "localhost":
	case ip != nil && ip.IsLoopback():
	default:
		return apperr.Validation("http_addr_not_loopback", fmt.Errorf("%q is not a loopback address", addr))
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/goals", s.listGoals)
	r.Get("/goals/{id}", s.getGoal)
	r.Get("/goals/{id}/traces", s.listTraces)
	r.Post("/goals", s.submitGoal)
	r.Post("/goals/{id}/cancel", s.cancelGoal)

	r.Get("/approvals", s.listApprovals)
	r.Get("/approvals/{id}", s.getApproval)
	r.Post("/approvals/{id}/approve", s.decideApproval(store.DecisionApproved))
	r.Post("/approvals/{id}/deny", s.decideApproval(store.DecisionDenied))

	r.Get("/jobs", s.listJobs)
	r.Get("/jobs/{id}", s.getJob)
	r.Post("/jobs/{id}/run-now", s.jobRunNow)
	r.Post("/jobs/{id}/pause", s.jobPause)
	r.Post("/jobs/{id}/resume", s.jobResume)

	r.Get("/connectors", s.listConnectors)

	return r
}

// Start binds the loopback listener and serves until Stop is called, in
// its own goroutine (mirroring internal/scheduler.Scheduler.Start's
// fire-and-forget shape).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind http surface: %w", err)
	}
	s.srv = &http.Server{Handler: s.router}
	logging.For(logging.CategoryGateway).Sugar().Infof("http surface listening on %s", s.addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.For(logging.CategoryGateway).Sugar().Errorf("http surface stopped: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP surface down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps an apperr.Code to an HTTP status, mirroring
// apperr.ExitCode's CLI exit-code mapping (spec §7's propagation policy:
// "validation and policy errors propagate... with structured reasons").
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := err.Error()
	if e, ok := apperr.As(err); ok {
		reason = string(e.Code) + ": " + e.Reason
		switch e.Code {
		case apperr.CodeValidation:
			status = http.StatusBadRequest
		case apperr.CodePolicyDenied, apperr.CodeWorkspaceViolation, apperr.CodeSandboxViolation:
			status = http.StatusForbidden
		case apperr.CodeApprovalTimeout:
			status = http.StatusRequestTimeout
		case apperr.CodeNotImplemented:
			status = http.StatusNotImplemented
		}
	}
	writeJSON(w, status, map[string]string{"error": reason})
}
