package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/store"
)

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.st.ListGoals(r.Context(), 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.st.GetGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := s.st.ListTraces(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

type submitGoalRequest struct {
	Description   string `json:"description"`
	ChannelTarget string `json:"channel_target"`
	ActorID       string `json:"actor_id"`
	DedupeKey     string `json:"dedupe_key"`
}

func (s *Server) submitGoal(w http.ResponseWriter, r *http.Request) {
	var req submitGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.Validation("malformed_request_body", err))
		return
	}
	res, err := s.gw.Dispatch(r.Context(), gateway.Event{
		Origin:        gateway.OriginHTTP,
		ChannelTarget: req.ChannelTarget,
		ActorID:       req.ActorID,
		Kind:          gateway.PayloadGoalSubmission,
		Payload:       gateway.GoalSubmission{Description: req.Description, DedupeKey: req.DedupeKey},
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) cancelGoal(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.Dispatch(r.Context(), gateway.Event{
		Origin: gateway.OriginHTTP,
		Kind:   gateway.PayloadCancel,
		Payload: gateway.Cancel{
			GoalID: chi.URLParam(r, "id"),
		},
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.st.ListApprovals(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvals)
}

func (s *Server) getApproval(w http.ResponseWriter, r *http.Request) {
	a, err := s.st.GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type approvalDecisionRequest struct {
	Resolver string `json:"resolver"`
	Reason   string `json:"reason"`
}

// decideApproval returns a handler bound to a fixed Decision (approve or
// deny), so the two routes only differ in which store.Decision they drive
// through the Gateway.
func (s *Server) decideApproval(decision store.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approvalDecisionRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeErr(w, apperr.Validation("malformed_request_body", err))
				return
			}
		}
		res, err := s.gw.Dispatch(r.Context(), gateway.Event{
			Origin:  gateway.OriginHTTP,
			ActorID: req.Resolver,
			Kind:    gateway.PayloadApprovalDecision,
			Payload: gateway.ApprovalDecision{
				ApprovalID: chi.URLParam(r, "id"),
				Decision:   decision,
				Reason:     req.Reason,
				Resolver:   req.Resolver,
			},
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		if !res.Claimed {
			writeErr(w, apperr.Validation("approval_already_resolved", nil))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.st.ListJobs(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.st.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// jobRunNow, jobPause, and jobResume call the Scheduler directly rather than
// going through the Gateway: run-now/pause/resume are job-control operations
// on the Scheduler's own state (its concurrency semaphore, its enabled
// flag), not inbound goal/approval/cancel events (spec §4.9).
func (s *Server) jobRunNow(w http.ResponseWriter, r *http.Request) {
	goalID, err := s.sched.RunNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"goal_id": goalID})
}

func (s *Server) jobPause(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jobResume(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConnectors(w http.ResponseWriter, r *http.Request) {
	connectors, err := s.st.ListConnectors(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectors)
}
