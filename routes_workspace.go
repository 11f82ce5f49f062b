package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"agent-workspace/plan"
	"agent-workspace/workspace"
)

const (
	planningTimeout = 75 * time.Second
	maxRequestBytes = 1 << 20
)

type createPlanRequest struct {
	Input string `json:"input"`
}

type createPlanResponse struct {
	Plan    *plan.Plan   `json:"plan"`
	Message plan.Message `json:"message"`
}

type executeResponse struct {
	Messages []plan.Message `json:"messages"`
	Plan     *plan.Plan     `json:"plan"`
}

type confirmResponse struct {
	Confirmed bool `json:"confirmed"`
	workspace.Snapshot
}

type workspaceHandler struct {
	sessions *workspace.Manager
}

func registerWorkspaceRoutes(r *mux.Router, sessions *workspace.Manager) {
	h := &workspaceHandler{sessions: sessions}
	r.HandleFunc("/sessions/{session}", h.handleSnapshot).Methods("GET")
	r.HandleFunc("/sessions/{session}/plans", h.handleCreatePlan).Methods("POST")
	r.HandleFunc("/sessions/{session}/plans/confirm", h.handleConfirmPlan).Methods("POST")
	r.HandleFunc("/sessions/{session}/plans/execute", h.handleExecutePlan).Methods("POST")
	r.HandleFunc("/sessions/{session}/agents/reset", h.handleResetAgents).Methods("POST")
}

func (h *workspaceHandler) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := h.sessions.Get(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return ws, true
}

func (h *workspaceHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ws, err := h.sessions.Lookup(r.Context(), mux.Vars(r)["session"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func (h *workspaceHandler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req createPlanRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), planningTimeout)
	defer cancel()

	p, msg, err := ws.CreatePlan(ctx, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createPlanResponse{Plan: p, Message: msg})
}

func (h *workspaceHandler) handleConfirmPlan(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	confirmed, err := ws.ConfirmPlan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Confirmed: confirmed, Snapshot: ws.Snapshot()})
}

func (h *workspaceHandler) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	// A started run finishes even if the caller goes away.
	msgs, err := ws.ExecutePlan(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Messages: msgs, Plan: ws.Snapshot().CurrentPlan})
}

func (h *workspaceHandler) handleResetAgents(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.ResetAllAgents(r.Context())
	writeJSON(w, http.StatusOK, ws.Snapshot())
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrSessionRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "workspace busy: "+err.Error(), http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("workspace request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
