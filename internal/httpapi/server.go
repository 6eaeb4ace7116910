// Package httpapi exposes the inbox over HTTP: thread and message CRUD,
// approval resolution, and the websocket event stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flowentxo/agentinbox/internal/approvals"
	"github.com/flowentxo/agentinbox/internal/dispatch"
	"github.com/flowentxo/agentinbox/internal/notify"
	"github.com/flowentxo/agentinbox/internal/store"
	"github.com/flowentxo/agentinbox/pkg/models"
)

// Server wires the HTTP routes to the orchestration core.
type Server struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	approvals  *approvals.Machine
	hub        *notify.Hub
	logger     *slog.Logger
}

// NewServer creates the API server. hub may be nil to disable /ws.
func NewServer(st store.Store, d *dispatch.Dispatcher, machine *approvals.Machine, hub *notify.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, dispatcher: d, approvals: machine, hub: hub, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/threads", s.handleListThreads)
	mux.HandleFunc("GET /api/threads/{id}", s.handleGetThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/threads/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /api/approvals/{id}/resolve", s.handleResolveApproval)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	return mux
}

type createThreadRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	thread := &models.Thread{
		UserID: req.UserID,
		State:  models.ActiveState(),
	}
	if err := s.store.CreateThread(r.Context(), thread); err != nil {
		s.internalError(w, "create thread", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context(), store.ListOptions{
		UserID: r.URL.Query().Get("user_id"),
	})
	if err != nil {
		s.internalError(w, "list threads", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"threads": threads, "total": len(threads)})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.store.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			s.writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		s.internalError(w, "get thread", err)
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.GetHistory(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		if errors.Is(err, store.ErrThreadNotFound) {
			s.writeError(w, http.StatusNotFound, "thread not found")
			return
		}
		s.internalError(w, "get messages", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "total": len(messages)})
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	msg, err := s.dispatcher.PostUserMessage(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrThreadNotFound):
			s.writeError(w, http.StatusNotFound, "thread not found")
		case errors.Is(err, dispatch.ErrThreadSuspended):
			s.writeError(w, http.StatusConflict, "thread is suspended pending approval")
		case errors.Is(err, dispatch.ErrThreadArchived):
			s.writeError(w, http.StatusConflict, "thread is archived")
		case errors.Is(err, dispatch.ErrTurnInFlight):
			s.writeError(w, http.StatusConflict, "a response is already in progress")
		case errors.Is(err, dispatch.ErrQueueFull):
			s.writeError(w, http.StatusServiceUnavailable, "server is busy, try again shortly")
		default:
			s.internalError(w, "post message", err)
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, msg)
}

type resolveApprovalRequest struct {
	Approve    bool   `json:"approve"`
	ResolverID string `json:"resolver_id"`
	Comment    string `json:"comment,omitempty"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	var req resolveApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResolverID == "" {
		s.writeError(w, http.StatusBadRequest, "resolver_id is required")
		return
	}

	approval, err := s.approvals.Resolve(r.Context(), r.PathValue("id"), req.Approve, req.ResolverID, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrApprovalNotFound):
			s.writeError(w, http.StatusNotFound, "approval not found")
		case errors.Is(err, approvals.ErrNotPending):
			s.writeError(w, http.StatusConflict, "approval is not pending")
		default:
			s.internalError(w, "resolve approval", err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, approval)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, stage string, err error) {
	s.logger.Error("request failed", "stage", stage, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
