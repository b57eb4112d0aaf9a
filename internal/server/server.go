// Package server exposes the agent-facing HTTP surface: the public command
// routes a desk UI calls, an SSE stream of the controller's event surface,
// and read access to the optional event journal. Responses carry capture
// status metadata only.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentdesk/paycapture/internal/controller"
	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
	"github.com/agentdesk/paycapture/internal/events"
)

const commandTimeout = 15 * time.Second

// CaptureController is the slice of the controller the HTTP surface needs.
type CaptureController interface {
	Attach(ctx context.Context, callID string) error
	StartCapture(ctx context.Context) error
	CancelCapture(ctx context.Context) error
	SubmitCapture(ctx context.Context) error
	ResetCard(ctx context.Context) error
	ResetSecurityCode(ctx context.Context) error
	ResetDate(ctx context.Context) error
	UpdateCallSID(ctx context.Context, callID string) error
	Detach(ctx context.Context) error

	State() controller.State
	CallID() string
	SessionID() string
	Snapshot() domain.ProgressSnapshot
	Remaining() []domain.FieldKind
}

// Server routes agent commands to the controller and streams its events.
type Server struct {
	ctrl    CaptureController
	broker  *events.Broker
	journal ports.EventJournal // nil when journaling is disabled
	logger  *slog.Logger
}

// New creates the agent HTTP surface. journal may be nil.
func New(ctrl CaptureController, broker *events.Broker, journal ports.EventJournal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ctrl: ctrl, broker: broker, journal: journal, logger: logger}
}

// Routes returns the agent API router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(commandTimeout))

		r.Post("/session/attach", s.handleAttach)
		r.Post("/session/call", s.handleUpdateCall)
		r.Post("/session/detach", s.command("detach", s.ctrl.Detach))

		r.Post("/capture/start", s.command("start-capture", s.ctrl.StartCapture))
		r.Post("/capture/cancel", s.command("cancel-capture", s.ctrl.CancelCapture))
		r.Post("/capture/submit", s.command("submit-capture", s.ctrl.SubmitCapture))
		r.Post("/capture/reset/{field}", s.handleReset)

		r.Get("/capture/status", s.handleStatus)
		r.Get("/calls/{callID}/events", s.handleJournal)
	})

	// Held open for the lifetime of the UI binding; no timeout.
	r.Get("/events", s.handleEvents)

	return r
}

type callRequest struct {
	CallID string `json:"call_id"`
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	AddLogField(r.Context(), "call_id", req.CallID)

	if err := s.ctrl.Attach(r.Context(), req.CallID); err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	s.writeStatus(w, http.StatusAccepted)
}

func (s *Server) handleUpdateCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	AddLogField(r.Context(), "call_id", req.CallID)

	if err := s.ctrl.UpdateCallSID(r.Context(), req.CallID); err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	s.writeStatus(w, http.StatusAccepted)
}

// command wraps the zero-argument controller commands.
func (s *Server) command(name string, run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "command", name)
		AddLogField(r.Context(), "session_id", s.ctrl.SessionID())

		if err := run(r.Context()); err != nil {
			s.writeCommandError(w, r, err)
			return
		}
		s.writeStatus(w, http.StatusAccepted)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var run func(context.Context) error
	switch field := chi.URLParam(r, "field"); field {
	case "card":
		run = s.ctrl.ResetCard
	case "security-code":
		run = s.ctrl.ResetSecurityCode
	case "date":
		run = s.ctrl.ResetDate
	default:
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("unknown reset target %q", field))
		return
	}
	s.command("reset-"+chi.URLParam(r, "field"), run)(w, r)
}

type statusResponse struct {
	State     controller.State        `json:"state"`
	CallID    string                  `json:"call_id,omitempty"`
	SessionID string                  `json:"session_id,omitempty"`
	Remaining []domain.FieldKind      `json:"remaining"`
	Snapshot  domain.ProgressSnapshot `json:"snapshot"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:     s.ctrl.State(),
		CallID:    s.ctrl.CallID(),
		SessionID: s.ctrl.SessionID(),
		Remaining: s.ctrl.Remaining(),
		Snapshot:  s.ctrl.Snapshot(),
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("event journal not configured"))
		return
	}
	list, err := s.journal.ListByCall(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

// handleEvents streams the controller's event surface as SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.broker.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	var cmdErr *domain.RemoteCommandError
	var subErr *domain.ChannelSubscriptionError
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		s.writeError(w, r, http.StatusConflict, err)
	case errors.As(err, &cmdErr), errors.As(err, &subErr):
		s.writeError(w, r, http.StatusBadGateway, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeStatus(w http.ResponseWriter, status int) {
	writeJSON(w, status, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
