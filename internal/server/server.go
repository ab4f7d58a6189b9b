// Package server exposes the support engine over HTTP: chat turns as plain
// JSON request/response, progress events as a server-sent event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gridassist/server/internal/core/errx"
	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/services"
	logx "github.com/gridassist/server/pkg/logger"
)

// TurnRunner is the engine surface the transport needs.
type TurnRunner interface {
	Run(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
	RunPublic(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
	RunTelemetry(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
}

// Server wires the engine and the event bus behind an http.Server.
type Server struct {
	engine TurnRunner
	bus    *services.Bus
	http   *http.Server
}

type Config struct {
	Addr   string
	Engine TurnRunner
	Bus    *services.Bus
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is nil")
	}
	if cfg.Bus == nil {
		return nil, errors.New("event bus is nil")
	}

	s := &Server{engine: cfg.Engine, bus: cfg.Bus}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/public/chat", s.handlePublicChat)
	mux.HandleFunc("POST /api/telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /api/conversations/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	logx.Info().Str("addr", s.http.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	WorkflowID     string `json:"workflow_id,omitempty"`
}

type chatResponse struct {
	Response       string `json:"response"`
	Agent          string `json:"agent"`
	ConversationID string `json:"conversation_id"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	return &req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Run(r.Context(), model.TurnInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		UserID:         req.UserID,
		WorkflowID:     req.WorkflowID,
	})
	if err != nil {
		s.writeTurnError(w, req.ConversationID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:       res.Response,
		Agent:          res.AgentName,
		ConversationID: req.ConversationID,
	})
}

func (s *Server) handlePublicChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	res, err := s.engine.RunPublic(r.Context(), model.TurnInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		s.writeTurnError(w, req.ConversationID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:       res.Response,
		Agent:          res.AgentName,
		ConversationID: req.ConversationID,
	})
}

type telemetryRequest struct {
	Payload        json.RawMessage `json:"payload"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	res, err := s.engine.RunTelemetry(r.Context(), model.TurnInput{
		ConversationID: req.ConversationID,
		Message:        string(req.Payload),
		UserID:         req.UserID,
	})
	if err != nil {
		s.writeTurnError(w, req.ConversationID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:       res.Response,
		Agent:          res.AgentName,
		ConversationID: res.State.ConversationID,
	})
}

// handleEvents streams progress events for one conversation as SSE until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.bus.Subscribe(conversationID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logx.Error().Err(err).Msg("failed to marshal event")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeTurnError(w http.ResponseWriter, conversationID string, err error) {
	logx.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed")

	status := http.StatusInternalServerError
	msg := "internal error"
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		status = appErr.Status
		msg = appErr.Message
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
