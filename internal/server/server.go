// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/copilot-engine/internal/assistant"
	"github.com/jeranaias/copilot-engine/internal/config"
	"github.com/jeranaias/copilot-engine/internal/model"
	"github.com/jeranaias/copilot-engine/internal/storage"
	"github.com/jeranaias/copilot-engine/internal/tasks"
)

// Version is the API version reported by /health.
const Version = "1.0.0"

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats tracks server usage statistics.
type ServerStats struct {
	TotalRequests int64     `json:"total_requests"`
	Messages      int64     `json:"messages"`
	RateLimited   int64     `json:"rate_limited"`
	StartTime     time.Time `json:"start_time"`
}

// NewServerStats creates a new ServerStats instance.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

// RecordRequest counts one handled request.
func (s *ServerStats) RecordRequest() { atomic.AddInt64(&s.TotalRequests, 1) }

// RecordMessage counts one accepted message.
func (s *ServerStats) RecordMessage() { atomic.AddInt64(&s.Messages, 1) }

// RecordRateLimited counts one rejected request.
func (s *ServerStats) RecordRateLimited() { atomic.AddInt64(&s.RateLimited, 1) }

// GetStats returns a copy of the current stats.
func (s *ServerStats) GetStats() ServerStats {
	return ServerStats{
		TotalRequests: atomic.LoadInt64(&s.TotalRequests),
		Messages:      atomic.LoadInt64(&s.Messages),
		RateLimited:   atomic.LoadInt64(&s.RateLimited),
		StartTime:     s.StartTime,
	}
}

// Uptime returns the server uptime duration.
func (s *ServerStats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes an assistant hub over HTTP.
type Server struct {
	hub     *assistant.Hub
	cfg     config.ServerConfig
	logger  *zap.Logger
	router  *http.ServeMux
	limiter *RateLimiter
	stats   *ServerStats
	handler http.Handler
	server  *http.Server
}

// New creates a server for hub.
func New(hub *assistant.Hub, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:     hub,
		cfg:     cfg,
		logger:  logger.Named("http"),
		router:  http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RatePerSec, cfg.Burst),
		stats:   NewServerStats(),
	}
	s.setupRoutes()
	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger, s.stats),
		SecurityHeadersMiddleware(),
		RateLimitMiddleware(s.limiter, s.logger, s.stats),
		BodyLimitMiddleware(cfg.MaxBodyBytes),
	)(s.router)
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Stats returns the server statistics.
func (s *Server) Stats() *ServerStats { return s.stats }

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)

	s.router.HandleFunc("GET /v1/surfaces", s.handleSurfaces)
	s.router.HandleFunc("GET /v1/surfaces/{surface}/conversations", s.handleListConversations)
	s.router.HandleFunc("POST /v1/surfaces/{surface}/conversations", s.handleCreateConversation)
	s.router.HandleFunc("GET /v1/surfaces/{surface}/conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("POST /v1/surfaces/{surface}/conversations/{id}/select", s.handleSelectConversation)
	s.router.HandleFunc("DELETE /v1/surfaces/{surface}/conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("POST /v1/surfaces/{surface}/conversations/{id}/messages", s.handlePostMessage)
}

// ============================================================================
// RESPONSE TYPES
// ============================================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Surfaces      int     `json:"surfaces"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// SurfaceInfo describes one assistant surface.
type SurfaceInfo struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Suggestions   []string `json:"suggestions"`
	Conversations int      `json:"conversations"`
	ActiveID      string   `json:"active_id"`
}

// ConversationList is returned by the list endpoint.
type ConversationList struct {
	Surface       string                   `json:"surface"`
	ActiveID      string                   `json:"active_id"`
	Conversations []model.ConversationMeta `json:"conversations"`
}

// ConversationView is a conversation plus its live state.
type ConversationView struct {
	*model.Conversation
	Pending     bool     `json:"pending"`
	Active      bool     `json:"active"`
	Suggestions []string `json:"suggestions"`
}

// MessageRequest is the body of POST .../messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse acknowledges an accepted message.
type MessageResponse struct {
	Turn    *model.Turn `json:"turn"`
	Pending bool        `json:"pending"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Server   ServerStats            `json:"server"`
	Surfaces map[string]tasks.Stats `json:"surfaces"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		Surfaces:      len(s.hub.Surfaces()),
		UptimeSeconds: s.stats.Uptime().Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Server:   s.stats.GetStats(),
		Surfaces: make(map[string]tasks.Stats),
	}
	for _, name := range s.hub.Surfaces() {
		if sf, err := s.hub.Surface(name); err == nil {
			resp.Surfaces[name] = sf.Controller.Scheduler().Stats()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSurfaces(w http.ResponseWriter, r *http.Request) {
	names := s.hub.Surfaces()
	out := make([]SurfaceInfo, 0, len(names))
	for _, name := range names {
		sf, err := s.hub.Surface(name)
		if err != nil {
			continue
		}
		out = append(out, SurfaceInfo{
			Name:          name,
			Title:         sf.Title(),
			Suggestions:   sf.Table.SuggestionList(),
			Conversations: sf.Store.Len(),
			ActiveID:      sf.Store.ActiveID(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	convs := sf.Store.Search(r.URL.Query().Get("q"))
	metas := make([]model.ConversationMeta, len(convs))
	for i, c := range convs {
		metas[i] = c.Meta()
	}
	writeJSON(w, http.StatusOK, ConversationList{
		Surface:       sf.Name,
		ActiveID:      sf.Store.ActiveID(),
		Conversations: metas,
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	conv := sf.Controller.NewConversation()
	writeJSON(w, http.StatusCreated, s.view(sf, conv))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	conv, err := sf.Store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(sf, conv))
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var conv *model.Conversation
	err := sf.Controller.Select(id)
	if err == nil {
		conv, err = sf.Store.Get(id)
	} else if errors.Is(err, storage.ErrConversationNotFound) {
		// Not in memory; bring it back from persistence if it exists there.
		conv, err = sf.Store.LoadIntoView(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) || errors.Is(err, storage.ErrNoPersister) || errors.Is(err, storage.ErrInvalidID) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("select failed", zap.String("surface", sf.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "select failed")
		return
	}
	writeJSON(w, http.StatusOK, s.view(sf, conv))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	switch err := sf.Controller.Delete(r.PathValue("id")); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrLastConversation):
		writeError(w, http.StatusConflict, "cannot delete the last conversation")
	default:
		writeError(w, http.StatusNotFound, "conversation not found")
	}
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surface(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := sf.Store.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request format")
		return
	}

	if sf.Controller.Closed() {
		writeError(w, http.StatusServiceUnavailable, "surface is closed")
		return
	}

	// Detach from the request so the reply outlives it.
	turn, accepted := sf.Controller.SubmitTo(context.WithoutCancel(r.Context()), id, req.Text)
	if !accepted {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.stats.RecordMessage()
	writeJSON(w, http.StatusAccepted, MessageResponse{
		Turn:    turn,
		Pending: sf.Controller.Pending(id),
	})
}

// surface resolves the {surface} path value, writing the error response
// when it cannot.
func (s *Server) surface(w http.ResponseWriter, r *http.Request) (*assistant.Surface, bool) {
	sf, err := s.hub.Surface(r.PathValue("surface"))
	switch {
	case err == nil:
		return sf, true
	case errors.Is(err, assistant.ErrHubClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		writeError(w, http.StatusNotFound, "unknown surface")
	}
	return nil, false
}

func (s *Server) view(sf *assistant.Surface, conv *model.Conversation) ConversationView {
	suggestions := sf.Controller.SuggestionsFor(conv.ID)
	if suggestions == nil {
		suggestions = []string{}
	}
	return ConversationView{
		Conversation: conv,
		Pending:      sf.Controller.Pending(conv.ID),
		Active:       sf.Store.ActiveID() == conv.ID,
		Suggestions:  suggestions,
	}
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("version", Version))

	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown gracefully stops the server. A later Serve returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the error envelope used by every endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Message: strings.TrimSpace(message),
		Code:    status,
	}})
}
