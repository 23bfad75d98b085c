package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/overrides"
	"github.com/aretw0/pipeprobe/pkg/protocol"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

// Probe defines the operations served over HTTP.
type Probe interface {
	Load(path string) (*topology.Document, error)
	Extract(doc *topology.Document) []topology.Entry
	BuildRequest(doc *topology.Document, address string, values map[string]string) (domain.RunRequest, error)
	Run(ctx context.Context, sessionID string, req domain.RunRequest, onEvent func(domain.Event)) (string, error)
	Cancel(sessionID string) bool
	PersistOverrides(ctx context.Context, sessionID string, doc *topology.Document, address string, values map[string]string) ([]overrides.Edit, error)
}

// Server serves the probe API.
type Server struct {
	Probe   Probe
	Streams *StreamManager
	Logger  *slog.Logger
}

// Option configures the handler.
type Option func(*handlerConfig)

type handlerConfig struct {
	metrics http.Handler
	logger  *slog.Logger
}

// WithMetrics mounts a metrics handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(c *handlerConfig) { c.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *handlerConfig) { c.logger = logger }
}

// NewHandler creates a new HTTP handler for the probe.
func NewHandler(probe Probe, opts ...Option) http.Handler {
	cfg := handlerConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	server := &Server{
		Probe:   probe,
		Streams: NewStreamManager(cfg.logger),
		Logger:  cfg.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Post("/extract", server.Extract)
	r.Post("/diff", server.Diff)
	r.Get("/events", server.SubscribeEvents)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/runs", server.StartRun)
		r.Delete("/runs", server.CancelRun)
		r.Put("/overrides", server.PersistOverrides)
	})
	if cfg.metrics != nil {
		r.Handle("/metrics", cfg.metrics)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// DatasetRequest addresses a dataset in a configuration file.
type DatasetRequest struct {
	Path      string            `json:"path"`
	Dataset   string            `json:"dataset"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// DiffRequest carries two snapshots to compare.
type DiffRequest struct {
	Before *domain.EntrySnapshot `json:"before"`
	After  *domain.EntrySnapshot `json:"after"`
}

// DiffResponse is the result of a snapshot comparison.
type DiffResponse struct {
	Fields  []domain.FieldDiff `json:"fields"`
	Summary domain.DiffSummary `json:"summary"`
}

// RunResponse identifies a run and, when waited for, its events.
type RunResponse struct {
	RunID  string            `json:"runId,omitempty"`
	Events []json.RawMessage `json:"events,omitempty"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.Logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "pipeprobe-http",
		"version": pipeprobe.Version,
	}, s.Logger)
}

// Extract handles the POST /extract request.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	var body DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("Extract: Invalid request body", "err", err)
		return
	}

	doc, err := s.Probe.Load(body.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusUnprocessableEntity)
		return
	}

	nodes := make([]*domain.DatasetNode, 0)
	for _, e := range s.Probe.Extract(doc) {
		nodes = append(nodes, e.Node)
	}
	writeJSON(w, http.StatusOK, nodes, s.Logger)
}

// Diff handles the POST /diff request.
func (s *Server) Diff(w http.ResponseWriter, r *http.Request) {
	var body DiffRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("Diff: Invalid request body", "err", err)
		return
	}

	fields := domain.DiffEntries(body.Before, body.After)
	writeJSON(w, http.StatusOK, DiffResponse{Fields: fields, Summary: domain.Summarize(fields)}, s.Logger)
}

// StartRun handles the POST /sessions/{sessionID}/runs request.
// With ?wait=true the response carries every event of the run; otherwise the
// run proceeds in the background and its events are broadcast to /events.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" || body.Dataset == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("StartRun: Invalid request body", "err", err)
		return
	}

	doc, err := s.Probe.Load(body.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusUnprocessableEntity)
		return
	}
	req, err := s.Probe.BuildRequest(doc, body.Dataset, body.Overrides)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		var events []json.RawMessage
		runID, err := s.Probe.Run(r.Context(), sessionID, req, func(ev domain.Event) {
			if data, ok := s.publish(sessionID, ev); ok {
				events = append(events, data)
			}
		})
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, RunResponse{RunID: runID, Events: events}, s.Logger)
		return
	}

	// The session rejects overlapping runs before any event is emitted, so
	// the outcome of the claim is known once the first event or error arrives.
	started := make(chan error, 1)
	var once sync.Once
	go func() {
		_, err := s.Probe.Run(context.WithoutCancel(r.Context()), sessionID, req, func(ev domain.Event) {
			once.Do(func() { started <- nil })
			s.publish(sessionID, ev)
		})
		once.Do(func() { started <- err })
		if err != nil && !errors.Is(err, domain.ErrRunInProgress) {
			s.Logger.Error("StartRun: run failed", "session_id", sessionID, "err", err)
		}
	}()

	select {
	case err := <-started:
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusAccepted, RunResponse{}, s.Logger)
}

// CancelRun handles the DELETE /sessions/{sessionID}/runs request.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	if !s.Probe.Cancel(chi.URLParam(r, "sessionID")) {
		http.Error(w, "No run in progress", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PersistOverrides handles the PUT /sessions/{sessionID}/overrides request.
func (s *Server) PersistOverrides(w http.ResponseWriter, r *http.Request) {
	var body DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" || body.Dataset == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := s.Probe.Load(body.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusUnprocessableEntity)
		return
	}
	edits, err := s.Probe.PersistOverrides(r.Context(), chi.URLParam(r, "sessionID"), doc, body.Dataset, body.Overrides)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, edits, s.Logger)
}

// publish broadcasts ev to the session's subscribers and returns its wire form.
func (s *Server) publish(sessionID string, ev domain.Event) (json.RawMessage, bool) {
	data, err := protocol.Marshal(ev)
	if err != nil {
		s.Logger.Error("Failed to encode probe event", "type", ev.Type(), "err", err)
		return nil, false
	}
	s.Streams.Broadcast(sessionID, string(data))
	return data, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotADataset),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, overrides.ErrNotEditable),
		errors.Is(err, overrides.ErrTokenMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDocumentChanged):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 64)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Subscribers returns the number of live subscriptions for the session.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// SubscribeEvents handles the GET /events?session_id=...&watch=... request (SSE).
// watch is an optional comma-separated list of event types to forward.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	watch := map[string]bool{}
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			watch[strings.TrimSpace(t)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.Logger.Info("SSE: Subscribing to Session Events", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			typ := eventType(msg)
			if len(watch) > 0 && !watch[typ] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, msg)
			flusher.Flush()
		}
	}
}

func eventType(msg string) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg), &head); err != nil {
		return "message"
	}
	return head.Type
}
