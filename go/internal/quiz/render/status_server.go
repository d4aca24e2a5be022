package render

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

// StatsSource provides transport counters for /stats
type StatsSource interface {
	Snapshot() transport.MetricsSnapshot
}

// StatusServer keeps the latest session output and serves it over HTTP
type StatusServer struct {
	mu        sync.RWMutex
	snapshot  *session.Snapshot
	status    transport.Status
	lastError *session.OperationError
	updatedAt time.Time

	stats  StatsSource
	server *http.Server
}

// SessionResponse is the body of GET /session
type SessionResponse struct {
	Session   *session.Snapshot       `json:"session"`
	Status    transport.Status        `json:"status"`
	LastError *session.OperationError `json:"last_error,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// NewStatusServer creates a status server listening on addr. stats may be nil.
func NewStatusServer(addr string, stats StatsSource) *StatusServer {
	s := &StatusServer{
		status: transport.StatusClosed,
		stats:  stats,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the CORS and h2c wrapped mux
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is not an error.
func (s *StatusServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("status server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) Render(snapshot session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
	s.status = snapshot.Status
	s.updatedAt = time.Now()
}

func (s *StatusServer) Status(status transport.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.updatedAt = time.Now()
}

func (s *StatusServer) OperationError(err session.OperationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = &err
	s.updatedAt = time.Now()
}

func (s *StatusServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	resp := SessionResponse{
		Session:   s.snapshot,
		Status:    s.status,
		LastError: s.lastError,
		UpdatedAt: s.updatedAt,
	}
	s.mu.RUnlock()

	writeJSON(w, resp)
}

func (s *StatusServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, s.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
