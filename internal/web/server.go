// Package web serves the JSON HTTP API over reviews, quizzes and the
// collection.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/ingest"
	"github.com/conorfennell/cuecard/internal/quiz"
	"github.com/conorfennell/cuecard/internal/review"
	"github.com/conorfennell/cuecard/internal/srs"
	"github.com/conorfennell/cuecard/internal/storage"
)

// DefaultSessionTTL is how long a review or quiz is kept after its last
// request.
const DefaultSessionTTL = time.Hour

// SourceStore manages note sources for the sync routes.
type SourceStore interface {
	ingest.SourceStore
	AddSource(ctx context.Context, path string) (int64, error)
	DeleteSource(ctx context.Context, id int64) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	store    storage.Store
	sources  SourceStore
	reposDir string
	router   *http.ServeMux
	params   *srs.Params
	quiz     *quiz.Engine
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	ttl      time.Duration

	mu      sync.Mutex
	reviews map[string]*reviewEntry
	quizzes map[string]*quizEntry
}

type reviewEntry struct {
	sess *review.Session
	seen time.Time
}

type quizEntry struct {
	sess *quiz.Session
	seen time.Time
}

// Option configures a Server.
type Option func(*Server)

func WithParams(p *srs.Params) Option {
	return func(s *Server) { s.params = p }
}

func WithQuizEngine(e *quiz.Engine) Option {
	return func(s *Server) { s.quiz = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSessionTTL sets how long idle sessions are kept. Zero keeps them
// until they are deleted.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithSources enables the source management and sync routes.
func WithSources(db SourceStore, reposDir string) Option {
	return func(s *Server) {
		s.sources = db
		s.reposDir = reposDir
	}
}

// NewServer creates and configures a new server.
func NewServer(store storage.Store, opts ...Option) *Server {
	s := &Server{
		store:   store,
		router:  http.NewServeMux(),
		params:  srs.DefaultParams(),
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
		ttl:     DefaultSessionTTL,
		reviews: make(map[string]*reviewEntry),
		quizzes: make(map[string]*quizEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.quiz == nil {
		s.quiz = quiz.NewEngine(quiz.WithLogger(s.logger))
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/flashcards/due", s.handleGetDue())
	s.router.HandleFunc("GET /api/deck", s.handleGetDeck())
	s.router.HandleFunc("GET /api/tags", s.handleGetTags())
	s.router.HandleFunc("GET /api/search", s.handleSearch())

	s.router.HandleFunc("POST /api/reviews", s.handleStartReview())
	s.router.HandleFunc("GET /api/reviews/{id}", s.handleGetReview())
	s.router.HandleFunc("POST /api/reviews/{id}/answer", s.handleShowAnswer())
	s.router.HandleFunc("POST /api/reviews/{id}/rate", s.handleRate())
	s.router.HandleFunc("DELETE /api/reviews/{id}", s.handleAbandonReview())

	s.router.HandleFunc("POST /api/quizzes", s.handleStartQuiz())
	s.router.HandleFunc("GET /api/quizzes/{id}", s.handleGetQuiz())
	s.router.HandleFunc("POST /api/quizzes/{id}/select", s.handleSelect())
	s.router.HandleFunc("POST /api/quizzes/{id}/submit", s.handleSubmit())
	s.router.HandleFunc("POST /api/quizzes/{id}/retry", s.handleRetry())
	s.router.HandleFunc("DELETE /api/quizzes/{id}", s.handleAbortQuiz())

	s.router.HandleFunc("GET /api/export", s.handleExport())
	s.router.HandleFunc("POST /api/import", s.handleImport())
	s.router.HandleFunc("POST /api/index/auto", s.handleAutoIndex())

	if s.sources != nil {
		s.router.HandleFunc("GET /api/sources", s.handleGetSources())
		s.router.HandleFunc("POST /api/sources", s.handlePostSource())
		s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
		s.router.HandleFunc("POST /api/sync", s.handlePostSync())
	}
}

// sweepLocked drops sessions idle for longer than the TTL. Running quizzes
// are aborted so their pending advance is cancelled. s.mu must be held.
func (s *Server) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, e := range s.reviews {
		if e.seen.Before(cutoff) {
			delete(s.reviews, id)
			s.logger.Debug("Expired review session", "session", id)
		}
	}
	for id, e := range s.quizzes {
		if e.seen.Before(cutoff) {
			if e.sess.Phase() == quiz.InProgress {
				_ = e.sess.Abort()
			}
			delete(s.quizzes, id)
			s.logger.Debug("Expired quiz", "quiz", id)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// statusFor maps an error onto the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, quiz.ErrNoTags):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrInvalidTransition),
		errors.Is(err, quiz.ErrInvalidTransition),
		errors.Is(err, quiz.ErrAnswerLocked),
		errors.Is(err, quiz.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "Internal Server Error"
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %w", domain.ErrInvalidInput, err)
	}
	return nil
}
