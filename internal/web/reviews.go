package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/queue"
	"github.com/conorfennell/cuecard/internal/review"
	"github.com/conorfennell/cuecard/internal/srs"
)

type cardView struct {
	ID         string    `json:"id"`
	Front      string    `json:"front"`
	Back       string    `json:"back,omitempty"`
	Tags       []string  `json:"tags"`
	Interval   int       `json:"interval"`
	NextReview time.Time `json:"nextReview"`
}

type reviewView struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Position  int       `json:"position"`
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	Reviewed  int       `json:"reviewed"`
	Card      *cardView `json:"card,omitempty"`
}

func newReviewView(id string, sess *review.Session) reviewView {
	v := reviewView{
		ID:        id,
		State:     sess.State().String(),
		Position:  sess.Position(),
		Total:     sess.Len(),
		Remaining: sess.Remaining(),
		Reviewed:  len(sess.Reviewed()),
	}
	if c, ok := sess.Current(); ok {
		cv := cardView{ID: c.ID, Front: c.Front, Tags: c.Tags, Interval: c.Interval, NextReview: c.NextReview}
		if sess.State() == review.AnswerRevealed {
			cv.Back = c.Back
		}
		v.Card = &cv
	}
	return v
}

// ratingRequest accepts {"rating": "hard"} as well as {"rating": 2}.
type ratingRequest struct {
	Rating json.RawMessage `json:"rating"`
}

func (req ratingRequest) parse() (srs.Rating, error) {
	raw := bytes.TrimSpace(req.Rating)
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: rating is required", domain.ErrInvalidInput)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		r, err := srs.ParseRating(name)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		return r, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: rating must be a name or a number", domain.ErrInvalidInput)
	}
	return srs.Rating(n), nil
}

func (s *Server) reviewSession(id string) (*review.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review session %s: %w", id, domain.ErrNotFound)
	}
	e.seen = s.now()
	return e.sess, nil
}

// handleGetDue lists the cards due now.
func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := queue.Load(r.Context(), s.store, s.now())
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, due)
	}
}

// handleGetDeck reports how many cards are due.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := queue.Load(r.Context(), s.store, s.now())
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"dueCount":    len(due),
			"hasDueCards": len(due) > 0,
		})
	}
}

// handleStartReview starts a session over the cards due now.
func (s *Server) handleStartReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := queue.Load(r.Context(), s.store, s.now())
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		sess := review.NewSession(s.store, due,
			review.WithClock(s.now),
			review.WithParams(s.params),
			review.WithLogger(s.logger),
		)
		id := s.newID()
		s.mu.Lock()
		s.sweepLocked()
		s.reviews[id] = &reviewEntry{sess: sess, seen: s.now()}
		s.mu.Unlock()
		s.logger.Info("Review session started", "session", id, "cards", len(due))
		writeJSON(w, http.StatusCreated, newReviewView(id, sess))
	}
}

func (s *Server) handleGetReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.reviewSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newReviewView(id, sess))
	}
}

// handleShowAnswer reveals the back of the current card.
func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.reviewSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if err := sess.ShowAnswer(); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newReviewView(id, sess))
	}
}

// handleRate rates the current card and moves on.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.reviewSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		var req ratingRequest
		if err := decode(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		rating, err := req.parse()
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if _, err := sess.Rate(r.Context(), rating); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newReviewView(id, sess))
	}
}

// handleAbandonReview drops a session. Cards already rated stay saved.
func (s *Server) handleAbandonReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.mu.Lock()
		_, ok := s.reviews[id]
		delete(s.reviews, id)
		s.mu.Unlock()
		if !ok {
			s.respondWithError(w, r, fmt.Errorf("review session %s: %w", id, domain.ErrNotFound))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
