package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/srs"
)

// ErrInvalidTransition is returned when an action does not apply to the
// session's current state.
var ErrInvalidTransition = errors.New("invalid review transition")

// State is the phase of a review session.
type State int

const (
	// Presenting shows the front of the current card.
	Presenting State = iota
	// AnswerRevealed shows the back and waits for a rating.
	AnswerRevealed
	// Complete means every card in the queue has been rated.
	Complete
)

func (s State) String() string {
	switch s {
	case Presenting:
		return "presenting"
	case AnswerRevealed:
		return "answer_revealed"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Choice is the two-button rating offered by the review screen.
type Choice int

const (
	ChoiceHard Choice = iota
	ChoiceEasy
)

// Rating maps the choice onto the scheduler's scale.
func (c Choice) Rating() srs.Rating {
	if c == ChoiceEasy {
		return srs.Easy
	}
	return srs.Hard
}

// Session walks once through a fixed queue of cards. Abandoning a session
// needs no call: unrated cards keep their existing schedule.
type Session struct {
	mu       sync.Mutex
	store    Updater
	params   *srs.Params
	now      func() time.Time
	logger   *slog.Logger
	queue    []domain.Flashcard
	pos      int
	state    State
	reviewed []string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock sets the time source used for ratings.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithParams overrides the scheduler parameters.
func WithParams(p *srs.Params) SessionOption {
	return func(s *Session) { s.params = p }
}

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession starts a session over a copy of queue. Later changes to the
// store are not observed by the session.
func NewSession(store Updater, queue []domain.Flashcard, opts ...SessionOption) *Session {
	s := &Session{
		store:  store,
		params: srs.DefaultParams(),
		now:    time.Now,
		logger: slog.Default(),
		queue:  make([]domain.Flashcard, len(queue)),
		state:  Presenting,
	}
	for i, c := range queue {
		s.queue[i] = c.Clone()
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.queue) == 0 {
		s.state = Complete
	}
	return s
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the card being shown. ok is false once the session is
// complete.
func (s *Session) Current() (card domain.Flashcard, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Complete {
		return domain.Flashcard{}, false
	}
	return s.queue[s.pos].Clone(), true
}

// Position is the zero-based index of the current card.
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Len is the number of cards in the session.
func (s *Session) Len() int {
	return len(s.queue)
}

// Remaining counts the cards not yet rated.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) - s.pos
}

// Reviewed returns the ids of the rated cards, in rating order.
func (s *Session) Reviewed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.reviewed))
	copy(out, s.reviewed)
	return out
}

// ShowAnswer reveals the back of the current card.
func (s *Session) ShowAnswer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Presenting {
		return fmt.Errorf("%w: show answer while %s", ErrInvalidTransition, s.state)
	}
	s.state = AnswerRevealed
	return nil
}

// Rate schedules the current card, persists it and moves to the next one.
// If the write fails the session stays on the same card with the answer
// revealed, so the rating can be retried.
func (s *Session) Rate(ctx context.Context, rating srs.Rating) (*domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AnswerRevealed {
		return nil, fmt.Errorf("%w: rate while %s", ErrInvalidTransition, s.state)
	}

	card := s.queue[s.pos]
	updated, err := Rate(ctx, s.store, s.params, card, rating, s.now())
	if err != nil {
		s.logger.Error("Failed to rate card", "card_id", card.ID, "rating", rating.String(), "error", err)
		return nil, err
	}
	s.logger.Debug("Card rated",
		"card_id", card.ID,
		"rating", rating.String(),
		"interval", updated.Interval,
		"next_review", updated.NextReview,
	)

	s.reviewed = append(s.reviewed, card.ID)
	s.pos++
	if s.pos == len(s.queue) {
		s.state = Complete
		s.logger.Info("Review session complete", "reviewed", len(s.reviewed))
	} else {
		s.state = Presenting
	}
	return updated, nil
}

// RateChoice rates the current card with the Hard/Easy choice.
func (s *Session) RateChoice(ctx context.Context, c Choice) (*domain.Flashcard, error) {
	return s.Rate(ctx, c.Rating())
}
