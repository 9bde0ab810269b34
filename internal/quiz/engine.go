// Package quiz builds multiple-choice quizzes from tagged flashcards.
package quiz

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/queue"
)

const (
	// DefaultOptions is the number of choices per question.
	DefaultOptions = 4
	// DefaultAdvanceDelay is how long a submitted answer stays on screen.
	DefaultAdvanceDelay = 1500 * time.Millisecond
	// Placeholder fills the choices when no other answer exists.
	Placeholder = "No answer"
)

var (
	ErrNoTags            = errors.New("select at least one tag")
	ErrAnswerLocked      = errors.New("answer already submitted")
	ErrNothingToRetry    = errors.New("no incorrect answers to retry")
	ErrInvalidTransition = errors.New("invalid quiz transition")
)

// Timer is a pending advance that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d on its own goroutine.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Question is one card with its shuffled answer choices.
type Question struct {
	Card         domain.Flashcard `json:"card"`
	Options      []string         `json:"options"`
	CorrectIndex int              `json:"correctIndex"`
}

// Engine generates quiz sessions. It is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	rng       *rand.Rand
	options   int
	delay     time.Duration
	afterFunc AfterFunc
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used for shuffling and sampling.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithOptions sets the number of choices per question. Values below 2 are
// ignored.
func WithOptions(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.options = n
		}
	}
}

// WithAdvanceDelay sets the pause between submitting and the next question.
func WithAdvanceDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithAfterFunc replaces time.AfterFunc for scheduling advances.
func WithAfterFunc(f AfterFunc) Option {
	return func(e *Engine) { e.afterFunc = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with 4 choices and a 1.5s advance delay unless
// configured otherwise.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		options:   DefaultOptions,
		delay:     DefaultAdvanceDelay,
		afterFunc: timeAfterFunc,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a quiz over the cards in pool carrying every one of tags.
// Distractors are drawn from the whole pool. When no card qualifies the
// session is already complete.
func (e *Engine) Start(pool []domain.Flashcard, tags []string) (*Session, error) {
	if len(tags) == 0 {
		return nil, ErrNoTags
	}
	eligible := queue.FilterByTags(pool, tags)
	e.logger.Debug("Starting quiz", "tags", tags, "eligible", len(eligible), "pool", len(pool))
	return e.newSession(eligible, clonePool(pool), tags, 0), nil
}

func (e *Engine) newSession(cards, pool []domain.Flashcard, tags []string, depth int) *Session {
	s := &Session{
		engine:   e,
		pool:     pool,
		tags:     append([]string(nil), tags...),
		depth:    depth,
		selected: -1,
	}
	s.questions = e.Questions(cards, pool)
	if len(s.questions) == 0 {
		s.phase = Complete
	} else {
		s.phase = InProgress
	}
	return s
}

// Questions shuffles cards and builds one question per card.
func (e *Engine) Questions(cards, pool []domain.Flashcard) []Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	order := make([]domain.Flashcard, len(cards))
	copy(order, cards)
	e.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	questions := make([]Question, len(order))
	for i, c := range order {
		questions[i] = e.question(c, pool)
	}
	return questions
}

// NewQuestion builds the choices for a single card.
func (e *Engine) NewQuestion(card domain.Flashcard, pool []domain.Flashcard) Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.question(card, pool)
}

func (e *Engine) question(card domain.Flashcard, pool []domain.Flashcard) Question {
	candidates := distractorCandidates(card, pool)
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	want := e.options - 1
	distractors := make([]string, 0, e.options)
	distractors = append(distractors, candidates[:min(want, len(candidates))]...)
	for len(distractors) < want {
		if len(candidates) == 0 {
			distractors = append(distractors, Placeholder)
			continue
		}
		distractors = append(distractors, candidates[e.rng.IntN(len(candidates))])
	}

	correct := e.rng.IntN(e.options)
	options := make([]string, 0, e.options)
	options = append(options, distractors[:correct]...)
	options = append(options, card.Back)
	options = append(options, distractors[correct:]...)
	return Question{Card: card.Clone(), Options: options, CorrectIndex: correct}
}

// distractorCandidates returns the distinct backs of the other cards in pool
// that differ from card's back once trimmed.
func distractorCandidates(card domain.Flashcard, pool []domain.Flashcard) []string {
	answer := strings.TrimSpace(card.Back)
	seen := make(map[string]bool)
	var out []string
	for _, other := range pool {
		if other.ID == card.ID {
			continue
		}
		text := strings.TrimSpace(other.Back)
		if text == answer || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, other.Back)
	}
	return out
}

func clonePool(pool []domain.Flashcard) []domain.Flashcard {
	out := make([]domain.Flashcard, len(pool))
	for i, c := range pool {
		out[i] = c.Clone()
	}
	return out
}
