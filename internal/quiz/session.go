package quiz

import (
	"fmt"
	"math"
	"sync"

	"github.com/conorfennell/cuecard/internal/domain"
)

// Phase is the stage a quiz session is in.
type Phase int

const (
	Setup Phase = iota
	InProgress
	Complete
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "setup"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// AnswerRecord is the outcome of one submitted question.
type AnswerRecord struct {
	FlashcardID   string  `json:"flashcardId"`
	Prompt        string  `json:"prompt"`
	CorrectAnswer string  `json:"correctAnswer"`
	UserAnswer    *string `json:"userAnswer"`
	Correct       bool    `json:"correct"`
}

// Summary is the score of a session. Accuracy is a rounded percentage.
type Summary struct {
	Correct        int            `json:"correct"`
	Answered       int            `json:"answered"`
	Accuracy       int            `json:"accuracy"`
	IncorrectByTag map[string]int `json:"incorrectByTag"`
}

// Session is one pass through a fixed list of questions. Methods are safe
// for concurrent use; the advance to the next question runs on a timer.
type Session struct {
	engine    *Engine
	pool      []domain.Flashcard
	tags      []string
	depth     int
	questions []Question

	mu       sync.Mutex
	phase    Phase
	index    int
	selected int
	locked   bool
	records  []AnswerRecord
	timer    Timer
	// gen invalidates advances scheduled before an abort.
	gen uint64
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Tags returns the tags the quiz was started with.
func (s *Session) Tags() []string {
	return append([]string(nil), s.tags...)
}

// Depth is 0 for a fresh quiz and grows by one with each retry.
func (s *Session) Depth() int {
	return s.depth
}

// Len is the number of questions.
func (s *Session) Len() int {
	return len(s.questions)
}

// Questions returns the questions in presentation order.
func (s *Session) Questions() []Question {
	out := make([]Question, len(s.questions))
	for i, q := range s.questions {
		q.Options = append([]string(nil), q.Options...)
		q.Card = q.Card.Clone()
		out[i] = q
	}
	return out
}

// Index is the position of the current question.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current returns the question on screen. ok is false outside InProgress.
func (s *Session) Current() (q Question, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress {
		return Question{}, false
	}
	q = s.questions[s.index]
	q.Options = append([]string(nil), q.Options...)
	q.Card = q.Card.Clone()
	return q, true
}

// Selected returns the chosen option of the current question, or -1.
func (s *Session) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Locked reports whether the current answer has been submitted and the
// session is waiting to advance.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Records returns the answers submitted so far.
func (s *Session) Records() []AnswerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AnswerRecord(nil), s.records...)
}

// Select marks option i. It can be changed freely until Submit.
func (s *Session) Select(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(i)
}

func (s *Session) selectLocked(i int) error {
	if s.phase != InProgress {
		return fmt.Errorf("%w: select while %s", ErrInvalidTransition, s.phase)
	}
	if s.locked {
		return ErrAnswerLocked
	}
	if i < 0 || i >= len(s.questions[s.index].Options) {
		return fmt.Errorf("%w: option %d out of range", domain.ErrInvalidInput, i)
	}
	s.selected = i
	return nil
}

// Submit locks in the selected option and records the answer. The last
// question completes the session at once; otherwise the next question is
// shown after the advance delay.
func (s *Session) Submit() (AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked()
}

// SubmitAnswer selects option i and submits it.
func (s *Session) SubmitAnswer(i int) (AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectLocked(i); err != nil {
		return AnswerRecord{}, err
	}
	return s.submitLocked()
}

func (s *Session) submitLocked() (AnswerRecord, error) {
	if s.phase != InProgress {
		return AnswerRecord{}, fmt.Errorf("%w: submit while %s", ErrInvalidTransition, s.phase)
	}
	if s.locked {
		return AnswerRecord{}, ErrAnswerLocked
	}

	q := s.questions[s.index]
	rec := AnswerRecord{
		FlashcardID:   q.Card.ID,
		Prompt:        q.Card.Front,
		CorrectAnswer: q.Card.Back,
		Correct:       s.selected == q.CorrectIndex,
	}
	if s.selected >= 0 {
		answer := q.Options[s.selected]
		rec.UserAnswer = &answer
	}
	s.records = append(s.records, rec)

	if s.index == len(s.questions)-1 {
		s.phase = Complete
		s.selected = -1
		sum := s.summaryLocked()
		s.engine.logger.Info("Quiz complete",
			"depth", s.depth,
			"correct", sum.Correct,
			"answered", sum.Answered,
			"accuracy", sum.Accuracy,
		)
		return rec, nil
	}

	s.locked = true
	s.gen++
	gen := s.gen
	s.timer = s.engine.afterFunc(s.engine.delay, func() { s.advance(gen) })
	return rec, nil
}

func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.phase != InProgress || !s.locked {
		return
	}
	s.index++
	s.selected = -1
	s.locked = false
	s.timer = nil
}

// Abort returns an in-progress quiz to Setup, dropping its answers and any
// pending advance.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress {
		return fmt.Errorf("%w: abort while %s", ErrInvalidTransition, s.phase)
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.phase = Setup
	s.index = 0
	s.selected = -1
	s.locked = false
	s.records = nil
	s.engine.logger.Debug("Quiz aborted", "depth", s.depth)
	return nil
}

// Summary scores the answers recorded so far.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{IncorrectByTag: map[string]int{}}
	for i, rec := range s.records {
		sum.Answered++
		if rec.Correct {
			sum.Correct++
			continue
		}
		for _, tag := range s.questions[i].Card.Tags {
			sum.IncorrectByTag[tag]++
		}
	}
	if sum.Answered > 0 {
		sum.Accuracy = int(math.Round(float64(sum.Correct) * 100 / float64(sum.Answered)))
	}
	return sum
}

// RetryIncorrect starts a new session over the cards answered incorrectly,
// with a fresh order and fresh distractors.
func (s *Session) RetryIncorrect() (*Session, error) {
	s.mu.Lock()
	if s.phase != Complete {
		phase := s.phase
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: retry while %s", ErrInvalidTransition, phase)
	}
	var missed []domain.Flashcard
	for i, rec := range s.records {
		if !rec.Correct {
			missed = append(missed, s.questions[i].Card)
		}
	}
	s.mu.Unlock()

	if len(missed) == 0 {
		return nil, ErrNothingToRetry
	}
	s.engine.logger.Debug("Retrying incorrect answers", "cards", len(missed), "depth", s.depth+1)
	return s.engine.newSession(missed, s.pool, s.tags, s.depth+1), nil
}
