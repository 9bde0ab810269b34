package web

import (
	"fmt"
	"net/http"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/quiz"
)

type questionView struct {
	FlashcardID  string   `json:"flashcardId"`
	Front        string   `json:"front"`
	Tags         []string `json:"tags"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex,omitempty"`
}

type quizView struct {
	ID       string              `json:"id"`
	Phase    string              `json:"phase"`
	Depth    int                 `json:"depth"`
	Tags     []string            `json:"tags"`
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Selected int                 `json:"selected"`
	Locked   bool                `json:"locked"`
	Question *questionView       `json:"question,omitempty"`
	Records  []quiz.AnswerRecord `json:"records"`
	Summary  quiz.Summary        `json:"summary"`
}

// newQuizView hides the correct option until the answer is locked in.
func newQuizView(id string, sess *quiz.Session) quizView {
	v := quizView{
		ID:       id,
		Phase:    sess.Phase().String(),
		Depth:    sess.Depth(),
		Tags:     sess.Tags(),
		Index:    sess.Index(),
		Total:    sess.Len(),
		Selected: sess.Selected(),
		Locked:   sess.Locked(),
		Records:  sess.Records(),
		Summary:  sess.Summary(),
	}
	if v.Records == nil {
		v.Records = []quiz.AnswerRecord{}
	}
	if q, ok := sess.Current(); ok {
		qv := questionView{
			FlashcardID: q.Card.ID,
			Front:       q.Card.Front,
			Tags:        q.Card.Tags,
			Options:     q.Options,
		}
		if v.Locked {
			qv.CorrectIndex = &q.CorrectIndex
		}
		v.Question = &qv
	}
	return v
}

type startQuizRequest struct {
	Tags []string `json:"tags"`
}

type optionRequest struct {
	Option *int `json:"option"`
}

func (s *Server) quizSession(id string) (*quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %s: %w", id, domain.ErrNotFound)
	}
	e.seen = s.now()
	return e.sess, nil
}

func (s *Server) addQuiz(sess *quiz.Session) string {
	id := s.newID()
	s.mu.Lock()
	s.sweepLocked()
	s.quizzes[id] = &quizEntry{sess: sess, seen: s.now()}
	s.mu.Unlock()
	return id
}

// handleStartQuiz builds a quiz over the cards carrying all requested tags.
func (s *Server) handleStartQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startQuizRequest
		if err := decode(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		pool, err := s.store.ListFlashcards(r.Context())
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		sess, err := s.quiz.Start(pool, req.Tags)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		id := s.addQuiz(sess)
		s.logger.Info("Quiz started", "quiz", id, "tags", req.Tags, "questions", sess.Len())
		writeJSON(w, http.StatusCreated, newQuizView(id, sess))
	}
}

func (s *Server) handleGetQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.quizSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newQuizView(id, sess))
	}
}

// handleSelect marks an option without submitting it.
func (s *Server) handleSelect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.quizSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		var req optionRequest
		if err := decode(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if req.Option == nil {
			s.respondWithError(w, r, fmt.Errorf("%w: option is required", domain.ErrInvalidInput))
			return
		}
		if err := sess.Select(*req.Option); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newQuizView(id, sess))
	}
}

// handleSubmit locks in the selected option, or the one given in the body.
func (s *Server) handleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sess, err := s.quizSession(id)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		var req optionRequest
		if err := decode(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if req.Option != nil {
			_, err = sess.SubmitAnswer(*req.Option)
		} else {
			_, err = sess.Submit()
		}
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newQuizView(id, sess))
	}
}

// handleRetry starts a new quiz over the incorrectly answered cards.
func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.quizSession(r.PathValue("id"))
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		retry, err := sess.RetryIncorrect()
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		id := s.addQuiz(retry)
		writeJSON(w, http.StatusCreated, newQuizView(id, retry))
	}
}

// handleAbortQuiz aborts a running quiz and forgets it.
func (s *Server) handleAbortQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.mu.Lock()
		e, ok := s.quizzes[id]
		delete(s.quizzes, id)
		s.mu.Unlock()
		if !ok {
			s.respondWithError(w, r, fmt.Errorf("quiz %s: %w", id, domain.ErrNotFound))
			return
		}
		if e.sess.Phase() == quiz.InProgress {
			_ = e.sess.Abort()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
