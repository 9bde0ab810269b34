package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/quiz"
	"github.com/conorfennell/cuecard/internal/storage"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

// advances holds quiz advances until the test runs them.
type advances struct {
	mu  sync.Mutex
	fns []func()
}

func (a *advances) after(_ time.Duration, f func()) quiz.Timer {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fns = append(a.fns, f)
	return manualTimer{}
}

func (a *advances) run() {
	a.mu.Lock()
	fns := a.fns
	a.fns = nil
	a.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type fixture struct {
	t        *testing.T
	store    *storage.Memory
	server   *Server
	advances *advances
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory(storage.WithClock(func() time.Time { return now }))
	adv := &advances{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := quiz.NewEngine(
		quiz.WithRand(rand.New(rand.NewPCG(1, 2))),
		quiz.WithAfterFunc(adv.after),
		quiz.WithLogger(logger),
	)
	srv := NewServer(store,
		WithClock(func() time.Time { return now }),
		WithQuizEngine(engine),
		WithLogger(logger),
	)
	return &fixture{t: t, store: store, server: srv, advances: adv}
}

func (f *fixture) card(front, back string, tags ...string) *domain.Flashcard {
	f.t.Helper()
	c, err := f.store.CreateFlashcard(context.Background(), domain.CreateFlashcardInput{Front: front, Back: back, Tags: tags})
	if err != nil {
		f.t.Fatal(err)
	}
	return c
}

// do sends a request and decodes a JSON response into out when non-nil.
func (f *fixture) do(method, path, body string, out any) int {
	f.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			f.t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestDueAndDeck(t *testing.T) {
	f := newFixture(t)
	f.card("due", "yes")
	later := f.card("later", "no")
	next := now.Add(48 * time.Hour)
	if _, err := f.store.UpdateFlashcard(context.Background(), later.ID, domain.FlashcardPatch{NextReview: &next}); err != nil {
		t.Fatal(err)
	}

	var due []domain.Flashcard
	if code := f.do("GET", "/api/flashcards/due", "", &due); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if len(due) != 1 || due[0].Front != "due" {
		t.Errorf("Expected only the due card, got %+v", due)
	}

	var deck map[string]any
	f.do("GET", "/api/deck", "", &deck)
	if deck["dueCount"] != float64(1) || deck["hasDueCards"] != true {
		t.Errorf("Unexpected deck: %v", deck)
	}
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t)
	first := f.card("2+2?", "4")
	f.card("3+3?", "6")

	var v reviewView
	if code := f.do("POST", "/api/reviews", "", &v); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}
	if v.State != "presenting" || v.Total != 2 || v.Card == nil || v.Card.Back != "" {
		t.Fatalf("Unexpected new session: %+v", v)
	}
	base := "/api/reviews/" + v.ID

	if code := f.do("POST", base+"/rate", `{"rating":"easy"}`, nil); code != http.StatusConflict {
		t.Errorf("Expected 409 when rating before reveal, got %d", code)
	}

	f.do("POST", base+"/answer", "", &v)
	if v.State != "answer_revealed" || v.Card.Back != "4" {
		t.Fatalf("Expected revealed answer, got %+v", v)
	}

	if code := f.do("POST", base+"/rate", `{"rating":9}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an out of range rating, got %d", code)
	}
	if code := f.do("POST", base+"/rate", `{"grade":4}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown field, got %d", code)
	}

	if code := f.do("POST", base+"/rate", `{"rating":"easy"}`, &v); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if v.Position != 1 || v.Reviewed != 1 || v.State != "presenting" {
		t.Errorf("Expected to move to the second card, got %+v", v)
	}
	stored, _ := f.store.GetFlashcard(context.Background(), first.ID)
	if stored.Interval != 2 || !stored.NextReview.Equal(now.Add(48*time.Hour)) {
		t.Errorf("Expected Easy to be saved, got %+v", stored)
	}

	f.do("POST", base+"/answer", "", nil)
	var done reviewView
	f.do("POST", base+"/rate", `{"rating":2}`, &done)
	if done.State != "complete" || done.Card != nil || done.Reviewed != 2 {
		t.Errorf("Expected a complete session, got %+v", done)
	}

	if code := f.do("DELETE", base, "", nil); code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", code)
	}
	if code := f.do("GET", base, "", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 after abandoning, got %d", code)
	}
}

func TestQuizFlow(t *testing.T) {
	f := newFixture(t)
	f.card("x + 1 = 3", "x = 2", "math", "algebra")
	f.card("Powerhouse?", "Mitochondria", "biology")

	if code := f.do("POST", "/api/quizzes", `{"tags":[]}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 without tags, got %d", code)
	}

	var v quizView
	if code := f.do("POST", "/api/quizzes", `{"tags":["math"]}`, &v); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}
	if v.Phase != "in_progress" || v.Total != 1 || v.Question == nil || len(v.Question.Options) != 4 {
		t.Fatalf("Unexpected quiz: %+v", v)
	}
	if v.Question.CorrectIndex != nil {
		t.Error("Expected the correct option to stay hidden before submitting")
	}
	base := "/api/quizzes/" + v.ID

	correct := -1
	for i, o := range v.Question.Options {
		if o == "x = 2" {
			correct = i
		}
	}
	wrong := (correct + 1) % 4

	f.do("POST", base+"/select", `{"option":`+itoa(correct)+`}`, &v)
	if v.Selected != correct {
		t.Errorf("Expected selection %d, got %d", correct, v.Selected)
	}
	if code := f.do("POST", base+"/select", `{"option":7}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid option, got %d", code)
	}

	if code := f.do("POST", base+"/submit", `{"option":`+itoa(wrong)+`}`, &v); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if v.Phase != "complete" || v.Summary.Answered != 1 || v.Summary.Correct != 0 {
		t.Errorf("Expected a completed quiz with one wrong answer, got %+v", v)
	}
	if v.Summary.IncorrectByTag["math"] != 1 || v.Summary.IncorrectByTag["algebra"] != 1 {
		t.Errorf("Unexpected tag breakdown: %v", v.Summary.IncorrectByTag)
	}
	if code := f.do("POST", base+"/submit", "", nil); code != http.StatusConflict {
		t.Errorf("Expected 409 after completion, got %d", code)
	}

	var retry quizView
	if code := f.do("POST", base+"/retry", "", &retry); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}
	if retry.ID == v.ID || retry.Depth != 1 || retry.Total != 1 || len(retry.Records) != 0 {
		t.Errorf("Unexpected retry: %+v", retry)
	}

	if code := f.do("POST", "/api/quizzes/"+retry.ID+"/submit", `{"option":0}`, nil); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if code := f.do("DELETE", base, "", nil); code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", code)
	}
	if code := f.do("GET", base, "", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
}

func TestQuizAdvanceAndAbort(t *testing.T) {
	f := newFixture(t)
	for _, s := range []string{"a", "b", "c"} {
		f.card(s, s+" answer", "t")
	}

	var v quizView
	f.do("POST", "/api/quizzes", `{"tags":["t"]}`, &v)
	base := "/api/quizzes/" + v.ID

	f.do("POST", base+"/submit", `{"option":0}`, &v)
	if !v.Locked || v.Question.CorrectIndex == nil {
		t.Fatalf("Expected a locked question with the answer shown, got %+v", v)
	}
	if code := f.do("POST", base+"/select", `{"option":1}`, nil); code != http.StatusConflict {
		t.Errorf("Expected 409 while locked, got %d", code)
	}

	f.advances.run()
	f.do("GET", base, "", &v)
	if v.Index != 1 || v.Locked {
		t.Fatalf("Expected to advance to question 1, got %+v", v)
	}

	f.do("POST", base+"/submit", "", nil)
	if code := f.do("DELETE", base, "", nil); code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", code)
	}
	f.advances.run()
}

func TestCollectionRoutes(t *testing.T) {
	f := newFixture(t)
	f.card("front", "back", "alpha", "beta")

	var tags []string
	f.do("GET", "/api/tags", "", &tags)
	if len(tags) != 2 || tags[0] != "alpha" {
		t.Errorf("Unexpected tags: %v", tags)
	}

	var found map[string][]json.RawMessage
	f.do("GET", "/api/search?q=FRONT", "", &found)
	if len(found["flashcards"]) != 1 || len(found["notes"]) != 0 {
		t.Errorf("Unexpected search results: %v", found)
	}

	req := httptest.NewRequest("GET", "/api/export?format=yaml", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/yaml" || !strings.Contains(rec.Body.String(), "front: front") {
		t.Errorf("Unexpected YAML export: %d %q", rec.Code, rec.Body.String())
	}
	if code := f.do("GET", "/api/export?format=xml", "", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown format, got %d", code)
	}

	var added map[string]int
	f.do("POST", "/api/index/auto", "", &added)
	if added["added"] != 1 {
		t.Errorf("Expected one index entry, got %v", added)
	}

	if code := f.do("POST", "/api/import", `{"flashcards":[]}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an import without notes, got %d", code)
	}
	var counts map[string]int
	if code := f.do("POST", "/api/import", `{"notes":[],"flashcards":[]}`, &counts); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if counts["flashcards"] != 0 || counts["indexEntries"] != 1 {
		t.Errorf("Unexpected import counts: %v", counts)
	}
}

func TestIdleSessionsExpire(t *testing.T) {
	clock := now
	store := storage.NewMemory(storage.WithClock(func() time.Time { return now }))
	if _, err := store.CreateFlashcard(context.Background(), domain.CreateFlashcardInput{Front: "f", Back: "b", Tags: []string{"t"}}); err != nil {
		t.Fatal(err)
	}
	adv := &advances{}
	srv := NewServer(store,
		WithClock(func() time.Time { return clock }),
		WithQuizEngine(quiz.NewEngine(quiz.WithAfterFunc(adv.after), quiz.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))),
		WithSessionTTL(time.Hour),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	f := &fixture{t: t, store: store, server: srv, advances: adv}

	var stale, kept reviewView
	f.do("POST", "/api/reviews", "", &stale)
	f.do("POST", "/api/reviews", "", &kept)
	var staleQuiz quizView
	f.do("POST", "/api/quizzes", `{"tags":["t"]}`, &staleQuiz)

	clock = clock.Add(50 * time.Minute)
	if code := f.do("GET", "/api/reviews/"+kept.ID, "", nil); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	clock = clock.Add(20 * time.Minute)
	var fresh reviewView
	f.do("POST", "/api/reviews", "", &fresh)

	testCases := []struct {
		path     string
		expected int
	}{
		{"/api/reviews/" + stale.ID, http.StatusNotFound},
		{"/api/quizzes/" + staleQuiz.ID, http.StatusNotFound},
		{"/api/reviews/" + kept.ID, http.StatusOK},
		{"/api/reviews/" + fresh.ID, http.StatusOK},
	}
	for _, tc := range testCases {
		if code := f.do("GET", tc.path, "", nil); code != tc.expected {
			t.Errorf("GET %s: expected %d, got %d", tc.path, tc.expected, code)
		}
	}
}

type downStore struct {
	*storage.Memory
}

func (downStore) ListFlashcards(context.Context) ([]domain.Flashcard, error) {
	return nil, domain.ErrStoreUnavailable
}

func TestStoreUnavailable(t *testing.T) {
	srv := NewServer(downStore{storage.NewMemory()}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for _, path := range []string{"/api/flashcards/due", "/api/deck"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestSourceRoutes(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{t: t, server: NewServer(db, WithSources(db, t.TempDir()), WithLogger(logger))}

	if code := f.do("POST", "/api/sources", `{"path":""}`, nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty path, got %d", code)
	}
	var sources []sourceView
	if code := f.do("POST", "/api/sources", `{"path":"`+t.TempDir()+`"}`, &sources); code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", code)
	}
	if len(sources) != 1 || sources[0].Type != "local" || sources[0].LastScanned != nil {
		t.Fatalf("Unexpected sources: %+v", sources)
	}

	var reports []map[string]any
	if code := f.do("POST", "/api/sync", "", &reports); code != http.StatusOK || len(reports) != 1 {
		t.Errorf("Expected one sync report, got %d %v", code, reports)
	}
	f.do("GET", "/api/sources", "", &sources)
	if sources[0].LastScanned == nil {
		t.Error("Expected the source to be marked as scanned")
	}

	path := "/api/sources/" + itoa(int(sources[0].ID))
	if code := f.do("DELETE", path, "", nil); code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", code)
	}
	if code := f.do("DELETE", path, "", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
	if code := f.do("DELETE", "/api/sources/abc", "", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{quiz.ErrNoTags, http.StatusBadRequest},
		{quiz.ErrAnswerLocked, http.StatusConflict},
		{quiz.ErrNothingToRetry, http.StatusConflict},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		if got := statusFor(tc.err); got != tc.expected {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.expected)
		}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
