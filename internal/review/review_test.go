package review

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/srs"
	"github.com/conorfennell/cuecard/internal/storage"
)

var (
	created = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now     = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
)

func clock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newStore(t *testing.T, fronts ...string) (*storage.Memory, []domain.Flashcard) {
	t.Helper()
	store := storage.NewMemory(storage.WithClock(clock(created)))
	ctx := context.Background()
	for _, f := range fronts {
		if _, err := store.CreateFlashcard(ctx, domain.CreateFlashcardInput{Front: f, Back: f + " answer"}); err != nil {
			t.Fatal(err)
		}
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return store, cards
}

func TestRate(t *testing.T) {
	ctx := context.Background()

	t.Run("good on a new card", func(t *testing.T) {
		store, cards := newStore(t, "q")
		got, err := Rate(ctx, store, nil, cards[0], srs.Good, now)
		if err != nil {
			t.Fatal(err)
		}
		if got.Interval != 1 {
			t.Errorf("Expected interval 1, got %d", got.Interval)
		}
		if math.Abs(got.EaseFactor-2.5*0.92) > 1e-9 {
			t.Errorf("Expected ease 2.3, got %f", got.EaseFactor)
		}
		if !got.LastReviewed.Equal(now) || !got.NextReview.Equal(now.Add(24*time.Hour)) {
			t.Errorf("Unexpected timestamps: last %v next %v", got.LastReviewed, got.NextReview)
		}
		if !got.CreatedAt.Equal(created) || got.Front != "q" {
			t.Errorf("Expected untouched fields to be preserved, got %+v", got)
		}
	})

	t.Run("good on a reviewed card", func(t *testing.T) {
		store, cards := newStore(t, "q")
		c := cards[0]
		c.Interval = 10
		c.EaseFactor = 2.5
		got, err := Rate(ctx, store, nil, c, srs.Good, now)
		if err != nil {
			t.Fatal(err)
		}
		if got.Interval != 25 {
			t.Errorf("Expected ceil(10*2.5)=25, got %d", got.Interval)
		}
	})

	t.Run("again resets", func(t *testing.T) {
		store, cards := newStore(t, "q")
		c := cards[0]
		c.Interval = 300
		c.EaseFactor = 3.1
		got, err := Rate(ctx, store, nil, c, srs.Again, now)
		if err != nil {
			t.Fatal(err)
		}
		if got.Interval != 1 {
			t.Errorf("Expected interval 1, got %d", got.Interval)
		}
	})

	t.Run("easy twice", func(t *testing.T) {
		store, cards := newStore(t, "q")
		first, err := Rate(ctx, store, nil, cards[0], srs.Easy, now)
		if err != nil {
			t.Fatal(err)
		}
		if first.Interval != 2 {
			t.Fatalf("Expected interval 2, got %d", first.Interval)
		}
		second, err := Rate(ctx, store, nil, *first, srs.Easy, now.Add(48*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if second.Interval != 7 {
			t.Errorf("Expected interval 7, got %d", second.Interval)
		}
	})

	t.Run("invalid rating", func(t *testing.T) {
		store, cards := newStore(t, "q")
		_, err := Rate(ctx, store, nil, cards[0], srs.Rating(9), now)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
		stored, _ := store.GetFlashcard(ctx, cards[0].ID)
		if stored.Interval != 0 || !stored.NextReview.Equal(created) {
			t.Errorf("Expected card untouched, got %+v", stored)
		}
	})

	t.Run("missing card", func(t *testing.T) {
		store, _ := newStore(t)
		_, err := Rate(ctx, store, nil, domain.Flashcard{ID: "ghost", EaseFactor: 2.5}, srs.Good, now)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestRateGapMatchesInterval(t *testing.T) {
	ctx := context.Background()
	for r := srs.Again; r <= srs.Perfect; r++ {
		t.Run(r.String(), func(t *testing.T) {
			store, cards := newStore(t, "q")
			c := cards[0]
			c.Interval = 4
			got, err := Rate(ctx, store, nil, c, r, now)
			if err != nil {
				t.Fatal(err)
			}
			gap := got.NextReview.Sub(got.LastReviewed)
			if gap != time.Duration(got.Interval)*24*time.Hour {
				t.Errorf("Expected gap of %d days, got %v", got.Interval, gap)
			}
		})
	}
}

// flakyStore fails the next n updates.
type flakyStore struct {
	*storage.Memory
	failures int
}

func (f *flakyStore) UpdateFlashcard(ctx context.Context, id string, patch domain.FlashcardPatch) (*domain.Flashcard, error) {
	if f.failures > 0 {
		f.failures--
		return nil, domain.ErrStoreUnavailable
	}
	return f.Memory.UpdateFlashcard(ctx, id, patch)
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue completes immediately", func(t *testing.T) {
		store, _ := newStore(t)
		s := NewSession(store, nil)
		if s.State() != Complete {
			t.Fatalf("Expected Complete, got %s", s.State())
		}
		if _, ok := s.Current(); ok {
			t.Error("Expected no current card")
		}
		if err := s.ShowAnswer(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("full pass", func(t *testing.T) {
		store, cards := newStore(t, "one", "two", "three")
		s := NewSession(store, cards, WithClock(clock(now)))

		if _, err := s.Rate(ctx, srs.Good); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected rating before reveal to fail, got %v", err)
		}

		for i, want := range cards {
			cur, ok := s.Current()
			if !ok || cur.ID != want.ID {
				t.Fatalf("Step %d: expected card %s, got %s (ok=%v)", i, want.ID, cur.ID, ok)
			}
			if s.State() != Presenting {
				t.Fatalf("Step %d: expected Presenting, got %s", i, s.State())
			}
			if err := s.ShowAnswer(); err != nil {
				t.Fatal(err)
			}
			if err := s.ShowAnswer(); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected second reveal to fail, got %v", err)
			}
			choice := ChoiceEasy
			if i == 1 {
				choice = ChoiceHard
			}
			if _, err := s.RateChoice(ctx, choice); err != nil {
				t.Fatal(err)
			}
		}

		if s.State() != Complete || s.Remaining() != 0 {
			t.Errorf("Expected Complete with nothing remaining, got %s / %d", s.State(), s.Remaining())
		}
		if got, want := s.Reviewed(), []string{cards[0].ID, cards[1].ID, cards[2].ID}; !slices.Equal(got, want) {
			t.Errorf("Reviewed() = %v, want %v", got, want)
		}

		hard, _ := store.GetFlashcard(ctx, cards[1].ID)
		if hard.Interval != 1 {
			t.Errorf("Expected Hard on a new card to give interval 1, got %d", hard.Interval)
		}
		easy, _ := store.GetFlashcard(ctx, cards[2].ID)
		if easy.Interval != 2 || !easy.NextReview.Equal(now.Add(48*time.Hour)) {
			t.Errorf("Expected Easy to give interval 2, got %+v", easy)
		}
	})

	t.Run("queue is fixed at start", func(t *testing.T) {
		store, cards := newStore(t, "one")
		s := NewSession(store, cards, WithClock(clock(now)))
		if _, err := store.CreateFlashcard(ctx, domain.CreateFlashcardInput{Front: "late", Back: "late"}); err != nil {
			t.Fatal(err)
		}
		if s.Len() != 1 || s.Remaining() != 1 {
			t.Errorf("Expected session to keep its original queue, got len %d", s.Len())
		}
	})

	t.Run("abandon leaves unrated cards untouched", func(t *testing.T) {
		store, cards := newStore(t, "one", "two")
		s := NewSession(store, cards, WithClock(clock(now)))
		if err := s.ShowAnswer(); err != nil {
			t.Fatal(err)
		}
		if _, err := s.RateChoice(ctx, ChoiceEasy); err != nil {
			t.Fatal(err)
		}
		if err := s.ShowAnswer(); err != nil {
			t.Fatal(err)
		}

		second, _ := store.GetFlashcard(ctx, cards[1].ID)
		if second.Interval != 0 || !second.NextReview.Equal(created) {
			t.Errorf("Expected unrated card to keep its schedule, got %+v", second)
		}
		first, _ := store.GetFlashcard(ctx, cards[0].ID)
		if first.Interval != 2 {
			t.Errorf("Expected rated card to be saved, got %+v", first)
		}
	})

	t.Run("failed write keeps the card", func(t *testing.T) {
		mem, cards := newStore(t, "one", "two")
		store := &flakyStore{Memory: mem, failures: 1}
		s := NewSession(store, cards, WithClock(clock(now)))
		if err := s.ShowAnswer(); err != nil {
			t.Fatal(err)
		}

		_, err := s.Rate(ctx, srs.Good)
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
		}
		cur, _ := s.Current()
		if s.State() != AnswerRevealed || cur.ID != cards[0].ID || len(s.Reviewed()) != 0 {
			t.Fatalf("Expected session to stay on the first card, got %s on %s", s.State(), cur.ID)
		}

		if _, err := s.Rate(ctx, srs.Good); err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if s.Position() != 1 || s.State() != Presenting {
			t.Errorf("Expected to advance after retry, got position %d state %s", s.Position(), s.State())
		}
	})

	t.Run("invalid rating keeps the card", func(t *testing.T) {
		store, cards := newStore(t, "one")
		s := NewSession(store, cards, WithClock(clock(now)))
		if err := s.ShowAnswer(); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Rate(ctx, srs.Rating(0)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
		if s.State() != AnswerRevealed {
			t.Errorf("Expected AnswerRevealed, got %s", s.State())
		}
	})

	t.Run("custom params", func(t *testing.T) {
		store, cards := newStore(t, "one")
		p := srs.DefaultParams()
		p.FirstEasy = 3
		s := NewSession(store, cards, WithClock(clock(now)), WithParams(p))
		_ = s.ShowAnswer()
		got, err := s.RateChoice(ctx, ChoiceEasy)
		if err != nil {
			t.Fatal(err)
		}
		if got.Interval != 3 {
			t.Errorf("Expected configured first Easy interval 3, got %d", got.Interval)
		}
	})
}
