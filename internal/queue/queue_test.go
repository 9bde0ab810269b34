package queue

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/storage"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func card(id string, next time.Time, tags ...string) domain.Flashcard {
	return domain.Flashcard{ID: id, Front: id, Back: id, NextReview: next, Tags: tags}
}

func ids(cards []domain.Flashcard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestDue(t *testing.T) {
	cards := []domain.Flashcard{
		card("future", now.Add(time.Hour)),
		card("overdue", now.Add(-72*time.Hour)),
		card("exact", now),
		card("tomorrow", now.Add(24*time.Hour)),
		card("recent", now.Add(-time.Minute)),
	}

	t.Run("selects cards at or before asOf in input order", func(t *testing.T) {
		got := ids(Due(cards, now))
		want := []string{"overdue", "exact", "recent"}
		if !slices.Equal(got, want) {
			t.Errorf("Due() = %v, want %v", got, want)
		}
	})

	t.Run("is restartable", func(t *testing.T) {
		first := ids(Due(cards, now))
		second := ids(Due(cards, now))
		if !slices.Equal(first, second) {
			t.Errorf("Expected identical sequences, got %v and %v", first, second)
		}
	})

	t.Run("does not alias the input", func(t *testing.T) {
		in := []domain.Flashcard{card("a", now, "x")}
		out := Due(in, now)
		out[0].Tags[0] = "changed"
		if in[0].Tags[0] != "x" {
			t.Error("Expected input card tags to be untouched")
		}
	})

	t.Run("empty collection", func(t *testing.T) {
		got := Due(nil, now)
		if got == nil || len(got) != 0 {
			t.Errorf("Expected empty non-nil slice, got %#v", got)
		}
	})
}

func TestLoad(t *testing.T) {
	store := storage.NewMemory(storage.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	created, err := store.CreateFlashcard(ctx, domain.CreateFlashcardInput{Front: "f", Back: "b"})
	if err != nil {
		t.Fatal(err)
	}

	due, err := Load(ctx, store, now.Add(-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("Expected nothing due before creation, got %v", ids(due))
	}

	due, err = Load(ctx, store, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != created.ID {
		t.Errorf("Expected new card to be due immediately, got %v", ids(due))
	}
}

type failingLister struct{}

func (failingLister) ListFlashcards(context.Context) ([]domain.Flashcard, error) {
	return nil, domain.ErrStoreUnavailable
}

func TestLoadPropagatesStoreErrors(t *testing.T) {
	_, err := Load(context.Background(), failingLister{}, now)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func TestFilterByTags(t *testing.T) {
	cards := []domain.Flashcard{
		card("algebra", now, "math", "algebra"),
		card("cells", now, "biology"),
		card("calculus", now, "calculus", "math"),
	}

	testCases := []struct {
		name string
		tags []string
		want []string
	}{
		{"single tag", []string{"math"}, []string{"algebra", "calculus"}},
		{"all tags required", []string{"math", "algebra"}, []string{"algebra"}},
		{"order insensitive", []string{"algebra", "math"}, []string{"algebra"}},
		{"no match", []string{"math", "biology"}, []string{}},
		{"empty matches all", nil, []string{"algebra", "cells", "calculus"}},
		{"exact strings only", []string{"Math"}, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(FilterByTags(cards, tc.tags))
			if !slices.Equal(got, tc.want) {
				t.Errorf("FilterByTags(%v) = %v, want %v", tc.tags, got, tc.want)
			}
		})
	}
}

func TestMatchAllTagsScenario(t *testing.T) {
	math := card("1", now, "math", "algebra")
	bio := card("2", now, "biology")
	if !MatchAllTags(math, []string{"math"}) {
		t.Error("Expected math/algebra card to match [math]")
	}
	if MatchAllTags(bio, []string{"math"}) {
		t.Error("Expected biology card not to match [math]")
	}
}
