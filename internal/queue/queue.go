// Package queue selects the flashcards that are due for review.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
)

// Lister is the part of the flashcard store the queue reads from.
type Lister interface {
	ListFlashcards(ctx context.Context) ([]domain.Flashcard, error)
}

// Due returns the cards whose NextReview is at or before asOf, in the order
// they appear in cards. The result is a fresh slice; cards is not modified.
func Due(cards []domain.Flashcard, asOf time.Time) []domain.Flashcard {
	due := make([]domain.Flashcard, 0, len(cards))
	for _, c := range cards {
		if c.IsDue(asOf) {
			due = append(due, c.Clone())
		}
	}
	return due
}

// Load lists the whole collection and returns the cards due at asOf.
func Load(ctx context.Context, store Lister, asOf time.Time) ([]domain.Flashcard, error) {
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards: %w", err)
	}
	return Due(cards, asOf), nil
}

// MatchAllTags reports whether card carries every tag in tags. An empty tag
// list matches every card.
func MatchAllTags(card domain.Flashcard, tags []string) bool {
	return card.HasTags(tags...)
}

// FilterByTags keeps the cards that carry all of tags, preserving order.
func FilterByTags(cards []domain.Flashcard, tags []string) []domain.Flashcard {
	out := make([]domain.Flashcard, 0, len(cards))
	for _, c := range cards {
		if MatchAllTags(c, tags) {
			out = append(out, c.Clone())
		}
	}
	return out
}
