// Package review drives spaced-repetition review of due flashcards.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/srs"
)

// Updater is the part of the flashcard store a review writes to.
type Updater interface {
	UpdateFlashcard(ctx context.Context, id string, patch domain.FlashcardPatch) (*domain.Flashcard, error)
}

// Rate applies rating to card at now and persists the new schedule in one
// update. The card is not modified; the stored result is returned.
func Rate(ctx context.Context, store Updater, params *srs.Params, card domain.Flashcard, rating srs.Rating, now time.Time) (*domain.Flashcard, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("%w: rating %d out of range", domain.ErrInvalidInput, int(rating))
	}
	if params == nil {
		params = srs.DefaultParams()
	}
	now = now.UTC()
	next := params.NextState(srs.CardState{
		Interval:   card.Interval,
		EaseFactor: card.EaseFactor,
	}, rating, now)

	updated, err := store.UpdateFlashcard(ctx, card.ID, domain.FlashcardPatch{
		Interval:     &next.Interval,
		EaseFactor:   &next.EaseFactor,
		LastReviewed: &next.LastReview,
		NextReview:   &next.NextReview,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save review of card %s: %w", card.ID, err)
	}
	return updated, nil
}
