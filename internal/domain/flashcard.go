package domain

import (
	"fmt"
	"slices"
	"time"
)

// Initial scheduling state of a freshly created card.
const (
	InitialEaseFactor = 2.5
	InitialInterval   = 0
)

// Flashcard is a single front/back card, usually derived from a note.
// Interval is in whole days; an interval of 0 means the card has never been
// successfully reviewed.
type Flashcard struct {
	ID           string    `json:"id" yaml:"id"`
	Front        string    `json:"front" yaml:"front"`
	Back         string    `json:"back" yaml:"back"`
	NoteID       string    `json:"noteId" yaml:"noteId"`
	Tags         []string  `json:"tags" yaml:"tags"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
	LastReviewed time.Time `json:"lastReviewed" yaml:"lastReviewed"`
	NextReview   time.Time `json:"nextReview" yaml:"nextReview"`
	EaseFactor   float64   `json:"easeFactor" yaml:"easeFactor"`
	Interval     int       `json:"interval" yaml:"interval"`
}

// CreateFlashcardInput holds the caller-supplied fields of a new card.
type CreateFlashcardInput struct {
	Front  string `validate:"notblank"`
	Back   string `validate:"notblank"`
	NoteID string
	Tags   []string
}

// NewFlashcard builds a card that is due immediately.
func NewFlashcard(id string, in CreateFlashcardInput, now time.Time) (Flashcard, error) {
	if err := check(in); err != nil {
		return Flashcard{}, err
	}
	now = now.UTC()
	return Flashcard{
		ID:           id,
		Front:        in.Front,
		Back:         in.Back,
		NoteID:       in.NoteID,
		Tags:         cloneTags(in.Tags),
		CreatedAt:    now,
		LastReviewed: now,
		NextReview:   now,
		EaseFactor:   InitialEaseFactor,
		Interval:     InitialInterval,
	}, nil
}

// IsDue reports whether the card should be shown at asOf.
func (c Flashcard) IsDue(asOf time.Time) bool {
	return !c.NextReview.After(asOf)
}

// HasTags reports whether the card carries every one of tags.
func (c Flashcard) HasTags(tags ...string) bool {
	for _, t := range tags {
		if !slices.Contains(c.Tags, t) {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no slices with c.
func (c Flashcard) Clone() Flashcard {
	c.Tags = cloneTags(c.Tags)
	return c
}

// FlashcardPatch lists the mutable fields of a card. Nil fields are left
// untouched; a non-nil Tags slice (even empty) replaces the tags.
type FlashcardPatch struct {
	Front        *string
	Back         *string
	Tags         []string
	LastReviewed *time.Time
	NextReview   *time.Time
	EaseFactor   *float64
	Interval     *int
}

// Validate rejects patches that would blank out required text.
func (p FlashcardPatch) Validate() error {
	if p.Front != nil {
		if err := notBlank("front", *p.Front); err != nil {
			return err
		}
	}
	if p.Back != nil {
		if err := notBlank("back", *p.Back); err != nil {
			return err
		}
	}
	if p.Interval != nil && *p.Interval < 0 {
		return fmt.Errorf("%w: interval is negative", ErrInvalidInput)
	}
	return nil
}

// Apply merges p over c. New values win; unset fields are preserved.
func (c Flashcard) Apply(p FlashcardPatch) Flashcard {
	out := c.Clone()
	if p.Front != nil {
		out.Front = *p.Front
	}
	if p.Back != nil {
		out.Back = *p.Back
	}
	if p.Tags != nil {
		out.Tags = cloneTags(p.Tags)
	}
	if p.LastReviewed != nil {
		out.LastReviewed = p.LastReviewed.UTC()
	}
	if p.NextReview != nil {
		out.NextReview = p.NextReview.UTC()
	}
	if p.EaseFactor != nil {
		out.EaseFactor = *p.EaseFactor
	}
	if p.Interval != nil {
		out.Interval = *p.Interval
	}
	return out
}
