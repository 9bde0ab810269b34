package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/cuecard/internal/domain"
)

// FlashcardStore is the keyed flashcard collection the review core consumes.
// Get returns (nil, nil) when the id is absent; Update returns
// domain.ErrNotFound. List preserves insertion order.
type FlashcardStore interface {
	ListFlashcards(ctx context.Context) ([]domain.Flashcard, error)
	GetFlashcard(ctx context.Context, id string) (*domain.Flashcard, error)
	CreateFlashcard(ctx context.Context, in domain.CreateFlashcardInput) (*domain.Flashcard, error)
	UpdateFlashcard(ctx context.Context, id string, patch domain.FlashcardPatch) (*domain.Flashcard, error)
	DeleteFlashcard(ctx context.Context, id string) error
}

// NoteStore holds notes. DeleteNote also removes the note's flashcards.
type NoteStore interface {
	ListNotes(ctx context.Context) ([]domain.Note, error)
	GetNote(ctx context.Context, id string) (*domain.Note, error)
	CreateNote(ctx context.Context, in domain.CreateNoteInput) (*domain.Note, error)
	UpdateNote(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

type IndexStore interface {
	ListIndexEntries(ctx context.Context) ([]domain.IndexEntry, error)
	GetIndexEntry(ctx context.Context, id string) (*domain.IndexEntry, error)
	CreateIndexEntry(ctx context.Context, in domain.CreateIndexEntryInput) (*domain.IndexEntry, error)
	UpdateIndexEntry(ctx context.Context, id string, patch domain.IndexEntryPatch) (*domain.IndexEntry, error)
	DeleteIndexEntry(ctx context.Context, id string) error
}

// Store is everything the application persists.
type Store interface {
	FlashcardStore
	NoteStore
	IndexStore
	// Import replaces the whole collection with data.
	Import(ctx context.Context, data Dataset) error
}

// Dataset is a full snapshot of the collection.
type Dataset struct {
	Notes        []domain.Note       `json:"notes" yaml:"notes"`
	Flashcards   []domain.Flashcard  `json:"flashcards" yaml:"flashcards"`
	IndexEntries []domain.IndexEntry `json:"indexEntries" yaml:"indexEntries"`
}

// Option configures a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides uuid-based id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
