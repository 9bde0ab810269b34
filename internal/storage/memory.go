package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/conorfennell/cuecard/internal/domain"
)

// Memory is an in-process Store with the same semantics as DB. It is meant
// for tests and for running without a database file.
type Memory struct {
	mu         sync.Mutex
	opts       options
	notes      []domain.Note
	flashcards []domain.Flashcard
	entries    []domain.IndexEntry
}

var _ Store = (*Memory)(nil)

func NewMemory(opts ...Option) *Memory {
	return &Memory{opts: newOptions(opts)}
}

func indexOf[T any](items []T, id string, key func(T) string) int {
	return slices.IndexFunc(items, func(it T) bool { return key(it) == id })
}

func flashcardID(c domain.Flashcard) string { return c.ID }
func noteID(n domain.Note) string           { return n.ID }
func entryID(e domain.IndexEntry) string    { return e.ID }

func (m *Memory) ListFlashcards(ctx context.Context) ([]domain.Flashcard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Flashcard, len(m.flashcards))
	for i, c := range m.flashcards {
		out[i] = c.Clone()
	}
	return out, nil
}

func (m *Memory) GetFlashcard(ctx context.Context, id string) (*domain.Flashcard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.flashcards, id, flashcardID)
	if i < 0 {
		return nil, nil
	}
	c := m.flashcards[i].Clone()
	return &c, nil
}

func (m *Memory) CreateFlashcard(ctx context.Context, in domain.CreateFlashcardInput) (*domain.Flashcard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := domain.NewFlashcard(m.opts.newID(), in, m.opts.now())
	if err != nil {
		return nil, err
	}
	m.flashcards = append(m.flashcards, c)
	out := c.Clone()
	return &out, nil
}

func (m *Memory) UpdateFlashcard(ctx context.Context, id string, patch domain.FlashcardPatch) (*domain.Flashcard, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.flashcards, id, flashcardID)
	if i < 0 {
		return nil, fmt.Errorf("flashcard %s: %w", id, domain.ErrNotFound)
	}
	m.flashcards[i] = m.flashcards[i].Apply(patch)
	out := m.flashcards[i].Clone()
	return &out, nil
}

func (m *Memory) DeleteFlashcard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashcards = slices.DeleteFunc(m.flashcards, func(c domain.Flashcard) bool { return c.ID == id })
	return nil
}

func (m *Memory) ListNotes(ctx context.Context) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Note, len(m.notes))
	for i, n := range m.notes {
		n.Tags = slices.Clone(n.Tags)
		out[i] = n
	}
	return out, nil
}

func (m *Memory) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.notes, id, noteID)
	if i < 0 {
		return nil, nil
	}
	n := m.notes[i]
	n.Tags = slices.Clone(n.Tags)
	return &n, nil
}

func (m *Memory) CreateNote(ctx context.Context, in domain.CreateNoteInput) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := domain.NewNote(m.opts.newID(), in, m.opts.now())
	if err != nil {
		return nil, err
	}
	m.notes = append(m.notes, n)
	n.Tags = slices.Clone(n.Tags)
	return &n, nil
}

func (m *Memory) UpdateNote(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.notes, id, noteID)
	if i < 0 {
		return nil, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}
	m.notes[i] = m.notes[i].Apply(patch, m.opts.now())
	n := m.notes[i]
	n.Tags = slices.Clone(n.Tags)
	return &n, nil
}

func (m *Memory) DeleteNote(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashcards = slices.DeleteFunc(m.flashcards, func(c domain.Flashcard) bool { return c.NoteID == id })
	m.notes = slices.DeleteFunc(m.notes, func(n domain.Note) bool { return n.ID == id })
	return nil
}

func (m *Memory) ListIndexEntries(ctx context.Context) ([]domain.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.IndexEntry, len(m.entries))
	for i, e := range m.entries {
		e.Tags = slices.Clone(e.Tags)
		out[i] = e
	}
	return out, nil
}

func (m *Memory) GetIndexEntry(ctx context.Context, id string) (*domain.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.entries, id, entryID)
	if i < 0 {
		return nil, nil
	}
	e := m.entries[i]
	e.Tags = slices.Clone(e.Tags)
	return &e, nil
}

func (m *Memory) CreateIndexEntry(ctx context.Context, in domain.CreateIndexEntryInput) (*domain.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := domain.NewIndexEntry(m.opts.newID(), in, m.opts.now())
	if err != nil {
		return nil, err
	}
	m.entries = append(m.entries, e)
	e.Tags = slices.Clone(e.Tags)
	return &e, nil
}

func (m *Memory) UpdateIndexEntry(ctx context.Context, id string, patch domain.IndexEntryPatch) (*domain.IndexEntry, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOf(m.entries, id, entryID)
	if i < 0 {
		return nil, fmt.Errorf("index entry %s: %w", id, domain.ErrNotFound)
	}
	m.entries[i] = m.entries[i].Apply(patch, m.opts.now())
	e := m.entries[i]
	e.Tags = slices.Clone(e.Tags)
	return &e, nil
}

func (m *Memory) DeleteIndexEntry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = slices.DeleteFunc(m.entries, func(e domain.IndexEntry) bool { return e.ID == id })
	return nil
}

func (m *Memory) Import(ctx context.Context, data Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = slices.Clone(data.Notes)
	m.flashcards = make([]domain.Flashcard, len(data.Flashcards))
	for i, c := range data.Flashcards {
		m.flashcards[i] = c.Clone()
	}
	m.entries = slices.Clone(data.IndexEntries)
	return nil
}
