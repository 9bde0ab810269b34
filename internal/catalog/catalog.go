// Package catalog provides whole-collection operations: tag listing,
// search, the auto-generated index, and import/export.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/storage"
)

const descriptionLimit = 200

// AllTags returns every tag used by notes, flashcards and index entries, in
// first-seen order without duplicates.
func AllTags(ctx context.Context, store storage.Store) ([]string, error) {
	notes, err := store.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards: %w", err)
	}
	entries, err := store.ListIndexEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list index entries: %w", err)
	}

	seen := make(map[string]bool)
	tags := []string{}
	add := func(ts []string) {
		for _, t := range ts {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	for _, n := range notes {
		add(n.Tags)
	}
	for _, c := range cards {
		add(c.Tags)
	}
	for _, e := range entries {
		add(e.Tags)
	}
	return tags, nil
}

type matcher string

func newMatcher(query string) (matcher, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	return matcher(q), q != ""
}

func (m matcher) any(fields []string, tags []string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), string(m)) {
			return true
		}
	}
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), string(m)) {
			return true
		}
	}
	return false
}

// SearchNotes matches query case-insensitively against title, body,
// summary and tags. A blank query matches nothing.
func SearchNotes(ctx context.Context, store storage.NoteStore, query string) ([]domain.Note, error) {
	m, ok := newMatcher(query)
	if !ok {
		return []domain.Note{}, nil
	}
	notes, err := store.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	out := []domain.Note{}
	for _, n := range notes {
		if m.any([]string{n.Title, n.Notes, n.Summary}, n.Tags) {
			out = append(out, n)
		}
	}
	return out, nil
}

// SearchFlashcards matches front, back and tags.
func SearchFlashcards(ctx context.Context, store storage.FlashcardStore, query string) ([]domain.Flashcard, error) {
	m, ok := newMatcher(query)
	if !ok {
		return []domain.Flashcard{}, nil
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards: %w", err)
	}
	out := []domain.Flashcard{}
	for _, c := range cards {
		if m.any([]string{c.Front, c.Back}, c.Tags) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SearchIndexEntries matches title, reference, description and tags.
func SearchIndexEntries(ctx context.Context, store storage.IndexStore, query string) ([]domain.IndexEntry, error) {
	m, ok := newMatcher(query)
	if !ok {
		return []domain.IndexEntry{}, nil
	}
	entries, err := store.ListIndexEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list index entries: %w", err)
	}
	out := []domain.IndexEntry{}
	for _, e := range entries {
		if m.any([]string{e.Title, e.Reference, e.Description}, e.Tags) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AutoGenerateIndex adds an index entry for every note title, then every
// flashcard front, that is not indexed yet (compared case-insensitively).
// It returns the number of entries added.
func AutoGenerateIndex(ctx context.Context, store storage.Store) (int, error) {
	notes, err := store.ListNotes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list notes: %w", err)
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list flashcards: %w", err)
	}
	entries, err := store.ListIndexEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list index entries: %w", err)
	}

	titles := make(map[string]bool, len(entries))
	for _, e := range entries {
		titles[strings.ToLower(e.Title)] = true
	}
	noteRefs := make(map[string]string, len(notes))
	for _, n := range notes {
		noteRefs[n.ID] = n.Reference
	}

	added := 0
	create := func(in domain.CreateIndexEntryInput) error {
		key := strings.ToLower(in.Title)
		if titles[key] {
			return nil
		}
		if _, err := store.CreateIndexEntry(ctx, in); err != nil {
			return fmt.Errorf("failed to create index entry %q: %w", in.Title, err)
		}
		titles[key] = true
		added++
		return nil
	}

	for _, n := range notes {
		ref := n.Reference
		if ref == "" {
			ref = "From note"
		}
		desc := n.Summary
		if desc == "" {
			desc = truncate(n.Notes, descriptionLimit)
		}
		if err := create(domain.CreateIndexEntryInput{Title: n.Title, Reference: ref, Description: desc, Tags: n.Tags}); err != nil {
			return added, err
		}
	}
	for _, c := range cards {
		ref := noteRefs[c.NoteID]
		if ref == "" {
			ref = "From flashcard"
		}
		if err := create(domain.CreateIndexEntryInput{Title: c.Front, Reference: ref, Description: c.Back, Tags: c.Tags}); err != nil {
			return added, err
		}
	}
	return added, nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
