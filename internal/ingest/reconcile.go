// Package ingest imports markdown note sources into the store. Each file
// becomes a note and its Q/A blocks (or headings) become the note's
// flashcards.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/fingerprint"
	"github.com/conorfennell/cuecard/internal/parser"
	"github.com/conorfennell/cuecard/internal/storage"
)

// Options controls a reconciliation.
type Options struct {
	// Source prefixes every note Reference so several roots can share a
	// store. Empty means references are plain relative paths.
	Source string
	Logger *slog.Logger
}

// Report summarises one reconciliation.
type Report struct {
	Files        int
	NotesCreated int
	NotesUpdated int
	NotesDeleted int
	CardsCreated int
	CardsDeleted int
	Errors       []error
}

type file struct {
	reference string
	title     string
	content   string
	tags      []string
	cards     []parser.Card
}

func (o Options) reference(rel string) string {
	if o.Source == "" {
		return rel
	}
	return strings.TrimSuffix(o.Source, "/") + "/" + rel
}

// owns reports whether a note reference belongs to this source.
func (o Options) owns(ref string) bool {
	if o.Source == "" {
		return strings.HasSuffix(strings.ToLower(ref), ".md") && !strings.Contains(ref, ":")
	}
	return strings.HasPrefix(ref, strings.TrimSuffix(o.Source, "/")+"/")
}

// Reconcile makes the notes and derived flashcards of root match the
// markdown files under it. Notes are keyed by Reference, cards by content
// fingerprint, so running it twice over unchanged files changes nothing.
// Failures on single files are collected in the report.
func Reconcile(ctx context.Context, store storage.Store, root string, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var report Report

	files, err := scan(ctx, root, opts, &report)
	if err != nil {
		return report, fmt.Errorf("error walking directory %s: %w", root, err)
	}
	report.Files = len(files)

	notes, err := store.ListNotes(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list notes: %w", err)
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list flashcards: %w", err)
	}
	byNote := make(map[string][]domain.Flashcard)
	for _, c := range cards {
		byNote[c.NoteID] = append(byNote[c.NoteID], c)
	}
	byRef := make(map[string]domain.Note)
	for _, n := range notes {
		if n.Reference != "" && opts.owns(n.Reference) {
			byRef[n.Reference] = n
		}
	}

	seen := make(map[string]bool)
	for _, f := range files {
		seen[f.reference] = true
		note, err := upsertNote(ctx, store, byRef, f, &report)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("note %s: %w", f.reference, err))
			continue
		}
		syncCards(ctx, store, logger, note, f, byNote[note.ID], &report)
	}

	for ref, n := range byRef {
		if seen[ref] {
			continue
		}
		logger.Info("Note file removed, deleting", "reference", ref)
		if err := store.DeleteNote(ctx, n.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("delete note %s: %w", ref, err))
			continue
		}
		report.NotesDeleted++
		report.CardsDeleted += len(byNote[n.ID])
	}

	logger.Info("reconciliation complete",
		"path", root,
		"files", report.Files,
		"cards_created", report.CardsCreated,
		"orphaned_deleted", report.CardsDeleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

func scan(ctx context.Context, root string, opts Options, report *Report) ([]file, error) {
	var files []file
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(p)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("reading %s: %w", p, err))
			return nil
		}
		content := string(data)
		cards, err := parser.Extract(content)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", p, err))
			return nil
		}

		title := parser.Title(content)
		if title == "" {
			title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
		}
		var tags []string
		if dir := path.Dir(rel); dir != "." {
			tags = strings.Split(dir, "/")
		}
		files = append(files, file{
			reference: opts.reference(rel),
			title:     title,
			content:   content,
			tags:      tags,
			cards:     cards,
		})
		return nil
	})
	return files, err
}

func upsertNote(ctx context.Context, store storage.NoteStore, byRef map[string]domain.Note, f file, report *Report) (*domain.Note, error) {
	existing, ok := byRef[f.reference]
	if !ok {
		note, err := store.CreateNote(ctx, domain.CreateNoteInput{
			Title:     f.title,
			Notes:     f.content,
			Reference: f.reference,
			Tags:      f.tags,
		})
		if err != nil {
			return nil, err
		}
		report.NotesCreated++
		return note, nil
	}

	if existing.Title == f.title && existing.Notes == f.content && slices.Equal(existing.Tags, f.tags) {
		return &existing, nil
	}
	tags := f.tags
	if tags == nil {
		tags = []string{}
	}
	note, err := store.UpdateNote(ctx, existing.ID, domain.NotePatch{
		Title: &f.title,
		Notes: &f.content,
		Tags:  tags,
	})
	if err != nil {
		return nil, err
	}
	report.NotesUpdated++
	return note, nil
}

func syncCards(ctx context.Context, store storage.FlashcardStore, logger *slog.Logger, note *domain.Note, f file, existing []domain.Flashcard, report *Report) {
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[fingerprint.Hash(c.Front, c.Back)] = true
	}

	found := make(map[string]bool, len(f.cards))
	for _, card := range f.cards {
		hash := fingerprint.Hash(card.Front, card.Back)
		if found[hash] {
			continue
		}
		found[hash] = true
		if have[hash] {
			continue
		}
		logger.Info("New card found, inserting...", "hash", hash, "note", f.reference)
		_, err := store.CreateFlashcard(ctx, domain.CreateFlashcardInput{
			Front:  card.Front,
			Back:   card.Back,
			NoteID: note.ID,
			Tags:   f.tags,
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("db insert for %s: %w", hash, err))
			continue
		}
		report.CardsCreated++
	}

	for _, c := range existing {
		hash := fingerprint.Hash(c.Front, c.Back)
		if found[hash] {
			continue
		}
		logger.Info("Orphaned card, deleting", "hash", hash, "note", f.reference)
		if err := store.DeleteFlashcard(ctx, c.ID); err != nil {
			logger.Warn("Failed to delete orphaned card", "hash", hash, "error", err)
			continue
		}
		report.CardsDeleted++
	}
}
