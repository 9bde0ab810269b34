package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/storage"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Snapshot is the export document: the whole collection plus the time it
// was taken.
type Snapshot struct {
	storage.Dataset `yaml:",inline"`
	ExportDate      time.Time `json:"exportDate" yaml:"exportDate"`
}

// Export writes the whole collection to w as JSON (the default) or YAML.
func Export(ctx context.Context, store storage.Store, w io.Writer, format string) error {
	snap, err := snapshot(ctx, store)
	if err != nil {
		return err
	}

	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode export: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidInput, format)
	}
	return nil
}

func snapshot(ctx context.Context, store storage.Store) (Snapshot, error) {
	notes, err := store.ListNotes(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list notes: %w", err)
	}
	cards, err := store.ListFlashcards(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list flashcards: %w", err)
	}
	entries, err := store.ListIndexEntries(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list index entries: %w", err)
	}
	return Snapshot{
		Dataset: storage.Dataset{
			Notes:        notes,
			Flashcards:   cards,
			IndexEntries: entries,
		},
		ExportDate: time.Now().UTC(),
	}, nil
}

type importDoc struct {
	Notes        json.RawMessage `json:"notes"`
	Flashcards   json.RawMessage `json:"flashcards"`
	IndexEntries json.RawMessage `json:"indexEntries"`
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Import replaces the collection with a JSON export read from r. The notes
// and flashcards arrays are required; when indexEntries is absent the
// existing entries are kept.
func Import(ctx context.Context, store storage.Store, r io.Reader) (storage.Dataset, error) {
	var doc importDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return storage.Dataset{}, fmt.Errorf("%w: invalid import data: %w", domain.ErrInvalidInput, err)
	}
	if !isArray(doc.Notes) || !isArray(doc.Flashcards) {
		return storage.Dataset{}, fmt.Errorf("%w: import needs notes and flashcards arrays", domain.ErrInvalidInput)
	}

	var data storage.Dataset
	if err := json.Unmarshal(doc.Notes, &data.Notes); err != nil {
		return storage.Dataset{}, fmt.Errorf("%w: notes: %w", domain.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(doc.Flashcards, &data.Flashcards); err != nil {
		return storage.Dataset{}, fmt.Errorf("%w: flashcards: %w", domain.ErrInvalidInput, err)
	}
	if isArray(doc.IndexEntries) {
		if err := json.Unmarshal(doc.IndexEntries, &data.IndexEntries); err != nil {
			return storage.Dataset{}, fmt.Errorf("%w: indexEntries: %w", domain.ErrInvalidInput, err)
		}
	} else {
		existing, err := store.ListIndexEntries(ctx)
		if err != nil {
			return storage.Dataset{}, fmt.Errorf("failed to list index entries: %w", err)
		}
		data.IndexEntries = existing
	}

	for i := range data.Notes {
		if data.Notes[i].Tags == nil {
			data.Notes[i].Tags = []string{}
		}
	}
	for i := range data.Flashcards {
		if data.Flashcards[i].Tags == nil {
			data.Flashcards[i].Tags = []string{}
		}
	}

	if err := store.Import(ctx, data); err != nil {
		return storage.Dataset{}, fmt.Errorf("failed to import: %w", err)
	}
	return data, nil
}
