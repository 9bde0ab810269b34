package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/cuecard/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB is a Store backed by a SQLite database file.
type DB struct {
	conn *sql.DB
	opts options
}

var _ Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
// Use ":memory:" for a throwaway database.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w: %w", domain.ErrStoreUnavailable, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, opts: newOptions(opts)}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// unavailable tags a driver error as a persistence failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	err := json.Unmarshal([]byte(s), &tags)
	return tags, err
}

// Flashcards

const flashcardColumns = `id, front, back, note_id, tags, created_at, last_reviewed, next_review, ease_factor, interval_days`

func scanFlashcard(row scanner) (domain.Flashcard, error) {
	var (
		c                               domain.Flashcard
		tags, created, reviewed, nextAt string
	)
	if err := row.Scan(&c.ID, &c.Front, &c.Back, &c.NoteID, &tags, &created, &reviewed, &nextAt, &c.EaseFactor, &c.Interval); err != nil {
		return c, err
	}
	var err error
	if c.Tags, err = decodeTags(tags); err != nil {
		return c, fmt.Errorf("decode tags of flashcard %s: %w", c.ID, err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	if c.LastReviewed, err = parseTime(reviewed); err != nil {
		return c, err
	}
	if c.NextReview, err = parseTime(nextAt); err != nil {
		return c, err
	}
	return c, nil
}

// ListFlashcards returns every flashcard in insertion order.
func (db *DB) ListFlashcards(ctx context.Context) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+flashcardColumns+` FROM flashcards ORDER BY seq`)
	if err != nil {
		return nil, unavailable("failed to list flashcards", err)
	}
	defer rows.Close()

	cards := []domain.Flashcard{}
	for rows.Next() {
		c, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to list flashcards", err)
	}
	return cards, nil
}

// GetFlashcard retrieves a flashcard by id, or nil if it does not exist.
func (db *DB) GetFlashcard(ctx context.Context, id string) (*domain.Flashcard, error) {
	return getFlashcard(ctx, db.conn, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getFlashcard(ctx context.Context, q querier, id string) (*domain.Flashcard, error) {
	row := q.QueryRowContext(ctx, `SELECT `+flashcardColumns+` FROM flashcards WHERE id = ?`, id)
	c, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Flashcard not found
		}
		return nil, unavailable(fmt.Sprintf("failed to find flashcard %s", id), err)
	}
	return &c, nil
}

func insertFlashcard(ctx context.Context, q querier, c domain.Flashcard) error {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO flashcards (`+flashcardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Front,
		c.Back,
		c.NoteID,
		tags,
		formatTime(c.CreatedAt),
		formatTime(c.LastReviewed),
		formatTime(c.NextReview),
		c.EaseFactor,
		c.Interval,
	)
	if err != nil {
		return unavailable(fmt.Sprintf("failed to insert flashcard %s", c.ID), err)
	}
	return nil
}

// CreateFlashcard validates in and stores a new, immediately due card.
func (db *DB) CreateFlashcard(ctx context.Context, in domain.CreateFlashcardInput) (*domain.Flashcard, error) {
	c, err := domain.NewFlashcard(db.opts.newID(), in, db.opts.now())
	if err != nil {
		return nil, err
	}
	if err := insertFlashcard(ctx, db.conn, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateFlashcard merges patch into the stored card inside a transaction.
func (db *DB) UpdateFlashcard(ctx context.Context, id string, patch domain.FlashcardPatch) (*domain.Flashcard, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	existing, err := getFlashcard(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("flashcard %s: %w", id, domain.ErrNotFound)
	}

	merged := existing.Apply(patch)
	tags, err := encodeTags(merged.Tags)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE flashcards
		SET front = ?, back = ?, tags = ?, last_reviewed = ?, next_review = ?, ease_factor = ?, interval_days = ?
		WHERE id = ?
	`,
		merged.Front,
		merged.Back,
		tags,
		formatTime(merged.LastReviewed),
		formatTime(merged.NextReview),
		merged.EaseFactor,
		merged.Interval,
		id,
	)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to update flashcard %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("failed to commit flashcard update", err)
	}
	return &merged, nil
}

// DeleteFlashcard removes a flashcard. Deleting an absent id is not an error.
func (db *DB) DeleteFlashcard(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM flashcards WHERE id = ?`, id); err != nil {
		return unavailable(fmt.Sprintf("failed to delete flashcard %s", id), err)
	}
	return nil
}

// Notes

const noteColumns = `id, title, cues, notes, summary, reference, tags, created_at, updated_at`

func scanNote(row scanner) (domain.Note, error) {
	var (
		n                      domain.Note
		tags, created, updated string
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Cues, &n.Notes, &n.Summary, &n.Reference, &tags, &created, &updated); err != nil {
		return n, err
	}
	var err error
	if n.Tags, err = decodeTags(tags); err != nil {
		return n, fmt.Errorf("decode tags of note %s: %w", n.ID, err)
	}
	if n.CreatedAt, err = parseTime(created); err != nil {
		return n, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return n, err
	}
	return n, nil
}

func (db *DB) ListNotes(ctx context.Context) ([]domain.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY seq`)
	if err != nil {
		return nil, unavailable("failed to list notes", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to list notes", err)
	}
	return notes, nil
}

func (db *DB) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	return getNote(ctx, db.conn, id)
}

func getNote(ctx context.Context, q querier, id string) (*domain.Note, error) {
	n, err := scanNote(q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(fmt.Sprintf("failed to find note %s", id), err)
	}
	return &n, nil
}

func insertNote(ctx context.Context, q querier, n domain.Note) error {
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, n.Cues, n.Notes, n.Summary, n.Reference, tags, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return unavailable(fmt.Sprintf("failed to insert note %s", n.ID), err)
	}
	return nil
}

func (db *DB) CreateNote(ctx context.Context, in domain.CreateNoteInput) (*domain.Note, error) {
	n, err := domain.NewNote(db.opts.newID(), in, db.opts.now())
	if err != nil {
		return nil, err
	}
	if err := insertNote(ctx, db.conn, n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (db *DB) UpdateNote(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	existing, err := getNote(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("note %s: %w", id, domain.ErrNotFound)
	}

	merged := existing.Apply(patch, db.opts.now())
	tags, err := encodeTags(merged.Tags)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes
		SET title = ?, cues = ?, notes = ?, summary = ?, reference = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, merged.Title, merged.Cues, merged.Notes, merged.Summary, merged.Reference, tags, formatTime(merged.UpdatedAt), id)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to update note %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("failed to commit note update", err)
	}
	return &merged, nil
}

// DeleteNote removes a note together with every flashcard derived from it.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flashcards WHERE note_id = ?`, id); err != nil {
		return unavailable(fmt.Sprintf("failed to delete flashcards of note %s", id), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return unavailable(fmt.Sprintf("failed to delete note %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit note delete", err)
	}
	return nil
}

// Index entries

const indexColumns = `id, title, reference, description, tags, created_at, updated_at`

func scanIndexEntry(row scanner) (domain.IndexEntry, error) {
	var (
		e                      domain.IndexEntry
		tags, created, updated string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Reference, &e.Description, &tags, &created, &updated); err != nil {
		return e, err
	}
	var err error
	if e.Tags, err = decodeTags(tags); err != nil {
		return e, fmt.Errorf("decode tags of index entry %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return e, err
	}
	return e, nil
}

func (db *DB) ListIndexEntries(ctx context.Context) ([]domain.IndexEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+indexColumns+` FROM index_entries ORDER BY seq`)
	if err != nil {
		return nil, unavailable("failed to list index entries", err)
	}
	defer rows.Close()

	entries := []domain.IndexEntry{}
	for rows.Next() {
		e, err := scanIndexEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to list index entries", err)
	}
	return entries, nil
}

func (db *DB) GetIndexEntry(ctx context.Context, id string) (*domain.IndexEntry, error) {
	return getIndexEntry(ctx, db.conn, id)
}

func getIndexEntry(ctx context.Context, q querier, id string) (*domain.IndexEntry, error) {
	e, err := scanIndexEntry(q.QueryRowContext(ctx, `SELECT `+indexColumns+` FROM index_entries WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(fmt.Sprintf("failed to find index entry %s", id), err)
	}
	return &e, nil
}

func insertIndexEntry(ctx context.Context, q querier, e domain.IndexEntry) error {
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO index_entries (`+indexColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Title, e.Reference, e.Description, tags, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return unavailable(fmt.Sprintf("failed to insert index entry %s", e.ID), err)
	}
	return nil
}

func (db *DB) CreateIndexEntry(ctx context.Context, in domain.CreateIndexEntryInput) (*domain.IndexEntry, error) {
	e, err := domain.NewIndexEntry(db.opts.newID(), in, db.opts.now())
	if err != nil {
		return nil, err
	}
	if err := insertIndexEntry(ctx, db.conn, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (db *DB) UpdateIndexEntry(ctx context.Context, id string, patch domain.IndexEntryPatch) (*domain.IndexEntry, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	existing, err := getIndexEntry(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("index entry %s: %w", id, domain.ErrNotFound)
	}

	merged := existing.Apply(patch, db.opts.now())
	tags, err := encodeTags(merged.Tags)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE index_entries
		SET title = ?, reference = ?, description = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, merged.Title, merged.Reference, merged.Description, tags, formatTime(merged.UpdatedAt), id)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("failed to update index entry %s", id), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("failed to commit index entry update", err)
	}
	return &merged, nil
}

func (db *DB) DeleteIndexEntry(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM index_entries WHERE id = ?`, id); err != nil {
		return unavailable(fmt.Sprintf("failed to delete index entry %s", id), err)
	}
	return nil
}

// Import replaces notes, flashcards and index entries in one transaction.
func (db *DB) Import(ctx context.Context, data Dataset) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"flashcards", "notes", "index_entries"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return unavailable(fmt.Sprintf("failed to clear %s", table), err)
		}
	}
	for _, n := range data.Notes {
		if err := insertNote(ctx, tx, n); err != nil {
			return err
		}
	}
	for _, c := range data.Flashcards {
		if err := insertFlashcard(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, e := range data.IndexEntries {
		if err := insertIndexEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit import", err)
	}
	return nil
}
