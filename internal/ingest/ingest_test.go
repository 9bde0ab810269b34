package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fronts(t *testing.T, store storage.Store) []string {
	t.Helper()
	cards, err := store.ListFlashcards(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Front
	}
	slices.Sort(out)
	return out
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := storage.NewMemory()
	opts := Options{Logger: quiet}

	writeFile(t, root, "biology/cells.md", "# Cells\n\nQ: Unit of life?\nA: The cell\n---\nQ: Powerhouse?\nA: Mitochondria\n")
	writeFile(t, root, "history.md", "# Rome\nFounded 753 BC.\n")
	writeFile(t, root, "notes.txt", "Q: ignored\nA: yes\n")
	writeFile(t, root, ".git/HEAD.md", "Q: hidden\nA: yes\n")

	report, err := Reconcile(ctx, store, root, opts)
	if err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	if report.Files != 2 || report.NotesCreated != 2 || report.CardsCreated != 3 || len(report.Errors) != 0 {
		t.Errorf("Unexpected first report: %+v", report)
	}
	if got, want := fronts(t, store), []string{"Powerhouse?", "Rome", "Unit of life?"}; !slices.Equal(got, want) {
		t.Errorf("Expected cards %v, got %v", want, got)
	}

	notes, _ := store.ListNotes(ctx)
	var cells domain.Note
	for _, n := range notes {
		if n.Reference == "biology/cells.md" {
			cells = n
		}
	}
	if cells.Title != "Cells" || !slices.Equal(cells.Tags, []string{"biology"}) {
		t.Errorf("Unexpected note for cells.md: %+v", cells)
	}
	cards, _ := store.ListFlashcards(ctx)
	for _, c := range cards {
		if c.Front == "Unit of life?" && (c.NoteID != cells.ID || !slices.Equal(c.Tags, []string{"biology"})) {
			t.Errorf("Expected card to belong to the cells note with its tags, got %+v", c)
		}
	}

	t.Run("unchanged files are a no-op", func(t *testing.T) {
		report, err := Reconcile(ctx, store, root, opts)
		if err != nil {
			t.Fatal(err)
		}
		if report.NotesCreated+report.NotesUpdated+report.NotesDeleted+report.CardsCreated+report.CardsDeleted != 0 {
			t.Errorf("Expected no changes, got %+v", report)
		}
	})

	t.Run("edited card replaces the old one", func(t *testing.T) {
		writeFile(t, root, "biology/cells.md", "# Cells\n\nQ: Unit of life?\nA: The cell\n---\nQ: Powerhouse of the cell?\nA: Mitochondria\n")
		report, err := Reconcile(ctx, store, root, opts)
		if err != nil {
			t.Fatal(err)
		}
		if report.NotesUpdated != 1 || report.CardsCreated != 1 || report.CardsDeleted != 1 {
			t.Errorf("Unexpected report: %+v", report)
		}
		if got, want := fronts(t, store), []string{"Powerhouse of the cell?", "Rome", "Unit of life?"}; !slices.Equal(got, want) {
			t.Errorf("Expected cards %v, got %v", want, got)
		}
	})

	t.Run("deleted file removes note and cards", func(t *testing.T) {
		if err := os.Remove(filepath.Join(root, "history.md")); err != nil {
			t.Fatal(err)
		}
		report, err := Reconcile(ctx, store, root, opts)
		if err != nil {
			t.Fatal(err)
		}
		if report.NotesDeleted != 1 || report.CardsDeleted != 1 {
			t.Errorf("Unexpected report: %+v", report)
		}
		if got, want := fronts(t, store), []string{"Powerhouse of the cell?", "Unit of life?"}; !slices.Equal(got, want) {
			t.Errorf("Expected cards %v, got %v", want, got)
		}
	})

	t.Run("hand written notes are left alone", func(t *testing.T) {
		if _, err := store.CreateNote(ctx, domain.CreateNoteInput{Title: "Manual", Reference: "Book, p. 12"}); err != nil {
			t.Fatal(err)
		}
		report, err := Reconcile(ctx, store, root, opts)
		if err != nil {
			t.Fatal(err)
		}
		if report.NotesDeleted != 0 {
			t.Errorf("Expected the manual note to survive, got %+v", report)
		}
	})
}

func TestReconcileTitleFallsBackToFileName(t *testing.T) {
	root := t.TempDir()
	store := storage.NewMemory()
	writeFile(t, root, "plain.md", "Q: a\nA: b\n")

	if _, err := Reconcile(context.Background(), store, root, Options{Source: "/notes", Logger: quiet}); err != nil {
		t.Fatal(err)
	}
	notes, _ := store.ListNotes(context.Background())
	if len(notes) != 1 || notes[0].Title != "plain" || notes[0].Reference != "/notes/plain.md" {
		t.Errorf("Unexpected notes: %+v", notes)
	}
}

func TestReconcileMissingRoot(t *testing.T) {
	_, err := Reconcile(context.Background(), storage.NewMemory(), filepath.Join(t.TempDir(), "nope"), Options{Logger: quiet})
	if err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestRunSync(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	t.Run("no sources", func(t *testing.T) {
		reports, err := RunSync(ctx, db, t.TempDir())
		if err != nil || len(reports) != 0 {
			t.Errorf("Expected nothing to do, got %v, %v", reports, err)
		}
	})

	root := t.TempDir()
	writeFile(t, root, "deck.md", "Q: 2+2?\nA: 4\n")
	id, err := db.AddSource(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddSource(ctx, "git@bad"); err != nil {
		t.Fatal(err)
	}

	reports, err := RunSync(ctx, db, t.TempDir())
	if err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	if len(reports) != 1 || reports[0].CardsCreated != 1 {
		t.Errorf("Expected one successful report, got %+v", reports)
	}

	sources, _ := db.ListSources(ctx)
	for _, s := range sources {
		if s.ID == id && !s.LastScanned.Valid {
			t.Error("Expected local source to be marked as scanned")
		}
	}
}
