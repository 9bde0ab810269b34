package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/cuecard/internal/catalog"
	"github.com/conorfennell/cuecard/internal/domain"
	"github.com/conorfennell/cuecard/internal/ingest"
)

func (s *Server) handleGetTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := catalog.AllTags(r.Context(), s.store)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

// handleSearch searches notes, flashcards and index entries for ?q=.
func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, q := r.Context(), r.URL.Query().Get("q")
		notes, err := catalog.SearchNotes(ctx, s.store, q)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		cards, err := catalog.SearchFlashcards(ctx, s.store, q)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		entries, err := catalog.SearchIndexEntries(ctx, s.store, q)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"notes":        notes,
			"flashcards":   cards,
			"indexEntries": entries,
		})
	}
}

// handleExport streams the collection as JSON, or YAML with ?format=yaml.
func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		var buf bytes.Buffer
		if err := catalog.Export(r.Context(), s.store, &buf, format); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		contentType, ext := "application/json", "json"
		if format == catalog.FormatYAML || format == "yml" {
			contentType, ext = "application/yaml", "yaml"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cuecard-export.%s"`, ext))
		w.Write(buf.Bytes())
	}
}

func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := catalog.Import(r.Context(), s.store, r.Body)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"notes":        len(data.Notes),
			"flashcards":   len(data.Flashcards),
			"indexEntries": len(data.IndexEntries),
		})
	}
}

func (s *Server) handleAutoIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		added, err := catalog.AutoGenerateIndex(r.Context(), s.store)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"added": added})
	}
}

type sourceView struct {
	ID          int64   `json:"id"`
	Path        string  `json:"path"`
	Type        string  `json:"type"`
	LastScanned *string `json:"lastScanned"`
}

func (s *Server) listSources(r *http.Request) ([]sourceView, error) {
	sources, err := s.sources.ListSources(r.Context())
	if err != nil {
		return nil, err
	}
	out := make([]sourceView, len(sources))
	for i, src := range sources {
		out[i] = sourceView{ID: src.ID, Path: src.Path, Type: src.Type}
		if src.LastScanned.Valid {
			ts := src.LastScanned.Time.UTC().Format(time.RFC3339)
			out[i].LastScanned = &ts
		}
	}
	return out, nil
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.listSources(r)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// handlePostSource registers a local path or git URL and returns the list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := decode(r, &req); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if req.Path == "" {
			s.respondWithError(w, r, fmt.Errorf("%w: path cannot be empty", domain.ErrInvalidInput))
			return
		}
		if _, err := s.sources.AddSource(r.Context(), req.Path); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		sources, err := s.listSources(r)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sources)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.respondWithError(w, r, fmt.Errorf("%w: invalid source ID", domain.ErrInvalidInput))
			return
		}
		if err := s.sources.DeleteSource(r.Context(), id); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and reports what changed.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := ingest.RunSync(r.Context(), s.sources, s.reposDir)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		type summary struct {
			Files        int      `json:"files"`
			CardsCreated int      `json:"cardsCreated"`
			CardsDeleted int      `json:"cardsDeleted"`
			Errors       []string `json:"errors"`
		}
		out := make([]summary, len(reports))
		for i, rep := range reports {
			out[i] = summary{Files: rep.Files, CardsCreated: rep.CardsCreated, CardsDeleted: rep.CardsDeleted, Errors: []string{}}
			for _, e := range rep.Errors {
				out[i].Errors = append(out[i].Errors, e.Error())
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
