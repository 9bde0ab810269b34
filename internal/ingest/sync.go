package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/conorfennell/cuecard/internal/gitsource"
	"github.com/conorfennell/cuecard/internal/storage"
)

// SourceStore is a store that also tracks note sources.
type SourceStore interface {
	storage.Store
	ListSources(ctx context.Context) ([]storage.Source, error)
	TouchSource(ctx context.Context, id int64) error
}

// RunSync reconciles every registered source. Git sources are cloned or
// pulled into reposDir first. A failing source is logged and skipped.
func RunSync(ctx context.Context, db SourceStore, reposDir string) ([]Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := db.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with: cuecard source add <path/or/url.git>")
		return nil, nil
	}

	var reports []Report
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		root := source.Path
		if source.Type == storage.SourceGit {
			if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
				return reports, fmt.Errorf("failed to create repos directory: %w", err)
			}
			localRepoPath, err := gitsource.LocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, nil); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				continue
			}
			root = localRepoPath
		}

		report, err := Reconcile(ctx, db, root, Options{Source: source.Path})
		if err != nil {
			slog.Error("Error reconciling source", "path", source.Path, "error", err)
			continue
		}
		reports = append(reports, report)

		if err := db.TouchSource(ctx, source.ID); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}
	slog.Info("Sync process complete.")
	return reports, nil
}
