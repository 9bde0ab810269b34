package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/ingest"
	"github.com/conorfennell/cuecard/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var syncEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API server",
		Long:  "Serve reviews, quizzes and the collection over HTTP. Use --addr to change the listen address.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			handler := web.NewServer(a.db,
				web.WithParams(a.cfg.Scheduler.Params()),
				web.WithQuizEngine(a.quizEngine(nil)),
				web.WithSources(a.db, a.cfg.ReposDir),
				web.WithLogger(a.logger),
			)
			srv := &http.Server{
				Addr:              a.cfg.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			if syncEvery > 0 {
				go a.syncLoop(ctx, syncEvery)
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Starting server", "addr", a.cfg.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&syncEvery, "sync-interval", 0, "Sync all sources on this interval while serving (0 disables)")
	return cmd
}

// syncLoop runs a sync every interval until ctx is done.
func (a *app) syncLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ingest.RunSync(ctx, a.db, a.cfg.ReposDir); err != nil {
				a.logger.Error("Background sync failed", "error", err)
			}
		}
	}
}
