// Package cli implements the cuecard command tree.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/config"
	"github.com/conorfennell/cuecard/internal/storage"
)

// app is the state shared by every command once the root has loaded the
// configuration and opened the database.
type app struct {
	cfg    *config.Config
	db     *storage.DB
	logger *slog.Logger
}

// NewRootCmd creates the root command for cuecard.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cuecard",
		Short: "Spaced-repetition flashcards from your markdown notes",
		Long: `Review flashcards on a spaced-repetition schedule and quiz yourself by tag.

cuecard provides tools to:
- Sync Q:/A: cards from local folders and git repositories of markdown notes
- Review due cards in the terminal or over the HTTP API
- Run multiple-choice quizzes over tagged cards
- Export and import the whole collection`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newDueCmd(a))
	root.AddCommand(newReviewCmd(a))
	root.AddCommand(newQuizCmd(a))
	root.AddCommand(newSourceCmd(a))
	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newIndexCmd(a))

	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger(cmd.ErrOrStderr())
	slog.SetDefault(a.logger)

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.logger.Debug("Database opened", "path", cfg.DB)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
