package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/ingest"
	"github.com/conorfennell/cuecard/internal/storage"
)

func newSourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage markdown note sources",
		Long:  "Add, list and remove the local folders and git repositories that sync reads cards from.",
	}

	cmd.AddCommand(newSourceAddCmd(a))
	cmd.AddCommand(newSourceListCmd(a))
	cmd.AddCommand(newSourceRemoveCmd(a))

	return cmd
}

func newSourceAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path|url.git>",
		Short: "Add a local folder or git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			existing, err := a.db.FindSourceByPath(cmd.Context(), path)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("source already exists: %s (id %d)", path, existing.ID)
			}
			id, err := a.db.AddSource(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", storage.SourceType(path), id, path)
			return nil
		},
	}
}

func newSourceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := a.db.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sources) == 0 {
				fmt.Fprintln(out, "No sources configured.")
				return nil
			}
			for _, s := range sources {
				scanned := "never"
				if s.LastScanned.Valid {
					scanned = s.LastScanned.Time.Local().Format(time.DateTime)
				}
				fmt.Fprintf(out, "%d\t%s\t%s\tlast scanned: %s\n", s.ID, s.Type, s.Path, scanned)
			}
			return nil
		},
	}
}

func newSourceRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a source; cards already synced from it are kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source ID %q", args[0])
			}
			if err := a.db.DeleteSource(cmd.Context(), id); err != nil {
				if errors.Is(err, storage.ErrSourceNotFound) {
					return fmt.Errorf("no source with ID %d", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", id)
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync cards from every source",
		Long:  "Clone or pull git sources, then reconcile notes and cards with the markdown files of every source.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := ingest.RunSync(cmd.Context(), a.db, a.cfg.ReposDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "Nothing synced.")
				return nil
			}
			for _, r := range reports {
				fmt.Fprintf(out, "%d files: %d notes created, %d updated, %d deleted; %d cards created, %d deleted\n",
					r.Files, r.NotesCreated, r.NotesUpdated, r.NotesDeleted, r.CardsCreated, r.CardsDeleted)
				for _, e := range r.Errors {
					fmt.Fprintf(out, "  error: %v\n", e)
				}
			}
			return nil
		},
	}
}
