package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/catalog"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := catalog.Export(cmd.Context(), a.db, w, format); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", catalog.FormatJSON, "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the collection with a JSON export",
		Long:  "Replace all notes and flashcards with those in a JSON export. Index entries are replaced only when the file has them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			data, err := catalog.Import(cmd.Context(), a.db, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes, %d flashcards and %d index entries.\n",
				len(data.Notes), len(data.Flashcards), len(data.IndexEntries))
			return nil
		},
	}
}

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the subject index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "auto",
		Short: "Add index entries for every note and card not indexed yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := catalog.AutoGenerateIndex(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d index entries.\n", added)
			return nil
		},
	})
	return cmd
}
