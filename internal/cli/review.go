package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/queue"
	"github.com/conorfennell/cuecard/internal/review"
	"github.com/conorfennell/cuecard/internal/srs"
)

func newDueCmd(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the cards due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := queue.Load(cmd.Context(), a.db, time.Now())
			if err != nil {
				return err
			}
			due = queue.FilterByTags(due, tags)

			out := cmd.OutOrStdout()
			if len(due) == 0 {
				fmt.Fprintln(out, "No cards due.")
				return nil
			}
			for _, c := range due {
				fmt.Fprintf(out, "%s  %s", c.ID, firstLine(c.Front))
				if len(c.Tags) > 0 {
					fmt.Fprintf(out, "  [%s]", strings.Join(c.Tags, ", "))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d cards due.\n", len(due))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Only list cards carrying all of these tags")
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review due cards interactively",
		Long: `Step through every due card. Press Enter to reveal the answer, then rate
it: h for hard, e for easy, or a rating from 1 (again) to 5 (perfect).
Enter q at any prompt to stop; cards already rated stay saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			due, err := queue.Load(ctx, a.db, time.Now())
			if err != nil {
				return err
			}
			if len(due) == 0 {
				fmt.Fprintln(out, "No cards due.")
				return nil
			}

			sess := review.NewSession(a.db, due,
				review.WithParams(a.cfg.Scheduler.Params()),
				review.WithLogger(a.logger),
			)
			in := bufio.NewScanner(cmd.InOrStdin())
			for sess.State() != review.Complete {
				card, _ := sess.Current()
				fmt.Fprintf(out, "\n[%d/%d] %s\n", sess.Position()+1, sess.Len(), card.Front)
				line, ok := prompt(in, out, "Press Enter to show the answer (q to quit): ")
				if !ok || line == "q" {
					break
				}
				if err := sess.ShowAnswer(); err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s\n\n", card.Back)

				quit, err := rateCurrent(cmd, sess, in, out)
				if err != nil {
					return err
				}
				if quit {
					break
				}
			}

			fmt.Fprintf(out, "Reviewed %d of %d cards.\n", len(sess.Reviewed()), sess.Len())
			return nil
		},
	}
}

// rateCurrent prompts until the revealed card is rated or the user quits.
func rateCurrent(cmd *cobra.Command, sess *review.Session, in *bufio.Scanner, out io.Writer) (quit bool, err error) {
	for {
		line, ok := prompt(in, out, "Rate: h=hard e=easy or 1-5: ")
		if !ok || line == "q" {
			return true, nil
		}
		rating, err := parseRating(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		card, err := sess.Rate(cmd.Context(), rating)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s: next review in %d days (%s)\n", rating, card.Interval, card.NextReview.Local().Format("2006-01-02"))
		return false, nil
	}
}

func parseRating(s string) (srs.Rating, error) {
	switch strings.ToLower(s) {
	case "h":
		return review.ChoiceHard.Rating(), nil
	case "e":
		return review.ChoiceEasy.Rating(), nil
	}
	return srs.ParseRating(s)
}

// prompt writes msg and reads one trimmed line. ok is false at end of input.
func prompt(in *bufio.Scanner, out io.Writer, msg string) (line string, ok bool) {
	fmt.Fprint(out, msg)
	if !in.Scan() {
		fmt.Fprintln(out)
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
