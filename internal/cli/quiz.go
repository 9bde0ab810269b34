package cli

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cuecard/internal/quiz"
)

// quizEngine builds an engine from the quiz settings. A nil after uses real
// timers.
func (a *app) quizEngine(after quiz.AfterFunc) *quiz.Engine {
	opts := []quiz.Option{
		quiz.WithOptions(a.cfg.Quiz.Options),
		quiz.WithAdvanceDelay(a.cfg.Quiz.AdvanceDelay),
		quiz.WithLogger(a.logger),
	}
	if after != nil {
		opts = append(opts, quiz.WithAfterFunc(after))
	}
	return quiz.NewEngine(opts...)
}

// stepper holds the pending advance so the terminal moves on as soon as the
// feedback is printed.
type stepper struct {
	next func()
}

func (s *stepper) after(_ time.Duration, f func()) quiz.Timer {
	s.next = f
	return s
}

func (s *stepper) Stop() bool {
	pending := s.next != nil
	s.next = nil
	return pending
}

func (s *stepper) step() {
	if f := s.next; f != nil {
		s.next = nil
		f()
	}
}

func newQuizCmd(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Run a multiple-choice quiz over tagged cards",
		Long: `Quiz yourself on every card carrying all of the given tags. Answer each
question with the number of an option, or q to stop. Scheduling is not
affected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			pool, err := a.db.ListFlashcards(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list flashcards: %w", err)
			}

			steps := &stepper{}
			sess, err := a.quizEngine(steps.after).Start(pool, tags)
			if err != nil {
				return err
			}
			if sess.Len() == 0 {
				fmt.Fprintf(out, "No cards carry all of: %s\n", strings.Join(tags, ", "))
				return nil
			}

			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				if !playQuiz(sess, steps, in, out) {
					fmt.Fprintln(out, "Quiz aborted.")
					return nil
				}
				sum := sess.Summary()
				printSummary(out, sum)
				if sum.Correct == sum.Answered {
					return nil
				}
				line, ok := prompt(in, out, "Retry the incorrect ones? [y/N]: ")
				if !ok || !strings.EqualFold(line, "y") {
					return nil
				}
				if sess, err = sess.RetryIncorrect(); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tags every quiz card must carry (repeatable)")
	return cmd
}

// playQuiz asks every question of sess. It returns false if the user quit.
func playQuiz(sess *quiz.Session, steps *stepper, in *bufio.Scanner, out io.Writer) bool {
	for sess.Phase() == quiz.InProgress {
		q, _ := sess.Current()
		fmt.Fprintf(out, "\n[%d/%d] %s\n", sess.Index()+1, sess.Len(), q.Card.Front)
		for i, opt := range q.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
		}

		for {
			line, ok := prompt(in, out, "Answer: ")
			if !ok || line == "q" {
				_ = sess.Abort()
				return false
			}
			n, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintf(out, "Enter a number from 1 to %d.\n", len(q.Options))
				continue
			}
			rec, err := sess.SubmitAnswer(n - 1)
			if err != nil {
				fmt.Fprintf(out, "Enter a number from 1 to %d.\n", len(q.Options))
				continue
			}
			if rec.Correct {
				fmt.Fprintln(out, "Correct!")
			} else {
				fmt.Fprintf(out, "Incorrect. The answer is: %s\n", rec.CorrectAnswer)
			}
			break
		}
		steps.step()
	}
	return true
}

func printSummary(out io.Writer, sum quiz.Summary) {
	fmt.Fprintf(out, "\nScore: %d/%d (%d%%)\n", sum.Correct, sum.Answered, sum.Accuracy)
	for _, tag := range slices.Sorted(maps.Keys(sum.IncorrectByTag)) {
		fmt.Fprintf(out, "  %s: %d incorrect\n", tag, sum.IncorrectByTag[tag])
	}
}
