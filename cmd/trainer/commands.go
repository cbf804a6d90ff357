package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/performance"
	"tradetrainer/internal/prediction"
	"tradetrainer/internal/session"
	"tradetrainer/internal/solana"
	"tradetrainer/internal/storage/memory"
)

// newRootCmd builds the command tree around build.
func newRootCmd(build appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "trainer",
		Short: "Practice price predictions on published chart exercises",
		Long: `Practice price predictions on published chart exercises.

Each exercise shows a chart ending at an entry candle with a take-profit and a
stop-loss. Answer with a signed percentage: +100 is the take-profit, -100 the
stop-loss. Outcomes settle when the exercise creator publishes the solution.`,
		SilenceUsage: true,
	}

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		}
	}

	var byPrice bool
	submitCmd := &cobra.Command{
		Use:   "submit <percent>",
		Short: "Submit a validation for the current exercise",
		Example: `  trainer submit 40
  trainer submit -- -25
  trainer submit --price 101.7`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			return runSubmit(cmd.Context(), cmd.OutOrStdout(), a.session, args[0], byPrice)
		}),
	}
	submitCmd.Flags().BoolVar(&byPrice, "price", false, "Interpret the argument as a chart price")

	root.AddCommand(
		&cobra.Command{
			Use:   "next",
			Short: "Show the current exercise, loading a new one if needed",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				return runNext(cmd.Context(), cmd.OutOrStdout(), a.session)
			}),
		},
		submitCmd,
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the current exercise",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				return runSkip(cmd.Context(), cmd.OutOrStdout(), a.session)
			}),
		},
		&cobra.Command{
			Use:   "price <percent>",
			Short: "Show the chart price a percentage maps to",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				return runPrice(cmd.Context(), cmd.OutOrStdout(), a.session, args[0])
			}),
		},
		&cobra.Command{
			Use:   "history",
			Short: "List past exercises",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				return printHistory(cmd.OutOrStdout(), a.session.State().History)
			}),
		},
		&cobra.Command{
			Use:   "performance",
			Short: "Summarize settled exercises",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				return runPerformance(cmd.Context(), cmd.OutOrStdout(), a.session, a.logger)
			}),
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Follow open exercises and settle them as outcomes are published",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				ws, err := a.dialWS(cmd.Context())
				if err != nil {
					return fmt.Errorf("connect websocket: %w", err)
				}
				defer ws.Close()
				return runWatch(cmd.Context(), cmd.OutOrStdout(), a.session, ws)
			}),
		},
	)
	return root
}

func runNext(ctx context.Context, out io.Writer, s *session.Session) error {
	ex, err := s.LoadExercise(ctx)
	if err != nil {
		return err
	}
	bar := s.State().Bar
	pos := ex.Chart.Position

	fmt.Fprintf(out, "Exercise %s (%s)\n", ex.CID, ex.PublicKey)
	fmt.Fprintf(out, "  direction    %s\n", pos.Direction)
	fmt.Fprintf(out, "  candles      %d, settles over %d more\n", len(ex.Chart.Candles), pos.PostBars)
	if bar != nil {
		fmt.Fprintf(out, "  close        %.6g\n", bar.Close)
		fmt.Fprintf(out, "  take-profit  %.6g (+100)\n", bar.TakeProfitPrice)
		fmt.Fprintf(out, "  stop-loss    %.6g (-100)\n", bar.StopLossPrice)
	}
	if ex.Full {
		fmt.Fprintln(out, "  validations are full")
	}
	return nil
}

func runSubmit(ctx context.Context, out io.Writer, s *session.Session, arg string, byPrice bool) error {
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", arg)
	}
	if _, err := s.LoadExercise(ctx); err != nil {
		return err
	}
	if byPrice {
		bar := s.State().Bar
		if bar == nil {
			return session.ErrNoExercise
		}
		price, err := prediction.ValidatePrice(value)
		if err != nil {
			return err
		}
		value = prediction.PriceToValidation(price, *bar)
	}
	percent, err := prediction.ValidatePercent(value)
	if err != nil {
		return err
	}

	item, err := s.SubmitValidation(ctx, percent)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitted %+.2f%% for %s, now %s\n", item.Validation, item.CID, item.State)
	return nil
}

func runSkip(ctx context.Context, out io.Writer, s *session.Session) error {
	if _, err := s.LoadExercise(ctx); err != nil {
		return err
	}
	item, err := s.Skip(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		fmt.Fprintln(out, "Nothing to skip")
		return nil
	}
	fmt.Fprintf(out, "Skipped %s\n", item.CID)
	return nil
}

func runPrice(ctx context.Context, out io.Writer, s *session.Session, arg string) error {
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", arg)
	}
	percent, err := prediction.ValidatePercent(value)
	if err != nil {
		return err
	}
	if _, err := s.LoadExercise(ctx); err != nil {
		return err
	}
	bar := s.State().Bar
	if bar == nil {
		return session.ErrNoExercise
	}
	fmt.Fprintf(out, "%+.2f%% -> %.6g\n", percent, prediction.DisplayPrice(percent, *bar))
	return nil
}

func printHistory(out io.Writer, items []*domain.ExerciseHistoryItem) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "No exercises yet.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CID\tDIRECTION\tSTATE\tVALIDATION\tOUTCOME\tUPDATED")
	for _, item := range items {
		outcome := "-"
		if item.Outcome != nil {
			outcome = fmt.Sprintf("%+.2f", *item.Outcome)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%+.2f\t%s\t%s\n",
			item.CID, item.Direction, item.State, item.Validation, outcome,
			item.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runPerformance(ctx context.Context, out io.Writer, s *session.Session, logger *logrus.Logger) error {
	agg := performance.NewAggregator(memory.NewSettlementStore(), memory.NewPerformanceStore(), logger)
	for _, item := range s.State().History {
		if !item.State.IsTerminal() {
			continue
		}
		if err := agg.Record(ctx, s.Trader(), item); err != nil {
			return err
		}
	}
	perf, err := agg.Compute(ctx, s.Trader())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Attempts      %d\n", perf.Attempts)
	fmt.Fprintf(out, "Success/Fail  %d/%d (win rate %.1f%%)\n", perf.Successes, perf.Failures, perf.WinRate*100)
	fmt.Fprintf(out, "Skipped       %d\n", perf.Skipped)
	fmt.Fprintf(out, "Expired       %d\n", perf.Expired)
	fmt.Fprintf(out, "Corrupted     %d\n", perf.Corrupted)
	if perf.Successes+perf.Failures > 0 {
		fmt.Fprintf(out, "Outcome       mean %+.2f, best %+.2f, worst %+.2f\n", perf.OutcomeMean, perf.BestOutcome, perf.WorstOutcome)
	}
	fmt.Fprintf(out, "Losing streak %d\n", perf.MaxConsecutiveFails)
	return nil
}

func runWatch(ctx context.Context, out io.Writer, s *session.Session, ws solana.WSClient) error {
	seen := make(map[string]domain.ExerciseState)
	for _, item := range s.State().History {
		seen[item.CID] = item.State
	}
	unsubscribe := s.Subscribe(func(snap session.Snapshot) {
		for _, item := range snap.History {
			if prev, ok := seen[item.CID]; ok && prev == item.State {
				continue
			}
			seen[item.CID] = item.State
			fmt.Fprintf(out, "%s is now %s\n", item.CID, item.State)
		}
	})
	defer unsubscribe()

	fmt.Fprintln(out, "Watching open exercises, Ctrl-C to stop")
	return s.Watch(ctx, ws)
}
