package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/engine"
)

func classifyCmd() *cobra.Command {
	var (
		quantify bool
		workers  int
		noBar    bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify every subject that has no assignment yet",
		Long: `Runs the tiered pipeline (learned rules, merchant codes, patterns, AI,
default) over unassigned subjects. With --quantify the monetary amount of
each outflow is used as the activity quantity and an emission factor is
attached.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(cmd.Context(), "carbon classify", !noBar)

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			subjects, err := a.store.ListUnassigned(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to list unassigned subjects: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(subjects) == 0 {
				_, err := fmt.Fprintln(out, cli.FormatInfo("Nothing to classify."))
				return err
			}

			if workers <= 0 {
				workers = a.cfg.Pipeline.Workers
			}
			opts := engine.BatchOptions{
				Writer:  a.store,
				Workers: workers,
				Retry: common.RetryOptions{
					MaxAttempts:  3,
					InitialDelay: 100 * time.Millisecond,
					MaxDelay:     2 * time.Second,
					Multiplier:   2,
				},
			}
			if quantify {
				opts.Quantity = engine.SpendQuantity
			}
			if !noBar {
				bar := cli.NewProgress(os.Stderr, len(subjects), "Classifying")
				opts.OnProgress = func() { cli.Tick(bar) }
			}

			report := a.engine.ClassifyBatch(ctx, subjects, opts)
			if err := cli.RenderBatchReport(out, report); err != nil {
				return err
			}
			if handler.WasInterrupted() {
				return common.NewUserError("classification interrupted", ctx.Err())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&quantify, "quantify", false, "attach emission factors using the spend amount as quantity")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent classifications (default from config)")
	cmd.Flags().BoolVar(&noBar, "no-progress", false, "disable the progress bar")
	return cmd
}
