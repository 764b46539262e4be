package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

func reviewCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Walk through low-confidence assignments interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(cmd.Context(), "carbon review", false)

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			subjects, err := a.store.ListUnclassified(ctx, organization())
			if err != nil {
				return fmt.Errorf("failed to list subjects for review: %w", err)
			}

			reviewer := cli.NewReviewer(cmd.InOrStdin(), cmd.OutOrStdout())
			for _, s := range subjects {
				current, err := a.store.GetAssignment(ctx, s.ID)
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}

				result, err := reviewer.Review(ctx, s, current)
				if errors.Is(err, cli.ErrReviewQuit) {
					break
				}
				if err != nil {
					return err
				}
				if result.Decision == cli.DecisionSkip {
					continue
				}

				corrected, err := a.engine.Correct(ctx, s, result.Category, user)
				if err != nil {
					return err
				}
				if err := a.store.SaveAssignment(ctx, corrected); err != nil {
					return fmt.Errorf("failed to save review decision: %w", err)
				}
			}

			reviewer.ShowCompletion()
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "cli", "who is reviewing")
	return cmd
}
