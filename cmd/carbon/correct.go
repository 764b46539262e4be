package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

func correctCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "correct <subject-id> <category>",
		Short: "Pin a category on a subject and learn a rule from it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			category, err := model.ParseCategory(args[1])
			if err != nil {
				return common.NewUserError(fmt.Sprintf("unknown category %q", args[1]), err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			subject, err := a.store.GetSubject(ctx, args[0])
			if errors.Is(err, common.ErrNotFound) {
				return common.NewUserError(fmt.Sprintf("no subject with id %q", args[0]), err)
			}
			if err != nil {
				return err
			}

			assignment, err := a.engine.Correct(ctx, subject, category, user)
			if err != nil {
				return err
			}
			if err := a.store.SaveAssignment(ctx, assignment); err != nil {
				return fmt.Errorf("failed to save correction: %w", err)
			}
			return cli.RenderAssignment(cmd.OutOrStdout(), subject, assignment)
		},
	}

	cmd.Flags().StringVar(&user, "user", "cli", "who made the correction")
	return cmd
}
