package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage learned merchant rules",
	}
	cmd.AddCommand(rulesAddCmd(), rulesListCmd(), rulesDeleteCmd())
	return cmd
}

func rulesAddCmd() *cobra.Command {
	var (
		confidence float64
		user       string
	)

	cmd := &cobra.Command{
		Use:   "add <merchant> <category>",
		Short: "Add or replace a rule and reclassify matching subjects",
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

			rule, err := a.rules.Upsert(ctx, organization(), args[0], category, confidence, user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %q → %s", rule.MerchantKey, rule.Category)))
			return err
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", model.DefaultRuleConfidence, "confidence assigned by the rule")
	cmd.Flags().StringVar(&user, "user", "cli", "who created the rule")
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.rules.List(ctx, organization())
			if err != nil {
				return err
			}
			return cli.RenderRules(cmd.OutOrStdout(), list)
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <merchant>",
		Short: "Delete the rule for a merchant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rules.Delete(ctx, organization(), args[0]); err != nil {
				return common.NewUserError(fmt.Sprintf("no rule for %q", args[0]), err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Rule deleted"))
			return err
		},
	}
}
