package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

func factorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factors",
		Short: "Search the emission factor catalog",
	}
	cmd.AddCommand(factorsSearchCmd(), factorsSimilarCmd(), factorsCompleteCmd(), factorsAskCmd())
	return cmd
}

func factorsSearchCmd() *cobra.Command {
	var filters model.FactorFilters
	var category string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Keyword and semantic search over active factors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if category != "" {
				c, err := model.ParseCategory(category)
				if err != nil {
					return common.NewUserError("unknown category "+category, err)
				}
				filters.Category = c
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.factors.Search(ctx, strings.Join(args, " "), filters)
			if err != nil {
				return err
			}
			return cli.RenderFactors(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVar(&filters.Unit, "unit", "", "only factors expressed per this unit")
	cmd.Flags().StringVar(&filters.Country, "country", "", "only factors for this country")
	cmd.Flags().StringVar(&filters.Source, "source", "", "only factors from this database")
	cmd.Flags().StringVar(&category, "category", "", "only factors of this category")
	return cmd
}

func factorsSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <factor-id>",
		Short: "Find factors comparable to a given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.factors.FindSimilar(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return cli.RenderFactors(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	return cmd
}

func factorsCompleteCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "complete <prefix>",
		Short: "Suggest factors for a partial name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.factors.Autocomplete(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return cli.RenderFactors(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum suggestions")
	return cmd
}

func factorsAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Natural language factor search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.factors.SearchNatural(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return cli.RenderFactors(cmd.OutOrStdout(), results)
		},
	}
}
