package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/quality"
)

const dateLayout = "2006-01-02"

func checkCmd() *cobra.Command {
	var (
		fromStr  string
		toStr    string
		explain  bool
		expected []string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Detect anomalies in quantified assignments",
		Long: `Looks for duplicates, statistical outliers, mixed units within a
category and missing categories among assignments that carry an emission.
--to is inclusive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := parsePeriod(fromStr, toStr)
			if err != nil {
				return err
			}

			opts := []quality.Option{}
			for _, e := range expected {
				c, err := model.ParseCategory(e)
				if err != nil {
					return common.NewUserError("unknown category "+e, err)
				}
				opts = append(opts, quality.WithExpected(c))
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.QualityRecords(ctx, organization(), from, to)
			if err != nil {
				return fmt.Errorf("failed to load records: %w", err)
			}

			opts = append(opts, quality.WithInference(a.ai), quality.WithLogger(a.logger))
			checker := quality.NewChecker(opts...)
			report := checker.Detect(ctx, records)

			out := cmd.OutOrStdout()
			if err := cli.RenderQualityReport(out, report); err != nil {
				return err
			}
			if !explain {
				return nil
			}

			byID := make(map[string]model.Record, len(records))
			for _, r := range records {
				byID[r.ID] = r
			}
			for _, an := range report.Anomalies {
				r, ok := byID[an.RecordID]
				if !ok {
					continue
				}
				fmt.Fprintf(out, "%s %s\n", cli.FormatTitle(r.ID), checker.Explain(ctx, r, an.Type))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "first date included (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "last date included (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&explain, "explain", false, "explain each anomaly on a record")
	cmd.Flags().StringSliceVar(&expected, "expect", nil, "categories the inventory should contain")
	return cmd
}

// parsePeriod parses the optional bounds. The upper bound covers the whole day.
func parsePeriod(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse(dateLayout, fromStr); err != nil {
			return from, to, common.NewUserError("--from must be YYYY-MM-DD", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return from, to, common.NewUserError("--to must be YYYY-MM-DD", err)
		}
		to = to.AddDate(0, 0, 1).Add(-time.Second)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, common.NewUserError("--to is before --from", common.ErrInvalidConfig)
	}
	return from, to, nil
}
