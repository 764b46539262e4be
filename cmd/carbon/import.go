package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import subjects or emission factors",
	}
	cmd.AddCommand(importOFXCmd(), importFactorsCmd())
	return cmd
}

func importOFXCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "ofx <file-or-glob>...",
		Short: "Import bank transactions from OFX/QFX files as subjects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			files, err := expandGlobs(args)
			if err != nil {
				return err
			}

			parser := ofx.NewParser(nil)
			var subjects []model.Subject
			for _, path := range files {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				parsed, err := parser.ParseFile(ctx, f, organization())
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("failed to parse %s: %w", path, err)
				}
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s: %d transactions", filepath.Base(path), len(parsed))))
				subjects = append(subjects, parsed...)
			}

			if dryRun {
				_, err := fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Dry run: %d subjects not saved", len(subjects))))
				return err
			}

			_, store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			saved, err := store.SaveSubjects(ctx, subjects)
			if err != nil {
				return fmt.Errorf("failed to save subjects: %w", err)
			}
			_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d new subjects (%d already known)", saved, len(subjects)-saved)))
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse without saving")
	return cmd
}

func importFactorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factors <csv-file>",
		Short: "Load an emission factor catalog from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return common.NewUserError(fmt.Sprintf("cannot open %s", args[0]), err)
			}
			defer func() { _ = f.Close() }()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.ImportFactorsCSV(ctx, f)
			if err != nil {
				return fmt.Errorf("failed to import factors: %w", err)
			}
			if err := a.factors.Reindex(ctx); err != nil {
				a.logger.Warn("Semantic reindex failed, keyword search still works", "error", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d emission factors", n)))
			return err
		},
	}
	return cmd
}

// expandGlobs resolves each argument as a glob; literal paths that match
// nothing are kept so the open error names them.
func expandGlobs(patterns []string) ([]string, error) {
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, common.NewUserError(fmt.Sprintf("bad pattern %q", p), err)
		}
		if len(matches) == 0 {
			files = append(files, p)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}
