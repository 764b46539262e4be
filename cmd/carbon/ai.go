package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-carbon-must-flow/internal/cli"
	"github.com/Veraticus/the-carbon-must-flow/internal/config"
	"github.com/Veraticus/the-carbon-must-flow/internal/llm"
)

func aiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Inspect the AI providers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which providers are configured and active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			gateway := llm.NewFromConfig(cfg.AI, nil)
			defer gateway.Close()

			out := cmd.OutOrStdout()
			for _, h := range gateway.Health() {
				status := cli.FormatWarning(h.Name + ": no API key")
				if h.Available {
					status = cli.FormatSuccess(fmt.Sprintf("%s: %s", h.Name, h.Model))
				}
				if h.Active {
					status += " (active)"
				}
				if _, err := fmt.Fprintln(out, status); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}
