package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"editormcp/internal/app"
)

func newValidateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ValidateConfig(cmd.Context(), opts.configPath, flagOverrides(cmd.Flags()), opts.logger)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]any{
					"valid":     true,
					"tier":      cfg.Tier.String(),
					"transport": cfg.Transport.Kind,
					"host":      cfg.Host.Info(),
				})
			}
			fmt.Printf("config ok: tier=%s transport=%s host=%s\n", cfg.Tier, cfg.Transport.Kind, cfg.Host.Version)
			return nil
		},
	}
}
