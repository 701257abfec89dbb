package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"editormcp/internal/app"
)

func newSelfTestCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Run one tool call through an in-memory transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), opts, cmd.Flags())
			if err != nil {
				return err
			}
			report, err := app.RunSelfTest(cmd.Context(), cfg, opts.logger)
			if opts.jsonOutput {
				if werr := writeJSON(report); werr != nil {
					return werr
				}
			}
			if err != nil {
				return exitWith(1, err.Error())
			}
			if !opts.jsonOutput {
				fmt.Printf("ok %s in %s\n", report.Tool, report.Duration)
			}
			return nil
		},
	}
}
