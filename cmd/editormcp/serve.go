package main

import (
	"os"

	"github.com/spf13/cobra"

	"editormcp/internal/app"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tool calls over stdin and stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			overrides := flagOverrides(cmd.Flags())
			cfg, err := loadConfig(ctx, opts, cmd.Flags())
			if err != nil {
				return err
			}
			application, err := app.InitializeApplication(ctx, app.ServeConfig{
				ConfigPath: opts.configPath,
				Overrides:  overrides,
				Config:     cfg,
				IO:         app.StdIO{In: os.Stdin, Out: os.Stdout},
			}, app.LoggingConfig{Logger: opts.logger})
			if err != nil {
				return err
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().String("transport", "", "transport: stdio (line-delimited) or mcp (Model Context Protocol session)")
	cmd.Flags().Int("dispatch-timeout", 0, "seconds a queued tool call may wait for the host thread")
	cmd.Flags().Int("idle-timeout", 0, "seconds without input before an idle warning is logged")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address")
	return cmd
}
