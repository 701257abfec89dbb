package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"editormcp/internal/app"
)

func newDiagnosticsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Diagnostics helpers",
	}
	cmd.AddCommand(newDiagnosticsExportCmd(opts))
	return cmd
}

func newDiagnosticsExportCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a diagnostics snapshot to disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), opts, cmd.Flags())
			if err != nil {
				return err
			}
			logging := app.NewLogging(app.LoggingConfig{Logger: opts.logger})
			console := app.NewConsoleCapture(cfg, app.NewLogBroadcaster(logging))
			serve := app.ServeConfig{ConfigPath: opts.configPath, Config: cfg}
			tier := app.NewTier(cfg)

			app.BuildCatalog(cfg, app.NewLogger(logging))
			exporter := app.NewExporter(serve, cfg, tier, console, app.NewLogger(logging))
			path, err := exporter.Export(cmd.Context(), cfg.Diagnostics.Dir)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(map[string]string{"path": path})
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().String("diagnostics-dir", "", "directory to write the snapshot to")
	return cmd
}
