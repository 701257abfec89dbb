package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"editormcp/internal/app"
	"editormcp/internal/domain"
	"editormcp/internal/infra/config"
)

type cliOptions struct {
	configPath string
	logLevel   string
	tier       string
	jsonOutput bool
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "editormcp",
		Short:         "MCP bridge between AI clients and the editor host",
		Version:       app.Version + " (" + app.Build + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := app.NewProcessLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.tier, "tier", "", "license tier override (core, pro, studio, enterprise)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newServeCmd(&opts),
		newToolsCmd(&opts),
		newDescribeCmd(&opts),
		newSelfTestCmd(&opts),
		newDiagnosticsCmd(&opts),
		newValidateCmd(&opts),
	)
	return root
}

// flagOverrides maps explicitly set flags onto config keys so they win
// over the config file and environment.
func flagOverrides(flags *pflag.FlagSet) map[string]any {
	overrides := map[string]any{}
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "tier":
			overrides["tier"], _ = flags.GetString("tier")
		case "transport":
			overrides["transport.kind"], _ = flags.GetString("transport")
		case "dispatch-timeout":
			overrides["dispatch.timeoutSeconds"], _ = flags.GetInt("dispatch-timeout")
		case "idle-timeout":
			overrides["transport.idleTimeoutSeconds"], _ = flags.GetInt("idle-timeout")
		case "metrics-addr":
			addr, _ := flags.GetString("metrics-addr")
			overrides["observability.listenAddress"] = addr
			overrides["observability.metrics"] = addr != ""
			overrides["observability.healthz"] = addr != ""
		case "diagnostics-dir":
			overrides["diagnostics.dir"], _ = flags.GetString("diagnostics-dir")
		}
	})
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

func loadConfig(ctx context.Context, opts *cliOptions, flags *pflag.FlagSet) (domain.Config, error) {
	return config.NewLoader(opts.logger).Load(ctx, opts.configPath, flagOverrides(flags))
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
