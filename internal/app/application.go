package app

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/config"
	"editormcp/internal/infra/diagnostics"
	"editormcp/internal/infra/hostloop"
	"editormcp/internal/infra/telemetry"
)

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	Serve    ServeConfig
	Config   domain.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Health   *telemetry.HealthTracker
	Tier     *TierHolder
	Loop     *hostloop.Loop
	Server   *Server
	Console  *diagnostics.ConsoleCapture
	Exporter *diagnostics.Exporter
}

// Application wires the host loop, server and ambient services together.
type Application struct {
	serve    ServeConfig
	cfg      domain.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	health   *telemetry.HealthTracker
	tier     *TierHolder
	loop     *hostloop.Loop
	server   *Server
	console  *diagnostics.ConsoleCapture
	exporter *diagnostics.Exporter

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApplication(opts ApplicationOptions) *Application {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		serve:    opts.Serve,
		cfg:      opts.Config,
		logger:   logger.Named("app"),
		registry: opts.Registry,
		health:   opts.Health,
		tier:     opts.Tier,
		loop:     opts.Loop,
		server:   opts.Server,
		console:  opts.Console,
		exporter: opts.Exporter,
	}
}

// Start launches the host loop, the server and the background services.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return domain.E(domain.CodeFailedPrecond, "app.Application.Start", "application is already running", domain.ErrServerRunning)
	}

	bgCtx, cancel := context.WithCancel(ctx)
	a.loop.Start(bgCtx)
	if err := a.server.Start(bgCtx); err != nil {
		cancel()
		a.loop.Stop()
		return err
	}
	a.cancel = cancel

	obs := a.cfg.Observability
	if obs.Metrics || obs.Healthz {
		a.spawn(func() {
			err := telemetry.StartHTTPServer(bgCtx, telemetry.HTTPServerOptions{
				Addr:          obs.ListenAddress,
				EnableMetrics: obs.Metrics,
				EnableHealthz: obs.Healthz,
				Health:        a.health,
				Registry:      a.registry,
				Status:        func() any { return a.server.Status() },
				Diagnostics:   a.ExportDiagnostics,
			}, a.logger)
			if err != nil {
				a.logger.Warn("observability server failed", zap.Error(err))
			}
		})
	}

	if a.serve.ConfigPath != "" {
		watcher := config.NewWatcher(a.serve.ConfigPath, config.WatcherOptions{
			Overrides: a.serve.Overrides,
			Logger:    a.logger,
			OnChange:  a.applyConfig,
		})
		a.spawn(func() {
			if err := watcher.Run(bgCtx); err != nil {
				a.logger.Warn("config watcher stopped", zap.Error(err))
			}
		})
	}
	return nil
}

// Stop stops the server, background services and the host loop.
func (a *Application) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}

	a.server.Stop()
	cancel()
	a.loop.Stop()
	a.wg.Wait()
}

// Run starts the application and blocks until ctx is done or the
// transport reaches end of input.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-a.server.Done():
		a.logger.Info("transport input closed")
		return nil
	}
}

// Server returns the lifecycle-managed server.
func (a *Application) Server() *Server {
	return a.server
}

// Exporter returns the diagnostics exporter.
func (a *Application) Exporter() *diagnostics.Exporter {
	return a.exporter
}

// ExportDiagnostics writes a diagnostics snapshot from the privileged
// thread so the registry and host state are read where the host owns them.
func (a *Application) ExportDiagnostics(ctx context.Context) (string, error) {
	var (
		path      string
		exportErr error
	)
	err := a.loop.Run(ctx, func(pctx context.Context) {
		path, exportErr = a.exporter.Export(pctx, a.cfg.Diagnostics.Dir)
	})
	if err != nil {
		return "", err
	}
	return path, exportErr
}

// Reload simulates a host module reload.
func (a *Application) Reload() {
	a.loop.Reload()
}

func (a *Application) applyConfig(cfg domain.Config) {
	a.logger.Info("config changed",
		telemetry.EventField(telemetry.EventConfigReload),
		zap.String("tier", cfg.Tier.String()),
	)
	if a.tier.Set(cfg.Tier) {
		a.loop.Reload()
	}
	if cfg.Transport != a.cfg.Transport || cfg.RateLimit != a.cfg.RateLimit || cfg.Dispatch != a.cfg.Dispatch {
		a.logger.Warn("changed settings take effect on restart")
	}
}

func (a *Application) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}
