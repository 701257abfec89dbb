package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/diagnostics"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/hostloop"
	"editormcp/internal/infra/registry"
	"editormcp/internal/infra/router"
	"editormcp/internal/infra/telemetry"
	"editormcp/internal/tools"
)

// ServeConfig is the resolved input of a serve run.
type ServeConfig struct {
	ConfigPath string
	Overrides  map[string]any
	Config     domain.Config
	IO         StdIO
}

func NewConfig(serve ServeConfig) domain.Config {
	return serve.Config
}

func NewStdIO(serve ServeConfig) StdIO {
	return serve.IO
}

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker()
}

func NewTier(cfg domain.Config) *TierHolder {
	return NewTierHolder(cfg.Tier)
}

func NewHostLoop(cfg domain.Config, logger *zap.Logger, health *telemetry.HealthTracker) *hostloop.Loop {
	return hostloop.New(hostloop.Options{
		TickInterval: time.Duration(cfg.Host.TickIntervalMs) * time.Millisecond,
		Logger:       logger,
		Health:       health,
	})
}

func NewDispatcherSlot() *dispatcher.Slot {
	return dispatcher.Default()
}

// NewToolProviders lists the tool modules registered at discovery.
func NewToolProviders(cfg domain.Config, tier domain.TierSource, slot *dispatcher.Slot) []registry.Provider {
	startedAt := time.Now()
	host := cfg.Host.Info()
	return []registry.Provider{
		tools.Platform(tools.Environment{
			ServerVersion: cfg.ServerVersion,
			Host:          func() domain.HostInfo { return host },
			Tier:          tier,
			Registry:      registry.Current,
			QueueDepth: func() int {
				if d := slot.Current(); d != nil {
					return d.QueueDepth()
				}
				return 0
			},
			StartedAt: func() time.Time { return startedAt },
		}),
	}
}

func NewDiscoverer(providers []registry.Provider, logger *zap.Logger, metrics domain.Metrics) *registry.Discoverer {
	return registry.NewDiscoverer(providers, registry.DiscovererOptions{Logger: logger, Metrics: metrics})
}

func NewRouter(cfg domain.Config, slot *dispatcher.Slot, tier domain.TierSource, logger *zap.Logger, metrics domain.Metrics) *router.Router {
	return router.New(router.Options{
		Dispatchers: slot,
		Tier:        tier,
		Timeout:     cfg.Dispatch.Timeout(),
		Logger:      logger,
		Metrics:     metrics,
	})
}

func ProvideServer(
	cfg domain.Config,
	tier domain.TierSource,
	discoverer *registry.Discoverer,
	loop *hostloop.Loop,
	slot *dispatcher.Slot,
	rt *router.Router,
	factory TransportFactory,
	logger *zap.Logger,
	metrics domain.Metrics,
) *Server {
	return NewServer(ServerOptions{
		Config:      cfg,
		Tier:        tier,
		Discoverer:  discoverer,
		Scheduler:   loop,
		Reloads:     loop,
		Dispatchers: slot,
		Handler:     rt,
		Transport:   factory,
		Logger:      logger,
		Metrics:     metrics,
	})
}

func NewConsoleCapture(cfg domain.Config, broadcaster *telemetry.LogBroadcaster) *diagnostics.ConsoleCapture {
	capture := diagnostics.NewConsoleCapture(cfg.Diagnostics.ConsoleEntries)
	capture.Attach(broadcaster)
	return capture
}

func NewExporter(serve ServeConfig, cfg domain.Config, tier domain.TierSource, console *diagnostics.ConsoleCapture, logger *zap.Logger) *diagnostics.Exporter {
	host := cfg.Host.Info()
	return diagnostics.NewExporter(diagnostics.ExporterOptions{
		Host:          func() domain.HostInfo { return host },
		ServerVersion: cfg.ServerVersion,
		Tier:          tier,
		Registry:      registry.Current,
		Console:       console,
		ConfigPath:    serve.ConfigPath,
		Logger:        logger,
	})
}
