//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"editormcp/internal/domain"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewLogBroadcaster,
	NewConfig,
	NewStdIO,
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
	NewTier,
	wire.Bind(new(domain.TierSource), new(*TierHolder)),
	NewHostLoop,
	NewDispatcherSlot,
)

var ServerSet = wire.NewSet(
	NewToolProviders,
	NewDiscoverer,
	NewRouter,
	NewTransportFactory,
	ProvideServer,
)

var DiagnosticsSet = wire.NewSet(
	NewConsoleCapture,
	NewExporter,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	ServerSet,
	DiagnosticsSet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
