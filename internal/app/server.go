package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/hostversion"
	"editormcp/internal/infra/registry"
	"editormcp/internal/infra/telemetry"
	"editormcp/internal/infra/transport"
)

// Transport is a protocol surface started and stopped by the Server.
type Transport interface {
	Start(ctx context.Context) error
	Stop()
	Done() <-chan struct{}
	StartedAt() time.Time
}

// TransportFactory builds a fresh transport for every server start.
type TransportFactory func(handler transport.Handler) (Transport, error)

// registrySyncer is implemented by transports that mirror the registry.
type registrySyncer interface {
	Sync() int
}

// ServerOptions captures the dependencies of a Server.
type ServerOptions struct {
	Config      domain.Config
	Tier        domain.TierSource
	Discoverer  *registry.Discoverer
	Scheduler   domain.Scheduler
	Reloads     domain.ReloadNotifier
	Dispatchers *dispatcher.Slot
	Handler     transport.Handler
	Transport   TransportFactory
	Logger      *zap.Logger
	Metrics     domain.Metrics
}

// Server owns the lifecycle of registry, dispatcher and transport.
type Server struct {
	cfg          domain.Config
	tier         domain.TierSource
	discoverer   *registry.Discoverer
	scheduler    domain.Scheduler
	reloads      domain.ReloadNotifier
	dispatchers  *dispatcher.Slot
	handler      transport.Handler
	newTransport TransportFactory
	logger       *zap.Logger
	metrics      domain.Metrics

	mu          sync.Mutex
	running     bool
	transport   Transport
	unsubscribe func()
}

func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tier := opts.Tier
	if tier == nil {
		tier = domain.StaticTier(opts.Config.Tier)
	}
	slot := opts.Dispatchers
	if slot == nil {
		slot = dispatcher.Default()
	}
	return &Server{
		cfg:          opts.Config,
		tier:         tier,
		discoverer:   opts.Discoverer,
		scheduler:    opts.Scheduler,
		reloads:      opts.Reloads,
		dispatchers:  slot,
		handler:      opts.Handler,
		newTransport: opts.Transport,
		logger:       logger.Named("server"),
		metrics:      metrics,
	}
}

// Start validates the host, discovers tools, installs a dispatcher and
// starts the transport.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.E(domain.CodeFailedPrecond, "app.Server.Start", "server is already running", domain.ErrServerRunning)
	}
	if err := hostversion.Validate(s.cfg.Host.Version); err != nil {
		return err
	}

	reg := s.installRegistry()
	s.installDispatcher()
	if s.reloads != nil {
		s.unsubscribe = s.reloads.OnReload(s.handleReload)
	}

	t, err := s.newTransport(s.handler)
	if err == nil {
		err = t.Start(ctx)
	}
	if err != nil {
		s.teardown()
		return domain.Wrap(domain.CodeUnavailable, "app.Server.Start", err)
	}
	s.transport = t
	s.running = true

	s.logger.Info("server started",
		telemetry.EventField(telemetry.EventServerStart),
		zap.String("transport", string(s.cfg.Transport.Kind)),
		zap.String("tier", s.tier.CurrentTier().String()),
		zap.Int("tools", reg.Count()),
		zap.String("hostVersion", s.cfg.Host.Version),
	)
	return nil
}

// Stop releases queued work and stops the transport. It is idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	t := s.transport
	s.transport = nil
	s.teardown()
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	s.logger.Info("server stopped", telemetry.EventField(telemetry.EventServerStop))
}

// Restart stops and starts the server.
func (s *Server) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Running reports whether the server has been started and not stopped.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the running transport ends on its own, for example
// at end of input. It is nil when the server is not running.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return nil
	}
	return s.transport.Done()
}

// Status reports the lifecycle snapshot.
func (s *Server) Status() domain.ServerStatus {
	s.mu.Lock()
	running := s.running
	var startedAt *time.Time
	if s.transport != nil {
		if at := s.transport.StartedAt(); !at.IsZero() {
			startedAt = &at
		}
	}
	s.mu.Unlock()

	tier := s.tier.CurrentTier()
	categories := registry.Current().Categories(tier)
	if categories == nil {
		categories = []string{}
	}
	return domain.ServerStatus{
		ServerVersion:         s.cfg.ServerVersion,
		HostVersion:           s.cfg.Host.Version,
		Platform:              s.cfg.Host.Platform,
		EnabledToolCategories: categories,
		Tier:                  tier.String(),
		Running:               running,
		TransportStartedAt:    startedAt,
	}
}

// handleReload runs on the privileged thread when the host reloads its
// modules: queued work is released, tools are rediscovered and a fresh
// dispatcher is installed.
func (s *Server) handleReload() {
	released := 0
	if prev := s.dispatchers.Current(); prev != nil {
		released = prev.Detach()
	}
	reg := s.installRegistry()
	s.installDispatcher()
	s.metrics.AddReload()

	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if syncer, ok := t.(registrySyncer); ok {
		syncer.Sync()
	}

	s.logger.Info("host reload applied",
		telemetry.EventField(telemetry.EventDispatchReload),
		zap.Int("released", released),
		zap.Int("tools", reg.Count()),
		zap.Uint64("revision", reg.Revision()),
	)
}

func (s *Server) installRegistry() *registry.Registry {
	reg := registry.Empty()
	if s.discoverer != nil {
		reg = s.discoverer.DiscoverTools(true)
	}
	registry.SetCurrent(reg)
	return reg
}

func (s *Server) installDispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(dispatcher.Options{
		Scheduler: s.scheduler,
		Timeout:   s.cfg.Dispatch.Timeout(),
		Logger:    s.logger,
		Metrics:   s.metrics,
		Slot:      s.dispatchers,
	})
}

// teardown must be called with s.mu held.
func (s *Server) teardown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if d := s.dispatchers.Current(); d != nil {
		d.Detach()
	}
}
