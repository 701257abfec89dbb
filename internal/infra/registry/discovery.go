package registry

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/telemetry"
)

// Registration pairs a definition with its handler.
type Registration struct {
	Definition domain.ToolDefinition
	Handler    domain.ToolHandler
}

// Provider is a source of tool registrations, typically one tool module.
type Provider interface {
	Name() string
	Registrations() []Registration
}

// StaticProvider serves a fixed registration table.
type StaticProvider struct {
	ProviderName string
	Tools        []Registration
}

func (p StaticProvider) Name() string {
	return p.ProviderName
}

func (p StaticProvider) Registrations() []Registration {
	return p.Tools
}

// DiscovererOptions configures a Discoverer.
type DiscovererOptions struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
}

// Discoverer builds registries from the configured providers.
type Discoverer struct {
	mu        sync.Mutex
	providers []Provider
	logger    *zap.Logger
	metrics   domain.Metrics
	last      *Registry
}

func NewDiscoverer(providers []Provider, opts DiscovererOptions) *Discoverer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		providers: append([]Provider(nil), providers...),
		logger:    logger.Named("registry"),
		metrics:   opts.Metrics,
	}
}

// DiscoverTools rebuilds the registry from every provider. Without force,
// a previous result is reused. Invalid candidates are skipped and logged.
func (d *Discoverer) DiscoverTools(force bool) *Registry {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last != nil && !force {
		return d.last
	}

	builder := NewBuilder(d.logger)
	skipped := 0
	for _, provider := range d.providers {
		if provider == nil {
			continue
		}
		for _, reg := range provider.Registrations() {
			def := reg.Definition
			if def.Source == "" {
				def.Source = provider.Name()
			}
			if err := builder.Register(def, reg.Handler); err != nil {
				skipped++
				level := d.logger.Warn
				if !errors.Is(err, domain.ErrInvalidToolID) {
					level = d.logger.Error
				}
				level("skip tool registration",
					telemetry.EventField(telemetry.EventToolSkipped),
					telemetry.ToolIDField(def.ID),
					zap.String("provider", provider.Name()),
					zap.Error(err),
				)
			}
		}
	}

	reg := builder.Build()
	d.last = reg
	if d.metrics != nil {
		d.metrics.SetRegisteredTools(reg.Count())
	}
	d.logger.Info("tools discovered",
		telemetry.EventField(telemetry.EventToolsDiscovered),
		zap.Int("count", reg.Count()),
		zap.Int("duplicates", len(reg.Duplicates())),
		zap.Int("skipped", skipped),
		zap.Uint64("revision", reg.Revision()),
	)
	return reg
}

// Last returns the most recent discovery result, or nil.
func (d *Discoverer) Last() *Registry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
