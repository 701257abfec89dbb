package app

import (
	"context"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/config"
	"editormcp/internal/infra/dispatcher"
	"editormcp/internal/infra/hostversion"
	"editormcp/internal/infra/registry"
)

// BuildCatalog discovers the tools a server with cfg would register,
// without starting anything.
func BuildCatalog(cfg domain.Config, logger *zap.Logger) *registry.Registry {
	tier := NewTierHolder(cfg.Tier)
	providers := NewToolProviders(cfg, tier, &dispatcher.Slot{})
	reg := NewDiscoverer(providers, logger, nil).DiscoverTools(true)
	registry.SetCurrent(reg)
	return reg
}

// ValidateConfig loads the configuration at path and checks the host
// version it declares.
func ValidateConfig(ctx context.Context, path string, overrides map[string]any, logger *zap.Logger) (domain.Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.NewLoader(logger).Load(ctx, path, overrides)
	if err != nil {
		return domain.Config{}, err
	}
	if err := hostversion.Validate(cfg.Host.Version); err != nil {
		return domain.Config{}, err
	}
	logger.Info("configuration validated",
		zap.String("config", path),
		zap.String("tier", cfg.Tier.String()),
		zap.String("transport", string(cfg.Transport.Kind)),
	)
	return cfg, nil
}
