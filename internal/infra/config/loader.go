package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"editormcp/internal/domain"
)

// Loader reads runtime configuration from YAML files.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tier", domain.TierCore.String())
	v.SetDefault("serverVersion", domain.ServerVersion)
	v.SetDefault("dispatch.timeoutSeconds", domain.DefaultDispatchTimeoutSeconds)
	v.SetDefault("transport.kind", string(domain.DefaultTransport))
	v.SetDefault("transport.idleTimeoutSeconds", domain.DefaultIdleTimeoutSeconds)
	v.SetDefault("transport.stopTimeoutSeconds", domain.DefaultStopTimeoutSeconds)
	v.SetDefault("rateLimit.maxRequests", domain.DefaultRateLimitMaxRequests)
	v.SetDefault("rateLimit.windowSeconds", domain.DefaultRateLimitWindowSeconds)
	v.SetDefault("host.name", domain.DefaultHostName)
	v.SetDefault("host.version", domain.DefaultHostVersion)
	v.SetDefault("host.platform", runtime.GOOS)
	v.SetDefault("host.tickIntervalMs", domain.DefaultTickIntervalMs)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.metrics", false)
	v.SetDefault("observability.healthz", false)
	v.SetDefault("diagnostics.dir", "")
	v.SetDefault("diagnostics.consoleEntries", domain.DefaultConsoleEntries)
}

type rawConfig struct {
	Tier          string              `mapstructure:"tier"`
	ServerVersion string              `mapstructure:"serverVersion"`
	Dispatch      rawDispatchConfig   `mapstructure:"dispatch"`
	Transport     rawTransportConfig  `mapstructure:"transport"`
	RateLimit     rawRateLimitConfig  `mapstructure:"rateLimit"`
	Host          rawHostConfig       `mapstructure:"host"`
	Observability rawObservability    `mapstructure:"observability"`
	Diagnostics   rawDiagnosticConfig `mapstructure:"diagnostics"`
}

type rawDispatchConfig struct {
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type rawTransportConfig struct {
	Kind               string `mapstructure:"kind"`
	IdleTimeoutSeconds int    `mapstructure:"idleTimeoutSeconds"`
	StopTimeoutSeconds int    `mapstructure:"stopTimeoutSeconds"`
}

type rawRateLimitConfig struct {
	MaxRequests   int `mapstructure:"maxRequests"`
	WindowSeconds int `mapstructure:"windowSeconds"`
}

type rawHostConfig struct {
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	Platform       string `mapstructure:"platform"`
	TickIntervalMs int    `mapstructure:"tickIntervalMs"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
	Metrics       bool   `mapstructure:"metrics"`
	Healthz       bool   `mapstructure:"healthz"`
}

type rawDiagnosticConfig struct {
	Dir            string `mapstructure:"dir"`
	ConsoleEntries int    `mapstructure:"consoleEntries"`
}

// Load reads path (optional) and applies overrides keyed by config key.
// An empty path yields the defaults.
func (l *Loader) Load(ctx context.Context, path string, overrides map[string]any) (domain.Config, error) {
	v := newViper()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.Config{}, fmt.Errorf("read config: %w", err)
		}
		expanded, missing, err := expandEnv(data)
		if err != nil {
			return domain.Config{}, err
		}
		if len(missing) > 0 {
			l.logger.Warn("missing environment variables in config", zap.String("path", path), zap.Strings("missing", missing))
		}
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return domain.Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	cfg, errs := normalize(raw)
	if len(errs) > 0 {
		return domain.Config{}, domain.E(domain.CodeInvalidArgument, "config.Load", strings.Join(errs, "; "), errors.New("invalid config"))
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() domain.Config {
	cfg, err := NewLoader(nil).Load(context.Background(), "", nil)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func normalize(raw rawConfig) (domain.Config, []string) {
	var errs []string

	tier, err := domain.ParseTier(raw.Tier)
	if err != nil {
		errs = append(errs, fmt.Sprintf("tier: %v", err))
	}
	kind := domain.NormalizeTransport(domain.TransportKind(raw.Transport.Kind))
	if kind != domain.TransportStdio && kind != domain.TransportMCP {
		errs = append(errs, "transport.kind must be stdio or mcp")
	}
	if raw.Dispatch.TimeoutSeconds <= 0 {
		errs = append(errs, "dispatch.timeoutSeconds must be > 0")
	}
	if raw.Transport.IdleTimeoutSeconds < 0 {
		errs = append(errs, "transport.idleTimeoutSeconds must be >= 0")
	}
	if raw.Transport.StopTimeoutSeconds <= 0 {
		errs = append(errs, "transport.stopTimeoutSeconds must be > 0")
	}
	if raw.RateLimit.MaxRequests <= 0 {
		errs = append(errs, "rateLimit.maxRequests must be > 0")
	}
	if raw.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, "rateLimit.windowSeconds must be > 0")
	}
	if raw.Host.TickIntervalMs <= 0 {
		errs = append(errs, "host.tickIntervalMs must be > 0")
	}
	if strings.TrimSpace(raw.Host.Version) == "" {
		errs = append(errs, "host.version is required")
	}
	if raw.Diagnostics.ConsoleEntries < 0 {
		errs = append(errs, "diagnostics.consoleEntries must be >= 0")
	}
	serverVersion := strings.TrimSpace(raw.ServerVersion)
	if serverVersion == "" {
		serverVersion = domain.ServerVersion
	}

	return domain.Config{
		Tier:          tier,
		ServerVersion: serverVersion,
		Dispatch:      domain.DispatchConfig{TimeoutSeconds: raw.Dispatch.TimeoutSeconds},
		Transport: domain.TransportConfig{
			Kind:               kind,
			IdleTimeoutSeconds: raw.Transport.IdleTimeoutSeconds,
			StopTimeoutSeconds: raw.Transport.StopTimeoutSeconds,
		},
		RateLimit: domain.RateLimitConfig{
			MaxRequests:   raw.RateLimit.MaxRequests,
			WindowSeconds: raw.RateLimit.WindowSeconds,
		},
		Host: domain.HostConfig{
			Name:           strings.TrimSpace(raw.Host.Name),
			Version:        strings.TrimSpace(raw.Host.Version),
			Platform:       strings.TrimSpace(raw.Host.Platform),
			TickIntervalMs: raw.Host.TickIntervalMs,
		},
		Observability: domain.ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
			Metrics:       raw.Observability.Metrics,
			Healthz:       raw.Observability.Healthz,
		},
		Diagnostics: domain.DiagnosticsConfig{
			Dir:            strings.TrimSpace(raw.Diagnostics.Dir),
			ConsoleEntries: raw.Diagnostics.ConsoleEntries,
		},
	}, errs
}
