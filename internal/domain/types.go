package domain

import (
	"strings"
	"time"
)

type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportMCP   TransportKind = "mcp"
)

func NormalizeTransport(transport TransportKind) TransportKind {
	trimmed := strings.ToLower(strings.TrimSpace(string(transport)))
	switch trimmed {
	case "", "stdio", "line":
		return TransportStdio
	case "mcp", "mcp-stdio":
		return TransportMCP
	default:
		return TransportKind(trimmed)
	}
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Tier          Tier
	ServerVersion string
	Dispatch      DispatchConfig
	Transport     TransportConfig
	RateLimit     RateLimitConfig
	Host          HostConfig
	Observability ObservabilityConfig
	Diagnostics   DiagnosticsConfig
}

type DispatchConfig struct {
	TimeoutSeconds int
}

func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TransportConfig struct {
	Kind               TransportKind
	IdleTimeoutSeconds int
	StopTimeoutSeconds int
}

type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type HostConfig struct {
	Name           string
	Version        string
	Platform       string
	TickIntervalMs int
}

func (c HostConfig) Info() HostInfo {
	return HostInfo{Name: c.Name, Version: c.Version, Platform: c.Platform}
}

type ObservabilityConfig struct {
	ListenAddress string
	Metrics       bool
	Healthz       bool
}

type DiagnosticsConfig struct {
	Dir            string
	ConsoleEntries int
}
