package domain

const (
	ServerVersion                     = "0.1.0"
	MinHostVersion                    = "2022.3.0f1"
	PlatformCategory                  = "mcp.platform"
	DefaultDispatchTimeoutSeconds     = 30
	DefaultIdleTimeoutSeconds         = 30
	DefaultStopTimeoutSeconds         = 2
	DefaultRateLimitMaxRequests       = 100
	DefaultRateLimitWindowSeconds     = 5
	DefaultTickIntervalMs             = 10
	DefaultConsoleEntries             = 200
	DefaultObservabilityListenAddress = "127.0.0.1:9464"
	DefaultTransport                  = TransportStdio
	DefaultHostName                   = "editor"
	DefaultHostVersion                = "2022.3.20f1"
	DiagnosticsFileName               = "diagnostics.json"
)
