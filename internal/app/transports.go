package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/framing"
	"editormcp/internal/infra/mcpbridge"
	"editormcp/internal/infra/transport"
)

// StdIO is the byte stream pair a transport serves.
type StdIO struct {
	In  io.Reader
	Out io.Writer
}

// NewTransportFactory selects the transport configured by cfg.
func NewTransportFactory(cfg domain.Config, stdio StdIO, tier domain.TierSource, logger *zap.Logger, metrics domain.Metrics) (TransportFactory, error) {
	switch cfg.Transport.Kind {
	case domain.TransportStdio, "":
		return lineTransportFactory(cfg, stdio, logger, metrics), nil
	case domain.TransportMCP:
		return mcpTransportFactory(cfg, stdio, tier, logger), nil
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "app.NewTransportFactory",
			fmt.Sprintf("unsupported transport %q", cfg.Transport.Kind), nil)
	}
}

// lineTransportFactory shares one line reader across server starts, so a
// restart keeps the input stream open and loses no buffered lines.
func lineTransportFactory(cfg domain.Config, stdio StdIO, logger *zap.Logger, metrics domain.Metrics) TransportFactory {
	input := framing.NewLineReader(stdio.In)
	return func(handler transport.Handler) (Transport, error) {
		return transport.NewSharedHost(input, stdio.Out, handler, transport.HostOptions{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			IdleTimeout: time.Duration(cfg.Transport.IdleTimeoutSeconds) * time.Second,
			StopTimeout: time.Duration(cfg.Transport.StopTimeoutSeconds) * time.Second,
			Logger:      logger,
			Metrics:     metrics,
		}), nil
	}
}

func mcpTransportFactory(cfg domain.Config, stdio StdIO, tier domain.TierSource, logger *zap.Logger) TransportFactory {
	return func(handler transport.Handler) (Transport, error) {
		bridge := mcpbridge.New(mcpbridge.Options{
			Version: cfg.ServerVersion,
			Router:  handler,
			Tier:    tier,
			Logger:  logger,
		})
		return newMCPTransport(bridge, func() mcp.Transport {
			if stdio.In == os.Stdin && stdio.Out == os.Stdout {
				return &mcp.StdioTransport{}
			}
			return &mcp.IOTransport{Reader: readCloser(stdio.In), Writer: writeCloser(stdio.Out)}
		}, time.Duration(cfg.Transport.StopTimeoutSeconds)*time.Second, logger), nil
	}
}

// mcpTransport runs a go-sdk session for the lifetime of one server start.
type mcpTransport struct {
	bridge      *mcpbridge.Bridge
	connect     func() mcp.Transport
	stopTimeout time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

func newMCPTransport(bridge *mcpbridge.Bridge, connect func() mcp.Transport, stopTimeout time.Duration, logger *zap.Logger) *mcpTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stopTimeout <= 0 {
		stopTimeout = domain.DefaultStopTimeoutSeconds * time.Second
	}
	return &mcpTransport{
		bridge:      bridge,
		connect:     connect,
		stopTimeout: stopTimeout,
		logger:      logger.Named("mcp_transport"),
		done:        make(chan struct{}),
	}
}

func (t *mcpTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.startedAt = time.Now()

	go func() {
		defer close(t.done)
		err := t.bridge.Run(runCtx, t.connect())
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			t.logger.Warn("mcp session ended", zap.Error(err))
		}
	}()
	return nil
}

func (t *mcpTransport) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-t.done:
	case <-time.After(t.stopTimeout):
		t.logger.Warn("mcp session did not stop within timeout", zap.Duration("timeout", t.stopTimeout))
	}
}

func (t *mcpTransport) Done() <-chan struct{} {
	return t.done
}

func (t *mcpTransport) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

func (t *mcpTransport) Sync() int {
	return t.bridge.Sync()
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return nopReadCloser{r}
}

func writeCloser(w io.Writer) io.WriteCloser {
	if wc, ok := w.(io.WriteCloser); ok {
		return wc
	}
	return nopWriteCloser{w}
}
