package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/framing"
	"editormcp/internal/infra/router"
	"editormcp/internal/infra/telemetry"
)

// Handler routes one parsed request to exactly one response.
type Handler interface {
	Route(ctx context.Context, req domain.Request) domain.Response
}

// HostOptions configures a Host.
type HostOptions struct {
	MaxRequests  int
	Window       time.Duration
	IdleTimeout  time.Duration
	StopTimeout  time.Duration
	MaxLineBytes int
	Logger       *zap.Logger
	Metrics      domain.Metrics
	Now          func() time.Time
}

// Metrics is a read-only snapshot of transport counters.
type Metrics struct {
	MessagesReceived   uint64     `json:"messagesReceived"`
	MessagesSent       uint64     `json:"messagesSent"`
	BytesReceived      uint64     `json:"bytesReceived"`
	BytesSent          uint64     `json:"bytesSent"`
	RateLimited        uint64     `json:"rateLimited"`
	AverageLatencyMs   float64    `json:"averageLatencyMs"`
	LatencySampleCount uint64     `json:"latencySampleCount"`
	UptimeSeconds      float64    `json:"uptimeSeconds"`
	LastRequestAt      *time.Time `json:"lastRequestAt,omitempty"`
}

// Host serves the line-delimited protocol over a reader/writer pair with a
// single background reader goroutine.
type Host struct {
	reader     *framing.LineReader
	ownsReader bool
	out        io.Writer
	handler    Handler
	opts       HostOptions
	logger     *zap.Logger
	metrics    domain.Metrics
	now        func() time.Time

	mu        sync.Mutex
	state     hostState
	writer    *framing.LineWriter
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	window      *RateWindow
	lastRequest time.Time

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	bytesReceived    atomic.Uint64
	bytesSent        atomic.Uint64
	rateLimited      atomic.Uint64
	latencyTotalNs   atomic.Int64
	latencySamples   atomic.Uint64
	lastRequestNs    atomic.Int64
}

type hostState int

const (
	hostIdle hostState = iota
	hostRunning
	hostStopped
)

// NewHost serves in until Stop, which also closes in when it is closable.
func NewHost(in io.Reader, out io.Writer, handler Handler, opts HostOptions) *Host {
	h := NewSharedHost(framing.NewLineReaderLimit(in, opts.MaxLineBytes), out, handler, opts)
	h.ownsReader = true
	return h
}

// NewSharedHost serves a reader that outlives the host. Stop cancels the
// read without closing the stream and lines not yet consumed stay with the
// reader for the next host.
func NewSharedHost(reader *framing.LineReader, out io.Writer, handler Handler, opts HostOptions) *Host {
	if opts.MaxRequests == 0 {
		opts.MaxRequests = domain.DefaultRateLimitMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = domain.DefaultRateLimitWindowSeconds * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = domain.DefaultIdleTimeoutSeconds * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = domain.DefaultStopTimeoutSeconds * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Host{
		reader:  reader,
		out:     out,
		handler: handler,
		opts:    opts,
		logger:  logger.Named("transport"),
		metrics: metrics,
		now:     now,
		window:  NewRateWindow(opts.MaxRequests, opts.Window),
		done:    make(chan struct{}),
	}
}

// Start launches the read loop. Calling Start on a running host is a no-op;
// a stopped host cannot be restarted.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case hostRunning:
		return nil
	case hostStopped:
		return domain.E(domain.CodeFailedPrecond, "transport.Start", "host already stopped", domain.ErrTransportClosed)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.writer = framing.NewLineWriter(h.out)
	h.cancel = cancel
	h.startedAt = h.now()
	h.state = hostRunning

	h.logger.Info("transport started",
		telemetry.EventField(telemetry.EventTransportStart),
		zap.Int("maxRequests", h.opts.MaxRequests),
		zap.Duration("window", h.opts.Window),
		zap.Int("maxLineBytes", h.reader.MaxLineBytes()),
	)
	go h.readLoop(loopCtx, h.reader, h.writer)
	return nil
}

// Stop cancels the read loop, closes the streams the host owns and waits a
// bounded time for the loop to exit.
func (h *Host) Stop() {
	h.mu.Lock()
	if h.state == hostIdle {
		close(h.done)
	}
	if h.state != hostRunning {
		h.state = hostStopped
		h.mu.Unlock()
		return
	}
	h.state = hostStopped
	reader, writer, cancel, done := h.reader, h.writer, h.cancel, h.done
	h.mu.Unlock()

	cancel()
	if h.ownsReader {
		if err := reader.Close(); err != nil {
			h.logger.Debug("close reader failed", zap.Error(err))
		}
	}
	if err := writer.Close(); err != nil {
		h.logger.Debug("close writer failed", zap.Error(err))
	}

	timer := time.NewTimer(h.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		h.logger.Info("transport stopped", telemetry.EventField(telemetry.EventTransportStop))
	case <-timer.C:
		h.logger.Warn("read loop did not stop within timeout",
			telemetry.EventField(telemetry.EventReadLoopStuck),
			zap.Duration("timeout", h.opts.StopTimeout),
		)
	}
}

// Done is closed when the read loop exits.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == hostRunning
}

func (h *Host) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

func (h *Host) Metrics() Metrics {
	h.mu.Lock()
	startedAt := h.startedAt
	running := h.state == hostRunning
	h.mu.Unlock()

	snapshot := Metrics{
		MessagesReceived:   h.messagesReceived.Load(),
		MessagesSent:       h.messagesSent.Load(),
		BytesReceived:      h.bytesReceived.Load(),
		BytesSent:          h.bytesSent.Load(),
		RateLimited:        h.rateLimited.Load(),
		LatencySampleCount: h.latencySamples.Load(),
	}
	if snapshot.LatencySampleCount > 0 {
		avg := time.Duration(h.latencyTotalNs.Load() / int64(snapshot.LatencySampleCount))
		snapshot.AverageLatencyMs = float64(avg) / float64(time.Millisecond)
	}
	if running && !startedAt.IsZero() {
		snapshot.UptimeSeconds = h.now().Sub(startedAt).Seconds()
	}
	if ns := h.lastRequestNs.Load(); ns != 0 {
		last := time.Unix(0, ns)
		snapshot.LastRequestAt = &last
	}
	return snapshot
}

func (h *Host) readLoop(ctx context.Context, reader *framing.LineReader, writer *framing.LineWriter) {
	defer close(h.done)
	for {
		line, err := reader.ReadLineContext(ctx)
		if errors.Is(err, framing.ErrLineTooLong) {
			h.rejectOversized(writer, reader.MaxLineBytes())
			continue
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				h.logger.Info("input stream ended", telemetry.EventField(telemetry.EventTransportStop))
			case errors.Is(err, domain.ErrTransportClosed):
			default:
				h.logger.Error("read failed", zap.Error(err))
			}
			return
		}
		h.handleLine(ctx, writer, []byte(line))
	}
}

func (h *Host) handleLine(ctx context.Context, writer *framing.LineWriter, line []byte) {
	now := h.now()
	h.checkIdle(now)
	h.lastRequest = now
	h.lastRequestNs.Store(now.UnixNano())

	if !h.window.Allow(now) {
		h.rejectRateLimited(writer, line)
		return
	}

	h.messagesReceived.Add(1)
	h.bytesReceived.Add(uint64(len(line) + 1))
	h.metrics.AddTransportBytes(domain.DirectionReceived, len(line)+1)

	req, perr := router.ParseRequest(line)
	if perr != nil {
		h.logger.Warn("parse request failed",
			telemetry.EventField(telemetry.EventParseError),
			zap.Int64("code", perr.Code),
			zap.String("message", perr.Message),
		)
		h.write(writer, router.ErrorResponseForLine(line, perr))
		return
	}

	start := time.Now()
	resp := h.handler.Route(ctx, req)
	h.latencyTotalNs.Add(int64(time.Since(start)))
	h.latencySamples.Add(1)
	h.write(writer, resp)
}

// rejectOversized answers a line that was discarded unread. Its id is
// unknown, so the error carries a null id.
func (h *Host) rejectOversized(writer *framing.LineWriter, maxLine int) {
	now := h.now()
	h.checkIdle(now)
	h.lastRequest = now
	h.lastRequestNs.Store(now.UnixNano())
	h.messagesReceived.Add(1)

	h.logger.Warn("request line too long",
		telemetry.EventField(telemetry.EventParseError),
		zap.Int("maxLineBytes", maxLine),
	)
	perr := domain.NewProtocolError(domain.ErrCodeInvalidRequest,
		fmt.Sprintf("Invalid Request: line exceeds %d bytes", maxLine),
		map[string]any{"maxLineBytes": maxLine},
	)
	h.write(writer, domain.NewErrorResponse(nil, perr))
}

func (h *Host) rejectRateLimited(writer *framing.LineWriter, line []byte) {
	h.rateLimited.Add(1)
	h.metrics.AddRateLimited()
	maxRequests := h.window.Max()
	windowSeconds := int(h.window.Window() / time.Second)
	perr := domain.NewProtocolError(domain.ErrCodeRateLimited,
		rateLimitMessage(maxRequests, windowSeconds),
		domain.RateLimitData{
			MaxRequests:   maxRequests,
			WindowSeconds: windowSeconds,
			RetryAfter:    windowSeconds,
		},
	)
	h.logger.Warn("request rate limited",
		telemetry.EventField(telemetry.EventRateLimited),
		zap.Int("maxRequests", maxRequests),
		zap.Int("windowSeconds", windowSeconds),
	)
	if _, err := writer.WriteJSON(domain.NewErrorResponse(router.RecoverID(line), perr)); err != nil {
		h.logWriteError(err)
	}
}

func (h *Host) write(writer *framing.LineWriter, resp domain.Response) {
	n, err := writer.WriteJSON(resp)
	if err != nil {
		h.logWriteError(err)
		return
	}
	h.messagesSent.Add(1)
	h.bytesSent.Add(uint64(n))
	h.metrics.AddTransportBytes(domain.DirectionSent, n)
}

func (h *Host) logWriteError(err error) {
	if errors.Is(err, domain.ErrTransportClosed) {
		h.logger.Debug("dropping response after close")
		return
	}
	h.logger.Error("write response failed", zap.Error(err))
}

func (h *Host) checkIdle(now time.Time) {
	if h.lastRequest.IsZero() {
		return
	}
	if idle := now.Sub(h.lastRequest); idle > h.opts.IdleTimeout {
		h.logger.Warn("client idle timeout exceeded",
			telemetry.EventField(telemetry.EventIdleTimeout),
			zap.Duration("idle", idle),
			zap.Duration("timeout", h.opts.IdleTimeout),
		)
	}
}

func rateLimitMessage(maxRequests, windowSeconds int) string {
	return fmt.Sprintf("Rate limited: Maximum %d requests per %d seconds exceeded", maxRequests, windowSeconds)
}
