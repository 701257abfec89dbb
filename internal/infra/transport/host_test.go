package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"editormcp/internal/domain"
	"editormcp/internal/infra/framing"
	"editormcp/internal/infra/telemetry"
)

type fakeHandler struct {
	calls atomic.Int32
}

func (f *fakeHandler) Route(_ context.Context, req domain.Request) domain.Response {
	f.calls.Add(1)
	return domain.NewResultResponse(req.ID, domain.ToolCallResult{Tool: "echo", Output: map[string]any{"method": req.Method}})
}

type hostHarness struct {
	host    *Host
	input   *io.PipeWriter
	lines   chan string
	handler *fakeHandler
}

func newHarness(t *testing.T, opts HostOptions) *hostHarness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	handler := &fakeHandler{}
	host := NewHost(inR, outW, handler, opts)

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	require.NoError(t, host.Start(context.Background()))
	t.Cleanup(func() {
		_ = inW.Close()
		host.Stop()
		_ = outW.Close()
	})
	return &hostHarness{host: host, input: inW, lines: lines, handler: handler}
}

func (h *hostHarness) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(h.input, line+"\n")
	require.NoError(t, err)
}

func (h *hostHarness) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case line := <-h.lines:
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		return decoded
	case <-time.After(2 * time.Second):
		t.Fatal("no response line")
		return nil
	}
}

func TestHostRoutesRequestsAndTracksMetrics(t *testing.T) {
	h := newHarness(t, HostOptions{})

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"tool":"echo"}}`)
	resp := h.next(t)
	require.Equal(t, float64(1), resp["id"])
	require.Equal(t, "echo", resp["result"].(map[string]any)["tool"])

	h.send(t, `{"jsonrpc":"2.0","id":"two","method":"tools/call","params":{"tool":"echo"}}`)
	resp = h.next(t)
	require.Equal(t, "two", resp["id"])

	require.Eventually(t, func() bool { return h.host.Metrics().MessagesSent == 2 }, time.Second, time.Millisecond)
	metrics := h.host.Metrics()
	require.Equal(t, uint64(2), metrics.MessagesReceived)
	require.Equal(t, uint64(2), metrics.LatencySampleCount)
	require.Greater(t, metrics.BytesReceived, uint64(0))
	require.Greater(t, metrics.BytesSent, uint64(0))
	require.NotNil(t, metrics.LastRequestAt)
	require.True(t, h.host.Running())
}

func TestHostParseErrorUsesNullID(t *testing.T) {
	h := newHarness(t, HostOptions{})

	h.send(t, `{"jsonrpc":"2.0","id":1,`)
	resp := h.next(t)
	require.Contains(t, resp, "id")
	require.Nil(t, resp["id"])
	require.Equal(t, float64(domain.ErrCodeParseError), resp["error"].(map[string]any)["code"])
	require.Equal(t, int32(0), h.handler.calls.Load())

	h.send(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"tool":"echo"}}`)
	require.Equal(t, float64(2), h.next(t)["id"])
}

func TestHostRateLimitsWithoutRouting(t *testing.T) {
	h := newHarness(t, HostOptions{MaxRequests: 2, Window: 5 * time.Second})

	for i := 1; i <= 2; i++ {
		h.send(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"tool":"echo"}}`)
		require.Contains(t, h.next(t), "result")
	}

	h.send(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"tool":"echo"}}`)
	resp := h.next(t)
	require.Equal(t, float64(3), resp["id"])
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(domain.ErrCodeRateLimited), errObj["code"])
	require.Equal(t, "Rate limited: Maximum 2 requests per 5 seconds exceeded", errObj["message"])
	require.Equal(t, map[string]any{"maxRequests": float64(2), "windowSeconds": float64(5), "retryAfter": float64(5)}, errObj["data"])

	require.Equal(t, int32(2), h.handler.calls.Load())
	require.Eventually(t, func() bool { return h.host.Metrics().RateLimited == 1 }, time.Second, time.Millisecond)
	metrics := h.host.Metrics()
	require.Equal(t, uint64(1), metrics.RateLimited)
	require.Equal(t, uint64(2), metrics.MessagesReceived)
	require.Equal(t, uint64(2), metrics.MessagesSent)
	require.Equal(t, uint64(2), metrics.LatencySampleCount)
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestHostRateWindowSlidesAtDefaults(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1000, 0)}
	h := newHarness(t, HostOptions{Now: clock.Now})
	request := func(id int) string {
		return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"tool":"echo"}}`, id)
	}

	for id := 1; id <= domain.DefaultRateLimitMaxRequests; id++ {
		h.send(t, request(id))
		resp := h.next(t)
		require.Equal(t, float64(id), resp["id"])
		require.Contains(t, resp, "result")
	}

	h.send(t, request(101))
	resp := h.next(t)
	require.Equal(t, float64(101), resp["id"])
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(domain.ErrCodeRateLimited), errObj["code"])
	require.Equal(t, "Rate limited: Maximum 100 requests per 5 seconds exceeded", errObj["message"])

	clock.Advance(domain.DefaultRateLimitWindowSeconds * time.Second)
	h.send(t, request(102))
	resp = h.next(t)
	require.Equal(t, float64(102), resp["id"])
	require.Contains(t, resp, "result")
	require.NotContains(t, resp, "error")

	require.Equal(t, int32(101), h.handler.calls.Load())
	require.Eventually(t, func() bool { return h.host.Metrics().MessagesSent == 101 }, time.Second, time.Millisecond)
	require.Equal(t, uint64(1), h.host.Metrics().RateLimited)
}

func TestHostWarnsOnIdleGap(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := &steppingClock{now: time.Unix(1000, 0)}
	h := newHarness(t, HostOptions{IdleTimeout: 30 * time.Second, Logger: zap.New(core), Now: clock.Now})

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"tool":"echo"}}`)
	h.next(t)
	require.Zero(t, logs.FilterField(telemetry.EventField(telemetry.EventIdleTimeout)).Len())

	clock.Advance(31 * time.Second)
	h.send(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"tool":"echo"}}`)
	require.Contains(t, h.next(t), "result", "idle timeout is log-only")
	require.Equal(t, 1, logs.FilterField(telemetry.EventField(telemetry.EventIdleTimeout)).Len())
}

func TestHostDoneOnEndOfInput(t *testing.T) {
	h := newHarness(t, HostOptions{})
	require.NoError(t, h.input.Close())

	select {
	case <-h.host.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end")
	}
}

func TestHostStartStopIdempotent(t *testing.T) {
	h := newHarness(t, HostOptions{})
	require.NoError(t, h.host.Start(context.Background()))

	h.host.Stop()
	h.host.Stop()
	require.False(t, h.host.Running())
	require.ErrorIs(t, h.host.Start(context.Background()), domain.ErrTransportClosed)
}

type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingHandler) Route(_ context.Context, req domain.Request) domain.Response {
	close(b.entered)
	<-b.release
	return domain.NewResultResponse(req.ID, domain.ToolCallResult{Tool: "echo"})
}

func TestHostStopBoundedWaitWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	handler := &blockingHandler{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(handler.release)

	inR, inW := io.Pipe()
	defer inW.Close()
	host := NewHost(inR, io.Discard, handler, HostOptions{StopTimeout: 50 * time.Millisecond, Logger: zap.New(core)})
	require.NoError(t, host.Start(context.Background()))

	go func() { _, _ = io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"tool":"echo"}}`+"\n") }()
	<-handler.entered

	start := time.Now()
	host.Stop()
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, logs.FilterMessage("read loop did not stop within timeout").Len())
}

type repeatByte byte

func (b repeatByte) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

func TestHostAnswersOversizedLineAndContinues(t *testing.T) {
	h := newHarness(t, HostOptions{})

	go func() {
		_, _ = io.Copy(h.input, io.LimitReader(repeatByte('x'), 17*1024*1024))
		_, _ = io.WriteString(h.input, "\n")
		_, _ = io.WriteString(h.input, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"tool":"echo"}}`+"\n")
	}()

	resp := h.next(t)
	require.Contains(t, resp, "id")
	require.Nil(t, resp["id"])
	errObj := resp["error"].(map[string]any)
	require.Equal(t, float64(domain.ErrCodeInvalidRequest), errObj["code"])
	require.Equal(t, map[string]any{"maxLineBytes": float64(16 * 1024 * 1024)}, errObj["data"])

	resp = h.next(t)
	require.Equal(t, float64(2), resp["id"])
	require.Contains(t, resp, "result")
	require.Equal(t, int32(1), h.handler.calls.Load())
	require.True(t, h.host.Running())
}

func TestHostOversizedLimitIsConfigurable(t *testing.T) {
	h := newHarness(t, HostOptions{MaxLineBytes: 64})

	h.send(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"tool":"echo","arguments":{"pad":"xxxxxxxx"}}}`)
	errObj := h.next(t)["error"].(map[string]any)
	require.Equal(t, "Invalid Request: line exceeds 64 bytes", errObj["message"])

	h.send(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call"}`)
	require.Equal(t, float64(2), h.next(t)["id"])
}

func TestSharedHostStopLeavesReaderForNextHost(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	outR, outW := io.Pipe()
	defer outW.Close()
	reader := framing.NewLineReader(inR)

	lines := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	nextID := func() any {
		t.Helper()
		select {
		case line := <-lines:
			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &decoded))
			return decoded["id"]
		case <-time.After(2 * time.Second):
			t.Fatal("no response line")
			return nil
		}
	}

	first := NewSharedHost(reader, outW, &fakeHandler{}, HostOptions{})
	require.NoError(t, first.Start(context.Background()))
	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`+"\n")
	require.NoError(t, err)
	require.Equal(t, float64(1), nextID())

	first.Stop()
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop")
	}
	require.False(t, reader.EndOfStream())

	_, err = io.WriteString(inW, `{"jsonrpc":"2.0","id":2,"method":"tools/call"}`+"\n")
	require.NoError(t, err)

	second := NewSharedHost(reader, outW, &fakeHandler{}, HostOptions{})
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()
	require.Equal(t, float64(2), nextID())
}
