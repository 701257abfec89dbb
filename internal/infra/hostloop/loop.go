package hostloop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/telemetry"
)

const heartbeatName = "host_loop"

// ErrStopped is returned by Run once the loop has exited.
var ErrStopped = errors.New("host loop stopped")

// Options configures a Loop.
type Options struct {
	TickInterval time.Duration
	Logger       *zap.Logger
	Health       *telemetry.HealthTracker
}

type callback struct {
	fn        func(ctx context.Context)
	cancelled atomic.Bool
}

// Loop is the privileged thread: a single OS-locked goroutine that runs
// scheduled callbacks once per tick and broadcasts reload events.
type Loop struct {
	interval time.Duration
	logger   *zap.Logger
	health   *telemetry.HealthTracker

	mu        sync.Mutex
	pending   []*callback
	reloadReq bool
	reloadSub map[int]func()
	nextSub   int

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	ticks     atomic.Uint64
}

func New(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = domain.DefaultTickIntervalMs * time.Millisecond
	}
	return &Loop{
		interval:  interval,
		logger:    logger.Named("host_loop"),
		health:    opts.Health,
		reloadSub: make(map[int]func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ScheduleOnce queues fn for the next tick. Callbacks queued while a tick
// is running wait for the following tick.
func (l *Loop) ScheduleOnce(fn func(ctx context.Context)) func() {
	cb := &callback{fn: fn}
	l.mu.Lock()
	l.pending = append(l.pending, cb)
	l.mu.Unlock()
	return func() {
		cb.cancelled.Store(true)
	}
}

// Run executes fn on the privileged thread and waits for it to return.
// A caller already on the privileged thread runs fn inline.
func (l *Loop) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if domain.IsPrivileged(ctx) {
		fn(ctx)
		return nil
	}
	finished := make(chan struct{})
	cancel := l.ScheduleOnce(func(pctx context.Context) {
		defer close(finished)
		fn(pctx)
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// OnReload subscribes fn to reload events. fn runs on the privileged thread.
func (l *Loop) OnReload(fn func()) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.reloadSub[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.reloadSub, id)
		l.mu.Unlock()
	}
}

// Reload requests a reload broadcast at the start of the next tick.
func (l *Loop) Reload() {
	l.mu.Lock()
	l.reloadReq = true
	l.mu.Unlock()
}

// Start launches the loop goroutine. It stops when ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.started.Store(true)
		go l.run(ctx)
	})
}

// Stop ends the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	if l.started.Load() {
		<-l.done
	}
}

// Ticks reports how many ticks have run.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

func (l *Loop) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	var beat *telemetry.Heartbeat
	if l.health != nil {
		beat = l.health.Register(heartbeatName, 10*l.interval+time.Second)
		defer l.health.Unregister(heartbeatName)
	}

	privileged := domain.WithPrivileged(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			l.tick(privileged)
			beat.Beat()
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	l.ticks.Add(1)

	l.mu.Lock()
	reload := l.reloadReq
	l.reloadReq = false
	var subs []func()
	if reload {
		subs = make([]func(), 0, len(l.reloadSub))
		for _, fn := range l.reloadSub {
			subs = append(subs, fn)
		}
	}
	l.mu.Unlock()

	if reload {
		l.logger.Info("host reload", telemetry.EventField(telemetry.EventDispatchReload), zap.Int("subscribers", len(subs)))
		for _, fn := range subs {
			l.invoke("reload", func(context.Context) { fn() }, ctx)
		}
	}

	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, cb := range batch {
		if cb.cancelled.Load() {
			continue
		}
		l.invoke("callback", cb.fn, ctx)
	}
}

func (l *Loop) invoke(kind string, fn func(ctx context.Context), ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("host loop callback panicked",
				zap.String("kind", kind),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn(ctx)
}

var (
	_ domain.Scheduler      = (*Loop)(nil)
	_ domain.ReloadNotifier = (*Loop)(nil)
)
