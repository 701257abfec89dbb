package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/telemetry"
)

// Work is a unit of host work executed on the privileged thread.
type Work func(ctx context.Context) (domain.InvokeResponse, error)

// Options configures a Dispatcher.
type Options struct {
	Scheduler domain.Scheduler
	Timeout   time.Duration
	Logger    *zap.Logger
	Metrics   domain.Metrics
	// Slot receives the dispatcher as its current instance. A private slot
	// is used when nil.
	Slot *Slot
}

// Dispatcher marshals work from any goroutine onto the privileged thread.
// At most one drain callback is scheduled at a time and each drain runs a
// single item before rescheduling itself.
type Dispatcher struct {
	scheduler domain.Scheduler
	timeout   time.Duration
	logger    *zap.Logger
	metrics   domain.Metrics
	slot      *Slot

	mu          sync.Mutex
	queue       []*workItem
	draining    bool
	drainGen    uint64
	cancelDrain func()
	detached    bool

	executed    atomic.Uint64
	lastElapsed atomic.Int64
}

type workItem struct {
	ctx        context.Context
	work       Work
	enqueuedAt time.Time
	once       sync.Once
	done       chan struct{}
	resp       domain.InvokeResponse
	err        error
	elapsed    time.Duration
}

func (w *workItem) complete(resp domain.InvokeResponse, err error) {
	w.once.Do(func() {
		w.resp = resp
		w.err = err
		w.elapsed = time.Since(w.enqueuedAt)
		close(w.done)
	})
}

// Stats is a snapshot of dispatcher activity.
type Stats struct {
	QueueDepth  int
	Draining    bool
	Executed    uint64
	LastElapsed time.Duration
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultDispatchTimeoutSeconds * time.Second
	}
	slot := opts.Slot
	if slot == nil {
		slot = &Slot{}
	}
	d := &Dispatcher{
		scheduler: opts.Scheduler,
		timeout:   timeout,
		logger:    logger.Named("dispatcher"),
		metrics:   metrics,
		slot:      slot,
	}
	slot.Install(d)
	return d
}

// Timeout reports the default wait applied when Invoke gets none.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Invoke runs work on the privileged thread and waits for its result. A
// caller already on the privileged thread runs work inline. When the wait
// exceeds timeout the item is removed from the queue if it has not started
// and a *domain.TimeoutError is returned.
func (d *Dispatcher) Invoke(ctx context.Context, work Work, timeout time.Duration) (domain.InvokeResponse, error) {
	if work == nil {
		return domain.InvokeResponse{}, errors.New("dispatch: nil work")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = d.timeout
	}

	if domain.IsPrivileged(ctx) {
		start := time.Now()
		resp, err := d.execute(ctx, work)
		d.record(time.Since(start))
		d.metrics.ObserveDispatch(outcomeFor(domain.DispatchOutcomeInline, err), time.Since(start))
		return resp, err
	}

	item := &workItem{
		ctx:        ctx,
		work:       work,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
	if err := d.enqueue(item); err != nil {
		return domain.InvokeResponse{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-item.done:
		d.metrics.ObserveDispatch(outcomeFor(domain.DispatchOutcomeQueued, item.err), item.elapsed)
		return item.resp, item.err
	case <-timer.C:
		removed := d.remove(item)
		waited := time.Since(item.enqueuedAt)
		telemetry.LoggerWithRequest(ctx, d.logger).Warn("dispatch timed out",
			telemetry.EventField(telemetry.EventDispatchTimeout),
			zap.Duration("timeout", timeout),
			zap.Bool("removed", removed),
			telemetry.QueueDepthField(d.QueueDepth()),
		)
		d.metrics.ObserveDispatch(domain.DispatchOutcomeTimeout, waited)
		return domain.InvokeResponse{}, &domain.TimeoutError{Timeout: timeout, Waited: waited}
	case <-ctx.Done():
		d.remove(item)
		d.metrics.ObserveDispatch(domain.DispatchOutcomeCanceled, time.Since(item.enqueuedAt))
		return domain.InvokeResponse{}, ctx.Err()
	}
}

func (d *Dispatcher) enqueue(item *workItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return domain.ErrDispatcherDetached
	}
	if d.scheduler == nil {
		return domain.E(domain.CodeFailedPrecond, "dispatch.Invoke", "no scheduler configured", domain.ErrDispatcherDetached)
	}
	d.queue = append(d.queue, item)
	d.metrics.SetQueueDepth(len(d.queue))
	if !d.draining {
		d.scheduleDrainLocked()
	}
	return nil
}

// scheduleDrainLocked must be called with d.mu held. Each scheduled drain
// carries a generation; a drain whose generation was superseded by a
// reload returns without running work.
func (d *Dispatcher) scheduleDrainLocked() {
	d.drainGen++
	gen := d.drainGen
	d.draining = true
	d.cancelDrain = d.scheduler.ScheduleOnce(func(ctx context.Context) {
		d.drain(ctx, gen)
	})
}

func (d *Dispatcher) remove(item *workItem) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, queued := range d.queue {
		if queued == item {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.metrics.SetQueueDepth(len(d.queue))
			return true
		}
	}
	return false
}

// drain runs on the privileged thread. It executes one item and
// reschedules itself while work remains.
func (d *Dispatcher) drain(ctx context.Context, gen uint64) {
	if !d.slot.IsCurrent(d) {
		return
	}

	d.mu.Lock()
	if gen != d.drainGen {
		d.mu.Unlock()
		return
	}
	d.cancelDrain = nil
	if d.detached || len(d.queue) == 0 {
		d.draining = false
		d.mu.Unlock()
		return
	}
	item := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.metrics.SetQueueDepth(len(d.queue))
	d.mu.Unlock()

	execCtx := domain.WithPrivileged(context.WithoutCancel(item.ctx))
	start := time.Now()
	resp, err := d.execute(execCtx, item.work)
	d.record(time.Since(start))
	item.complete(resp, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.drainGen {
		return
	}
	if len(d.queue) > 0 && !d.detached {
		d.scheduleDrainLocked()
		return
	}
	d.draining = false
}

func (d *Dispatcher) execute(ctx context.Context, work Work) (resp domain.InvokeResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			fault := &domain.ToolFault{
				Message:    fmt.Sprint(r),
				Type:       fmt.Sprintf("%T", r),
				StackTrace: string(debug.Stack()),
			}
			if cause, ok := r.(error); ok {
				fault.Cause = cause
			}
			resp = domain.InvokeResponse{}
			err = fault
		}
	}()

	resp, err = work(ctx)
	if err == nil {
		return resp, nil
	}
	var toolErr domain.ToolError
	var fault *domain.ToolFault
	if errors.As(err, &toolErr) || errors.As(err, &fault) {
		return resp, err
	}
	return resp, &domain.ToolFault{
		Message:    err.Error(),
		Type:       fmt.Sprintf("%T", err),
		StackTrace: string(debug.Stack()),
		Cause:      err,
	}
}

func (d *Dispatcher) record(elapsed time.Duration) {
	d.executed.Add(1)
	d.lastElapsed.Store(int64(elapsed))
}

// HandleReload detaches the pending drain callback and completes every
// queued item with domain.ErrHostReloaded. The dispatcher stays usable. A
// detached drain that already started is superseded and does nothing.
func (d *Dispatcher) HandleReload() int {
	d.mu.Lock()
	cancel := d.cancelDrain
	d.cancelDrain = nil
	d.drainGen++
	d.draining = false
	items := d.queue
	d.queue = nil
	d.metrics.SetQueueDepth(0)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, item := range items {
		item.complete(domain.InvokeResponse{}, domain.ErrHostReloaded)
		d.metrics.ObserveDispatch(domain.DispatchOutcomeReloaded, time.Since(item.enqueuedAt))
	}
	if len(items) > 0 {
		d.logger.Warn("released queued work on host reload",
			telemetry.EventField(telemetry.EventDispatchReload),
			zap.Int("released", len(items)),
		)
	}
	return len(items)
}

// Detach behaves like HandleReload and then rejects further work.
func (d *Dispatcher) Detach() int {
	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()
	return d.HandleReload()
}

func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	depth := len(d.queue)
	draining := d.draining
	d.mu.Unlock()
	return Stats{
		QueueDepth:  depth,
		Draining:    draining,
		Executed:    d.executed.Load(),
		LastElapsed: time.Duration(d.lastElapsed.Load()),
	}
}

func outcomeFor(ok domain.DispatchOutcome, err error) domain.DispatchOutcome {
	var fault *domain.ToolFault
	if errors.As(err, &fault) {
		return domain.DispatchOutcomeFault
	}
	if errors.Is(err, domain.ErrHostReloaded) {
		return domain.DispatchOutcomeReloaded
	}
	return ok
}
