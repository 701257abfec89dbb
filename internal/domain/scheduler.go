package domain

import "context"

// Scheduler queues a single-shot callback onto the privileged thread. The
// returned cancel detaches the callback if it has not run yet.
type Scheduler interface {
	ScheduleOnce(fn func(ctx context.Context)) (cancel func())
}

// ReloadNotifier broadcasts host module reloads.
type ReloadNotifier interface {
	OnReload(fn func()) (unsubscribe func())
}

type privilegedKey struct{}

// WithPrivileged marks ctx as running on the privileged thread.
func WithPrivileged(ctx context.Context) context.Context {
	return context.WithValue(ctx, privilegedKey{}, true)
}

// IsPrivileged reports whether ctx was issued by the privileged thread.
func IsPrivileged(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(privilegedKey{}).(bool)
	return marked
}
