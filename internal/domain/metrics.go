package domain

import "time"

// RouteStatus labels the outcome of a routed request.
type RouteStatus string

const (
	RouteStatusSuccess RouteStatus = "success"
	RouteStatusError   RouteStatus = "error"
)

// DispatchOutcome labels how a dispatched work item ended.
type DispatchOutcome string

const (
	DispatchOutcomeInline   DispatchOutcome = "inline"
	DispatchOutcomeQueued   DispatchOutcome = "queued"
	DispatchOutcomeFault    DispatchOutcome = "fault"
	DispatchOutcomeTimeout  DispatchOutcome = "timeout"
	DispatchOutcomeReloaded DispatchOutcome = "reloaded"
	DispatchOutcomeCanceled DispatchOutcome = "canceled"
)

// RouteMetric captures metrics for a routed request.
type RouteMetric struct {
	Method   string
	Tool     string
	Status   RouteStatus
	Code     int64
	Duration time.Duration
}

// Metrics records operational metrics for transport, routing and dispatch.
type Metrics interface {
	ObserveRoute(metric RouteMetric)
	ObserveDispatch(outcome DispatchOutcome, duration time.Duration)
	SetQueueDepth(depth int)
	AddRateLimited()
	AddTransportBytes(direction string, n int)
	AddReload()
	SetRegisteredTools(count int)
}

const (
	DirectionReceived = "received"
	DirectionSent     = "sent"
)
