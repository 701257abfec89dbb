package telemetry

import (
	"time"

	"editormcp/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveRoute(_ domain.RouteMetric) {}

func (n *NoopMetrics) ObserveDispatch(_ domain.DispatchOutcome, _ time.Duration) {}

func (n *NoopMetrics) SetQueueDepth(_ int) {}

func (n *NoopMetrics) AddRateLimited() {}

func (n *NoopMetrics) AddTransportBytes(_ string, _ int) {}

func (n *NoopMetrics) AddReload() {}

func (n *NoopMetrics) SetRegisteredTools(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
