package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"editormcp/internal/domain"
)

type PrometheusMetrics struct {
	routeRequests   *prometheus.CounterVec
	routeDuration   *prometheus.HistogramVec
	dispatchLatency *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
	rateLimited     prometheus.Counter
	transportBytes  *prometheus.CounterVec
	reloads         prometheus.Counter
	registeredTools prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		routeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "editormcp_requests_total",
				Help: "Total number of routed requests",
			},
			[]string{"method", "status", "code"},
		),
		routeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "editormcp_route_duration_seconds",
				Help:    "Duration of routed requests in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool", "status"},
		),
		dispatchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "editormcp_dispatch_duration_seconds",
				Help:    "Time from enqueue to completion of dispatched work",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
			},
			[]string{"outcome"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "editormcp_dispatch_queue_depth",
				Help: "Number of work items waiting for the privileged thread",
			},
		),
		rateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "editormcp_rate_limited_total",
				Help: "Total number of requests rejected by the rate window",
			},
		),
		transportBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "editormcp_transport_bytes_total",
				Help: "Bytes moved over the transport",
			},
			[]string{"direction"},
		),
		reloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "editormcp_host_reloads_total",
				Help: "Total number of host reloads handled",
			},
		),
		registeredTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "editormcp_registered_tools",
				Help: "Number of tools in the current registry",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveRoute(metric domain.RouteMetric) {
	status := string(metric.Status)
	if status == "" {
		status = string(domain.RouteStatusSuccess)
	}
	tool := metric.Tool
	if tool == "" {
		tool = "unknown"
	}
	p.routeRequests.WithLabelValues(metric.Method, status, strconv.FormatInt(metric.Code, 10)).Inc()
	p.routeDuration.WithLabelValues(tool, status).Observe(metric.Duration.Seconds())
}

func (p *PrometheusMetrics) ObserveDispatch(outcome domain.DispatchOutcome, duration time.Duration) {
	p.dispatchLatency.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) SetQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

func (p *PrometheusMetrics) AddRateLimited() {
	p.rateLimited.Inc()
}

func (p *PrometheusMetrics) AddTransportBytes(direction string, n int) {
	p.transportBytes.WithLabelValues(direction).Add(float64(n))
}

func (p *PrometheusMetrics) AddReload() {
	p.reloads.Inc()
}

func (p *PrometheusMetrics) SetRegisteredTools(count int) {
	p.registeredTools.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
