package telemetry

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker aggregates heartbeats from background loops.
type HealthTracker struct {
	mu    sync.Mutex
	beats map[string]*Heartbeat
	now   func() time.Time
}

// Heartbeat is one registered loop. A loop is stale when it has not beaten
// within its ttl.
type Heartbeat struct {
	tracker *HealthTracker
	name    string
	ttl     time.Duration
	last    time.Time
}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	LastBeat time.Time `json:"lastBeat"`
}

type HealthReport struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks,omitempty"`
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		beats: make(map[string]*Heartbeat),
		now:   time.Now,
	}
}

func (t *HealthTracker) Register(name string, ttl time.Duration) *Heartbeat {
	t.mu.Lock()
	defer t.mu.Unlock()
	beat := &Heartbeat{tracker: t, name: name, ttl: ttl}
	t.beats[name] = beat
	return beat
}

func (t *HealthTracker) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.beats, name)
}

func (h *Heartbeat) Beat() {
	if h == nil || h.tracker == nil {
		return
	}
	h.tracker.mu.Lock()
	h.last = h.tracker.now()
	h.tracker.mu.Unlock()
}

func (t *HealthTracker) Report() HealthReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	report := HealthReport{Status: "ok"}
	names := make([]string, 0, len(t.beats))
	for name := range t.beats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		beat := t.beats[name]
		check := HealthCheck{Name: name, Status: "ok", LastBeat: beat.last}
		if beat.last.IsZero() || (beat.ttl > 0 && now.Sub(beat.last) > beat.ttl) {
			check.Status = "stale"
			report.Status = "degraded"
		}
		report.Checks = append(report.Checks, check)
	}
	return report
}
