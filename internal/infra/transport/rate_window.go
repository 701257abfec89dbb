package transport

import "time"

// RateWindow admits at most max requests per sliding window. It is owned by
// the reader goroutine and is not safe for concurrent use.
type RateWindow struct {
	max    int
	window time.Duration
	stamps []time.Time
}

func NewRateWindow(max int, window time.Duration) *RateWindow {
	return &RateWindow{max: max, window: window}
}

// Allow evicts timestamps older than the window and records now when the
// window has room. It reports whether the request was admitted.
func (w *RateWindow) Allow(now time.Time) bool {
	if w.max <= 0 || w.window <= 0 {
		return true
	}
	cutoff := now.Add(-w.window)
	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
	if len(w.stamps) >= w.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (w *RateWindow) size() int {
	return len(w.stamps)
}

func (w *RateWindow) Max() int {
	return w.max
}

func (w *RateWindow) Window() time.Duration {
	return w.window
}
