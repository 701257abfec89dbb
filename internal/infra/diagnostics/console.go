package diagnostics

import (
	"editormcp/internal/domain"
	"editormcp/internal/infra/telemetry"
)

// ConsoleCapture keeps the most recent log entries for export.
type ConsoleCapture struct {
	buffer *RingBuffer[domain.LogEntry]
}

func NewConsoleCapture(capacity int) *ConsoleCapture {
	if capacity <= 0 {
		capacity = domain.DefaultConsoleEntries
	}
	return &ConsoleCapture{buffer: NewRingBuffer[domain.LogEntry](capacity)}
}

// Attach registers the capture as a sink of broadcaster.
func (c *ConsoleCapture) Attach(broadcaster *telemetry.LogBroadcaster) {
	if c == nil || broadcaster == nil {
		return
	}
	broadcaster.AddSink(c.Record)
}

// Record stores entry with sensitive fields masked.
func (c *ConsoleCapture) Record(entry domain.LogEntry) {
	if c == nil {
		return
	}
	entry.Fields = RedactFields(entry.Fields)
	c.buffer.Add(entry)
}

// Entries returns captured entries oldest first.
func (c *ConsoleCapture) Entries() []domain.LogEntry {
	if c == nil {
		return nil
	}
	return c.buffer.Snapshot()
}

func (c *ConsoleCapture) Clear() {
	if c == nil {
		return
	}
	c.buffer.Reset()
}
