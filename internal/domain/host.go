package domain

import "time"

// HostInfo identifies the embedding host application.
type HostInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// ServerStatus is a snapshot of the server lifecycle.
type ServerStatus struct {
	ServerVersion         string     `json:"serverVersion"`
	HostVersion           string     `json:"hostVersion"`
	Platform              string     `json:"platform"`
	EnabledToolCategories []string   `json:"enabledToolCategories"`
	Tier                  string     `json:"tier"`
	Running               bool       `json:"running"`
	TransportStartedAt    *time.Time `json:"transportStartedAt,omitempty"`
}

// LogEntry is a captured console entry.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Logger  string         `json:"logger,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}
