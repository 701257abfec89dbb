package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/registry"
)

// Report is the document written to diagnostics.json.
type Report struct {
	Host           domain.HostInfo    `json:"host"`
	ServerVersion  string             `json:"serverVersion"`
	GoVersion      string             `json:"goVersion"`
	TimeUTC        string             `json:"timeUtc"`
	ConfigPath     string             `json:"configPath,omitempty"`
	Tier           string             `json:"tier"`
	ConsoleEntries []domain.LogEntry  `json:"consoleEntries"`
	ToolRegistry   ToolRegistryReport `json:"toolRegistry"`
}

// ToolRegistryReport summarizes the registry at export time.
type ToolRegistryReport struct {
	DiscoveredToolCount int                    `json:"discoveredToolCount"`
	ToolIDs             []string               `json:"toolIds"`
	Duplicates          []domain.DuplicateTool `json:"duplicates"`
}

// ExporterOptions configures an Exporter.
type ExporterOptions struct {
	Host          func() domain.HostInfo
	ServerVersion string
	Tier          domain.TierSource
	Registry      func() *registry.Registry
	Console       *ConsoleCapture
	ConfigPath    string
	Logger        *zap.Logger
	Now           func() time.Time
}

// Exporter writes diagnostic snapshots to disk.
type Exporter struct {
	opts   ExporterOptions
	logger *zap.Logger
}

func NewExporter(opts ExporterOptions) *Exporter {
	if opts.Host == nil {
		opts.Host = func() domain.HostInfo { return domain.HostInfo{} }
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = domain.ServerVersion
	}
	if opts.Tier == nil {
		opts.Tier = domain.StaticTier(domain.TierCore)
	}
	if opts.Registry == nil {
		opts.Registry = registry.Current
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{opts: opts, logger: logger.Named("diagnostics")}
}

// Snapshot assembles a report without writing it.
func (e *Exporter) Snapshot() Report {
	reg := e.opts.Registry()
	duplicates := reg.Duplicates()
	if duplicates == nil {
		duplicates = []domain.DuplicateTool{}
	}
	ids := reg.IDs()
	if ids == nil {
		ids = []string{}
	}
	entries := e.opts.Console.Entries()
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return Report{
		Host:           e.opts.Host(),
		ServerVersion:  e.opts.ServerVersion,
		GoVersion:      runtime.Version(),
		TimeUTC:        e.opts.Now().UTC().Format(time.RFC3339Nano),
		ConfigPath:     e.opts.ConfigPath,
		Tier:           e.opts.Tier.CurrentTier().String(),
		ConsoleEntries: entries,
		ToolRegistry: ToolRegistryReport{
			DiscoveredToolCount: reg.Count(),
			ToolIDs:             ids,
			Duplicates:          duplicates,
		},
	}
}

// Export writes diagnostics.json into dir and returns its path. An empty
// dir uses the user cache directory.
func (e *Exporter) Export(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolve diagnostics dir: %w", err)
		}
		dir = filepath.Join(cache, "editormcp")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(e.Snapshot(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode diagnostics: %w", err)
	}
	path := filepath.Join(dir, domain.DiagnosticsFileName)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	e.logger.Info("diagnostics exported", zap.String("path", path))
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
