package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadDir   string `toml:"download_dir"`
	IncompleteDir string `toml:"incomplete_dir"`
	LogDir        string `toml:"log_dir"`
	StateDir      string `toml:"state_dir"`
}

// Hoster contains connection settings for the file-hosting service.
type Hoster struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Engine contains download engine tuning.
type Engine struct {
	MaxConcurrentDownloads int   `toml:"max_concurrent_downloads"`
	SegmentsPerTask        int   `toml:"segments_per_task"`
	SpeedLimitBPS          int64 `toml:"speed_limit_bps"`
	MaxRetries             int   `toml:"max_retries"`
	BackoffInitialSeconds  int   `toml:"backoff_initial_seconds"`
	BackoffCeilingSeconds  int   `toml:"backoff_ceiling_seconds"`
	IOTimeoutSeconds       int   `toml:"io_timeout_seconds"`
	QueuePollInterval      int   `toml:"queue_poll_interval"`
	VerifySize             bool  `toml:"verify_size"`
	ExtractArchives        bool  `toml:"extract_archives"`
}

// Search contains tiered search tuning.
type Search struct {
	MaxResults  int      `toml:"max_results"`
	QueryBudget int      `toml:"query_budget"`
	MinScore    int      `toml:"min_score"`
	Categories  []string `toml:"categories"`
}

// API contains the embedded HTTP server settings shared by the admin API and
// the protocol facades.
type API struct {
	Bind   string `toml:"bind"`
	APIKey string `toml:"api_key"`
}

// Sync contains websocket state-sync cadence settings.
type Sync struct {
	BatchIntervalMS      int `toml:"batch_interval_ms"`
	StatsIntervalSeconds int `toml:"stats_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Daemon         bool   `toml:"daemon"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for wharf.
//
// Configuration sections by subsystem:
//   - Paths: download, incomplete, log, and state directories
//   - Hoster: file-host API endpoint and session token
//   - Engine: worker pool size, segmenting, retry/backoff, timeouts
//   - Search: alias query budget and result shaping
//   - API: embedded HTTP server bind address and key
//   - Sync: websocket batching cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Hoster        Hoster        `toml:"hoster"`
	Engine        Engine        `toml:"engine"`
	Search        Search        `toml:"search"`
	API           API           `toml:"api"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wharf/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/wharf/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("wharf.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// DownloadDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.IncompleteDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DownloadDir) != "" {
		_ = os.MkdirAll(c.Paths.DownloadDir, 0o755)
	}
	return nil
}

// SocketPath returns the unix socket the daemon listens on for CLI RPC.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "wharfd.sock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "wharfd.pid")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "wharfd.lock")
}

// DatabasePath returns the task database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "tasks.db")
}

// HosterTimeout returns the file-host request timeout as a duration.
func (c *Config) HosterTimeout() time.Duration {
	return time.Duration(c.Hoster.RequestTimeout) * time.Second
}

// IOTimeout returns the per-segment fetch timeout as a duration.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.Engine.IOTimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay as a duration.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.Engine.BackoffInitialSeconds) * time.Second
}

// BackoffCeiling returns the maximum retry delay as a duration.
func (c *Config) BackoffCeiling() time.Duration {
	return time.Duration(c.Engine.BackoffCeilingSeconds) * time.Second
}

// PollInterval returns the engine queue poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.QueuePollInterval) * time.Second
}

// BatchInterval returns the sync delta batching window as a duration.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Sync.BatchIntervalMS) * time.Millisecond
}

// StatsInterval returns the aggregate stats broadcast cadence as a duration.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Sync.StatsIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
