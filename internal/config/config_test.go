package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"wharf/internal/config"
)

func TestLoadDefaultConfigUsesEnvFallbacksAndExpandsPaths(t *testing.T) {
	t.Setenv("WHARF_HOSTER_URL", "https://host.example.net/api/")
	t.Setenv("WHARF_HOSTER_TOKEN", "test-token")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "wharf")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.DownloadDir != filepath.Join(tempHome, "downloads") {
		t.Fatalf("unexpected download dir: %q", cfg.Paths.DownloadDir)
	}
	if cfg.Hoster.BaseURL != "https://host.example.net/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Hoster.BaseURL)
	}
	if cfg.Hoster.APIToken != "test-token" {
		t.Fatalf("expected hoster token from env, got %q", cfg.Hoster.APIToken)
	}
	if cfg.API.Bind != "127.0.0.1:9797" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Engine.MaxConcurrentDownloads != 3 {
		t.Fatalf("unexpected worker pool default: %d", cfg.Engine.MaxConcurrentDownloads)
	}
	if cfg.Engine.BackoffCeilingSeconds != 300 {
		t.Fatalf("unexpected backoff ceiling default: %d", cfg.Engine.BackoffCeilingSeconds)
	}
	if cfg.Sync.BatchIntervalMS != 750 {
		t.Fatalf("unexpected sync batch default: %d", cfg.Sync.BatchIntervalMS)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "tasks.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.IncompleteDir, cfg.Paths.DownloadDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "wharf.toml")

	type payload struct {
		Hoster struct {
			BaseURL  string `toml:"base_url"`
			APIToken string `toml:"api_token"`
		} `toml:"hoster"`
		Engine struct {
			MaxConcurrentDownloads int `toml:"max_concurrent_downloads"`
			SegmentsPerTask        int `toml:"segments_per_task"`
		} `toml:"engine"`
		Sync struct {
			BatchIntervalMS int `toml:"batch_interval_ms"`
		} `toml:"sync"`
	}
	custom := payload{}
	custom.Hoster.BaseURL = "https://files.example.com"
	custom.Hoster.APIToken = "abc123"
	custom.Engine.MaxConcurrentDownloads = 6
	custom.Engine.SegmentsPerTask = 8
	custom.Sync.BatchIntervalMS = 250
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Hoster.APIToken != "abc123" {
		t.Fatalf("expected hoster token from file, got %q", cfg.Hoster.APIToken)
	}
	if cfg.Engine.MaxConcurrentDownloads != 6 {
		t.Fatalf("expected worker pool override, got %d", cfg.Engine.MaxConcurrentDownloads)
	}
	if cfg.Engine.SegmentsPerTask != 8 {
		t.Fatalf("expected segments override, got %d", cfg.Engine.SegmentsPerTask)
	}
	if cfg.Sync.BatchIntervalMS != 250 {
		t.Fatalf("expected batch interval override, got %d", cfg.Sync.BatchIntervalMS)
	}
}

func TestEnvVarFillsMissingToken(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "wharf.toml")

	type payload struct {
		Hoster struct {
			BaseURL string `toml:"base_url"`
		} `toml:"hoster"`
	}
	custom := payload{}
	custom.Hoster.BaseURL = "https://files.example.com"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("WHARF_HOSTER_TOKEN", "env-token")
	t.Setenv("WHARF_API_KEY", "env-api-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Hoster.APIToken != "env-token" {
		t.Errorf("expected hoster token from env, got %q", cfg.Hoster.APIToken)
	}
	if cfg.API.APIKey != "env-api-key" {
		t.Errorf("expected api key from env, got %q", cfg.API.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[hoster]") {
		t.Fatalf("sample config missing hoster section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Engine.MaxConcurrentDownloads != 3 {
		t.Fatalf("sample engine defaults drifted: %d", cfg.Engine.MaxConcurrentDownloads)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Hoster.BaseURL = "https://files.example.com"
		cfg.Hoster.APIToken = "token"
		return cfg
	}

	cfg := valid()
	cfg.Hoster.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing base url")
	}

	cfg = valid()
	cfg.Hoster.BaseURL = "files.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for scheme-less base url")
	}

	cfg = valid()
	cfg.Hoster.APIToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing token")
	}

	cfg = valid()
	cfg.Engine.MaxConcurrentDownloads = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero worker pool")
	}

	cfg = valid()
	cfg.Engine.BackoffCeilingSeconds = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when ceiling below initial backoff")
	}

	cfg = valid()
	cfg.Engine.SegmentsPerTask = config.MaxSegmentsPerTask + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for oversized segment count")
	}

	cfg = valid()
	cfg.Sync.BatchIntervalMS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero batch interval")
	}
}
