package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wharf.toml")
	socket := filepath.Join(t.TempDir(), "unused.sock")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", path}, socket, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+path)

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	requireContains(t, string(content), "[hoster]")
	requireContains(t, string(content), "api_token")

	_, _, err = runCLI(t, []string{"config", "init", "--path", path}, socket, "")
	if err == nil {
		t.Fatal("expected error when the file already exists")
	}
	requireContains(t, err.Error(), "already exists")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", path, "--overwrite"}, socket, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigCheckCommand(t *testing.T) {
	env := setupOfflineCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"config", "check"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	requireContains(t, stdout, "Config path: "+env.configPath)
	requireContains(t, stdout, "Readiness")
	requireContains(t, stdout, "Download directory")
	requireContains(t, stdout, "Configuration valid")
}

func TestConfigCheckCommandMissingToken(t *testing.T) {
	env := setupOfflineCLITestEnv(t)
	t.Setenv("WHARF_HOSTER_TOKEN", "")
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[hoster]\nbase_url = \"https://host.test\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, err := runCLI(t, []string{"config", "check"}, env.socketPath, path)
	if err == nil {
		t.Fatal("expected validation error without api token")
	}
	requireContains(t, err.Error(), "load config")
}

func TestConfigShowCommand(t *testing.T) {
	env := setupOfflineCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, stdout, "Paths")
	requireContains(t, stdout, env.cfg.Paths.DownloadDir)
	requireContains(t, stdout, "Base URL")
	requireContains(t, stdout, env.cfg.Hoster.BaseURL)
	requireContains(t, stdout, "API token set")
	requireContains(t, stdout, "yes")
	requireContains(t, stdout, "Max downloads")
}
