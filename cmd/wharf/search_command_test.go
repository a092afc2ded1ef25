package main

import (
	"encoding/json"
	"testing"

	"wharf/internal/api"
)

func TestSearchCommandEpisode(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"search", "Signal", "Fire", "-s", "1", "-e", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, stdout, "Signal.Fire.S01E01.1080p.WEB.mkv")
	requireContains(t, stdout, "S01E01")
	requireContains(t, stdout, "ref-signal-101")
	requireNotContains(t, stdout, "Signal.Fire.S01E02")
	requireNotContains(t, stdout, "Harbor.Lights")
}

func TestSearchCommandMovie(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"search", "Harbor", "Lights", "2024"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, stdout, "Harbor.Lights.2024.2160p.WEB-DL.mkv")
	requireContains(t, stdout, "ref-harbor-movie")
}

func TestSearchCommandNoResults(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"search", "Driftwood", "Chronicle"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, stdout, "No results")
}

func TestSearchCommandOfflineFallsBackToDirectPipeline(t *testing.T) {
	env := setupOfflineCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"search", "Signal", "Fire", "-s", "1", "-e", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("search offline: %v", err)
	}
	requireContains(t, stdout, "Signal.Fire.S01E01.1080p.WEB.mkv")
}

func TestSearchCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"search", "Signal", "Fire", "-s", "1", "-e", "1", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("search --json: %v", err)
	}

	var resp api.SearchResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode search json: %v\noutput: %s", err, stdout)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	result := resp.Results[0]
	if result.Reference != "ref-signal-101" {
		t.Fatalf("reference = %q", result.Reference)
	}
	if result.Season != 1 || result.Episode != 1 {
		t.Fatalf("episode parse = S%dE%d, want S1E1", result.Season, result.Episode)
	}
	if result.Score <= 0 {
		t.Fatalf("score = %d, want positive", result.Score)
	}
}
