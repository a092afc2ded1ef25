package main

import (
	"path/filepath"
	"testing"
)

func TestVersionFlag(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "unused.sock")

	stdout, _, err := runCLI(t, []string{"--version"}, socket, "")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	requireContains(t, stdout, "wharf version dev")
}

func TestHelpFlag(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "unused.sock")

	stdout, _, err := runCLI(t, []string{"--help"}, socket, "")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	requireContains(t, stdout, "Wharf download manager CLI")
	requireContains(t, stdout, "queue")
	requireContains(t, stdout, "daemon")
}
