package main

import (
	"testing"
)

func TestDaemonStopWhenNotRunning(t *testing.T) {
	env := setupOfflineCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"daemon", "stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, stdout, "Daemon is not running")
}

func TestDaemonStartWhenAlreadyRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"daemon", "start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	requireContains(t, stdout, "Daemon already running")
}

func TestDaemonStatusSubcommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"daemon", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, stdout, "Daemon")
	requireContains(t, stdout, "Queue")
}
