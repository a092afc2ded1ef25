package main

import (
	"context"
	"testing"

	"wharf/internal/queue"
)

func TestAddCommandQueuesTask(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{
		"add", "ref-cli-100",
		"--filename", "Show.S01E01.mkv",
		"--category", "tv",
		"--size", "1.4GiB",
	}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, stdout, "Queued task #1 (Show.S01E01.mkv)")

	task, err := env.store.FindByStableReference(context.Background(), "ref-cli-100")
	if err != nil {
		t.Fatalf("FindByStableReference: %v", err)
	}
	if task == nil {
		t.Fatal("task not persisted")
	}
	if task.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want queued", task.Status)
	}
	if task.SizeBytes != 1503238553 {
		t.Fatalf("size = %d, want 1.4GiB in bytes", task.SizeBytes)
	}
}

func TestAddCommandDuplicate(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"add", "ref-dup", "--filename", "a.mkv"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("first add: %v", err)
	}
	stdout, _, err := runCLI(t, []string{"add", "ref-dup", "--filename", "a.mkv"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	requireContains(t, stdout, "already queued for this reference")
}

func TestAddCommandRejectsUnknownCategory(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"add", "ref-bad", "--category", "bogus"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, stdout, "skipped")
	requireContains(t, stdout, `unknown category "bogus"`)
}

func TestAddCommandFilenameRequiresSingleReference(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"add", "ref-1", "ref-2", "--filename", "a.mkv"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for --filename with multiple references")
	}
	requireContains(t, err.Error(), "--filename applies to a single reference")
}

func TestAddCommandInvalidSize(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"add", "ref-1", "--size", "sideways"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for unparseable --size")
	}
	requireContains(t, err.Error(), "invalid --size")
}

func TestAddCommandOfflineFallback(t *testing.T) {
	env := setupOfflineCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"add", "ref-offline-1", "--filename", "b.mkv"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add offline: %v", err)
	}
	requireContains(t, stdout, "Queued task #1 (b.mkv)")

	task, err := env.store.FindByStableReference(context.Background(), "ref-offline-1")
	if err != nil {
		t.Fatalf("FindByStableReference: %v", err)
	}
	if task == nil {
		t.Fatal("offline add did not persist the task")
	}
}
