package main

import (
	"context"
	"testing"

	"wharf/internal/queue"
	"wharf/internal/testsupport"
)

func TestPauseAndResumeCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	task := testsupport.NewTask(t, env.store, "show.s01e01.mkv", "ref-pr-1")

	stdout, _, err := runCLI(t, []string{"pause", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, stdout, "Task 1 paused")

	paused, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if paused.Status != queue.StatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}

	stdout, _, err = runCLI(t, []string{"resume", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, stdout, "Task 1 resumed")

	resumed, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if resumed.Status != queue.StatusWaiting {
		t.Fatalf("status = %s, want waiting", resumed.Status)
	}
}

func TestPauseCommandNotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"pause", "99"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, stdout, "Task 99 not found")
}

func TestResumeCommandNotEligible(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewTask(t, env.store, "show.s01e01.mkv", "ref-re-1")

	stdout, _, err := runCLI(t, []string{"resume", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, stdout, "Task 1 not eligible: status is queued")
}

func TestRetryCommandOnlyFailedTasks(t *testing.T) {
	env := setupCLITestEnv(t)
	queued := testsupport.NewTask(t, env.store, "a.mkv", "ref-rt-1")
	failed := testsupport.NewTask(t, env.store, "b.mkv", "ref-rt-2")
	if err := env.store.MarkFailed(context.Background(), failed.ID, "connection reset"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"retry", "1", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, stdout, "Task 1 not eligible: only failed tasks can be retried")
	requireContains(t, stdout, "Task 2 queued for retry")
	requireContains(t, stdout, "1 of 2 tasks queued for retry")

	after, err := env.store.GetByID(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Status != queue.StatusWaiting {
		t.Fatalf("retried status = %s, want waiting", after.Status)
	}
	if still, _ := env.store.GetByID(context.Background(), queued.ID); still.Status != queue.StatusQueued {
		t.Fatalf("queued task changed status to %s", still.Status)
	}
}

func TestCancelCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	task := testsupport.NewTask(t, env.store, "a.mkv", "ref-cx-1")

	stdout, _, err := runCLI(t, []string{"cancel", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, stdout, "Task 1 cancelled")

	after, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", after.Status)
	}
}

func TestRemoveCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	task := testsupport.NewTask(t, env.store, "a.mkv", "ref-rm-1")

	stdout, _, err := runCLI(t, []string{"remove", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, stdout, "Task 1 removed")

	after, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after != nil {
		t.Fatalf("task still present after remove: %+v", after)
	}
}

func TestPauseAllCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewTask(t, env.store, "a.mkv", "ref-pa-1")
	testsupport.NewTask(t, env.store, "b.mkv", "ref-pa-2")

	stdout, _, err := runCLI(t, []string{"pause", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause --all: %v", err)
	}
	requireContains(t, stdout, "Paused 2 tasks")

	stdout, _, err = runCLI(t, []string{"resume", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume --all: %v", err)
	}
	requireContains(t, stdout, "Resumed 2 tasks")
}

func TestPauseCommandRequiresIDs(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"pause"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error without ids")
	}
	requireContains(t, err.Error(), "task ids required")
}

func TestTaskCommandRejectsInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"pause", "abc"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for non-numeric id")
	}
	requireContains(t, err.Error(), `invalid task id "abc"`)
}

func TestTaskCommandsNeedDaemon(t *testing.T) {
	env := setupOfflineCLITestEnv(t)
	testsupport.NewTask(t, env.store, "a.mkv", "ref-nd-1")

	_, _, err := runCLI(t, []string{"pause", "1"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected dial error without a daemon")
	}
	requireContains(t, err.Error(), "start the daemon")
}
