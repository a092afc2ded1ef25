package services_test

import (
	"errors"
	"strings"
	"testing"

	"wharf/internal/queue"
	"wharf/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "transfer", "segment", "read failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transfer", "segment", "read failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "resolve", "request", "no marker", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	retryable := []error{
		services.Wrap(services.ErrTransient, "transfer", "segment", "reset", nil),
		services.Wrap(services.ErrLinkExpired, "transfer", "get", "403", nil),
		services.Wrap(services.ErrTimeout, "resolve", "request", "deadline", nil),
		services.Wrap(services.ErrValidation, "transfer", "verify", "size mismatch", nil),
		errors.New("unclassified"),
	}
	for _, err := range retryable {
		if !services.Retryable(err) {
			t.Errorf("expected retryable: %v", err)
		}
		if status := services.FailureStatus(err); status != queue.StatusWaiting {
			t.Errorf("expected waiting for %v, got %s", err, status)
		}
	}

	permanent := []error{
		services.Wrap(services.ErrQuota, "resolve", "request", "quota exhausted", nil),
		services.Wrap(services.ErrUnauthorized, "resolve", "request", "bad token", nil),
		services.Wrap(services.ErrNotFound, "resolve", "request", "gone", nil),
		services.Wrap(services.ErrConfiguration, "engine", "start", "bad dir", nil),
	}
	for _, err := range permanent {
		if services.Retryable(err) {
			t.Errorf("expected permanent: %v", err)
		}
		if status := services.FailureStatus(err); status != queue.StatusFailed {
			t.Errorf("expected failed for %v, got %s", err, status)
		}
	}
}

func TestNeedsLinkRefresh(t *testing.T) {
	expired := services.Wrap(services.ErrLinkExpired, "transfer", "get", "link expired", nil)
	if !services.NeedsLinkRefresh(expired) {
		t.Fatal("expected link refresh for expired link")
	}
	plain := services.Wrap(services.ErrTransient, "transfer", "get", "reset", nil)
	if services.NeedsLinkRefresh(plain) {
		t.Fatal("expected no link refresh for plain transient error")
	}
}
