package services

import (
	"errors"
	"fmt"
	"strings"

	"wharf/internal/queue"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrLinkExpired   = errors.New("link expired")
	ErrQuota         = errors.New("quota exceeded")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the engine may schedule another automatic attempt
// for this error. Account-level failures never resolve on their own, so
// retrying them only burns the budget.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrQuota), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

// NeedsLinkRefresh reports whether the direct link must be re-resolved before
// the next attempt.
func NeedsLinkRefresh(err error) bool {
	return errors.Is(err, ErrLinkExpired)
}

// FailureStatus maps a task error to the queue status the engine should
// persist after the attempt fails. Retryable errors park the task in waiting;
// everything else fails it outright without consuming the retry budget.
func FailureStatus(err error) queue.Status {
	if Retryable(err) {
		return queue.StatusWaiting
	}
	return queue.StatusFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
