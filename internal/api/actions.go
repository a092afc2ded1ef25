package api

import (
	"context"
	"errors"

	"wharf/internal/queue"
)

// ActionOutcome classifies the result of one task within a batch action.
type ActionOutcome string

const (
	OutcomeApplied     ActionOutcome = "applied"
	OutcomeNotFound    ActionOutcome = "not_found"
	OutcomeNotEligible ActionOutcome = "not_eligible"
)

// ActionResult reports one task's outcome within a batch action.
type ActionResult struct {
	ID      int64         `json:"id"`
	Outcome ActionOutcome `json:"outcome"`
	Status  string        `json:"status,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

// BatchResult aggregates a batch action across task ids.
type BatchResult struct {
	Applied int64          `json:"applied"`
	Results []ActionResult `json:"results"`
}

func (b *BatchResult) record(id int64, outcome ActionOutcome, status, detail string) {
	if outcome == OutcomeApplied {
		b.Applied++
	}
	b.Results = append(b.Results, ActionResult{ID: id, Outcome: outcome, Status: status, Detail: detail})
}

// PauseTasks pauses tasks one by one. Tasks mid-extraction or already
// finished report not_eligible instead of failing the batch.
func (s *Service) PauseTasks(ctx context.Context, ids []int64) (BatchResult, error) {
	result := BatchResult{Results: make([]ActionResult, 0, len(ids))}
	for _, id := range ids {
		err := s.engine.Pause(ctx, id)
		switch {
		case err == nil:
			result.record(id, OutcomeApplied, s.currentStatus(ctx, id), "")
		case errors.Is(err, queue.ErrTaskNotFound):
			result.record(id, OutcomeNotFound, "", "")
		case errors.Is(err, queue.ErrIllegalTransition):
			result.record(id, OutcomeNotEligible, s.currentStatus(ctx, id), err.Error())
		default:
			return BatchResult{}, err
		}
	}
	return result, nil
}

// ResumeTasks moves paused or failed tasks back into the scheduler.
func (s *Service) ResumeTasks(ctx context.Context, ids []int64) (BatchResult, error) {
	result := BatchResult{Results: make([]ActionResult, 0, len(ids))}
	for _, id := range ids {
		task, err := s.store.GetByID(ctx, id)
		if err != nil {
			return BatchResult{}, err
		}
		if task == nil {
			result.record(id, OutcomeNotFound, "", "")
			continue
		}
		moved, err := s.engine.Resume(ctx, id)
		if err != nil {
			return BatchResult{}, err
		}
		if moved == 0 {
			result.record(id, OutcomeNotEligible, string(task.Status), "")
			continue
		}
		result.record(id, OutcomeApplied, s.currentStatus(ctx, id), "")
	}
	return result, nil
}

// RetryTasks revives failed tasks only; anything else is not_eligible. Use
// ResumeTasks for paused tasks.
func (s *Service) RetryTasks(ctx context.Context, ids []int64) (BatchResult, error) {
	result := BatchResult{Results: make([]ActionResult, 0, len(ids))}
	for _, id := range ids {
		task, err := s.store.GetByID(ctx, id)
		if err != nil {
			return BatchResult{}, err
		}
		if task == nil {
			result.record(id, OutcomeNotFound, "", "")
			continue
		}
		if task.Status != queue.StatusFailed {
			result.record(id, OutcomeNotEligible, string(task.Status), "only failed tasks can be retried")
			continue
		}
		if _, err := s.engine.Resume(ctx, id); err != nil {
			return BatchResult{}, err
		}
		result.record(id, OutcomeApplied, s.currentStatus(ctx, id), "")
	}
	return result, nil
}

// CancelTasks stops tasks permanently, discarding partial data.
func (s *Service) CancelTasks(ctx context.Context, ids []int64) (BatchResult, error) {
	result := BatchResult{Results: make([]ActionResult, 0, len(ids))}
	for _, id := range ids {
		err := s.engine.Cancel(ctx, id)
		switch {
		case err == nil:
			result.record(id, OutcomeApplied, string(queue.StatusCancelled), "")
		case errors.Is(err, queue.ErrTaskNotFound):
			result.record(id, OutcomeNotFound, "", "")
		case errors.Is(err, queue.ErrIllegalTransition):
			result.record(id, OutcomeNotEligible, s.currentStatus(ctx, id), err.Error())
		default:
			return BatchResult{}, err
		}
	}
	return result, nil
}

// RemoveTasks deletes tasks outright, cancelling active ones first. When
// deleteFiles is set the destination payload and partial data go too.
func (s *Service) RemoveTasks(ctx context.Context, ids []int64, deleteFiles bool) (BatchResult, error) {
	result := BatchResult{Results: make([]ActionResult, 0, len(ids))}
	for _, id := range ids {
		err := s.engine.Remove(ctx, id, deleteFiles)
		switch {
		case err == nil:
			result.record(id, OutcomeApplied, "", "")
		case errors.Is(err, queue.ErrTaskNotFound):
			result.record(id, OutcomeNotFound, "", "")
		default:
			return BatchResult{}, err
		}
	}
	return result, nil
}

// currentStatus reads the task's status for action reporting, tolerating
// lookup failures with an empty string.
func (s *Service) currentStatus(ctx context.Context, id int64) string {
	task, err := s.store.GetByID(ctx, id)
	if err != nil || task == nil {
		return ""
	}
	return string(task.Status)
}
