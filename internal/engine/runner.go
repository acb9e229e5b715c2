package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/notify"
	"github.com/prassanna-ravishankar/torale/internal/schedule"
	"github.com/prassanna-ravishankar/torale/internal/storage"
	"github.com/prassanna-ravishankar/torale/internal/task"
)

// completeRetries bounds the compare-and-set loop when applying an
// execution's outcome to its task. Conflicts need a concurrent lifecycle
// write, so contention drains within an attempt or two.
const completeRetries = 3

// runTask drives one execution through pending -> running -> terminal,
// applies the notify decision, and dispatches the notification if asked.
// The execution lock guarantees at most one concurrent run per task.
func (s *Service) runTask(ctx context.Context, taskID string) (*task.Execution, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrTaskNotActive
	}

	e := task.NewExecution(t.ID)
	if err := s.store.AcquireExecution(ctx, e); err != nil {
		if errors.Is(err, storage.ErrAlreadyRunning) {
			// Lock contention is not a user-facing error; the next
			// scheduled occurrence retries naturally
			s.metrics.TriggerDelivered("contended")
			s.logger.Debug().Str("task_id", taskID).Msg("trigger dropped, execution in flight")
		}
		return nil, err
	}

	s.metrics.ExecutionStarted()
	defer s.metrics.ExecutionDone()

	if err := e.Start(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExecution(ctx, e); err != nil {
		// The stored record stays pending but the run proceeds; the
		// terminal write below supersedes it, and the reaper reconciles
		// if that write never lands
		s.logger.Error().Err(err).Str("execution_id", e.ID).Msg("failed to persist running state")
	}

	callStart := time.Now()
	result, callErr := s.gateway.Check(ctx, task.CheckRequest{
		Query:      t.Query,
		Condition:  t.Condition,
		PriorState: t.LastKnownState,
	})
	s.metrics.ObserveAgentCall(time.Since(callStart))

	if callErr != nil {
		if err := e.Fail(callErr.Error()); err != nil {
			return nil, err
		}
		s.logger.Warn().
			Err(callErr).
			Str("task_id", t.ID).
			Str("execution_id", e.ID).
			Msg("agent check failed")
	} else {
		if err := e.Succeed(result); err != nil {
			return nil, err
		}
	}

	decision := notify.Evaluate(t.NotifyBehavior, t.LastKnownState, e)
	applied, err := s.applyDecision(ctx, e, decision)
	if err != nil {
		return e, err
	}
	s.metrics.ExecutionFinished(string(e.Status))

	if decision.Notify && applied != nil {
		if err := s.dispatcher.Dispatch(ctx, applied, e); err != nil {
			s.metrics.NotificationSent("failed")
		} else {
			s.metrics.NotificationSent("delivered")
		}
	}

	return e, nil
}

// applyDecision persists the terminal execution together with the task
// mutation it implies. The write is a compare-and-set against the row as
// read: a pause or resume landing while the decision is applied makes the
// store report a conflict, and the loop re-reads and re-derives the
// mutation so the concurrent write survives. A delete always wins; the
// execution record is kept for the audit trail either way.
func (s *Service) applyDecision(ctx context.Context, e *task.Execution, d notify.Decision) (*task.Task, error) {
	for attempt := 0; attempt < completeRetries; attempt++ {
		t, err := s.store.GetTask(ctx, e.TaskID)
		if err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				// Task deleted mid-flight; its rows and lock are gone
				s.logger.Warn().Str("execution_id", e.ID).Msg("task deleted during execution")
				return nil, nil
			}
			return nil, err
		}
		prior := *t

		if d.UpdateState {
			t.LastKnownState = d.LastKnownState
		}

		switch {
		case t.Status == task.StatusPaused:
			// Sticky pause: never un-pause on completion
		case d.TaskStatus == task.StatusCompleted:
			t.Complete()
		default:
			s.scheduleFollowUp(t, e)
		}

		err = s.store.CompleteExecution(ctx, &prior, t, e)
		switch {
		case err == nil:
			return t, nil
		case errors.Is(err, storage.ErrTaskConflict):
			s.logger.Debug().Str("execution_id", e.ID).Msg("task changed while completing, retrying")
			continue
		case errors.Is(err, storage.ErrTaskNotFound):
			s.logger.Warn().Str("execution_id", e.ID).Msg("task deleted during execution")
			return nil, nil
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("complete execution %s: %w", e.ID, storage.ErrTaskConflict)
}

// scheduleFollowUp keeps an active task's next run time valid after an
// execution. A next-run hint from the agent overrides the cron-computed
// time for one occurrence only; the cron expression resumes afterwards.
func (s *Service) scheduleFollowUp(t *task.Task, e *task.Execution) {
	now := time.Now().UTC()

	if e.Status == task.ExecSuccess && e.Result != nil && e.Result.NextRunHint > 0 {
		hint := e.Result.NextRunHint
		if hint < s.cfg.MinRunInterval {
			hint = s.cfg.MinRunInterval
		}
		t.ScheduleNext(now.Add(hint))
		return
	}

	// An active task always has a future next run; recompute when the
	// stored one is missing or already behind
	if t.NextRunAt == nil || !t.NextRunAt.After(now) {
		if next, err := schedule.NextAfter(t.Schedule, now); err == nil {
			t.ScheduleNext(next)
		}
	}
}
