package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/notify"
	"github.com/prassanna-ravishankar/torale/internal/storage"
	"github.com/prassanna-ravishankar/torale/internal/task"
)

// runReaper periodically sweeps for abandoned executions: records left
// non-terminal past the abandon window (crashed process, lost
// persistence write). Each is failed with a timeout error and its lock
// released so the task's schedule keeps working.
func (s *Service) runReaper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

// reap fails every live execution older than the abandon window
func (s *Service) reap(ctx context.Context) {
	now := time.Now().UTC()

	live, err := s.store.LiveExecutions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list live executions")
		return
	}

	for _, e := range live {
		if e.IsTerminal() || e.Age(now) < s.cfg.AbandonAfter {
			continue
		}

		var msg string
		if e.Status == task.ExecPending {
			msg = "execution cancelled: abandoned before dispatch"
		} else {
			msg = fmt.Sprintf("execution abandoned: still running after %v", s.cfg.AbandonAfter)
		}
		if err := e.Fail(msg); err != nil {
			s.logger.Error().Err(err).Str("execution_id", e.ID).Msg("failed to terminalize abandoned execution")
			continue
		}

		// Failed executions never change task state; apply the empty
		// decision just to release the lock atomically
		if _, err := s.applyDecision(ctx, e, notify.Decision{TaskStatus: task.StatusActive}); err != nil {
			if !errors.Is(err, storage.ErrTaskNotFound) {
				s.logger.Error().Err(err).Str("execution_id", e.ID).Msg("failed to reap execution")
			}
			continue
		}

		s.metrics.ExecutionFinished(string(task.ExecFailed))
		s.logger.Warn().
			Str("task_id", e.TaskID).
			Str("execution_id", e.ID).
			Msg("abandoned execution reaped")
	}
}
