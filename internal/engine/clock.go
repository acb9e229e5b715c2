package engine

import (
	"context"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/schedule"
)

// runClock is the trigger loop: every tick it collects due tasks,
// advances their schedules, and dispatches one execution goroutine per
// task so a slow agent call never delays other triggers. The loop owns
// no per-task state between ticks; everything lives in the store.
func (s *Service) runClock(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick triggers every due active task exactly once
func (s *Service) tick(ctx context.Context) {
	now := time.Now().UTC()

	taskIDs, err := s.store.DueTaskIDs(ctx, now, s.cfg.TickBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query due tasks")
		return
	}

	for _, taskID := range taskIDs {
		s.triggerTask(ctx, taskID, now)
	}
}

// triggerTask advances a due task's next run time and fires its
// execution. The reschedule persists before the trigger fires: if the
// write fails the trigger is not delivered, so the task is never run
// without a committed next occurrence.
func (s *Service) triggerTask(ctx context.Context, taskID string, now time.Time) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("due task not loadable")
		return
	}

	if !t.IsActive() {
		// Stale schedule entry; clearing NextRunAt drops it from the
		// due index
		t.NextRunAt = nil
		if err := s.store.UpdateTask(ctx, t); err != nil {
			s.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to clear stale schedule")
		}
		s.metrics.TriggerDelivered("skipped")
		return
	}

	// Strictly after now: a task that missed N occurrences while the
	// process was down triggers once, not N times
	next, err := schedule.NextAfter(t.Schedule, now)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("unparseable schedule on stored task")
		return
	}
	t.ScheduleNext(next)
	if err := s.store.UpdateTask(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to advance schedule, trigger withheld")
		return
	}

	s.metrics.TriggerDelivered("fired")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runTask(ctx, taskID); err != nil {
			s.logger.Debug().Err(err).Str("task_id", taskID).Msg("triggered run did not complete")
		}
	}()
}
