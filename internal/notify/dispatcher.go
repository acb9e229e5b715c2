package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Dispatcher hands execution results to the notification collaborator.
// "Did the condition trigger" is already persisted by the time Dispatch
// runs; delivery is best-effort and a failure never rolls back task or
// execution state.
type Dispatcher struct {
	notifier Notifier
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil notifier disables delivery;
// decisions are still logged so dry runs stay observable.
func NewDispatcher(notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger}
}

// Dispatch sends the notification for a condition-met execution. The
// returned error is informational; callers log it and move on.
func (d *Dispatcher) Dispatch(ctx context.Context, t *task.Task, e *task.Execution) error {
	n := Notification{
		TaskID:        t.ID,
		ExecutionID:   e.ID,
		ChannelConfig: t.ChannelConfig,
	}
	if e.Result != nil {
		n.Answer = e.Result.Answer
		n.Sources = e.Result.Sources
	}

	if d.notifier == nil {
		d.logger.Info().
			Str("task_id", t.ID).
			Str("execution_id", e.ID).
			Msg("no notifier configured, dropping notification")
		return nil
	}

	if err := d.notifier.Send(ctx, n); err != nil {
		d.logger.Error().
			Err(err).
			Str("task_id", t.ID).
			Str("execution_id", e.ID).
			Msg("notification delivery failed")
		return err
	}

	d.logger.Info().
		Str("task_id", t.ID).
		Str("execution_id", e.ID).
		Msg("notification dispatched")
	return nil
}
