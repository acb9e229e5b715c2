package notify

import (
	"encoding/json"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Decision is the outcome of evaluating a notify policy against one
// terminal execution
type Decision struct {
	// Notify says whether to hand the result to the dispatcher
	Notify bool

	// TaskStatus is the activity state the task should move to
	TaskStatus task.Status

	// UpdateState says whether LastKnownState replaces the task's
	// stored snapshot
	UpdateState bool

	// LastKnownState is the new snapshot when UpdateState is true
	LastKnownState json.RawMessage
}

// Evaluate maps (behavior, last known state, execution outcome) to a
// decision. It is a pure function: no storage, no clock, no side effects.
//
// Failed executions never notify and never change task state; in
// particular a failure does not consume a once task's single
// notification.
func Evaluate(behavior task.NotifyBehavior, lastKnown json.RawMessage, e *task.Execution) Decision {
	unchanged := Decision{Notify: false, TaskStatus: task.StatusActive}

	if e == nil || e.Status != task.ExecSuccess || e.Result == nil {
		return unchanged
	}

	met := e.ConditionMet != nil && *e.ConditionMet

	switch behavior {
	case task.NotifyOnce:
		if !met {
			return unchanged
		}
		return Decision{Notify: true, TaskStatus: task.StatusCompleted}

	case task.NotifyAlways:
		if !met {
			return unchanged
		}
		return Decision{Notify: true, TaskStatus: task.StatusActive}

	case task.NotifyTrackState:
		snapshot := stateSnapshot(e.Result)
		d := Decision{
			TaskStatus:     task.StatusActive,
			UpdateState:    true,
			LastKnownState: snapshot,
		}
		// Notify only on a materially different result: the gateway
		// diffs against the prior state and reports the delta in the
		// change summary. Direction of the boolean flip is irrelevant,
		// but an unmet condition never notifies.
		d.Notify = met && e.Result.ChangeSummary != ""
		return d

	default:
		return unchanged
	}
}

// stateSnapshot builds the last-known-state snapshot stored on the task
// from a successful result
func stateSnapshot(r *task.CheckResult) json.RawMessage {
	snap := struct {
		Answer       string `json:"answer"`
		ConditionMet bool   `json:"condition_met"`
	}{
		Answer:       r.Answer,
		ConditionMet: r.ConditionMet,
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return b
}
