package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecStatus represents the state of a single execution
type ExecStatus string

const (
	ExecPending ExecStatus = "pending"
	ExecRunning ExecStatus = "running"
	ExecSuccess ExecStatus = "success"
	ExecFailed  ExecStatus = "failed"
)

// Transition errors. Terminalizing an already-terminal execution is a
// programming error and always surfaces.
var (
	ErrAlreadyTerminal   = errors.New("execution already in a terminal state")
	ErrInvalidTransition = errors.New("invalid execution state transition")
)

// Source is a grounding reference cited by the agent
type Source struct {
	URI     string `json:"uri"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// CheckResult is the complete outcome of one agent check
type CheckResult struct {
	Answer        string   `json:"answer"`
	ConditionMet  bool     `json:"condition_met"`
	Evidence      string   `json:"evidence,omitempty"`
	Sources       []Source `json:"sources,omitempty"`
	ChangeSummary string   `json:"change_summary,omitempty"`

	// NextRunHint, when positive, overrides the cron-computed time for
	// the next occurrence only
	NextRunHint time.Duration `json:"next_run_hint,omitempty"`
}

// CheckRequest is the input to one agent check
type CheckRequest struct {
	Query      string          `json:"query"`
	Condition  string          `json:"condition"`
	PriorState json.RawMessage `json:"prior_state,omitempty"`
}

// Execution is one concrete run of a task's check. Records are immutable
// once terminal; the execution log is the audit trail for every attempt.
type Execution struct {
	ID     string     `json:"id"`
	TaskID string     `json:"task_id"`
	Status ExecStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ConditionMet *bool        `json:"condition_met,omitempty"`
	Result       *CheckResult `json:"result,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// NewExecution creates a pending execution for a task
func NewExecution(taskID string) *Execution {
	return &Execution{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Status:    ExecPending,
		CreatedAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the execution has reached a final state
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecSuccess || e.Status == ExecFailed
}

// Start moves the execution from pending to running
func (e *Execution) Start() error {
	if e.IsTerminal() {
		return fmt.Errorf("start execution %s: %w", e.ID, ErrAlreadyTerminal)
	}
	if e.Status != ExecPending {
		return fmt.Errorf("start execution %s from %s: %w", e.ID, e.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	e.StartedAt = &now
	e.Status = ExecRunning
	return nil
}

// Succeed records a complete agent result and terminalizes the execution
func (e *Execution) Succeed(result *CheckResult) error {
	if e.IsTerminal() {
		return fmt.Errorf("succeed execution %s: %w", e.ID, ErrAlreadyTerminal)
	}
	if e.Status != ExecRunning {
		return fmt.Errorf("succeed execution %s from %s: %w", e.ID, e.Status, ErrInvalidTransition)
	}
	if result == nil {
		return fmt.Errorf("succeed execution %s: nil result", e.ID)
	}
	now := time.Now().UTC()
	e.CompletedAt = &now
	e.ConditionMet = &result.ConditionMet
	e.Result = result
	e.Status = ExecSuccess
	return nil
}

// Fail terminalizes the execution with an error message. Failing from
// pending is the cancellation path for executions abandoned before
// dispatch; the record is kept, never deleted.
func (e *Execution) Fail(msg string) error {
	if e.IsTerminal() {
		return fmt.Errorf("fail execution %s: %w", e.ID, ErrAlreadyTerminal)
	}
	if msg == "" {
		msg = "unknown error"
	}
	now := time.Now().UTC()
	e.CompletedAt = &now
	e.ErrorMessage = msg
	e.Status = ExecFailed
	return nil
}

// Age returns how long the execution has been alive, measured from
// StartedAt when set, CreatedAt otherwise. Used by the abandoned
// execution sweep.
func (e *Execution) Age(now time.Time) time.Duration {
	if e.StartedAt != nil {
		return now.Sub(*e.StartedAt)
	}
	return now.Sub(e.CreatedAt)
}
