package task

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Status represents the activity state of a monitoring task
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// NotifyBehavior governs when a met condition produces a notification
// and how it affects the task's activity state
type NotifyBehavior string

const (
	// NotifyOnce notifies on the first condition-met execution and
	// completes the task
	NotifyOnce NotifyBehavior = "once"
	// NotifyAlways notifies on every condition-met execution
	NotifyAlways NotifyBehavior = "always"
	// NotifyTrackState notifies only when the result materially differs
	// from the last known state
	NotifyTrackState NotifyBehavior = "track_state"
)

// Task represents a recurring monitoring check: a search query plus a
// natural-language condition, evaluated on a cron schedule
type Task struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id" validate:"required"`

	Query          string          `json:"query" validate:"required,min=10,max=500"`
	Condition      string          `json:"condition" validate:"required,min=10,max=500"`
	Schedule       string          `json:"schedule" validate:"required"`
	NotifyBehavior NotifyBehavior  `json:"notify_behavior" validate:"required,oneof=once always track_state"`
	ChannelConfig  json.RawMessage `json:"channel_config,omitempty"`

	Status         Status          `json:"status"`
	LastKnownState json.RawMessage `json:"last_known_state,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New creates an active task with sensible defaults. The schedule is not
// parsed here; callers validate it before computing the first run time.
func New(ownerID, query, condition, schedule string, behavior NotifyBehavior) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Query:          query,
		Condition:      condition,
		Schedule:       schedule,
		NotifyBehavior: behavior,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithChannelConfig sets the notification channel configuration
func (t *Task) WithChannelConfig(cfg json.RawMessage) *Task {
	t.ChannelConfig = cfg
	return t
}

// Validate checks the task's configuration fields
func (t *Task) Validate() error {
	return validate.Struct(t)
}

// IsActive reports whether the task is eligible for scheduling
func (t *Task) IsActive() bool {
	return t.Status == StatusActive
}

// Pause stops scheduling. Pause is sticky: an in-flight execution
// completing later must not reactivate the task.
func (t *Task) Pause() {
	t.Status = StatusPaused
	t.NextRunAt = nil
	t.UpdatedAt = time.Now().UTC()
}

// Resume reactivates a paused task with a freshly computed next run time
func (t *Task) Resume(nextRun time.Time) {
	t.Status = StatusActive
	t.NextRunAt = &nextRun
	t.UpdatedAt = time.Now().UTC()
}

// Complete deactivates the task permanently and clears its schedule
func (t *Task) Complete() {
	t.Status = StatusCompleted
	t.NextRunAt = nil
	t.UpdatedAt = time.Now().UTC()
}

// ScheduleNext sets the next run time
func (t *Task) ScheduleNext(at time.Time) {
	t.NextRunAt = &at
	t.UpdatedAt = time.Now().UTC()
}
