// Package engine drives monitoring tasks: a clock loop triggers due
// tasks, each trigger runs one locked execution against the agent
// gateway, and the notify policy decides what happens to the task.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prassanna-ravishankar/torale/internal/agent"
	"github.com/prassanna-ravishankar/torale/internal/config"
	"github.com/prassanna-ravishankar/torale/internal/monitoring"
	"github.com/prassanna-ravishankar/torale/internal/notify"
	"github.com/prassanna-ravishankar/torale/internal/schedule"
	"github.com/prassanna-ravishankar/torale/internal/storage"
	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Service errors
var (
	// ErrTaskNotActive is returned when an operation requires an active
	// task, e.g. executeNow against a paused or completed task
	ErrTaskNotActive = errors.New("task is not active")

	// ErrTaskNotPaused is returned when resuming a task that is not
	// paused
	ErrTaskNotPaused = errors.New("task is not paused")
)

// TaskConfig is the user-supplied configuration for a new task
type TaskConfig struct {
	OwnerID        string
	Query          string
	Condition      string
	Schedule       string
	NotifyBehavior task.NotifyBehavior
	ChannelConfig  json.RawMessage
}

// Service owns the task lifecycle and the execution engine. It is the
// surface the (external) REST layer consumes.
type Service struct {
	store      storage.Store
	gateway    agent.Gateway
	dispatcher *notify.Dispatcher
	metrics    *monitoring.Metrics
	logger     zerolog.Logger
	cfg        config.EngineConfig

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewService creates the engine service
func NewService(store storage.Store, gateway agent.Gateway, dispatcher *notify.Dispatcher,
	metrics *monitoring.Metrics, logger zerolog.Logger, cfg config.EngineConfig) *Service {
	if metrics == nil {
		metrics = monitoring.New()
	}
	return &Service{
		store:      store,
		gateway:    gateway,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// CreateTask validates the configuration, computes the first run time,
// and persists the new active task
func (s *Service) CreateTask(ctx context.Context, cfg TaskConfig) (*task.Task, error) {
	t := task.New(cfg.OwnerID, cfg.Query, cfg.Condition, cfg.Schedule, cfg.NotifyBehavior)
	t.WithChannelConfig(cfg.ChannelConfig)

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}
	if err := schedule.Validate(t.Schedule); err != nil {
		return nil, err
	}

	next, err := schedule.NextAfter(t.Schedule, time.Now())
	if err != nil {
		return nil, err
	}
	t.ScheduleNext(next)

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", t.ID).
		Str("owner_id", t.OwnerID).
		Str("schedule", t.Schedule).
		Str("behavior", string(t.NotifyBehavior)).
		Time("next_run_at", next).
		Msg("task created")
	return t, nil
}

// GetTask retrieves a task by ID
func (s *Service) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// ListTasks returns all tasks for an owner
func (s *Service) ListTasks(ctx context.Context, ownerID string) ([]*task.Task, error) {
	return s.store.ListTasks(ctx, ownerID)
}

// PauseTask stops scheduling an active task. An in-flight execution is
// allowed to finish; the pause is sticky until an explicit resume.
func (s *Service) PauseTask(ctx context.Context, taskID string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == task.StatusPaused {
		return nil
	}
	if t.Status != task.StatusActive {
		return fmt.Errorf("pause task %s (%s): %w", taskID, t.Status, ErrTaskNotActive)
	}

	t.Pause()
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", taskID).Msg("task paused")
	return nil
}

// ResumeTask reactivates a paused task with a next run time recomputed
// from the resume instant; occurrences paused over are not replayed
func (s *Service) ResumeTask(ctx context.Context, taskID string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusPaused {
		return fmt.Errorf("resume task %s (%s): %w", taskID, t.Status, ErrTaskNotPaused)
	}

	next, err := schedule.NextAfter(t.Schedule, time.Now())
	if err != nil {
		return err
	}
	t.Resume(next)
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", taskID).Time("next_run_at", next).Msg("task resumed")
	return nil
}

// DeleteTask removes a task, its schedule entry, and its execution history
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", taskID).Msg("task deleted")
	return nil
}

// ExecuteNow triggers a task immediately, bypassing the cron clock but
// not the execution lock. Paused and completed tasks are rejected with
// ErrTaskNotActive.
func (s *Service) ExecuteNow(ctx context.Context, taskID string) (*task.Execution, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, fmt.Errorf("execute task %s (%s): %w", taskID, t.Status, ErrTaskNotActive)
	}
	return s.runTask(ctx, taskID)
}

// ListExecutions returns a task's execution history, newest first
func (s *Service) ListExecutions(ctx context.Context, taskID string, f storage.ExecutionFilter) ([]*task.Execution, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, taskID, f)
}

// PreviewCheck runs a one-off agent check without creating a task or an
// execution record. Length bounds count runes, matching task validation.
func (s *Service) PreviewCheck(ctx context.Context, query, condition string) (*task.CheckResult, error) {
	if n := utf8.RuneCountInString(query); n < 10 || n > 500 {
		return nil, fmt.Errorf("query must be between 10 and 500 characters")
	}
	if n := utf8.RuneCountInString(condition); n < 10 || n > 500 {
		return nil, fmt.Errorf("condition must be between 10 and 500 characters")
	}
	return s.gateway.Check(ctx, task.CheckRequest{Query: query, Condition: condition})
}

// Run starts the clock and reaper loops and blocks until ctx is
// cancelled and all in-flight executions have finished
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("reap_interval", s.cfg.ReapInterval).
		Msg("engine starting")

	s.wg.Add(2)
	go s.runClock(ctx)
	go s.runReaper(ctx)

	<-ctx.Done()
	s.logger.Info().Msg("engine shutting down")
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("engine stopped")
	return nil
}
