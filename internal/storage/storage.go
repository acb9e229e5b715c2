package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Common errors
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrAlreadyRunning means a non-terminal execution exists for the
	// task. Triggers hitting this are dropped, never queued; the next
	// scheduled occurrence retries naturally.
	ErrAlreadyRunning = errors.New("task already has an execution in flight")

	// ErrTaskConflict means the task row changed since it was read.
	// Callers re-read and re-apply their mutation.
	ErrTaskConflict = errors.New("task was modified concurrently")
)

// ExecutionFilter narrows ListExecutions results
type ExecutionFilter struct {
	// Status, when non-empty, keeps only executions in that state
	Status task.ExecStatus
	// Limit caps the number of executions returned (0 = no cap)
	Limit int
}

// Store defines the persistence interface for tasks and their execution
// log. Task rows require atomic read-modify-write (lock acquisition,
// lifecycle transitions); execution rows are append-only once terminal.
type Store interface {
	// CreateTask persists a new task and indexes its schedule
	CreateTask(ctx context.Context, t *task.Task) error

	// GetTask retrieves a task by ID
	GetTask(ctx context.Context, taskID string) (*task.Task, error)

	// UpdateTask persists task mutations and keeps the due-time index
	// in sync with NextRunAt
	UpdateTask(ctx context.Context, t *task.Task) error

	// DeleteTask removes the task, its schedule entry, and its
	// execution history
	DeleteTask(ctx context.Context, taskID string) error

	// ListTasks returns all tasks for an owner
	ListTasks(ctx context.Context, ownerID string) ([]*task.Task, error)

	// DueTaskIDs returns IDs of tasks whose next run time is at or
	// before now, oldest first
	DueTaskIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// AcquireExecution atomically creates the pending execution iff no
	// non-terminal execution exists for its task, acquiring the
	// per-task execution lock. Returns ErrAlreadyRunning otherwise.
	AcquireExecution(ctx context.Context, e *task.Execution) error

	// UpdateExecution persists a non-terminal execution state change
	// (pending to running). The caller must hold the execution lock.
	UpdateExecution(ctx context.Context, e *task.Execution) error

	// GetExecution retrieves an execution by ID
	GetExecution(ctx context.Context, execID string) (*task.Execution, error)

	// ListExecutions returns a task's executions, newest first
	ListExecutions(ctx context.Context, taskID string, f ExecutionFilter) ([]*task.Execution, error)

	// LiveExecutions returns all non-terminal executions across tasks,
	// used by the abandoned-execution sweep
	LiveExecutions(ctx context.Context) ([]*task.Execution, error)

	// CompleteExecution atomically writes the terminal execution record
	// and the task mutation decided from it, releases the execution
	// lock, and syncs the due-time index. A reader never observes the
	// terminal execution alongside the pre-decision task row.
	//
	// The task write is a compare-and-set against prior, the unmodified
	// snapshot the mutation was derived from: a concurrent write (pause,
	// resume) returns ErrTaskConflict without touching the task row, and
	// a concurrent delete returns ErrTaskNotFound without recreating it.
	// The execution record and lock release land in every case.
	CompleteExecution(ctx context.Context, prior, t *task.Task, e *task.Execution) error

	// Close releases storage resources
	Close() error
}
