package task

import (
	"errors"
	"testing"
	"time"
)

func TestNewExecution(t *testing.T) {
	e := NewExecution("task-1")

	if e.ID == "" {
		t.Error("Expected execution ID to be generated")
	}
	if e.Status != ExecPending {
		t.Errorf("Expected pending, got %s", e.Status)
	}
	if e.StartedAt != nil || e.CompletedAt != nil {
		t.Error("Expected no timestamps before start")
	}
	if e.ConditionMet != nil {
		t.Error("Expected condition_met unset while pending")
	}
}

func TestExecutionHappyPath(t *testing.T) {
	e := NewExecution("task-1")

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if e.Status != ExecRunning || e.StartedAt == nil {
		t.Fatalf("Expected running with started-at, got %s", e.Status)
	}

	result := &CheckResult{Answer: "in stock at retailer", ConditionMet: true}
	if err := e.Succeed(result); err != nil {
		t.Fatalf("Succeed failed: %v", err)
	}

	if e.Status != ExecSuccess {
		t.Errorf("Expected success, got %s", e.Status)
	}
	if e.CompletedAt == nil {
		t.Error("Expected completed-at on terminal execution")
	}
	if e.ConditionMet == nil || !*e.ConditionMet {
		t.Error("Expected condition_met true")
	}
	if e.Result == nil {
		t.Error("Expected result to be recorded")
	}
}

func TestExecutionFailure(t *testing.T) {
	e := NewExecution("task-1")
	_ = e.Start()

	if err := e.Fail("agent call timed out"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if e.Status != ExecFailed {
		t.Errorf("Expected failed, got %s", e.Status)
	}
	if e.ErrorMessage == "" {
		t.Error("Expected error message on failed execution")
	}
	if e.CompletedAt == nil {
		t.Error("Expected completed-at on failed execution")
	}
	if e.ConditionMet != nil || e.Result != nil {
		t.Error("Expected no result fields on failed execution")
	}
}

func TestFailFromPendingIsCancellation(t *testing.T) {
	e := NewExecution("task-1")

	if err := e.Fail("cancelled before dispatch"); err != nil {
		t.Fatalf("Expected pending execution to be failable, got %v", err)
	}
	if e.Status != ExecFailed {
		t.Errorf("Expected failed, got %s", e.Status)
	}
}

func TestSucceedRequiresRunning(t *testing.T) {
	e := NewExecution("task-1")

	err := e.Succeed(&CheckResult{Answer: "answer text"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition from pending, got %v", err)
	}
}

func TestDoubleTerminalFailsLoudly(t *testing.T) {
	e := NewExecution("task-1")
	_ = e.Start()
	_ = e.Succeed(&CheckResult{Answer: "answer text"})

	if err := e.Fail("late failure"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on fail-after-success, got %v", err)
	}
	if err := e.Succeed(&CheckResult{Answer: "again"}); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on second succeed, got %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal on start-after-terminal, got %v", err)
	}
}

func TestAge(t *testing.T) {
	e := NewExecution("task-1")
	e.CreatedAt = time.Now().UTC().Add(-10 * time.Minute)

	if age := e.Age(time.Now().UTC()); age < 9*time.Minute {
		t.Errorf("Expected age from created-at, got %v", age)
	}

	started := time.Now().UTC().Add(-2 * time.Minute)
	e.StartedAt = &started
	if age := e.Age(time.Now().UTC()); age > 3*time.Minute {
		t.Errorf("Expected age from started-at, got %v", age)
	}
}
