// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a scheduled task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting for its timer
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates the callback is executing
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the callback returned
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the callback panicked
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the task was cancelled before it ran
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed || s == TaskStatusCanceled
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is one deferred callback owned by a Scheduler.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// Key groups tasks for cancellation (the conversation ID for replies)
	Key string

	// Status is the current state of the task
	Status TaskStatus

	// Scheduled is when the task was created
	Scheduled time.Time

	// Due is when the timer fires
	Due time.Time

	// StartTime is when the callback started
	StartTime time.Time

	// EndTime is when the task reached a terminal state
	EndTime time.Time

	// Error holds the recovered panic message of a failed task
	Error string

	cancel context.CancelFunc
	mu     sync.RWMutex
}

// NewTask creates a queued task.
func NewTask(key string, scheduled, due time.Time) *Task {
	return &Task{
		ID:        newTaskID(),
		Key:       key,
		Status:    TaskStatusQueued,
		Scheduled: scheduled,
		Due:       due,
	}
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus updates the task status (thread-safe).
// Valid transitions: Queued -> Running -> Complete/Failed, Queued -> Canceled.
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	t.Status = status
	return nil
}

func isValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusFailed
	default:
		return false
	}
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// GetError returns the failure message, if any.
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// markStarted moves a queued task to running. It returns false when the task
// was cancelled first, in which case the callback must not run.
func (t *Task) markStarted(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != TaskStatusQueued {
		return false
	}
	t.Status = TaskStatusRunning
	t.StartTime = now
	return true
}

func (t *Task) markComplete(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusComplete
	t.EndTime = now
}

func (t *Task) markFailed(now time.Time, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskStatusFailed
	t.Error = reason
	t.EndTime = now
}

// cancelTask cancels the task context. A queued task becomes Canceled and
// true is returned; a running task only has its context cancelled.
func (t *Task) cancelTask(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.Status != TaskStatusQueued {
		return false
	}
	t.Status = TaskStatusCanceled
	t.EndTime = now
	return true
}

// Duration returns how long the callback ran, or 0 if it never started.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// IsComplete returns true if the task reached a terminal state.
func (t *Task) IsComplete() bool {
	return t.GetStatus().Terminal()
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := fmt.Sprintf("[%s] %s - %s", shortID(t.ID), t.Key, t.Status)
	if delay := t.Due.Sub(t.Scheduled); delay > 0 {
		summary += fmt.Sprintf(" (delay %.1fs)", delay.Seconds())
	}
	return summary
}

// Clone creates a copy of the task for reading.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:        t.ID,
		Key:       t.Key,
		Status:    t.Status,
		Scheduled: t.Scheduled,
		Due:       t.Due,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Error:     t.Error,
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
