// Package task runs warehouse transport tasks, such as moving a pallet from
// a dock to a storage location, on a bounded pool of workers.
//
// Tasks are created PENDING and queued in creation order. A worker takes
// them IN_PROGRESS, then the task ends COMPLETED or FAILED.
package task

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	ErrNotFound      = errors.New("task: not found")
	ErrEmptyType     = errors.New("task: type is required")
	ErrInvalidStatus = errors.New("task: invalid status transition")
	// ErrInterrupted marks tasks stopped by a forced shutdown.
	ErrInterrupted = errors.New("task: interrupted by shutdown")
	ErrClosed      = errors.New("task: manager is shut down")
)

// Task moves something from Source to Destination.
type Task struct {
	ID          string
	Type        string
	Source      string
	Destination string
	Status      Status
	// Failure holds the error of a FAILED task.
	Failure   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Done reports whether the task reached a terminal status.
func (t Task) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
