package task

import (
	"context"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TypeSync runs one sync pass for a user, or for every user with pending
// changes when the user ID is empty.
const TypeSync = "sync"

// Task is a unit of background work.
type Task interface {
	ID() uuid.UUID
	Type() string

	// Key identifies the work the task performs. Two tasks with the same key
	// are interchangeable while neither has started.
	Key() string

	Status() Status
	Execute(ctx context.Context) error
}

// Source hands tasks to workers.
type Source interface {
	// Next blocks until a task is available. It returns false once the source
	// is closed and drained, or when ctx is done.
	Next(ctx context.Context) (Task, bool)
}
