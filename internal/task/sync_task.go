package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// SyncFunc performs a sync pass for userID; an empty userID means every user.
type SyncFunc func(ctx context.Context, userID string) error

// SyncTask is a Task that runs one sync pass.
type SyncTask struct {
	id     uuid.UUID
	userID string
	run    SyncFunc
	status atomic.Value
}

var _ Task = (*SyncTask)(nil)

// NewSyncTask creates a pending sync task for userID.
func NewSyncTask(userID string, run SyncFunc) (*SyncTask, error) {
	if run == nil {
		return nil, errors.New("sync function cannot be nil")
	}
	t := &SyncTask{id: uuid.New(), userID: userID, run: run}
	t.status.Store(StatusPending)
	return t, nil
}

func (t *SyncTask) ID() uuid.UUID { return t.id }

func (t *SyncTask) Type() string { return TypeSync }

// Key is shared by every sync task for the same user, so a user has at most
// one pass waiting.
func (t *SyncTask) Key() string { return TypeSync + ":" + t.userID }

// UserID returns the user the task syncs, empty for every user.
func (t *SyncTask) UserID() string { return t.userID }

func (t *SyncTask) Status() Status { return t.status.Load().(Status) }

// Execute runs the pass and records the outcome in the task status.
func (t *SyncTask) Execute(ctx context.Context) error {
	t.status.Store(StatusRunning)
	if err := t.run(ctx, t.userID); err != nil {
		t.status.Store(StatusFailed)
		return fmt.Errorf("sync for user %q failed: %w", t.userID, err)
	}
	t.status.Store(StatusSucceeded)
	return nil
}
