package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/domain"
	"github.com/phrazzld/scry-sync/internal/store"
	"github.com/phrazzld/scry-sync/internal/syncer"
)

// GetSyncStatus implements StudyService.GetSyncStatus
func (s *studyServiceImpl) GetSyncStatus() syncer.Status {
	return s.engine.Status()
}

// SubscribeSyncStatus implements StudyService.SubscribeSyncStatus
func (s *studyServiceImpl) SubscribeSyncStatus() (<-chan syncer.Status, func()) {
	return s.engine.Subscribe()
}

// ForceSync implements StudyService.ForceSync
func (s *studyServiceImpl) ForceSync(userID uuid.UUID) error {
	owner := ""
	if userID != uuid.Nil {
		owner = userID.String()
	}
	return s.engine.ForceSync(owner)
}

// MigrateLocalToRemote implements StudyService.MigrateLocalToRemote
func (s *studyServiceImpl) MigrateLocalToRemote(ctx context.Context, userID uuid.UUID) (syncer.MigrationResult, error) {
	if userID == uuid.Nil {
		return syncer.MigrationResult{}, domain.NewValidationError("user_id", "cannot be empty", domain.ErrInvalidID)
	}
	return s.engine.MigrateLocalToRemote(ctx, userID.String())
}

// PendingConflicts implements StudyService.PendingConflicts
func (s *studyServiceImpl) PendingConflicts(userID uuid.UUID) []syncer.Conflict {
	return s.engine.PendingConflicts(userID.String())
}

// ResolveConflict implements StudyService.ResolveConflict
func (s *studyServiceImpl) ResolveConflict(
	ctx context.Context,
	userID uuid.UUID,
	collection store.Collection,
	documentID string,
	resolution syncer.Resolution,
) (syncer.Conflict, error) {
	if !collection.Valid() {
		return syncer.Conflict{}, domain.NewValidationError("collection", "unknown collection", nil)
	}
	return s.engine.ResolveConflict(ctx, userID.String(), collection, documentID, resolution)
}
