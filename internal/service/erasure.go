package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gaspermerela/journal-service-sub002/internal/dekstore"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

// ErasureResult is returned from Erase (spec.md §6 POST /encryption/erase).
type ErasureResult struct {
	DEKID       uuid.UUID
	DestroyedAt time.Time
}

// ErasureCoordinator implements C9: cryptographic shredding. Ciphertext rows
// are never touched; destroying the DEK is sufficient to make them
// permanently unreadable (spec.md §4.9).
type ErasureCoordinator struct {
	store registrystore.Store
}

// NewErasureCoordinator builds an ErasureCoordinator.
func NewErasureCoordinator(store registrystore.Store) *ErasureCoordinator {
	return &ErasureCoordinator{store: store}
}

// Erase verifies ownership, destroys the voice entry's DEK, and records an
// audit row. confirm must be true — callers are expected to have already
// surfaced an "are you sure" prompt; this coordinator does not itself ask.
func (e *ErasureCoordinator) Erase(ctx context.Context, userID string, voiceEntryID uuid.UUID, confirm bool) (*ErasureResult, error) {
	if !confirm {
		return nil, &registrystore.ValidationError{Field: "confirm", Message: "erasure requires confirm=true"}
	}

	if _, err := e.store.GetVoiceEntry(ctx, userID, voiceEntryID); err != nil {
		return nil, err
	}

	dekID, err := dekstore.Destroy(ctx, e.store.DB(), voiceEntryID)
	if err != nil {
		return nil, err
	}

	destroyedAt := time.Now()
	audit := &model.ErasureAudit{
		ID:           uuid.New(),
		UserID:       userID,
		VoiceEntryID: voiceEntryID,
		DEKID:        dekID,
		Reason:       "user_requested",
		DestroyedAt:  destroyedAt,
	}
	if err := e.store.RecordErasureAudit(ctx, audit); err != nil {
		return nil, err
	}

	return &ErasureResult{DEKID: dekID, DestroyedAt: destroyedAt}, nil
}
