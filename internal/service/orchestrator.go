package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gaspermerela/journal-service-sub002/internal/dekstore"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	pipelinetranscription "github.com/gaspermerela/journal-service-sub002/internal/pipeline/transcription"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

// Orchestrator implements C8: it accepts an uploaded audio handle, creates
// the VoiceEntry + DEK atomically, and optionally kicks off transcription.
type Orchestrator struct {
	store        registrystore.Store
	kek          kek.Backend
	transcriber  *pipelinetranscription.Dispatcher
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(store registrystore.Store, kekBackend kek.Backend, transcriber *pipelinetranscription.Dispatcher) *Orchestrator {
	return &Orchestrator{store: store, kek: kekBackend, transcriber: transcriber}
}

// CreateVoiceEntry implements spec.md §4.8: one transaction inserts the
// VoiceEntry and mints its DEK; a uniqueness conflict on the VoiceEntry (a
// retried call sharing the same VoiceEntry id) returns the existing row
// instead of erroring, making creation idempotent under such retries.
func (o *Orchestrator) CreateVoiceEntry(ctx context.Context, entryID uuid.UUID, userID, audioStorageKey, filename string, durationSeconds float64) (*model.VoiceEntry, error) {
	entry := &model.VoiceEntry{
		ID:                 entryID,
		OwnerUserID:        userID,
		AudioStorageKey:    audioStorageKey,
		OriginalFilename:   filename,
		DurationSeconds:    durationSeconds,
		IsEncrypted:        true,
		EncryptionProvider: o.kek.ID(),
		CreatedAt:          time.Now(),
	}

	err := o.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
		if result.Error != nil {
			return fmt.Errorf("orchestrator: creating voice entry: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			existing := &model.VoiceEntry{}
			if err := tx.Where("id = ?", entry.ID).First(existing).Error; err != nil {
				return fmt.Errorf("orchestrator: loading existing voice entry: %w", err)
			}
			entry = existing
			return nil
		}
		if _, _, err := dekstore.CreateForEntry(ctx, tx, o.kek, userID, entry.ID); err != nil {
			return fmt.Errorf("orchestrator: minting DEK: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// TranscribeWithPreferredLanguage kicks off stage 1 using the caller's
// preferred language, honoring spec.md §4.8 step 5 ("optionally kick off
// transcription"). Errors here are logged, not returned, so an upload isn't
// rolled back by a transcription-enqueue failure.
func (o *Orchestrator) TranscribeWithPreferredLanguage(ctx context.Context, voiceEntryID uuid.UUID, preferredLanguage, provider string) {
	_, err := o.transcriber.Enqueue(ctx, voiceEntryID, pipelinetranscription.Request{
		Provider: provider,
		Language: preferredLanguage,
	})
	if err != nil {
		log.Error("orchestrator: auto-transcribe enqueue failed", "voice_entry_id", voiceEntryID, "err", err)
	}
}
