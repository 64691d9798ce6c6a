// Package store is the plugin registry for storage backends, mirroring the
// Register/Names/Select shape used throughout this codebase for every other
// pluggable concern (KEK backends, transcription providers, LLM providers).
package store

import (
	"context"
	"fmt"

	"github.com/gaspermerela/journal-service-sub002/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the primary data-access interface for the voice journal service.
// It owns persistence for every entity in the data model (spec.md §3); DEK
// persistence specifically is delegated to internal/dekstore, which takes a
// *gorm.DB rather than this interface so it can share a transaction with
// VoiceEntry creation (DB exposes the escape hatch for that).
type Store interface {
	// DB returns the underlying gorm handle so the service layer (C8/C9) can
	// open transactions spanning a VoiceEntry insert and a DEK mint, and so
	// the pipelines (C5/C6) can perform the compare-and-set primary-selection
	// writes that only a single UPDATE inside a transaction can express.
	DB() *gorm.DB

	CreateVoiceEntry(ctx context.Context, entry *model.VoiceEntry) error
	GetVoiceEntry(ctx context.Context, userID string, id uuid.UUID) (*model.VoiceEntry, error)

	CreateTranscription(ctx context.Context, t *model.Transcription) error
	GetTranscription(ctx context.Context, id uuid.UUID) (*model.Transcription, error)
	// ClaimTranscription atomically transitions a row from pending to
	// processing (compare-and-set on status), returning false if another
	// worker already claimed it.
	ClaimTranscription(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteTranscription(ctx context.Context, id uuid.UUID, text []byte, segments []byte) error
	FailTranscription(ctx context.Context, id uuid.UUID, permanent bool, message string) error
	// PromoteTranscription sets is_primary=true for id if the voice entry has
	// no existing primary transcription, inside one transaction guarded by
	// the partial unique index (C7). Returns whether it became primary.
	PromoteTranscription(ctx context.Context, voiceEntryID, transcriptionID uuid.UUID) (bool, error)
	GetPrimaryTranscription(ctx context.Context, voiceEntryID uuid.UUID) (*model.Transcription, error)
	ListPendingTranscriptionIDs(ctx context.Context, limit int) ([]uuid.UUID, error)

	CreateCleanedEntry(ctx context.Context, e *model.CleanedEntry) error
	GetCleanedEntry(ctx context.Context, id uuid.UUID) (*model.CleanedEntry, error)
	ClaimCleanup(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteCleanup(ctx context.Context, id uuid.UUID, cleanedText []byte, rawResponse string) error
	FailCleanup(ctx context.Context, id uuid.UUID, permanent bool, message string) error
	PromoteCleanup(ctx context.Context, voiceEntryID, cleanedEntryID uuid.UUID) (bool, error)
	SetUserEditedText(ctx context.Context, id uuid.UUID, text []byte) error
	ListPendingCleanupIDs(ctx context.Context, limit int) ([]uuid.UUID, error)

	GetActivePromptTemplate(ctx context.Context, entryType string) (*model.PromptTemplate, error)

	GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error)
	UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error

	RecordErasureAudit(ctx context.Context, audit *model.ErasureAudit) error
}

// NotFoundError indicates the resource was not found (or user lacks access).
// (kept in errors.go alongside the rest of the taxonomy)

// Loader creates a Store from config, invoked once at startup.
type Loader func(ctx context.Context) (Store, error)

// Plugin bundles a store backend name with its loader function.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in provider packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; registered: %v", name, Names())
}
