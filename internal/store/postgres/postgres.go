// Package postgres implements registrystore.Store using GORM + PostgreSQL,
// grounded on the teacher's internal/plugin/store/postgres/postgres.go:
// same gorm.Open wiring, same DB-pool gauge goroutine, same pgconn
// constraint-violation inspection style.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	registrymigrate "github.com/gaspermerela/journal-service-sub002/internal/registry/migrate"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ForceImport is a no-op variable that can be referenced to ensure this
// package's init() runs (e.g. from main.go's blank-import callers, or from
// tests that need the plugin registered without otherwise using the
// package).
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &Store{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &migrator{}})
}

// Store implements registrystore.Store.
type Store struct {
	db *gorm.DB
}

func (s *Store) DB() *gorm.DB { return s.db }

// --- VoiceEntry ---

func (s *Store) CreateVoiceEntry(ctx context.Context, entry *model.VoiceEntry) error {
	defer observe("create_voice_entry", time.Now())
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) GetVoiceEntry(ctx context.Context, userID string, id uuid.UUID) (*model.VoiceEntry, error) {
	defer observe("get_voice_entry", time.Now())
	var entry model.VoiceEntry
	err := s.db.WithContext(ctx).Where("id = ? AND owner_user_id = ?", id, userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "voice_entry", ID: id.String()}
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// --- Transcription ---

func (s *Store) CreateTranscription(ctx context.Context, t *model.Transcription) error {
	defer observe("create_transcription", time.Now())
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) GetTranscription(ctx context.Context, id uuid.UUID) (*model.Transcription, error) {
	defer observe("get_transcription", time.Now())
	var t model.Transcription
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "transcription", ID: id.String()}
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ClaimTranscription(ctx context.Context, id uuid.UUID) (bool, error) {
	defer observe("claim_transcription", time.Now())
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&model.Transcription{}).
		Where("id = ? AND status = ?", id, model.TranscriptionPending).
		Updates(map[string]interface{}{"status": model.TranscriptionProcessing, "started_at": now, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) CompleteTranscription(ctx context.Context, id uuid.UUID, text []byte, segments []byte) error {
	defer observe("complete_transcription", time.Now())
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.Transcription{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"transcribed_text": text,
			"segments":         segments,
			"status":           model.TranscriptionCompleted,
			"completed_at":     now,
			"updated_at":       now,
		}).Error
}

func (s *Store) FailTranscription(ctx context.Context, id uuid.UUID, _ bool, message string) error {
	defer observe("fail_transcription", time.Now())
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.Transcription{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.TranscriptionFailed,
			"error_message": message,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
}

// PromoteTranscription implements the C7 first-writer-wins rule: the
// partial unique index on transcriptions(voice_entry_id) WHERE is_primary
// rejects a second concurrent promotion, which this method reports as
// "not promoted" rather than an error.
func (s *Store) PromoteTranscription(ctx context.Context, voiceEntryID, transcriptionID uuid.UUID) (bool, error) {
	defer observe("promote_transcription", time.Now())
	var promoted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Transcription{}).
			Where("id = ? AND voice_entry_id = ?", transcriptionID, voiceEntryID).
			Update("is_primary", true)
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				promoted = false
				return nil
			}
			return result.Error
		}
		promoted = result.RowsAffected == 1
		return nil
	})
	return promoted, err
}

func (s *Store) GetPrimaryTranscription(ctx context.Context, voiceEntryID uuid.UUID) (*model.Transcription, error) {
	defer observe("get_primary_transcription", time.Now())
	var t model.Transcription
	err := s.db.WithContext(ctx).
		Where("voice_entry_id = ? AND is_primary = true AND status = ?", voiceEntryID, model.TranscriptionCompleted).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "primary_transcription", ID: voiceEntryID.String()}
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListPendingTranscriptionIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.Transcription{}).
		Where("status = ?", model.TranscriptionPending).
		Order("created_at").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

// --- CleanedEntry ---

func (s *Store) CreateCleanedEntry(ctx context.Context, e *model.CleanedEntry) error {
	defer observe("create_cleaned_entry", time.Now())
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) GetCleanedEntry(ctx context.Context, id uuid.UUID) (*model.CleanedEntry, error) {
	defer observe("get_cleaned_entry", time.Now())
	var e model.CleanedEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "cleaned_entry", ID: id.String()}
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ClaimCleanup(ctx context.Context, id uuid.UUID) (bool, error) {
	defer observe("claim_cleanup", time.Now())
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&model.CleanedEntry{}).
		Where("id = ? AND status = ?", id, model.CleanupPending).
		Updates(map[string]interface{}{"status": model.CleanupProcessing, "started_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) CompleteCleanup(ctx context.Context, id uuid.UUID, cleanedText []byte, rawResponse string) error {
	defer observe("complete_cleanup", time.Now())
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.CleanedEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"cleaned_text":     cleanedText,
			"llm_raw_response": rawResponse,
			"status":           model.CleanupCompleted,
			"completed_at":     now,
		}).Error
}

func (s *Store) FailCleanup(ctx context.Context, id uuid.UUID, _ bool, message string) error {
	defer observe("fail_cleanup", time.Now())
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.CleanedEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.CleanupFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
}

func (s *Store) PromoteCleanup(ctx context.Context, voiceEntryID, cleanedEntryID uuid.UUID) (bool, error) {
	defer observe("promote_cleanup", time.Now())
	var promoted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.CleanedEntry{}).
			Where("id = ? AND voice_entry_id = ?", cleanedEntryID, voiceEntryID).
			Update("is_primary", true)
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				promoted = false
				return nil
			}
			return result.Error
		}
		promoted = result.RowsAffected == 1
		return nil
	})
	return promoted, err
}

func (s *Store) SetUserEditedText(ctx context.Context, id uuid.UUID, text []byte) error {
	defer observe("set_user_edited_text", time.Now())
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.CleanedEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{"user_edited_text": text, "user_edited_at": now}).Error
}

func (s *Store) ListPendingCleanupIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.CleanedEntry{}).
		Where("status = ?", model.CleanupPending).
		Order("created_at").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

// --- PromptTemplate ---

func (s *Store) GetActivePromptTemplate(ctx context.Context, entryType string) (*model.PromptTemplate, error) {
	defer observe("get_active_prompt_template", time.Now())
	var tpl model.PromptTemplate
	err := s.db.WithContext(ctx).
		Where("entry_type = ? AND is_active = true", entryType).
		Order("version DESC").First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "prompt_template", ID: entryType}
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// --- UserPreferences ---

func (s *Store) GetUserPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	defer observe("get_user_preferences", time.Now())
	var prefs model.UserPreferences
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserPreferences{
			UserID:            userID,
			PreferredLanguage: "auto",
			EncryptionEnabled: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (s *Store) UpsertUserPreferences(ctx context.Context, prefs *model.UserPreferences) error {
	defer observe("upsert_user_preferences", time.Now())
	prefs.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(prefs).Error
}

// --- ErasureAudit ---

func (s *Store) RecordErasureAudit(ctx context.Context, audit *model.ErasureAudit) error {
	defer observe("record_erasure_audit", time.Now())
	return s.db.WithContext(ctx).Create(audit).Error
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// isUniqueViolation mirrors internal/dekstore's duplicate-key detection:
// errors.Is for gorm's sentinel plus a substring fallback, since gorm
// drivers don't uniformly wrap the underlying pgconn error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "violates unique constraint")
}
