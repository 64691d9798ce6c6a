// Package dekstore manages the one-DEK-per-VoiceEntry lifecycle: generation,
// wrapping/unwrapping through a kek.Backend, and cryptographic destruction.
//
// Unlike the teacher's dekstore (one shared DEK record per encryption
// provider, cached process-wide), every VoiceEntry here owns an independent
// DataEncryptionKey row, enforced by a unique index on voice_entry_id.
package dekstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgcrypto "github.com/gaspermerela/journal-service-sub002/internal/crypto"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
)

// destroyedSentinel marks WrappedKey after Destroy has run, so a destroyed
// DEK is distinguishable at a glance from a row that was never wrapped.
var destroyedSentinel = []byte("destroyed")

// CreateForEntry generates a fresh DEK, wraps it via backend, and inserts the
// DataEncryptionKey row for voiceEntryID. Idempotent under concurrent
// creators: on a unique-index conflict it loads and returns the existing row
// instead of erroring, unwrapping it with the same backend.
func CreateForEntry(ctx context.Context, db *gorm.DB, backend kek.Backend, ownerUserID string, voiceEntryID uuid.UUID) (*model.DataEncryptionKey, []byte, error) {
	plainDEK, err := pkgcrypto.GenerateDEK()
	if err != nil {
		return nil, nil, fmt.Errorf("dekstore: generating DEK: %w", err)
	}
	defer pkgcrypto.Zeroize(plainDEK)

	wrapped, err := backend.Wrap(ctx, plainDEK)
	if err != nil {
		return nil, nil, fmt.Errorf("dekstore: wrapping DEK: %w", err)
	}

	row := &model.DataEncryptionKey{
		ID:                 uuid.New(),
		OwnerUserID:        ownerUserID,
		VoiceEntryID:       voiceEntryID,
		WrappedKey:         wrapped,
		EncryptionProvider: backend.ID(),
		KeyVersion:         1,
		CreatedAt:          time.Now(),
	}

	err = db.WithContext(ctx).Create(row).Error
	switch {
	case err == nil:
		return row, append([]byte(nil), plainDEK...), nil
	case isUniqueViolation(err):
		existing, existingPlain, loadErr := LoadPlaintextDEK(ctx, db, backend, voiceEntryID)
		if loadErr != nil {
			return nil, nil, fmt.Errorf("dekstore: loading existing DEK after conflict: %w", loadErr)
		}
		return existing, existingPlain, nil
	default:
		return nil, nil, fmt.Errorf("dekstore: creating DEK row: %w", err)
	}
}

// LoadPlaintextDEK loads the active (non-destroyed) DataEncryptionKey row for
// voiceEntryID and unwraps it via backend.
func LoadPlaintextDEK(ctx context.Context, db *gorm.DB, backend kek.Backend, voiceEntryID uuid.UUID) (*model.DataEncryptionKey, []byte, error) {
	var row model.DataEncryptionKey
	err := db.WithContext(ctx).
		Where("voice_entry_id = ? AND deleted_at IS NULL", voiceEntryID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("dekstore: no DEK for voice entry %s: %w", voiceEntryID, pkgcrypto.ErrKeyUnavailable)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dekstore: loading DEK: %w", err)
	}

	plain, err := backend.Unwrap(ctx, row.WrappedKey)
	if err != nil {
		return nil, nil, fmt.Errorf("dekstore: unwrapping DEK: %w", err)
	}
	return &row, plain, nil
}

// Destroy cryptographically shreds the DEK for voiceEntryID: the wrapped key
// material is overwritten with a sentinel and the row is soft-deleted.
// Destroy is irreversible — any ciphertext still referencing this DEK becomes
// permanently unreadable. Idempotent: if the row was already destroyed, this
// returns the existing tombstone's ID with no error rather than
// ErrKeyUnavailable, so a repeated erase request is a no-op success (spec.md
// §4.2). Only a voice entry that never had a DEK at all still errors.
func Destroy(ctx context.Context, db *gorm.DB, voiceEntryID uuid.UUID) (uuid.UUID, error) {
	var row model.DataEncryptionKey
	err := db.WithContext(ctx).
		Where("voice_entry_id = ? AND deleted_at IS NULL", voiceEntryID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// DeletedAt here is a plain nullable column, not gorm's soft-delete
		// convention, so a second lookup without the IS NULL filter finds an
		// already-destroyed row directly.
		var tombstone model.DataEncryptionKey
		tErr := db.WithContext(ctx).
			Where("voice_entry_id = ?", voiceEntryID).
			First(&tombstone).Error
		if tErr == nil {
			return tombstone.ID, nil
		}
		return uuid.Nil, fmt.Errorf("dekstore: destroy: %w", pkgcrypto.ErrKeyUnavailable)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("dekstore: destroy: loading DEK: %w", err)
	}

	now := time.Now()
	err = db.WithContext(ctx).Model(&row).Updates(map[string]interface{}{
		"wrapped_key": destroyedSentinel,
		"deleted_at":  now,
	}).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("dekstore: destroy: %w", err)
	}
	return row.ID, nil
}

// Rotate rewraps the plaintext DEK for voiceEntryID under newBackend,
// bumping KeyVersion and RotatedAt. The DEK's plaintext bytes never change —
// only the wrapping changes — so existing ciphertext under this DEK remains
// valid.
func Rotate(ctx context.Context, db *gorm.DB, oldBackend, newBackend kek.Backend, voiceEntryID uuid.UUID) error {
	row, plain, err := LoadPlaintextDEK(ctx, db, oldBackend, voiceEntryID)
	if err != nil {
		return fmt.Errorf("dekstore: rotate: %w", err)
	}
	defer pkgcrypto.Zeroize(plain)

	rewrapped, err := newBackend.Wrap(ctx, plain)
	if err != nil {
		return fmt.Errorf("dekstore: rotate: rewrapping: %w", err)
	}

	now := time.Now()
	return db.WithContext(ctx).Model(&model.DataEncryptionKey{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"wrapped_key":         rewrapped,
			"encryption_provider": newBackend.ID(),
			"key_version":         row.KeyVersion + 1,
			"rotated_at":          now,
		}).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "violates unique constraint")
}
