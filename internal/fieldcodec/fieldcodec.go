// Package fieldcodec implements the encrypted-field codec (C3): every
// ciphertext column is encrypted/decrypted against the DEK owning its
// VoiceEntry, with associated data binding the ciphertext to a field tag so
// transcript bytes can never be swapped for cleanup bytes at the same entry.
package fieldcodec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgcrypto "github.com/gaspermerela/journal-service-sub002/internal/crypto"
	"github.com/gaspermerela/journal-service-sub002/internal/dekstore"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

// FieldTag distinguishes ciphertext columns sharing the same VoiceEntry so
// associated-data binding rejects cross-field substitution.
type FieldTag string

const (
	FieldTranscript     FieldTag = "transcript"
	FieldSegments       FieldTag = "segments"
	FieldCleanedText    FieldTag = "cleaned_text"
	FieldUserEditedText FieldTag = "user_edited_text"
)

// Codec encrypts and decrypts fields against per-VoiceEntry DEKs, caching
// plaintext DEKs for the lifetime of one request so a multi-field operation
// (e.g. cleanup reading the transcript then writing cleaned text) only
// unwraps each DEK once.
type Codec struct {
	db      *gorm.DB
	backend kek.Backend

	mu   sync.Mutex
	deks map[uuid.UUID][]byte
}

// New returns a Codec scoped to one request/unit-of-work. Call Close when
// done to zeroize cached plaintext DEKs.
func New(db *gorm.DB, backend kek.Backend) *Codec {
	return &Codec{
		db:      db,
		backend: backend,
		deks:    make(map[uuid.UUID][]byte),
	}
}

// Close zeroizes every DEK cached during this Codec's lifetime.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, key := range c.deks {
		pkgcrypto.Zeroize(key)
		delete(c.deks, id)
	}
}

// EncryptField encrypts plaintext against voiceEntryID's DEK, binding it to
// tag via associated data.
func (c *Codec) EncryptField(ctx context.Context, voiceEntryID uuid.UUID, tag FieldTag, plaintext []byte) ([]byte, error) {
	dek, err := c.loadDEK(ctx, voiceEntryID)
	if err != nil {
		return nil, err
	}
	ad := pkgcrypto.AssociatedData(string(tag), voiceEntryID.String())
	ciphertext, err := pkgcrypto.Encrypt(plaintext, dek, ad)
	if err != nil {
		return nil, fmt.Errorf("fieldcodec: encrypt %s: %w", tag, err)
	}
	return ciphertext, nil
}

// DecryptField decrypts ciphertext previously produced by EncryptField for
// the same voiceEntryID and tag. Returns a GoneError if the DEK has been
// cryptographically destroyed.
func (c *Codec) DecryptField(ctx context.Context, voiceEntryID uuid.UUID, tag FieldTag, ciphertext []byte) ([]byte, error) {
	dek, err := c.loadDEK(ctx, voiceEntryID)
	if err != nil {
		if errors.Is(err, pkgcrypto.ErrKeyUnavailable) {
			return nil, &registrystore.GoneError{Resource: "voice_entry_dek", ID: voiceEntryID.String()}
		}
		return nil, err
	}
	ad := pkgcrypto.AssociatedData(string(tag), voiceEntryID.String())
	plaintext, err := pkgcrypto.Decrypt(ciphertext, dek, ad)
	if err != nil {
		return nil, fmt.Errorf("fieldcodec: decrypt %s: %w", tag, err)
	}
	return plaintext, nil
}

func (c *Codec) loadDEK(ctx context.Context, voiceEntryID uuid.UUID) ([]byte, error) {
	c.mu.Lock()
	if dek, ok := c.deks[voiceEntryID]; ok {
		c.mu.Unlock()
		return dek, nil
	}
	c.mu.Unlock()

	_, plain, err := dekstore.LoadPlaintextDEK(ctx, c.db, c.backend, voiceEntryID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.deks[voiceEntryID] = plain
	c.mu.Unlock()
	return plain, nil
}
