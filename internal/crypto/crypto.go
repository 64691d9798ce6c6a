// Package crypto implements the envelope-encryption primitives: AEAD over
// arbitrary bytes, key wrapping, and the on-disk ciphertext framing.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// envelopeVersion is written as the first byte of every ciphertext produced
// by this package.
const envelopeVersion byte = 1

// DEKSize is the size in bytes of a generated data-encryption key.
const DEKSize = chacha20poly1305.KeySize // 32

// ErrInvalidCiphertext is returned when ciphertext is malformed or fails
// authentication (tampering, wrong key, wrong associated data).
var ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")

// ErrKeyUnavailable is returned when the key required for an operation
// cannot be produced (e.g. wrong length).
var ErrKeyUnavailable = errors.New("crypto: key unavailable")

// GenerateDEK returns a fresh 32-byte data-encryption key sourced from a
// CSPRNG.
func GenerateDEK() ([]byte, error) {
	key := make([]byte, DEKSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return key, nil
}

// Zeroize overwrites key material in place. Call via defer as soon as a key
// buffer is no longer needed.
func Zeroize(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// Encrypt seals plaintext under key, binding it to associatedData. The
// returned ciphertext has the framing `version_byte || nonce || tag || body`
// as specified for the on-disk envelope. The AEAD is XChaCha20-Poly1305,
// whose sealed output is body||tag with the nonce kept separate, so this
// function lays the parts out explicitly rather than relying on the AEAD's
// internal concatenation order.
func Encrypt(plaintext, key []byte, associatedData string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	// Seal appends body||tag to dst; carve them apart so the envelope can
	// place tag before body per the spec's framing.
	sealed := aead.Seal(nil, nonce, plaintext, []byte(associatedData))
	tagSize := aead.Overhead()
	if len(sealed) < tagSize {
		return nil, ErrInvalidCiphertext
	}
	body := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, 1+len(nonce)+len(tag)+len(body))
	out = append(out, envelopeVersion)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, body...)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt, verifying associatedData
// binds it to the same entity it was encrypted for.
func Decrypt(ciphertext, key []byte, associatedData string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	tagSize := aead.Overhead()
	minLen := 1 + nonceSize + tagSize
	if len(ciphertext) < minLen {
		return nil, ErrInvalidCiphertext
	}
	if ciphertext[0] != envelopeVersion {
		return nil, ErrInvalidCiphertext
	}

	nonce := ciphertext[1 : 1+nonceSize]
	tag := ciphertext[1+nonceSize : 1+nonceSize+tagSize]
	body := ciphertext[1+nonceSize+tagSize:]

	sealed := make([]byte, 0, len(body)+len(tag))
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, []byte(associatedData))
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// Wrap encrypts a data-encryption key under a key-encryption key. Wrapped
// bytes use the same envelope framing as Encrypt, with a fixed associated
// data tag so a wrapped key can't be silently reinterpreted as a field
// ciphertext or vice versa.
func Wrap(dek, kek []byte) ([]byte, error) {
	return Encrypt(dek, kek, "kek-wrap:dek")
}

// Unwrap decrypts a DEK previously sealed by Wrap.
func Unwrap(wrapped, kek []byte) ([]byte, error) {
	return Decrypt(wrapped, kek, "kek-wrap:dek")
}

// AssociatedData builds the "<entity_type>:<entity_id>" binding string spec'd
// for field ciphertext, so a ciphertext can't be moved to another row.
func AssociatedData(entityType, entityID string) string {
	return entityType + ":" + entityID
}

func newAEAD(key []byte) (aeadCipher, error) {
	if subtle.ConstantTimeEq(int32(len(key)), int32(chacha20poly1305.KeySize)) == 0 {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrKeyUnavailable, chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return aead, nil
}

// aeadCipher is the subset of cipher.AEAD this package relies on; named
// locally so call sites don't need to import crypto/cipher just for the
// type name.
type aeadCipher interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}
