package crypto_test

import (
	"testing"

	"github.com/gaspermerela/journal-service-sub002/internal/crypto"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateDEK()
	require.NoError(t, err)
	return key
}

// TestRoundTrip is property P1: decrypt(encrypt(plaintext)) == plaintext.
func TestRoundTrip(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ct, err := crypto.Encrypt(plaintext, key, "transcription:1234")
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ct)

	got, err := crypto.Decrypt(ct, key, "transcription:1234")
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestRoundTripEmptyPlaintext(t *testing.T) {
	key := mustKey(t)
	ct, err := crypto.Encrypt(nil, key, "a:b")
	require.NoError(t, err)
	got, err := crypto.Decrypt(ct, key, "a:b")
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestAssociatedDataBinding is property P2: a ciphertext produced with
// associated_data = A cannot be decrypted with A' != A.
func TestAssociatedDataBinding(t *testing.T) {
	key := mustKey(t)
	ct, err := crypto.Encrypt([]byte("secret"), key, "transcription:aaa")
	require.NoError(t, err)

	_, err = crypto.Decrypt(ct, key, "transcription:bbb")
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key1 := mustKey(t)
	key2 := mustKey(t)
	ct, err := crypto.Encrypt([]byte("secret"), key1, "x:1")
	require.NoError(t, err)

	_, err = crypto.Decrypt(ct, key2, "x:1")
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key := mustKey(t)
	ct, err := crypto.Encrypt([]byte("secret"), key, "x:1")
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = crypto.Decrypt(tampered, key, "x:1")
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestDecryptTruncatedCiphertextFails(t *testing.T) {
	key := mustKey(t)
	ct, err := crypto.Encrypt([]byte("secret"), key, "x:1")
	require.NoError(t, err)

	_, err = crypto.Decrypt(ct[:5], key, "x:1")
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	kek := mustKey(t)
	dek := mustKey(t)

	wrapped, err := crypto.Wrap(dek, kek)
	require.NoError(t, err)
	require.NotEqual(t, dek, wrapped)

	got, err := crypto.Unwrap(wrapped, kek)
	require.NoError(t, err)
	require.Equal(t, dek, got)
}

func TestUnwrapWithWrongKEKFails(t *testing.T) {
	kek1 := mustKey(t)
	kek2 := mustKey(t)
	dek := mustKey(t)

	wrapped, err := crypto.Wrap(dek, kek1)
	require.NoError(t, err)

	_, err = crypto.Unwrap(wrapped, kek2)
	require.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
}

func TestEncryptRejectsShortKey(t *testing.T) {
	_, err := crypto.Encrypt([]byte("x"), []byte("tooshort"), "a:b")
	require.ErrorIs(t, err, crypto.ErrKeyUnavailable)
}

func TestNonceIsNotReused(t *testing.T) {
	key := mustKey(t)
	ct1, err := crypto.Encrypt([]byte("same plaintext"), key, "a:b")
	require.NoError(t, err)
	ct2, err := crypto.Encrypt([]byte("same plaintext"), key, "a:b")
	require.NoError(t, err)
	require.NotEqual(t, ct1, ct2, "nonces must differ across calls even for identical plaintext")
}

func TestAssociatedDataHelper(t *testing.T) {
	require.Equal(t, "transcription:abc-123", crypto.AssociatedData("transcription", "abc-123"))
}
