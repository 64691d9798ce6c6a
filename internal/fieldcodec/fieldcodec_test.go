package fieldcodec

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gaspermerela/journal-service-sub002/internal/dekstore"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

type xorBackend struct{}

func (xorBackend) ID() string { return "xor-test" }

func (xorBackend) Wrap(_ context.Context, dek []byte) ([]byte, error) {
	out := make([]byte, len(dek))
	for i, c := range dek {
		out[i] = c ^ 0x42
	}
	return out, nil
}

func (xorBackend) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	out := make([]byte, len(wrapped))
	for i, c := range wrapped {
		out[i] = c ^ 0x42
	}
	return out, nil
}

// countingBackend is xorBackend plus a count of Unwrap calls.
type countingBackend struct {
	xorBackend
	unwraps int
}

func (b *countingBackend) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	b.unwraps++
	return b.xorBackend.Unwrap(ctx, wrapped)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DataEncryptionKey{}))
	return db
}

func TestEncryptDecryptField_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	backend := xorBackend{}
	entryID := uuid.New()

	_, _, err := dekstore.CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	codec := New(db, backend)
	defer codec.Close()

	ciphertext, err := codec.EncryptField(context.Background(), entryID, FieldTranscript, []byte("hello world"))
	require.NoError(t, err)

	plaintext, err := codec.DecryptField(context.Background(), entryID, FieldTranscript, ciphertext)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), plaintext)
}

func TestDecryptField_WrongTagFails(t *testing.T) {
	db := openTestDB(t)
	backend := xorBackend{}
	entryID := uuid.New()

	_, _, err := dekstore.CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	codec := New(db, backend)
	defer codec.Close()

	ciphertext, err := codec.EncryptField(context.Background(), entryID, FieldTranscript, []byte("hello world"))
	require.NoError(t, err)

	_, err = codec.DecryptField(context.Background(), entryID, FieldCleanedText, ciphertext)
	require.Error(t, err)
}

func TestDecryptField_AfterDestroyReturnsGone(t *testing.T) {
	db := openTestDB(t)
	backend := xorBackend{}
	entryID := uuid.New()

	_, _, err := dekstore.CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	ciphertext, err := New(db, backend).EncryptField(context.Background(), entryID, FieldTranscript, []byte("secret"))
	require.NoError(t, err)

	_, err = dekstore.Destroy(context.Background(), db, entryID)
	require.NoError(t, err)

	codec := New(db, backend)
	defer codec.Close()
	_, err = codec.DecryptField(context.Background(), entryID, FieldTranscript, ciphertext)
	var gone *registrystore.GoneError
	require.ErrorAs(t, err, &gone)
}

func TestDEKCache_OnlyLoadsOncePerRequest(t *testing.T) {
	db := openTestDB(t)
	backend := &countingBackend{}
	entryID := uuid.New()

	_, _, err := dekstore.CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	codec := New(db, backend)
	defer codec.Close()

	ct1, err := codec.EncryptField(context.Background(), entryID, FieldTranscript, []byte("a"))
	require.NoError(t, err)
	ct2, err := codec.EncryptField(context.Background(), entryID, FieldCleanedText, []byte("b"))
	require.NoError(t, err)

	p1, err := codec.DecryptField(context.Background(), entryID, FieldTranscript, ct1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), p1)

	p2, err := codec.DecryptField(context.Background(), entryID, FieldCleanedText, ct2)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), p2)
	require.Equal(t, 1, backend.unwraps)
}
