package dekstore

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gaspermerela/journal-service-sub002/internal/model"
)

// memoryBackend is a test-only kek.Backend that XORs with a fixed key,
// reversible without any external dependency.
type memoryBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *memoryBackend) ID() string { return "memory-test" }

func (b *memoryBackend) Wrap(_ context.Context, dek []byte) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	out := make([]byte, len(dek))
	for i, c := range dek {
		out[i] = c ^ 0x5a
	}
	return out, nil
}

func (b *memoryBackend) Unwrap(_ context.Context, wrapped []byte) ([]byte, error) {
	out := make([]byte, len(wrapped))
	for i, c := range wrapped {
		out[i] = c ^ 0x5a
	}
	return out, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DataEncryptionKey{}))
	return db
}

func TestCreateForEntry_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	backend := &memoryBackend{}
	entryID := uuid.New()

	row, plain, err := CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)
	require.Len(t, plain, 32)
	require.Equal(t, entryID, row.VoiceEntryID)
	require.Equal(t, "memory-test", row.EncryptionProvider)

	loadedRow, loadedPlain, err := LoadPlaintextDEK(context.Background(), db, backend, entryID)
	require.NoError(t, err)
	require.Equal(t, row.ID, loadedRow.ID)
	require.Equal(t, plain, loadedPlain)
}

func TestCreateForEntry_ConcurrentConflictReturnsExisting(t *testing.T) {
	db := openTestDB(t)
	backend := &memoryBackend{}
	entryID := uuid.New()

	row1, plain1, err := CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	row2, plain2, err := CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	require.Equal(t, row1.ID, row2.ID)
	require.Equal(t, plain1, plain2)

	var count int64
	db.Model(&model.DataEncryptionKey{}).Where("voice_entry_id = ?", entryID).Count(&count)
	require.Equal(t, int64(1), count)
}

func TestDestroy_MakesKeyUnavailable(t *testing.T) {
	db := openTestDB(t)
	backend := &memoryBackend{}
	entryID := uuid.New()

	_, _, err := CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	_, err = Destroy(context.Background(), db, entryID)
	require.NoError(t, err)

	_, _, err = LoadPlaintextDEK(context.Background(), db, backend, entryID)
	require.Error(t, err)
}

func TestDestroy_NeverExistedFails(t *testing.T) {
	db := openTestDB(t)
	entryID := uuid.New()

	_, err := Destroy(context.Background(), db, entryID)
	require.Error(t, err)
}

func TestDestroy_CalledTwiceIsNoOp(t *testing.T) {
	db := openTestDB(t)
	backend := &memoryBackend{}
	entryID := uuid.New()

	_, _, err := CreateForEntry(context.Background(), db, backend, "user-1", entryID)
	require.NoError(t, err)

	firstID, err := Destroy(context.Background(), db, entryID)
	require.NoError(t, err)

	secondID, err := Destroy(context.Background(), db, entryID)
	require.NoError(t, err)
	require.Equal(t, firstID, secondID)
}

func TestRotate_ChangesWrappingProviderButNotPlaintext(t *testing.T) {
	db := openTestDB(t)
	oldBackend := &memoryBackend{}
	newBackend := &memoryBackend{}
	entryID := uuid.New()

	_, plain, err := CreateForEntry(context.Background(), db, oldBackend, "user-1", entryID)
	require.NoError(t, err)

	err = Rotate(context.Background(), db, oldBackend, newBackend, entryID)
	require.NoError(t, err)

	var row model.DataEncryptionKey
	require.NoError(t, db.Where("voice_entry_id = ?", entryID).First(&row).Error)
	require.Equal(t, 2, row.KeyVersion)
	require.Equal(t, "memory-test", row.EncryptionProvider)
	require.NotNil(t, row.RotatedAt)

	_, rotatedPlain, err := LoadPlaintextDEK(context.Background(), db, newBackend, entryID)
	require.NoError(t, err)
	require.Equal(t, plain, rotatedPlain)
}
