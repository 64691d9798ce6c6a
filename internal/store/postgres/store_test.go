package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	"github.com/gaspermerela/journal-service-sub002/internal/store/postgres"
	registrymigrate "github.com/gaspermerela/journal-service-sub002/internal/registry/migrate"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupTestStore(t *testing.T) (registrystore.Store, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.MigrateAtStart = true
	ctx := config.WithContext(context.Background(), &cfg)

	_ = postgres.ForceImport

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func newVoiceEntry(t *testing.T, ctx context.Context, store registrystore.Store, userID string) *model.VoiceEntry {
	t.Helper()
	entry := &model.VoiceEntry{
		ID:                 uuid.New(),
		OwnerUserID:        userID,
		AudioStorageKey:    "blob/" + uuid.NewString(),
		OriginalFilename:   "memo.m4a",
		DurationSeconds:    12.5,
		IsEncrypted:        true,
		EncryptionProvider: "local",
	}
	require.NoError(t, store.CreateVoiceEntry(ctx, entry))
	return entry
}

func TestCreateAndGetVoiceEntry(t *testing.T) {
	store, ctx := setupTestStore(t)

	entry := newVoiceEntry(t, ctx, store, "user-1")

	got, err := store.GetVoiceEntry(ctx, "user-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "memo.m4a", got.OriginalFilename)

	_, err = store.GetVoiceEntry(ctx, "someone-else", entry.ID)
	assert.Error(t, err)
	var notFound *registrystore.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestClaimTranscriptionIsExclusive(t *testing.T) {
	store, ctx := setupTestStore(t)
	entry := newVoiceEntry(t, ctx, store, "user-1")

	tx := &model.Transcription{
		ID:           uuid.New(),
		VoiceEntryID: entry.ID,
		ProviderName: "groq",
		ModelName:    "whisper-large-v3",
		LanguageCode: "auto",
	}
	require.NoError(t, store.CreateTranscription(ctx, tx))

	var group errgroup.Group
	claims := make([]bool, 5)
	for i := 0; i < 5; i++ {
		i := i
		group.Go(func() error {
			claimed, err := store.ClaimTranscription(ctx, tx.ID)
			claims[i] = claimed
			return err
		})
	}
	require.NoError(t, group.Wait())

	claimedCount := 0
	for _, c := range claims {
		if c {
			claimedCount++
		}
	}
	assert.Equal(t, 1, claimedCount, "exactly one caller should win the claim")
}

// TestPromoteTranscriptionIsFirstWriterWins exercises P4: under N concurrent
// completions racing to become the primary transcription for one voice
// entry, exactly one promotion succeeds, enforced by the partial unique
// index created in migrate.go rather than application-level locking.
func TestPromoteTranscriptionIsFirstWriterWins(t *testing.T) {
	store, ctx := setupTestStore(t)
	entry := newVoiceEntry(t, ctx, store, "user-1")

	const n = 8
	ids := make([]uuid.UUID, n)
	for i := range ids {
		tx := &model.Transcription{
			ID:           uuid.New(),
			VoiceEntryID: entry.ID,
			ProviderName: "groq",
			ModelName:    "whisper-large-v3",
			LanguageCode: "auto",
			Status:       model.TranscriptionCompleted,
		}
		require.NoError(t, store.CreateTranscription(ctx, tx))
		ids[i] = tx.ID
	}

	results := make([]bool, n)
	var group errgroup.Group
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			promoted, err := store.PromoteTranscription(ctx, entry.ID, id)
			results[i] = promoted
			return err
		})
	}
	require.NoError(t, group.Wait())

	promotedCount := 0
	for _, p := range results {
		if p {
			promotedCount++
		}
	}
	assert.Equal(t, 1, promotedCount, "exactly one transcription should become primary")

	primary, err := store.GetPrimaryTranscription(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, primary.IsPrimary)
}

func TestUserPreferencesUpsertAndDefault(t *testing.T) {
	store, ctx := setupTestStore(t)

	prefs, err := store.GetUserPreferences(ctx, "brand-new-user")
	require.NoError(t, err)
	assert.Equal(t, "auto", prefs.PreferredLanguage)
	assert.True(t, prefs.EncryptionEnabled)

	prefs.PreferredLanguage = "sl"
	require.NoError(t, store.UpsertUserPreferences(ctx, prefs))

	got, err := store.GetUserPreferences(ctx, "brand-new-user")
	require.NoError(t, err)
	assert.Equal(t, "sl", got.PreferredLanguage)
}

func TestRecordErasureAudit(t *testing.T) {
	store, ctx := setupTestStore(t)
	entry := newVoiceEntry(t, ctx, store, "user-1")

	audit := &model.ErasureAudit{
		ID:           uuid.New(),
		UserID:       "user-1",
		VoiceEntryID: entry.ID,
		DEKID:        uuid.New(),
		Reason:       "user_requested",
		DestroyedAt:  time.Now(),
	}
	require.NoError(t, store.RecordErasureAudit(ctx, audit))
}

func TestMigrateSeedsBuiltinPromptTemplates(t *testing.T) {
	store, ctx := setupTestStore(t)

	journal, err := store.GetActivePromptTemplate(ctx, "journal")
	require.NoError(t, err)
	assert.Equal(t, "generic_v1", journal.Name)
	assert.Contains(t, journal.TemplateText, "{transcription_text}")

	dream, err := store.GetActivePromptTemplate(ctx, "dream")
	require.NoError(t, err)
	assert.Equal(t, "dream_v1", dream.Name)

	// Re-running migrations must not duplicate or clobber the seeded rows.
	require.NoError(t, registrymigrate.RunAll(ctx))
	again, err := store.GetActivePromptTemplate(ctx, "journal")
	require.NoError(t, err)
	assert.Equal(t, journal.ID, again.ID)
}
