package postgres

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// migrator runs schema migrations, grounded on the teacher's
// postgresMigrator: it opens its own short-lived connection rather than
// reusing the Store's, since migrations run before the Store is loaded.
type migrator struct{}

func (m *migrator) Name() string { return "postgres-schema" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.MigrateAtStart {
		return nil
	}
	log.Info("running migration", "name", m.Name())

	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.SchemaName != "" {
		if err := db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, cfg.SchemaName)).Error; err != nil {
			return fmt.Errorf("migration: failed to create schema: %w", err)
		}
		db = db.Exec(fmt.Sprintf(`SET search_path TO "%s"`, cfg.SchemaName))
		if db.Error != nil {
			return fmt.Errorf("migration: failed to set search_path: %w", db.Error)
		}
	}

	if err := db.AutoMigrate(
		&model.VoiceEntry{},
		&model.DataEncryptionKey{},
		&model.Transcription{},
		&model.CleanedEntry{},
		&model.PromptTemplate{},
		&model.UserPreferences{},
		&model.ErasureAudit{},
	); err != nil {
		return fmt.Errorf("migration: auto-migrate failed: %w", err)
	}

	// C7: only one primary Transcription / CleanedEntry per VoiceEntry.
	// Partial unique indexes make the compare-and-set promotion in
	// Store.PromoteTranscription/PromoteCleanup race-safe under concurrent
	// writers instead of relying on application-level locking, grounded on
	// original_source/alembic/versions/a7bdb66f23be_*.py.
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_primary_transcription_per_entry
			ON transcriptions (voice_entry_id) WHERE is_primary = true`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_primary_cleanup_per_entry
			ON cleaned_entries (voice_entry_id) WHERE is_primary = true`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration: failed to create partial unique index: %w", err)
		}
	}

	if err := seedPromptTemplates(db); err != nil {
		return fmt.Errorf("migration: failed to seed prompt templates: %w", err)
	}

	log.Info("postgres schema migration complete")
	return nil
}

// seedPromptTemplates inserts the built-in prompt templates the C6 cleanup
// pipeline depends on to have at least one active template per entry type,
// grounded on original_source/alembic/versions/240e345c9e39_add_prompt_templates_table.py's
// generic_v1/journal and dream_v1/dream rows. Uses the name/entry_type
// uniqueness constraint with ON CONFLICT DO NOTHING so re-running migrations
// never clobbers an operator-edited template.
func seedPromptTemplates(db *gorm.DB) error {
	seeds := []model.PromptTemplate{
		{
			Name:         "generic_v1",
			EntryType:    "journal",
			TemplateText: "Clean up the following voice journal transcription for grammar, filler words, and punctuation, preserving the speaker's meaning and tone. Respond as JSON: {\"cleaned_text\": \"...\"}.\n\nTranscription:\n{transcription_text}",
			Description:  "Default cleanup template for general journal entries.",
			IsActive:     true,
			Version:      1,
		},
		{
			Name:         "dream_v1",
			EntryType:    "dream",
			TemplateText: "Clean up the following dream journal transcription for grammar and punctuation, preserving the surreal and first-person quality of the narration. Respond as JSON: {\"cleaned_text\": \"...\"}.\n\nTranscription:\n{transcription_text}",
			Description:  "Default cleanup template for dream journal entries.",
			IsActive:     true,
			Version:      1,
		},
	}
	for _, seed := range seeds {
		if err := db.Exec(
			`INSERT INTO prompt_templates (name, entry_type, template_text, description, is_active, version, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, now(), now())
				ON CONFLICT (name, entry_type) DO NOTHING`,
			seed.Name, seed.EntryType, seed.TemplateText, seed.Description, seed.IsActive, seed.Version,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
