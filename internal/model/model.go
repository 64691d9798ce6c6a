package model

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptionStatus is the lifecycle state of a Transcription row.
type TranscriptionStatus string

const (
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// CleanupStatus is the lifecycle state of a CleanedEntry row. Same shape as
// TranscriptionStatus but kept as a distinct type so the two state machines
// can't be mixed up at compile time.
type CleanupStatus string

const (
	CleanupPending    CleanupStatus = "pending"
	CleanupProcessing CleanupStatus = "processing"
	CleanupCompleted  CleanupStatus = "completed"
	CleanupFailed     CleanupStatus = "failed"
)

// VoiceEntry is one ingested recording. Never mutated after initial metadata
// write; destroyed by cascade when the owning user is deleted.
type VoiceEntry struct {
	ID                 uuid.UUID `gorm:"primaryKey;type:uuid"`
	OwnerUserID        string    `gorm:"not null;index"`
	AudioStorageKey    string    `gorm:"not null"`
	OriginalFilename   string    `gorm:"not null"`
	DurationSeconds    float64   `gorm:"not null;default:0"`
	IsEncrypted        bool      `gorm:"not null;default:true"`
	EncryptionProvider string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;default:now()"`
}

func (VoiceEntry) TableName() string { return "voice_entries" }

// DataEncryptionKey is exactly one per VoiceEntry (uniqueness enforced by a
// storage-level constraint on voice_entry_id). WrappedKey holds a fixed
// sentinel (not nil) once Destroy has run, so "destroyed" is distinguishable
// from "row never wrapped".
type DataEncryptionKey struct {
	ID                 uuid.UUID  `gorm:"primaryKey;type:uuid"`
	OwnerUserID        string     `gorm:"not null;index"`
	VoiceEntryID       uuid.UUID  `gorm:"not null;uniqueIndex;type:uuid"`
	WrappedKey         []byte     `gorm:"not null;type:bytea"`
	EncryptionProvider string     `gorm:"not null"`
	KeyVersion         int        `gorm:"not null;default:1"`
	CreatedAt          time.Time  `gorm:"not null;default:now()"`
	RotatedAt          *time.Time
	DeletedAt          *time.Time `gorm:"index"`
}

func (DataEncryptionKey) TableName() string { return "data_encryption_keys" }

// Transcription is zero or more per VoiceEntry. TranscribedText and Segments
// are ciphertext; everything else is plaintext metadata.
type Transcription struct {
	ID                uuid.UUID           `gorm:"primaryKey;type:uuid"`
	VoiceEntryID      uuid.UUID           `gorm:"not null;index;type:uuid"`
	TranscribedText   []byte              `json:"-" gorm:"type:bytea"`
	Status            TranscriptionStatus `gorm:"not null;default:'pending'"`
	ProviderName      string              `gorm:"not null"`
	ModelName         string              `gorm:"not null"`
	LanguageCode      string              `gorm:"not null;default:'auto'"`
	Temperature       *float64
	BeamSize          *int
	EnableDiarization bool   `gorm:"not null;default:false"`
	SpeakerCount      int    `gorm:"not null;default:1"`
	Segments          []byte `json:"-" gorm:"type:bytea"`
	IsPrimary         bool   `gorm:"not null;default:false"`
	StartedAt         *time.Time
	CompletedAt       *time.Time
	ErrorMessage      *string
	CreatedAt         time.Time `gorm:"not null;default:now()"`
	UpdatedAt         time.Time `gorm:"not null;default:now()"`
}

func (Transcription) TableName() string { return "transcriptions" }

// CleanedEntry is zero or more per VoiceEntry, produced from one primary
// Transcription. CleanedText and UserEditedText are ciphertext;
// LLMRawResponse is kept plaintext verbatim for audit.
type CleanedEntry struct {
	ID               uuid.UUID `gorm:"primaryKey;type:uuid"`
	VoiceEntryID     uuid.UUID `gorm:"not null;index;type:uuid"`
	TranscriptionID  uuid.UUID `gorm:"not null;type:uuid"`
	OwnerUserID      string    `gorm:"not null;index"`
	CleanedText      []byte    `json:"-" gorm:"type:bytea"`
	UserEditedText   []byte    `json:"-" gorm:"type:bytea"`
	UserEditedAt     *time.Time
	ProviderName     string `gorm:"not null"`
	ModelName        string `gorm:"not null"`
	Temperature      *float64
	TopP             *float64
	PromptTemplateID *int64
	LLMRawResponse   string        `gorm:"type:text"`
	Status           CleanupStatus `gorm:"not null;default:'pending'"`
	IsPrimary        bool          `gorm:"not null;default:false"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     *string
	CreatedAt        time.Time `gorm:"not null;default:now()"`
}

func (CleanedEntry) TableName() string { return "cleaned_entries" }

// PromptTemplate is keyed by (name, entry_type); the current one in use for
// an entry type is the highest-version row with is_active = true.
type PromptTemplate struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"not null;uniqueIndex:idx_prompt_template_name_type"`
	EntryType    string `gorm:"not null;uniqueIndex:idx_prompt_template_name_type"`
	TemplateText string `gorm:"not null;type:text"`
	Description  string
	IsActive     bool      `gorm:"not null;default:false"`
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
	UpdatedAt    time.Time `gorm:"not null;default:now()"`
}

func (PromptTemplate) TableName() string { return "prompt_templates" }

// UserPreferences is one row per user, merged with request parameters at
// pipeline entry.
type UserPreferences struct {
	UserID              string `gorm:"primaryKey"`
	PreferredLanguage   string `gorm:"not null;default:'auto'"`
	PreferredLLMModel   string
	NotionExportEnabled bool      `gorm:"not null;default:false"`
	EncryptionEnabled   bool      `gorm:"not null;default:true"`
	CreatedAt           time.Time `gorm:"not null;default:now()"`
	UpdatedAt           time.Time `gorm:"not null;default:now()"`
}

func (UserPreferences) TableName() string { return "user_preferences" }

// ErasureAudit records a cryptographic-shredding event for C9.
type ErasureAudit struct {
	ID           uuid.UUID `gorm:"primaryKey;type:uuid"`
	UserID       string    `gorm:"not null;index"`
	VoiceEntryID uuid.UUID `gorm:"not null;index;type:uuid"`
	DEKID        uuid.UUID `gorm:"not null;type:uuid"`
	Reason       string    `gorm:"not null"`
	DestroyedAt  time.Time `gorm:"not null;default:now()"`
}

func (ErasureAudit) TableName() string { return "erasure_audits" }
