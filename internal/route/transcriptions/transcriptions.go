// Package transcriptions mounts the transcribe-trigger and
// transcription-read endpoints (spec.md §6), grounded on the teacher's
// internal/plugin/route/entries handleError/queryPtr shape.
package transcriptions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gaspermerela/journal-service-sub002/internal/fieldcodec"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	pipelinetranscription "github.com/gaspermerela/journal-service-sub002/internal/pipeline/transcription"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
)

// transcribeRequest mirrors spec.md §6's POST /entries/{id}/transcribe body.
type transcribeRequest struct {
	Language              string   `json:"language"`
	TranscriptionProvider string   `json:"transcription_provider"`
	TranscriptionModel    string   `json:"transcription_model"`
	Temperature           *float64 `json:"temperature"`
	BeamSize              *int     `json:"beam_size"`
	EnableDiarization     bool     `json:"enable_diarization"`
	SpeakerCount          int      `json:"speaker_count"`
}

// MountRoutes mounts POST /api/v1/entries/:id/transcribe and
// GET /api/v1/transcriptions/:id.
func MountRoutes(r *gin.Engine, store registrystore.Store, dispatcher *pipelinetranscription.Dispatcher, kekBackend kek.Backend, auth gin.HandlerFunc) {
	v1 := r.Group("/api/v1", auth)
	v1.POST("/entries/:id/transcribe", func(c *gin.Context) {
		transcribe(c, store, dispatcher)
	})
	v1.GET("/transcriptions/:id", func(c *gin.Context) {
		getTranscription(c, store, kekBackend)
	})
}

func transcribe(c *gin.Context, store registrystore.Store, dispatcher *pipelinetranscription.Dispatcher) {
	userID := security.GetUserID(c)
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "voice entry not found"})
		return
	}

	if _, err := store.GetVoiceEntry(c.Request.Context(), userID, entryID); err != nil {
		handleError(c, err)
		return
	}

	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := dispatcher.Enqueue(c.Request.Context(), entryID, pipelinetranscription.Request{
		Provider:          req.TranscriptionProvider,
		ModelID:           req.TranscriptionModel,
		Language:          req.Language,
		Temperature:       req.Temperature,
		BeamSize:          req.BeamSize,
		EnableDiarization: req.EnableDiarization,
		SpeakerCount:      req.SpeakerCount,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"transcription_id": id})
}

func getTranscription(c *gin.Context, store registrystore.Store, kekBackend kek.Backend) {
	userID := security.GetUserID(c)
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "transcription not found"})
		return
	}

	tx, err := store.GetTranscription(c.Request.Context(), txID)
	if err != nil {
		handleError(c, err)
		return
	}

	if _, err := store.GetVoiceEntry(c.Request.Context(), userID, tx.VoiceEntryID); err != nil {
		handleError(c, err)
		return
	}

	body := gin.H{
		"id":                  tx.ID,
		"voice_entry_id":      tx.VoiceEntryID,
		"status":              tx.Status,
		"provider_name":       tx.ProviderName,
		"model_name":          tx.ModelName,
		"language_code":       tx.LanguageCode,
		"is_primary":          tx.IsPrimary,
		"enable_diarization":  tx.EnableDiarization,
		"speaker_count":       tx.SpeakerCount,
		"error_message":       tx.ErrorMessage,
		"started_at":          tx.StartedAt,
		"completed_at":        tx.CompletedAt,
	}

	if tx.Status == "completed" {
		codec := fieldcodec.New(store.DB(), kekBackend)
		defer codec.Close()

		text, err := codec.DecryptField(c.Request.Context(), tx.VoiceEntryID, fieldcodec.FieldTranscript, tx.TranscribedText)
		if err != nil {
			handleError(c, err)
			return
		}
		body["text"] = string(text)
	}

	c.JSON(http.StatusOK, body)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var gone *registrystore.GoneError
	var transient *registrystore.TransientError
	var permanent *registrystore.PermanentError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": conflict.Code, "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &gone):
		c.JSON(http.StatusGone, gin.H{"code": "gone", "error": err.Error()})
	case errors.As(err, &transient):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "transient", "error": err.Error()})
	case errors.As(err, &permanent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "permanent", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
