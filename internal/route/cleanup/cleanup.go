// Package cleanup mounts the cleanup-trigger endpoint (spec.md §6).
package cleanup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pipelinecleanup "github.com/gaspermerela/journal-service-sub002/internal/pipeline/cleanup"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
)

// cleanupRequest mirrors spec.md §6's POST /entries/{id}/cleanup body.
type cleanupRequest struct {
	LLMModel           string   `json:"llm_model"`
	LLMProvider        string   `json:"llm_provider"`
	Temperature        *float64 `json:"temperature"`
	TopP               *float64 `json:"top_p"`
	PromptTemplateName string   `json:"prompt_template_name"`
	EntryType          string   `json:"entry_type"`
}

// MountRoutes mounts POST /api/v1/entries/:id/cleanup.
func MountRoutes(r *gin.Engine, store registrystore.Store, dispatcher *pipelinecleanup.Dispatcher, auth gin.HandlerFunc) {
	v1 := r.Group("/api/v1", auth)
	v1.POST("/entries/:id/cleanup", func(c *gin.Context) {
		triggerCleanup(c, store, dispatcher)
	})
}

func triggerCleanup(c *gin.Context, store registrystore.Store, dispatcher *pipelinecleanup.Dispatcher) {
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

	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EntryType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entry_type is required"})
		return
	}

	id, err := dispatcher.Enqueue(c.Request.Context(), entryID, userID, pipelinecleanup.Request{
		Provider:           req.LLMProvider,
		ModelID:            req.LLMModel,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		PromptTemplateName: req.PromptTemplateName,
		EntryType:          req.EntryType,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"cleaned_entry_id": id})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var gone *registrystore.GoneError

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
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
