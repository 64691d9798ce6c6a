// Package erasure mounts the cryptographic-shredding endpoint (spec.md §6,
// C9), which only ever destroys a DEK, never the ciphertext rows it guards.
package erasure

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
	"github.com/gaspermerela/journal-service-sub002/internal/service"
)

type eraseRequest struct {
	VoiceEntryID uuid.UUID `json:"voice_entry_id" binding:"required"`
	Confirm      bool      `json:"confirm"`
}

// MountRoutes mounts POST /api/v1/encryption/erase.
func MountRoutes(r *gin.Engine, coordinator *service.ErasureCoordinator, auth gin.HandlerFunc) {
	v1 := r.Group("/api/v1", auth)
	v1.POST("/encryption/erase", func(c *gin.Context) {
		erase(c, coordinator)
	})
}

func erase(c *gin.Context, coordinator *service.ErasureCoordinator) {
	userID := security.GetUserID(c)

	var req eraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := coordinator.Erase(c.Request.Context(), userID, req.VoiceEntryID, req.Confirm)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dek_id":       result.DEKID,
		"destroyed_at": result.DestroyedAt.Format(time.RFC3339),
	})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
