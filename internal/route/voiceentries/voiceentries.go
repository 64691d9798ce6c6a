// Package voiceentries mounts the upload endpoint (spec.md §6), grounded on
// the teacher's internal/plugin/route/attachments's multipart-upload shape.
package voiceentries

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gaspermerela/journal-service-sub002/internal/blob"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
	"github.com/gaspermerela/journal-service-sub002/internal/service"
)

// MountRoutes mounts POST /api/v1/upload.
func MountRoutes(r *gin.Engine, orchestrator *service.Orchestrator, audio *blob.S3Store, cfg *config.Config, auth gin.HandlerFunc) {
	v1 := r.Group("/api/v1", auth)
	v1.POST("/upload", func(c *gin.Context) {
		upload(c, orchestrator, audio, cfg)
	})
}

func upload(c *gin.Context, orchestrator *service.Orchestrator, audio *blob.S3Store, cfg *config.Config) {
	userID := security.GetUserID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if header.Size > cfg.MaxBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds maximum upload size"})
		return
	}

	entryID := uuid.New()
	storageKey := fmt.Sprintf("%s/%s", userID, entryID)

	if _, err := audio.Put(c.Request.Context(), storageKey, file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store audio"})
		return
	}

	duration := 0.0
	if raw := c.PostForm("duration_seconds"); raw != "" {
		if d, err := strconv.ParseFloat(raw, 64); err == nil {
			duration = d
		}
	}

	entry, err := orchestrator.CreateVoiceEntry(c.Request.Context(), entryID, userID, storageKey, header.Filename, duration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create voice entry"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                entry.ID,
		"original_filename": entry.OriginalFilename,
		"saved_filename":    storageKey,
		"duration_seconds":  entry.DurationSeconds,
		"uploaded_at":       entry.CreatedAt.Format(time.RFC3339),
		"message":           "upload accepted",
	})
}
