// Package options mounts the provider-capability and language-list
// endpoints (spec.md §6), backing the UI-driving /options contract (C4).
package options

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/languages"
	registryllm "github.com/gaspermerela/journal-service-sub002/internal/registry/llm"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

// MountRoutes mounts GET /api/v1/options and GET /api/v1/models/languages.
func MountRoutes(r *gin.Engine, cfg *config.Config, auth gin.HandlerFunc) {
	v1 := r.Group("/api/v1", auth)
	v1.GET("/options", func(c *gin.Context) {
		listOptions(c, cfg)
	})
	v1.GET("/models/languages", func(c *gin.Context) {
		listLanguages(c)
	})
}

func listOptions(c *gin.Context, cfg *config.Config) {
	ctx := c.Request.Context()

	transcriptionDescriptors := loadTranscriptionDescriptors(ctx, cfg)
	llmDescriptors := loadLLMDescriptors(ctx, cfg)

	c.JSON(http.StatusOK, gin.H{
		"transcription": gin.H{
			"default_provider": cfg.DefaultTranscriptionProvider,
			"providers":        transcriptionDescriptors,
		},
		"llm": gin.H{
			"default_provider": cfg.DefaultLLMProvider,
			"providers":        llmDescriptors,
		},
	})
}

func loadTranscriptionDescriptors(ctx context.Context, cfg *config.Config) []registrytranscription.ProviderDescriptor {
	var descriptors []registrytranscription.ProviderDescriptor
	for _, name := range registrytranscription.Names() {
		loader, err := registrytranscription.Select(name)
		if err != nil {
			continue
		}
		provider, err := loader(ctx, cfg)
		if err != nil {
			log.Warn("options: skipping unavailable transcription provider", "provider", name, "err", err)
			continue
		}
		descriptors = append(descriptors, provider.Descriptor())
	}
	return descriptors
}

func loadLLMDescriptors(ctx context.Context, cfg *config.Config) []registryllm.ProviderDescriptor {
	var descriptors []registryllm.ProviderDescriptor
	for _, name := range registryllm.Names() {
		loader, err := registryllm.Select(name)
		if err != nil {
			continue
		}
		provider, err := loader(ctx, cfg)
		if err != nil {
			log.Warn("options: skipping unavailable llm provider", "provider", name, "err", err)
			continue
		}
		descriptors = append(descriptors, provider.Descriptor())
	}
	return descriptors
}

func listLanguages(c *gin.Context) {
	codes := make([]string, len(languages.All))
	for i, l := range languages.All {
		codes[i] = l.Code
	}
	c.JSON(http.StatusOK, gin.H{
		"languages": codes,
		"count":     len(codes),
	})
}
