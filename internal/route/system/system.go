// Package system mounts the health endpoint, grounded on the teacher's
// internal/plugin/route/system (liveness/readiness/metrics shape), extended
// with a database ping since spec.md §6's /health contract reports
// database status rather than bare process liveness.
package system

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

// MountRoutes mounts GET /health.
func MountRoutes(r *gin.Engine, store registrystore.Store) {
	r.GET("/health", func(c *gin.Context) {
		health(c, store)
	})
}

func health(c *gin.Context, store registrystore.Store) {
	dbStatus := "ok"
	sqlDB, err := store.DB().DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbStatus = "unavailable"
	}

	status := "ok"
	httpStatus := http.StatusOK
	if dbStatus != "ok" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
