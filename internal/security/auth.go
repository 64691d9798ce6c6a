package security

import (
	"net/http"
	"strings"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gin-gonic/gin"
)

// ContextKeyUserID is the gin context key the identity middleware stores the
// caller's user ID under.
const ContextKeyUserID = "userID"

// AuthMiddleware extracts the caller's user ID from cfg.TrustedUserHeader
// (e.g. "X-User-ID"). It is the ambient seam other handlers depend on; it
// does not itself verify who set that header (no OIDC/JWT verification —
// that belongs to whatever reverse proxy terminates real authentication in
// front of this service).
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	header := cfg.TrustedUserHeader
	if header == "" {
		header = "X-User-ID"
	}
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + header + " header"})
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID set by AuthMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
