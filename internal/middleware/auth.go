package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gclipool-go/internal/apierr"
)

// MultiKeyAuth validates the caller against a list of allowed API keys. The
// key may arrive as a Bearer token, x-api-key, x-goog-api-key, or ?key=
// query parameter. An empty list disables authentication.
func MultiKeyAuth(allowedKeys []string) gin.HandlerFunc {
	keySet := make(map[string]bool)
	for _, k := range allowedKeys {
		if k != "" {
			keySet[k] = true
		}
	}

	return func(c *gin.Context) {
		if len(keySet) == 0 {
			c.Next()
			return
		}

		key := providedKey(c)
		if key == "" {
			respondUnauthorized(c, "API key not provided")
			return
		}
		if !keySet[key] {
			respondUnauthorized(c, "Invalid API key")
			return
		}
		c.Set("api_key", key)
		c.Next()
	}
}

// AdminAuth guards the admin surface with a single dedicated key. An empty
// key locks the surface entirely.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			respondUnauthorized(c, "Admin API disabled")
			return
		}
		if providedKey(c) != adminKey {
			respondUnauthorized(c, "Invalid admin key")
			return
		}
		c.Next()
	}
}

func providedKey(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if auth != "" {
		return auth
	}
	if v := strings.TrimSpace(c.GetHeader("x-api-key")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("x-goog-api-key")); v != "" {
		return v
	}
	return strings.TrimSpace(c.Query("key"))
}

func respondUnauthorized(c *gin.Context, message string) {
	c.Data(http.StatusUnauthorized, "application/json", apierr.EnvelopeJSON(http.StatusUnauthorized, message))
	c.Abort()
}
