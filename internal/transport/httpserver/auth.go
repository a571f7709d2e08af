package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pagebound/scrape/pkg/models"
)

// Auth returns token authentication middleware.
//
// Supports two header styles:
//
//	X-API-Key: <token>
//	Authorization: Bearer <token>
func Auth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := extractToken(c)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidRequest,
					Message: "missing API token: provide X-API-Key header or Authorization: Bearer <token>",
				},
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidRequest,
					Message: "invalid API token",
				},
			})
			return
		}
		c.Next()
	}
}

// extractToken tries X-API-Key first, then Authorization: Bearer.
func extractToken(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
