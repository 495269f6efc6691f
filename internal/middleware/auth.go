package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/pkg/response"
)

// AdminAuth requires "Authorization: Bearer <adminKey>". An empty adminKey
// rejects every request, so the admin surface is closed until configured.
func AdminAuth(adminKey string) gin.HandlerFunc {
	expected := []byte(adminKey)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			response.Unauthorized(c)
			return
		}
		got := []byte(extractBearer(c.GetHeader("Authorization")))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
