package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/pkg/response"
)

// PublicCORS opens an endpoint to any origin and answers preflights.
func PublicCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// NoStore marks every response of the group as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.NoStore(c)
		c.Next()
	}
}
