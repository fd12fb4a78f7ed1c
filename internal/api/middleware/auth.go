package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// BearerToken schützt die Ingest-Endpunkte mit einem statischen Token.
// Ein leeres Token lässt die Endpunkte offen (z.B. im LAN-Betrieb), wird aber
// beim Start einmal als Warnung protokolliert.
func BearerToken(token string) gin.HandlerFunc {
	if token == "" {
		log.Warn("Ingest API token is empty, ingest endpoints are unauthenticated")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API token"})
			return
		}
		c.Next()
	}
}
