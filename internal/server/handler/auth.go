package handler

import (
	"net/http"
	"strings"

	"github.com/chronoslabs/chronos/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// agentKey is the context key under which RequireToken stores the
// authenticated agent name.
const agentKey = "chronos.agent"

// RequireToken returns a Gin middleware that demands a valid bearer service
// token on the request. A nil issuer disables authentication entirely; the
// caller is expected to have warned loudly about that at startup.
func RequireToken(issuer *identity.TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if issuer == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			logger.Warn("service token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(agentKey, claims.Agent)
		c.Next()
	}
}

// CallerAgent returns the agent name of the authenticated caller, or an
// empty string when authentication is disabled.
func CallerAgent(c *gin.Context) string {
	return c.GetString(agentKey)
}
