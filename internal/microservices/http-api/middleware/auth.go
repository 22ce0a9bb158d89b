package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sidebridge/internal/bridge"
	"sidebridge/internal/middleware/auth"
)

const senderKey = "sender"

// TokenValidator is satisfied by *auth.TokenService.
type TokenValidator interface {
	Validate(token string) (*auth.SenderClaims, error)
}

// SenderAuth resolves the calling surface. With a nil validator every request
// is accepted as an anonymous "http" surface keyed by client IP; otherwise a
// Bearer sender token is required.
func SenderAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Set(senderKey, bridge.Sender{ID: c.ClientIP(), Surface: "http", Origin: c.GetHeader("Origin")})
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// browsers cannot set headers on a websocket upgrade
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := validator.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("claims", claims)
		c.Set(senderKey, claims.ToSender())
		c.Next()
	}
}

// SenderFrom returns the sender stored by SenderAuth.
func SenderFrom(c *gin.Context) (bridge.Sender, bool) {
	v, ok := c.Get(senderKey)
	if !ok {
		return bridge.Sender{}, false
	}
	sender, ok := v.(bridge.Sender)
	return sender, ok
}

// RequireSurface admits only the listed surfaces.
func RequireSurface(surfaces ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sender, ok := SenderFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Sender not found"})
			return
		}
		for _, s := range surfaces {
			if sender.Surface == s {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    "Surface not allowed",
			"required": surfaces,
			"current":  sender.Surface,
		})
	}
}
