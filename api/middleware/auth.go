package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"oko-node/internal/dto"
	"oko-node/internal/token"
)

// identityKey is the gin context key the verified identity is stored
// under.
const identityKey = "auth.identity"

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{
		Success: false,
		Code:    "UNAUTHORIZED",
		Msg:     msg,
	})
}

// JWTAuth verifies the bearer token and stores the identity it encodes.
func JWTAuth(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			unauthorized(c, "missing bearer token")
			return
		}
		id, err := tokens.Verify(strings.TrimPrefix(auth, prefix))
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// APIKeyAuth requires a configured key in the X-Api-Key header.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Api-Key")
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1 {
				c.Next()
				return
			}
		}
		unauthorized(c, "invalid api key")
	}
}

// IdentityFrom returns the identity stored by JWTAuth.
func IdentityFrom(c *gin.Context) *token.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*token.Identity)
	return id
}
