package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JokanderTest/CVX/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el access token y guarda los claims en el
// contexto. Lee primero la cookie HttpOnly y cae al header Authorization para
// clientes no-navegador.
func JWTAuthMiddleware(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "tokens not configured"})
			c.Abort()
			return
		}

		raw, _ := c.Cookie(accessCookieName)
		if raw == "" {
			header := strings.TrimSpace(c.GetHeader("Authorization"))
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				c.Abort()
				return
			}
			raw = strings.TrimSpace(header[len("Bearer "):])
		}

		claims, err := tokens.ParseAccessToken(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims del access token desde el contexto.
func GetAuthClaims(c *gin.Context) (service.AccessClaims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.AccessClaims{}, false
	}
	claims, ok := val.(service.AccessClaims)
	return claims, ok
}
