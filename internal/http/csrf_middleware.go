package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JokanderTest/CVX/internal/service"
)

const csrfHeaderName = "X-CSRF-Token"

// RequireCSRF exige el doble envio del token CSRF (header + cookie) y su
// coincidencia con el valor ligado al usuario. Se aplica a toda ruta
// autenticada no idempotente alcanzable via cookie.
func RequireCSRF(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		cookieToken, _ := c.Cookie(csrfCookieName)
		if err := sessions.ValidateCSRF(c.Request.Context(), claims.Subject, c.GetHeader(csrfHeaderName), cookieToken); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "csrf_rejected"})
			c.Abort()
			return
		}
		c.Next()
	}
}
