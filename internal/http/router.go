package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JokanderTest/CVX/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas de identidad.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	sessions *service.SessionService,
	authH *AuthHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	requireAuth := JWTAuthMiddleware(tokens)
	requireCSRF := RequireCSRF(sessions)

	auth := r.Group("/auth")
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)
	auth.POST("/logout-all", requireAuth, requireCSRF, authH.LogoutAll)

	auth.POST("/register", authH.RegisterStart)
	auth.POST("/register/resend", authH.RegisterResend)
	auth.POST("/register/verify", authH.RegisterVerify)

	auth.POST("/request-email-verification", requireAuth, requireCSRF, authH.RequestEmailVerification)
	auth.POST("/verify-email", requireAuth, requireCSRF, authH.VerifyEmail)

	auth.POST("/oauth/callback", authH.OAuthCallback)

	auth.GET("/whoami", requireAuth, authH.Whoami)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
