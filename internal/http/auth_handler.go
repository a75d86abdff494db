package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JokanderTest/CVX/internal/service"
)

const (
	refreshCookieName = "refresh_token"
	accessCookieName  = "access_token"
	csrfCookieName    = "csrf_token"
)

// CookieOptions controla atributos de las cookies de sesion.
type CookieOptions struct {
	Domain string
	Secure bool
}

// AuthHandler mantiene dependencias para los endpoints de identidad.
type AuthHandler struct {
	logger       *zap.Logger
	sessions     *service.SessionService
	registration *service.RegistrationService
	verification *service.VerificationService
	oauth        *service.OAuthService
	cookies      CookieOptions
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(
	logger *zap.Logger,
	sessions *service.SessionService,
	registration *service.RegistrationService,
	verification *service.VerificationService,
	oauth *service.OAuthService,
	cookies CookieOptions,
) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		sessions:     sessions,
		registration: registration,
		verification: verification,
		oauth:        oauth,
		cookies:      cookies,
	}
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSessionError(c, err, "login")
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"user":         sess.User,
		"access_token": sess.AccessToken,
		"csrf_token":   sess.CSRFToken,
	})
}

// Refresh maneja POST /auth/refresh. El refresh token viaja en cookie
// HttpOnly; se acepta en el body para clientes sin cookies.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(refreshCookieName)
	if raw == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing_refresh_token"})
		return
	}

	sess, err := h.sessions.Refresh(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired), errors.Is(err, service.ErrInvalidRefreshToken):
			// El caller debe limpiar su sesion y volver a loguearse.
			h.clearSessionCookies(c)
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid_refresh_token"})
		case errors.Is(err, service.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
		default:
			h.logger.Error("refresh failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could_not_refresh"})
		}
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"access_token": sess.AccessToken,
		"csrf_token":   sess.CSRFToken,
	})
}

// Logout maneja POST /auth/logout. Nunca falla de forma observable: la
// respuesta no revela si el token presentado era valido.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw, _ := c.Cookie(refreshCookieName)
	h.sessions.Logout(c.Request.Context(), raw)
	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LogoutAll maneja POST /auth/logout-all (autenticado + CSRF).
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing_token"})
		return
	}
	if err := h.sessions.LogoutAll(c.Request.Context(), claims.Subject); err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
			return
		}
		h.logger.Error("logout-all failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could_not_logout"})
		return
	}
	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RegisterStart maneja POST /auth/register.
func (h *AuthHandler) RegisterStart(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,min=2,max=100"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	expiresIn, err := h.registration.Start(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeRegistrationError(c, err, "register start")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "expires_in": int(expiresIn.Seconds())})
}

// RegisterResend maneja POST /auth/register/resend.
func (h *AuthHandler) RegisterResend(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	expiresIn, err := h.registration.Resend(c.Request.Context(), req.Email)
	if err != nil {
		h.writeRegistrationError(c, err, "register resend")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "expires_in": int(expiresIn.Seconds())})
}

// RegisterVerify maneja POST /auth/register/verify. En exito el alta queda
// directamente autenticada.
func (h *AuthHandler) RegisterVerify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required,len=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	sess, err := h.registration.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		var invalidCode *service.InvalidCodeError
		if errors.As(err, &invalidCode) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_code", "remaining": invalidCode.Remaining})
			return
		}
		h.writeRegistrationError(c, err, "register verify")
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"user":         sess.User,
		"access_token": sess.AccessToken,
		"csrf_token":   sess.CSRFToken,
	})
}

// RequestEmailVerification maneja POST /auth/request-email-verification
// (autenticado): reenvia un codigo a un usuario creado pero sin verificar.
func (h *AuthHandler) RequestEmailVerification(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing_token"})
		return
	}
	if err := h.verification.Request(c.Request.Context(), claims.Subject); err != nil {
		switch {
		case errors.Is(err, service.ErrVerificationLocked):
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "verification_locked"})
		case errors.Is(err, service.ErrEmailSendFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "email_delivery_unavailable"})
		case errors.Is(err, service.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
		default:
			h.logger.Error("request email verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could_not_request_verification"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// VerifyEmail maneja POST /auth/verify-email (autenticado).
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing_token"})
		return
	}
	var req struct {
		Code string `json:"code" binding:"required,len=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	if err := h.verification.Confirm(c.Request.Context(), claims.Subject, req.Code); err != nil {
		var invalidCode *service.InvalidCodeError
		switch {
		case errors.As(err, &invalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_code", "remaining": invalidCode.Remaining})
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_code"})
		case errors.Is(err, service.ErrVerificationLocked), errors.Is(err, service.ErrTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "too_many_attempts"})
		case errors.Is(err, service.ErrCodeExpired), errors.Is(err, service.ErrVerificationNotRequested):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code_expired"})
		case errors.Is(err, service.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
		default:
			h.logger.Error("verify email failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could_not_verify"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// OAuthCallback maneja POST /auth/oauth/callback.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	var req struct {
		Provider string `json:"provider" binding:"required"`
		Code     string `json:"code" binding:"required"`
		Intent   string `json:"intent" binding:"required,oneof=login signup"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
		return
	}

	sess, err := h.oauth.HandleCallback(c.Request.Context(), req.Provider, req.Code, service.OAuthIntent(req.Intent))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyLinked):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "already_linked"})
		case errors.Is(err, service.ErrEmailAlreadyRegistered):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "email_already_registered"})
		case errors.Is(err, service.ErrEmailNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "email_not_verified"})
		case errors.Is(err, service.ErrProviderError):
			c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "provider_error"})
		case errors.Is(err, service.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
		default:
			h.logger.Error("oauth callback failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "could_not_complete_oauth"})
		}
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"user":         sess.User,
		"access_token": sess.AccessToken,
		"csrf_token":   sess.CSRFToken,
	})
}

// Whoami maneja GET /auth/whoami (autenticado).
func (h *AuthHandler) Whoami(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing_token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": gin.H{
		"id":    claims.Subject,
		"email": claims.Email,
		"role":  claims.Role,
	}})
}

func (h *AuthHandler) writeSessionError(c *gin.Context, err error, op string) {
	var rateLimited *service.RateLimitError
	switch {
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"ok":                  false,
			"error":               "rate_limited",
			"retry_after_seconds": int(rateLimited.RetryAfter.Seconds()),
		})
	case errors.Is(err, service.ErrEmailNotVerified):
		// Fallo blando: sin cookies ni tokens, el caller redirige al flujo OTP.
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "email_not_verified"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid_credentials"})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal_error"})
	}
}

func (h *AuthHandler) writeRegistrationError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "email_taken"})
	case errors.Is(err, service.ErrPendingExists):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "pending_exists"})
	case errors.Is(err, service.ErrNoPendingRegistration):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no_pending_registration"})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "too_many_attempts"})
	case errors.Is(err, service.ErrResendLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "resend_limit_exceeded"})
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "weak_password"})
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request"})
	case errors.Is(err, service.ErrEmailSendFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "email_delivery_unavailable"})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "store_unavailable"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal_error"})
	}
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, sess service.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	refreshMaxAge := int(time.Until(sess.RefreshExpiresAt).Seconds())
	accessMaxAge := int(time.Until(sess.AccessExpiresAt).Seconds())
	c.SetCookie(refreshCookieName, sess.RefreshToken, refreshMaxAge, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(accessCookieName, sess.AccessToken, accessMaxAge, "/", h.cookies.Domain, h.cookies.Secure, true)
	// La cookie CSRF es legible por JS a proposito: el cliente la reenvia en
	// el header en cada request mutante.
	c.SetCookie(csrfCookieName, sess.CSRFToken, refreshMaxAge, "/", h.cookies.Domain, h.cookies.Secure, false)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(accessCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(csrfCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, false)
}
