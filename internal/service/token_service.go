package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JokanderTest/CVX/internal/domain"
)

// TokenService emite y valida los tokens firmados de sesion. Access y refresh
// usan secretos distintos; el token CSRF es aleatorio puro y su estado vive en
// el store efimero del caller.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

const (
	// Defaults operativos: si la configuracion es ambigua se cae a estos
	// valores en vez de frenar el arranque.
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 2592000 * time.Second

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims es el payload del access token. Todos los campos se emiten
// siempre; la forma nunca depende del call site.
type AccessClaims struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	Fingerprint string `json:"fp"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims es el payload del refresh token: solo el sujeto y un jti.
type RefreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        "cvx",
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken firma un access token con sub, email, role y un
// fingerprint aleatorio por emision.
func (s *TokenService) IssueAccessToken(user domain.User) (string, time.Time, error) {
	if len(s.accessSecret) == 0 {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.accessTTL)
	claims := AccessClaims{
		Email:       user.Email,
		Role:        user.Role,
		Fingerprint: uuid.NewString(),
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	return signed, expiresAt, err
}

// IssueRefreshToken firma un refresh token con el secreto de refresh y un jti
// nuevo. Devuelve tambien el jti para auditoria.
func (s *TokenService) IssueRefreshToken(user domain.User) (string, string, time.Time, error) {
	if len(s.refreshSecret) == 0 {
		return "", "", time.Time{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.refreshTTL)
	jti := uuid.NewString()
	claims := RefreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	return signed, jti, expiresAt, err
}

// NewCSRFToken genera un valor aleatorio de 256 bits en hex. La persistencia
// y comparacion son responsabilidad del caller.
func (s *TokenService) NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ParseAccessToken valida firma, expiracion y forma de un access token.
func (s *TokenService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(tokenString, s.accessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.TokenType != tokenTypeAccess || !s.validRegistered(claims.RegisteredClaims) {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefreshToken valida firma, expiracion y forma de un refresh token.
func (s *TokenService) ParseRefreshToken(tokenString string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(tokenString, s.refreshSecret, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" || !s.validRegistered(claims.RegisteredClaims) {
		return RefreshClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) parse(tokenString string, secret []byte, claims jwt.Claims) error {
	if len(secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return nil
}

func (s *TokenService) validRegistered(rc jwt.RegisteredClaims) bool {
	if strings.TrimSpace(rc.Subject) == "" {
		return false
	}
	return rc.Issuer == s.issuer
}

// ParseExpiry interpreta TTLs de configuracion: enteros pelados son segundos,
// se aceptan sufijos s/m/h/d. Entrada invalida o vacia cae al fallback; la
// configuracion ambigua nunca hace fallar el arranque.
func ParseExpiry(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return fallback
	}
	unit := time.Second
	switch raw[len(raw)-1] {
	case 's':
		raw = raw[:len(raw)-1]
	case 'm':
		unit = time.Minute
		raw = raw[:len(raw)-1]
	case 'h':
		unit = time.Hour
		raw = raw[:len(raw)-1]
	case 'd':
		unit = 24 * time.Hour
		raw = raw[:len(raw)-1]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * unit
}
