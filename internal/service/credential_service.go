package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JokanderTest/CVX/internal/domain"
	"github.com/JokanderTest/CVX/internal/repository"
)

// CredentialService valida email+password contra el store durable aplicando
// el rate limiter de login.
type CredentialService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	limiter     LoginRateLimiter
	maxAttempts int

	// Hash de sacrificio: el camino "usuario inexistente" paga el mismo
	// bcrypt que el camino "password incorrecto".
	dummyHash []byte
}

func NewCredentialService(logger *zap.Logger, users repository.UserRepository, limiter LoginRateLimiter, maxAttempts int) *CredentialService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("cvx-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		dummy = nil
	}
	return &CredentialService{
		logger:      logger,
		users:       users,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		dummyHash:   dummy,
	}
}

// Validate devuelve el usuario saneado si las credenciales son correctas.
// Emails desconocidos y passwords incorrectos incrementan el mismo contador y
// devuelven exactamente el mismo error: la respuesta no permite enumerar
// cuentas.
func (s *CredentialService) Validate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	attempts, err := s.limiter.Attempts(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if attempts >= s.maxAttempts {
		retryAfter, err := s.limiter.RetryAfter(ctx, emailAddr)
		if err != nil {
			return domain.User{}, err
		}
		return domain.User{}, &RateLimitError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, s.fail(ctx, emailAddr, []byte(password))
		}
		return domain.User{}, storeErr(err)
	}

	hash := []byte(user.PasswordHash)
	if user.PasswordHash == "" {
		// Cuenta solo-OAuth: no tiene password utilizable.
		hash = nil
	}
	if hash == nil || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		if hash == nil && s.dummyHash != nil {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		}
		return domain.User{}, s.failCounted(ctx, emailAddr)
	}

	if err := s.limiter.Reset(ctx, emailAddr); err != nil {
		return domain.User{}, err
	}
	return user.Sanitized(), nil
}

func (s *CredentialService) fail(ctx context.Context, emailAddr string, password []byte) error {
	if s.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, password)
	}
	return s.failCounted(ctx, emailAddr)
}

func (s *CredentialService) failCounted(ctx context.Context, emailAddr string) error {
	if _, err := s.limiter.Fail(ctx, emailAddr); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("login attempt failed", zap.String("email", emailAddr))
	}
	return ErrInvalidCredentials
}
