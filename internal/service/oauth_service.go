package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JokanderTest/CVX/internal/domain"
	"github.com/JokanderTest/CVX/internal/repository"
)

// OAuthIntent distingue si el callback venia de un boton de login o de alta.
// La distincion importa: un signup sobre una cuenta ya vinculada es conflicto,
// no re-login silencioso.
type OAuthIntent string

const (
	IntentLogin  OAuthIntent = "login"
	IntentSignup OAuthIntent = "signup"
)

// OAuthProfile es el perfil ya verificado que devuelve el proveedor externo.
type OAuthProfile struct {
	Provider      string
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// OAuthProvider abstrae el intercambio code -> perfil contra el proveedor.
type OAuthProvider interface {
	Exchange(ctx context.Context, code string) (OAuthProfile, error)
}

// OAuthService resuelve identidad a partir de callbacks de proveedores y la
// fusiona con las cuentas durables segun el intent.
type OAuthService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	sessions  *SessionService
	providers map[string]OAuthProvider
}

func NewOAuthService(logger *zap.Logger, users repository.UserRepository, sessions *SessionService, providers map[string]OAuthProvider) *OAuthService {
	return &OAuthService{
		logger:    logger,
		users:     users,
		sessions:  sessions,
		providers: providers,
	}
}

// HandleCallback intercambia el code, resuelve la clave (provider, subject) y
// emite una sesion. Reglas de fusion:
//   - link existente + signup: ErrAlreadyLinked.
//   - link existente + login: autentica al usuario vinculado.
//   - sin link, email durable existente + signup: ErrEmailAlreadyRegistered.
//   - sin link, email durable existente + login: auto-vincula al primer uso.
//   - sin nada: crea usuario nuevo con password inutilizable.
func (s *OAuthService) HandleCallback(ctx context.Context, providerName, code string, intent OAuthIntent) (Session, error) {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	provider, ok := s.providers[providerName]
	if !ok {
		return Session{}, fmt.Errorf("%w: unknown provider %q", ErrProviderError, providerName)
	}
	profile, err := provider.Exchange(ctx, code)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("oauth exchange failed", zap.Error(err), zap.String("provider", providerName))
		}
		return Session{}, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	profile.Provider = providerName
	profile.Subject = strings.TrimSpace(profile.Subject)
	profile.Email = normalizeEmail(profile.Email)
	if profile.Subject == "" {
		return Session{}, fmt.Errorf("%w: empty subject", ErrProviderError)
	}

	user, err := s.users.GetByAuth(ctx, profile.Provider, profile.Subject)
	switch {
	case err == nil:
		if intent == IntentSignup {
			return Session{}, ErrAlreadyLinked
		}
		return s.issue(ctx, user)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return Session{}, storeErr(err)
	}

	if profile.Email != "" {
		existing, err := s.users.GetByEmail(ctx, profile.Email)
		switch {
		case err == nil:
			if intent == IntentSignup {
				return Session{}, ErrEmailAlreadyRegistered
			}
			// Primer uso del proveedor sobre una cuenta existente: vincula.
			if err := s.users.LinkOAuth(ctx, existing.ID, profile.Provider, profile.Subject); err != nil {
				return Session{}, storeErr(err)
			}
			existing.AuthProvider = profile.Provider
			existing.AuthSubject = profile.Subject
			return s.issue(ctx, existing)
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return Session{}, storeErr(err)
		}
	}

	user, err = s.createFromProfile(ctx, profile)
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, user)
}

func (s *OAuthService) issue(ctx context.Context, user domain.User) (Session, error) {
	if !user.IsEmailVerified() {
		return Session{}, ErrEmailNotVerified
	}
	return s.sessions.Issue(ctx, user)
}

func (s *OAuthService) createFromProfile(ctx context.Context, profile OAuthProfile) (domain.User, error) {
	// Password aleatorio inutilizable: el plaintext se descarta al salir de
	// este scope.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return domain.User{}, err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        profile.Email,
		Name:         strings.TrimSpace(profile.Name),
		Role:         "user",
		Locale:       "en",
		AuthProvider: profile.Provider,
		AuthSubject:  profile.Subject,
		PasswordHash: string(passwordHash),
		CreatedAt:    now,
	}
	if profile.EmailVerified {
		user.EmailVerifiedAt = &now
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, storeErr(err)
	}
	return user, nil
}
