package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JokanderTest/CVX/internal/domain"
	"github.com/JokanderTest/CVX/internal/repository"
)

// Variantes de rechazo CSRF; todas matchean ErrCSRFRejected via errors.Is.
var (
	ErrCSRFMissing  = fmt.Errorf("%w: token missing", ErrCSRFRejected)
	ErrCSRFMismatch = fmt.Errorf("%w: header and cookie differ", ErrCSRFRejected)
	ErrCSRFInvalid  = fmt.Errorf("%w: token not bound to session", ErrCSRFRejected)
)

// Cota de registros recientes contra los que se compara un refresh token
// crudo. Acota el costo del lookup por usuario multi-dispositivo.
const defaultRecentTokenLimit = 10

// Session es el resultado de un login/refresh exitoso. El caller (capa HTTP)
// decide como transportar cada token.
type Session struct {
	User             domain.User `json:"user"`
	AccessToken      string      `json:"access_token"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshToken     string      `json:"refresh_token"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	CSRFToken        string      `json:"csrf_token"`
}

// SessionService orquesta login, refresh con rotacion, logout y validacion
// CSRF sobre el emisor de tokens y los dos stores.
type SessionService struct {
	logger        *zap.Logger
	tokens        *TokenService
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	csrf          CSRFTokenStore
	credentials   *CredentialService
	recentLimit   int
}

func NewSessionService(
	logger *zap.Logger,
	tokens *TokenService,
	users repository.UserRepository,
	refreshTokens repository.RefreshTokenRepository,
	csrf CSRFTokenStore,
	credentials *CredentialService,
) *SessionService {
	return &SessionService{
		logger:        logger,
		tokens:        tokens,
		users:         users,
		refreshTokens: refreshTokens,
		csrf:          csrf,
		credentials:   credentials,
		recentLimit:   defaultRecentTokenLimit,
	}
}

// Login valida credenciales y emite una sesion completa. Un usuario
// autenticado pero sin email verificado recibe ErrEmailNotVerified y ningun
// token: el caller puede redirigir al reingreso de OTP.
func (s *SessionService) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.credentials.Validate(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	if !user.IsEmailVerified() {
		return Session{}, ErrEmailNotVerified
	}
	return s.Issue(ctx, user)
}

// Issue emite access+refresh+csrf para un usuario ya autenticado y persiste
// el registro del refresh token.
func (s *SessionService) Issue(ctx context.Context, user domain.User) (Session, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return Session{}, err
	}
	refresh, _, refreshExp, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return Session{}, err
	}
	hash, err := HashSecret(refresh)
	if err != nil {
		return Session{}, err
	}
	record := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: refreshExp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return Session{}, storeErr(err)
	}

	csrfToken, err := s.tokens.NewCSRFToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.csrf.Put(ctx, user.ID, csrfToken, s.tokens.RefreshTTL()); err != nil {
		return Session{}, err
	}

	return Session{
		User:             user.Sanitized(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		CSRFToken:        csrfToken,
	}, nil
}

// Refresh canjea un refresh token crudo por una sesion nueva, rotando el
// registro durable. Un token ya rotado o revocado falla con
// ErrInvalidRefreshToken: la deteccion de replay es deliberada.
func (s *SessionService) Refresh(ctx context.Context, rawToken string) (Session, error) {
	claims, err := s.tokens.ParseRefreshToken(rawToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, ErrInvalidRefreshToken
	}

	current, err := s.findRecord(ctx, claims.Subject, rawToken)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, storeErr(err)
	}

	access, accessExp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return Session{}, err
	}
	refresh, _, refreshExp, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return Session{}, err
	}
	hash, err := HashSecret(refresh)
	if err != nil {
		return Session{}, err
	}
	next := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: refreshExp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.refreshTokens.Rotate(ctx, current.ID, next); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Otra rotacion concurrente gano: este token ya no es el vigente.
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, storeErr(err)
	}

	csrfToken, err := s.tokens.NewCSRFToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.csrf.Put(ctx, user.ID, csrfToken, s.tokens.RefreshTTL()); err != nil {
		return Session{}, err
	}

	return Session{
		User:             user.Sanitized(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		CSRFToken:        csrfToken,
	}, nil
}

// Logout revoca el registro del token presentado si existe. Siempre devuelve
// ok: la respuesta no revela si el token era valido.
func (s *SessionService) Logout(ctx context.Context, rawToken string) {
	if strings.TrimSpace(rawToken) == "" {
		return
	}
	claims, err := s.tokens.ParseRefreshToken(rawToken)
	if err != nil {
		return
	}
	record, err := s.findRecord(ctx, claims.Subject, rawToken)
	if err != nil {
		return
	}
	if err := s.refreshTokens.Revoke(ctx, record.ID); err != nil && s.logger != nil {
		s.logger.Warn("logout revoke failed", zap.Error(err))
	}
	if err := s.csrf.Delete(ctx, claims.Subject); err != nil && s.logger != nil {
		s.logger.Warn("logout csrf delete failed", zap.Error(err))
	}
}

// LogoutAll revoca todos los refresh tokens vivos del usuario.
func (s *SessionService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.refreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return storeErr(err)
	}
	if err := s.csrf.Delete(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("logout-all csrf delete failed", zap.Error(err))
	}
	return nil
}

// ValidateCSRF exige que el token del header y el de la cookie coincidan entre
// si y con el valor ligado al usuario en el store efimero.
func (s *SessionService) ValidateCSRF(ctx context.Context, userID, headerToken, cookieToken string) error {
	headerToken = strings.TrimSpace(headerToken)
	cookieToken = strings.TrimSpace(cookieToken)
	if headerToken == "" || cookieToken == "" {
		return ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
		return ErrCSRFMismatch
	}
	stored, err := s.csrf.Get(ctx, userID)
	if err != nil {
		return err
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(headerToken), []byte(stored)) != 1 {
		return ErrCSRFInvalid
	}
	return nil
}

// findRecord compara el token crudo contra los hashes de los registros vivos
// mas recientes del usuario, en tiempo constante por registro.
func (s *SessionService) findRecord(ctx context.Context, userID, rawToken string) (domain.RefreshToken, error) {
	records, err := s.refreshTokens.ListActive(ctx, userID, s.recentLimit)
	if err != nil {
		return domain.RefreshToken{}, storeErr(err)
	}
	now := time.Now().UTC()
	for _, rec := range records {
		if rec.IsActive(now) && VerifySecret(rawToken, rec.TokenHash) {
			return rec, nil
		}
	}
	return domain.RefreshToken{}, ErrInvalidRefreshToken
}
