package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JokanderTest/CVX/internal/domain"
	"github.com/JokanderTest/CVX/internal/email"
	"github.com/JokanderTest/CVX/internal/repository"
)

// VerificationService cubre la re-verificacion de usuarios ya creados pero
// sin email verificado. A diferencia del alta pendiente, los codigos van
// clavados al user id en el store durable y el agotamiento de intentos
// bloquea con locked_until en vez de borrar el registro.
type VerificationService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	tokens      repository.VerificationTokenRepository
	emailSender email.Sender

	codeTTL      time.Duration
	maxAttempts  int
	lockDuration time.Duration
}

func NewVerificationService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokens repository.VerificationTokenRepository,
	emailSender email.Sender,
	codeTTL time.Duration,
	maxAttempts int,
	lockDuration time.Duration,
) *VerificationService {
	if codeTTL <= 0 {
		codeTTL = 15 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockDuration <= 0 {
		lockDuration = 15 * time.Minute
	}
	return &VerificationService{
		logger:       logger,
		users:        users,
		tokens:       tokens,
		emailSender:  emailSender,
		codeTTL:      codeTTL,
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
	}
}

// Request genera y envia un codigo nuevo para el usuario autenticado.
func (s *VerificationService) Request(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return storeErr(err)
	}
	if user.IsEmailVerified() {
		return nil
	}

	if latest, err := s.tokens.Latest(ctx, userID); err == nil {
		if latest.LockedUntil != nil && time.Now().UTC().Before(*latest.LockedUntil) {
			return ErrVerificationLocked
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return storeErr(err)
	}

	code, err := GenerateNumericCode(otpCodeLength)
	if err != nil {
		return err
	}
	codeHash, err := HashSecret(code)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record := domain.EmailVerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(s.codeTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return storeErr(err)
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := s.emailSender.SendVerificationOTP(ctx, user.Email, code, record.ExpiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification code failed", zap.Error(err), zap.String("user_id", userID))
		}
		return ErrEmailSendFailure
	}
	return nil
}

// Confirm consume el codigo mas reciente del usuario y marca el email como
// verificado. Intentos agotados bloquean la fila por lockDuration.
func (s *VerificationService) Confirm(ctx context.Context, userID, code string) error {
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return ErrInvalidCode
	}

	latest, err := s.tokens.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVerificationNotRequested
		}
		return storeErr(err)
	}

	now := time.Now().UTC()
	if latest.LockedUntil != nil && now.Before(*latest.LockedUntil) {
		return ErrVerificationLocked
	}
	if now.After(latest.ExpiresAt) {
		return ErrCodeExpired
	}

	if !VerifySecret(code, latest.CodeHash) {
		attempts := latest.Attempts + 1
		if attempts >= s.maxAttempts {
			lockedUntil := now.Add(s.lockDuration)
			if err := s.tokens.RecordAttempt(ctx, latest.ID, attempts, &lockedUntil); err != nil {
				return storeErr(err)
			}
			return ErrTooManyAttempts
		}
		if err := s.tokens.RecordAttempt(ctx, latest.ID, attempts, nil); err != nil {
			return storeErr(err)
		}
		return &InvalidCodeError{Remaining: s.maxAttempts - attempts}
	}

	if err := s.users.VerifyEmail(ctx, userID, now); err != nil {
		return storeErr(err)
	}
	if err := s.tokens.Delete(ctx, latest.ID); err != nil && s.logger != nil {
		s.logger.Warn("delete verification token failed", zap.Error(err))
	}
	return nil
}
