package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JokanderTest/CVX/internal/domain"
	"github.com/JokanderTest/CVX/internal/email"
	"github.com/JokanderTest/CVX/internal/repository"
)

const minRegisterPasswordLen = 8

// RegistrationService maneja el alta con confirmacion por OTP: start, resend
// y verify sobre el registro pendiente efimero.
type RegistrationService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	pending     PendingRegistrationStore
	sessions    *SessionService
	emailSender email.Sender

	codeTTL     time.Duration
	maxAttempts int
	maxResends  int
}

func NewRegistrationService(
	logger *zap.Logger,
	users repository.UserRepository,
	pending PendingRegistrationStore,
	sessions *SessionService,
	emailSender email.Sender,
	codeTTL time.Duration,
	maxAttempts, maxResends int,
) *RegistrationService {
	if codeTTL <= 0 {
		codeTTL = 15 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if maxResends <= 0 {
		maxResends = 3
	}
	return &RegistrationService{
		logger:      logger,
		users:       users,
		pending:     pending,
		sessions:    sessions,
		emailSender: emailSender,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		maxResends:  maxResends,
	}
}

// Start arranca un alta: valida, guarda el registro pendiente con TTL y manda
// el codigo. Devuelve la ventana de expiracion del codigo.
//
// Si el correo falla despues de escribir el registro, la operacion igual
// reporta el fallo; el reintento de Start choca con ErrPendingExists y guia al
// caller hacia Resend.
func (s *RegistrationService) Start(ctx context.Context, name, emailAddr, password string) (time.Duration, error) {
	emailAddr = normalizeEmail(emailAddr)
	name = strings.TrimSpace(name)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return 0, ErrInvalidEmail
	}
	if len(strings.TrimSpace(password)) < minRegisterPasswordLen {
		return 0, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return 0, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storeErr(err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	code, err := GenerateNumericCode(otpCodeLength)
	if err != nil {
		return 0, err
	}

	record := domain.PendingRegistration{
		Email:        emailAddr,
		Name:         name,
		PasswordHash: string(passwordHash),
		CodeHash:     HashCode(code),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.pending.Create(ctx, record, s.codeTTL); err != nil {
		return 0, err
	}

	if err := s.sendCode(ctx, emailAddr, code); err != nil {
		return 0, err
	}
	return s.codeTTL, nil
}

// Resend emite un codigo nuevo para un alta pendiente, resetea los intentos y
// renueva el TTL. Capado por el limite de reenvios.
func (s *RegistrationService) Resend(ctx context.Context, emailAddr string) (time.Duration, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return 0, ErrInvalidEmail
	}
	code, err := GenerateNumericCode(otpCodeLength)
	if err != nil {
		return 0, err
	}
	if _, err := s.pending.Resend(ctx, emailAddr, HashCode(code), s.maxResends, s.codeTTL, time.Now()); err != nil {
		return 0, err
	}
	if err := s.sendCode(ctx, emailAddr, code); err != nil {
		return 0, err
	}
	return s.codeTTL, nil
}

// Verify consume el codigo. En exito crea el usuario durable ya verificado,
// borra el registro pendiente y emite una sesion completa: el alta termina
// directamente autenticada.
func (s *RegistrationService) Verify(ctx context.Context, emailAddr, code string) (Session, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return Session{}, ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return Session{}, ErrInvalidCode
	}

	pending, err := s.pending.Verify(ctx, emailAddr, HashCode(code), s.maxAttempts)
	if err != nil {
		return Session{}, err
	}

	// El mismo email pudo completar otra alta mientras este codigo viajaba.
	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return Session{}, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, storeErr(err)
	}

	verifiedAt := time.Now().UTC()
	user := domain.User{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		Name:            pending.Name,
		Role:            "user",
		Locale:          "en",
		PasswordHash:    pending.PasswordHash,
		EmailVerifiedAt: &verifiedAt,
		CreatedAt:       verifiedAt,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return Session{}, storeErr(err)
	}

	return s.sessions.Issue(ctx, user)
}

func (s *RegistrationService) sendCode(ctx context.Context, emailAddr, code string) error {
	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	expiresAt := time.Now().UTC().Add(s.codeTTL)
	if err := s.emailSender.SendVerificationOTP(ctx, emailAddr, code, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send signup code failed", zap.Error(err), zap.String("email", emailAddr))
		}
		return ErrEmailSendFailure
	}
	return nil
}
