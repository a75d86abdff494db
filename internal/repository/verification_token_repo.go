package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JokanderTest/CVX/internal/domain"
)

// VerificationTokenRepository persiste codigos de verificacion para usuarios
// ya creados pero sin verificar. Puede haber varias filas historicas por
// usuario; la vigente es la mas reciente no expirada ni bloqueada.
type VerificationTokenRepository interface {
	Create(ctx context.Context, token domain.EmailVerificationToken) error
	Latest(ctx context.Context, userID string) (domain.EmailVerificationToken, error)
	RecordAttempt(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
	Delete(ctx context.Context, id string) error
}

// PgVerificationTokenRepository implementa VerificationTokenRepository.
type PgVerificationTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgVerificationTokenRepository(pool *pgxpool.Pool) *PgVerificationTokenRepository {
	return &PgVerificationTokenRepository{pool: pool}
}

func (r *PgVerificationTokenRepository) Create(ctx context.Context, token domain.EmailVerificationToken) error {
	const query = `
		INSERT INTO email_verification_tokens (id, user_id, code_hash, expires_at, attempts, locked_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.CodeHash,
		token.ExpiresAt,
		token.Attempts,
		token.LockedUntil,
		token.CreatedAt,
	)
	return err
}

func (r *PgVerificationTokenRepository) Latest(ctx context.Context, userID string) (domain.EmailVerificationToken, error) {
	const query = `
		SELECT id, user_id, code_hash, expires_at, attempts, locked_until, created_at
		FROM email_verification_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var t domain.EmailVerificationToken
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&t.ID,
		&t.UserID,
		&t.CodeHash,
		&t.ExpiresAt,
		&t.Attempts,
		&t.LockedUntil,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.EmailVerificationToken{}, err
	}
	return t, nil
}

func (r *PgVerificationTokenRepository) RecordAttempt(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	const query = `UPDATE email_verification_tokens SET attempts = $2, locked_until = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, attempts, lockedUntil)
	return err
}

func (r *PgVerificationTokenRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE id = $1`, id)
	return err
}
