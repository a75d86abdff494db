package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JokanderTest/CVX/internal/domain"
)

// RefreshTokenRepository define la persistencia de refresh tokens durables.
// Rotate corre como una sola transaccion: o se crea el registro nuevo y se
// revoca el viejo, o no pasa nada. Sin eso hay una ventana de replay con dos
// "ultimos" tokens vivos.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	ListActive(ctx context.Context, userID string, limit int) ([]domain.RefreshToken, error)
	Rotate(ctx context.Context, oldID string, newToken domain.RefreshToken) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// PgRefreshTokenRepository implementa RefreshTokenRepository usando pgxpool.
type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{pool: pool}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
	VALUES ($1, $2, $3, $4, false, $5)
`

func (r *PgRefreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	_, err := r.pool.Exec(ctx, insertRefreshToken,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

func (r *PgRefreshTokenRepository) ListActive(ctx context.Context, userID string, limit int) ([]domain.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token_hash, expires_at, revoked, replaced_by, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = false AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.ReplacedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *PgRefreshTokenRepository) Rotate(ctx context.Context, oldID string, newToken domain.RefreshToken) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRefreshToken,
			newToken.ID,
			newToken.UserID,
			newToken.TokenHash,
			newToken.ExpiresAt,
			newToken.CreatedAt,
		); err != nil {
			return err
		}
		// Solo revoca registros todavia vivos: de dos rotaciones concurrentes
		// con el mismo token, la que pierde no afecta filas y se revierte.
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = true, replaced_by = $2 WHERE id = $1 AND revoked = false`,
			oldID, newToken.ID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

func (r *PgRefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE id = $1`, id)
	return err
}

func (r *PgRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	return err
}
