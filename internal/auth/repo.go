package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for API tokens.
type Repository interface {
	Insert(ctx context.Context, token Token) error
	Get(ctx context.Context, id uuid.UUID) (Token, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	Revoke(ctx context.Context, ownerID int64, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO api_tokens (id, owner_id, user_id, name, secret_hash, permissions, is_active)
VALUES ($1,$2,$3,$4,$5,$6,TRUE)`,
		token.ID, token.OwnerID, token.UserID, token.Name, token.SecretHash, token.Permissions)
	return err
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Token, error) {
	var t Token
	err := r.pool.QueryRow(ctx, `SELECT id, owner_id, user_id, name, secret_hash, permissions, is_active, created_at, last_used_at
FROM api_tokens WHERE id=$1`, id).
		Scan(&t.ID, &t.OwnerID, &t.UserID, &t.Name, &t.SecretHash, &t.Permissions, &t.IsActive, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, err
	}
	return t, nil
}

func (r *PGRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at=$2 WHERE id=$1`, id, at)
	return err
}

func (r *PGRepository) Revoke(ctx context.Context, ownerID int64, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE api_tokens SET is_active=FALSE WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
