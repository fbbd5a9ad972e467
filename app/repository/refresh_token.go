package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/entity"
)

type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens WHERE token = ?
	`
	rt := &entity.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.Token,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// DeleteByToken is idempotent: deleting an absent token is not an error.
// The rows-affected count lets callers distinguish the two outcomes.
func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE token = ?`
	result, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Rotate consumes oldToken and inserts next as one transaction. It returns
// false without inserting when the old row was already gone, which is how a
// concurrent rotation or logout that won the race is detected.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldToken string, next *entity.RefreshToken) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, oldToken)
	if err != nil {
		return false, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if deleted == 0 {
		return false, nil
	}

	insert, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		next.UserID,
		next.Token,
		next.ExpiresAt,
		next.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	id, err := insert.LastInsertId()
	if err != nil {
		return false, err
	}
	next.ID = uint64(id)

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID uint64) error {
	query := `DELETE FROM refresh_tokens WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < ?`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
