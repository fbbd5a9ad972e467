package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/entity"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, deleted_at,
	       failed_login_attempts, locked_until, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role, is_active, failed_login_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.IsActive,
		user.FailedLoginAttempts,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

// FindByEmail ignores soft-deleted rows; a deleted account's email may be
// registered again.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE email = ? AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*entity.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ? AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// IncrementFailedAttempts is a single atomic SQL increment; the counter is
// never read-modified-written in application code.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, userID uint64) error {
	query := `UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	return err
}

func (r *UserRepository) SetLockout(ctx context.Context, userID uint64, until time.Time) error {
	query := `UPDATE users SET locked_until = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, until, time.Now(), userID)
	return err
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, userID uint64) error {
	query := `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID)
	return err
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID uint64, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), userID)
	return err
}

func (r *UserRepository) scanOne(row *sql.Row) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.IsActive,
		&user.DeletedAt,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
