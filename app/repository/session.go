package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/entity"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO sessions (user_id, device_info, ip_address, last_active_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		session.UserID,
		session.DeviceInfo,
		session.IPAddress,
		session.LastActiveAt,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	session.ID = uint64(id)
	return nil
}

func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID uint64, now time.Time) ([]*entity.Session, error) {
	query := `
		SELECT id, user_id, device_info, ip_address, last_active_at, expires_at, created_at
		FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*entity.Session
	for rows.Next() {
		session := &entity.Session{}
		if err = rows.Scan(
			&session.ID,
			&session.UserID,
			&session.DeviceInfo,
			&session.IPAddress,
			&session.LastActiveAt,
			&session.ExpiresAt,
			&session.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id uint64) error {
	query := `DELETE FROM sessions WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = ?`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SessionRepository) CountActiveForUser(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE user_id = ? AND expires_at > ?`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < ?`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
