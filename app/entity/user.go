package entity

import (
	"database/sql"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID                  uint64
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                string
	IsActive            bool
	DeletedAt           sql.NullTime
	FailedLoginAttempts int
	LockedUntil         sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether a lockout set on the user is still in effect.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil.Valid && u.LockedUntil.Time.After(now)
}

type RefreshToken struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Session struct {
	ID           uint64
	UserID       uint64
	DeviceInfo   sql.NullString
	IPAddress    sql.NullString
	LastActiveAt time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
