package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/repository"
	"github.com/stacklaunch-io/ms-go-accounts/app/service"
	"github.com/stacklaunch-io/ms-go-accounts/config"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

var (
	userColumns = []string{
		"id",
		"email",
		"password_hash",
		"first_name",
		"last_name",
		"role",
		"is_active",
		"deleted_at",
		"failed_login_attempts",
		"locked_until",
		"created_at",
		"updated_at",
	}
	refreshTokenColumns = []string{
		"id",
		"user_id",
		"token",
		"expires_at",
		"created_at",
	}
	sessionColumns = []string{
		"id",
		"user_id",
		"device_info",
		"ip_address",
		"last_active_at",
		"expires_at",
		"created_at",
	}
)

const (
	findUserByEmailQuery     = `(?s)SELECT id, email, password_hash, first_name, last_name, role, is_active, deleted_at,\s+failed_login_attempts, locked_until, created_at, updated_at\s+FROM users WHERE email = \? AND deleted_at IS NULL`
	findUserByIDQuery        = `(?s)SELECT id, email, password_hash, first_name, last_name, role, is_active, deleted_at,\s+failed_login_attempts, locked_until, created_at, updated_at\s+FROM users WHERE id = \? AND deleted_at IS NULL`
	insertUserQuery          = `(?s)INSERT INTO users \(email, password_hash, first_name, last_name, role, is_active, failed_login_attempts, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?\)`
	incrementAttemptsQuery   = `UPDATE users SET failed_login_attempts = failed_login_attempts \+ 1, updated_at = \? WHERE id = \?`
	setLockoutQuery          = `UPDATE users SET locked_until = \?, updated_at = \? WHERE id = \?`
	resetAttemptsQuery       = `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = \? WHERE id = \?`
	updatePasswordHashQuery  = `UPDATE users SET password_hash = \?, updated_at = \? WHERE id = \?`
	insertRefreshTokenQuery  = `(?s)INSERT INTO refresh_tokens \(user_id, token, expires_at, created_at\)\s+VALUES \(\?, \?, \?, \?\)`
	findRefreshTokenQuery    = `(?s)SELECT id, user_id, token, expires_at, created_at\s+FROM refresh_tokens WHERE token = \?`
	deleteRefreshTokenQuery  = `DELETE FROM refresh_tokens WHERE token = \?`
	deleteAllTokensQuery     = `DELETE FROM refresh_tokens WHERE user_id = \?`
	insertSessionQuery       = `(?s)INSERT INTO sessions \(user_id, device_info, ip_address, last_active_at, expires_at, created_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?\)`
	listActiveSessionsQuery  = `(?s)SELECT id, user_id, device_info, ip_address, last_active_at, expires_at, created_at\s+FROM sessions WHERE user_id = \? AND expires_at > \? ORDER BY created_at DESC`
	deleteSessionByIDQuery   = `DELETE FROM sessions WHERE id = \?`
	deleteAllSessionsQuery   = `DELETE FROM sessions WHERE user_id = \?`
	countActiveSessionsQuery = `SELECT COUNT\(\*\) FROM sessions WHERE user_id = \? AND expires_at > \?`
	rotateInsertForUserQuery = insertRefreshTokenQuery
)

func newAuthServiceWithMock(t *testing.T) (service.AuthService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:             "test-secret",
		JWTAccessTokenTTL:     15 * time.Minute,
		JWTRefreshTokenTTL:    7 * 24 * time.Hour,
		SessionMatchTolerance: 5 * time.Second,
	}

	svc := service.NewAuthService(
		repository.NewUserRepository(db),
		repository.NewRefreshTokenRepository(db),
		repository.NewSessionRepository(db),
		testHasher(),
		service.NewLockoutPolicy(service.DefaultLockoutTiers()),
		cfg,
		service.WithAsyncRunner(func(task func()) { task() }),
	)

	return svc, mock, func() { _ = db.Close() }
}

func addUserRow(rows *sqlmock.Rows, id uint64, email, passwordHash string, active bool, failedAttempts int, lockedUntil sql.NullTime) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id,
		email,
		passwordHash,
		"Ada",
		"Lovelace",
		"USER",
		active,
		sql.NullTime{},
		failedAttempts,
		lockedUntil,
		now,
		now,
	)
}

func expectIssueCredentials(mock sqlmock.Sqlmock, userID uint64) {
	mock.ExpectExec(insertRefreshTokenQuery).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertSessionQuery).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectSessionCount(mock sqlmock.Sqlmock, userID uint64, count int64) {
	mock.ExpectQuery(countActiveSessionsQuery).
		WithArgs(userID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestAuthService_Register_CreatesUserTokenAndSession(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs("ada@example.com", sqlmock.AnyArg(), "Ada", "Lovelace", "USER", true, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectIssueCredentials(mock, 1)

	res, err := svc.Register(context.Background(), "Ada@Example.COM", "Passw0rd!", "Ada", "Lovelace", service.ClientMeta{DeviceInfo: "cli", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.User.ID != 1 || res.User.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.User.Role != "USER" {
		t.Fatalf("expected default role USER, got %q", res.User.Role)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected both credentials to be issued")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", "hash", true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	_, err := svc.Register(context.Background(), "ada@example.com", "Passw0rd!", "Ada", "Lovelace", service.ClientMeta{})
	if !errors.Is(err, service.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	var authErr *service.AuthError
	if !errors.As(err, &authErr) || authErr.Code != "EMAIL_ALREADY_EXISTS" {
		t.Fatalf("expected stable conflict code, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, err := testHasher().Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)
	expectIssueCredentials(mock, 1)
	expectSessionCount(mock, 1, 1)

	res, err := svc.Login(context.Background(), "ada@example.com", "Passw0rd!", service.ClientMeta{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected credentials to be issued")
	}

	claims, err := svc.ValidateAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("access token did not validate: %v", err)
	}
	if claims.UserID != 1 || claims.Role != "USER" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_WrongPasswordIncrementsCounter(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, _ := testHasher().Hash("Passw0rd!")
	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)
	mock.ExpectExec(incrementAttemptsQuery).
		WithArgs(sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong", service.ClientMeta{})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_FifthFailureLocksAccount(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, _ := testHasher().Hash("Passw0rd!")
	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 4, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)
	mock.ExpectExec(incrementAttemptsQuery).
		WithArgs(sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(setLockoutQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteAllTokensQuery).
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong", service.ClientMeta{})
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected generic ErrInvalidCredentials on lockout, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_EnumerationResistance(t *testing.T) {
	hash, _ := testHasher().Hash("Passw0rd!")

	cases := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
	}{
		{
			name: "unknown email",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(findUserByEmailQuery).
					WithArgs("ada@example.com").
					WillReturnRows(sqlmock.NewRows(userColumns))
			},
		},
		{
			name: "disabled account",
			expect: func(mock sqlmock.Sqlmock) {
				rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, false, 0, sql.NullTime{})
				mock.ExpectQuery(findUserByEmailQuery).
					WithArgs("ada@example.com").
					WillReturnRows(rows)
			},
		},
		{
			name: "locked account with correct password",
			expect: func(mock sqlmock.Sqlmock) {
				locked := sql.NullTime{Time: time.Now().Add(10 * time.Minute), Valid: true}
				rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 5, locked)
				mock.ExpectQuery(findUserByEmailQuery).
					WithArgs("ada@example.com").
					WillReturnRows(rows)
			},
		},
		{
			name: "wrong password",
			expect: func(mock sqlmock.Sqlmock) {
				rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 0, sql.NullTime{})
				mock.ExpectQuery(findUserByEmailQuery).
					WithArgs("ada@example.com").
					WillReturnRows(rows)
				mock.ExpectExec(incrementAttemptsQuery).
					WithArgs(sqlmock.AnyArg(), uint64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mock, cleanup := newAuthServiceWithMock(t)
			defer cleanup()

			tc.expect(mock)

			password := "Passw0rd!"
			if tc.name == "wrong password" {
				password = "wrong"
			}

			_, err := svc.Login(context.Background(), "ada@example.com", password, service.ClientMeta{})
			if !errors.Is(err, service.ErrInvalidCredentials) {
				t.Fatalf("expected the one generic credential error, got %v", err)
			}
			if err.Error() != "invalid email or password" {
				t.Fatalf("message must not distinguish the failure cause, got %q", err.Error())
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestAuthService_Login_ResetsCounterAfterSuccess(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, _ := testHasher().Hash("Passw0rd!")
	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", hash, true, 3, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)
	mock.ExpectExec(resetAttemptsQuery).
		WithArgs(sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectIssueCredentials(mock, 1)
	expectSessionCount(mock, 1, 1)

	if _, err := svc.Login(context.Background(), "ada@example.com", "Passw0rd!", service.ClientMeta{}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_UpgradesLegacyHash(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	legacy, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}

	rows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", string(legacy), true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ada@example.com").
		WillReturnRows(rows)
	// The synchronous test runner makes the rehash run inline before the
	// credentials are issued.
	mock.ExpectExec(updatePasswordHashQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectIssueCredentials(mock, 1)
	expectSessionCount(mock, 1, 1)

	if _, err := svc.Login(context.Background(), "ada@example.com", "Passw0rd!", service.ClientMeta{}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("old-token").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(10), uint64(1), "old-token", now.Add(time.Hour), now.Add(-time.Hour),
		))
	userRows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", "hash", true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRows)

	mock.ExpectBegin()
	mock.ExpectExec(deleteRefreshTokenQuery).
		WithArgs("old-token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateInsertForUserQuery).
		WithArgs(uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	pair, err := svc.Refresh(context.Background(), "old-token")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.RefreshToken == "old-token" {
		t.Fatalf("expected a fresh token pair, got %+v", pair)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_UnknownToken(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns))

	_, err := svc.Refresh(context.Background(), "missing")
	if !errors.Is(err, service.ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_ExpiredTokenDeleted(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(10), uint64(1), "stale", now.Add(-time.Minute), now.Add(-time.Hour),
		))
	mock.ExpectExec(deleteRefreshTokenQuery).
		WithArgs("stale").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Refresh(context.Background(), "stale")
	if !errors.Is(err, service.ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_AlreadyUsed(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("contested").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(10), uint64(1), "contested", now.Add(time.Hour), now,
		))
	userRows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", "hash", true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRows)

	// A concurrent refresh consumed the row between lookup and rotation.
	mock.ExpectBegin()
	mock.ExpectExec(deleteRefreshTokenQuery).
		WithArgs("contested").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Refresh(context.Background(), "contested")
	if !errors.Is(err, service.ErrRefreshTokenReused) {
		t.Fatalf("expected ErrRefreshTokenReused, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_DisabledUser(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(10), uint64(1), "token", now.Add(time.Hour), now,
		))
	userRows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", "hash", false, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRows)

	_, err := svc.Refresh(context.Background(), "token")
	if !errors.Is(err, service.ErrUserDisabled) {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Logout_DeletesTokenAndMatchingSession(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(10), uint64(1), "token", now.Add(time.Hour), now,
		))
	mock.ExpectExec(deleteRefreshTokenQuery).
		WithArgs("token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sessions := sqlmock.NewRows(sessionColumns).
		AddRow(uint64(7), uint64(1), sql.NullString{String: "phone", Valid: true}, sql.NullString{}, now, now.Add(time.Hour), now.Add(-10*time.Minute)).
		AddRow(uint64(8), uint64(1), sql.NullString{String: "laptop", Valid: true}, sql.NullString{}, now, now.Add(time.Hour), now.Add(2*time.Second))
	mock.ExpectQuery(listActiveSessionsQuery).
		WithArgs(uint64(1), sqlmock.AnyArg()).
		WillReturnRows(sessions)

	// Only the session created within the tolerance window goes away.
	mock.ExpectExec(deleteSessionByIDQuery).
		WithArgs(uint64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc.Logout(context.Background(), "token")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Logout_IdempotentForUnknownToken(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(findRefreshTokenQuery).
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows(refreshTokenColumns))
		mock.ExpectExec(deleteRefreshTokenQuery).
			WithArgs("gone").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	svc.Logout(context.Background(), "gone")
	svc.Logout(context.Background(), "gone")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Logout_SwallowsStoreErrors(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findRefreshTokenQuery).
		WithArgs("token").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(deleteRefreshTokenQuery).
		WithArgs("token").
		WillReturnError(errors.New("connection reset"))

	// Must not panic or surface anything.
	svc.Logout(context.Background(), "token")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_LogoutAllSessions(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectExec(deleteAllSessionsQuery).
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(deleteAllTokensQuery).
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := svc.LogoutAllSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 sessions deleted, got %d", deleted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_GetCurrentUser_NotFound(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := svc.GetCurrentUser(context.Background(), 42)
	if !errors.Is(err, service.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_GetUserSessions(t *testing.T) {
	svc, mock, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	now := time.Now()
	userRows := addUserRow(sqlmock.NewRows(userColumns), 1, "ada@example.com", "hash", true, 0, sql.NullTime{})
	mock.ExpectQuery(findUserByIDQuery).
		WithArgs(uint64(1)).
		WillReturnRows(userRows)
	sessions := sqlmock.NewRows(sessionColumns).
		AddRow(uint64(7), uint64(1), sql.NullString{String: "phone", Valid: true}, sql.NullString{String: "10.0.0.9", Valid: true}, now, now.Add(time.Hour), now)
	mock.ExpectQuery(listActiveSessionsQuery).
		WithArgs(uint64(1), sqlmock.AnyArg()).
		WillReturnRows(sessions)

	infos, err := svc.GetUserSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("get sessions failed: %v", err)
	}
	if len(infos) != 1 || infos[0].DeviceInfo != "phone" || infos[0].IPAddress != "10.0.0.9" {
		t.Fatalf("unexpected sessions: %+v", infos)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
