package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stacklaunch-io/ms-go-accounts/app/entity"
	"github.com/stacklaunch-io/ms-go-accounts/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Claims struct {
	UserID uint64 `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type userStore interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	IncrementFailedAttempts(ctx context.Context, userID uint64) error
	SetLockout(ctx context.Context, userID uint64, until time.Time) error
	ResetFailedAttempts(ctx context.Context, userID uint64) error
	UpdatePasswordHash(ctx context.Context, userID uint64, passwordHash string) error
}

type refreshTokenStore interface {
	Create(ctx context.Context, token *entity.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*entity.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	Rotate(ctx context.Context, oldToken string, next *entity.RefreshToken) (bool, error)
	DeleteAllForUser(ctx context.Context, userID uint64) error
}

type sessionStore interface {
	Create(ctx context.Context, session *entity.Session) error
	ListActiveForUser(ctx context.Context, userID uint64, now time.Time) ([]*entity.Session, error)
	DeleteByID(ctx context.Context, id uint64) error
	DeleteAllForUser(ctx context.Context, userID uint64) (int64, error)
	CountActiveForUser(ctx context.Context, userID uint64, now time.Time) (int64, error)
}

// UserProfile is the sanitized view of a user; it never carries the
// password hash.
type UserProfile struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionInfo struct {
	ID           uint64    `json:"id"`
	DeviceInfo   string    `json:"device_info,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuthResult struct {
	User         *UserProfile
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type ClientMeta struct {
	DeviceInfo string
	IPAddress  string
}

type AuthService interface {
	Register(ctx context.Context, email, password, firstName, lastName string, meta ClientMeta) (*AuthResult, error)
	Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
	LogoutAllSessions(ctx context.Context, userID uint64) (int64, error)
	GetCurrentUser(ctx context.Context, userID uint64) (*UserProfile, error)
	GetUserSessions(ctx context.Context, userID uint64) ([]*SessionInfo, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// AsyncRunner executes work detached from the request path. Production uses
// a plain goroutine; tests substitute a synchronous runner.
type AsyncRunner func(task func())

type AuthServiceOption func(*authService)

type authService struct {
	users       userStore
	tokens      refreshTokenStore
	sessions    sessionStore
	hasher      *PasswordHasher
	lockout     *LockoutPolicy
	cfg         *config.Config
	asyncRunner AsyncRunner
}

func NewAuthService(
	users userStore,
	tokens refreshTokenStore,
	sessions sessionStore,
	hasher *PasswordHasher,
	lockout *LockoutPolicy,
	cfg *config.Config,
	opts ...AuthServiceOption,
) AuthService {
	svc := &authService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		lockout:  lockout,
		cfg:      cfg,
		asyncRunner: func(task func()) {
			go task()
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) AuthServiceOption {
	return func(s *authService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func (s *authService) Register(ctx context.Context, email, password, firstName, lastName string, meta ClientMeta) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         entity.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := s.issueCredentials(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         sanitizeUser(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWTAccessTokenTTL.Seconds()),
	}, nil
}

func (s *authService) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || user.Locked(time.Now()) {
		return nil, ErrInvalidCredentials
	}

	verified := s.hasher.Verify(password, user.PasswordHash)
	if !verified.Valid {
		if err = s.recordFailedAttempt(ctx, user); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil.Valid {
		if err = s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	if verified.NeedsRehash {
		s.rehashPassword(user.ID, password)
	}

	accessToken, refreshToken, err := s.issueCredentials(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if count, err := s.sessions.CountActiveForUser(ctx, user.ID, time.Now()); err == nil {
		logrus.WithFields(logrus.Fields{
			"user_id":         user.ID,
			"active_sessions": count,
		}).Debug("login issued new session")
	}

	return &AuthResult{
		User:         sanitizeUser(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWTAccessTokenTTL.Seconds()),
	}, nil
}

// recordFailedAttempt bumps the counter, applies whatever lock tier the new
// count reaches, and revokes refresh tokens once a lock is set.
func (s *authService) recordFailedAttempt(ctx context.Context, user *entity.User) error {
	if err := s.users.IncrementFailedAttempts(ctx, user.ID); err != nil {
		return err
	}

	attempts := user.FailedLoginAttempts + 1
	duration, locked := s.lockout.Duration(attempts)
	if !locked {
		return nil
	}

	until := time.Now().Add(duration)
	if err := s.users.SetLockout(ctx, user.ID, until); err != nil {
		return err
	}

	if err := s.tokens.DeleteAllForUser(ctx, user.ID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to revoke refresh tokens for locked account")
	}
	logrus.WithFields(logrus.Fields{
		"user_id":      user.ID,
		"attempts":     attempts,
		"locked_until": until,
	}).Warn("account locked after repeated failed logins")
	return nil
}

func (s *authService) rehashPassword(userID uint64, password string) {
	s.asyncRunner(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		newHash, err := s.hasher.Hash(password)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("failed to rehash legacy password")
			return
		}
		if err = s.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("failed to persist upgraded password hash")
		}
	})
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrRefreshTokenInvalid
	}

	if stored.ExpiresAt.Before(time.Now()) {
		if _, err = s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
			logrus.WithError(err).Warn("failed to delete expired refresh token")
		}
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrUserDisabled
	}

	now := time.Now()
	next := &entity.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.cfg.JWTRefreshTokenTTL),
		CreatedAt: now,
	}

	// The store executes delete-old plus insert-new as one transaction.
	// A false result means another caller consumed the token first.
	rotated, err := s.tokens.Rotate(ctx, refreshToken, next)
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, ErrRefreshTokenReused
	}

	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: next.Token,
		ExpiresIn:    int64(s.cfg.JWTAccessTokenTTL.Seconds()),
	}, nil
}

// Logout is best-effort: it must never surface an error, even for a token
// that is unknown or already deleted.
func (s *authService) Logout(ctx context.Context, refreshToken string) {
	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		logrus.WithError(err).Debug("logout: refresh token lookup failed")
	}

	if _, err = s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
		logrus.WithError(err).Debug("logout: refresh token delete failed")
	}

	if stored == nil {
		return
	}

	sessions, err := s.sessions.ListActiveForUser(ctx, stored.UserID, time.Now())
	if err != nil {
		logrus.WithError(err).WithField("user_id", stored.UserID).Debug("logout: session listing failed")
		return
	}

	if match := closestSession(sessions, stored.CreatedAt, s.cfg.SessionMatchTolerance); match != nil {
		if err = s.sessions.DeleteByID(ctx, match.ID); err != nil {
			logrus.WithError(err).WithField("session_id", match.ID).Debug("logout: session delete failed")
		}
	}
}

// closestSession picks the session created nearest the token's creation
// time, provided it falls within tolerance. There is no foreign key between
// the two tables; proximity of creation time is the only correlation.
func closestSession(sessions []*entity.Session, createdAt time.Time, tolerance time.Duration) *entity.Session {
	var best *entity.Session
	var bestDelta time.Duration

	for _, session := range sessions {
		delta := session.CreatedAt.Sub(createdAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > tolerance {
			continue
		}
		if best == nil || delta < bestDelta {
			best = session
			bestDelta = delta
		}
	}
	return best
}

func (s *authService) LogoutAllSessions(ctx context.Context, userID uint64) (int64, error) {
	deleted, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err = s.tokens.DeleteAllForUser(ctx, userID); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *authService) GetCurrentUser(ctx context.Context, userID uint64) (*UserProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return sanitizeUser(user), nil
}

func (s *authService) GetUserSessions(ctx context.Context, userID uint64) ([]*SessionInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	sessions, err := s.sessions.ListActiveForUser(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}

	infos := make([]*SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, &SessionInfo{
			ID:           session.ID,
			DeviceInfo:   session.DeviceInfo.String,
			IPAddress:    session.IPAddress.String,
			LastActiveAt: session.LastActiveAt,
			ExpiresAt:    session.ExpiresAt,
			CreatedAt:    session.CreatedAt,
		})
	}
	return infos, nil
}

func (s *authService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// issueCredentials creates the refresh token row and its correlated session
// at the same instant, then signs the access token.
func (s *authService) issueCredentials(ctx context.Context, user *entity.User, meta ClientMeta) (string, string, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.JWTRefreshTokenTTL)

	refreshToken := &entity.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, refreshToken); err != nil {
		return "", "", err
	}

	session := &entity.Session{
		UserID:       user.ID,
		DeviceInfo:   nullString(meta.DeviceInfo),
		IPAddress:    nullString(meta.IPAddress),
		LastActiveAt: now,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", "", err
	}

	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken.Token, nil
}

func (s *authService) signAccessToken(user *entity.User) (string, error) {
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.JWTAccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func sanitizeUser(user *entity.User) *UserProfile {
	return &UserProfile{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}

func nullString(value string) (ns sql.NullString) {
	if value != "" {
		ns.String = value
		ns.Valid = true
	}
	return ns
}
