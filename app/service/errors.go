package service

// ErrorKind is the closed set of failure categories this service surfaces.
// Anything outside it is an internal error and must not reach a client as-is.
type ErrorKind int

const (
	KindConflict ErrorKind = iota
	KindUnauthorized
	KindNotFound
)

// AuthError carries a stable machine-readable code alongside a message that
// is safe to return to clients verbatim.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrEmailExists = &AuthError{Kind: KindConflict, Code: "EMAIL_ALREADY_EXISTS", Message: "email already exists"}

	// ErrInvalidCredentials covers unknown email, wrong password, disabled
	// account and active lockout alike. Keeping one message for all four
	// prevents account enumeration and lockout probing.
	ErrInvalidCredentials = &AuthError{Kind: KindUnauthorized, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}

	ErrRefreshTokenInvalid = &AuthError{Kind: KindUnauthorized, Code: "REFRESH_TOKEN_INVALID", Message: "invalid refresh token"}
	ErrRefreshTokenExpired = &AuthError{Kind: KindUnauthorized, Code: "REFRESH_TOKEN_EXPIRED", Message: "refresh token expired"}
	ErrRefreshTokenReused  = &AuthError{Kind: KindUnauthorized, Code: "REFRESH_TOKEN_REUSED", Message: "refresh token already used"}
	ErrUserDisabled        = &AuthError{Kind: KindUnauthorized, Code: "USER_DISABLED", Message: "user not found or disabled"}
	ErrInvalidAccessToken  = &AuthError{Kind: KindUnauthorized, Code: "ACCESS_TOKEN_INVALID", Message: "invalid or expired token"}

	ErrUserNotFound = &AuthError{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
)
