package http

import "github.com/stacklaunch-io/ms-go-accounts/app/service"

type AuthResponse struct {
	User         *service.UserProfile `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	ExpiresIn    int64                `json:"expires_in"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LogoutAllResponse struct {
	Message         string `json:"message"`
	SessionsDeleted int64  `json:"sessions_deleted"`
}

type SessionListResponse struct {
	Sessions []*service.SessionInfo `json:"sessions"`
}

type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}
