package controller

import (
	"errors"
	"net/http"

	httpdto "github.com/stacklaunch-io/ms-go-accounts/app/dto/http"
	"github.com/stacklaunch-io/ms-go-accounts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	authService service.AuthService
}

func NewAuthController(authService service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

func (c *AuthController) Register(ctx echo.Context) error {
	var req httpdto.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := httpdto.Validate(&req); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	result, err := c.authService.Register(ctx.Request().Context(), req.Email, req.Password, req.FirstName, req.LastName, clientMeta(ctx))
	if err != nil {
		return c.writeError(ctx, err, "Register failed", logrus.Fields{"email": req.Email})
	}

	logrus.WithFields(logrus.Fields{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, authResponse(result))
}

func (c *AuthController) Login(ctx echo.Context) error {
	var req httpdto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := httpdto.Validate(&req); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password, clientMeta(ctx))
	if err != nil {
		return c.writeError(ctx, err, "Login failed", logrus.Fields{"email": req.Email})
	}

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, authResponse(result))
}

func (c *AuthController) Refresh(ctx echo.Context) error {
	var req httpdto.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := httpdto.Validate(&req); err != nil {
		logrus.Debug("Refresh validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken)
	if err != nil {
		return c.writeError(ctx, err, "Refresh failed", nil)
	}

	logrus.Info("Refresh token rotated")
	return ctx.JSON(http.StatusOK, httpdto.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Logout always answers 200; the underlying operation is best-effort.
func (c *AuthController) Logout(ctx echo.Context) error {
	var req httpdto.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind logout request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err := httpdto.Validate(&req); err != nil {
		logrus.Debug("Logout validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	c.authService.Logout(ctx.Request().Context(), req.RefreshToken)
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "logged out successfully"})
}

func (c *AuthController) LogoutAll(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		logrus.Warn("Logout all failed: missing user_id in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	deleted, err := c.authService.LogoutAllSessions(ctx.Request().Context(), userID)
	if err != nil {
		return c.writeError(ctx, err, "Logout all failed", logrus.Fields{"user_id": userID})
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"sessions": deleted,
	}).Info("All sessions terminated")
	return ctx.JSON(http.StatusOK, httpdto.LogoutAllResponse{
		Message:         "all sessions terminated",
		SessionsDeleted: deleted,
	})
}

func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	profile, err := c.authService.GetCurrentUser(ctx.Request().Context(), userID)
	if err != nil {
		return c.writeError(ctx, err, "Get current user failed", logrus.Fields{"user_id": userID})
	}
	return ctx.JSON(http.StatusOK, profile)
}

func (c *AuthController) Sessions(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	sessions, err := c.authService.GetUserSessions(ctx.Request().Context(), userID)
	if err != nil {
		return c.writeError(ctx, err, "List sessions failed", logrus.Fields{"user_id": userID})
	}
	return ctx.JSON(http.StatusOK, httpdto.SessionListResponse{Sessions: sessions})
}

// writeError translates the service's closed error taxonomy into HTTP
// statuses; anything else is logged and reported as a generic 500.
func (c *AuthController) writeError(ctx echo.Context, err error, logMsg string, fields logrus.Fields) error {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		logrus.WithFields(fields).WithField("code", authErr.Code).Warn(logMsg)
		return ctx.JSON(statusForKind(authErr.Kind), httpdto.ErrorResponse{
			Code:  authErr.Code,
			Error: authErr.Message,
		})
	}

	logrus.WithError(err).WithFields(fields).Error(logMsg)
	return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}

func authResponse(result *service.AuthResult) httpdto.AuthResponse {
	return httpdto.AuthResponse{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	}
}

func clientMeta(ctx echo.Context) service.ClientMeta {
	return service.ClientMeta{
		DeviceInfo: ctx.Request().UserAgent(),
		IPAddress:  ctx.RealIP(),
	}
}
