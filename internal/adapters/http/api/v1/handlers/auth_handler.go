package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/usecase"
	res "github.com/example/otp-auth-service/pkg/http"
)

type AuthHandler struct {
	service  usecase.Service
	cfg      *config.Config
	logger   zerolog.Logger
	cookies  cookieJar
	frontend string
}

func NewAuthHandler(s usecase.Service, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  s,
		cfg:      cfg,
		logger:   logger,
		cookies:  newCookieJar(cfg),
		frontend: strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginResponse struct {
	Message          string `json:"message"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
	RequiresOTP      bool   `json:"requiresOtp,omitempty"`
}

type userIDResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	req := new(registerRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	err := h.service.Register(c.Request().Context(), res.RequestID(c), usecase.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.Message(c, http.StatusOK, "OTP sent successfully")
}

func (h *AuthHandler) VerifyRegisterOTP(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	user, err := h.service.VerifyRegisterOTP(c.Request().Context(), res.RequestID(c), req.Email, req.OTP)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.JSON(c, http.StatusCreated, userIDResponse{Message: "User registered successfully", UserID: user.ID})
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.Login(c.Request().Context(), res.RequestID(c), req.Email)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if result.RequiresPassword {
		return res.JSON(c, http.StatusOK, loginResponse{Message: "Password required", RequiresPassword: true})
	}
	return res.JSON(c, http.StatusOK, loginResponse{Message: "OTP sent to your email", RequiresOTP: true})
}

func (h *AuthHandler) CheckPassword(c echo.Context) error {
	req := new(passwordRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	user, session, err := h.service.CheckPassword(c.Request().Context(), res.RequestID(c), req.Email, req.Password)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	h.cookies.set(c, SessionCookie, session.Token, session.ExpiresAt)
	return res.JSON(c, http.StatusOK, userIDResponse{Message: "Login successful", UserID: user.ID})
}

func (h *AuthHandler) VerifyLoginOTP(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	user, session, err := h.service.VerifyLoginOTP(c.Request().Context(), res.RequestID(c), req.Email, req.OTP)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	h.cookies.set(c, SessionCookie, session.Token, session.ExpiresAt)
	return res.JSON(c, http.StatusOK, userIDResponse{Message: "Login successful", UserID: user.ID})
}

func (h *AuthHandler) SendOTP(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	email, err := h.pendingEmail(c, req.Email)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if err := h.service.SendOTP(c.Request().Context(), res.RequestID(c), email); err != nil {
		return writeError(c, h.logger, err)
	}
	return res.Message(c, http.StatusOK, "OTP sent successfully")
}

func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	email, err := h.pendingEmail(c, req.Email)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	user, session, err := h.service.VerifyOTP(c.Request().Context(), res.RequestID(c), email, req.OTP)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	h.cookies.clear(c, VerificationCookie)
	h.cookies.set(c, SessionCookie, session.Token, session.ExpiresAt)
	return res.JSON(c, http.StatusOK, userIDResponse{Message: "Login successful", UserID: user.ID})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.ForgotPassword(c.Request().Context(), res.RequestID(c), req.Email); err != nil {
		return writeError(c, h.logger, err)
	}
	return res.Message(c, http.StatusOK, "Password reset OTP sent to your email")
}

func (h *AuthHandler) VerifyResetPasswordOTP(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	userID, err := h.service.VerifyResetPasswordOTP(c.Request().Context(), res.RequestID(c), req.Email, req.OTP)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.JSON(c, http.StatusOK, userIDResponse{Message: "OTP verified", UserID: userID})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	req := new(resetPasswordRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	err := h.service.ResetPassword(c.Request().Context(), res.RequestID(c), c.Param("userId"), req.Password, req.ConfirmPassword)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.Message(c, http.StatusOK, "Password reset successfully")
}

func (h *AuthHandler) Logout(c echo.Context) error {
	h.cookies.clear(c, SessionCookie)
	return res.Message(c, http.StatusOK, "Logged out successfully")
}

func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	state := uuid.NewString()
	h.cookies.set(c, stateCookie, state, time.Now().Add(stateTTL))
	return c.Redirect(http.StatusFound, h.service.GoogleAuthURL(state))
}

func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	expected := readCookie(c, stateCookie)
	h.cookies.clear(c, stateCookie)
	if expected == "" || c.QueryParam("state") != expected {
		h.logger.Warn().Str("trace_id", res.RequestID(c)).Msg("oauth state mismatch")
		return h.loginRedirect(c, "GoogleAuthFailed")
	}

	login, err := h.service.CompleteGoogleLogin(c.Request().Context(), res.RequestID(c), c.QueryParam("code"))
	if err != nil {
		if errors.Is(err, usecase.ErrUnauthorized) {
			h.logger.Warn().Err(err).Str("trace_id", res.RequestID(c)).Msg("google login rejected")
			return h.loginRedirect(c, "GoogleAuthFailed")
		}
		h.logger.Error().Err(err).Str("trace_id", res.RequestID(c)).Msg("google login failed")
		return h.loginRedirect(c, "ServerError")
	}
	h.cookies.set(c, VerificationCookie, login.VerificationToken, time.Now().Add(h.cfg.VerificationTTL))
	return c.Redirect(http.StatusFound, h.frontend+"/auth/verify-otp")
}

func (h *AuthHandler) loginRedirect(c echo.Context, reason string) error {
	return c.Redirect(http.StatusFound, h.frontend+"/auth/login?error="+url.QueryEscape(reason))
}

// pendingEmail prefers an explicit email and falls back to the
// verification cookie set by the OAuth callback.
func (h *AuthHandler) pendingEmail(c echo.Context, email string) (string, error) {
	if strings.TrimSpace(email) != "" {
		return email, nil
	}
	return h.service.VerificationEmail(readCookie(c, VerificationCookie))
}
