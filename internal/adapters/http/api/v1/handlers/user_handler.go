package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/usecase"
	res "github.com/example/otp-auth-service/pkg/http"
)

type UserHandler struct {
	service  usecase.Service
	logger   zerolog.Logger
	maxImage int64
}

func NewUserHandler(s usecase.Service, cfg *config.Config, logger zerolog.Logger) *UserHandler {
	return &UserHandler{service: s, logger: logger, maxImage: cfg.MaxImageBytes}
}

type accountGoneResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect bool   `json:"redirect"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Protected echoes the claims of the verified session.
func (h *UserHandler) Protected(c echo.Context) error {
	return res.JSON(c, http.StatusOK, map[string]interface{}{
		"message": "Access granted",
		"user":    c.Get("claims"),
	})
}

func (h *UserHandler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	user, err := h.service.GetUser(c.Request().Context(), res.RequestID(c), userID)
	var ue *usecase.Error
	if errors.As(err, &ue) && errors.Is(err, usecase.ErrNotFound) {
		return res.JSON(c, http.StatusNotFound, accountGoneResponse{
			Code:     "not_found",
			Message:  ue.Message,
			Redirect: true,
			TraceID:  res.RequestID(c),
		})
	}
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.JSON(c, http.StatusOK, user)
}

// CheckUserExists never fails; any problem with the session reads as false.
func (h *UserHandler) CheckUserExists(c echo.Context) error {
	_, err := h.service.SessionUser(c.Request().Context(), res.RequestID(c), readCookie(c, SessionCookie))
	return res.JSON(c, http.StatusOK, map[string]bool{"success": err == nil})
}

func (h *UserHandler) FetchUserData(c echo.Context) error {
	user, err := h.service.GetUser(c.Request().Context(), res.RequestID(c), c.QueryParam("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.JSON(c, http.StatusOK, user)
}

func (h *UserHandler) UploadProfile(c echo.Context) error {
	fh, err := c.FormFile("profile")
	if err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "validation_error", "No file uploaded", res.RequestID(c), nil)
	}
	if fh.Size > h.maxImage {
		return res.ErrorJSON(c, http.StatusBadRequest, "validation_error", "File too large. Maximum size is 2 MB", res.RequestID(c), nil)
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, h.logger, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxImage+1))
	if err != nil {
		return writeError(c, h.logger, fmt.Errorf("read upload: %w", err))
	}

	user, err := h.service.UploadProfileImage(c.Request().Context(), res.RequestID(c), c.FormValue("id"), data)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return res.JSON(c, http.StatusOK, user)
}
