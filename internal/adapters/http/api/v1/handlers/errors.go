package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/example/otp-auth-service/internal/usecase"
	res "github.com/example/otp-auth-service/pkg/http"
)

type errorKind struct {
	kind   error
	status int
	code   string
}

var errorKinds = []errorKind{
	{usecase.ErrValidation, http.StatusBadRequest, "validation_error"},
	{usecase.ErrConflict, http.StatusBadRequest, "conflict"},
	{usecase.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
	{usecase.ErrExpired, http.StatusBadRequest, "expired"},
	{usecase.ErrNotFound, http.StatusNotFound, "not_found"},
	{usecase.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{usecase.ErrUnauthenticated, http.StatusForbidden, "unauthenticated"},
}

// writeError maps a service error onto a status and body. Anything that is
// not a known client error is logged and reported as a server error.
func writeError(c echo.Context, logger zerolog.Logger, err error) error {
	traceID := res.RequestID(c)
	var ue *usecase.Error
	if errors.As(err, &ue) {
		for _, k := range errorKinds {
			if errors.Is(ue.Kind, k.kind) {
				return res.ErrorJSON(c, k.status, k.code, ue.Message, traceID, ue.Details)
			}
		}
	}
	logger.Error().Err(err).Str("trace_id", traceID).Str("path", c.Path()).Msg("request failed")
	return res.ErrorJSON(c, http.StatusInternalServerError, "server_error", "Server error", traceID, nil)
}

func badPayload(c echo.Context) error {
	return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", res.RequestID(c), nil)
}
