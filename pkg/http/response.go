package http

import "github.com/labstack/echo/v4"

// ErrorResponse is the body of every failed request. Errors lists every
// violated rule when a request fails more than one check.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, data)
}

func Message(c echo.Context, status int, message string) error {
	return c.JSON(status, MessageResponse{Message: message})
}

func ErrorJSON(c echo.Context, status int, code, message, traceID string, details []string) error {
	return c.JSON(status, ErrorResponse{Code: code, Message: message, Errors: details, TraceID: traceID})
}

// RequestID returns the id assigned by the request-id middleware.
func RequestID(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
