package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/otp-auth-service/internal/usecase"
	res "github.com/example/otp-auth-service/pkg/http"
)

type sessionVerifier interface {
	Verify(token string) (*usecase.SessionClaims, error)
}

// AuthMiddleware admits requests carrying a valid session cookie and
// exposes the session as "user_id" and "claims" on the context.
type AuthMiddleware struct {
	verifier sessionVerifier
	cookie   string
}

func NewAuthMiddleware(verifier sessionVerifier, cookie string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, cookie: cookie}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var token string
		if cookie, err := c.Cookie(m.cookie); err == nil {
			token = cookie.Value
		}
		claims, err := m.verifier.Verify(token)
		if err != nil {
			var ue *usecase.Error
			msg := "Invalid or expired token"
			if errors.As(err, &ue) {
				msg = ue.Message
			}
			if errors.Is(err, usecase.ErrUnauthenticated) {
				return res.ErrorJSON(c, http.StatusForbidden, "unauthenticated", msg, res.RequestID(c), nil)
			}
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", msg, res.RequestID(c), nil)
		}
		c.Set("user_id", claims.UserID)
		c.Set("claims", claims)
		return next(c)
	}
}
