package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/otp-auth-service/config"
)

const (
	SessionCookie      = "token"
	VerificationCookie = "email_for_verification"
	stateCookie        = "oauth_state"
	stateTTL           = 10 * time.Minute
)

type cookieJar struct {
	secure bool
}

func newCookieJar(cfg *config.Config) cookieJar {
	return cookieJar{secure: cfg.IsProduction()}
}

func (j cookieJar) set(c echo.Context, name, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if j.secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	c.SetCookie(cookie)
}

func (j cookieJar) clear(c echo.Context, name string) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if j.secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	c.SetCookie(cookie)
}

func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
