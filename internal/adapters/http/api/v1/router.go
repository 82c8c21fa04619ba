package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/example/otp-auth-service/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	auth    *handlers.AuthHandler
	users   *handlers.UserHandler
	authMW  echo.MiddlewareFunc
	limiter echo.MiddlewareFunc
}

// NewRouter wires the public API. limiter may be nil.
func NewRouter(auth *handlers.AuthHandler, users *handlers.UserHandler, authMW, limiter echo.MiddlewareFunc) *Router {
	return &Router{auth: auth, users: users, authMW: authMW, limiter: limiter}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	if r.limiter != nil {
		auth.Use(r.limiter)
	}
	auth.POST("/register", r.auth.Register)
	auth.POST("/verify-register-otp", r.auth.VerifyRegisterOTP)
	auth.POST("/login", r.auth.Login)
	auth.POST("/checkpass", r.auth.CheckPassword)
	auth.POST("/verify-login-otp", r.auth.VerifyLoginOTP)
	auth.POST("/send-otp", r.auth.SendOTP)
	auth.POST("/verify-otp", r.auth.VerifyOTP)
	auth.POST("/forgot-password", r.auth.ForgotPassword)
	auth.POST("/verify-reset-password-otp", r.auth.VerifyResetPasswordOTP)
	auth.POST("/reset-password/:userId", r.auth.ResetPassword)
	auth.POST("/logout", r.auth.Logout)
	auth.GET("/google", r.auth.GoogleLogin)
	auth.GET("/google/callback", r.auth.GoogleCallback)

	g.GET("/checkUserExist", r.users.CheckUserExists)
	g.GET("/fetchUserData", r.users.FetchUserData)
	g.POST("/upload-profile", r.users.UploadProfile)

	g.GET("/protected", r.users.Protected, r.authMW)
	g.GET("/user/me", r.users.Me, r.authMW)
}
