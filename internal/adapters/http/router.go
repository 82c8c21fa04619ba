package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/example/otp-auth-service/config"
	v1 "github.com/example/otp-auth-service/internal/adapters/http/api/v1"
	internalhttp "github.com/example/otp-auth-service/internal/adapters/http/internalhttp"
)

const bodyLimit = "3M"

type Router struct {
	cfg       *config.Config
	logger    zerolog.Logger
	apiRouter *v1.Router
	health    map[string]internalhttp.Pinger
}

func NewRouter(cfg *config.Config, logger zerolog.Logger, apiRouter *v1.Router, health map[string]internalhttp.Pinger) *Router {
	return &Router{cfg: cfg, logger: logger, apiRouter: apiRouter, health: health}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := r.logger.Info()
			if v.Error != nil {
				ev = r.logger.Error().Err(v.Error)
			}
			ev.Str("trace_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{r.cfg.FrontendURL},
		AllowCredentials: true,
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	apiGroup := e.Group(r.cfg.HTTPBasePath)
	internalhttp.Register(apiGroup, r.health)
	r.apiRouter.Register(apiGroup)
}
