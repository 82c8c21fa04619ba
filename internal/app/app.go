package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	nats "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/otp-auth-service/config"
	httpadapter "github.com/example/otp-auth-service/internal/adapters/http"
	apiv1 "github.com/example/otp-auth-service/internal/adapters/http/api/v1"
	"github.com/example/otp-auth-service/internal/adapters/http/api/v1/handlers"
	internalhttp "github.com/example/otp-auth-service/internal/adapters/http/internalhttp"
	authmw "github.com/example/otp-auth-service/internal/adapters/http/middleware"
	"github.com/example/otp-auth-service/internal/adapters/google"
	mailer "github.com/example/otp-auth-service/internal/adapters/mail"
	natsadapter "github.com/example/otp-auth-service/internal/adapters/nats"
	repo "github.com/example/otp-auth-service/internal/adapters/postgres"
	redisstore "github.com/example/otp-auth-service/internal/adapters/redis"
	"github.com/example/otp-auth-service/internal/adapters/storage"
	"github.com/example/otp-auth-service/internal/usecase"
	pkglog "github.com/example/otp-auth-service/pkg/log"
)

const startupTimeout = 30 * time.Second

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	redis    *goredis.Client
	natsConn *nats.Conn
	echo     *echo.Echo
}

func New(ctx context.Context) (*App, error) {
	cfg := config.MustLoad()
	logger := pkglog.With(pkglog.New(cfg.AppEnv, cfg.LogLevel), pkglog.Fields{
		"service": cfg.AppName,
		"env":     cfg.AppEnv,
	})

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, user events and token verification disabled")
		nc = nil
	}
	cleanup := func() {
		if nc != nil {
			nc.Close()
		}
		_ = rdb.Close()
		closeDB(db)
	}

	notifier, err := mailer.NewSender(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	images, err := imageStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	tokens, err := usecase.NewJWTIssuer(cfg, nil)
	if err != nil {
		cleanup()
		return nil, err
	}

	deps := usecase.Deps{
		Config:   cfg,
		Logger:   logger,
		Users:    repo.NewUserRepository(db),
		Store:    redisstore.New(rdb, ""),
		Notifier: notifier,
		Tokens:   tokens,
		Identity: google.NewProvider(cfg),
		Images:   images,
	}
	if nc != nil {
		deps.Events = natsadapter.NewUserClient(nc, cfg.NATSUserCreateSubject)
		if _, err := natsadapter.NewVerifyHandler(tokens).Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Str("subject", cfg.NATSVerifySubject).Msg("nats subscribe failed")
		}
	}
	service := usecase.NewAuthService(deps)

	authMW := authmw.NewAuthMiddleware(tokens, handlers.SessionCookie)
	api := apiv1.NewRouter(
		handlers.NewAuthHandler(service, cfg, logger),
		handlers.NewUserHandler(service, cfg, logger),
		authMW.Handler,
		rateLimiter(cfg),
	)
	health := map[string]internalhttp.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	router := httpadapter.NewRouter(cfg, logger, api, health)

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, redis: rdb, natsConn: nc, echo: e}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		addr := fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort)
		a.logger.Info().Str("addr", addr).Str("env", a.cfg.AppEnv).Msg("http server listening")
		errCh <- a.echo.Start(addr)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	closeDB(a.db)
}

func openDatabase(ctx context.Context, cfg *config.Config, log pkglog.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	err := retry(ctx, log, "postgres", func() error {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger:         loggerForGorm(cfg),
			TranslateError: true,
		})
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return pingOrClose(ctx, sqlDB)
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx, sqlDB); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log pkglog.Logger) (*goredis.Client, error) {
	var client *goredis.Client
	err := retry(ctx, log, "redis", func() error {
		var err error
		client, err = redisstore.Dial(ctx, cfg.RedisURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// retry backs off exponentially while a dependency comes up.
func retry(ctx context.Context, log pkglog.Logger, name string, op func() error) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(startupTimeout)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("dependency", name).Dur("retry_in", wait).Msg("dependency not ready")
	})
}

type pool interface {
	PingContext(ctx context.Context) error
	Close() error
}

// pingOrClose releases a pool that opened but cannot reach the server, so
// retried attempts do not accumulate idle pools.
func pingOrClose(ctx context.Context, p pool) error {
	if err := p.PingContext(ctx); err != nil {
		_ = p.Close()
		return err
	}
	return nil
}

func imageStore(ctx context.Context, cfg *config.Config) (usecase.ImageStore, error) {
	if cfg.S3Bucket == "" {
		return storage.DataURLStore{}, nil
	}
	s3, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 store: %w", err)
	}
	return s3, nil
}

func rateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitRPS)))
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func loggerForGorm(cfg *config.Config) gormlogger.Interface {
	level := gormlogger.Warn
	if cfg.AppEnv == "local" {
		level = gormlogger.Info
	}
	return gormlogger.Default.LogMode(level)
}
