package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName      string `env:"AUTH_APP_NAME" envDefault:"auth-service"`
	AppEnv       string `env:"AUTH_APP_ENV" envDefault:"local"`
	LogLevel     string `env:"AUTH_LOG_LEVEL" envDefault:"info"`
	HTTPHost     string `env:"AUTH_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string `env:"AUTH_HTTP_PORT" envDefault:"5000"`
	HTTPBasePath string `env:"AUTH_HTTP_BASE_PATH" envDefault:"/api"`
	FrontendURL  string `env:"AUTH_FRONTEND_URL,required,notEmpty"`
	BackendURL   string `env:"AUTH_BACKEND_URL,required,notEmpty"`

	DatabaseURL string `env:"AUTH_DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"AUTH_REDIS_URL,required,notEmpty"`

	JWTSecret   string `env:"AUTH_JWT_SECRET,required,notEmpty"`
	JWTAudience string `env:"AUTH_JWT_AUDIENCE" envDefault:"frontend"`
	JWTIssuer   string `env:"AUTH_JWT_ISSUER" envDefault:"auth-service"`

	PasswordSessionTTL time.Duration `env:"AUTH_PASSWORD_SESSION_TTL" envDefault:"24h"`
	OTPSessionTTL      time.Duration `env:"AUTH_OTP_SESSION_TTL" envDefault:"168h"`
	VerificationTTL    time.Duration `env:"AUTH_VERIFICATION_TTL" envDefault:"168h"`
	OTPTTL             time.Duration `env:"AUTH_OTP_TTL" envDefault:"5m"`
	PendingTTL         time.Duration `env:"AUTH_PENDING_TTL" envDefault:"10m"`
	ResetGrantTTL      time.Duration `env:"AUTH_RESET_GRANT_TTL" envDefault:"10m"`
	ResetConsumesOTP   bool          `env:"AUTH_RESET_CONSUMES_OTP" envDefault:"false"`
	BcryptCost         int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`

	SMTPHost     string `env:"AUTH_SMTP_HOST,required,notEmpty"`
	SMTPPort     int    `env:"AUTH_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"AUTH_SMTP_USERNAME,required,notEmpty"`
	SMTPPassword string `env:"AUTH_SMTP_PASSWORD,required,notEmpty"`
	MailFrom     string `env:"AUTH_MAIL_FROM,required,notEmpty"`

	GoogleClientID     string `env:"AUTH_GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string `env:"AUTH_GOOGLE_CLIENT_SECRET,required,notEmpty"`

	MaxImageBytes int64  `env:"AUTH_MAX_IMAGE_BYTES" envDefault:"2097152"`
	S3Bucket      string `env:"AUTH_S3_BUCKET"`
	S3Region      string `env:"AUTH_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint    string `env:"AUTH_S3_ENDPOINT"`
	S3AccessKey   string `env:"AUTH_S3_ACCESS_KEY"`
	S3SecretKey   string `env:"AUTH_S3_SECRET_KEY"`
	S3PublicURL   string `env:"AUTH_S3_PUBLIC_URL"`

	NATSURL               string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSVerifySubject     string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`
	NATSUserCreateSubject string `env:"NATS_SUBJECT_USER_CREATE" envDefault:"user.create-user"`

	RateLimitRPS float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
}

// IsProduction reports whether cookies must be cross-site capable.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// GoogleRedirectURL is the callback registered with Google.
func (c *Config) GoogleRedirectURL() string {
	return c.BackendURL + c.HTTPBasePath + "/auth/google/callback"
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
