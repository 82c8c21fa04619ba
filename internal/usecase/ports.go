package usecase

import (
	"context"
	"time"

	"github.com/example/otp-auth-service/internal/domain"
)

// UserRepository is the credential store. Lookups return
// domain.ErrUserNotFound when nothing matches; Create returns
// domain.ErrEmailTaken on a duplicate email.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// EphemeralStore holds TTL-bounded state. Get returns domain.ErrKeyNotFound
// for missing or expired keys.
type EphemeralStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

type Notifier interface {
	SendOTP(ctx context.Context, to, name, code string) error
	SendPasswordReset(ctx context.Context, to, name, link, code string) error
}

// IdentityProvider exchanges an OAuth authorization code for a profile.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.OAuthProfile, error)
}

// ImageStore persists an uploaded image and returns the reference saved on
// the user record.
type ImageStore interface {
	Save(ctx context.Context, userID, contentType string, data []byte) (string, error)
}

type UserEvents interface {
	CreateUser(ctx context.Context, userID, email, source, typ string) error
}
