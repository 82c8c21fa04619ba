package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultProfilePic is stored until the user uploads an image.
const DefaultProfilePic = "default-user"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrKeyNotFound is returned by the ephemeral store for absent or expired keys.
	ErrKeyNotFound = errors.New("key not found")
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash *string   `gorm:"column:password_hash" json:"-"`
	Phone        *string   `json:"phone,omitempty"`
	GoogleID     *string   `gorm:"column:google_id" json:"googleId,omitempty"`
	ProfilePic   string    `gorm:"not null" json:"profilePic"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.ProfilePic == "" {
		u.ProfilePic = DefaultProfilePic
	}
	return nil
}

// HasPassword reports whether the account logs in with a password.
// Accounts without one are OAuth-only and log in with a one-time code.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// PendingRegistration stages a password signup until its code is verified.
type PendingRegistration struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OAuthProfile is the identity returned by the OAuth provider. It is staged
// in the ephemeral store until the user proves ownership of the email.
type OAuthProfile struct {
	Subject   string    `json:"googleId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Picture   string    `json:"profilePic"`
	CreatedAt time.Time `json:"createdAt"`
}
