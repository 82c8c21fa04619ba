package usecase

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/otp-auth-service/config"
)

const (
	tokenTypeSession      = "session"
	tokenTypeVerification = "verification"
	tokenLeeway           = 30 * time.Second
)

// SessionClaims is the payload of both session and verification tokens.
// Session tokens carry the user id, verification tokens carry the email
// awaiting a one-time code.
type SessionClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Session is a freshly minted session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type TokenIssuer interface {
	Mint(userID string, ttl time.Duration) (*Session, error)
	Verify(token string) (*SessionClaims, error)
	MintVerification(email string, ttl time.Duration) (string, error)
	VerifyVerification(token string) (string, error)
}

type jwtIssuer struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTIssuer signs HS256 tokens with the configured secret. A nil clock
// means time.Now.
func NewJWTIssuer(cfg *config.Config, now func() time.Time) (TokenIssuer, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret required")
	}
	if now == nil {
		now = time.Now
	}
	return &jwtIssuer{
		key:      []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		now:      now,
	}, nil
}

func (s *jwtIssuer) Mint(userID string, ttl time.Duration) (*Session, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	token, err := s.sign(SessionClaims{
		UserID:           userID,
		Type:             tokenTypeSession,
		RegisteredClaims: s.registered(userID, now, exp),
	})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp}, nil
}

func (s *jwtIssuer) Verify(token string) (*SessionClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewError(ErrUnauthenticated, "Access denied! Please Login to continue...")
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil, wrapError(ErrUnauthorized, "Invalid or expired token", err)
	}
	if claims.Type != tokenTypeSession || claims.UserID == "" {
		return nil, NewError(ErrUnauthorized, "Invalid or expired token")
	}
	return claims, nil
}

func (s *jwtIssuer) MintVerification(email string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	return s.sign(SessionClaims{
		Email:            email,
		Type:             tokenTypeVerification,
		RegisteredClaims: s.registered(email, now, now.Add(ttl)),
	})
}

func (s *jwtIssuer) VerifyVerification(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", NewError(ErrUnauthenticated, "Verification session not found. Please sign in again")
	}
	claims, err := s.parse(token)
	if err != nil {
		return "", wrapError(ErrUnauthorized, "Verification session expired. Please sign in again", err)
	}
	if claims.Type != tokenTypeVerification || claims.Email == "" {
		return "", NewError(ErrUnauthorized, "Verification session expired. Please sign in again")
	}
	return claims.Email, nil
}

func (s *jwtIssuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (s *jwtIssuer) parse(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser(
		jwt.WithAudience(s.audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *jwtIssuer) sign(claims SessionClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}
