package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/example/otp-auth-service/internal/domain"
)

type flowKind string

const (
	flowRegister flowKind = "register"
	flowLogin    flowKind = "login"
	flowOAuth    flowKind = "oauth"
	flowReset    flowKind = "reset"
)

// flowState is derived from what the ephemeral store holds for an email,
// never from process memory.
type flowState int

const (
	stateInitiated flowState = iota
	stateCodeSent
	stateVerified
)

func (s flowState) String() string {
	switch s {
	case stateCodeSent:
		return "code_sent"
	case stateVerified:
		return "verified"
	default:
		return "initiated"
	}
}

type flow struct {
	kind  flowKind
	email string
}

// accepts reports whether a code issued by another flow may complete this
// one. Login and OAuth codes are interchangeable since both end in an OTP
// session for an account without a password.
func (f flow) accepts(issuer flowKind) bool {
	switch f.kind {
	case flowLogin, flowOAuth:
		return issuer == flowLogin || issuer == flowOAuth
	default:
		return issuer == f.kind
	}
}

// Every flow shares one code slot per email, so a newer code always
// replaces an older one regardless of which flow issued it. The stored
// value is tagged with the issuing flow as "<kind>:<code>".
func otpKey(email string) string     { return "otp:" + email }
func pendingKey(email string) string { return "reg:" + email }
func oauthKey(email string) string   { return "oauth:" + email }
func resetKey(userID string) string  { return "reset:" + userID }

func errOTPFormat() error { return NewError(ErrValidation, "OTP must be a 6 digit code") }

// errPasswordRequired rejects OTP sign-in for accounts that log in with a
// password.
func errPasswordRequired() error { return NewError(ErrValidation, "Password login required") }

type deliverFunc func(ctx context.Context, code string) error

// sendCode moves a flow into code_sent. Issuing again restarts the TTL and
// invalidates the previous code.
func (s *authService) sendCode(ctx context.Context, traceID string, f flow, deliver deliverFunc) error {
	code, err := s.generate()
	if err != nil {
		return upstream("generate otp", err)
	}
	if err := s.store.Set(ctx, otpKey(f.email), []byte(string(f.kind)+":"+code), s.cfg.OTPTTL); err != nil {
		return upstream("store otp", err)
	}
	if err := deliver(ctx, code); err != nil {
		return upstream("send otp", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("flow", string(f.kind)).Str("email", f.email).Str("state", stateCodeSent.String()).Msg("otp issued")
	return nil
}

// confirmCode moves a flow from code_sent to verified. With consume the
// code is deleted on match; otherwise the caller deletes it once the flow's
// side effects have been committed.
func (s *authService) confirmCode(ctx context.Context, traceID string, f flow, code string, consume bool) error {
	if !validOTPFormat(code) {
		return errOTPFormat()
	}
	stored, err := s.store.Get(ctx, otpKey(f.email))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return NewError(ErrExpired, "OTP expired. Please request a new one")
	}
	if err != nil {
		return upstream("load otp", err)
	}
	issuer, want, _ := strings.Cut(string(stored), ":")
	if subtle.ConstantTimeCompare([]byte(want), []byte(code)) != 1 || !f.accepts(flowKind(issuer)) {
		s.logger.Warn().Str("trace_id", traceID).Str("flow", string(f.kind)).Str("email", f.email).Msg("otp mismatch")
		return NewError(ErrInvalidCredentials, "Invalid OTP")
	}
	if consume {
		if err := s.store.Delete(ctx, otpKey(f.email)); err != nil {
			return upstream("consume otp", err)
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("flow", string(f.kind)).Str("email", f.email).Str("state", stateVerified.String()).Msg("otp verified")
	return nil
}

// state reports where a flow stands. Only the reset flow has a persisted
// verified state, the others finish in the same call that verifies.
func (s *authService) state(ctx context.Context, f flow, userID string) (flowState, error) {
	if f.kind == flowReset && userID != "" {
		ok, err := s.exists(ctx, resetKey(userID))
		if err != nil {
			return stateInitiated, err
		}
		if ok {
			return stateVerified, nil
		}
	}
	ok, err := s.exists(ctx, otpKey(f.email))
	if err != nil {
		return stateInitiated, err
	}
	if ok {
		return stateCodeSent, nil
	}
	return stateInitiated, nil
}

func (s *authService) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *authService) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, raw, ttl)
}

func (s *authService) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
