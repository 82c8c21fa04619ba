package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/domain"
	pkglog "github.com/example/otp-auth-service/pkg/log"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// LoginResult tells the client which second step the account needs.
type LoginResult struct {
	RequiresPassword bool
	RequiresOTP      bool
}

// GoogleLogin is the outcome of an OAuth callback: a code has been mailed
// and the verification token identifies the email awaiting it.
type GoogleLogin struct {
	Email             string
	VerificationToken string
}

type Service interface {
	Register(ctx context.Context, traceID string, in RegisterInput) error
	VerifyRegisterOTP(ctx context.Context, traceID, email, otp string) (*domain.User, error)
	Login(ctx context.Context, traceID, email string) (*LoginResult, error)
	CheckPassword(ctx context.Context, traceID, email, password string) (*domain.User, *Session, error)
	VerifyLoginOTP(ctx context.Context, traceID, email, otp string) (*domain.User, *Session, error)
	SendOTP(ctx context.Context, traceID, email string) error
	VerifyOTP(ctx context.Context, traceID, email, otp string) (*domain.User, *Session, error)
	ForgotPassword(ctx context.Context, traceID, email string) error
	VerifyResetPasswordOTP(ctx context.Context, traceID, email, otp string) (string, error)
	ResetPassword(ctx context.Context, traceID, userID, password, confirmPassword string) error
	GoogleAuthURL(state string) string
	CompleteGoogleLogin(ctx context.Context, traceID, code string) (*GoogleLogin, error)
	VerificationEmail(token string) (string, error)
	SessionUser(ctx context.Context, traceID, token string) (*domain.User, error)
	GetUser(ctx context.Context, traceID, userID string) (*domain.User, error)
	UploadProfileImage(ctx context.Context, traceID, userID string, data []byte) (*domain.User, error)
}

// Deps groups the collaborators of the auth service. Events, Now and
// GenerateOTP are optional.
type Deps struct {
	Config      *config.Config
	Logger      pkglog.Logger
	Users       UserRepository
	Store       EphemeralStore
	Notifier    Notifier
	Tokens      TokenIssuer
	Identity    IdentityProvider
	Images      ImageStore
	Events      UserEvents
	Now         func() time.Time
	GenerateOTP func() (string, error)
}

type authService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	users    UserRepository
	store    EphemeralStore
	notifier Notifier
	tokens   TokenIssuer
	identity IdentityProvider
	images   ImageStore
	events   UserEvents
	now      func() time.Time
	generate func() (string, error)
}

func NewAuthService(d Deps) Service {
	s := &authService{
		cfg:      d.Config,
		logger:   d.Logger,
		users:    d.Users,
		store:    d.Store,
		notifier: d.Notifier,
		tokens:   d.Tokens,
		identity: d.Identity,
		images:   d.Images,
		events:   d.Events,
		now:      d.Now,
		generate: d.GenerateOTP,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generate == nil {
		s.generate = GenerateOTP
	}
	return s
}

func (s *authService) Register(ctx context.Context, traceID string, in RegisterInput) error {
	name := formatName(in.Name)
	email := normalizeEmail(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if name == "" || email == "" || in.Password == "" || phone == "" {
		return NewError(ErrValidation, "All fields are required!")
	}
	if !validEmail(email) {
		return NewError(ErrValidation, "Invalid email format!")
	}
	if violations := ValidatePassword(in.Password); len(violations) > 0 {
		return NewError(ErrValidation, "Password does not meet requirements", violations...)
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return NewError(ErrConflict, "User already exists. Please login!")
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return upstream("lookup user", err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return err
	}
	pending := domain.PendingRegistration{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Phone:        phone,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.putJSON(ctx, pendingKey(email), pending, s.cfg.PendingTTL); err != nil {
		return upstream("stage registration", err)
	}
	if err := s.sendCode(ctx, traceID, flow{kind: flowRegister, email: email}, s.otpMail(email, name)); err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("email", email).Msg("registration staged")
	return nil
}

func (s *authService) VerifyRegisterOTP(ctx context.Context, traceID, email, otp string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, NewError(ErrValidation, "Email is required")
	}
	if err := s.confirmCode(ctx, traceID, flow{kind: flowRegister, email: email}, otp, false); err != nil {
		return nil, err
	}

	var pending domain.PendingRegistration
	if err := s.getJSON(ctx, pendingKey(email), &pending); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, NewError(ErrExpired, "Registration expired. Please register again")
		}
		return nil, upstream("load registration", err)
	}

	user := &domain.User{
		Name:         pending.Name,
		Email:        pending.Email,
		PasswordHash: &pending.PasswordHash,
		Phone:        &pending.Phone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, NewError(ErrConflict, "User already exists. Please login!")
		}
		return nil, upstream("create user", err)
	}
	s.clear(ctx, traceID, otpKey(email), pendingKey(email))
	s.announce(ctx, traceID, user, "register")

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("registration verified")
	return user, nil
}

func (s *authService) Login(ctx context.Context, traceID, email string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, NewError(ErrValidation, "Email is required")
	}
	user, err := s.findByEmail(ctx, email, "User not found. Please register first!")
	if err != nil {
		return nil, err
	}
	if user.HasPassword() {
		return &LoginResult{RequiresPassword: true}, nil
	}
	if err := s.sendCode(ctx, traceID, flow{kind: flowLogin, email: email}, s.otpMail(email, user.Name)); err != nil {
		return nil, err
	}
	return &LoginResult{RequiresOTP: true}, nil
}

func (s *authService) CheckPassword(ctx context.Context, traceID, email, password string) (*domain.User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, NewError(ErrValidation, "Email and password are required")
	}
	user, err := s.findByEmail(ctx, email, "User not found. Please register first!")
	if err != nil {
		return nil, nil, err
	}
	if !user.HasPassword() {
		return nil, nil, NewError(ErrValidation, "Password login is not available for this account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", user.ID).Msg("password mismatch")
		return nil, nil, NewError(ErrInvalidCredentials, "Invalid credentials")
	}
	session, err := s.mintSession(user, s.cfg.PasswordSessionTTL)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("method", "password").Msg("login")
	return user, session, nil
}

func (s *authService) VerifyLoginOTP(ctx context.Context, traceID, email, otp string) (*domain.User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil, NewError(ErrValidation, "Email is required")
	}
	if !validOTPFormat(otp) {
		return nil, nil, errOTPFormat()
	}
	user, err := s.findByEmail(ctx, email, "User not found. Please register first!")
	if err != nil {
		return nil, nil, err
	}
	if user.HasPassword() {
		return nil, nil, errPasswordRequired()
	}
	if err := s.confirmCode(ctx, traceID, flow{kind: flowLogin, email: email}, otp, true); err != nil {
		return nil, nil, err
	}
	session, err := s.mintSession(user, s.cfg.OTPSessionTTL)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("method", "otp").Msg("login")
	return user, session, nil
}

// SendOTP re-issues a code for whichever flow is waiting on the email:
// a staged OAuth profile first, then a pending registration, then an
// existing account.
func (s *authService) SendOTP(ctx context.Context, traceID, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return NewError(ErrValidation, "Email is required")
	}

	var profile domain.OAuthProfile
	err := s.getJSON(ctx, oauthKey(email), &profile)
	if err == nil {
		return s.sendCode(ctx, traceID, flow{kind: flowOAuth, email: email}, s.otpMail(email, profile.Name))
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return upstream("load oauth profile", err)
	}

	var pending domain.PendingRegistration
	err = s.getJSON(ctx, pendingKey(email), &pending)
	if err == nil {
		return s.sendCode(ctx, traceID, flow{kind: flowRegister, email: email}, s.otpMail(email, pending.Name))
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return upstream("load registration", err)
	}

	user, err := s.findByEmail(ctx, email, "No pending verification for this email")
	if err != nil {
		return err
	}
	if user.HasPassword() {
		return errPasswordRequired()
	}
	return s.sendCode(ctx, traceID, flow{kind: flowLogin, email: email}, s.otpMail(email, user.Name))
}

// VerifyOTP completes an OAuth sign-in. A staged profile with no matching
// account creates the account; an existing account just gets a session.
func (s *authService) VerifyOTP(ctx context.Context, traceID, email, otp string) (*domain.User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil, NewError(ErrValidation, "Email is required")
	}
	if err := s.confirmCode(ctx, traceID, flow{kind: flowOAuth, email: email}, otp, false); err != nil {
		return nil, nil, err
	}

	var profile domain.OAuthProfile
	staged := true
	if err := s.getJSON(ctx, oauthKey(email), &profile); err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			return nil, nil, upstream("load oauth profile", err)
		}
		staged = false
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.HasPassword() {
			return nil, nil, errPasswordRequired()
		}
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, nil, upstream("lookup user", err)
	case !staged:
		return nil, nil, NewError(ErrExpired, "Verification expired. Please sign in again")
	default:
		user, err = s.createFromProfile(ctx, traceID, &profile)
		if err != nil {
			return nil, nil, err
		}
	}

	s.clear(ctx, traceID, otpKey(email), oauthKey(email))
	session, err := s.mintSession(user, s.cfg.OTPSessionTTL)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("method", "oauth").Msg("login")
	return user, session, nil
}

func (s *authService) ForgotPassword(ctx context.Context, traceID, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return NewError(ErrValidation, "Email is required")
	}
	user, err := s.findByEmail(ctx, email, "User with this email not found")
	if err != nil {
		return err
	}
	link := strings.TrimRight(s.cfg.FrontendURL, "/") + "/auth/reset-password/" + user.ID
	return s.sendCode(ctx, traceID, flow{kind: flowReset, email: email}, func(ctx context.Context, code string) error {
		return s.notifier.SendPasswordReset(ctx, email, user.Name, link, code)
	})
}

func (s *authService) VerifyResetPasswordOTP(ctx context.Context, traceID, email, otp string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", NewError(ErrValidation, "Email is required")
	}
	if !validOTPFormat(otp) {
		return "", errOTPFormat()
	}
	user, err := s.findByEmail(ctx, email, "User with this email not found")
	if err != nil {
		return "", err
	}
	if err := s.confirmCode(ctx, traceID, flow{kind: flowReset, email: email}, otp, s.cfg.ResetConsumesOTP); err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, resetKey(user.ID), []byte(email), s.cfg.ResetGrantTTL); err != nil {
		return "", upstream("store reset grant", err)
	}
	return user.ID, nil
}

// ResetPassword rejects mismatched confirmation before touching any store.
func (s *authService) ResetPassword(ctx context.Context, traceID, userID, password, confirmPassword string) error {
	if password != confirmPassword {
		return NewError(ErrValidation, "Passwords do not match")
	}
	if strings.TrimSpace(userID) == "" {
		return NewError(ErrValidation, "User ID is required")
	}
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if violations := ValidatePassword(password); len(violations) > 0 {
		return NewError(ErrValidation, "Password does not meet requirements", violations...)
	}
	state, err := s.state(ctx, flow{kind: flowReset, email: user.Email}, user.ID)
	if err != nil {
		return upstream("load reset grant", err)
	}
	if state != stateVerified {
		return NewError(ErrExpired, "Password reset session expired. Please verify the OTP again")
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	if err := s.users.Update(ctx, user); err != nil {
		return upstream("update password", err)
	}
	s.clear(ctx, traceID, resetKey(user.ID), otpKey(user.Email))
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("password reset")
	return nil
}

func (s *authService) GoogleAuthURL(state string) string {
	return s.identity.AuthCodeURL(state)
}

// CompleteGoogleLogin stages the provider profile, mails a code and returns
// a verification token for the email. A session is only issued once the
// code is verified.
func (s *authService) CompleteGoogleLogin(ctx context.Context, traceID, code string) (*GoogleLogin, error) {
	if strings.TrimSpace(code) == "" {
		return nil, NewError(ErrUnauthorized, "Missing authorization code")
	}
	profile, err := s.identity.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError(ErrUnauthorized, "Google authentication failed", err)
	}
	email := normalizeEmail(profile.Email)
	if email == "" {
		return nil, NewError(ErrUnauthorized, "Google account has no email")
	}
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.HasPassword():
		return nil, NewError(ErrUnauthorized, "Password login required")
	case err != nil && !errors.Is(err, domain.ErrUserNotFound):
		return nil, upstream("lookup user", err)
	}
	profile.Email = email
	profile.Name = formatName(profile.Name)
	if profile.Name == "" {
		profile.Name = email
	}
	profile.CreatedAt = s.now().UTC()

	if err := s.putJSON(ctx, oauthKey(email), profile, s.cfg.PendingTTL); err != nil {
		return nil, upstream("stage oauth profile", err)
	}
	if err := s.sendCode(ctx, traceID, flow{kind: flowOAuth, email: email}, s.otpMail(email, profile.Name)); err != nil {
		return nil, err
	}
	token, err := s.tokens.MintVerification(email, s.cfg.VerificationTTL)
	if err != nil {
		return nil, upstream("mint verification token", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("email", email).Msg("oauth profile staged")
	return &GoogleLogin{Email: email, VerificationToken: token}, nil
}

func (s *authService) VerificationEmail(token string) (string, error) {
	return s.tokens.VerifyVerification(token)
}

// SessionUser resolves a session token to a live account.
func (s *authService) SessionUser(ctx context.Context, traceID, token string) (*domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, traceID, claims.UserID)
}

func (s *authService) GetUser(ctx context.Context, traceID, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(ErrValidation, "User ID is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", userID).Msg("session for deleted account")
		return nil, NewError(ErrNotFound, "Your account was deleted. Please register again.")
	}
	if err != nil {
		return nil, upstream("lookup user", err)
	}
	return user, nil
}

func (s *authService) UploadProfileImage(ctx context.Context, traceID, userID string, data []byte) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(ErrValidation, "User ID is required")
	}
	if len(data) == 0 {
		return nil, NewError(ErrValidation, "No file uploaded")
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, NewError(ErrValidation, "File too large. Maximum size is 2 MB")
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") {
		return nil, NewError(ErrValidation, "Only JPG and PNG images allowed")
	}
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ref, err := s.images.Save(ctx, user.ID, mt.String(), data)
	if err != nil {
		return nil, upstream("store image", err)
	}
	user.ProfilePic = ref
	if err := s.users.Update(ctx, user); err != nil {
		return nil, upstream("update profile image", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("content_type", mt.String()).Int("bytes", len(data)).Msg("profile image updated")
	return user, nil
}

func (s *authService) createFromProfile(ctx context.Context, traceID string, profile *domain.OAuthProfile) (*domain.User, error) {
	subject := profile.Subject
	user := &domain.User{
		Name:       profile.Name,
		Email:      profile.Email,
		GoogleID:   &subject,
		ProfilePic: profile.Picture,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, NewError(ErrConflict, "User already exists. Please login!")
		}
		return nil, upstream("create user", err)
	}
	s.announce(ctx, traceID, user, "google")
	return user, nil
}

func (s *authService) findByEmail(ctx context.Context, email, notFound string) (*domain.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, NewError(ErrNotFound, notFound)
	}
	if err != nil {
		return nil, upstream("lookup user", err)
	}
	return user, nil
}

func (s *authService) findByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, NewError(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, upstream("lookup user", err)
	}
	return user, nil
}

func (s *authService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", NewError(ErrValidation, "Password must be at most 72 bytes")
	}
	if err != nil {
		return "", upstream("hash password", err)
	}
	return string(hash), nil
}

func (s *authService) mintSession(user *domain.User, ttl time.Duration) (*Session, error) {
	session, err := s.tokens.Mint(user.ID, ttl)
	if err != nil {
		return nil, upstream("mint session", err)
	}
	return session, nil
}

func (s *authService) otpMail(email, name string) deliverFunc {
	return func(ctx context.Context, code string) error {
		return s.notifier.SendOTP(ctx, email, name, code)
	}
}

// clear deletes keys after the durable write they guarded. A failure here
// leaves stale entries that expire on their own.
func (s *authService) clear(ctx context.Context, traceID string, keys ...string) {
	if err := s.store.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Strs("keys", keys).Msg("ephemeral cleanup failed")
	}
}

func (s *authService) announce(ctx context.Context, traceID string, user *domain.User, source string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateUser(ctx, user.ID, user.Email, source, "signup"); err != nil {
		s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", user.ID).Msg("user created event failed")
	}
}
