package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/adapters/http/api/v1/handlers"
	"github.com/example/otp-auth-service/internal/domain"
	"github.com/example/otp-auth-service/internal/usecase"
	res "github.com/example/otp-auth-service/pkg/http"
	pkglog "github.com/example/otp-auth-service/pkg/log"
)

type mockAuthService struct {
	registerFn       func(in usecase.RegisterInput) error
	verifyRegisterFn func(email, otp string) (*domain.User, error)
	loginFn          func(email string) (*usecase.LoginResult, error)
	checkPasswordFn  func(email, password string) (*domain.User, *usecase.Session, error)
	verifyLoginFn    func(email, otp string) (*domain.User, *usecase.Session, error)
	sendOTPFn        func(email string) error
	verifyOTPFn      func(email, otp string) (*domain.User, *usecase.Session, error)
	forgotFn         func(email string) error
	verifyResetFn    func(email, otp string) (string, error)
	resetFn          func(userID, password, confirm string) error
	completeGoogleFn func(code string) (*usecase.GoogleLogin, error)
	verificationFn   func(token string) (string, error)
	sessionUserFn    func(token string) (*domain.User, error)
	getUserFn        func(userID string) (*domain.User, error)
	uploadFn         func(userID string, data []byte) (*domain.User, error)
}

func (m *mockAuthService) Register(_ context.Context, _ string, in usecase.RegisterInput) error {
	return m.registerFn(in)
}

func (m *mockAuthService) VerifyRegisterOTP(_ context.Context, _ string, email, otp string) (*domain.User, error) {
	return m.verifyRegisterFn(email, otp)
}

func (m *mockAuthService) Login(_ context.Context, _ string, email string) (*usecase.LoginResult, error) {
	return m.loginFn(email)
}

func (m *mockAuthService) CheckPassword(_ context.Context, _ string, email, password string) (*domain.User, *usecase.Session, error) {
	return m.checkPasswordFn(email, password)
}

func (m *mockAuthService) VerifyLoginOTP(_ context.Context, _ string, email, otp string) (*domain.User, *usecase.Session, error) {
	return m.verifyLoginFn(email, otp)
}

func (m *mockAuthService) SendOTP(_ context.Context, _ string, email string) error {
	return m.sendOTPFn(email)
}

func (m *mockAuthService) VerifyOTP(_ context.Context, _ string, email, otp string) (*domain.User, *usecase.Session, error) {
	return m.verifyOTPFn(email, otp)
}

func (m *mockAuthService) ForgotPassword(_ context.Context, _ string, email string) error {
	return m.forgotFn(email)
}

func (m *mockAuthService) VerifyResetPasswordOTP(_ context.Context, _ string, email, otp string) (string, error) {
	return m.verifyResetFn(email, otp)
}

func (m *mockAuthService) ResetPassword(_ context.Context, _ string, userID, password, confirm string) error {
	return m.resetFn(userID, password, confirm)
}

func (m *mockAuthService) GoogleAuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockAuthService) CompleteGoogleLogin(_ context.Context, _ string, code string) (*usecase.GoogleLogin, error) {
	return m.completeGoogleFn(code)
}

func (m *mockAuthService) VerificationEmail(token string) (string, error) {
	return m.verificationFn(token)
}

func (m *mockAuthService) SessionUser(_ context.Context, _ string, token string) (*domain.User, error) {
	return m.sessionUserFn(token)
}

func (m *mockAuthService) GetUser(_ context.Context, _ string, userID string) (*domain.User, error) {
	return m.getUserFn(userID)
}

func (m *mockAuthService) UploadProfileImage(_ context.Context, _ string, userID string, data []byte) (*domain.User, error) {
	return m.uploadFn(userID, data)
}

func testConfig(env string) *config.Config {
	return &config.Config{
		AppEnv:          env,
		FrontendURL:     "http://localhost:3000",
		VerificationTTL: 7 * 24 * time.Hour,
		MaxImageBytes:   2 << 20,
	}
}

func jsonContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) res.ErrorResponse {
	t.Helper()
	var body res.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestRegisterHandler(t *testing.T) {
	svc := &mockAuthService{registerFn: func(in usecase.RegisterInput) error {
		if in.Email != "jane@example.com" || in.Phone != "+15550100" {
			t.Fatalf("unexpected input: %+v", in)
		}
		return nil
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodPost, "/api/auth/register",
		`{"name":"Jane","email":"jane@example.com","password":"Str0ng!pass","phone":"+15550100"}`)

	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRegisterHandlerReturnsAllViolations(t *testing.T) {
	violations := []string{"Minimum 8 characters required", "At least 1 number required"}
	svc := &mockAuthService{registerFn: func(usecase.RegisterInput) error {
		return usecase.NewError(usecase.ErrValidation, "Password does not meet requirements", violations...)
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodPost, "/api/auth/register", `{"password":"x"}`)

	_ = h.Register(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "validation_error" || len(body.Errors) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestErrorKindStatuses(t *testing.T) {
	cases := []struct {
		kind   error
		status int
	}{
		{usecase.ErrValidation, http.StatusBadRequest},
		{usecase.ErrConflict, http.StatusBadRequest},
		{usecase.ErrInvalidCredentials, http.StatusBadRequest},
		{usecase.ErrExpired, http.StatusBadRequest},
		{usecase.ErrNotFound, http.StatusNotFound},
		{usecase.ErrUnauthorized, http.StatusUnauthorized},
		{usecase.ErrUnauthenticated, http.StatusForbidden},
	}
	for _, tc := range cases {
		svc := &mockAuthService{loginFn: func(string) (*usecase.LoginResult, error) {
			return nil, usecase.NewError(tc.kind, "nope")
		}}
		h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())
		c, rec := jsonContext(http.MethodPost, "/api/auth/login", `{"email":"a@example.com"}`)
		_ = h.Login(c)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.kind, tc.status, rec.Code)
		}
	}
}

func TestUpstreamErrorsDoNotLeak(t *testing.T) {
	svc := &mockAuthService{forgotFn: func(string) error {
		return fmt.Errorf("smtp: auth failed for mailer:hunter2: %w", usecase.ErrUpstream)
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodPost, "/api/auth/forgot-password", `{"email":"a@example.com"}`)

	_ = h.ForgotPassword(c)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestLoginHandlerBranches(t *testing.T) {
	svc := &mockAuthService{loginFn: func(email string) (*usecase.LoginResult, error) {
		if email == "pw@example.com" {
			return &usecase.LoginResult{RequiresPassword: true}, nil
		}
		return &usecase.LoginResult{RequiresOTP: true}, nil
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())

	c, rec := jsonContext(http.MethodPost, "/api/auth/login", `{"email":"pw@example.com"}`)
	_ = h.Login(c)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["requiresPassword"] != true || body["requiresOtp"] != nil {
		t.Fatalf("unexpected body: %v", body)
	}

	c, rec = jsonContext(http.MethodPost, "/api/auth/login", `{"email":"g@example.com"}`)
	_ = h.Login(c)
	body = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["requiresOtp"] != true || body["requiresPassword"] != nil {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCheckPasswordSetsSessionCookie(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour)
	svc := &mockAuthService{checkPasswordFn: func(string, string) (*domain.User, *usecase.Session, error) {
		return &domain.User{ID: "user-1"}, &usecase.Session{Token: "jwt-token", ExpiresAt: expires}, nil
	}}

	for _, env := range []string{"local", "production"} {
		h := handlers.NewAuthHandler(svc, testConfig(env), pkglog.Nop())
		c, rec := jsonContext(http.MethodPost, "/api/auth/checkpass", `{"email":"a@example.com","password":"x"}`)
		if err := h.CheckPassword(c); err != nil {
			t.Fatalf("checkpass: %v", err)
		}
		cookie := findCookie(rec, handlers.SessionCookie)
		if cookie == nil || cookie.Value != "jwt-token" || !cookie.HttpOnly || cookie.Path != "/" {
			t.Fatalf("%s: bad session cookie: %+v", env, cookie)
		}
		if env == "production" && (!cookie.Secure || cookie.SameSite != http.SameSiteNoneMode) {
			t.Fatalf("production cookie must be Secure and SameSite=None: %+v", cookie)
		}
		if env == "local" && (cookie.Secure || cookie.SameSite != http.SameSiteLaxMode) {
			t.Fatalf("local cookie must be Lax: %+v", cookie)
		}
	}
}

func TestVerifyOTPFallsBackToVerificationCookie(t *testing.T) {
	svc := &mockAuthService{
		verificationFn: func(token string) (string, error) {
			if token != "verify-token" {
				return "", usecase.NewError(usecase.ErrUnauthenticated, "missing")
			}
			return "ada@example.com", nil
		},
		verifyOTPFn: func(email, otp string) (*domain.User, *usecase.Session, error) {
			if email != "ada@example.com" || otp != "123456" {
				t.Fatalf("unexpected args %s %s", email, otp)
			}
			return &domain.User{ID: "user-1"}, &usecase.Session{Token: "jwt", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodPost, "/api/auth/verify-otp", `{"otp":"123456"}`)
	c.Request().AddCookie(&http.Cookie{Name: handlers.VerificationCookie, Value: "verify-token"})

	if err := h.VerifyOTP(c); err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if findCookie(rec, handlers.SessionCookie) == nil {
		t.Fatalf("session cookie not set")
	}
	if cleared := findCookie(rec, handlers.VerificationCookie); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("verification cookie not cleared: %+v", cleared)
	}

	c, rec = jsonContext(http.MethodPost, "/api/auth/verify-otp", `{"otp":"123456"}`)
	_ = h.VerifyOTP(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without email or cookie, got %d", rec.Code)
	}
}

func TestResetPasswordHandlerUsesPathParam(t *testing.T) {
	svc := &mockAuthService{resetFn: func(userID, password, confirm string) error {
		if userID != "user-1" {
			t.Fatalf("unexpected user id %q", userID)
		}
		if password != confirm {
			return usecase.NewError(usecase.ErrValidation, "Passwords do not match")
		}
		return nil
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())

	c, rec := jsonContext(http.MethodPost, "/api/auth/reset-password/user-1", `{"password":"A","confirmPassword":"B"}`)
	c.SetParamNames("userId")
	c.SetParamValues("user-1")
	_ = h.ResetPassword(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h := handlers.NewAuthHandler(&mockAuthService{}, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodPost, "/api/auth/logout", "")
	_ = h.Logout(c)
	cookie := findCookie(rec, handlers.SessionCookie)
	if rec.Code != http.StatusOK || cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %d %+v", rec.Code, cookie)
	}
}

func googleCallback(h *handlers.AuthHandler, state, cookieState, code string) *httptest.ResponseRecorder {
	e := echo.New()
	q := url.Values{"state": {state}, "code": {code}}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+q.Encode(), nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: cookieState})
	}
	rec := httptest.NewRecorder()
	_ = h.GoogleCallback(e.NewContext(req, rec))
	return rec
}

func TestGoogleLoginSetsStateAndRedirects(t *testing.T) {
	h := handlers.NewAuthHandler(&mockAuthService{}, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodGet, "/api/auth/google", "")
	_ = h.GoogleLogin(c)

	state := findCookie(rec, "oauth_state")
	if rec.Code != http.StatusFound || state == nil {
		t.Fatalf("expected redirect with state cookie, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); !strings.HasSuffix(loc, "state="+state.Value) {
		t.Fatalf("state not forwarded: %s", loc)
	}
}

func TestGoogleCallback(t *testing.T) {
	svc := &mockAuthService{completeGoogleFn: func(code string) (*usecase.GoogleLogin, error) {
		switch code {
		case "good":
			return &usecase.GoogleLogin{Email: "ada@example.com", VerificationToken: "verify-token"}, nil
		case "denied":
			return nil, usecase.NewError(usecase.ErrUnauthorized, "Google authentication failed")
		default:
			return nil, fmt.Errorf("redis down: %w", usecase.ErrUpstream)
		}
	}}
	h := handlers.NewAuthHandler(svc, testConfig("local"), pkglog.Nop())

	rec := googleCallback(h, "s1", "s1", "good")
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "http://localhost:3000/auth/verify-otp" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if cookie := findCookie(rec, handlers.VerificationCookie); cookie == nil || cookie.Value != "verify-token" {
		t.Fatalf("verification cookie not set: %+v", cookie)
	}

	rec = googleCallback(h, "s1", "other", "good")
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "http://localhost:3000/auth/login?error=GoogleAuthFailed" {
		t.Fatalf("state mismatch must fail: %s", loc)
	}

	rec = googleCallback(h, "s1", "s1", "denied")
	if loc := rec.Header().Get(echo.HeaderLocation); !strings.HasSuffix(loc, "error=GoogleAuthFailed") {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	rec = googleCallback(h, "s1", "s1", "boom")
	if loc := rec.Header().Get(echo.HeaderLocation); !strings.HasSuffix(loc, "error=ServerError") {
		t.Fatalf("unexpected redirect: %s", loc)
	}
}

func TestMeForDeletedAccount(t *testing.T) {
	svc := &mockAuthService{getUserFn: func(string) (*domain.User, error) {
		return nil, usecase.NewError(usecase.ErrNotFound, "Your account was deleted. Please register again.")
	}}
	h := handlers.NewUserHandler(svc, testConfig("local"), pkglog.Nop())
	c, rec := jsonContext(http.MethodGet, "/api/user/me", "")
	c.Set("user_id", "user-1")

	_ = h.Me(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["redirect"] != true {
		t.Fatalf("expected redirect flag: %v", body)
	}
}

func TestCheckUserExists(t *testing.T) {
	svc := &mockAuthService{sessionUserFn: func(token string) (*domain.User, error) {
		if token == "good" {
			return &domain.User{ID: "user-1"}, nil
		}
		return nil, errors.New("invalid")
	}}
	h := handlers.NewUserHandler(svc, testConfig("local"), pkglog.Nop())

	for token, want := range map[string]string{"good": `{"success":true}`, "bad": `{"success":false}`} {
		c, rec := jsonContext(http.MethodGet, "/api/checkUserExist", "")
		c.Request().AddCookie(&http.Cookie{Name: handlers.SessionCookie, Value: token})
		_ = h.CheckUserExists(c)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != want {
			t.Fatalf("token %s: got %d %s", token, rec.Code, rec.Body.String())
		}
	}
}

func TestFetchUserData(t *testing.T) {
	hash := "$2a$10$secret"
	svc := &mockAuthService{getUserFn: func(id string) (*domain.User, error) {
		switch id {
		case "":
			return nil, usecase.NewError(usecase.ErrValidation, "User ID is required")
		case "user-1":
			return &domain.User{ID: id, Email: "ada@example.com", PasswordHash: &hash}, nil
		default:
			return nil, usecase.NewError(usecase.ErrNotFound, "User not found")
		}
	}}
	h := handlers.NewUserHandler(svc, testConfig("local"), pkglog.Nop())

	cases := map[string]int{"": http.StatusBadRequest, "user-1": http.StatusOK, "ghost": http.StatusNotFound}
	for id, want := range cases {
		c, rec := jsonContext(http.MethodGet, "/api/fetchUserData?id="+url.QueryEscape(id), "")
		_ = h.FetchUserData(c)
		if rec.Code != want {
			t.Fatalf("id %q: expected %d, got %d", id, want, rec.Code)
		}
		if want == http.StatusOK && strings.Contains(rec.Body.String(), "secret") {
			t.Fatalf("password hash leaked: %s", rec.Body.String())
		}
	}
}

func TestUploadProfile(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	svc := &mockAuthService{uploadFn: func(userID string, data []byte) (*domain.User, error) {
		if userID != "user-1" || !bytes.Equal(data, png) {
			t.Fatalf("unexpected upload %s %d", userID, len(data))
		}
		return &domain.User{ID: userID, ProfilePic: "data:image/png;base64,..."}, nil
	}}
	h := handlers.NewUserHandler(svc, testConfig("local"), pkglog.Nop())

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("id", "user-1")
	part, _ := w.CreateFormFile("profile", "me.png")
	_, _ = part.Write(png)
	_ = w.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/upload-profile", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	if err := h.UploadProfile(e.NewContext(req, rec)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	c, rec := jsonContext(http.MethodPost, "/api/upload-profile", "{}")
	_ = h.UploadProfile(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", rec.Code)
	}
}
