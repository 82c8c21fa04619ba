package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/domain"
	"github.com/example/otp-auth-service/internal/usecase"
	pkglog "github.com/example/otp-auth-service/pkg/log"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memItem struct {
	value   []byte
	expires time.Time
}

// memStore honours TTLs against the test clock.
type memStore struct {
	clock *testClock
	items map[string]memItem
	ops   int
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{clock: clock, items: map[string]memItem{}}
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.ops++
	m.items[key] = memItem{value: append([]byte(nil), value...), expires: m.clock.Now().Add(ttl)}
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.ops++
	item, ok := m.items[key]
	if !ok || !m.clock.Now().Before(item.expires) {
		return nil, domain.ErrKeyNotFound
	}
	return item.value, nil
}

func (m *memStore) Delete(_ context.Context, keys ...string) error {
	m.ops++
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *memStore) has(key string) bool {
	item, ok := m.items[key]
	return ok && m.clock.Now().Before(item.expires)
}

type mockUserRepo struct {
	users map[string]*domain.User
	calls int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*domain.User{}}
}

func (r *mockUserRepo) Create(_ context.Context, user *domain.User) error {
	r.calls++
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.ProfilePic == "" {
		user.ProfilePic = domain.DefaultProfilePic
	}
	r.users[user.ID] = user
	return nil
}

func (r *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.calls++
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.calls++
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *mockUserRepo) Update(_ context.Context, user *domain.User) error {
	r.calls++
	r.users[user.ID] = user
	return nil
}

type sentMail struct {
	to   string
	name string
	code string
	link string
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendOTP(_ context.Context, to, name, code string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, name: name, code: code})
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, name, link, code string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, name: name, code: code, link: link})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

type stubIdentity struct {
	profile *domain.OAuthProfile
	err     error
}

func (s *stubIdentity) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (s *stubIdentity) Exchange(_ context.Context, code string) (*domain.OAuthProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if code != "good-code" {
		return nil, errors.New("oauth2: invalid_grant")
	}
	p := *s.profile
	return &p, nil
}

type memImages struct {
	saved map[string]string
}

func (m *memImages) Save(_ context.Context, userID, contentType string, data []byte) (string, error) {
	ref := fmt.Sprintf("mem://%s/%d.%s", userID, len(data), strings.TrimPrefix(contentType, "image/"))
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	m.saved[userID] = ref
	return ref, nil
}

type recordingEvents struct {
	calls []string
}

func (r *recordingEvents) CreateUser(_ context.Context, userID, email, source, typ string) error {
	r.calls = append(r.calls, strings.Join([]string{userID, email, source, typ}, "|"))
	return nil
}

type testDeps struct {
	cfg      *config.Config
	clock    *testClock
	store    *memStore
	users    *mockUserRepo
	mailer   *recordingMailer
	identity *stubIdentity
	images   *memImages
	events   *recordingEvents
	tokens   usecase.TokenIssuer
}

func newTestService(t *testing.T) (usecase.Service, *testDeps) {
	t.Helper()
	cfg := &config.Config{
		FrontendURL:        "http://localhost:3000",
		JWTSecret:          "test-secret",
		JWTIssuer:          "auth",
		JWTAudience:        "frontend",
		PasswordSessionTTL: 24 * time.Hour,
		OTPSessionTTL:      7 * 24 * time.Hour,
		VerificationTTL:    7 * 24 * time.Hour,
		OTPTTL:             5 * time.Minute,
		PendingTTL:         10 * time.Minute,
		ResetGrantTTL:      10 * time.Minute,
		BcryptCost:         bcrypt.MinCost,
		MaxImageBytes:      2 << 20,
	}
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := usecase.NewJWTIssuer(cfg, clock.Now)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	seq := 100000
	deps := &testDeps{
		cfg:    cfg,
		clock:  clock,
		store:  newMemStore(clock),
		users:  newMockUserRepo(),
		mailer: &recordingMailer{},
		identity: &stubIdentity{profile: &domain.OAuthProfile{
			Subject: "google-sub-1",
			Name:    "ada LOVELACE",
			Email:   "Ada@Example.com",
			Picture: "https://lh3.example.com/ada.png",
		}},
		images: &memImages{},
		events: &recordingEvents{},
		tokens: tokens,
	}
	svc := usecase.NewAuthService(usecase.Deps{
		Config:   cfg,
		Logger:   pkglog.Nop(),
		Users:    deps.users,
		Store:    deps.store,
		Notifier: deps.mailer,
		Tokens:   tokens,
		Identity: deps.identity,
		Images:   deps.images,
		Events:   deps.events,
		Now:      clock.Now,
		GenerateOTP: func() (string, error) {
			seq++
			return fmt.Sprintf("%06d", seq), nil
		},
	})
	return svc, deps
}

func (d *testDeps) addPasswordUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h := string(hash)
	user := &domain.User{Name: "Test User", Email: email, PasswordHash: &h}
	if err := d.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (d *testDeps) addGoogleUser(t *testing.T, email string) *domain.User {
	t.Helper()
	sub := "google-" + email
	user := &domain.User{Name: "Google User", Email: email, GoogleID: &sub}
	if err := d.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}
