package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/example/otp-auth-service/config"
	"github.com/example/otp-auth-service/internal/domain"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var errEmailNotVerified = errors.New("google email not verified")

// Provider runs the authorization-code flow against Google.
type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL(),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     googleoauth.Endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type userInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

func (p *Provider) Exchange(ctx context.Context, code string) (*domain.OAuthProfile, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if !info.EmailVerified {
		return nil, errEmailNotVerified
	}
	return &domain.OAuthProfile{
		Subject: info.Sub,
		Name:    info.Name,
		Email:   info.Email,
		Picture: info.Picture,
	}, nil
}
