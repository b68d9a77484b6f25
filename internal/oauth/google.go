// Package oauth contains the clients for third party identity providers
package oauth

import (
	"bitwise74/account-api/config"
	"bitwise74/account-api/internal/service"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type GoogleOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Overrides for testing, empty means Google's
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// Google exchanges authorization codes from the Google consent screen for
// the email address Google verified for that user
type Google struct {
	cfg         *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogle(opts GoogleOptions) *Google {
	endpoint := opts.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	userInfoURL := opts.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Google{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  client,
	}
}

// NewGoogleFromConfig returns nil when Google login isn't configured
func NewGoogleFromConfig(cfg config.GoogleConfig) *Google {
	if !cfg.Enabled() {
		return nil
	}

	return NewGoogle(GoogleOptions{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
	})
}

// AuthCodeURL is where the user gets sent to log in with Google
func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// VerifiedEmail implements service.IdentityProvider. An account whose email
// Google hasn't verified gives service.ErrInvalidCredentials.
func (g *Google) VerifiedEmail(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("no authorization code provided")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code, %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info, %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read user info, %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to decode user info, %w", err)
	}

	if info.Email == "" {
		return "", errors.New("user info has no email")
	}

	if !info.EmailVerified {
		return "", service.ErrInvalidCredentials
	}

	return info.Email, nil
}
