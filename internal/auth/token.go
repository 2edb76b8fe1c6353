package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource yields a bearer credential valid for at least the next call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// expirySlack is subtracted from the advertised lifetime so a token is never
// handed out moments before it expires server-side.
const expirySlack = 2 * time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// RefreshTokenSource exchanges a long-lived OAuth refresh token for access
// tokens, caching each one until shortly before expiry.
type RefreshTokenSource struct {
	mu           sync.Mutex
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string

	accessToken string
	expiresAt   time.Time
}

// Option tweaks a RefreshTokenSource.
type Option func(*RefreshTokenSource)

// WithTokenURL overrides the token endpoint, mainly for tests.
func WithTokenURL(u string) Option {
	return func(s *RefreshTokenSource) { s.tokenURL = u }
}

// NewRefreshTokenSource creates a token source for the Google OAuth endpoint.
func NewRefreshTokenSource(clientID, clientSecret, refreshToken string, opts ...Option) *RefreshTokenSource {
	s := &RefreshTokenSource{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		tokenURL:     "https://oauth2.googleapis.com/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the cached access token, refreshing it when expired.
func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	token, expiresIn, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}

	s.accessToken = token
	s.expiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
	return s.accessToken, nil
}

// refresh performs the refresh_token grant per RFC 6749.
func (s *RefreshTokenSource) refresh(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("refresh_token", s.refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}

	if parsed.AccessToken == "" {
		return "", 0, fmt.Errorf("token response carried no access_token")
	}

	return parsed.AccessToken, parsed.ExpiresIn, nil
}

// Static is a fixed-token source for tests and local runs.
type Static string

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("static token is empty")
	}
	return string(s), nil
}
