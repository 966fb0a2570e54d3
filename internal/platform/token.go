package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// TokenProvider supplies the bearer token for platform requests. Returning an
// empty token without error means the caller should proceed unauthenticated.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to the TokenProvider interface.
type TokenProviderFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns a provider that always yields the given token.
func StaticToken(token string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// ChainTokenProvider tries each provider in order and returns the first
// non-empty token. Provider errors are swallowed so a failing session store
// falls through to the persisted local token.
type ChainTokenProvider []TokenProvider

// Token implements TokenProvider.
func (c ChainTokenProvider) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		token, err := p.Token(ctx)
		if err != nil {
			continue
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}

// SessionTokenProvider exchanges a long-lived refresh token for a short-lived
// access token at the platform's session endpoint and caches it until just
// before expiry.
type SessionTokenProvider struct {
	sessionURL   string
	refreshToken string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewSessionTokenProvider creates a provider against the given session
// endpoint URL.
func NewSessionTokenProvider(sessionURL, refreshToken string) *SessionTokenProvider {
	return &SessionTokenProvider{
		sessionURL:   sessionURL,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token implements TokenProvider.
func (s *SessionTokenProvider) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sessionURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.refreshToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refreshing session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("session endpoint responded %d: %s", resp.StatusCode, string(body))
	}

	var session struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}

	s.accessToken = session.AccessToken
	if session.ExpiresIn > 0 {
		// Refresh a little early so requests never carry a token that
		// expires mid-flight.
		s.expiresAt = time.Now().Add(time.Duration(session.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		s.expiresAt = time.Now().Add(5 * time.Minute)
	}

	return s.accessToken, nil
}
