package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// apiVersionPrefix is the fixed versioned prefix all relative paths are
// resolved under.
const apiVersionPrefix = "/api/v1"

// APIError is a non-success response from the platform.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform responded %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("platform responded %d", e.Status)
}

// Client talks to the clinic platform API. It resolves relative paths against
// the configured base endpoint and injects a bearer token when the provider
// chain can supply one; an absent token is not an error and the request
// proceeds unauthenticated.
type Client struct {
	base       string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a platform client for the given base endpoint. tokens may
// be nil for anonymous access.
func NewClient(endpoint string, tokens TokenProvider, logger *slog.Logger) *Client {
	base := strings.TrimRight(endpoint, "/")
	// A base already carrying the version suffix would otherwise double it.
	base = strings.TrimSuffix(base, apiVersionPrefix)

	return &Client{
		base:       base,
		tokens:     tokens,
		httpClient: &http.Client{},
		logger:     logger.With(slog.String("module", "platform")),
	}
}

// resolve maps a relative path onto the versioned base endpoint. Absolute
// URLs pass through untouched.
func (c *Client) resolve(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base + apiVersionPrefix + path
}

// authorize sets the Authorization header when a token is resolvable. Token
// lookup failures are logged and the request stays unauthenticated.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("Token lookup failed, proceeding unauthenticated", slog.String("err", err.Error()))
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Get issues a GET against the resolved path and decodes the JSON response
// into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body against the resolved path and decodes
// the JSON response into out; out may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}
