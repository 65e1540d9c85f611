package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/threedeality/storefront-api/internal/resilience"
)

var (
	// ErrNotConfigured indicates the platform credentials are missing.
	ErrNotConfigured = errors.New("shiprocket: credentials not configured")
	// ErrLoginFailed wraps authentication failures so callers can tell them
	// apart from order-creation failures.
	ErrLoginFailed = errors.New("shiprocket: login failed")
)

// tokenTTL is how long a bearer token is reused before logging in again. The
// platform issues ten-day tokens; refreshing well before expiry avoids racing
// the boundary.
const tokenTTL = 8 * 24 * time.Hour

// Response is the raw platform answer, forwarded to the storefront verbatim.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client talks to the shipping platform's external API. Login yields a bearer
// token cached across calls; all requests go through the resilience wrapper.
type Client struct {
	BaseURL  string
	Email    string
	Password string
	HTTP     resilience.HTTPClient

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Ready reports whether the client holds credentials. Callers fail fast
// before any network traffic when not.
func (c *Client) Ready() bool {
	return c != nil && strings.TrimSpace(c.Email) != "" && strings.TrimSpace(c.Password) != ""
}

// Token returns a valid bearer token, logging in when the cached one is
// missing or stale.
func (c *Client) Token(ctx context.Context) (string, error) {
	if !c.Ready() {
		return "", ErrNotConfigured
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExpiry = time.Now().Add(tokenTTL)
	return token, nil
}

// InvalidateToken drops the cached token so the next call logs in again.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": c.Email, "password": c.Password})
	if err != nil {
		return "", err
	}
	resp, err := c.post(ctx, "/v1/external/auth/login", "", payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: status %d: %s", ErrLoginFailed, resp.Status, truncate(resp.Body, 256))
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: decode: %w", ErrLoginFailed, err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: no token in response", ErrLoginFailed)
	}
	return body.Token, nil
}

// CreateOrder submits an ad hoc order and returns the platform's raw answer.
// The payload is built by the shipping package; this client only handles
// transport and authentication.
func (c *Client) CreateOrder(ctx context.Context, payload any) (Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return Response{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("shiprocket: encode order: %w", err)
	}
	resp, err := c.post(ctx, "/v1/external/orders/create/adhoc", token, data)
	if err != nil {
		return Response{}, err
	}
	if resp.Status == http.StatusUnauthorized {
		// Token revoked out of band; one fresh login and retry.
		c.InvalidateToken()
		token, err = c.Token(ctx)
		if err != nil {
			return Response{}, err
		}
		return c.post(ctx, "/v1/external/orders/create/adhoc", token, data)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Body: data}, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
