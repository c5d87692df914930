// Package sdk is a small HTTP client for the Code42 REST API covering file
// event search, saved searches, users and detection lists.
package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")
	ErrTooManyRequests = errors.New("too many requests")
	ErrServer          = errors.New("server error")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps the status code onto one of the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case e.StatusCode >= 500:
		return ErrServer
	case e.StatusCode >= 400:
		return ErrBadRequest
	}
	return nil
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config holds connection settings for a Client.
type Config struct {
	ServerURL       string
	Username        string
	Password        string
	IgnoreSSLErrors bool

	// Timeout bounds a single HTTP exchange. Zero means 60s.
	Timeout time.Duration
	// RequestsPerSecond caps the request rate. Zero disables limiting.
	RequestsPerSecond float64
	// MaxRetries is how often a 429, 5xx or transport failure is retried.
	MaxRetries uint64

	Logger *slog.Logger
}

// Client talks to a single Code42 server on behalf of one user.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *slog.Logger

	// initialInterval is the first retry delay; tests shorten it.
	initialInterval time.Duration

	mu     sync.Mutex
	token  string
	tenant string
}

// New creates a Client from cfg. A server URL without a scheme is assumed to
// be https.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.ServerURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IgnoreSSLErrors {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per profile
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:         base,
		username:        cfg.Username,
		password:        cfg.Password,
		httpClient:      &http.Client{Timeout: timeout, Transport: transport},
		limiter:         rate.NewLimiter(limit, 1),
		maxRetries:      cfg.MaxRetries,
		logger:          logger,
		initialInterval: 500 * time.Millisecond,
	}
}

// BaseURL returns the normalised server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type tokenResponse struct {
	Data struct {
		Token string `json:"v3_user_token"`
	} `json:"data"`
}

// authToken returns a cached session token, fetching one with basic auth on
// first use.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/c42api/v3/auth/jwt?useBody=true", nil)
	if err != nil {
		return "", fmt.Errorf("creating auth request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticating: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{Method: http.MethodGet, Path: "/c42api/v3/auth/jwt", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding auth response: %w", err)
	}
	if tr.Data.Token == "" {
		return "", fmt.Errorf("authenticating: %w: empty token", ErrUnauthorized)
	}
	c.token = tr.Data.Token
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Authenticate verifies the credentials by fetching a session token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.authToken(ctx)
	return err
}

// do sends a JSON request and decodes the JSON response into out. body may be
// nil, a []byte holding pre-encoded JSON, or any value to marshal. Throttling,
// server errors and transport failures are retried with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		if payload, err = json.Marshal(b); err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		token, err := c.authToken(ctx)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.retryable() {
				return err
			}
			return backoff.Permanent(err)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "v3_user_token "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("api request", "method", method, "path", path, "attempt", attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("api request failed", "path", path, "error", err)
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading %s response: %w", path, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode == http.StatusUnauthorized {
				c.resetToken()
			}
			if apiErr.retryable() {
				c.logger.Debug("retrying api request", "path", path, "status", resp.StatusCode)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx))
}

type tenantResponse struct {
	Data struct {
		TenantUID string `json:"tenantUid"`
	} `json:"data"`
}

// TenantID returns the tenant of the authenticated user, cached after the
// first call.
func (c *Client) TenantID(ctx context.Context) (string, error) {
	c.mu.Lock()
	tenant := c.tenant
	c.mu.Unlock()
	if tenant != "" {
		return tenant, nil
	}

	var tr tenantResponse
	if err := c.do(ctx, http.MethodGet, "/c42api/v3/customer/my", nil, &tr); err != nil {
		return "", fmt.Errorf("getting tenant: %w", err)
	}
	if tr.Data.TenantUID == "" {
		return "", errors.New("getting tenant: empty tenant id")
	}

	c.mu.Lock()
	c.tenant = tr.Data.TenantUID
	c.mu.Unlock()
	return tr.Data.TenantUID, nil
}
