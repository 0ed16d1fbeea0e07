package turnstile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxResponseBytes caps how much of the siteverify response is read.
const maxResponseBytes = 64 << 10

// Client is the production Verifier. It makes exactly one POST per call and
// never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the siteverify URL (tests, self-hosted mocks).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout sets the per-call timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for endpoint diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a verifier that posts to the Cloudflare endpoint.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL verification calls are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Verify implements Verifier.
func (c *Client) Verify(ctx context.Context, secret, token, remoteIP string) (Result, error) {
	if token == "" {
		return Result{}, ErrMissingToken
	}
	if secret == "" {
		return Result{}, ErrMissingSecret
	}

	form := url.Values{
		"secret":   {secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, body)
		c.log.Warn("siteverify returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", c.endpoint))
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if !res.Valid() {
		c.log.Debug("siteverify rejected token", zap.Strings("error_codes", res.ErrorCodes))
		return res, rejected(res)
	}
	return res, nil
}

func rejected(res Result) error {
	if len(res.ErrorCodes) == 0 {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, strings.Join(res.ErrorCodes, ","))
}
