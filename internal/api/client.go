package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TokenSource yields the bearer token of the active session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config controls a Client.
type Config struct {
	// BaseURL is the REST root (e.g., https://obra.example.com/api).
	BaseURL string

	// Timeout bounds every request.
	Timeout time.Duration

	// CreateTimeout is the widened budget of the create path's second tier.
	CreateTimeout time.Duration

	// MaxRetries bounds the number of retries on HTTP 429.
	MaxRetries int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default-tier HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for retries and fallback tiers.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithInitialBackoff sets the first 429 wait used when the backend sends
// no Retry-After header.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) { c.initialBackoff = d }
}

// Client is a thin JSON client for the platform REST API. It handles Bearer
// token authentication, retry on HTTP 429, a circuit breaker over
// server-side failures, and the create path's extended-timeout tier.
type Client struct {
	baseURL        string
	tokens         TokenSource
	httpClient     *http.Client
	createClient   *http.Client
	breaker        *gobreaker.CircuitBreaker
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
}

// NewClient creates a new REST client.
func NewClient(cfg Config, tokens TokenSource, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CreateTimeout < cfg.Timeout {
		cfg.CreateTimeout = 3 * cfg.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		tokens:         tokens,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// The create tier shares the transport of the default tier so tests
	// that inject an httptest client reach the same server.
	c.createClient = &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   cfg.CreateTimeout,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "obra-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport failures and 5xx responses count against the
			// backend; client errors are the caller's problem.
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			code := StatusCode(err)
			return code != 0 && code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// BaseURL returns the REST root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, c.httpClient, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, c.httpClient, http.MethodPost, path, body, result)
}

// Put performs an HTTP PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, c.httpClient, http.MethodPut, path, body, result)
}

// Delete performs an HTTP DELETE request. The body may be nil.
func (c *Client) Delete(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, c.httpClient, http.MethodDelete, path, body, result)
}

// Create performs a POST and, when the first attempt fails at the transport
// level (timeout, connection reset), retries once on a client with the
// widened CreateTimeout budget. HTTP error responses are never retried here.
func (c *Client) Create(ctx context.Context, path string, body, result interface{}) error {
	err := c.do(ctx, c.httpClient, http.MethodPost, path, body, result)
	if !isTransient(err) {
		return err
	}

	c.logger.Warn("create failed, retrying with extended timeout",
		zap.String("path", path),
		zap.Duration("timeout", c.createClient.Timeout),
		zap.Error(err),
	)
	return c.do(ctx, c.createClient, http.MethodPost, path, body, result)
}

// WithQuery appends encoded query parameters to path.
func WithQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// do is the core HTTP method that resolves the token, builds the request,
// handles rate limiting with backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	hc *http.Client,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &AuthError{Message: "no valid session token", Err: err}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	policy := &retryAfter{
		next: backoff.WithMaxRetries(c.newExponential(), uint64(c.maxRetries)),
		hint: -1,
	}

	var respBody []byte
	var status int
	operation := func() error {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.attempt(ctx, hc, method, path, token, payload)
		})
		if err != nil {
			var rl *rateLimitError
			if errors.As(err, &rl) {
				policy.hint = rl.retryAfter
				c.logger.Debug("rate limited",
					zap.String("method", method),
					zap.String("path", path),
					zap.Duration("retry_after", rl.retryAfter),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		resp := out.(response)
		respBody, status = resp.body, resp.status
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		var rl *rateLimitError
		if errors.As(err, &rl) {
			return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, rl.apiErr)
		}
		return err
	}

	// No content to parse (e.g. 204).
	if result == nil || status == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}
	return nil
}

type response struct {
	status int
	body   []byte
}

// attempt performs a single round trip and maps the status code.
func (c *Client) attempt(
	ctx context.Context,
	hc *http.Client,
	method, path, token string,
	payload []byte,
) (response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return response{}, fmt.Errorf("reading response body: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return response{}, &rateLimitError{
			retryAfter: retryAfterHeader(resp),
			apiErr:     newAPIError(resp.StatusCode, method, path, respBody),
		}
	case resp.StatusCode == http.StatusUnauthorized:
		return response{}, &AuthError{
			Message: fmt.Sprintf("rejected by %s (401)", c.baseURL),
			Err:     newAPIError(resp.StatusCode, method, path, respBody),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return response{}, newAPIError(resp.StatusCode, method, path, respBody)
	}

	return response{status: resp.StatusCode, body: respBody}, nil
}

func (c *Client) newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func newAPIError(status int, method, path string, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Message != "":
			msg = envelope.Message
		case envelope.Error != "":
			msg = envelope.Error
		}
	}
	return &APIError{StatusCode: status, Method: method, Path: path, Message: msg}
}

// rateLimitError is the retryable form of a 429.
type rateLimitError struct {
	retryAfter time.Duration
	apiErr     *APIError
}

func (e *rateLimitError) Error() string { return e.apiErr.Error() }

// The breaker must see a 4xx so it does not count a 429 as a failure.
func (e *rateLimitError) Unwrap() error { return e.apiErr }

// retryAfter is a backoff.BackOff that honours the Retry-After header of
// the last 429 before falling back to the exponential schedule.
type retryAfter struct {
	next backoff.BackOff
	hint time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	d := r.next.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	if r.hint >= 0 {
		d = r.hint
		r.hint = -1
	}
	return d
}

func (r *retryAfter) Reset() {
	r.next.Reset()
	r.hint = -1
}

// retryAfterHeader reads the Retry-After header in seconds, or -1.
func retryAfterHeader(resp *http.Response) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return -1
}
