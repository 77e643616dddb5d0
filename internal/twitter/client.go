// Package twitter implements the mention feed and the reply publisher
// against the Twitter HTTP APIs.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAPIBaseURL    = "https://api.twitter.com"
	DefaultUploadBaseURL = "https://upload.twitter.com"
)

// Credentials holds the application and account secrets.
type Credentials struct {
	APIKey            string
	APIKeySecret      string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

// HasUserContext reports whether the credentials can act as the account.
func (c Credentials) HasUserContext() bool {
	return c.APIKey != "" && c.APIKeySecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// HasAppContext reports whether app-only requests can be authenticated.
func (c Credentials) HasAppContext() bool {
	return c.BearerToken != "" || (c.APIKey != "" && c.APIKeySecret != "")
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("twitter api %d: %s", e.Status, msg)
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int {
	return e.Status
}

// errorBody covers both the v2 problem format and the v1.1 errors array.
type errorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	} `json:"errors"`
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		apiErr.Title = body.Title
		apiErr.Detail = body.Detail
		if apiErr.Title == "" && len(body.Errors) > 0 {
			first := body.Errors[0]
			apiErr.Title = first.Title
			apiErr.Detail = first.Detail
			if first.Message != "" {
				apiErr.Title = first.Message
			}
		}
	}
	if apiErr.Title == "" && apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}

type leveledSlog struct {
	inner *slog.Logger
}

// Error is reported at warn level because the request is usually retried.
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

// RetryPolicy retries connection errors and 5xx responses but never 429, so
// rate limiting reaches the caller and the stream backoff.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// HTTPOption configures NewHTTPClient.
type HTTPOption func(*retryablehttp.Client)

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait bounds the wait between retries.
func WithRetryWait(min, max time.Duration) HTTPOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

// WithLogger routes retry logging to logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	}
}

// NewHTTPClient returns a standard client with retry logic behind it. Once
// retries run out the last response is returned as is. A zero timeout leaves
// the client usable for long-lived streams.
func NewHTTPClient(timeout time.Duration, opts ...HTTPOption) *http.Client {
	return newRetryingClient(nil, timeout, opts...)
}

// newRetryingClient sends every attempt through inner, or a pooled client
// when inner is nil.
func newRetryingClient(inner *http.Client, timeout time.Duration, opts ...HTTPOption) *http.Client {
	rc := retryablehttp.NewClient()
	if inner != nil {
		rc.HTTPClient = inner
	}
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("component", "twitter-http")})
	rc.CheckRetry = RetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(rc)
	}

	client := rc.StandardClient()
	client.Timeout = timeout
	return client
}

// AppClient wraps base with app-only authentication. A configured bearer
// token is used as is; otherwise one is fetched with the client-credentials
// grant.
func AppClient(ctx context.Context, base *http.Client, creds Credentials, apiBaseURL string) (*http.Client, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	if creds.BearerToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.BearerToken, TokenType: "Bearer"})
		return withTimeout(oauth2.NewClient(ctx, src), base), nil
	}
	if creds.APIKey == "" || creds.APIKeySecret == "" {
		return nil, fmt.Errorf("app credentials: bearer token or api key and secret required")
	}
	cc := &clientcredentials.Config{
		ClientID:     creds.APIKey,
		ClientSecret: creds.APIKeySecret,
		TokenURL:     strings.TrimRight(apiBaseURL, "/") + "/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return withTimeout(cc.Client(ctx), base), nil
}

// UserClient returns a retrying client that signs requests with OAuth 1.0a
// for the account in creds. Signing sits beneath the retries, so every
// attempt carries a fresh nonce and timestamp.
func UserClient(ctx context.Context, timeout time.Duration, creds Credentials, opts ...HTTPOption) (*http.Client, error) {
	if !creds.HasUserContext() {
		return nil, fmt.Errorf("user credentials: api key, api key secret, access token and access token secret required")
	}
	ctx = context.WithValue(ctx, oauth1.HTTPClient, cleanhttp.DefaultPooledClient())
	cfg := oauth1.NewConfig(creds.APIKey, creds.APIKeySecret)
	signer := cfg.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	return newRetryingClient(signer, timeout, opts...), nil
}

// withTimeout carries the base client's timeout over to the auth wrapper,
// which only inherits its transport.
func withTimeout(c, base *http.Client) *http.Client {
	c.Timeout = base.Timeout
	return c
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// doJSON sends in as the JSON body (when non-nil) and decodes a 2xx response
// into out (when non-nil).
func doJSON(ctx context.Context, client *http.Client, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
