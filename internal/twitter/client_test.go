package twitter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPClient() *http.Client {
	return NewHTTPClient(5*time.Second, WithMaxRetries(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))
}

func TestAPIErrorFormats(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		title  string
		detail string
	}{
		{"problem", 429, `{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`, "Too Many Requests", "Too Many Requests"},
		{"v1 errors", 401, `{"errors":[{"code":32,"message":"Could not authenticate you."}]}`, "Could not authenticate you.", ""},
		{"plain text", 503, "upstream unavailable\n", "", "upstream unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			err := decodeError(resp)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode())
			assert.Equal(t, tt.title, apiErr.Title)
			assert.Equal(t, tt.detail, apiErr.Detail)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	retry, err := RetryPolicy(ctx, &http.Response{StatusCode: http.StatusTooManyRequests}, nil)
	require.NoError(t, err)
	assert.False(t, retry)

	retry, _ = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	assert.True(t, retry)

	retry, _ = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusOK}, nil)
	assert.False(t, retry)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := doJSON(context.Background(), testHTTPClient(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientSurfacesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"title":"Too Many Requests"}`))
	}))
	defer srv.Close()

	err := doJSON(context.Background(), testHTTPClient(), http.MethodGet, srv.URL, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode())
	assert.Equal(t, int32(1), calls.Load())
}

func TestAppClientBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client, err := AppClient(context.Background(), testHTTPClient(), Credentials{BearerToken: "tok"}, srv.URL)
	require.NoError(t, err)
	require.NoError(t, doJSON(context.Background(), client, http.MethodGet, srv.URL+"/x", nil, nil))
	assert.Equal(t, "Bearer tok", auth)
}

func TestAppClientClientCredentials(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "key" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token_type":"bearer","access_token":"minted"}`))
			return
		}
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	creds := Credentials{APIKey: "key", APIKeySecret: "secret"}
	client, err := AppClient(context.Background(), testHTTPClient(), creds, srv.URL)
	require.NoError(t, err)
	require.NoError(t, doJSON(context.Background(), client, http.MethodGet, srv.URL+"/x", nil, nil))
	assert.Equal(t, "Bearer minted", auth)
}

func TestAppClientRequiresCredentials(t *testing.T) {
	_, err := AppClient(context.Background(), testHTTPClient(), Credentials{APIKey: "key"}, DefaultAPIBaseURL)
	assert.Error(t, err)
}

func TestUserClientSigns(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	creds := Credentials{APIKey: "key", APIKeySecret: "secret", AccessToken: "at", AccessTokenSecret: "ats"}
	client, err := UserClient(context.Background(), 5*time.Second, creds)
	require.NoError(t, err)
	require.NoError(t, doJSON(context.Background(), client, http.MethodGet, srv.URL+"/x", nil, nil))

	assert.True(t, strings.HasPrefix(auth, "OAuth "), auth)
	assert.Contains(t, auth, `oauth_consumer_key="key"`)
	assert.Contains(t, auth, `oauth_token="at"`)

	_, err = UserClient(context.Background(), 5*time.Second, Credentials{APIKey: "key"})
	assert.Error(t, err)
}

func TestUserClientResignsRetries(t *testing.T) {
	nonceRe := regexp.MustCompile(`oauth_nonce="([^"]+)"`)
	var mu sync.Mutex
	var nonces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"text":"hi"}`, string(body))

		mu.Lock()
		defer mu.Unlock()
		if m := nonceRe.FindStringSubmatch(r.Header.Get("Authorization")); len(m) == 2 {
			nonces = append(nonces, m[1])
		}
		if len(nonces) <= 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	creds := Credentials{APIKey: "key", APIKeySecret: "secret", AccessToken: "at", AccessTokenSecret: "ats"}
	client, err := UserClient(context.Background(), 5*time.Second, creds,
		WithMaxRetries(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	in := map[string]string{"text": "hi"}
	require.NoError(t, doJSON(context.Background(), client, http.MethodPost, srv.URL+"/2/tweets", in, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, nonces, 2)
	assert.NotEqual(t, nonces[0], nonces[1], "retry reused the signed nonce")
}

func TestCredentialContexts(t *testing.T) {
	assert.True(t, Credentials{BearerToken: "b"}.HasAppContext())
	assert.True(t, Credentials{APIKey: "k", APIKeySecret: "s"}.HasAppContext())
	assert.False(t, Credentials{APIKey: "k"}.HasAppContext())
	assert.False(t, Credentials{APIKey: "k", APIKeySecret: "s"}.HasUserContext())
}
