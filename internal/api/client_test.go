package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no token")
	}
	return string(s), nil
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithInitialBackoff(time.Millisecond)}, opts...)
	return NewClient(Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, staticToken("tok"), opts...)
}

func TestClient_GetSendsBearerToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/notifications/summary", r.URL.Path)
		_, _ = w.Write([]byte(`{"unreadCount": 3}`))
	}))

	var out struct {
		UnreadCount int `json:"unreadCount"`
	}
	require.NoError(t, c.Get(context.Background(), "/notifications/summary", &out))
	assert.Equal(t, 3, out.UnreadCount)
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"notificationIds": ["1"]}`, string(body), "body replayed on retry")
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Post(context.Background(), "/notifications/mark-read", map[string][]string{"notificationIds": {"1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := c.Get(context.Background(), "/notifications", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Run("401 is an auth error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		err := c.Get(context.Background(), "/notifications", nil)
		assert.True(t, IsAuthError(err))
	})

	t.Run("missing token is an auth error without a request", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL}, staticToken(""))
		err := c.Get(context.Background(), "/notifications", nil)
		assert.True(t, IsAuthError(err))
		assert.Zero(t, calls.Load())
	})

	t.Run("backend message is surfaced", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "Notificación no encontrada"}`))
		}))
		err := c.Delete(context.Background(), "/notifications", map[string][]string{"notificationIds": {"9"}}, nil)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Notificación no encontrada", apiErr.Message)
		assert.True(t, IsNotFound(err))
	})
}

func TestClient_CreateWidensTimeoutOnTransportFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"context": "SYSTEM"})
	}))
	defer srv.Close()

	c := NewClient(
		Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, CreateTimeout: 5 * time.Second},
		staticToken("tok"),
	)

	var out map[string]string
	require.NoError(t, c.Create(context.Background(), "/notification-preferences", map[string]string{"context": "SYSTEM"}, &out))
	assert.Equal(t, "SYSTEM", out["context"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CreateDoesNotRetryHTTPErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	err := c.Create(context.Background(), "/notification-preferences", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 5; i++ {
		require.Error(t, c.Get(context.Background(), "/notifications", nil))
	}
	err := c.Get(context.Background(), "/notifications", nil)
	require.Error(t, err)
	assert.Equal(t, int32(5), calls.Load(), "open breaker short-circuits the request")
}
