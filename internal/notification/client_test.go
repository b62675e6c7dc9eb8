package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, credential.StaticTokenSource("tok")), nil)
}

func items(n int, from int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id": "%d", "priority": {"value": "NORMAL"}, "isRead": false}`, from+i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestGetNotifications_PagingAndFilters(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.Equal(t, "INCIDENTS", q.Get("context"))
		assert.Equal(t, "false", q.Get("isRead"))
		if q.Get("page") == "0" {
			_, _ = w.Write([]byte(`{"content": ` + items(3, 0) + `}`))
			return
		}
		_, _ = w.Write([]byte(items(1, 3)))
	}))

	ctx := context.Background()
	f := Filter{Context: model.ContextIncidents, UnreadOnly: true}

	first, err := c.GetNotifications(ctx, 0, 3, f)
	require.NoError(t, err)
	assert.Len(t, first.Items, 3)
	assert.True(t, first.HasMore, "a full page assumes more")

	second, err := c.GetNotifications(ctx, 1, 3, f)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
}

func TestGetNotifications_LabelledError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.GetNotifications(context.Background(), 0, 10, Filter{})
	require.Error(t, err)

	label, ok := IsLabelled(err)
	require.True(t, ok)
	assert.Equal(t, LabelLoad, label)
	assert.Equal(t, http.StatusInternalServerError, api.StatusCode(err))
}

func TestMarkMultipleAsRead(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/notifications/mark-read", r.URL.Path)

		var body struct {
			NotificationIDs []string `json:"notificationIds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"1", "2"}, body.NotificationIDs)
	}))

	require.NoError(t, c.MarkMultipleAsRead(context.Background(), nil))
	assert.Zero(t, calls.Load(), "empty list makes no call")

	require.NoError(t, c.MarkMultipleAsRead(context.Background(), []string{"1", "2"}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMarkAsRead_FailureIsLabelled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	err := c.MarkAsRead(context.Background(), "7")
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, LabelMarkRead, opErr.Label)
}

func TestMarkAllAsRead(t *testing.T) {
	t.Run("nothing unread makes no write", func(t *testing.T) {
		var writes atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				writes.Add(1)
			}
			_, _ = w.Write([]byte(`[]`))
		}))

		ids, err := c.MarkAllAsRead(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Zero(t, writes.Load())
	})

	t.Run("marks every fetched unread id in one call", func(t *testing.T) {
		var writes atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				assert.Equal(t, "1000", r.URL.Query().Get("size"))
				_, _ = w.Write([]byte(items(4, 10)))
				return
			}
			writes.Add(1)
		}))

		ids, err := c.MarkAllAsRead(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "11", "12", "13"}, ids)
		assert.Equal(t, int32(1), writes.Load())
	})
}

func TestCheckForNew(t *testing.T) {
	since := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2026-04-01T08:00:00Z", r.URL.Query().Get("since"))
			_, _ = w.Write([]byte(`{"hasNew": true, "count": 2, "notifications": ` + items(2, 0) + `}`))
		}))

		res := c.CheckForNew(context.Background(), since)
		assert.True(t, res.HasNew)
		assert.Equal(t, 2, res.Count)
		assert.Len(t, res.Notifications, 2)
	})

	t.Run("failure degrades to nothing new", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		res := c.CheckForNew(context.Background(), since)
		assert.False(t, res.HasNew)
		assert.Zero(t, res.Count)
		assert.NotNil(t, res.Notifications)
		assert.Empty(t, res.Notifications)
	})

	t.Run("garbage degrades too", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))

		res := c.CheckForNew(context.Background(), since)
		assert.False(t, res.HasNew)
	})
}

func TestGetSummaryAndStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications/summary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"unreadCount": 2, "byPriority": {"CRITICAL": 1, "LOW": 1}}}`))
	})
	mux.HandleFunc("/notifications/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalNotifications": 10, "unreadCount": 4, "byType": {"INCIDENT_CREATED": 3}}`))
	})
	c := newTestClient(t, mux)

	s, err := c.GetSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.UnreadCount)
	assert.True(t, s.HasCritical())

	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 4, stats.Unread)
	assert.Equal(t, 6, stats.Read)
	assert.Equal(t, 3, stats.ByType["INCIDENT_CREATED"])
}

func TestDeleteAndSearch(t *testing.T) {
	var deleted []string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /notifications", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NotificationIDs []string `json:"notificationIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		deleted = body.NotificationIDs
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /notifications/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "andamio", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(items(1, 0)))
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Delete(context.Background(), []string{"3"}))
	assert.Equal(t, []string{"3"}, deleted)

	page, err := c.Search(context.Background(), "andamio", 0, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}
