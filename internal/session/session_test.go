package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/sound"
	"github.com/nhle/obranotify/internal/store"
	"github.com/nhle/obranotify/tests/testutil"
)

// hubConn is a scripted hub connection.
type hubConn struct {
	in     chan []byte
	closed chan struct{}
	once   gosync.Once

	mu      gosync.Mutex
	written []string
}

func newHubConn() *hubConn {
	c := &hubConn{in: make(chan []byte, 16), closed: make(chan struct{})}
	c.in <- []byte("{}\x1e")
	return c
}

func (c *hubConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *hubConn) WriteMessage(data []byte) error {
	var msg struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(data[:len(data)-1], &msg)
	c.mu.Lock()
	if msg.Target != "" {
		c.written = append(c.written, msg.Target)
	}
	c.mu.Unlock()
	return nil
}

func (c *hubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *hubConn) targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *hubConn) push(target string, payload string) {
	c.in <- []byte(`{"type":1,"target":"` + target + `","arguments":[` + payload + "]}\x1e")
}

// hubDialer hands out the scripted connection, replacing it once closed.
type hubDialer struct {
	mu    gosync.Mutex
	conn  *hubConn
	fail  atomic.Bool
	dials atomic.Int32
}

func (d *hubDialer) Dial(context.Context, string, string) (realtime.Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.conn.closed:
		d.conn = newHubConn()
	default:
	}
	return d.conn, nil
}

func (d *hubDialer) current() *hubConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

type countingPlayer struct {
	mu     gosync.Mutex
	played []sound.Category
}

func (p *countingPlayer) Play(_ context.Context, c sound.Category, _ float64) error {
	p.mu.Lock()
	p.played = append(p.played, c)
	p.mu.Unlock()
	return nil
}

func (p *countingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type backend struct {
	prefs        []model.Preference
	markReadCode atomic.Int32
	markReads    atomic.Int32
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notification-preferences", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(b.prefs)
	})
	mux.HandleFunc("GET /notifications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content": [{"id": "n1", "priority": "NORMAL", "context": "PROJECTS", "isRead": false}]}`)
	})
	mux.HandleFunc("GET /notifications/summary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"unreadCount": 1, "byContext": {"PROJECTS": 1}, "byPriority": {"NORMAL": 1},
			"recentNotifications": [{"id": "n1", "priority": "NORMAL", "context": "PROJECTS"}]}`)
	})
	mux.HandleFunc("GET /notifications/check-new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"hasNew": false, "count": 0, "notifications": []}`)
	})
	mux.HandleFunc("POST /notifications/mark-read", func(w http.ResponseWriter, r *http.Request) {
		b.markReads.Add(1)
		if code := b.markReadCode.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /notifications", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

type fixture struct {
	session *Session
	hub     *hubConn
	dialer  *hubDialer
	backend *backend
	store   *store.SQLiteStore
	player  *countingPlayer
}

func newFixture(t *testing.T, prefs []model.Preference, opts ...func(*model.AppConfig)) *fixture {
	t.Helper()

	b := &backend{prefs: prefs}
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "42",
		"role": "SUPERVISOR",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cfg := model.DefaultAppConfig()
	cfg.Server.BaseURL = srv.URL
	cfg.Realtime.PingIntervalSec = 3600
	for _, opt := range opts {
		opt(cfg)
	}

	hub := newHubConn()
	dialer := &hubDialer{conn: hub}
	player := &countingPlayer{}
	st := testutil.NewTestStore(t)

	s, err := New(Deps{
		Config: cfg,
		Tokens: credential.StaticTokenSource(tok),
		Store:  st,
		Dialer: dialer,
		Player: player,
		Beeper: sound.Beeper{Out: io.Discard},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return &fixture{session: s, hub: hub, dialer: dialer, backend: b, store: st, player: player}
}

// await returns the first update matching ok, skipping others.
func await(t *testing.T, s *Session, ok func(Update) bool) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, open := <-s.Updates():
			require.True(t, open, "updates closed")
			if ok(u) {
				return u
			}
		case <-timeout:
			t.Fatal("expected update never arrived")
			return Update{}
		}
	}
}

// next returns the next update of the given kind.
func next(t *testing.T, s *Session, kind UpdateKind) Update {
	t.Helper()
	return await(t, s, func(u Update) bool { return u.Kind == kind })
}

func TestStart_LoadsAndConnects(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx))
	assert.Equal(t, "42", f.session.Claims().UserID)
	assert.True(t, f.session.Preferences.Loaded())
	assert.Equal(t, 1, f.session.Summary.Snapshot().UnreadCount)
	assert.Equal(t, realtime.StateConnected, f.session.Transport.State())
	assert.Contains(t, f.hub.targets(), "JoinUserGroup")

	cached, err := f.session.Cached(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "n1", cached[0].ID)
}

func TestIncoming_PushAndPollMergeByID(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	require.NoError(t, f.session.Start(context.Background()))

	f.hub.push("ReceiveNotification", `{"id": "n2", "priority": "CRITICAL", "context": "INCIDENTS", "title": "Caída de andamio"}`)

	u := next(t, f.session, UpdateNotification)
	require.NotNil(t, u.Notification)
	assert.Equal(t, "n2", u.Notification.ID)
	assert.True(t, u.Decision.ShowInApp)
	assert.True(t, u.Decision.PlaySound)
	assert.True(t, u.Decision.SendEmailHint, "incidents default to email")
	assert.Equal(t, 2, u.Summary.UnreadCount)
	assert.Equal(t, 1, u.Summary.ByPriority[model.PriorityCritical])

	// The same item arriving again by push or by poll is not recounted.
	f.hub.push("NewNotification", `{"id": "n2", "priority": "CRITICAL", "context": "INCIDENTS"}`)
	f.session.HandleIncoming(model.Notification{ID: "n2", Priority: model.PriorityCritical}, SourcePoll)
	f.session.HandleIncoming(model.Notification{ID: "n1", Priority: model.PriorityNormal}, SourcePoll)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.session.Summary.Snapshot().UnreadCount)
	require.Eventually(t, func() bool { return f.player.count() == 1 }, time.Second, 5*time.Millisecond)

	cached, err := f.store.GetNotificationByID(context.Background(), "n2")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "42", cached.UserID)
}

func TestIncoming_FilteredByPreferences(t *testing.T) {
	prefs := model.DefaultPreferences("42")
	for i := range prefs {
		if prefs[i].Context == model.ContextMaterials {
			prefs[i].MinimumPriority = model.PriorityHigh
		}
	}
	f := newFixture(t, prefs)
	require.NoError(t, f.session.Start(context.Background()))

	f.session.HandleIncoming(model.Notification{
		ID: "m1", Context: model.ContextMaterials, Priority: model.PriorityNormal,
	}, SourcePush)

	u := await(t, f.session, func(u Update) bool {
		return u.Kind == UpdateSummary && u.Summary.UnreadCount == 2
	})
	assert.Equal(t, 1, u.Summary.ByContext[model.ContextMaterials], "hidden items still count as unread")
	assert.Zero(t, f.player.count())
}

func TestMarkAsRead_ConfirmedFirst(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	f.backend.markReadCode.Store(http.StatusInternalServerError)
	err := f.session.MarkAsRead(ctx, "n1")
	require.Error(t, err)

	cached, err := f.store.GetNotificationByID(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, cached.IsRead, "failed write leaves the cache untouched")
	assert.Equal(t, 1, f.session.Summary.Snapshot().UnreadCount)
	assert.NotContains(t, f.hub.targets(), "MarkNotificationAsRead")

	f.backend.markReadCode.Store(0)
	require.NoError(t, f.session.MarkAsRead(ctx, "n1"))

	u := next(t, f.session, UpdateRead)
	assert.Equal(t, []string{"n1"}, u.IDs)
	assert.Zero(t, u.Summary.UnreadCount)

	cached, err = f.store.GetNotificationByID(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, cached.IsRead)
	assert.Contains(t, f.hub.targets(), "MarkNotificationAsRead")
}

func TestRemoteRead(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	require.NoError(t, f.session.Start(context.Background()))

	f.hub.push("NotificationRead", `"n1"`)
	u := next(t, f.session, UpdateRead)
	assert.Zero(t, u.Summary.UnreadCount)

	// Echo of the same read does not decrement again.
	f.hub.push("NotificationMarkedAsRead", `{"notificationId": "n1"}`)
	next(t, f.session, UpdateRead)
	assert.Zero(t, f.session.Summary.Snapshot().UnreadCount)
}

func TestClose(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	require.NoError(t, f.session.Close(ctx))
	require.NoError(t, f.session.Close(ctx))

	assert.Equal(t, realtime.StateDisconnected, f.session.Transport.State())
	assert.Zero(t, f.session.Transport.ListenerCount())
	assert.False(t, f.session.Preferences.Loaded())
	assert.Zero(t, f.session.Summary.Snapshot().UnreadCount)
	assert.Contains(t, f.hub.targets(), "LeaveUserGroup")

	// Late arrivals are ignored.
	f.session.HandleIncoming(model.Notification{ID: "late"}, SourcePoll)
	late, err := f.store.GetNotificationByID(ctx, "late")
	require.NoError(t, err)
	assert.Nil(t, late)

	for range f.session.Updates() {
	}
}

func TestLogout_ClearsCache(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	require.NoError(t, f.session.Logout(ctx))

	left, err := f.store.GetNotifications(ctx, store.NotificationFilter{UserID: "42"})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStart_RequiresSession(t *testing.T) {
	s, err := New(Deps{
		Config: model.DefaultAppConfig(),
		Tokens: credential.StaticTokenSource(""),
		Store:  testutil.NewTestStore(t),
	})
	require.NoError(t, err)
	defer s.Close(context.Background())

	err = s.Start(context.Background())
	assert.ErrorIs(t, err, credential.ErrNoSession)
}

func TestReconnect_AfterGiveUp(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"), func(cfg *model.AppConfig) {
		cfg.Realtime.FastAttempts = 1
		cfg.Realtime.MaxAttempts = 1
		cfg.Realtime.FastDelayMs = 1
	})
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	require.Equal(t, realtime.StateConnected, f.session.Transport.State())

	f.dialer.fail.Store(true)
	f.hub.Close()
	next(t, f.session, UpdateGaveUp)
	assert.Equal(t, realtime.StateDisconnected, f.session.Transport.State())

	// Polling alone does not bring the hub back.
	dials := f.dialer.dials.Load()
	_ = f.session.RefreshNow()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dials, f.dialer.dials.Load())

	f.dialer.fail.Store(false)
	require.NoError(t, f.session.Reconnect(ctx))
	assert.Equal(t, realtime.StateConnected, f.session.Transport.State())
	await(t, f.session, func(u Update) bool {
		return u.Kind == UpdateConnection && u.State == realtime.StateConnected
	})

	fresh := f.dialer.current()
	require.NotSame(t, f.hub, fresh)
	assert.Equal(t, "JoinUserGroup", fresh.targets()[0], "user group joined before anything else")
}

func TestReconnect_ReportsInvalidSession(t *testing.T) {
	s, err := New(Deps{
		Config: model.DefaultAppConfig(),
		Tokens: credential.StaticTokenSource(""),
		Store:  testutil.NewTestStore(t),
		Dialer: &hubDialer{conn: newHubConn()},
	})
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.ErrorIs(t, s.Reconnect(context.Background()), credential.ErrNoSession)
}

func TestReconnect_ClosedSession(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	require.NoError(t, f.session.Close(context.Background()))
	assert.Error(t, f.session.Reconnect(context.Background()))
}

func TestFollowProject(t *testing.T) {
	f := newFixture(t, model.DefaultPreferences("42"))
	require.NoError(t, f.session.Start(context.Background()))

	f.session.FollowProject("p1")
	f.session.FollowProject("p1")
	f.session.FollowProject("p2")
	f.session.FollowProject("")

	var groups []string
	for _, target := range f.hub.targets() {
		if target == "JoinProjectGroup" || target == "LeaveProjectGroup" {
			groups = append(groups, target)
		}
	}
	assert.Equal(t, []string{
		"JoinProjectGroup",
		"LeaveProjectGroup",
		"JoinProjectGroup",
		"LeaveProjectGroup",
	}, groups)
}
