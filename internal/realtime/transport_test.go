package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/credential"
)

var errClosed = errors.New("closed")

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []hubMessage
}

func newFakeConn() *fakeConn {
	c := &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
	c.in <- []byte("{}\x1e")
	return c
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	msgs, _ := decodeMessages(data)
	c.mu.Lock()
	c.written = append(c.written, msgs...)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(target string, arg string) {
	c.in <- []byte(`{"type":1,"target":"` + target + `","arguments":[` + arg + "]}\x1e")
}

// calls returns the hub method invocations written so far, as
// "Method(args)" strings.
func (c *fakeConn) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, m := range c.written {
		if m.Type != msgInvocation {
			continue
		}
		args := make([]string, 0, len(m.Arguments))
		for _, a := range m.Arguments {
			args = append(args, string(a))
		}
		out = append(out, m.Target+"("+strings.Join(args, ",")+")")
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  atomic.Bool
	dials atomic.Int32
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, _, token string) (Conn, error) {
	d.dials.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func testToken(t *testing.T) credential.StaticTokenSource {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "42",
		"role":   "MANAGER",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return credential.StaticTokenSource(tok)
}

func fastPolicy(max int) ReconnectPolicy {
	return ReconnectPolicy{
		FastAttempts:   1,
		MediumAttempts: 1,
		MaxAttempts:    max,
		FastDelay:      time.Millisecond,
		MediumDelay:    2 * time.Millisecond,
		SlowDelay:      3 * time.Millisecond,
	}
}

func newTestTransport(t *testing.T, d *fakeDialer, policy ReconnectPolicy) *Transport {
	t.Helper()
	tr := NewTransport(Config{URL: "ws://hub", Policy: policy, PingInterval: -1}, d, testToken(t), nil)
	t.Cleanup(func() { _ = tr.Disconnect(context.Background()) })
	return tr
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestInitialize_CoalescesConcurrentCalls(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	tr := newTestTransport(t, d, fastPolicy(3))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.Initialize(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, StateConnected, tr.State())
	assert.Equal(t, []string{`JoinUserGroup("42")`}, d.last().calls())
}

func TestInitialize_RequiresSession(t *testing.T) {
	d := &fakeDialer{}
	tr := NewTransport(Config{URL: "ws://hub", PingInterval: -1}, d, credential.StaticTokenSource(""), nil)

	err := tr.Initialize(context.Background())
	assert.True(t, errors.Is(err, credential.ErrNoSession))
	assert.Zero(t, d.dials.Load())
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestInitialize_DialFailure(t *testing.T) {
	d := &fakeDialer{}
	d.fail.Store(true)
	tr := newTestTransport(t, d, fastPolicy(3))

	rec := &recorder{}
	tr.On(EventStateChanged, rec.handle)

	require.Error(t, tr.Initialize(context.Background()))
	assert.Equal(t, StateDisconnected, tr.State())

	evs := rec.all()
	require.Len(t, evs, 2)
	assert.Equal(t, StateConnecting, evs[0].State)
	assert.Equal(t, StateDisconnected, evs[1].State)
}

func TestInboundEvents(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(3))

	news := &recorder{}
	counts := &recorder{}
	reads := &recorder{}
	tr.On(EventNewNotification, func(Event) { panic("bad listener") })
	tr.On(EventNewNotification, news.handle)
	tr.On(EventUnreadCount, counts.handle)
	tr.On(EventNotificationRead, reads.handle)

	require.NoError(t, tr.Initialize(context.Background()))
	conn := d.last()

	conn.push("ReceiveNotification", `{"id": 1, "title": "Incidente", "priority": "CRITICAL", "context": "INCIDENTS"}`)
	conn.push("NewNotification", `{"id": 2, "priority": {"value": "LOW"}}`)
	conn.push("notificationReceived", `{"data": {"id": 3}}`)
	conn.push("UnreadCountUpdated", `7`)
	conn.push("NotificationMarkedAsRead", `{"notificationId": 2}`)
	conn.push("Unknown", `1`)

	require.Eventually(t, func() bool { return len(reads.all()) == 1 }, time.Second, 5*time.Millisecond)

	got := news.all()
	require.Len(t, got, 3, "panicking listener does not stop the others")
	assert.Equal(t, "1", got[0].Notification.ID)
	assert.Equal(t, "CRITICAL", string(got[0].Notification.Priority))
	assert.Equal(t, "2", got[1].Notification.ID)
	assert.Equal(t, "3", got[2].Notification.ID)

	require.Len(t, counts.all(), 1)
	assert.Equal(t, 7, counts.all()[0].UnreadCount)
	assert.Equal(t, "2", reads.all()[0].NotificationID)
}

func TestOutbound_NoOpWhenDisconnected(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(3))

	tr.JoinProjectGroup("p1")
	tr.MarkNotificationAsRead("n1")
	tr.RequestUnreadCount()
	tr.Ping()
	assert.Zero(t, d.dials.Load())

	require.NoError(t, tr.Initialize(context.Background()))
	tr.JoinProjectGroup("p1")
	tr.MarkNotificationAsRead("n1")
	tr.RequestUnreadCount()

	assert.Equal(t, []string{
		`JoinUserGroup("42")`,
		`JoinProjectGroup("p1")`,
		`MarkNotificationAsRead("n1")`,
		`RequestUnreadCount()`,
	}, d.last().calls())
}

func TestReconnect_RejoinsGroups(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(5))

	states := &recorder{}
	tr.On(EventStateChanged, states.handle)

	require.NoError(t, tr.Initialize(context.Background()))
	first := d.last()
	tr.JoinProjectGroup("p1")

	first.Close()

	require.Eventually(t, func() bool {
		return d.dials.Load() == 2 && tr.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	second := d.last()
	require.NotSame(t, first, second)
	require.Eventually(t, func() bool { return len(second.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`JoinUserGroup("42")`, `JoinProjectGroup("p1")`}, second.calls())

	var seen []State
	for _, ev := range states.all() {
		seen = append(seen, ev.State)
	}
	assert.Equal(t, []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}, seen)
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(3))

	var maxed atomic.Int32
	tr.On(EventMaxAttemptsReached, func(Event) { maxed.Add(1) })

	require.NoError(t, tr.Initialize(context.Background()))
	d.fail.Store(true)
	d.last().Close()

	require.Eventually(t, func() bool { return maxed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDisconnected, tr.State())
	assert.Equal(t, int32(4), d.dials.Load(), "initial dial plus three retries")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), maxed.Load(), "emitted once")

	// A fresh Initialize resumes.
	d.fail.Store(false)
	require.NoError(t, tr.Initialize(context.Background()))
	assert.Equal(t, StateConnected, tr.State())
}

func TestConnectedListenerRunsAfterGroupsJoined(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(5))

	tr.On(EventStateChanged, func(ev Event) {
		if ev.State == StateConnected {
			tr.RequestUnreadCount()
		}
	})

	require.NoError(t, tr.Initialize(context.Background()))
	assert.Equal(t, []string{`JoinUserGroup("42")`, `RequestUnreadCount()`}, d.last().calls())

	first := d.last()
	first.Close()
	require.Eventually(t, func() bool {
		c := d.last()
		return c != first && len(c.calls()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`JoinUserGroup("42")`, `RequestUnreadCount()`}, d.last().calls(), "same order after a reconnect")
}

func TestDisconnect(t *testing.T) {
	d := &fakeDialer{}
	tr := newTestTransport(t, d, fastPolicy(3))
	tr.On(EventNewNotification, func(Event) {})

	require.NoError(t, tr.Initialize(context.Background()))
	tr.JoinProjectGroup("p1")
	conn := d.last()

	require.NoError(t, tr.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, tr.State())
	assert.Zero(t, tr.ListenerCount())
	assert.Equal(t, []string{
		`JoinUserGroup("42")`,
		`JoinProjectGroup("p1")`,
		`LeaveProjectGroup("p1")`,
		`LeaveUserGroup("42")`,
	}, conn.calls())

	select {
	case <-conn.closed:
	default:
		t.Fatal("socket left open")
	}

	require.NoError(t, tr.Disconnect(context.Background()))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), d.dials.Load(), "no reconnect after an explicit disconnect")
}

func TestOnOff(t *testing.T) {
	tr := NewTransport(Config{}, &fakeDialer{}, testToken(t), nil)
	id := tr.On(EventPong, func(Event) {})
	assert.Equal(t, 1, tr.ListenerCount())
	assert.True(t, tr.Off(id))
	assert.False(t, tr.Off(id))
	assert.Zero(t, tr.ListenerCount())
}
