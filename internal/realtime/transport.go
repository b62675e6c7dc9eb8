// Package realtime keeps the authenticated push channel to the notification
// hub: connection state machine, reconnect schedule, hub framing and the
// listener registry consumers subscribe through.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
)

// ErrDisconnected is returned by Initialize when Disconnect won the race.
var ErrDisconnected = errors.New("transport disconnected")

const (
	defaultPingInterval = 30 * time.Second
	reconnectTimeout    = 20 * time.Second
)

// Config configures a Transport.
type Config struct {
	URL          string
	Policy       ReconnectPolicy
	PingInterval time.Duration
}

// Transport is the process-wide hub connection.
type Transport struct {
	cfg       Config
	dialer    Dialer
	tokens    api.TokenSource
	logger    *zap.Logger
	listeners *registry
	inflight  singleflight.Group

	mu       sync.Mutex
	state    State
	conn     Conn
	userID   string
	projects map[string]struct{}
	quit     chan struct{}
}

// NewTransport creates a disconnected transport.
func NewTransport(cfg Config, dialer Dialer, tokens api.TokenSource, logger *zap.Logger) *Transport {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultReconnectPolicy()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	logger = logging.OrNop(logger).Named("realtime")
	return &Transport{
		cfg:       cfg,
		dialer:    dialer,
		tokens:    tokens,
		logger:    logger,
		listeners: newRegistry(logger),
		projects:  make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// On registers a listener and returns its id.
func (t *Transport) On(name EventName, h Handler) string {
	return t.listeners.on(name, h)
}

// Off removes a listener. It reports whether the id was registered.
func (t *Transport) Off(id string) bool {
	return t.listeners.off(id)
}

// ListenerCount returns the number of registered listeners.
func (t *Transport) ListenerCount() int {
	return t.listeners.count()
}

// Initialize connects and joins the user's group. Concurrent calls share
// one attempt, run under the first caller's context. It returns nil when
// the transport is already connected or reconnecting.
func (t *Transport) Initialize(ctx context.Context) error {
	_, err, _ := t.inflight.Do("initialize", func() (interface{}, error) {
		return nil, t.initialize(ctx)
	})
	return err
}

func (t *Transport) initialize(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateReconnecting {
		t.mu.Unlock()
		return nil
	}
	ev, _ := t.transitionLocked(InputInitialize)
	t.mu.Unlock()
	t.emit(ev)

	token, userID, err := t.credentials(ctx)
	if err != nil {
		t.handshakeFailed()
		return err
	}

	conn, pending, err := t.connect(ctx, token)
	if err != nil {
		t.handshakeFailed()
		return fmt.Errorf("connecting to hub: %w", err)
	}

	t.mu.Lock()
	if t.state != StateConnecting {
		t.mu.Unlock()
		conn.Close()
		return ErrDisconnected
	}
	ev, _ = t.transitionLocked(InputHandshakeOK)
	t.conn = conn
	t.userID = userID
	t.quit = make(chan struct{})
	quit := t.quit
	projects := t.projectsLocked()
	t.mu.Unlock()

	t.logger.Info("connected to hub", zap.String("user", userID))
	t.start(conn, quit, pending)
	// Groups first, so Connected listeners can call into the hub.
	t.joinGroups(conn, userID, projects)
	t.emit(ev)
	return nil
}

func (t *Transport) handshakeFailed() {
	t.mu.Lock()
	if t.state != StateConnecting {
		t.mu.Unlock()
		return
	}
	ev, _ := t.transitionLocked(InputHandshakeFailed)
	t.mu.Unlock()
	t.emit(ev)
}

// credentials resolves the bearer token and the user it belongs to. Any
// failure is an ErrNoSession.
func (t *Transport) credentials(ctx context.Context) (string, string, error) {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrNoSession) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %v", credential.ErrNoSession, err)
	}
	claims, err := credential.ParseClaims(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", credential.ErrNoSession, err)
	}
	if claims.UserID == "" {
		return "", "", fmt.Errorf("%w: token carries no user id", credential.ErrNoSession)
	}
	return token, claims.UserID, nil
}

// connect dials and completes the hub handshake. Records the hub batched
// behind the handshake reply are returned for dispatch.
func (t *Transport) connect(ctx context.Context, token string) (Conn, []byte, error) {
	conn, err := t.dialer.Dial(ctx, t.cfg.URL, token)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.WriteMessage(handshakeRequest()); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sending handshake: %w", err)
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := conn.ReadMessage()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("reading handshake: %w", r.err)
		}
		pending, err := parseHandshakeResponse(r.data)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return conn, pending, nil
	}
}

func (t *Transport) start(conn Conn, quit chan struct{}, pending []byte) {
	done := make(chan struct{})
	go t.readLoop(conn, quit, done, pending)
	go t.pingLoop(conn, quit, done)
}

func (t *Transport) joinGroups(conn Conn, userID string, projects []string) {
	t.send(conn, methodJoinUserGroup, userID)
	for _, p := range projects {
		t.send(conn, methodJoinProjectGroup, p)
	}
}

func (t *Transport) readLoop(conn Conn, quit, done chan struct{}, pending []byte) {
	defer close(done)

	if len(pending) > 0 && t.dispatch(pending) {
		t.dropped(conn, quit, errors.New("hub closed the connection"))
		return
	}
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-quit:
				return
			default:
			}
			t.dropped(conn, quit, err)
			return
		}
		if t.dispatch(data) {
			t.dropped(conn, quit, errors.New("hub closed the connection"))
			return
		}
	}
}

func (t *Transport) pingLoop(conn Conn, quit, done chan struct{}) {
	if t.cfg.PingInterval < 0 {
		return
	}
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(encodePing()); err != nil {
				t.logger.Debug("keep-alive failed", zap.Error(err))
			}
		}
	}
}

// dropped moves a live connection to Reconnecting and starts the reconnect
// loop. Stale connections are ignored.
func (t *Transport) dropped(conn Conn, quit chan struct{}, cause error) {
	t.mu.Lock()
	if t.conn != conn || t.state != StateConnected {
		t.mu.Unlock()
		return
	}
	ev, _ := t.transitionLocked(InputDropped)
	t.conn = nil
	t.mu.Unlock()

	conn.Close()
	t.logger.Warn("hub connection lost", zap.Error(cause))
	t.emit(ev)
	go t.reconnectLoop(quit)
}

func (t *Transport) reconnectLoop(quit chan struct{}) {
	for attempt := 1; ; attempt++ {
		delay, ok := t.cfg.Policy.Delay(attempt)
		if !ok {
			t.giveUp(quit, attempt-1)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-quit:
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, userID, pending, err := t.redial()
		if err != nil {
			if errors.Is(err, credential.ErrNoSession) {
				t.logger.Warn("session gone, not reconnecting", zap.Error(err))
				t.giveUp(quit, attempt)
				return
			}
			t.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			continue
		}

		t.mu.Lock()
		if t.quit != quit || t.state != StateReconnecting {
			t.mu.Unlock()
			conn.Close()
			return
		}
		ev, _ := t.transitionLocked(InputResumed)
		t.conn = conn
		t.userID = userID
		projects := t.projectsLocked()
		t.mu.Unlock()

		t.logger.Info("reconnected to hub", zap.Int("attempt", attempt))
		t.start(conn, quit, pending)
		t.joinGroups(conn, userID, projects)
		t.emit(ev)
		return
	}
}

func (t *Transport) redial() (Conn, string, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
	defer cancel()

	token, userID, err := t.credentials(ctx)
	if err != nil {
		return nil, "", nil, err
	}
	conn, pending, err := t.connect(ctx, token)
	if err != nil {
		return nil, "", nil, err
	}
	return conn, userID, pending, nil
}

func (t *Transport) giveUp(quit chan struct{}, attempts int) {
	t.mu.Lock()
	if t.quit != quit || t.state != StateReconnecting {
		t.mu.Unlock()
		return
	}
	ev, _ := t.transitionLocked(InputGiveUp)
	close(t.quit)
	t.quit = nil
	t.mu.Unlock()

	t.logger.Error("giving up on hub connection", zap.Int("attempts", attempts))
	t.emit(ev)
	t.emit(Event{Name: EventMaxAttemptsReached})
}

// Disconnect leaves every joined group, closes the socket, stops any
// reconnect loop and clears all listeners. Calling it again is a no-op.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	userID := t.userID
	projects := t.projectsLocked()
	t.mu.Unlock()

	if connected && conn != nil && ctx.Err() == nil {
		for _, p := range projects {
			t.send(conn, methodLeaveProjectGroup, p)
		}
		if userID != "" {
			t.send(conn, methodLeaveUserGroup, userID)
		}
	}

	t.mu.Lock()
	if t.quit != nil {
		close(t.quit)
		t.quit = nil
	}
	ev, changed := t.transitionLocked(InputDisconnect)
	conn = t.conn
	t.conn = nil
	t.userID = ""
	t.projects = make(map[string]struct{})
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if changed {
		t.logger.Info("disconnected from hub")
		t.emit(ev)
	}
	t.listeners.clear()
	return err
}

// JoinProjectGroup subscribes to a project's events. The group is re-joined
// after a reconnect.
func (t *Transport) JoinProjectGroup(projectID string) {
	if !t.invoke(methodJoinProjectGroup, projectID) {
		return
	}
	t.mu.Lock()
	t.projects[projectID] = struct{}{}
	t.mu.Unlock()
}

// LeaveProjectGroup unsubscribes from a project's events.
func (t *Transport) LeaveProjectGroup(projectID string) {
	t.mu.Lock()
	delete(t.projects, projectID)
	t.mu.Unlock()
	t.invoke(methodLeaveProjectGroup, projectID)
}

// MarkNotificationAsRead tells the hub a notification was read so other
// sessions of the user update.
func (t *Transport) MarkNotificationAsRead(notificationID string) {
	t.invoke(methodMarkNotificationAsRead, notificationID)
}

// RequestUnreadCount asks the hub to push the current unread count.
func (t *Transport) RequestUnreadCount() {
	t.invoke(methodRequestUnreadCount)
}

// Ping asks the hub for a pong.
func (t *Transport) Ping() {
	t.invoke(methodPing)
}

// invoke sends a fire-and-forget hub call. It is a no-op unless connected.
func (t *Transport) invoke(target string, args ...interface{}) bool {
	t.mu.Lock()
	conn := t.conn
	ok := t.state == StateConnected && conn != nil
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("not connected, skipping hub call", zap.String("method", target))
		return false
	}
	return t.send(conn, target, args...)
}

func (t *Transport) send(conn Conn, target string, args ...interface{}) bool {
	frame, id, err := encodeInvocation(target, args...)
	if err != nil {
		t.logger.Warn("encoding hub call", zap.String("method", target), zap.Error(err))
		return false
	}
	if err := conn.WriteMessage(frame); err != nil {
		t.logger.Warn("hub call failed",
			zap.String("method", target),
			zap.String("invocation", id),
			zap.Error(err))
		return false
	}
	return true
}

// dispatch handles one frame and reports whether the hub asked to close.
func (t *Transport) dispatch(data []byte) bool {
	msgs, err := decodeMessages(data)
	if err != nil {
		t.logger.Warn("malformed hub frame", zap.Error(err))
	}

	closed := false
	for _, m := range msgs {
		switch m.Type {
		case msgInvocation:
			t.handleInvocation(m)
		case msgCompletion:
			if m.Error != "" {
				t.logger.Warn("hub call rejected",
					zap.String("invocation", m.InvocationID),
					zap.String("error", m.Error))
			}
		case msgPing, msgStreamItem:
		case msgClose:
			if m.Error != "" {
				t.logger.Warn("hub closed connection", zap.String("error", m.Error))
			}
			closed = true
		default:
			t.logger.Debug("ignoring hub message", zap.Int("type", m.Type))
		}
	}
	return closed
}

func (t *Transport) handleInvocation(m hubMessage) {
	name, ok := eventFor(m.Target)
	if !ok {
		t.logger.Debug("unhandled hub event", zap.String("target", m.Target))
		return
	}

	var arg json.RawMessage
	if len(m.Arguments) > 0 {
		arg = m.Arguments[0]
	}

	ev := Event{Name: name}
	switch name {
	case EventNewNotification:
		n, err := model.ParseNotification(api.DecodeObject(arg))
		if err != nil {
			t.logger.Warn("dropping malformed pushed notification",
				zap.String("target", m.Target), zap.Error(err))
			return
		}
		ev.Notification = &n
	case EventUnreadCount:
		count, err := strconv.Atoi(scalar(arg, "unreadCount", "count"))
		if err != nil {
			t.logger.Warn("malformed unread count", zap.ByteString("payload", arg))
			return
		}
		ev.UnreadCount = count
	case EventNotificationRead:
		ev.NotificationID = scalar(arg, "notificationId", "id")
		if ev.NotificationID == "" {
			return
		}
	case EventGroupJoined:
		ev.Group = scalar(arg, "group", "groupName", "projectId", "userId")
	}
	t.emit(ev)
}

func (t *Transport) emit(ev Event) {
	if ev.Name == "" {
		return
	}
	t.listeners.emit(ev)
}

// transitionLocked applies an input and returns the state-change event to
// emit once the lock is released.
func (t *Transport) transitionLocked(in Input) (Event, bool) {
	next, err := Transition(t.state, in)
	if err != nil {
		t.logger.Warn("ignoring transport input", zap.Error(err))
		return Event{}, false
	}
	prev := t.state
	t.state = next
	if prev == next {
		return Event{}, false
	}
	return Event{Name: EventStateChanged, State: next, Previous: prev}, true
}

func (t *Transport) projectsLocked() []string {
	out := make([]string, 0, len(t.projects))
	for p := range t.projects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// scalar reads a string or number argument, or the first of keys when the
// argument is an object.
func scalar(raw json.RawMessage, keys ...string) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return scalar(v)
		}
	}
	for k, v := range obj {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return scalar(v)
			}
		}
	}
	return ""
}
