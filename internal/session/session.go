// Package session wires the per-login notification pipeline: REST client,
// preference store, delivery filter, summary tracker, sound notifier,
// realtime transport and poller. Everything owned by a Session is torn
// down on Close so one user's state never leaks into the next login.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/delivery"
	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/notification"
	"github.com/nhle/obranotify/internal/preference"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/sound"
	"github.com/nhle/obranotify/internal/store"
	"github.com/nhle/obranotify/internal/summary"
	"github.com/nhle/obranotify/internal/sync"
)

// seedPageSize is how many recent notifications Reload pulls into the cache.
const seedPageSize = 50

// cacheTimeout bounds local cache writes made from event handlers.
const cacheTimeout = 5 * time.Second

// Deps are the external collaborators of a Session. Nil optional fields
// get production defaults.
type Deps struct {
	Config *model.AppConfig
	Tokens api.TokenSource
	Store  store.Store

	// Optional.
	HTTPClient *http.Client
	Dialer     realtime.Dialer
	Player     sound.Player
	Beeper     sound.Beeper
	Logger     *zap.Logger
}

// Session is the explicit context of one logged-in user.
type Session struct {
	API           *api.Client
	Notifications *notification.Client
	Preferences   *preference.Store
	Filter        *delivery.Filter
	Summary       *summary.Tracker
	SoundSettings *sound.Settings
	Sound         *sound.Notifier
	Transport     *realtime.Transport
	Poller        *sync.Poller

	cfg     *model.AppConfig
	tokens  api.TokenSource
	store   store.Store
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan Update
	now     func() time.Time

	mu       gosync.Mutex
	claims   credential.Claims
	seen     map[string]struct{}
	followed string
	started  bool
	closed   bool
}

// New builds the session graph. Nothing touches the network until Start.
func New(d Deps) (*Session, error) {
	if d.Config == nil {
		return nil, errors.New("session: config is required")
	}
	if d.Tokens == nil {
		return nil, errors.New("session: token source is required")
	}
	if d.Store == nil {
		return nil, errors.New("session: store is required")
	}

	cfg := d.Config
	logger := logging.OrNop(d.Logger)

	opts := []api.Option{api.WithLogger(logger.Named("api"))}
	if d.HTTPClient != nil {
		opts = append(opts, api.WithHTTPClient(d.HTTPClient))
	}
	apiClient := api.NewClient(api.Config{
		BaseURL:       cfg.Server.BaseURL,
		Timeout:       cfg.Server.RequestTimeout(),
		CreateTimeout: cfg.Server.CreateTimeout(),
	}, d.Tokens, opts...)

	prefs := preference.NewStore(preference.NewRemoteRepository(apiClient), logger.Named("preferences"))

	player := d.Player
	if player == nil {
		player = sound.CommandPlayer{Dir: cfg.Sound.Dir, Command: cfg.Sound.Command}
	}
	soundSettings := sound.NewSettings(d.Store, logger)

	dialer := d.Dialer
	if dialer == nil {
		dialer = realtime.WebsocketDialer{HandshakeTimeout: cfg.Server.RequestTimeout()}
	}
	rc := cfg.Realtime
	transport := realtime.NewTransport(realtime.Config{
		URL: cfg.Server.ResolvedHubURL(),
		Policy: realtime.ReconnectPolicy{
			FastAttempts:   rc.FastAttempts,
			MediumAttempts: rc.MediumAttempts,
			MaxAttempts:    rc.MaxAttempts,
			FastDelay:      time.Duration(rc.FastDelayMs) * time.Millisecond,
			MediumDelay:    time.Duration(rc.MediumDelayMs) * time.Millisecond,
			SlowDelay:      time.Duration(rc.SlowDelayMs) * time.Millisecond,
		},
		PingInterval: time.Duration(rc.PingIntervalSec) * time.Second,
	}, dialer, d.Tokens, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		API:           apiClient,
		Notifications: notification.NewClient(apiClient, logger.Named("notifications")),
		Preferences:   prefs,
		Filter:        delivery.NewFilter(prefs),
		Summary:       summary.NewTracker(),
		SoundSettings: soundSettings,
		Sound:         sound.NewNotifier(soundSettings, player, d.Beeper, logger.Named("sound")),
		Transport:     transport,
		cfg:           cfg,
		tokens:        d.Tokens,
		store:         d.Store,
		logger:        logger.Named("session"),
		ctx:           ctx,
		cancel:        cancel,
		updates:       make(chan Update, 64),
		now:           time.Now,
		seen:          make(map[string]struct{}),
	}
	s.Poller = sync.New(s.Notifications, s.handlePoll, sync.Config{
		Interval:         time.Duration(cfg.Poll.IntervalSec) * time.Second,
		RefreshPerMinute: cfg.Poll.RefreshPerMinute,
	}, logger)
	return s, nil
}

// Claims returns the identity resolved by Start.
func (s *Session) Claims() credential.Claims {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

// Updates streams changes for the UI. It is closed by Close.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Start resolves the user, loads preferences and the summary, seeds the
// cache, connects the realtime transport and starts polling. Only a
// missing or invalid session is fatal; other failures degrade.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}
	claims, err := credential.ParseClaims(token)
	if err != nil {
		return fmt.Errorf("%w: %v", credential.ErrNoSession, err)
	}
	s.mu.Lock()
	s.claims = claims
	s.mu.Unlock()

	logger := s.logger.With(zap.String("user", claims.UserID))

	if err := s.Preferences.Load(ctx, claims.UserID); err != nil {
		if api.IsAuthError(err) {
			return err
		}
		logger.Warn("preferences unavailable, showing everything", zap.Error(err))
	}

	if err := s.Reload(ctx); err != nil {
		if api.IsAuthError(err) {
			return err
		}
		logger.Warn("initial load failed, relying on cache", zap.Error(err))
	}

	s.subscribe()
	if s.cfg.Realtime.Enabled {
		if err := s.Transport.Initialize(ctx); err != nil {
			if errors.Is(err, credential.ErrNoSession) {
				return err
			}
			logger.Warn("realtime unavailable, polling only", zap.Error(err))
		}
	}

	s.Poller.Start(s.now())
	logger.Info("session started", zap.String("role", claims.Role))
	return nil
}

// Reload pulls the first page of notifications into the cache and adopts
// the server summary.
func (s *Session) Reload(ctx context.Context) error {
	page, err := s.Notifications.GetNotifications(ctx, 0, seedPageSize, notification.Filter{})
	if err != nil {
		return err
	}
	if !s.interested() {
		return nil
	}

	userID := s.Claims().UserID
	for i := range page.Items {
		if page.Items[i].UserID == "" {
			page.Items[i].UserID = userID
		}
	}
	if err := s.store.UpsertNotifications(ctx, page.Items); err != nil {
		s.logger.Warn("caching notifications failed", zap.Error(err))
	}
	s.markSeen(page.Items)

	sum, err := s.Notifications.GetSummary(ctx)
	if err != nil {
		return err
	}
	if !s.interested() {
		return nil
	}
	s.Summary.Reconcile(sum)
	s.publish(Update{Kind: UpdateSummary, Summary: s.Summary.Snapshot()})
	return nil
}

// Cached lists notifications from the local cache for the current user.
func (s *Session) Cached(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error) {
	f.UserID = s.Claims().UserID
	return s.store.GetNotifications(ctx, f)
}

// Search runs a server-side search and caches the hits.
func (s *Session) Search(ctx context.Context, query string) ([]model.Notification, error) {
	page, err := s.Notifications.Search(ctx, query, 0, seedPageSize)
	if err != nil {
		return nil, err
	}
	userID := s.Claims().UserID
	for i := range page.Items {
		if page.Items[i].UserID == "" {
			page.Items[i].UserID = userID
		}
	}
	if err := s.store.UpsertNotifications(ctx, page.Items); err != nil {
		s.logger.Warn("caching search results failed", zap.Error(err))
	}
	return page.Items, nil
}

// Reconnect re-initializes the realtime transport once it has given up and
// reloads the first page, since pushes were missed while offline. An
// invalid session is returned as is so the caller can ask for a login.
func (s *Session) Reconnect(ctx context.Context) error {
	if !s.interested() {
		return errors.New("session closed")
	}
	if s.cfg.Realtime.Enabled {
		if err := s.Transport.Initialize(ctx); err != nil {
			s.logger.Warn("manual reconnect failed", zap.Error(err))
			return err
		}
	}
	return s.Reload(ctx)
}

// FollowProject joins the hub group of the project being looked at and
// leaves the previously followed one. An empty id only leaves. Group
// membership is not queued while the hub is down.
func (s *Session) FollowProject(projectID string) {
	s.mu.Lock()
	if s.closed || s.followed == projectID {
		s.mu.Unlock()
		return
	}
	prev := s.followed
	s.followed = projectID
	s.mu.Unlock()

	if prev != "" {
		s.Transport.LeaveProjectGroup(prev)
	}
	if projectID != "" {
		s.Transport.JoinProjectGroup(projectID)
	}
}

// RefreshNow asks the poller for an immediate check.
func (s *Session) RefreshNow() error {
	return s.Poller.RefreshNow()
}

// Close stops polling, disconnects the transport and drops the in-memory
// preference and summary state. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()

	s.cancel()
	s.Poller.Stop()
	err := s.Transport.Disconnect(ctx)
	s.Preferences.Reset()
	s.Summary.Reset()

	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.followed = ""
	s.mu.Unlock()

	s.logger.Info("session closed")
	return err
}

// Logout closes the session and clears the user's cached notifications.
func (s *Session) Logout(ctx context.Context) error {
	userID := s.Claims().UserID
	err := s.Close(ctx)
	if userID != "" {
		if cerr := s.store.ClearUserNotifications(ctx, userID); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// interested reports whether late results should still be applied.
func (s *Session) interested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) markSeen(items []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range items {
		s.seen[n.ID] = struct{}{}
	}
}

// publish hands an update to the UI without blocking the caller.
func (s *Session) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
		s.logger.Warn("update dropped, consumer too slow", zap.Stringer("kind", u.Kind))
	}
}

func (s *Session) cacheCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, cacheTimeout)
}
