package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/notification"
)

// SyncState represents the current state of the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncStopped
)

// SyncStatus holds the poller's last observed state.
type SyncStatus struct {
	State     SyncState
	LastCheck time.Time
	LastCount int
	Since     time.Time
}

// Result is delivered to the handler after every check that found
// notifications.
type Result struct {
	Notifications []model.Notification
	Count         int
	Manual        bool
}

// Handler receives poll results on the poller goroutine.
type Handler func(Result)

// Checker is the check-new primitive. It never fails.
type Checker interface {
	CheckForNew(ctx context.Context, since time.Time) notification.CheckResult
}

// ErrRateLimited is returned by RefreshNow when manual refreshes are
// requested faster than allowed.
var ErrRateLimited = errors.New("refresh rate limited")

// checkTimeout is the maximum time allowed for a single check.
const checkTimeout = 30 * time.Second

// Config controls the poll cadence.
type Config struct {
	Interval         time.Duration
	RefreshPerMinute int
}

// Poller periodically asks the backend for notifications newer than the
// last successful check.
type Poller struct {
	checker   Checker
	handler   Handler
	interval  time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	status    SyncStatus
	running   bool
	stopped   bool
	now       func() time.Time
}

// New creates a stopped Poller.
func New(checker Checker, handler Handler, cfg Config, logger *zap.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	perMinute := cfg.RefreshPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	return &Poller{
		checker:   checker,
		handler:   handler,
		interval:  interval,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		logger:    logging.OrNop(logger).Named("poller"),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		status:    SyncStatus{State: SyncStopped},
		now:       time.Now,
	}
}

// Start begins polling for notifications created after since. It returns
// immediately. A Poller runs once: calls after the first, or after Stop,
// have no effect.
func (p *Poller) Start(since time.Time) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.status = SyncStatus{State: SyncIdle, Since: since}
	p.mu.Unlock()

	go p.loop()
}

// Stop halts polling and waits for an in-flight check to finish. Results
// of that check are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	p.status.State = SyncStopped
	close(p.stopCh)
	p.mu.Unlock()

	<-p.doneCh
}

// RefreshNow triggers an immediate check.
func (p *Poller) RefreshNow() error {
	if !p.limiter.Allow() {
		return ErrRateLimited
	}
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
	return nil
}

// Status returns the current poller status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.check(false)
		case <-p.triggerCh:
			p.check(true)
		}
	}
}

// check runs one check-new round. The since cursor only advances when the
// check returned notifications, so a degraded (empty) answer is retried
// over the same window.
func (p *Poller) check(manual bool) {
	p.mu.Lock()
	since := p.status.Since
	p.status.State = SyncRunning
	p.mu.Unlock()

	started := p.now()
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	res := p.checker.CheckForNew(ctx, since)

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.status.State = SyncIdle
	p.status.LastCheck = started
	p.status.LastCount = len(res.Notifications)
	if len(res.Notifications) > 0 {
		p.status.Since = started
	}
	p.mu.Unlock()

	if len(res.Notifications) == 0 {
		return
	}
	p.logger.Debug("poll found notifications",
		zap.Int("count", len(res.Notifications)),
		zap.Bool("manual", manual))

	if p.handler != nil {
		p.handler(Result{
			Notifications: res.Notifications,
			Count:         res.Count,
			Manual:        manual,
		})
	}
}
