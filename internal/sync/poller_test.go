package sync

import (
	"context"
	"strconv"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/notification"
)

type scriptedChecker struct {
	mu      gosync.Mutex
	results []int
	since   []time.Time
}

func (c *scriptedChecker) CheckForNew(_ context.Context, since time.Time) notification.CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.since = append(c.since, since)
	n := 0
	if len(c.results) > 0 {
		n, c.results = c.results[0], c.results[1:]
	}
	items := make([]model.Notification, n)
	for i := range items {
		items[i] = model.Notification{ID: strconv.Itoa(i)}
	}
	return notification.CheckResult{HasNew: n > 0, Count: n, Notifications: items}
}

func (c *scriptedChecker) sinces() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.since...)
}

func newTestPoller(c Checker, h Handler) *Poller {
	return New(c, h, Config{Interval: time.Hour, RefreshPerMinute: 6000}, nil)
}

func TestPoller_RefreshAdvancesSinceOnlyOnResults(t *testing.T) {
	checker := &scriptedChecker{results: []int{0, 2, 0}}

	var mu gosync.Mutex
	var got []Result
	p := newTestPoller(checker, func(r Result) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := t0
	p.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	p.Start(t0)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool { return p.RefreshNow() == nil }, time.Second, time.Millisecond)
		want := i + 1
		require.Eventually(t, func() bool { return len(checker.sinces()) == want }, time.Second, time.Millisecond)
	}

	sinces := checker.sinces()
	assert.Equal(t, t0, sinces[0])
	assert.Equal(t, t0, sinces[1], "empty answer keeps the cursor")
	assert.Equal(t, t0.Add(2*time.Minute), sinces[2], "cursor moves to the start of the fruitful check")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Notifications, 2)
	assert.True(t, got[0].Manual)
}

func TestPoller_RefreshIsRateLimited(t *testing.T) {
	p := New(&scriptedChecker{}, nil, Config{Interval: time.Hour, RefreshPerMinute: 1}, nil)
	require.NoError(t, p.RefreshNow())
	assert.ErrorIs(t, p.RefreshNow(), ErrRateLimited)
}

func TestPoller_StopIsFinal(t *testing.T) {
	checker := &scriptedChecker{results: []int{1}}
	p := newTestPoller(checker, nil)

	p.Start(time.Time{})
	assert.Equal(t, SyncIdle, p.Status().State)

	p.Stop()
	p.Stop()
	assert.Equal(t, SyncStopped, p.Status().State)

	p.Start(time.Time{})
	assert.Equal(t, SyncStopped, p.Status().State)
}
