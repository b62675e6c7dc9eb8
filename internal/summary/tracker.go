package summary

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/theme"
)

// Tracker keeps the local unread summary. It counts each notification id
// at most once, so the same item arriving by push and by poll is merged.
// The server summary stays authoritative; Reconcile adopts it.
type Tracker struct {
	mu      sync.Mutex
	summary model.Summary
	unread  map[string]model.Notification

	// settled holds ids already uncounted this session.
	settled map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		summary: model.NewSummary(),
		unread:  make(map[string]model.Notification),
		settled: make(map[string]struct{}),
	}
}

// Add counts an unread notification. It returns false when n is already
// read, its id is already counted, or it was marked read this session.
func (t *Tracker) Add(n model.Notification) bool {
	if n.IsRead || n.ID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.unread[n.ID]; seen {
		return false
	}
	if _, done := t.settled[n.ID]; done {
		return false
	}
	t.unread[n.ID] = n
	t.summary.UnreadCount++
	t.summary.ByContext[n.Context]++
	t.summary.ByPriority[n.Priority]++
	t.pushRecentLocked(n)
	return true
}

// MarkRead uncounts a tracked notification. It returns false when the id
// is not counted, so repeated calls decrement at most once.
func (t *Tracker) MarkRead(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.unread[id]
	if !ok {
		return false
	}
	t.settleLocked(n)
	return true
}

// MarkReadItem uncounts n even when the tracker never saw it, as happens for
// items older than the last reconcile. It still decrements at most once per
// id and ignores items that were already read.
func (t *Tracker) MarkReadItem(n model.Notification) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tracked, ok := t.unread[n.ID]; ok {
		t.settleLocked(tracked)
		return true
	}
	if _, done := t.settled[n.ID]; done || n.IsRead || n.ID == "" {
		return false
	}
	t.settleLocked(n)
	return true
}

func (t *Tracker) settleLocked(n model.Notification) {
	delete(t.unread, n.ID)
	t.settled[n.ID] = struct{}{}

	t.summary.UnreadCount = max(0, t.summary.UnreadCount-1)
	decrement(t.summary.ByContext, n.Context)
	decrement(t.summary.ByPriority, n.Priority)
	for i, r := range t.summary.Recent {
		if r.ID == n.ID {
			t.summary.Recent[i].MarkAsRead(time.Now())
		}
	}
}

// MarkAllRead zeroes every counter.
func (t *Tracker) MarkAllRead() {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.summary.Recent
	t.summary = model.NewSummary()
	now := time.Now()
	for i := range recent {
		recent[i].MarkAsRead(now)
	}
	t.summary.Recent = recent
	for id := range t.unread {
		t.settled[id] = struct{}{}
	}
	t.unread = make(map[string]model.Notification)
}

// Reconcile adopts the authoritative server summary. Only the recent items
// are known by id afterwards, so an older unread item that arrives later
// can still be counted once more until the next reconcile.
func (t *Tracker) Reconcile(s model.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary = s.Clone()
	t.unread = make(map[string]model.Notification)
	for _, n := range t.summary.Recent {
		if !n.IsRead && n.ID != "" {
			t.unread[n.ID] = n
		}
	}
}

// SetUnreadCount adopts a count pushed by the server.
func (t *Tracker) SetUnreadCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.UnreadCount = max(0, count)
}

// Reset empties the tracker. Called on logout.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = model.NewSummary()
	t.unread = make(map[string]model.Notification)
	t.settled = make(map[string]struct{})
}

// Snapshot returns a copy of the current summary.
func (t *Tracker) Snapshot() model.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary.Clone()
}

// BadgeColor resolves the badge colour: critical, then high, then any
// unread, else none.
func (t *Tracker) BadgeColor() lipgloss.AdaptiveColor {
	return BadgeColorFor(t.Snapshot())
}

// BadgeColorFor resolves the badge colour of a summary.
func BadgeColorFor(s model.Summary) lipgloss.AdaptiveColor {
	switch {
	case s.HasCritical():
		return theme.BadgeCritical
	case s.HasHigh():
		return theme.BadgeHigh
	case s.UnreadCount > 0:
		return theme.BadgeUnread
	default:
		return theme.BadgeNone
	}
}

func (t *Tracker) pushRecentLocked(n model.Notification) {
	recent := append([]model.Notification{n}, t.summary.Recent...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > model.RecentLimit {
		recent = recent[:model.RecentLimit]
	}
	t.summary.Recent = recent
}

func decrement[K comparable](m map[K]int, k K) {
	if m[k] <= 1 {
		delete(m, k)
		return
	}
	m[k]--
}
