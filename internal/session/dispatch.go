package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/delivery"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/sync"
)

// UpdateKind classifies an Update.
type UpdateKind int

const (
	UpdateNotification UpdateKind = iota
	UpdateRead
	UpdateDeleted
	UpdateSummary
	UpdateConnection
	UpdateGaveUp
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateNotification:
		return "notification"
	case UpdateRead:
		return "read"
	case UpdateDeleted:
		return "deleted"
	case UpdateSummary:
		return "summary"
	case UpdateConnection:
		return "connection"
	case UpdateGaveUp:
		return "gave-up"
	default:
		return fmt.Sprintf("update(%d)", int(k))
	}
}

// Update is a change the UI should render. Summary is always a fresh
// snapshot taken after the change.
type Update struct {
	Kind         UpdateKind
	Notification *model.Notification
	Decision     delivery.Decision
	IDs          []string
	Summary      model.Summary
	State        realtime.State
}

// Source says where an incoming notification came from.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

func (s *Session) subscribe() {
	t := s.Transport
	t.On(realtime.EventNewNotification, func(ev realtime.Event) {
		if ev.Notification != nil {
			s.HandleIncoming(*ev.Notification, SourcePush)
		}
	})
	t.On(realtime.EventUnreadCount, func(ev realtime.Event) {
		if !s.interested() {
			return
		}
		s.Summary.SetUnreadCount(ev.UnreadCount)
		s.publish(Update{Kind: UpdateSummary, Summary: s.Summary.Snapshot()})
	})
	t.On(realtime.EventNotificationRead, func(ev realtime.Event) {
		// Read from another session of the same user.
		s.applyRead([]string{ev.NotificationID}, false)
	})
	t.On(realtime.EventStateChanged, func(ev realtime.Event) {
		s.publish(Update{Kind: UpdateConnection, State: ev.State, Summary: s.Summary.Snapshot()})
		if ev.State == realtime.StateConnected {
			s.Transport.RequestUnreadCount()
		}
	})
	t.On(realtime.EventMaxAttemptsReached, func(realtime.Event) {
		s.publish(Update{Kind: UpdateGaveUp, State: realtime.StateDisconnected, Summary: s.Summary.Snapshot()})
	})
}

func (s *Session) handlePoll(r sync.Result) {
	for _, n := range r.Notifications {
		s.HandleIncoming(n, SourcePoll)
	}
}

// HandleIncoming is the single entry point for notifications arriving by
// push or poll. Each id is processed once per session; arrivals after
// Close are ignored.
func (s *Session) HandleIncoming(n model.Notification, src Source) {
	if n.ID == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, dup := s.seen[n.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[n.ID] = struct{}{}
	if n.UserID == "" {
		n.UserID = s.claims.UserID
	}
	s.mu.Unlock()

	logger := s.logger.With(zap.String("id", n.ID), zap.String("source", string(src)))

	ctx, cancel := s.cacheCtx()
	if err := s.store.UpsertNotifications(ctx, []model.Notification{n}); err != nil {
		logger.Warn("caching notification failed", zap.Error(err))
	}
	cancel()

	// The server counts every unread item, shown or not.
	s.Summary.Add(n)

	d := s.Filter.Accept(n)
	if !d.ShowInApp {
		logger.Debug("notification filtered by preferences")
		s.publish(Update{Kind: UpdateSummary, Summary: s.Summary.Snapshot()})
		return
	}
	if d.PlaySound && !n.IsRead {
		go s.Sound.Notify(s.ctx, n.Priority)
	}

	s.publish(Update{
		Kind:         UpdateNotification,
		Notification: &n,
		Decision:     d,
		Summary:      s.Summary.Snapshot(),
	})
}

// MarkAsRead confirms a notification as read on the server, then updates
// the cache, the summary and the hub. A failed write changes nothing
// locally.
func (s *Session) MarkAsRead(ctx context.Context, id string) error {
	if err := s.Notifications.MarkAsRead(ctx, id); err != nil {
		return err
	}
	s.applyRead([]string{id}, true)
	return nil
}

// MarkMultipleAsRead is MarkAsRead for several ids in one round trip.
func (s *Session) MarkMultipleAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.Notifications.MarkMultipleAsRead(ctx, ids); err != nil {
		return err
	}
	s.applyRead(ids, true)
	return nil
}

// MarkAllAsRead marks every unread notification read and zeroes the
// summary.
func (s *Session) MarkAllAsRead(ctx context.Context) error {
	ids, err := s.Notifications.MarkAllAsRead(ctx)
	if err != nil {
		return err
	}
	if !s.interested() {
		return nil
	}

	cctx, cancel := s.cacheCtx()
	if err := s.store.MarkAllNotificationsRead(cctx, s.Claims().UserID, s.now()); err != nil {
		s.logger.Warn("updating cache failed", zap.Error(err))
	}
	cancel()

	s.Summary.MarkAllRead()
	s.Transport.RequestUnreadCount()
	s.publish(Update{Kind: UpdateRead, IDs: ids, Summary: s.Summary.Snapshot()})
	return nil
}

// Delete removes notifications on the server, then from the cache.
func (s *Session) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.Notifications.Delete(ctx, ids); err != nil {
		return err
	}
	if !s.interested() {
		return nil
	}

	cctx, cancel := s.cacheCtx()
	defer cancel()
	for _, id := range ids {
		if !s.Summary.MarkRead(id) {
			if n, err := s.store.GetNotificationByID(cctx, id); err == nil && n != nil && !n.IsRead {
				s.Summary.MarkReadItem(*n)
			}
		}
	}
	if err := s.store.DeleteNotifications(cctx, ids); err != nil {
		s.logger.Warn("updating cache failed", zap.Error(err))
	}
	s.publish(Update{Kind: UpdateDeleted, IDs: ids, Summary: s.Summary.Snapshot()})
	return nil
}

// applyRead records confirmed reads locally. notifyHub tells other
// sessions through the transport.
func (s *Session) applyRead(ids []string, notifyHub bool) {
	if !s.interested() {
		return
	}

	ctx, cancel := s.cacheCtx()
	defer cancel()

	for _, id := range ids {
		if id == "" {
			continue
		}
		if !s.Summary.MarkRead(id) {
			n, err := s.store.GetNotificationByID(ctx, id)
			if err == nil && n != nil && !n.IsRead {
				s.Summary.MarkReadItem(*n)
			}
		}
		if notifyHub {
			s.Transport.MarkNotificationAsRead(id)
		}
	}
	if err := s.store.MarkNotificationsRead(ctx, ids, s.now()); err != nil {
		s.logger.Warn("updating cache failed", zap.Error(err))
	}
	s.publish(Update{Kind: UpdateRead, IDs: ids, Summary: s.Summary.Snapshot()})
}
