package store

import (
	"context"
	"time"

	"github.com/nhle/obranotify/internal/model"
)

// NotificationFilter controls filtering and pagination for cached
// notification queries. Nil pointers mean "any".
type NotificationFilter struct {
	UserID     string
	Context    *model.Context
	Priority   *model.Priority
	MinRank    int
	UnreadOnly bool
	Query      *string
	Limit      int
	Offset     int
}

// Store is the local cache: notifications seen by this client and the
// client-local settings.
type Store interface {
	// === Notifications ===

	UpsertNotifications(ctx context.Context, items []model.Notification) error
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	GetNotificationByID(ctx context.Context, id string) (*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationsRead(ctx context.Context, ids []string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) error
	DeleteNotifications(ctx context.Context, ids []string) error
	ClearUserNotifications(ctx context.Context, userID string) error

	// === Settings ===

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
