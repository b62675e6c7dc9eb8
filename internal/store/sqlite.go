package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/obranotify/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// notificationRow is the cached form of model.Notification.
type notificationRow struct {
	ID                string       `db:"id"`
	UserID            string       `db:"user_id"`
	Type              string       `db:"type"`
	Context           string       `db:"context"`
	Priority          string       `db:"priority"`
	PriorityRank      int          `db:"priority_rank"`
	Title             string       `db:"title"`
	Message           string       `db:"message"`
	ActionURL         string       `db:"action_url"`
	ActionText        string       `db:"action_text"`
	Scope             string       `db:"scope"`
	TargetRole        string       `db:"target_role"`
	RelatedProjectID  string       `db:"related_project_id"`
	RelatedEntityID   string       `db:"related_entity_id"`
	RelatedEntityType string       `db:"related_entity_type"`
	IsRead            bool         `db:"is_read"`
	ReadAt            sql.NullTime `db:"read_at"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
	CachedAt          time.Time    `db:"cached_at"`
}

func toRow(n model.Notification) notificationRow {
	r := notificationRow{
		ID:                n.ID,
		UserID:            n.UserID,
		Type:              n.Type,
		Context:           string(n.Context),
		Priority:          string(n.Priority),
		PriorityRank:      n.Priority.Rank(),
		Title:             n.Title,
		Message:           n.Message,
		ActionURL:         n.ActionURL,
		ActionText:        n.ActionText,
		Scope:             string(n.Scope),
		TargetRole:        n.TargetRole,
		RelatedProjectID:  n.RelatedProjectID,
		RelatedEntityID:   n.RelatedEntityID,
		RelatedEntityType: n.RelatedEntityType,
		IsRead:            n.IsRead,
		CreatedAt:         n.CreatedAt.UTC(),
		UpdatedAt:         n.UpdatedAt.UTC(),
		CachedAt:          time.Now().UTC(),
	}
	if n.IsRead && n.ReadAt != nil {
		r.ReadAt = sql.NullTime{Time: n.ReadAt.UTC(), Valid: true}
	}
	return r
}

func (r notificationRow) toModel() model.Notification {
	n := model.Notification{
		ID:                r.ID,
		UserID:            r.UserID,
		Type:              r.Type,
		Context:           model.Context(r.Context),
		Priority:          model.Priority(r.Priority),
		Title:             r.Title,
		Message:           r.Message,
		ActionURL:         r.ActionURL,
		ActionText:        r.ActionText,
		Scope:             model.Scope(r.Scope),
		TargetRole:        r.TargetRole,
		RelatedProjectID:  r.RelatedProjectID,
		RelatedEntityID:   r.RelatedEntityID,
		RelatedEntityType: r.RelatedEntityType,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.IsRead {
		at := r.UpdatedAt.UTC()
		if r.ReadAt.Valid {
			at = r.ReadAt.Time.UTC()
		}
		n.IsRead = true
		n.ReadAt = &at
	}
	return n
}

// UpsertNotifications inserts or refreshes a batch of notifications. A
// cached read state is never reverted to unread by a stale copy.
func (s *SQLiteStore) UpsertNotifications(ctx context.Context, items []model.Notification) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO notifications (
			id, user_id, type, context, priority, priority_rank,
			title, message, action_url, action_text,
			scope, target_role,
			related_project_id, related_entity_id, related_entity_type,
			is_read, read_at, created_at, updated_at, cached_at
		) VALUES (
			:id, :user_id, :type, :context, :priority, :priority_rank,
			:title, :message, :action_url, :action_text,
			:scope, :target_role,
			:related_project_id, :related_entity_id, :related_entity_type,
			:is_read, :read_at, :created_at, :updated_at, :cached_at
		)
		ON CONFLICT(id) DO UPDATE SET
			user_id             = excluded.user_id,
			type                = excluded.type,
			context             = excluded.context,
			priority            = excluded.priority,
			priority_rank       = excluded.priority_rank,
			title               = excluded.title,
			message             = excluded.message,
			action_url          = excluded.action_url,
			action_text         = excluded.action_text,
			scope               = excluded.scope,
			target_role         = excluded.target_role,
			related_project_id  = excluded.related_project_id,
			related_entity_id   = excluded.related_entity_id,
			related_entity_type = excluded.related_entity_type,
			is_read             = MAX(notifications.is_read, excluded.is_read),
			read_at             = COALESCE(notifications.read_at, excluded.read_at),
			created_at          = excluded.created_at,
			updated_at          = excluded.updated_at,
			cached_at           = excluded.cached_at`

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, n := range items {
		if n.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, toRow(n)); err != nil {
			return fmt.Errorf("upserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNotifications retrieves cached notifications matching the filter,
// newest first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	opts NotificationFilter,
) ([]model.Notification, error) {
	var conditions []string
	var args []interface{}

	if opts.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.Context != nil {
		conditions = append(conditions, "context = ?")
		args = append(args, string(*opts.Context))
	}
	if opts.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(*opts.Priority))
	}
	if opts.MinRank > 0 {
		conditions = append(conditions, "priority_rank >= ?")
		args = append(args, opts.MinRank)
	}
	if opts.UnreadOnly {
		conditions = append(conditions, "is_read = 0")
	}
	if opts.Query != nil && *opts.Query != "" {
		conditions = append(conditions, "(title LIKE ? OR message LIKE ?)")
		q := "%" + *opts.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT * FROM notifications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetNotificationByID retrieves a single cached notification. A missing id
// returns (nil, nil).
func (s *SQLiteStore) GetNotificationByID(ctx context.Context, id string) (*model.Notification, error) {
	var r notificationRow
	err := s.db.GetContext(ctx, &r, "SELECT * FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	n := r.toModel()
	return &n, nil
}

// CountUnread counts cached unread notifications of a user.
func (s *SQLiteStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationsRead marks the given notifications as read. Rows that
// are already read keep their original read_at.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE is_read = 0 AND id IN (?)",
		at.UTC(), ids,
	)
	if err != nil {
		return fmt.Errorf("building mark-read query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("marking notifications as read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every cached unread notification of a user
// as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0",
		at.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}

// DeleteNotifications removes cached notifications by id.
func (s *SQLiteStore) DeleteNotifications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM notifications WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting notifications: %w", err)
	}
	return nil
}

// ClearUserNotifications drops the cache of one user. Called on logout so
// the next session starts clean.
func (s *SQLiteStore) ClearUserNotifications(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing notifications of %s: %w", userID, err)
	}
	return nil
}

// GetSetting reads a client-local setting.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes a client-local setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}
