package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/logging"
	"github.com/nhle/obranotify/internal/model"
)

// MarkAllLimit caps how many unread notifications MarkAllAsRead fetches
// and submits in one pass. Users with more unread items need another pass.
const MarkAllLimit = 1000

const basePath = "/notifications"

// Domain labels attached to failed operations.
const (
	LabelLoad     = "Error al cargar notificaciones"
	LabelMarkRead = "Error al marcar notificación como leída"
	LabelMarkMany = "Error al marcar notificaciones como leídas"
	LabelMarkAll  = "Error al marcar todas las notificaciones como leídas"
	LabelSummary  = "Error al cargar resumen de notificaciones"
	LabelDelete   = "Error al eliminar notificaciones"
	LabelSearch   = "Error al buscar notificaciones"
	LabelStats    = "Error al cargar estadísticas"
)

// OpError is a failed notification operation carrying its display label.
type OpError struct {
	Op    string
	Label string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Filter narrows a notification listing. Zero fields are not sent.
type Filter struct {
	Context    model.Context
	Priority   model.Priority
	Type       string
	UnreadOnly bool
}

func (f Filter) values(q url.Values) {
	if f.Context != "" {
		q.Set("context", string(f.Context))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.UnreadOnly {
		q.Set("isRead", "false")
	}
}

// Page is one page of a listing. HasMore is true when the page came back
// full, so an exactly-full last page reports one more (empty) page.
type Page struct {
	Items   []model.Notification
	Page    int
	Size    int
	HasMore bool
}

// CheckResult is the answer of the check-new polling primitive.
type CheckResult struct {
	HasNew        bool
	Count         int
	Notifications []model.Notification
}

// Stats holds aggregate counters reported by the backend.
type Stats struct {
	Total      int
	Unread     int
	Read       int
	ByContext  map[model.Context]int
	ByPriority map[model.Priority]int
	ByType     map[string]int
}

// Client is the REST notification client.
type Client struct {
	api    *api.Client
	logger *zap.Logger
}

// NewClient creates a notification client over the shared API client.
func NewClient(c *api.Client, logger *zap.Logger) *Client {
	return &Client{api: c, logger: logging.OrNop(logger)}
}

// GetNotifications fetches one page (0-based) of the user's notifications.
func (c *Client) GetNotifications(ctx context.Context, page, size int, f Filter) (*Page, error) {
	if size <= 0 {
		size = 20
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	f.values(q)

	items, err := c.list(ctx, api.WithQuery(basePath, q))
	if err != nil {
		return nil, &OpError{Op: "list", Label: LabelLoad, Err: err}
	}
	return &Page{
		Items:   items,
		Page:    page,
		Size:    size,
		HasMore: len(items) == size,
	}, nil
}

// Search runs a server-side text search.
func (c *Client) Search(ctx context.Context, query string, page, size int) (*Page, error) {
	if size <= 0 {
		size = 20
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	items, err := c.list(ctx, api.WithQuery(basePath+"/search", q))
	if err != nil {
		return nil, &OpError{Op: "search", Label: LabelSearch, Err: err}
	}
	return &Page{Items: items, Page: page, Size: size, HasMore: len(items) == size}, nil
}

// MarkAsRead confirms a single notification as read on the server.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	if err := c.markRead(ctx, []string{id}); err != nil {
		return &OpError{Op: "mark-read", Label: LabelMarkRead, Err: err}
	}
	return nil
}

// MarkMultipleAsRead confirms several notifications in one round trip. An
// empty list makes no call.
func (c *Client) MarkMultipleAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.markRead(ctx, ids); err != nil {
		return &OpError{Op: "mark-read", Label: LabelMarkMany, Err: err}
	}
	return nil
}

// MarkAllAsRead fetches up to MarkAllLimit unread notifications and marks
// them in one bulk call. It returns the ids that were marked; with nothing
// unread it makes no write call.
func (c *Client) MarkAllAsRead(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("page", "0")
	q.Set("size", strconv.Itoa(MarkAllLimit))
	Filter{UnreadOnly: true}.values(q)

	items, err := c.list(ctx, api.WithQuery(basePath, q))
	if err != nil {
		return nil, &OpError{Op: "mark-all", Label: LabelMarkAll, Err: err}
	}

	ids := make([]string, 0, len(items))
	for _, n := range items {
		if !n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(items) == MarkAllLimit {
		c.logger.Warn("mark all capped, more unread notifications may remain",
			zap.Int("limit", MarkAllLimit))
	}

	if err := c.markRead(ctx, ids); err != nil {
		return nil, &OpError{Op: "mark-all", Label: LabelMarkAll, Err: err}
	}
	return ids, nil
}

// Delete removes notifications on the server.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string][]string{"notificationIds": ids}
	if err := c.api.Delete(ctx, basePath, body, nil); err != nil {
		return &OpError{Op: "delete", Label: LabelDelete, Err: err}
	}
	return nil
}

// GetSummary fetches the authoritative unread summary.
func (c *Client) GetSummary(ctx context.Context) (model.Summary, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, basePath+"/summary", &raw); err != nil {
		return model.Summary{}, &OpError{Op: "summary", Label: LabelSummary, Err: err}
	}
	s := model.NewSummary()
	if err := json.Unmarshal(api.DecodeObject(raw), &s); err != nil {
		return model.Summary{}, &OpError{Op: "summary", Label: LabelSummary, Err: err}
	}
	return s, nil
}

// GetStats fetches aggregate counters.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, basePath+"/stats", &raw); err != nil {
		return nil, &OpError{Op: "stats", Label: LabelStats, Err: err}
	}
	stats, err := decodeStats(api.DecodeObject(raw))
	if err != nil {
		return nil, &OpError{Op: "stats", Label: LabelStats, Err: err}
	}
	return stats, nil
}

// CheckForNew asks whether notifications arrived after since. It never
// fails: any error is logged and reported as "nothing new", since callers
// run it in a best-effort poll loop.
func (c *Client) CheckForNew(ctx context.Context, since time.Time) CheckResult {
	empty := CheckResult{Notifications: []model.Notification{}}

	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	var raw json.RawMessage
	if err := c.api.Get(ctx, api.WithQuery(basePath+"/check-new", q), &raw); err != nil {
		c.logger.Warn("check for new notifications failed", zap.Error(err))
		return empty
	}

	var payload struct {
		HasNew        bool              `json:"hasNew"`
		Count         int               `json:"count"`
		Notifications []json.RawMessage `json:"notifications"`
	}
	if err := json.Unmarshal(api.DecodeObject(raw), &payload); err != nil {
		c.logger.Warn("decoding check-new response failed", zap.Error(err))
		return empty
	}

	items, err := model.ParseNotificationList(payload.Notifications)
	if err != nil {
		c.logger.Warn("skipped malformed notifications", zap.Error(err))
	}
	count := payload.Count
	if count < len(items) {
		count = len(items)
	}
	return CheckResult{
		HasNew:        payload.HasNew || count > 0,
		Count:         count,
		Notifications: items,
	}
}

func (c *Client) markRead(ctx context.Context, ids []string) error {
	body := map[string][]string{"notificationIds": ids}
	return c.api.Post(ctx, basePath+"/mark-read", body, nil)
}

// list fetches and parses a listing. Malformed records are logged and
// skipped; a response that is not a list at all is an error.
func (c *Client) list(ctx context.Context, path string) ([]model.Notification, error) {
	var raw json.RawMessage
	if err := c.api.Get(ctx, path, &raw); err != nil {
		return nil, err
	}
	records, err := api.DecodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	items, err := model.ParseNotificationList(records)
	if err != nil {
		c.logger.Warn("skipped malformed notifications", zap.String("path", path), zap.Error(err))
	}
	return items, nil
}

func decodeStats(data []byte) (*Stats, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	s := &Stats{
		ByContext:  make(map[model.Context]int),
		ByPriority: make(map[model.Priority]int),
		ByType:     make(map[string]int),
	}
	pickInt := func(keys ...string) int {
		for _, k := range keys {
			var n int
			if v, ok := raw[k]; ok && json.Unmarshal(v, &n) == nil {
				return n
			}
		}
		return 0
	}
	s.Total = pickInt("total", "totalNotifications")
	s.Unread = pickInt("unread", "unreadCount", "unreadNotifications")
	s.Read = pickInt("read", "readCount", "readNotifications")
	if s.Read == 0 && s.Total >= s.Unread {
		s.Read = s.Total - s.Unread
	}

	counts := func(key string) map[string]int {
		var m map[string]int
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &m); err != nil {
				return nil
			}
		}
		return m
	}
	for k, v := range counts("byContext") {
		s.ByContext[model.Context(strings.ToUpper(k))] = v
	}
	for k, v := range counts("byPriority") {
		s.ByPriority[model.Priority(strings.ToUpper(k))] = v
	}
	for k, v := range counts("byType") {
		s.ByType[k] = v
	}
	return s, nil
}

// IsLabelled reports whether err carries a domain label and returns it.
func IsLabelled(err error) (string, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Label, true
	}
	return "", false
}
