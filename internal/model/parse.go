package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/obranotify/internal/crossref"
)

// ParseError reports a payload field whose shape or value could not be
// interpreted.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return "parsing notification: " + e.Reason
	}
	return fmt.Sprintf("parsing notification field %q: %s", e.Field, e.Reason)
}

// rawNotification mirrors the server payload before normalization. Fields
// that the server may send either raw or wrapped ({"value": ...}) are kept
// as json.RawMessage and resolved by parseTagged.
type rawNotification struct {
	ID                json.RawMessage `json:"id"`
	UserID            json.RawMessage `json:"userId"`
	Type              json.RawMessage `json:"type"`
	Context           json.RawMessage `json:"context"`
	Priority          json.RawMessage `json:"priority"`
	Title             *string         `json:"title"`
	Message           *string         `json:"message"`
	ActionURL         *string         `json:"actionUrl"`
	ActionText        *string         `json:"actionText"`
	Scope             json.RawMessage `json:"scope"`
	TargetRole        json.RawMessage `json:"targetRole"`
	RelatedProjectID  json.RawMessage `json:"relatedProjectId"`
	RelatedEntityID   json.RawMessage `json:"relatedEntityId"`
	RelatedEntityType json.RawMessage `json:"relatedEntityType"`
	IsRead            *bool           `json:"isRead"`
	Status            json.RawMessage `json:"status"`
	ReadAt            json.RawMessage `json:"readAt"`
	CreatedAt         json.RawMessage `json:"createdAt"`
	UpdatedAt         json.RawMessage `json:"updatedAt"`
}

// ParseNotification normalizes a single server payload into a Notification.
// Enum-like fields may arrive as raw strings or wrapped value objects;
// missing values fall back to NORMAL priority, SYSTEM context, USER scope
// and unread. Any other shape yields a *ParseError.
func ParseNotification(data []byte) (Notification, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Notification{}, &ParseError{Reason: "payload is not an object"}
	}

	var raw rawNotification
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Notification{}, &ParseError{Reason: err.Error()}
	}

	var n Notification
	var err error

	if n.ID, err = parseIdentifier("id", raw.ID); err != nil {
		return Notification{}, err
	}
	if n.UserID, err = parseIdentifier("userId", raw.UserID); err != nil {
		return Notification{}, err
	}
	if n.Type, err = parseTagged("type", raw.Type); err != nil {
		return Notification{}, err
	}

	ctxValue, err := parseTagged("context", raw.Context)
	if err != nil {
		return Notification{}, err
	}
	n.Context = ContextSystem
	if ctxValue != "" {
		n.Context = Context(strings.ToUpper(ctxValue))
	}

	prioValue, err := parseTagged("priority", raw.Priority)
	if err != nil {
		return Notification{}, err
	}
	n.Priority = PriorityNormal
	if prioValue != "" {
		p, perr := ParsePriority(prioValue)
		if perr != nil {
			return Notification{}, &ParseError{Field: "priority", Reason: perr.Error()}
		}
		n.Priority = p
	}

	scopeValue, err := parseTagged("scope", raw.Scope)
	if err != nil {
		return Notification{}, err
	}
	n.Scope = ScopeUser
	if strings.EqualFold(scopeValue, string(ScopeRole)) {
		n.Scope = ScopeRole
	}
	if n.TargetRole, err = parseTagged("targetRole", raw.TargetRole); err != nil {
		return Notification{}, err
	}

	n.Title = deref(raw.Title)
	n.Message = deref(raw.Message)
	n.ActionURL = deref(raw.ActionURL)
	n.ActionText = deref(raw.ActionText)

	if n.RelatedProjectID, err = parseIdentifier("relatedProjectId", raw.RelatedProjectID); err != nil {
		return Notification{}, err
	}
	if n.RelatedEntityID, err = parseIdentifier("relatedEntityId", raw.RelatedEntityID); err != nil {
		return Notification{}, err
	}
	if n.RelatedEntityType, err = parseTagged("relatedEntityType", raw.RelatedEntityType); err != nil {
		return Notification{}, err
	}
	fillFromActionURL(&n)

	if n.CreatedAt, err = parseTimestamp("createdAt", raw.CreatedAt); err != nil {
		return Notification{}, err
	}
	if n.UpdatedAt, err = parseTimestamp("updatedAt", raw.UpdatedAt); err != nil {
		return Notification{}, err
	}
	readAt, err := parseTimestamp("readAt", raw.ReadAt)
	if err != nil {
		return Notification{}, err
	}

	statusValue, err := parseTagged("status", raw.Status)
	if err != nil {
		return Notification{}, err
	}
	switch {
	case raw.IsRead != nil:
		n.IsRead = *raw.IsRead
	case statusValue != "":
		n.IsRead = strings.EqualFold(statusValue, "READ")
	}

	if n.IsRead {
		switch {
		case !readAt.IsZero():
			n.ReadAt = &readAt
		case !n.UpdatedAt.IsZero():
			t := n.UpdatedAt
			n.ReadAt = &t
		default:
			t := n.CreatedAt
			n.ReadAt = &t
		}
	}

	return n, nil
}

// ParseNotificationList parses every element of a list payload. Records that
// fail to parse are skipped; their errors are joined into the returned error
// so callers can log them without losing the rest of the page.
func ParseNotificationList(items []json.RawMessage) ([]Notification, error) {
	out := make([]Notification, 0, len(items))
	var errs []error
	for i, item := range items {
		n, err := ParseNotification(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}

// UnmarshalJSON routes standard JSON decoding through ParseNotification.
func (n *Notification) UnmarshalJSON(data []byte) error {
	parsed, err := ParseNotification(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// parseTagged resolves a value that may be a raw string, a wrapped object
// ({"value": "..."} or {"name": "..."}), or absent.
func parseTagged(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &ParseError{Field: field, Reason: err.Error()}
		}
		return strings.TrimSpace(s), nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", &ParseError{Field: field, Reason: err.Error()}
		}
		for _, key := range []string{"value", "name", "code"} {
			inner, ok := obj[key]
			if !ok {
				continue
			}
			inner = bytes.TrimSpace(inner)
			if len(inner) > 0 && inner[0] == '{' {
				return "", &ParseError{Field: field, Reason: "nested wrapper"}
			}
			return parseTagged(field, inner)
		}
		return "", &ParseError{Field: field, Reason: "wrapped value without value/name"}

	default:
		return "", &ParseError{Field: field, Reason: "expected string or wrapped value"}
	}
}

// parseIdentifier accepts a JSON string or number.
func parseIdentifier(field string, raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &ParseError{Field: field, Reason: err.Error()}
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", &ParseError{Field: field, Reason: "expected string or number"}
	}
	return num.String(), nil
}

// timestampLayouts covers zoned and zone-less ISO-8601 forms sent by the
// backend.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts ISO-8601 strings or epoch milliseconds.
func parseTimestamp(field string, raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, &ParseError{Field: field, Reason: "expected timestamp"}
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, &ParseError{Field: field, Reason: err.Error()}
	}
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Field: field, Reason: fmt.Sprintf("unrecognised timestamp %q", s)}
}

// fillFromActionURL derives missing correlation ids from the deep link.
func fillFromActionURL(n *Notification) {
	if n.ActionURL == "" {
		return
	}
	ref := crossref.ParseActionURL(n.ActionURL)
	if n.RelatedProjectID == "" {
		n.RelatedProjectID = ref.ProjectID
	}
	if n.RelatedEntityID == "" && ref.EntityID != "" {
		n.RelatedEntityID = ref.EntityID
		if n.RelatedEntityType == "" {
			n.RelatedEntityType = ref.EntityType
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
