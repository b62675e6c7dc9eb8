package model

import (
	"encoding/json"
	"strings"
)

// RecentLimit bounds the number of notifications kept in Summary.Recent.
const RecentLimit = 5

// Summary is the denormalized unread read-model.
type Summary struct {
	UnreadCount int              `json:"unreadCount"`
	ByContext   map[Context]int  `json:"byContext"`
	ByPriority  map[Priority]int `json:"byPriority"`
	Recent      []Notification   `json:"recentNotifications"`
}

// NewSummary returns an empty summary with initialised maps.
func NewSummary() Summary {
	return Summary{
		ByContext:  make(map[Context]int),
		ByPriority: make(map[Priority]int),
	}
}

// HasCritical reports whether any unread notification is CRITICAL.
func (s Summary) HasCritical() bool {
	return s.ByPriority[PriorityCritical] > 0
}

// HasHigh reports whether any unread notification is HIGH.
func (s Summary) HasHigh() bool {
	return s.ByPriority[PriorityHigh] > 0
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Summary) Clone() Summary {
	out := NewSummary()
	out.UnreadCount = s.UnreadCount
	for k, v := range s.ByContext {
		out.ByContext[k] = v
	}
	for k, v := range s.ByPriority {
		out.ByPriority[k] = v
	}
	out.Recent = append([]Notification(nil), s.Recent...)
	return out
}

// UnmarshalJSON normalizes map keys to upper case and accepts the recent
// list under either "recentNotifications" or "recent".
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw struct {
		UnreadCount         int               `json:"unreadCount"`
		ByContext           map[string]int    `json:"byContext"`
		ByPriority          map[string]int    `json:"byPriority"`
		RecentNotifications []json.RawMessage `json:"recentNotifications"`
		Recent              []json.RawMessage `json:"recent"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ParseError{Field: "summary", Reason: err.Error()}
	}

	out := NewSummary()
	out.UnreadCount = raw.UnreadCount
	for k, v := range raw.ByContext {
		out.ByContext[Context(strings.ToUpper(k))] = v
	}
	for k, v := range raw.ByPriority {
		out.ByPriority[Priority(strings.ToUpper(k))] = v
	}

	items := raw.RecentNotifications
	if len(items) == 0 {
		items = raw.Recent
	}
	// A malformed recent item must not discard the counts.
	recent, _ := ParseNotificationList(items)
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	out.Recent = recent

	*s = out
	return nil
}
