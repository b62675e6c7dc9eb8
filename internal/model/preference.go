package model

import (
	"encoding/json"
	"strings"
)

// Preference holds one user's delivery settings for one context.
type Preference struct {
	UserID          string   `json:"userId"`
	Context         Context  `json:"context"`
	InAppEnabled    bool     `json:"inAppEnabled"`
	EmailEnabled    bool     `json:"emailEnabled"`
	MinimumPriority Priority `json:"minimumPriority"`
}

// DefaultPreference returns the system default for a context: in-app on,
// email off, minimum NORMAL. INCIDENTS and SYSTEM also default email on.
func DefaultPreference(userID string, ctx Context) Preference {
	return Preference{
		UserID:          userID,
		Context:         ctx,
		InAppEnabled:    true,
		EmailEnabled:    ctx == ContextIncidents || ctx == ContextSystem,
		MinimumPriority: PriorityNormal,
	}
}

// DefaultPreferences returns the default row for every known context.
func DefaultPreferences(userID string) []Preference {
	prefs := make([]Preference, 0, len(KnownContexts))
	for _, ctx := range KnownContexts {
		prefs = append(prefs, DefaultPreference(userID, ctx))
	}
	return prefs
}

// ChannelEnabled reports whether the given channel is switched on.
func (p Preference) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return p.InAppEnabled
	case ChannelEmail:
		return p.EmailEnabled
	default:
		return false
	}
}

// Allows reports whether a notification of the given priority passes this
// preference on the given channel.
func (p Preference) Allows(priority Priority, ch Channel) bool {
	if !p.ChannelEnabled(ch) {
		return false
	}
	if priority.Rank() == 0 {
		return false
	}
	return priority.AtLeast(p.MinimumPriority)
}

// UnmarshalJSON accepts raw or wrapped context/minimumPriority values.
func (p *Preference) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID          json.RawMessage `json:"userId"`
		Context         json.RawMessage `json:"context"`
		InAppEnabled    *bool           `json:"inAppEnabled"`
		EmailEnabled    *bool           `json:"emailEnabled"`
		MinimumPriority json.RawMessage `json:"minimumPriority"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ParseError{Field: "preference", Reason: err.Error()}
	}

	userID, err := parseIdentifier("userId", raw.UserID)
	if err != nil {
		return err
	}
	ctxValue, err := parseTagged("context", raw.Context)
	if err != nil {
		return err
	}
	if ctxValue == "" {
		return &ParseError{Field: "context", Reason: "missing"}
	}

	out := DefaultPreference(userID, Context(strings.ToUpper(ctxValue)))
	if raw.InAppEnabled != nil {
		out.InAppEnabled = *raw.InAppEnabled
	}
	if raw.EmailEnabled != nil {
		out.EmailEnabled = *raw.EmailEnabled
	}

	minValue, err := parseTagged("minimumPriority", raw.MinimumPriority)
	if err != nil {
		return err
	}
	if minValue != "" {
		prio, perr := ParsePriority(minValue)
		if perr != nil {
			return &ParseError{Field: "minimumPriority", Reason: perr.Error()}
		}
		out.MinimumPriority = prio
	}

	*p = out
	return nil
}
