package delivery

import "github.com/nhle/obranotify/internal/model"

// Preferences is the part of the preference store the filter consults.
type Preferences interface {
	Loaded() bool
	ShouldReceive(ctx model.Context, p model.Priority, ch model.Channel) bool
}

// Decision says how an incoming notification is surfaced.
type Decision struct {
	ShowInApp     bool
	PlaySound     bool
	SendEmailHint bool
}

// Filter decides delivery from the user's preferences. It has no side
// effects.
type Filter struct {
	prefs Preferences
}

// NewFilter creates a filter over the given preferences.
func NewFilter(prefs Preferences) *Filter {
	return &Filter{prefs: prefs}
}

// Accept returns the delivery decision for n.
//
// While preferences are still loading the notification is shown in-app
// but stays silent and gets no email hint: a push must never be dropped
// because it raced the preference fetch, and the user must not be startled
// by a sound their settings might forbid. This asymmetry is intentional.
func (f *Filter) Accept(n model.Notification) Decision {
	if f.prefs == nil || !f.prefs.Loaded() {
		return Decision{ShowInApp: true}
	}

	inApp := f.prefs.ShouldReceive(n.Context, n.Priority, model.ChannelInApp)
	return Decision{
		ShowInApp:     inApp,
		PlaySound:     inApp,
		SendEmailHint: f.prefs.ShouldReceive(n.Context, n.Priority, model.ChannelEmail),
	}
}
