package preference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/obranotify/internal/model"
)

// ErrUnknownRole is returned when no preset exists for a role.
var ErrUnknownRole = errors.New("unknown role")

// Preset is a role's delivery profile. Contexts outside the set have both
// channels switched off.
type Preset struct {
	Contexts []model.Context
	InApp    bool
	Email    bool
	Minimum  model.Priority
}

// Presets maps role names to their profile.
var Presets = map[string]Preset{
	"Admin": {
		Contexts: model.KnownContexts,
		InApp:    true,
		Email:    true,
		Minimum:  model.PriorityLow,
	},
	"Manager": {
		Contexts: []model.Context{
			model.ContextProjects,
			model.ContextPersonnel,
			model.ContextMaterials,
			model.ContextIncidents,
			model.ContextSystem,
		},
		InApp:   true,
		Email:   true,
		Minimum: model.PriorityNormal,
	},
	"Supervisor": {
		Contexts: []model.Context{
			model.ContextProjects,
			model.ContextMachinery,
			model.ContextIncidents,
			model.ContextSystem,
		},
		InApp:   true,
		Email:   false,
		Minimum: model.PriorityHigh,
	},
}

// PresetFor looks up a role case-insensitively.
func PresetFor(role string) (Preset, error) {
	for name, p := range Presets {
		if strings.EqualFold(name, strings.TrimSpace(role)) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

func (p Preset) includes(ctx model.Context) bool {
	for _, c := range p.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// ApplyPreset returns the preference set the preset prescribes for every
// context in prefs. The result depends only on the preset and the set of
// contexts, never on the current flag values.
func ApplyPreset(prefs []model.Preference, preset Preset) []model.Preference {
	out := make([]model.Preference, len(prefs))
	for i, p := range prefs {
		enabled := preset.includes(p.Context)
		out[i] = model.Preference{
			UserID:          p.UserID,
			Context:         p.Context,
			InAppEnabled:    enabled && preset.InApp,
			EmailEnabled:    enabled && preset.Email,
			MinimumPriority: preset.Minimum,
		}
	}
	return out
}

// EnableAll switches both channels on for every context.
func EnableAll(prefs []model.Preference) []model.Preference {
	return setChannels(prefs, true)
}

// DisableAll switches both channels off for every context.
func DisableAll(prefs []model.Preference) []model.Preference {
	return setChannels(prefs, false)
}

func setChannels(prefs []model.Preference, on bool) []model.Preference {
	out := make([]model.Preference, len(prefs))
	for i, p := range prefs {
		p.InAppEnabled = on
		p.EmailEnabled = on
		out[i] = p
	}
	return out
}

// Defaults returns the system default for every context in prefs.
func Defaults(prefs []model.Preference) []model.Preference {
	out := make([]model.Preference, len(prefs))
	for i, p := range prefs {
		out[i] = model.DefaultPreference(p.UserID, p.Context)
	}
	return out
}
