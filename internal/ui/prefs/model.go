package prefs

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/preference"
	"github.com/nhle/obranotify/internal/theme"
)

// SavedMsg is dispatched when the user submits the form. Role is empty
// when no preset was chosen; otherwise the preset replaces Preferences.
type SavedMsg struct {
	Preferences  []model.Preference
	Role         string
	SoundEnabled bool
	Volume       float64
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// contextBinding holds one context's editable values.
type contextBinding struct {
	base    model.Preference
	inApp   bool
	email   bool
	minimum model.Priority
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	role     string
	sound    bool
	volume   float64
	contexts []*contextBinding
}

// Model is the Bubble Tea model for the preference editor.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new preference form model.
func New(width, height int) Model {
	return Model{fb: &formBindings{}, width: width, height: height}
}

// Start initializes the form with the current preferences and sound
// settings.
func (m *Model) Start(current []model.Preference, soundEnabled bool, volume float64) tea.Cmd {
	m.fb = &formBindings{
		sound:  soundEnabled,
		volume: nearestVolume(volume),
	}
	for _, p := range current {
		m.fb.contexts = append(m.fb.contexts, &contextBinding{
			base:    p,
			inApp:   p.InAppEnabled,
			email:   p.EmailEnabled,
			minimum: p.MinimumPriority,
		})
	}
	m.form = m.build()
	return m.form.Init()
}

func (m *Model) build() *huh.Form {
	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Perfil por rol").
				Description("Reemplaza todas las preferencias").
				Options(roleOptions()...).
				Value(&m.fb.role),
			huh.NewConfirm().
				Title("Sonidos de notificación").
				Affirmative("Sí").
				Negative("No").
				Value(&m.fb.sound),
			huh.NewSelect[float64]().
				Title("Volumen").
				Options(volumeOptions()...).
				Value(&m.fb.volume),
		),
	}

	for _, cb := range m.fb.contexts {
		groups = append(groups, huh.NewGroup(
			huh.NewConfirm().
				Title(cb.base.Context.Label()+": en la aplicación").
				Affirmative("Sí").
				Negative("No").
				Value(&cb.inApp),
			huh.NewConfirm().
				Title(cb.base.Context.Label()+": por correo").
				Affirmative("Sí").
				Negative("No").
				Value(&cb.email),
			huh.NewSelect[model.Priority]().
				Title(cb.base.Context.Label()+": prioridad mínima").
				Options(priorityOptions()...).
				Value(&cb.minimum),
		))
	}

	return huh.NewForm(groups...).WithWidth(max(m.width-4, 20))
}

func roleOptions() []huh.Option[string] {
	roles := make([]string, 0, len(preference.Presets))
	for name := range preference.Presets {
		roles = append(roles, name)
	}
	sort.Strings(roles)

	opts := []huh.Option[string]{huh.NewOption("Mantener preferencias", "")}
	for _, r := range roles {
		opts = append(opts, huh.NewOption(r, r))
	}
	return opts
}

var volumeSteps = []float64{0, 0.25, 0.5, 0.75, 1}

func volumeOptions() []huh.Option[float64] {
	opts := make([]huh.Option[float64], 0, len(volumeSteps))
	for _, v := range volumeSteps {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%d%%", int(v*100)), v))
	}
	return opts
}

// nearestVolume snaps v to the closest selectable step.
func nearestVolume(v float64) float64 {
	best := volumeSteps[0]
	for _, s := range volumeSteps {
		if abs(s-v) < abs(best-v) {
			best = s
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func priorityOptions() []huh.Option[model.Priority] {
	ps := []model.Priority{
		model.PriorityLow,
		model.PriorityNormal,
		model.PriorityHigh,
		model.PriorityCritical,
	}
	opts := make([]huh.Option[model.Priority], 0, len(ps))
	for _, p := range ps {
		opts = append(opts, huh.NewOption(p.Label(), p))
	}
	return opts
}

// Update handles messages for the preference form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		saved := m.result()
		m.form = nil
		return m, func() tea.Msg { return saved }
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) result() SavedMsg {
	out := SavedMsg{
		Role:         m.fb.role,
		SoundEnabled: m.fb.sound,
		Volume:       m.fb.volume,
	}
	for _, cb := range m.fb.contexts {
		p := cb.base
		p.InAppEnabled = cb.inApp
		p.EmailEnabled = cb.email
		p.MinimumPriority = cb.minimum
		out.Preferences = append(out.Preferences, p)
	}
	return out
}

// Changed returns the preferences in next that differ from the matching
// context in prev.
func Changed(prev, next []model.Preference) []model.Preference {
	old := make(map[model.Context]model.Preference, len(prev))
	for _, p := range prev {
		old[p.Context] = p
	}
	var out []model.Preference
	for _, p := range next {
		if o, ok := old[p.Context]; !ok || o != p {
			out = append(out, p)
		}
	}
	return out
}

// View renders the preference form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Preferencias de notificación") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
