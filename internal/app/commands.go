package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/notification"
	"github.com/nhle/obranotify/internal/preference"
	"github.com/nhle/obranotify/internal/sound"
	"github.com/nhle/obranotify/internal/sync"
	"github.com/nhle/obranotify/internal/ui/notiflist"
	"github.com/nhle/obranotify/internal/ui/prefs"
)

const actionTimeout = 15 * time.Second

// errorLabel returns the user-facing text for a failed action.
func errorLabel(err error) string {
	if label, ok := notification.IsLabelled(err); ok {
		return label
	}
	var prefErr *preference.OpError
	if errors.As(err, &prefErr) {
		return prefErr.Label
	}
	if errors.Is(err, sync.ErrRateLimited) {
		return "Espere un momento antes de volver a actualizar"
	}
	return err.Error()
}

func (m Model) markRead(id string) tea.Cmd {
	return m.runAction(notiflist.ActionMarkRead, []string{id})
}

// runAction performs a list or detail action against the session.
func (m Model) runAction(action string, ids []string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := background()
		defer cancel()

		switch action {
		case notiflist.ActionMarkRead:
			if err := s.MarkMultipleAsRead(ctx, ids); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{}
		case notiflist.ActionMarkAll:
			if err := s.MarkAllAsRead(ctx); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{info: "Todas las notificaciones marcadas como leídas"}
		case notiflist.ActionDelete:
			if err := s.Delete(ctx, ids); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{info: "Notificación eliminada"}
		default:
			return actionDoneMsg{err: fmt.Errorf("acción desconocida %q", action)}
		}
	}
}

// follow subscribes to live events of the project on screen.
func (m Model) follow(projectID string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		s.FollowProject(projectID)
		return nil
	}
}

func (m Model) refresh() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		if err := s.RefreshNow(); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{info: "Buscando notificaciones nuevas..."}
	}
}

// reconnectedMsg reports a manual reconnect after the hub gave up.
type reconnectedMsg struct{ err error }

func (m Model) reconnect() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := background()
		defer cancel()
		return reconnectedMsg{err: s.Reconnect(ctx)}
	}
}

// reconnectLabel is the status text for a failed manual reconnect.
func reconnectLabel(err error) string {
	if errors.Is(err, credential.ErrNoSession) || api.IsAuthError(err) {
		return "Sesión expirada: ejecute obranotify login"
	}
	return "No se pudo reconectar, pruebe de nuevo (r)"
}

func (m Model) loadPrefs() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := background()
		defer cancel()
		enabled, volume := s.SoundSettings.Current(ctx)
		return prefsReadyMsg{
			prefs:   s.Preferences.Preferences(),
			enabled: enabled,
			volume:  volume,
		}
	}
}

// savePrefs persists a submitted form. A chosen role preset replaces the
// per-context edits.
func (m Model) savePrefs(saved prefs.SavedMsg) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := background()
		defer cancel()

		if saved.Role != "" {
			if err := s.Preferences.ApplyRoleBasedSettings(ctx, saved.Role); err != nil {
				return actionDoneMsg{err: err}
			}
		} else {
			changed := prefs.Changed(s.Preferences.Preferences(), saved.Preferences)
			if err := s.Preferences.UpdateMany(ctx, changed); err != nil {
				return actionDoneMsg{err: err}
			}
		}

		if err := s.SoundSettings.SetEnabled(ctx, saved.SoundEnabled); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := s.SoundSettings.SetVolume(ctx, saved.Volume); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{info: "Preferencias guardadas"}
	}
}

func (m Model) toggleSound() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := background()
		defer cancel()
		on := !s.SoundSettings.Enabled(ctx)
		if err := s.SoundSettings.SetEnabled(ctx, on); err != nil {
			return actionDoneMsg{err: err}
		}
		if on {
			return actionDoneMsg{info: "Sonidos activados"}
		}
		return actionDoneMsg{info: "Sonidos desactivados"}
	}
}

// paletteCommand is a parsed command palette entry.
type paletteCommand struct {
	name string
	arg  string
}

// commandAliases maps accepted spellings to canonical command names.
var commandAliases = map[string]string{
	"refresh":      "refresh",
	"actualizar":   "refresh",
	"reconnect":    "reconnect",
	"reconectar":   "reconnect",
	"read-all":     "read-all",
	"leer-todo":    "read-all",
	"prefs":        "prefs",
	"preferencias": "prefs",
	"reset":        "reset",
	"restablecer":  "reset",
	"enable-all":   "enable-all",
	"activar":      "enable-all",
	"disable-all":  "disable-all",
	"desactivar":   "disable-all",
	"role":         "role",
	"rol":          "role",
	"sound":        "sound",
	"sonido":       "sound",
	"volume":       "volume",
	"volumen":      "volume",
	"quit":         "quit",
	"salir":        "quit",
	"q":            "quit",
}

// commandNames lists every accepted spelling for palette completion.
func commandNames() []string {
	names := make([]string, 0, len(commandAliases))
	for name := range commandAliases {
		if len(name) > 1 {
			names = append(names, name)
		}
	}
	return names
}

// parseCommand splits palette input into a canonical command and its
// argument. Unknown commands return ok false.
func parseCommand(input string) (paletteCommand, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(input)))
	if len(fields) == 0 {
		return paletteCommand{}, false
	}
	name, ok := commandAliases[fields[0]]
	if !ok {
		return paletteCommand{}, false
	}
	return paletteCommand{name: name, arg: strings.Join(fields[1:], " ")}, true
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(input string) (tea.Model, tea.Cmd) {
	c, ok := parseCommand(input)
	if !ok {
		// Keep the palette open so the command can be fixed.
		m.currentView = ViewCommand
		m.commandView.SetError(fmt.Sprintf("Comando desconocido: %s", input))
		cmd := m.commandView.Focus()
		return m, cmd
	}

	s := m.sess
	bulk := func(info string, op func(ctx context.Context) error) tea.Cmd {
		return func() tea.Msg {
			ctx, cancel := background()
			defer cancel()
			if err := op(ctx); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{info: info}
		}
	}

	switch c.name {
	case "refresh":
		if m.gaveUp {
			return m, m.reconnect()
		}
		return m, m.refresh()
	case "reconnect":
		return m, m.reconnect()
	case "read-all":
		return m, m.runAction(notiflist.ActionMarkAll, nil)
	case "prefs":
		return m, m.loadPrefs()
	case "reset":
		return m, bulk("Preferencias restablecidas", func(ctx context.Context) error {
			return s.Preferences.ResetToDefaults(ctx)
		})
	case "enable-all":
		return m, bulk("Todas las notificaciones activadas", func(ctx context.Context) error {
			return s.Preferences.EnableAll(ctx)
		})
	case "disable-all":
		return m, bulk("Todas las notificaciones desactivadas", func(ctx context.Context) error {
			return s.Preferences.DisableAll(ctx)
		})
	case "role":
		role := c.arg
		if role == "" {
			role = s.Claims().Role
		}
		return m, bulk("Perfil aplicado: "+role, func(ctx context.Context) error {
			return s.Preferences.ApplyRoleBasedSettings(ctx, role)
		})
	case "sound":
		switch c.arg {
		case "on", "si", "sí":
			return m, bulk("Sonidos activados", func(ctx context.Context) error { return s.SoundSettings.SetEnabled(ctx, true) })
		case "off", "no":
			return m, bulk("Sonidos desactivados", func(ctx context.Context) error { return s.SoundSettings.SetEnabled(ctx, false) })
		}
		return m, m.toggleSound()
	case "volume":
		v, err := strconv.ParseFloat(c.arg, 64)
		if err != nil {
			m.status, m.statusErr = "Volumen inválido: use un valor entre 0 y 1", true
			return m, nil
		}
		v = sound.Clamp(v)
		return m, bulk(fmt.Sprintf("Volumen: %d%%", int(v*100)), func(ctx context.Context) error {
			return s.SoundSettings.SetVolume(ctx, v)
		})
	case "quit":
		return m, tea.Quit
	}
	return m, nil
}
