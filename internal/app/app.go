package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/keys"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/session"
	"github.com/nhle/obranotify/internal/theme"
	"github.com/nhle/obranotify/internal/ui"
	"github.com/nhle/obranotify/internal/ui/command"
	"github.com/nhle/obranotify/internal/ui/detail"
	helpview "github.com/nhle/obranotify/internal/ui/help"
	"github.com/nhle/obranotify/internal/ui/notiflist"
	"github.com/nhle/obranotify/internal/ui/prefs"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
	ViewPrefs
)

// sessionUpdateMsg carries one session update into the program. ok is
// false once the session has closed its update stream.
type sessionUpdateMsg struct {
	update session.Update
	ok     bool
}

// actionDoneMsg reports the outcome of a user action.
type actionDoneMsg struct {
	info string
	err  error
}

// prefsReadyMsg carries the values the preference form starts from.
type prefsReadyMsg struct {
	prefs   []model.Preference
	enabled bool
	volume  float64
}

// Model is the root Bubble Tea model. It routes between views and
// renders the session's summary and connection state in the header.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	sess         *session.Session
	keys         *keys.KeyMap
	list         notiflist.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	prefsView    prefs.Model
	spinner      spinner.Model
	summary      model.Summary
	conn         realtime.State
	gaveUp       bool
	toast        *model.Notification
	status       string
	statusErr    bool
	ready        bool
}

// New creates the root model over a started session.
func New(s *session.Session) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return Model{
		currentView: ViewList,
		sess:        s,
		keys:        k,
		list:        notiflist.New(s, k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24, commandNames()),
		prefsView:   prefs.New(80, 24),
		spinner:     sp,
		summary:     s.Summary.Snapshot(),
		conn:        s.Transport.State(),
	}
}

// Init loads the list and starts listening for session updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		waitForUpdate(m.sess.Updates()),
		m.spinner.Tick,
	)
}

// waitForUpdate blocks on the next session update.
func waitForUpdate(ch <-chan session.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		return sessionUpdateMsg{update: u, ok: ok}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.list.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.prefsView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionUpdateMsg:
		if !msg.ok {
			return m, nil
		}
		cmd := m.applyUpdate(msg.update)
		return m, tea.Batch(cmd, waitForUpdate(m.sess.Updates()))

	case actionDoneMsg:
		m.status, m.statusErr = msg.info, false
		if msg.err != nil {
			m.status, m.statusErr = errorLabel(msg.err), true
		}
		return m, m.list.Load()

	case reconnectedMsg:
		if msg.err != nil {
			m.status, m.statusErr = reconnectLabel(msg.err), true
			return m, nil
		}
		m.gaveUp = false
		m.status, m.statusErr = "Conexión restablecida", false
		return m, m.list.Load()

	case notiflist.SelectedMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.Notification)
		follow := m.follow(msg.Notification.RelatedProjectID)
		if !msg.Notification.IsRead {
			return m, tea.Batch(follow, m.markRead(msg.Notification.ID))
		}
		return m, follow

	case notiflist.ActionMsg:
		return m, m.runAction(msg.Action, msg.IDs)

	case detail.ActionMsg:
		if msg.Action == notiflist.ActionDelete {
			m.currentView = ViewList
			return m, tea.Batch(m.follow(""), m.runAction(msg.Action, []string{msg.ID}))
		}
		return m, m.runAction(msg.Action, []string{msg.ID})

	case detail.BackMsg:
		m.currentView = ViewList
		return m, m.follow("")

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case prefsReadyMsg:
		m.previousView = m.currentView
		m.currentView = ViewPrefs
		cmd := m.prefsView.Start(msg.prefs, msg.enabled, msg.volume)
		return m, cmd

	case prefs.SavedMsg:
		m.currentView = ViewList
		return m, m.savePrefs(msg)

	case prefs.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		// A keypress dismisses the last outcome.
		m.status, m.statusErr = "", false
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work outside text inputs. It
// reports false when the key belongs to the active view.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch m.currentView {
	case ViewPrefs, ViewCommand:
		if msg.String() == "esc" && m.currentView == ViewCommand {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	case ViewList:
		if m.list.Searching() {
			return nil, false
		}
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewList {
			return tea.Quit, true
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}

	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case "r":
		if m.currentView == ViewList {
			if m.gaveUp {
				m.status = "Reconectando..."
				return m.reconnect(), true
			}
			return m.refresh(), true
		}

	case "p":
		if m.currentView == ViewList {
			return m.loadPrefs(), true
		}

	case "s":
		if m.currentView == ViewList {
			return m.toggleSound(), true
		}
	}
	return nil, false
}

// applyUpdate folds a session update into the view state.
func (m *Model) applyUpdate(u session.Update) tea.Cmd {
	m.summary = u.Summary

	switch u.Kind {
	case session.UpdateConnection:
		m.conn = u.State
		if u.State == realtime.StateConnected {
			m.gaveUp = false
		}
		return nil

	case session.UpdateGaveUp:
		m.conn = realtime.StateDisconnected
		m.gaveUp = true
		return nil

	case session.UpdateNotification:
		if u.Notification != nil && u.Decision.ShowInApp {
			m.toast = u.Notification
		}
		return m.list.Load()

	case session.UpdateRead, session.UpdateDeleted:
		if n, ok := m.detail.Notification(); ok && contains(u.IDs, n.ID) && u.Kind == session.UpdateRead {
			n.IsRead = true
			m.detail.SetNotification(n)
		}
		if m.toast != nil && contains(u.IDs, m.toast.ID) {
			m.toast = nil
		}
		return m.list.Load()
	}
	return nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewPrefs:
		m.prefsView, cmd = m.prefsView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Cargando..."
	}

	header := m.layout.RenderHeader(
		"Notificaciones",
		ui.RenderBadge(m.summary),
		ui.ConnectionLabel(m.conn, m.gaveUp, m.spinner.View()),
	)
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.list.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewPrefs:
		return m.prefsView.View()
	default:
		return ""
	}
}

// statusLine shows the last action outcome, then the latest shown
// notification, then key hints.
func (m Model) statusLine() string {
	if m.status != "" && m.currentView == ViewList {
		if m.statusErr {
			return theme.ErrorStyle.Render(m.status)
		}
		return m.status
	}
	if m.toast != nil && m.currentView == ViewList {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			theme.PriorityStyle(string(m.toast.Priority)).Render(m.toast.Priority.Label()),
			" ",
			m.toast.Title,
		)
	}
	return m.keyHints()
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? cerrar ayuda | esc volver"
	case ViewCommand:
		return "enter ejecutar | esc volver"
	case ViewDetail:
		return "esc volver | m marcar leída | d eliminar | j/k desplazar"
	case ViewPrefs:
		return "enter siguiente | esc cancelar"
	default:
		return fmt.Sprintf("%s | q salir | ? ayuda | / buscar | tab contexto | u no leídas | p preferencias",
			m.list.FilterLabel())
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// background is the context for user actions; the session cancels its
// own work on Close.
func background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), actionTimeout)
}
