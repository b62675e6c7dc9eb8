package notiflist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/keys"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/store"
	"github.com/nhle/obranotify/internal/theme"
)

// PageSize is how many cached notifications the list loads at once.
const PageSize = 200

// Source provides the notifications shown by the list.
type Source interface {
	Cached(ctx context.Context, f store.NotificationFilter) ([]model.Notification, error)
	Search(ctx context.Context, query string) ([]model.Notification, error)
}

// LoadedMsg is sent when notifications have been loaded.
type LoadedMsg struct {
	Items []model.Notification
	Err   error
}

// SelectedMsg is sent when a user opens a notification.
type SelectedMsg struct {
	Notification model.Notification
}

// Action names carried by ActionMsg.
const (
	ActionMarkRead = "mark-read"
	ActionMarkAll  = "mark-all"
	ActionDelete   = "delete"
)

// ActionMsg asks the parent to run an action against the session.
type ActionMsg struct {
	Action string
	IDs    []string
}

// Model is the notification list view component.
type Model struct {
	list        list.Model
	source      Source
	keys        *keys.KeyMap
	filter      store.NotificationFilter
	contextIdx  int // 0 = all, otherwise KnownContexts[contextIdx-1]
	query       string
	searchMode  bool
	searchInput textinput.Model
	err         error
	width       int
	height      int
}

// New creates a new notification list model.
func New(src Source, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notificaciones"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "buscar notificaciones..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		source:      src,
		keys:        k,
		filter:      store.NotificationFilter{Limit: PageSize},
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the initial set of notifications.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		items := make([]list.Item, len(msg.Items))
		for i, n := range msg.Items {
			items[i] = Item{Notification: n}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = m.searchInput.Value()
		return m, m.Load()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.Load()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedMsg{Notification: n} }

	case key.Matches(msg, m.keys.MarkRead):
		n, ok := m.Selected()
		if !ok || n.IsRead {
			return m, nil
		}
		return m, action(ActionMarkRead, n.ID)

	case key.Matches(msg, m.keys.Delete):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, action(ActionDelete, n.ID)

	case key.Matches(msg, m.keys.MarkAll):
		return m, action(ActionMarkAll)

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		cmd := m.searchInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.CycleContext):
		m.contextIdx = (m.contextIdx + 1) % (len(model.KnownContexts) + 1)
		if m.contextIdx == 0 {
			m.filter.Context = nil
		} else {
			c := model.KnownContexts[m.contextIdx-1]
			m.filter.Context = &c
		}
		return m, m.Load()

	case key.Matches(msg, m.keys.UnreadOnly):
		m.filter.UnreadOnly = !m.filter.UnreadOnly
		return m, m.Load()
	}

	// Navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func action(name string, ids ...string) tea.Cmd {
	return func() tea.Msg { return ActionMsg{Action: name, IDs: ids} }
}

// Selected returns the focused notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// FilterLabel describes the active listing filter for the status bar.
func (m Model) FilterLabel() string {
	label := "Todas"
	if m.filter.Context != nil {
		label = m.filter.Context.Label()
	}
	if m.filter.UnreadOnly {
		label += " · no leídas"
	}
	if m.query != "" {
		label += fmt.Sprintf(" · %q", m.query)
	}
	return label
}

// View renders the list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if m.err != nil {
		return m.centered(theme.ErrorStyle.Render(m.err.Error()))
	}
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when the list is empty.
func (m Model) renderEmptyState() string {
	if m.filter.Context != nil || m.filter.UnreadOnly || m.query != "" {
		return m.centered("Sin resultados.\nPruebe a cambiar los filtros.")
	}
	return m.centered("No tiene notificaciones.")
}

func (m Model) centered(s string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(s)
}

// Load returns a tea.Cmd that fetches the list for the current filter. A
// search query goes to the server; everything else reads the cache.
func (m Model) Load() tea.Cmd {
	filter := m.filter
	query := m.query
	src := m.source
	return func() tea.Msg {
		ctx := context.Background()
		if query != "" {
			items, err := src.Search(ctx, query)
			return LoadedMsg{Items: narrow(items, filter), Err: err}
		}
		items, err := src.Cached(ctx, filter)
		return LoadedMsg{Items: items, Err: err}
	}
}

// narrow applies the context and unread filters to search hits.
func narrow(items []model.Notification, f store.NotificationFilter) []model.Notification {
	out := items[:0:0]
	for _, n := range items {
		if f.Context != nil && n.Context != *f.Context {
			continue
		}
		if f.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
