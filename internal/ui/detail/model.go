package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/keys"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg signals the parent to execute an action on the shown
// notification. Action is one of the notiflist action names.
type ActionMsg struct {
	Action string
	ID     string
}

// Model is the notification detail view component.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.MarkRead):
			if m.notification != nil && !m.notification.IsRead {
				id := m.notification.ID
				return m, func() tea.Msg { return ActionMsg{Action: "mark-read", ID: id} }
			}
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			if m.notification != nil {
				id := m.notification.ID
				return m, func() tea.Msg { return ActionMsg{Action: "delete", ID: id} }
			}
			return m, nil
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Ninguna notificación seleccionada")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	n := m.notification
	if n == nil {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	badgeLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		theme.ContextLabelStyle(string(n.Context)).Render(n.Context.Label()),
		"  ",
		theme.PriorityStyle(string(n.Priority)).Render(n.Priority.Label()),
		"  ",
		statusStyle(n.IsRead).Render(n.StatusLabel()),
	)
	sections = append(sections, badgeLine, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	meta := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%-12s %s",
			metaStyle.Render(label+":"),
			valStyle.Render(value),
		))
	}

	meta("Tipo", n.Type)
	meta("Recibida", formatTime(n.CreatedAt))
	if n.ReadAt != nil {
		meta("Leída", formatTime(*n.ReadAt))
	}
	if n.Scope == model.ScopeRole {
		meta("Rol", n.TargetRole)
	}
	meta("Proyecto", n.RelatedProjectID)
	if n.RelatedEntityID != "" {
		meta("Entidad", strings.TrimSpace(n.RelatedEntityType+" "+n.RelatedEntityID))
	}
	if n.ActionURL != "" {
		label := n.ActionText
		if label == "" {
			label = "Enlace"
		}
		meta(label, n.ActionURL)
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Sin mensaje")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func statusStyle(read bool) lipgloss.Style {
	if read {
		return theme.ReadStyle
	}
	return theme.UnreadStyle
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("02/01/2006 15:04")
}

// SetNotification updates the notification being displayed.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Notification returns the notification being displayed, if any.
func (m Model) Notification() (model.Notification, bool) {
	if m.notification == nil {
		return model.Notification{}, false
	}
	return *m.notification, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
