package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/keys"
	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/theme"
	"github.com/nhle/obranotify/internal/ui"
	"github.com/nhle/obranotify/internal/ui/notiflist"
)

// Model is the help overlay: key bindings plus a legend for the
// priority markers, the unread badge and the connection indicator.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

var sectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(theme.ColorWhite).
	MarginTop(1)

// View renders the help overlay.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Atajos de teclado")

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.help.View(m.keys),
		Legend(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// badgeLegend pairs each badge colour with when it is used.
var badgeLegend = []struct {
	color lipgloss.AdaptiveColor
	text  string
}{
	{theme.BadgeCritical, "hay críticas sin leer"},
	{theme.BadgeHigh, "hay de prioridad alta sin leer"},
	{theme.BadgeUnread, "hay notificaciones sin leer"},
	{theme.BadgeNone, "todo leído"},
}

// connectionLegend lists the header states worth explaining.
var connectionLegend = []struct {
	state  realtime.State
	gaveUp bool
	text   string
}{
	{realtime.StateConnected, false, "recibe avisos al instante"},
	{realtime.StateReconnecting, false, "reintentando; mientras tanto se consulta el servidor"},
	{realtime.StateDisconnected, true, "se agotaron los reintentos; r reconecta"},
	{realtime.StateDisconnected, false, "solo consulta periódica"},
}

// Legend renders the meaning of the priority markers, badge colours and
// connection labels.
func Legend() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Prioridad"))
	b.WriteString("\n")
	for i := len(model.Priorities) - 1; i >= 0; i-- {
		p := model.Priorities[i]
		fmt.Fprintf(&b, "  %s %s\n",
			theme.PriorityStyle(string(p)).Render(notiflist.PriorityTag(p)),
			p.Label())
	}

	b.WriteString(sectionStyle.Render("Contador"))
	b.WriteString("\n")
	for _, l := range badgeLegend {
		fmt.Fprintf(&b, "  %s %s\n", theme.BadgeStyle(l.color).Render("3"), l.text)
	}

	b.WriteString(sectionStyle.Render("Conexión"))
	b.WriteString("\n")
	for _, l := range connectionLegend {
		fmt.Fprintf(&b, "  %s %s\n", ui.ConnectionLabel(l.state, l.gaveUp, "◐"), l.text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
