package command

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// Model is the command palette. Known command names are offered as
// completions (tab accepts); a rejected command is shown inline until the
// input changes.
type Model struct {
	input    textinput.Model
	commands []string
	err      string
	width    int
	height   int
}

// New creates a palette completing the given command names.
func New(width, height int, commands []string) Model {
	names := append([]string(nil), commands...)
	sort.Strings(names)

	ti := textinput.New()
	ti.Placeholder = "actualizar, reconectar, leer-todo, rol <nombre>, sonido on|off, volumen 0.5"
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(names)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:    ti,
		commands: names,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "enter" {
			cmd := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.err = ""
			if cmd == "" {
				return m, nil
			}
			return m, func() tea.Msg { return CommandMsg(cmd) }
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.err = ""
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Comandos")

	parts := []string{title, m.input.View()}
	if m.err != "" {
		parts = append(parts, theme.ErrorStyle.MarginTop(1).Render(m.err))
	} else {
		parts = append(parts, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			MarginTop(1).
			Render("tab completa · "+strings.Join(m.commands, " ")))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetError shows why the last command was rejected.
func (m *Model) SetError(msg string) {
	m.err = msg
}

// Err returns the rejection currently shown, if any.
func (m Model) Err() string {
	return m.err
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
