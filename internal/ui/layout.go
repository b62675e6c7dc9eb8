package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/realtime"
	"github.com/nhle/obranotify/internal/summary"
	"github.com/nhle/obranotify/internal/theme"
)

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with a title, the unread badge
// and the connection indicator.
func (l Layout) RenderHeader(title string, badge string, connection string) string {
	titleRendered := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.HeaderStyle.Render(title),
		badge,
	)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(connection)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

// RenderBadge renders the unread counter coloured by the most urgent
// unread priority. Counts above 99 are shown as "99+".
func RenderBadge(s model.Summary) string {
	label := fmt.Sprintf("%d", s.UnreadCount)
	if s.UnreadCount > 99 {
		label = "99+"
	}
	return theme.BadgeStyle(summary.BadgeColorFor(s)).Render(label)
}

// ConnectionLabel is the user-facing text for a realtime state. gaveUp
// marks a transport that exhausted its reconnect attempts; spin is the
// current spinner frame shown while reconnecting.
func ConnectionLabel(state realtime.State, gaveUp bool, spin string) string {
	var text string
	switch {
	case state == realtime.StateConnected:
		text = "● conectado"
	case state == realtime.StateConnecting:
		text = spin + " conectando…"
	case state == realtime.StateReconnecting:
		text = spin + " reconectando…"
	case gaveUp:
		text = "○ sin conexión, recargue (r)"
	default:
		text = "○ sin conexión"
	}
	return theme.ConnectionStyle(state.String()).Render(text)
}
