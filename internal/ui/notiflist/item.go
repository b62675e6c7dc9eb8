package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string {
	return i.Notification.Title + " " + i.Notification.Message
}

// Title returns the notification title for the list.
func (i Item) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	n := i.Notification
	return strings.Join([]string{n.Context.Label(), n.Priority.Label(), n.StatusLabel()}, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct {
	// Now is the clock used for relative times; nil means time.Now.
	Now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.line(it.Notification, index == m.Index()))
}

func (d ItemDelegate) line(n model.Notification, selected bool) string {
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}

	marker := "●"
	if n.IsRead {
		marker = "○"
	}

	ctxBadge := theme.ContextLabelStyle(string(n.Context)).Render(shortContext(n.Context))
	priBadge := theme.PriorityStyle(string(n.Priority)).Render(PriorityTag(n.Priority))
	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(n.TimeAgo(now))

	title := n.Title
	if title == "" {
		title = n.Message
	}
	if n.IsRead {
		title = theme.ReadStyle.Render(title)
	} else {
		title = theme.UnreadStyle.Render(title)
	}

	line := fmt.Sprintf("%s %s %s %s  %s", marker, ctxBadge, priBadge, title, age)

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// shortContext returns a three-letter tag for the context column.
func shortContext(c model.Context) string {
	label := strings.ToUpper(c.Label())
	if len([]rune(label)) > 3 {
		return string([]rune(label)[:3])
	}
	return label
}

// PriorityTag returns the compact marker shown in the priority column.
func PriorityTag(p model.Priority) string {
	switch p {
	case model.PriorityCritical:
		return "!!!"
	case model.PriorityHigh:
		return "!! "
	case model.PriorityNormal:
		return "!  "
	default:
		return "·  "
	}
}
