package model

import (
	"fmt"
	"strings"
	"time"
)

// Context is the coarse domain category a notification belongs to.
type Context string

const (
	ContextSystem    Context = "SYSTEM"
	ContextProjects  Context = "PROJECTS"
	ContextPersonnel Context = "PERSONNEL"
	ContextMaterials Context = "MATERIALS"
	ContextMachinery Context = "MACHINERY"
	ContextIncidents Context = "INCIDENTS"
)

// KnownContexts lists every context the platform defines, in display order.
var KnownContexts = []Context{
	ContextSystem,
	ContextProjects,
	ContextPersonnel,
	ContextMaterials,
	ContextMachinery,
	ContextIncidents,
}

// Known reports whether c is one of the platform-defined contexts.
func (c Context) Known() bool {
	for _, k := range KnownContexts {
		if c == k {
			return true
		}
	}
	return false
}

// Label returns the Spanish display label for the context.
func (c Context) Label() string {
	switch c {
	case ContextSystem:
		return "Sistema"
	case ContextProjects:
		return "Proyectos"
	case ContextPersonnel:
		return "Personal"
	case ContextMaterials:
		return "Materiales"
	case ContextMachinery:
		return "Maquinaria"
	case ContextIncidents:
		return "Incidencias"
	default:
		return string(c)
	}
}

// Priority is the ordered severity of a notification.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Priorities lists all priorities in ascending order.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}

// Rank returns the ordinal of the priority (LOW=1 .. CRITICAL=4), or 0 for
// an unrecognised value.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether p is ranked at or above min.
func (p Priority) AtLeast(min Priority) bool {
	return p.Rank() >= min.Rank()
}

// Label returns the Spanish display label for the priority.
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Baja"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "Alta"
	case PriorityCritical:
		return "Crítica"
	default:
		return string(p)
	}
}

// ParsePriority converts a case-insensitive priority name.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if p.Rank() == 0 {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Scope says whether a notification targets a single user or a role.
type Scope string

const (
	ScopeUser Scope = "USER"
	ScopeRole Scope = "ROLE"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "inApp"
	ChannelEmail Channel = "email"
)

// Notification is a normalized server notification record.
type Notification struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	// Type is a free-form server classification such as "INCIDENT_CREATED".
	Type     string   `json:"type"`
	Context  Context  `json:"context"`
	Priority Priority `json:"priority"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// ActionURL and ActionText describe an optional deep link.
	ActionURL  string `json:"actionUrl,omitempty"`
	ActionText string `json:"actionText,omitempty"`

	Scope      Scope  `json:"scope"`
	TargetRole string `json:"targetRole,omitempty"`

	RelatedProjectID  string `json:"relatedProjectId,omitempty"`
	RelatedEntityID   string `json:"relatedEntityId,omitempty"`
	RelatedEntityType string `json:"relatedEntityType,omitempty"`

	// IsRead and ReadAt move together: ReadAt is non-nil iff IsRead.
	IsRead bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarkAsRead flips the local read state. It never contacts the server;
// callers confirm the write first. Calling it twice keeps the first ReadAt.
func (n *Notification) MarkAsRead(at time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	t := at.UTC()
	n.ReadAt = &t
}

// IsHighPriority reports whether the notification is HIGH or CRITICAL.
func (n Notification) IsHighPriority() bool {
	return n.Priority.AtLeast(PriorityHigh)
}

// IsCritical reports whether the notification is CRITICAL.
func (n Notification) IsCritical() bool {
	return n.Priority == PriorityCritical
}

// StatusLabel returns "Leída" or "No leída".
func (n Notification) StatusLabel() string {
	if n.IsRead {
		return "Leída"
	}
	return "No leída"
}

// TimeAgo renders the age of the notification relative to now.
func (n Notification) TimeAgo(now time.Time) string {
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "ahora"
	case d < time.Hour:
		return fmt.Sprintf("hace %d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("hace %d h", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("hace %d d", int(d.Hours()/24))
	default:
		return n.CreatedAt.Local().Format("02/01/2006")
	}
}
