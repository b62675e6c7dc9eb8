package realtime

import (
	"strings"

	"github.com/nhle/obranotify/internal/model"
)

// EventName identifies an internal transport event.
type EventName string

const (
	EventNewNotification    EventName = "newNotification"
	EventUnreadCount        EventName = "unreadCount"
	EventNotificationRead   EventName = "notificationRead"
	EventGroupJoined        EventName = "groupJoined"
	EventPong               EventName = "pong"
	EventStateChanged       EventName = "stateChanged"
	EventMaxAttemptsReached EventName = "maxAttemptsReached"
)

// Event is delivered to listeners. Only the fields relevant to Name are set.
type Event struct {
	Name EventName

	Notification   *model.Notification
	UnreadCount    int
	NotificationID string
	Group          string

	State    State
	Previous State
}

// serverEvents maps hub method names (case-insensitive) to internal events.
// The backend has published new notifications under several names.
var serverEvents = map[string]EventName{
	"receivenotification":      EventNewNotification,
	"newnotification":          EventNewNotification,
	"notificationreceived":     EventNewNotification,
	"unreadcountupdated":       EventUnreadCount,
	"notificationread":         EventNotificationRead,
	"notificationmarkedasread": EventNotificationRead,
	"joinedusergroup":          EventGroupJoined,
	"joinedprojectgroup":       EventGroupJoined,
	"groupjoined":              EventGroupJoined,
	"pong":                     EventPong,
}

func eventFor(target string) (EventName, bool) {
	name, ok := serverEvents[strings.ToLower(target)]
	return name, ok
}

// Hub methods invoked by the client.
const (
	methodJoinUserGroup          = "JoinUserGroup"
	methodLeaveUserGroup         = "LeaveUserGroup"
	methodJoinProjectGroup       = "JoinProjectGroup"
	methodLeaveProjectGroup      = "LeaveProjectGroup"
	methodMarkNotificationAsRead = "MarkNotificationAsRead"
	methodRequestUnreadCount     = "RequestUnreadCount"
	methodPing                   = "Ping"
)
