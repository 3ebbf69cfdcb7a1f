package websocket

// Message types sent to dashboards.
const (
	TypeNotificationsChanged = "notifications_changed"
	TypePermissionRequested  = "desktop_permission_requested"
)

// Message is one frame sent to every connected dashboard.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NotificationsChangedData is the payload of a notifications_changed message.
type NotificationsChangedData struct {
	UnreadCount int `json:"unreadCount"`
	// Total is the length of the list the dashboard is showing.
	Total int `json:"total"`
}

// NotificationsChanged tells dashboards to refetch; the counts let a badge
// update without a round trip.
func NotificationsChanged(unread, total int) Message {
	return Message{
		Type: TypeNotificationsChanged,
		Data: NotificationsChangedData{UnreadCount: unread, Total: total},
	}
}

// PermissionRequested asks dashboards to show the desktop permission prompt.
func PermissionRequested() Message {
	return Message{Type: TypePermissionRequested}
}
