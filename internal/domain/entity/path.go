package entity

import "strings"

// Store layout
const (
	ConnectedPath     = ".info/connected"
	RoomsPath         = "chat_rooms"
	MessagesPath      = "chat_messages"
	TypingPath        = "chat_typing"
	PresencePath      = "chat_presence"
	NotificationsPath = "notifications"
)

// JoinPath joins path segments with "/", skipping empty ones
func JoinPath(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// SplitPath splits a path into its segments. The root path has no segments.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// PathsOverlap reports whether a change at one path affects the value at the other,
// i.e. the paths are equal or one is an ancestor of the other.
func PathsOverlap(a, b string) bool {
	a = strings.Trim(a, "/")
	b = strings.Trim(b, "/")
	if a == b || a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// RoomPath is the record of a room
func RoomPath(roomID string) string { return JoinPath(RoomsPath, roomID) }

// ParticipantPath is the participant entry of a user in a room
func ParticipantPath(roomID, userID string) string {
	return JoinPath(RoomsPath, roomID, "participants", userID)
}

// RoomMessagesPath holds every message of a room keyed by message id
func RoomMessagesPath(roomID string) string { return JoinPath(MessagesPath, roomID) }

// MessagePath is a single message
func MessagePath(roomID, messageID string) string { return JoinPath(MessagesPath, roomID, messageID) }

// RoomTypingPath holds typing states of a room keyed by user id
func RoomTypingPath(roomID string) string { return JoinPath(TypingPath, roomID) }

// TypingStatePath is the typing state of one user in a room
func TypingStatePath(roomID, userID string) string { return JoinPath(TypingPath, roomID, userID) }

// UserPresencePath is the online presence of a user
func UserPresencePath(userID string) string { return JoinPath(PresencePath, userID) }

// UserNotificationsPath holds the notification feed of a user
func UserNotificationsPath(userID string) string { return JoinPath(NotificationsPath, userID) }

// NotificationPath is a single notification
func NotificationPath(userID, notificationID string) string {
	return JoinPath(NotificationsPath, userID, notificationID)
}
