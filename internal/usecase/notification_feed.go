package usecase

import (
	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

// SortOrder orders a notification feed by creation time
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// DisplayOptions control how feeds are delivered and alerted. They never change which
// notifications exist or their read state.
type DisplayOptions struct {
	EnableNotifications bool
	AnimateNewItems     bool
	SortBy              SortOrder
	MaxDisplayCount     int
}

// DefaultDisplayOptions shows the 50 newest notifications with alerts enabled
func DefaultDisplayOptions() DisplayOptions {
	return DisplayOptions{
		EnableNotifications: true,
		AnimateNewItems:     true,
		SortBy:              SortNewest,
		MaxDisplayCount:     50,
	}
}

// Feed is one delivery of a user's notification list
type Feed struct {
	UserID      string
	Items       []entity.Notification
	UnreadCount int
	Animate     bool
}

// ByType returns the items of one type, keeping feed order
func (f Feed) ByType(t entity.NotificationType) []entity.Notification {
	out := make([]entity.Notification, 0)
	for _, n := range f.Items {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Recent returns the n most recently created items
func (f Feed) Recent(n int) []entity.Notification {
	items := make([]entity.Notification, len(f.Items))
	copy(items, f.Items)
	entity.SortNotifications(items, false)
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

// Unread returns the unread items, keeping feed order
func (f Feed) Unread() []entity.Notification {
	out := make([]entity.Notification, 0, f.UnreadCount)
	for _, n := range f.Items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}
