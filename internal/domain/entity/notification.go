package entity

import (
	"sort"
	"time"
)

// NotificationType classifies a notification
type NotificationType string

const (
	NotificationNewMessage     NotificationType = "new_message"
	NotificationNewAnswer      NotificationType = "new_answer"
	NotificationAnswerAccepted NotificationType = "answer_accepted"
	NotificationQuestionLiked  NotificationType = "question_liked"
	NotificationAnswerLiked    NotificationType = "answer_liked"
	NotificationMention        NotificationType = "mention"
	NotificationFollow         NotificationType = "follow"
	NotificationExpertResponse NotificationType = "expert_response"
	NotificationSystem         NotificationType = "system"
)

// Priority decides how loudly a notification is surfaced
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Notification is an entry of a user's notification feed
type Notification struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipientId"`
	Type        NotificationType  `json:"type"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    Priority          `json:"priority"`
	CreatedAt   time.Time         `json:"createdAt"`
	Read        bool              `json:"read"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
}

// SortNotifications orders notifications by creation time, newest first unless oldestFirst is set.
// Ties fall back to the id in the same direction.
func SortNotifications(items []Notification, oldestFirst bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if oldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if oldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
}
