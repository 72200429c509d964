package entity

import "time"

// QueuedMessage is an outbound message waiting for a successful write
type QueuedMessage struct {
	ClientID     string            `json:"clientId"`
	RoomID       string            `json:"roomId"`
	Content      string            `json:"content"`
	Type         MessageType       `json:"type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SenderID     string            `json:"senderId"`
	SenderName   string            `json:"senderName"`
	SenderAvatar string            `json:"senderAvatar,omitempty"`
	Attempts     int               `json:"attempts"`
	NextRetryAt  time.Time         `json:"nextRetryAt"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`
	LastError    string            `json:"lastError,omitempty"`
}

// DeadLetter is a queued message that exhausted its retries
type DeadLetter struct {
	Message  QueuedMessage `json:"message"`
	Reason   string        `json:"reason"`
	FailedAt time.Time     `json:"failedAt"`
}

// DeliveryStatus tags a client-visible message with its persistence outcome
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryConfirmed DeliveryStatus = "confirmed"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ProvisionalMessage is what a send returns before and after the write resolves.
// A later value with the same ClientID supersedes an earlier one.
type ProvisionalMessage struct {
	ClientID string
	Status   DeliveryStatus
	Message  Message
	Err      error
}

// Resolved reports whether the message reached a terminal state
func (p ProvisionalMessage) Resolved() bool {
	return p.Status != DeliveryPending
}

// ProvisionalFromQueued renders a queued item for optimistic display
func ProvisionalFromQueued(item *QueuedMessage) *ProvisionalMessage {
	return &ProvisionalMessage{
		ClientID: item.ClientID,
		Status:   DeliveryPending,
		Message: Message{
			ID:           item.ClientID,
			RoomID:       item.RoomID,
			SenderID:     item.SenderID,
			SenderName:   item.SenderName,
			SenderAvatar: item.SenderAvatar,
			Content:      item.Content,
			Type:         item.Type,
			Timestamp:    item.EnqueuedAt,
			Metadata:     item.Metadata,
		},
	}
}
