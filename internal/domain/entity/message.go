package entity

import (
	"sort"
	"time"
)

// MessageType classifies a chat message
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Message represents a chat message record
type Message struct {
	ID           string                     `json:"id"`
	RoomID       string                     `json:"roomId"`
	SenderID     string                     `json:"senderId"`
	SenderName   string                     `json:"senderName"`
	SenderAvatar string                     `json:"senderAvatar,omitempty"`
	Content      string                     `json:"content"`
	Type         MessageType                `json:"type"`
	Timestamp    time.Time                  `json:"timestamp"`
	Edited       bool                       `json:"edited"`
	EditedAt     *time.Time                 `json:"editedAt,omitempty"`
	Reactions    map[string]map[string]bool `json:"reactions,omitempty"`
	Metadata     map[string]string          `json:"metadata,omitempty"`
}

// SortMessages orders messages by timestamp ascending. Ties fall back to the push key,
// which is time ordered and therefore follows insertion order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// MessagesFromMap flattens a keyed message collection, filling missing ids from the keys
func MessagesFromMap(m map[string]Message) []Message {
	msgs := make([]Message, 0, len(m))
	for id, msg := range m {
		if msg.ID == "" {
			msg.ID = id
		}
		msgs = append(msgs, msg)
	}
	SortMessages(msgs)
	return msgs
}
