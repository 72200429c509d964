package entity

import (
	"sort"
	"time"
)

// TypingState marks a user as typing in a room until ExpiresAt
type TypingState struct {
	RoomID      string    `json:"roomId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	StartedAt   time.Time `json:"startedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the state is stale at now
func (t TypingState) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// SortTypers orders typing states by start time, then user id
func SortTypers(typers []TypingState) {
	sort.Slice(typers, func(i, j int) bool {
		if !typers[i].StartedAt.Equal(typers[j].StartedAt) {
			return typers[i].StartedAt.Before(typers[j].StartedAt)
		}
		return typers[i].UserID < typers[j].UserID
	})
}

// PresenceStatus is the advertised availability of a user
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
	StatusBusy    PresenceStatus = "busy"
)

// UserPresence is the online presence record of a user
type UserPresence struct {
	UserID   string         `json:"userId"`
	Name     string         `json:"name"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}
