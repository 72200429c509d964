package entity

import "time"

// RoomType classifies a chat room
type RoomType string

const (
	RoomOneOnOne     RoomType = "one_on_one"
	RoomGroup        RoomType = "group"
	RoomConsultation RoomType = "expert_consultation"
	RoomCommunity    RoomType = "community"
)

// Valid reports whether t is a known room type
func (t RoomType) Valid() bool {
	switch t {
	case RoomOneOnOne, RoomGroup, RoomConsultation, RoomCommunity:
		return true
	}
	return false
}

// ParticipantRole is the role of a user inside a room
type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// Participant is an entry of the room participant map
type Participant struct {
	JoinedAt time.Time       `json:"joinedAt"`
	Role     ParticipantRole `json:"role"`
}

// Room represents a chat room record
type Room struct {
	ID           string                 `json:"id"`
	Type         RoomType               `json:"type"`
	Name         string                 `json:"name,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Participants map[string]Participant `json:"participants,omitempty"`
	CreatedBy    string                 `json:"createdBy"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActivity time.Time              `json:"lastActivity"`
	MessageCount int64                  `json:"messageCount"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
}

// ParticipantIDs returns the ids of every participant
func (r *Room) ParticipantIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for id := range r.Participants {
		ids = append(ids, id)
	}
	return ids
}

// MembershipState is the local user's membership of a room
type MembershipState int

const (
	MembershipNotJoined MembershipState = iota
	MembershipJoined
	MembershipSubscribed
)

func (s MembershipState) String() string {
	switch s {
	case MembershipJoined:
		return "joined"
	case MembershipSubscribed:
		return "subscribed"
	default:
		return "not_joined"
	}
}
