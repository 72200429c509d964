package entity

// SubscriptionKey identifies one logical live feed
type SubscriptionKey = string

func RoomKey(roomID string) SubscriptionKey         { return "room:" + roomID }
func TypingKey(roomID string) SubscriptionKey       { return "typing:" + roomID }
func ParticipantsKey(roomID string) SubscriptionKey { return "participants:" + roomID }
func NotificationsKey(userID string) SubscriptionKey {
	return "notifications:" + userID
}
func OnlineUsersKey() SubscriptionKey { return "presence:online" }
