package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/service/outbox"
	"github.com/leesangbok1/vkc-sub001/internal/service/subscription"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

const (
	defaultPageSize     = 50
	historyLimit        = 200
	defaultSearchLimit  = 20
	notificationPreview = 100
)

// MessageQueue is the outbound queue the chat engine falls back to
type MessageQueue interface {
	Enqueue(item *entity.QueuedMessage) error
	RoomLen(roomID string) int
	Len() int
	Retry(ctx context.Context, clientID string) (*entity.QueuedMessage, error)
}

// ConnectionState reports the current connectivity
type ConnectionState interface {
	Current() entity.ConnectionState
	Connected() bool
}

// Notifier creates notifications for other users
type Notifier interface {
	CreateNotification(ctx context.Context, recipientID string, in NotificationInput) (*entity.Notification, error)
}

// TypingTimers exposes the number of armed typing timers
type TypingTimers interface {
	ActiveTimers() int
}

// RoomOptions are the optional attributes of a new room
type RoomOptions struct {
	Name        string
	Description string
	Metadata    map[string]string
}

// DebugInfo is a point-in-time view of the engine
type DebugInfo struct {
	ActiveRooms     []string
	ConnectionState entity.ConnectionState
	QueuedMessages  int
	TypingTimers    int
	Subscriptions   int
}

// ChatConfig tunes the chat engine
type ChatConfig struct {
	PageSize int
	Clock    clockwork.Clock
}

// ChatDependencies are the collaborators of the chat engine. Attachments and Typing are optional.
type ChatDependencies struct {
	Channel     repository.DataChannel
	Registry    *subscription.Registry
	Queue       MessageQueue
	Connection  ConnectionState
	Notifier    Notifier
	Identity    entity.IdentityProvider
	Attachments repository.AttachmentRepository
	Typing      TypingTimers
}

type roomView struct {
	limit      int
	gen        uint64
	onMessages func([]entity.Message)
}

// ChatUseCase sends and observes chat messages
type ChatUseCase struct {
	channel     repository.DataChannel
	registry    *subscription.Registry
	queue       MessageQueue
	connection  ConnectionState
	notifier    Notifier
	identity    entity.IdentityProvider
	attachments repository.AttachmentRepository
	typing      TypingTimers
	clock       clockwork.Clock
	pageSize    int
	logger      *logger.Logger

	mu         sync.Mutex
	views      map[string]*roomView
	membership map[string]entity.MembershipState
	onDelivery func(entity.ProvisionalMessage)
}

// NewChatUseCase creates a new chat use case
func NewChatUseCase(deps ChatDependencies, cfg ChatConfig, log *logger.Logger) (*ChatUseCase, error) {
	if deps.Channel == nil {
		return nil, errors.New("data channel cannot be nil")
	}
	if deps.Registry == nil {
		return nil, errors.New("subscription registry cannot be nil")
	}
	if deps.Queue == nil {
		return nil, errors.New("message queue cannot be nil")
	}
	if deps.Connection == nil {
		return nil, errors.New("connection state cannot be nil")
	}
	if deps.Identity == nil {
		return nil, errors.New("identity provider cannot be nil")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &ChatUseCase{
		channel:     deps.Channel,
		registry:    deps.Registry,
		queue:       deps.Queue,
		connection:  deps.Connection,
		notifier:    deps.Notifier,
		identity:    deps.Identity,
		attachments: deps.Attachments,
		typing:      deps.Typing,
		clock:       cfg.Clock,
		pageSize:    cfg.PageSize,
		logger:      log.Named("chat"),
		views:       make(map[string]*roomView),
		membership:  make(map[string]entity.MembershipState),
	}, nil
}

// CreateRoom writes a new room record. The creator is always a participant with the admin role.
func (uc *ChatUseCase) CreateRoom(ctx context.Context, participants []string, roomType entity.RoomType, opts RoomOptions) (*entity.Room, error) {
	user, ok := uc.identity.CurrentUser()
	if !ok {
		return nil, entity.ErrNotAuthenticated
	}
	if roomType == "" {
		roomType = entity.RoomGroup
	}
	if !roomType.Valid() {
		return nil, fmt.Errorf("%w: unknown room type %q", entity.ErrCreateFailed, roomType)
	}

	now, err := uc.channel.ServerTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrCreateFailed, err)
	}

	members := make(map[string]entity.Participant, len(participants)+1)
	for _, id := range participants {
		if id == "" {
			continue
		}
		members[id] = entity.Participant{JoinedAt: now, Role: entity.RoleMember}
	}
	members[user.ID] = entity.Participant{JoinedAt: now, Role: entity.RoleAdmin}

	room := &entity.Room{
		ID:           uc.channel.NewKey(),
		Type:         roomType,
		Name:         opts.Name,
		Description:  opts.Description,
		Participants: members,
		CreatedBy:    user.ID,
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     opts.Metadata,
	}

	if err := uc.channel.Write(ctx, entity.RoomPath(room.ID), room); err != nil {
		uc.logger.Error("Failed to create room", logger.Error(err))
		return nil, fmt.Errorf("%w: %v", entity.ErrCreateFailed, err)
	}

	uc.setMembership(room.ID, entity.MembershipJoined)
	uc.logger.Info("Room created",
		logger.String("room_id", room.ID),
		logger.String("type", string(room.Type)),
		logger.Int("participants", len(members)),
	)
	return room, nil
}

// SendMessage writes a message to the room, or queues it when offline or when earlier messages
// of the room are still queued. The raw write error of a queued send is never returned.
func (uc *ChatUseCase) SendMessage(ctx context.Context, roomID, content string, msgType entity.MessageType, metadata map[string]string) (*entity.ProvisionalMessage, error) {
	user, ok := uc.identity.CurrentUser()
	if !ok {
		return nil, entity.ErrNotAuthenticated
	}
	if roomID == "" {
		return nil, errors.New("room id cannot be empty")
	}
	if msgType == "" {
		msgType = entity.MessageText
	}

	item := &entity.QueuedMessage{
		ClientID:     uc.channel.NewKey(),
		RoomID:       roomID,
		Content:      content,
		Type:         msgType,
		Metadata:     metadata,
		SenderID:     user.ID,
		SenderName:   user.DisplayName(),
		SenderAvatar: user.Avatar,
		EnqueuedAt:   uc.clock.Now(),
	}

	if !uc.connection.Connected() || uc.queue.RoomLen(roomID) > 0 {
		return uc.enqueue(item)
	}

	msg, err := uc.Deliver(ctx, item)
	if err != nil {
		item.LastError = err.Error()
		if uc.connection.Connected() {
			item.Attempts = 1
		}
		uc.logger.Warn("Send failed, message queued",
			logger.String("room_id", roomID),
			logger.String("client_id", item.ClientID),
			logger.Error(err),
		)
		return uc.enqueue(item)
	}

	return &entity.ProvisionalMessage{
		ClientID: item.ClientID,
		Status:   entity.DeliveryConfirmed,
		Message:  *msg,
	}, nil
}

func (uc *ChatUseCase) enqueue(item *entity.QueuedMessage) (*entity.ProvisionalMessage, error) {
	if err := uc.queue.Enqueue(item); err != nil {
		return nil, fmt.Errorf("failed to queue message: %w", err)
	}
	return entity.ProvisionalFromQueued(item), nil
}

// Deliver performs one write of a queued message followed by the best-effort room activity
// update and participant fan-out. The message key is the client id, so a repeated attempt
// overwrites instead of duplicating.
func (uc *ChatUseCase) Deliver(ctx context.Context, item *entity.QueuedMessage) (*entity.Message, error) {
	ts, err := uc.channel.ServerTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrChannelWriteFailed, err)
	}

	msg := entity.Message{
		ID:           item.ClientID,
		RoomID:       item.RoomID,
		SenderID:     item.SenderID,
		SenderName:   item.SenderName,
		SenderAvatar: item.SenderAvatar,
		Content:      item.Content,
		Type:         item.Type,
		Timestamp:    ts,
		Metadata:     item.Metadata,
	}
	if msg.ID == "" {
		msg.ID = uc.channel.NewKey()
	}

	if err := uc.channel.Write(ctx, entity.MessagePath(msg.RoomID, msg.ID), msg); err != nil {
		return nil, err
	}

	uc.logger.Debug("Message sent",
		logger.String("room_id", msg.RoomID),
		logger.String("message_id", msg.ID),
	)

	uc.touchRoom(ctx, msg)
	uc.notifyParticipants(ctx, msg)
	return &msg, nil
}

// touchRoom bumps the room activity. The count is a plain read then write, so concurrent
// senders can lose increments.
func (uc *ChatUseCase) touchRoom(ctx context.Context, msg entity.Message) {
	path := entity.RoomPath(msg.RoomID)

	if err := uc.channel.Update(ctx, path, map[string]any{"lastActivity": msg.Timestamp}); err != nil {
		uc.logger.Warn("Failed to update room activity",
			logger.String("room_id", msg.RoomID),
			logger.Error(err),
		)
		return
	}

	snap, err := uc.channel.Read(ctx, entity.JoinPath(path, "messageCount"))
	if err != nil {
		uc.logger.Warn("Failed to read message count",
			logger.String("room_id", msg.RoomID),
			logger.Error(err),
		)
		return
	}
	var count int64
	if err := snap.Decode(&count); err != nil {
		count = 0
	}

	if err := uc.channel.Write(ctx, entity.JoinPath(path, "messageCount"), count+1); err != nil {
		uc.logger.Warn("Failed to update message count",
			logger.String("room_id", msg.RoomID),
			logger.Error(err),
		)
	}
}

func (uc *ChatUseCase) notifyParticipants(ctx context.Context, msg entity.Message) {
	if uc.notifier == nil {
		return
	}

	snap, err := uc.channel.Read(ctx, entity.JoinPath(entity.RoomPath(msg.RoomID), "participants"))
	if err != nil {
		uc.logger.Warn("Failed to read participants",
			logger.String("room_id", msg.RoomID),
			logger.Error(err),
		)
		return
	}
	participants := make(map[string]entity.Participant)
	if err := snap.Decode(&participants); err != nil {
		uc.logger.Warn("Failed to decode participants",
			logger.String("room_id", msg.RoomID),
			logger.Error(err),
		)
		return
	}

	ids := make([]string, 0, len(participants))
	for id := range participants {
		if id != msg.SenderID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	in := NotificationInput{
		Type:    entity.NotificationNewMessage,
		Title:   fmt.Sprintf("%s's message", msg.SenderName),
		Message: truncate(msg.Content, notificationPreview),
		Data: map[string]string{
			"roomId":     msg.RoomID,
			"messageId":  msg.ID,
			"senderId":   msg.SenderID,
			"senderName": msg.SenderName,
		},
		Priority: entity.PriorityMedium,
	}
	for _, id := range ids {
		if _, err := uc.notifier.CreateNotification(ctx, id, in); err != nil {
			uc.logger.Warn("Failed to notify participant",
				logger.String("room_id", msg.RoomID),
				logger.String("recipient_id", id),
				logger.Error(err),
			)
		}
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// SendAttachment uploads data and sends an image or file message pointing at it
func (uc *ChatUseCase) SendAttachment(ctx context.Context, roomID, name, contentType string, data []byte) (*entity.ProvisionalMessage, error) {
	if _, ok := uc.identity.CurrentUser(); !ok {
		return nil, entity.ErrNotAuthenticated
	}
	if uc.attachments == nil {
		return nil, errors.New("attachment storage is not configured")
	}
	if name == "" {
		return nil, errors.New("attachment name cannot be empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := strings.Join([]string{roomID, uc.channel.NewKey(), name}, "/")
	size, err := uc.attachments.Upload(ctx, objectName, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	msgType := entity.MessageFile
	if strings.HasPrefix(contentType, "image/") {
		msgType = entity.MessageImage
	}

	return uc.SendMessage(ctx, roomID, uc.attachments.GetObjectURL(objectName), msgType, map[string]string{
		"fileName":    name,
		"contentType": contentType,
		"size":        strconv.FormatInt(size, 10),
		"objectName":  objectName,
	})
}

// EditMessage replaces the content of a message. It is never queued.
func (uc *ChatUseCase) EditMessage(ctx context.Context, roomID, messageID, content string) error {
	if _, ok := uc.identity.CurrentUser(); !ok {
		return entity.ErrNotAuthenticated
	}
	if !uc.connection.Connected() {
		return fmt.Errorf("%w: offline", entity.ErrChannelWriteFailed)
	}

	err := uc.channel.Update(ctx, entity.MessagePath(roomID, messageID), map[string]any{
		"content":  content,
		"edited":   true,
		"editedAt": uc.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

// DeleteMessage removes a message. It is never queued.
func (uc *ChatUseCase) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if _, ok := uc.identity.CurrentUser(); !ok {
		return entity.ErrNotAuthenticated
	}
	if !uc.connection.Connected() {
		return fmt.Errorf("%w: offline", entity.ErrChannelWriteFailed)
	}

	if err := uc.channel.Write(ctx, entity.MessagePath(roomID, messageID), nil); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

// JoinRoom adds userID to the room as a member
func (uc *ChatUseCase) JoinRoom(ctx context.Context, roomID, userID string) error {
	user, ok := uc.identity.CurrentUser()
	if !ok {
		return entity.ErrNotAuthenticated
	}
	if userID == "" {
		userID = user.ID
	}

	now, err := uc.channel.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to get server time: %w", err)
	}
	p := entity.Participant{JoinedAt: now, Role: entity.RoleMember}
	if err := uc.channel.Write(ctx, entity.ParticipantPath(roomID, userID), p); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	if userID == user.ID {
		uc.mu.Lock()
		if uc.membership[roomID] == entity.MembershipNotJoined {
			uc.membership[roomID] = entity.MembershipJoined
		}
		uc.mu.Unlock()
	}

	uc.sendSystemMessage(ctx, roomID, fmt.Sprintf("%s joined the room", userID))
	return nil
}

// LeaveRoom removes userID from the room. Leaving as the local user also drops the room subscription.
func (uc *ChatUseCase) LeaveRoom(ctx context.Context, roomID, userID string) error {
	user, ok := uc.identity.CurrentUser()
	if !ok {
		return entity.ErrNotAuthenticated
	}
	if userID == "" {
		userID = user.ID
	}

	if err := uc.channel.Write(ctx, entity.ParticipantPath(roomID, userID), nil); err != nil {
		return fmt.Errorf("failed to leave room %s: %w", roomID, err)
	}

	if userID == user.ID {
		uc.registry.Unregister(entity.RoomKey(roomID))
		uc.mu.Lock()
		delete(uc.views, roomID)
		delete(uc.membership, roomID)
		uc.mu.Unlock()
	}

	uc.sendSystemMessage(ctx, roomID, fmt.Sprintf("%s left the room", userID))
	return nil
}

// sendSystemMessage is best effort and never queued
func (uc *ChatUseCase) sendSystemMessage(ctx context.Context, roomID, content string) {
	ts, err := uc.channel.ServerTime(ctx)
	if err != nil {
		uc.logger.Warn("Failed to send system message", logger.String("room_id", roomID), logger.Error(err))
		return
	}

	msg := entity.Message{
		ID:         uc.channel.NewKey(),
		RoomID:     roomID,
		SenderID:   "system",
		SenderName: "System",
		Content:    content,
		Type:       entity.MessageSystem,
		Timestamp:  ts,
	}
	if err := uc.channel.Write(ctx, entity.MessagePath(roomID, msg.ID), msg); err != nil {
		uc.logger.Warn("Failed to send system message", logger.String("room_id", roomID), logger.Error(err))
	}
}

// SubscribeToRoom delivers the most recent page of the room on every change, sorted ascending.
// It replaces any earlier subscription of the same room.
func (uc *ChatUseCase) SubscribeToRoom(roomID string, onMessages func([]entity.Message)) (*subscription.Handle, error) {
	if roomID == "" {
		return nil, errors.New("room id cannot be empty")
	}
	if onMessages == nil {
		return nil, errors.New("message callback cannot be nil")
	}

	uc.mu.Lock()
	view := uc.views[roomID]
	if view == nil {
		view = &roomView{limit: uc.pageSize}
		uc.views[roomID] = view
	}
	view.onMessages = onMessages
	uc.mu.Unlock()

	return uc.subscribeRoom(roomID, view)
}

// LoadMore grows the room page by one page size and re-subscribes with the same callback
func (uc *ChatUseCase) LoadMore(roomID string) (*subscription.Handle, error) {
	uc.mu.Lock()
	view := uc.views[roomID]
	if view == nil || view.onMessages == nil {
		uc.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", roomID, entity.ErrNotFound)
	}
	view.limit += uc.pageSize
	uc.mu.Unlock()

	return uc.subscribeRoom(roomID, view)
}

func (uc *ChatUseCase) subscribeRoom(roomID string, view *roomView) (*subscription.Handle, error) {
	uc.mu.Lock()
	view.gen++
	gen := view.gen
	limit := view.limit
	onMessages := view.onMessages
	uc.mu.Unlock()

	sub, err := uc.channel.Subscribe(entity.RoomMessagesPath(roomID), func(s entity.Snapshot) {
		raw := make(map[string]entity.Message)
		if err := s.Decode(&raw); err != nil {
			uc.logger.Warn("Failed to decode messages", logger.String("room_id", roomID), logger.Error(err))
			return
		}
		msgs := entity.MessagesFromMap(raw)
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		onMessages(msgs)
	})
	if err != nil {
		uc.logger.Warn("Failed to subscribe to room", logger.String("room_id", roomID), logger.Error(err))
		onMessages([]entity.Message{})
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	handle := uc.registry.Register(entity.RoomKey(roomID), func() {
		sub.Unsubscribe()
		uc.mu.Lock()
		defer uc.mu.Unlock()
		if view.gen == gen && uc.membership[roomID] == entity.MembershipSubscribed {
			uc.membership[roomID] = entity.MembershipJoined
		}
	})

	uc.setMembership(roomID, entity.MembershipSubscribed)
	return handle, nil
}

// SubscribeToParticipants delivers the participant map of the room on every change
func (uc *ChatUseCase) SubscribeToParticipants(roomID string, onParticipants func(map[string]entity.Participant)) (*subscription.Handle, error) {
	if onParticipants == nil {
		return nil, errors.New("participants callback cannot be nil")
	}

	path := entity.JoinPath(entity.RoomPath(roomID), "participants")
	sub, err := uc.channel.Subscribe(path, func(s entity.Snapshot) {
		participants := make(map[string]entity.Participant)
		if err := s.Decode(&participants); err != nil {
			uc.logger.Warn("Failed to decode participants", logger.String("room_id", roomID), logger.Error(err))
			return
		}
		onParticipants(participants)
	})
	if err != nil {
		onParticipants(map[string]entity.Participant{})
		return nil, fmt.Errorf("failed to subscribe to participants of %s: %w", roomID, err)
	}

	return uc.registry.Register(entity.ParticipantsKey(roomID), sub.Unsubscribe), nil
}

// Membership returns the local user's membership of the room
func (uc *ChatUseCase) Membership(roomID string) entity.MembershipState {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.membership[roomID]
}

func (uc *ChatUseCase) setMembership(roomID string, state entity.MembershipState) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if state > uc.membership[roomID] {
		uc.membership[roomID] = state
	}
}

// GetChatHistory reads the room once and returns the last limit messages sent before before.
// A zero before means no upper bound.
func (uc *ChatUseCase) GetChatHistory(ctx context.Context, roomID string, limit int, before time.Time) ([]entity.Message, error) {
	if limit <= 0 {
		limit = uc.pageSize
	}

	snap, err := uc.channel.Read(ctx, entity.RoomMessagesPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", roomID, err)
	}
	raw := make(map[string]entity.Message)
	if err := snap.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", roomID, err)
	}

	msgs := entity.MessagesFromMap(raw)
	if !before.IsZero() {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.Timestamp.Before(before) {
				kept = append(kept, m)
			}
		}
		msgs = kept
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// SearchMessages matches query case-insensitively against content and sender name
func (uc *ChatUseCase) SearchMessages(ctx context.Context, roomID, query string, limit int) ([]entity.Message, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	history, err := uc.GetChatHistory(ctx, roomID, historyLimit, time.Time{})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	out := make([]entity.Message, 0)
	for _, m := range history {
		if strings.Contains(strings.ToLower(m.Content), q) || strings.Contains(strings.ToLower(m.SenderName), q) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// OnDelivery sets the hook receiving the final state of queued sends
func (uc *ChatUseCase) OnDelivery(fn func(entity.ProvisionalMessage)) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.onDelivery = fn
}

// HandleQueueResult turns a queue outcome into a resolved provisional message
func (uc *ChatUseCase) HandleQueueResult(r outbox.Result) {
	p := entity.ProvisionalFromQueued(&r.Item)
	if r.Delivered() && r.Message != nil {
		p.Status = entity.DeliveryConfirmed
		p.Message = *r.Message
	} else {
		p.Status = entity.DeliveryFailed
		p.Err = r.Err
		uc.logger.Warn("Message delivery failed",
			logger.String("room_id", r.Item.RoomID),
			logger.String("client_id", r.Item.ClientID),
			logger.Error(r.Err),
		)
	}

	uc.mu.Lock()
	fn := uc.onDelivery
	uc.mu.Unlock()
	if fn != nil {
		fn(*p)
	}
}

// RetryFailed requeues a dead-lettered message with a fresh attempt budget
func (uc *ChatUseCase) RetryFailed(ctx context.Context, clientID string) (*entity.ProvisionalMessage, error) {
	item, err := uc.queue.Retry(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return entity.ProvisionalFromQueued(item), nil
}

// DebugInfo reports rooms, connectivity, queue depth and typing timers
func (uc *ChatUseCase) DebugInfo() DebugInfo {
	uc.mu.Lock()
	rooms := make([]string, 0, len(uc.membership))
	for id, state := range uc.membership {
		if state == entity.MembershipSubscribed {
			rooms = append(rooms, id)
		}
	}
	uc.mu.Unlock()
	sort.Strings(rooms)

	info := DebugInfo{
		ActiveRooms:     rooms,
		ConnectionState: uc.connection.Current(),
		QueuedMessages:  uc.queue.Len(),
		Subscriptions:   uc.registry.Count(),
	}
	if uc.typing != nil {
		info.TypingTimers = uc.typing.ActiveTimers()
	}
	return info
}
