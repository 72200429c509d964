// Package app owns one realtime session: every component instance and its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/config"
	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/internal/service/connection"
	"github.com/leesangbok1/vkc-sub001/internal/service/outbox"
	"github.com/leesangbok1/vkc-sub001/internal/service/presence"
	"github.com/leesangbok1/vkc-sub001/internal/service/subscription"
	"github.com/leesangbok1/vkc-sub001/internal/usecase"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Dependencies are the adapters a session runs on. Attachments, Host and Alerter are optional.
type Dependencies struct {
	Channel     repository.DataChannel
	DeadLetters repository.DeadLetterRepository
	Attachments repository.AttachmentRepository
	Host        usecase.HostState
	Alerter     usecase.Alerter
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// Options tune the session components
type Options struct {
	Retry             outbox.RetryPolicy
	TypingTTL         time.Duration
	OnlineWindow      time.Duration
	PageSize          int
	Display           usecase.DisplayOptions
	Settings          usecase.Settings
	AlertDismissAfter time.Duration
	Clock             clockwork.Clock
}

// DefaultOptions returns the stock tunables
func DefaultOptions() Options {
	return Options{
		Retry:             outbox.DefaultRetryPolicy(),
		TypingTTL:         5 * time.Second,
		OnlineWindow:      5 * time.Minute,
		PageSize:          50,
		Display:           usecase.DefaultDisplayOptions(),
		Settings:          usecase.DefaultSettings(),
		AlertDismissAfter: 5 * time.Second,
	}
}

// OptionsFromConfig maps the realtime and display sections onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}

	rt := cfg.Realtime
	opts.Retry = outbox.RetryPolicy{MaxAttempts: rt.MaxAttempts, BaseDelay: rt.BaseDelay}
	opts.TypingTTL = rt.TypingTTL
	opts.OnlineWindow = rt.OnlineWindow
	opts.PageSize = rt.RoomPageSize
	opts.AlertDismissAfter = rt.AlertDismissAfter

	opts.Display = usecase.DisplayOptions{
		EnableNotifications: cfg.Display.EnableNotifications,
		AnimateNewItems:     cfg.Display.AnimateNewItems,
		SortBy:              usecase.SortOrder(cfg.Display.SortBy),
		MaxDisplayCount:     cfg.Display.MaxDisplayCount,
	}
	if opts.Display.MaxDisplayCount <= 0 {
		opts.Display.MaxDisplayCount = rt.NotificationLimit
	}
	return opts
}

type identity struct {
	mu   sync.RWMutex
	user *entity.User
}

func (i *identity) CurrentUser() (entity.User, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.user == nil {
		return entity.User{}, false
	}
	return *i.user, true
}

func (i *identity) swap(u *entity.User) *entity.User {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev := i.user
	i.user = u
	return prev
}

// Session is one context-owned instance of the sync core
type Session struct {
	channel  repository.DataChannel
	logger   *logger.Logger
	identity *identity

	registry      *subscription.Registry
	monitor       *connection.Monitor
	queue         *outbox.Queue
	presence      *presence.Tracker
	chat          *usecase.ChatUseCase
	notifications *usecase.NotificationUseCase

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	started      bool
	closed       bool
	stopListener func()
}

// NewSession builds every component of a session on top of deps
func NewSession(deps Dependencies, opts Options) (*Session, error) {
	if deps.Channel == nil {
		return nil, errors.New("data channel cannot be nil")
	}
	if deps.DeadLetters == nil {
		return nil, errors.New("dead letter repository cannot be nil")
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		channel:  deps.Channel,
		logger:   log,
		identity: &identity{},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.registry = subscription.NewRegistry(log.Named("subscriptions"), deps.Metrics)
	s.monitor = connection.NewMonitor(deps.Channel, log.Named("connection"), deps.Metrics)

	var err error
	s.queue, err = outbox.NewQueue(s.deliver, deps.DeadLetters, s.monitor.Connected, outbox.Config{
		Policy: opts.Retry,
		Clock:  opts.Clock,
	}, log.Named("outbox"), deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound queue: %w", err)
	}

	s.presence, err = presence.NewTracker(deps.Channel, s.registry, presence.Config{
		TypingTTL:    opts.TypingTTL,
		OnlineWindow: opts.OnlineWindow,
		Clock:        opts.Clock,
	}, log.Named("presence"))
	if err != nil {
		return nil, fmt.Errorf("failed to create presence tracker: %w", err)
	}

	s.notifications, err = usecase.NewNotificationUseCase(deps.Channel, s.registry, deps.Host, deps.Alerter, usecase.NotificationConfig{
		Display:           opts.Display,
		Settings:          opts.Settings,
		AlertDismissAfter: opts.AlertDismissAfter,
		Clock:             opts.Clock,
	}, deps.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification use case: %w", err)
	}

	s.chat, err = usecase.NewChatUseCase(usecase.ChatDependencies{
		Channel:     deps.Channel,
		Registry:    s.registry,
		Queue:       s.queue,
		Connection:  s.monitor,
		Notifier:    s.notifications,
		Identity:    s.identity,
		Attachments: deps.Attachments,
		Typing:      s.presence,
	}, usecase.ChatConfig{PageSize: opts.PageSize, Clock: opts.Clock}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat use case: %w", err)
	}
	s.queue.OnResult(s.chat.HandleQueueResult)

	return s, nil
}

func (s *Session) deliver(ctx context.Context, item *entity.QueuedMessage) (*entity.Message, error) {
	return s.chat.Deliver(ctx, item)
}

// Start begins connectivity tracking. Every transition to connected drains the outbound queue.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session is closed")
	}
	if s.started {
		return nil
	}

	s.stopListener = s.monitor.OnChange(func(state entity.ConnectionState) {
		s.logger.Info("Connection state changed", logger.String("state", state.String()))
		if state != entity.ConnectionConnected {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.queue.Drain(s.ctx)
		}()
	})

	if err := s.monitor.Start(); err != nil {
		s.stopListener()
		s.stopListener = nil
		return fmt.Errorf("failed to start connection monitor: %w", err)
	}
	s.started = true

	s.logger.Info("Session started")
	return nil
}

// SetUser switches the identity. A nil user signs out and drops every subscription.
// Presence updates are best effort.
func (s *Session) SetUser(ctx context.Context, user *entity.User) {
	if user != nil {
		u := *user
		user = &u
	}
	prev := s.identity.swap(user)

	if prev != nil && (user == nil || prev.ID != user.ID) {
		s.registry.UnregisterAll()
		_ = s.presence.SetPresence(ctx, *prev, entity.StatusOffline)
		s.logger.Info("User signed out", logger.String("user_id", prev.ID))
	}
	if user == nil {
		return
	}

	_ = s.presence.SetPresence(ctx, *user, entity.StatusOnline)
	s.logger.Info("User signed in", logger.String("user_id", user.ID))
}

// CurrentUser returns the signed-in user
func (s *Session) CurrentUser() (entity.User, bool) {
	return s.identity.CurrentUser()
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopListener := s.stopListener
	s.stopListener = nil
	s.mu.Unlock()

	s.registry.UnregisterAll()
	s.presence.Stop(ctx)
	if user, ok := s.identity.CurrentUser(); ok {
		_ = s.presence.SetPresence(ctx, user, entity.StatusOffline)
	}

	if stopListener != nil {
		stopListener()
	}
	s.cancel()
	s.queue.Stop()
	s.wg.Wait()
	s.notifications.Close()
	s.monitor.Stop()

	s.logger.Info("Session closed")
}

// SendOption customizes a send
type SendOption func(*sendOptions)

type sendOptions struct {
	msgType  entity.MessageType
	metadata map[string]string
}

// WithType sets the message type
func WithType(t entity.MessageType) SendOption {
	return func(o *sendOptions) { o.msgType = t }
}

// WithMetadata attaches metadata to the message
func WithMetadata(m map[string]string) SendOption {
	return func(o *sendOptions) { o.metadata = m }
}

// SendMessage sends content to roomID as the current user
func (s *Session) SendMessage(ctx context.Context, roomID, content string, opts ...SendOption) (*entity.ProvisionalMessage, error) {
	o := sendOptions{msgType: entity.MessageText}
	for _, opt := range opts {
		opt(&o)
	}
	return s.chat.SendMessage(ctx, roomID, content, o.msgType, o.metadata)
}

// SubscribeRoom delivers the recent messages of the room on every change
func (s *Session) SubscribeRoom(roomID string, onMessages func([]entity.Message)) (*subscription.Handle, error) {
	return s.chat.SubscribeToRoom(roomID, onMessages)
}

// SubscribeTyping delivers the users typing in the room, excluding the current user
func (s *Session) SubscribeTyping(roomID string, onTypers func([]entity.TypingState)) (*subscription.Handle, error) {
	user, _ := s.identity.CurrentUser()
	return s.presence.SubscribeTyping(roomID, user.ID, onTypers)
}

// SubscribeNotifications delivers the notification feed of userID
func (s *Session) SubscribeNotifications(
	userID string,
	onNotifications func(usecase.Feed),
	onNewNotification func([]entity.Notification),
) (*subscription.Handle, error) {
	return s.notifications.SubscribeToUserNotifications(userID, onNotifications, onNewNotification)
}

// MarkRead marks a notification of the current user as read
func (s *Session) MarkRead(ctx context.Context, notificationID string) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return entity.ErrNotAuthenticated
	}
	return s.notifications.MarkAsRead(ctx, user.ID, notificationID)
}

// MarkAllRead marks every notification of userID as read
func (s *Session) MarkAllRead(ctx context.Context, userID string) error {
	if _, ok := s.identity.CurrentUser(); !ok {
		return entity.ErrNotAuthenticated
	}
	return s.notifications.MarkAllAsRead(ctx, userID)
}

// StartTyping marks the current user as typing in roomID
func (s *Session) StartTyping(ctx context.Context, roomID string) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return entity.ErrNotAuthenticated
	}
	return s.presence.StartTyping(ctx, roomID, user.ID, user.DisplayName())
}

// StopTyping clears the typing state of the current user in roomID
func (s *Session) StopTyping(ctx context.Context, roomID string) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return entity.ErrNotAuthenticated
	}
	return s.presence.StopTyping(ctx, roomID, user.ID)
}

// Chat returns the chat use case
func (s *Session) Chat() *usecase.ChatUseCase { return s.chat }

// Notifications returns the notification use case
func (s *Session) Notifications() *usecase.NotificationUseCase { return s.notifications }

// Presence returns the presence tracker
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Queue returns the outbound queue
func (s *Session) Queue() *outbox.Queue { return s.queue }

// Monitor returns the connection monitor
func (s *Session) Monitor() *connection.Monitor { return s.monitor }

// Registry returns the subscription registry
func (s *Session) Registry() *subscription.Registry { return s.registry }
