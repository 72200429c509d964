package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/internal/repository/feed"
	"github.com/leesangbok1/vkc-sub001/internal/service/subscription"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

const defaultAlertDismissAfter = 5 * time.Second

// NotificationInput is the caller-supplied part of a new notification
type NotificationInput struct {
	Type     entity.NotificationType
	Title    string
	Message  string
	Data     map[string]string
	Priority entity.Priority
}

// NotificationConfig tunes feed delivery and alerting
type NotificationConfig struct {
	Display           DisplayOptions
	Settings          Settings
	AlertDismissAfter time.Duration
	Clock             clockwork.Clock
}

// NotificationUseCase keeps per-user notification feeds in sync and raises local alerts
type NotificationUseCase struct {
	channel  repository.DataChannel
	registry *subscription.Registry
	host     HostState
	alerter  Alerter
	metrics  *metrics.Metrics
	logger   *logger.Logger
	clock    clockwork.Clock

	mu       sync.Mutex
	display  DisplayOptions
	settings Settings
	dismiss  time.Duration
	feeds    map[string]*userFeed
	timers   map[string]clockwork.Timer
}

// NewNotificationUseCase creates a new notification use case. host and alerter may be nil,
// in which case no local alert is ever shown.
func NewNotificationUseCase(
	channel repository.DataChannel,
	registry *subscription.Registry,
	host HostState,
	alerter Alerter,
	cfg NotificationConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) (*NotificationUseCase, error) {
	if channel == nil {
		return nil, errors.New("data channel cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("subscription registry cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Display.SortBy == "" {
		cfg.Display.SortBy = SortNewest
	}
	if cfg.AlertDismissAfter <= 0 {
		cfg.AlertDismissAfter = defaultAlertDismissAfter
	}

	return &NotificationUseCase{
		channel:  channel,
		registry: registry,
		host:     host,
		alerter:  alerter,
		metrics:  m,
		logger:   log.Named("notifications"),
		clock:    cfg.Clock,
		display:  cfg.Display,
		settings: cfg.Settings,
		dismiss:  cfg.AlertDismissAfter,
		feeds:    make(map[string]*userFeed),
		timers:   make(map[string]clockwork.Timer),
	}, nil
}

// DisplayOptions returns the current display options
func (uc *NotificationUseCase) DisplayOptions() DisplayOptions {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.display
}

// SetDisplayOptions replaces the display options. Open feeds pick them up on their next delivery.
func (uc *NotificationUseCase) SetDisplayOptions(opts DisplayOptions) {
	if opts.SortBy == "" {
		opts.SortBy = SortNewest
	}
	uc.mu.Lock()
	uc.display = opts
	uc.mu.Unlock()
}

// Settings returns the alert preferences
func (uc *NotificationUseCase) Settings() Settings {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.settings
}

// SetSettings replaces the alert preferences
func (uc *NotificationUseCase) SetSettings(s Settings) {
	uc.mu.Lock()
	uc.settings = s
	uc.mu.Unlock()
}

type feedEvent struct {
	feed  Feed
	fresh []entity.Notification
}

// userFeed holds what the subscriber has been shown for one user. Remote pushes and local
// optimistic flips both go through out, so callbacks never overlap and may re-enter the use case.
type userFeed struct {
	userID   string
	onList   func(Feed)
	onNew    func([]entity.Notification)
	out      *feed.Feed[feedEvent]
	mu       sync.Mutex
	items    map[string]entity.Notification
	pending  map[string]bool
	seen     map[string]struct{}
	baseline bool
}

// SubscribeToUserNotifications registers the user's notification feed. The first delivery is a
// baseline: onNew only sees unread notifications that arrive after it.
func (uc *NotificationUseCase) SubscribeToUserNotifications(
	userID string,
	onList func(Feed),
	onNew func([]entity.Notification),
) (*subscription.Handle, error) {
	if userID == "" {
		return nil, entity.ErrNotAuthenticated
	}
	if onList == nil {
		onList = func(Feed) {}
	}

	f := &userFeed{
		userID:  userID,
		onList:  onList,
		onNew:   onNew,
		items:   make(map[string]entity.Notification),
		pending: make(map[string]bool),
		seen:    make(map[string]struct{}),
	}
	f.out = feed.New(uc.deliver(f), feed.Options{Logger: uc.logger})

	sub, err := uc.channel.Subscribe(entity.UserNotificationsPath(userID), func(s entity.Snapshot) {
		uc.onSnapshot(f, s)
	})
	if err != nil {
		f.out.Unsubscribe()
		uc.logger.Warn("Failed to subscribe to notifications",
			logger.String("user_id", userID),
			logger.Error(err),
		)
		onList(Feed{UserID: userID, Items: []entity.Notification{}})
		return nil, fmt.Errorf("failed to subscribe to notifications of %s: %w", userID, err)
	}

	uc.mu.Lock()
	uc.feeds[userID] = f
	uc.mu.Unlock()

	return uc.registry.Register(entity.NotificationsKey(userID), func() {
		sub.Unsubscribe()
		f.out.Unsubscribe()
		uc.mu.Lock()
		if uc.feeds[userID] == f {
			delete(uc.feeds, userID)
		}
		uc.mu.Unlock()
	}), nil
}

func (uc *NotificationUseCase) onSnapshot(f *userFeed, s entity.Snapshot) {
	remote := make(map[string]entity.Notification)
	if err := s.Decode(&remote); err != nil {
		uc.logger.Warn("Failed to decode notifications",
			logger.String("user_id", f.userID),
			logger.Error(err),
		)
		return
	}

	f.mu.Lock()
	items := make(map[string]entity.Notification, len(remote))
	for id, n := range remote {
		if n.ID == "" {
			n.ID = id
		}
		if n.Read {
			delete(f.pending, id)
		}
		items[id] = n
	}
	for id := range f.pending {
		if _, ok := items[id]; !ok {
			delete(f.pending, id)
		}
	}
	f.items = items

	var fresh []entity.Notification
	for id, n := range items {
		if _, ok := f.seen[id]; ok {
			continue
		}
		f.seen[id] = struct{}{}
		if f.baseline && !n.Read && !f.pending[id] {
			fresh = append(fresh, n)
		}
	}
	f.baseline = true
	ev := feedEvent{feed: uc.buildLocked(f), fresh: fresh}
	f.mu.Unlock()

	entity.SortNotifications(ev.fresh, false)
	f.out.Push(ev)
}

// buildLocked renders the feed with pending read flips applied. Callers hold f.mu.
func (uc *NotificationUseCase) buildLocked(f *userFeed) Feed {
	opts := uc.DisplayOptions()

	items := make([]entity.Notification, 0, len(f.items))
	unread := 0
	for id, n := range f.items {
		if f.pending[id] {
			n.Read = true
		}
		if !n.Read {
			unread++
		}
		items = append(items, n)
	}
	entity.SortNotifications(items, opts.SortBy == SortOldest)
	if opts.MaxDisplayCount > 0 && len(items) > opts.MaxDisplayCount {
		items = items[:opts.MaxDisplayCount]
	}

	return Feed{
		UserID:      f.userID,
		Items:       items,
		UnreadCount: unread,
		Animate:     opts.AnimateNewItems,
	}
}

func (uc *NotificationUseCase) deliver(f *userFeed) func(feedEvent) {
	return func(ev feedEvent) {
		f.onList(ev.feed)
		if len(ev.fresh) == 0 {
			return
		}

		uc.metrics.AddNewNotifications(len(ev.fresh))
		for _, n := range ev.fresh {
			uc.alert(n)
		}
		if f.onNew != nil {
			f.onNew(ev.fresh)
		}
	}
}

func (uc *NotificationUseCase) alert(n entity.Notification) {
	if uc.alerter == nil || !ShouldAlert(n, uc.host, uc.DisplayOptions()) {
		return
	}

	uc.mu.Lock()
	a := BuildAlert(n, uc.settings, uc.dismiss)
	uc.mu.Unlock()

	if err := uc.alerter.Show(a); err != nil {
		uc.logger.Warn("Failed to show alert",
			logger.String("notification_id", n.ID),
			logger.Error(err),
		)
		return
	}
	uc.metrics.IncAlerts(string(n.Priority))

	if a.AutoDismissAfter <= 0 {
		return
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if t, ok := uc.timers[a.ID]; ok {
		t.Stop()
	}
	var t clockwork.Timer
	t = uc.clock.AfterFunc(a.AutoDismissAfter, func() {
		uc.mu.Lock()
		if uc.timers[a.ID] == t {
			delete(uc.timers, a.ID)
		}
		uc.mu.Unlock()
		uc.alerter.Dismiss(a.ID)
	})
	uc.timers[a.ID] = t
}

func (uc *NotificationUseCase) feedFor(userID string) *userFeed {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.feeds[userID]
}

// flip marks ids as locally read (or reverts that) and redelivers the feed
func (uc *NotificationUseCase) flip(userID string, ids []string, read bool) {
	f := uc.feedFor(userID)
	if f == nil {
		return
	}

	f.mu.Lock()
	changed := false
	for _, id := range ids {
		if read {
			if n, ok := f.items[id]; ok && !n.Read && !f.pending[id] {
				f.pending[id] = true
				changed = true
			}
			continue
		}
		if f.pending[id] {
			delete(f.pending, id)
			changed = true
		}
	}
	var ev feedEvent
	if changed {
		ev = feedEvent{feed: uc.buildLocked(f)}
	}
	f.mu.Unlock()

	if changed {
		f.out.Push(ev)
	}
}

// unreadLocal lists the ids the open feed shows as unread
func (uc *NotificationUseCase) unreadLocal(userID string) []string {
	f := uc.feedFor(userID)
	if f == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0)
	for id, n := range f.items {
		if !n.Read && !f.pending[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// MarkAsRead flips the notification locally, then persists the read flag. A failed write reverts the flip.
func (uc *NotificationUseCase) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	if userID == "" {
		return entity.ErrNotAuthenticated
	}
	if notificationID == "" {
		return errors.New("notification id cannot be empty")
	}

	ids := []string{notificationID}
	uc.flip(userID, ids, true)

	err := uc.channel.Update(ctx, entity.NotificationPath(userID, notificationID), map[string]any{
		"read":   true,
		"readAt": uc.clock.Now().UTC(),
	})
	if err != nil {
		uc.flip(userID, ids, false)
		uc.logger.Warn("Failed to mark notification as read",
			logger.String("user_id", userID),
			logger.String("notification_id", notificationID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to mark notification %s as read: %w", notificationID, err)
	}
	return nil
}

// MarkAllAsRead flips every unread notification locally, then persists them in one batched update
func (uc *NotificationUseCase) MarkAllAsRead(ctx context.Context, userID string) error {
	if userID == "" {
		return entity.ErrNotAuthenticated
	}

	local := uc.unreadLocal(userID)
	uc.flip(userID, local, true)

	revert := func(err error) error {
		uc.flip(userID, local, false)
		uc.logger.Warn("Failed to mark all notifications as read",
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to mark all notifications of %s as read: %w", userID, err)
	}

	snap, err := uc.channel.Read(ctx, entity.UserNotificationsPath(userID))
	if err != nil {
		return revert(err)
	}
	remote := make(map[string]entity.Notification)
	if err := snap.Decode(&remote); err != nil {
		return revert(err)
	}

	now := uc.clock.Now().UTC()
	fields := make(map[string]any)
	for id, n := range remote {
		if n.Read {
			continue
		}
		fields[id+"/read"] = true
		fields[id+"/readAt"] = now
	}
	if len(fields) == 0 {
		return nil
	}

	if err := uc.channel.Update(ctx, entity.UserNotificationsPath(userID), fields); err != nil {
		return revert(err)
	}
	uc.logger.Debug("Marked notifications as read",
		logger.String("user_id", userID),
		logger.Int("count", len(fields)/2),
	)
	return nil
}

// UnreadCount is the unread count of the user's open feed, zero when no feed is open
func (uc *NotificationUseCase) UnreadCount(userID string) int {
	f := uc.feedFor(userID)
	if f == nil {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, item := range f.items {
		if !item.Read && !f.pending[id] {
			n++
		}
	}
	return n
}

// CreateNotification writes a new unread notification for recipientID
func (uc *NotificationUseCase) CreateNotification(ctx context.Context, recipientID string, in NotificationInput) (*entity.Notification, error) {
	if recipientID == "" {
		return nil, errors.New("recipient id cannot be empty")
	}
	if in.Type == "" {
		in.Type = entity.NotificationSystem
	}
	if in.Priority == "" {
		in.Priority = entity.PriorityMedium
	}

	createdAt, err := uc.channel.ServerTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server time: %w", err)
	}

	n := &entity.Notification{
		ID:          uc.channel.NewKey(),
		RecipientID: recipientID,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		Data:        in.Data,
		Priority:    in.Priority,
		CreatedAt:   createdAt,
	}
	if err := uc.channel.Write(ctx, entity.NotificationPath(recipientID, n.ID), n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	uc.logger.Debug("Notification created",
		logger.String("recipient_id", recipientID),
		logger.String("notification_id", n.ID),
		logger.String("type", string(n.Type)),
	)
	return n, nil
}

// NotifyNewAnswer tells a question author that someone answered
func (uc *NotificationUseCase) NotifyNewAnswer(ctx context.Context, questionAuthorID, questionID, questionTitle, answererName string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, questionAuthorID, NotificationInput{
		Type:     entity.NotificationNewAnswer,
		Title:    "New answer",
		Message:  fmt.Sprintf("%s answered \"%s\"", answererName, questionTitle),
		Data:     map[string]string{"questionId": questionID, "answererName": answererName},
		Priority: entity.PriorityHigh,
	})
}

// NotifyAnswerAccepted tells an answer author that their answer was accepted
func (uc *NotificationUseCase) NotifyAnswerAccepted(ctx context.Context, answerAuthorID, questionID, questionTitle string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, answerAuthorID, NotificationInput{
		Type:     entity.NotificationAnswerAccepted,
		Title:    "Answer accepted",
		Message:  fmt.Sprintf("Your answer to \"%s\" was accepted", questionTitle),
		Data:     map[string]string{"questionId": questionID},
		Priority: entity.PriorityHigh,
	})
}

// NotifyQuestionLiked tells a question author that someone liked the question
func (uc *NotificationUseCase) NotifyQuestionLiked(ctx context.Context, questionAuthorID, questionID, questionTitle, likerName string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, questionAuthorID, NotificationInput{
		Type:     entity.NotificationQuestionLiked,
		Title:    "Question liked",
		Message:  fmt.Sprintf("%s liked \"%s\"", likerName, questionTitle),
		Data:     map[string]string{"questionId": questionID, "likerName": likerName},
		Priority: entity.PriorityLow,
	})
}

// NotifyExpertResponse tells a user that an expert responded to their question
func (uc *NotificationUseCase) NotifyExpertResponse(ctx context.Context, userID, questionID, questionTitle, expertName string) (*entity.Notification, error) {
	return uc.CreateNotification(ctx, userID, NotificationInput{
		Type:     entity.NotificationExpertResponse,
		Title:    "Expert response",
		Message:  fmt.Sprintf("Expert %s responded to \"%s\"", expertName, questionTitle),
		Data:     map[string]string{"questionId": questionID, "expertName": expertName},
		Priority: entity.PriorityHigh,
	})
}

// Close stops pending auto-dismiss timers
func (uc *NotificationUseCase) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for id, t := range uc.timers {
		t.Stop()
		delete(uc.timers, id)
	}
}
