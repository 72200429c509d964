// Package presence tracks short-lived typing and online state.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/service/subscription"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Config represents presence tracker configuration
type Config struct {
	TypingTTL    time.Duration
	OnlineWindow time.Duration
	Clock        clockwork.Clock
}

type typingKey struct {
	roomID string
	userID string
}

type typingTimer struct {
	timer    clockwork.Timer
	gen      uint64
	deadline time.Time
}

// Tracker writes typing and online records and serves the matching feeds
type Tracker struct {
	channel      repository.DataChannel
	registry     *subscription.Registry
	logger       *logger.Logger
	clock        clockwork.Clock
	ttl          time.Duration
	onlineWindow time.Duration

	mu      sync.Mutex
	timers  map[typingKey]*typingTimer
	gen     uint64
	stopped bool
}

// NewTracker creates a presence tracker
func NewTracker(ch repository.DataChannel, registry *subscription.Registry, cfg Config, log *logger.Logger) (*Tracker, error) {
	if ch == nil {
		return nil, fmt.Errorf("data channel cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("subscription registry cannot be nil")
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 5 * time.Second
	}
	if cfg.OnlineWindow <= 0 {
		cfg.OnlineWindow = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Tracker{
		channel:      ch,
		registry:     registry,
		logger:       log,
		clock:        cfg.Clock,
		ttl:          cfg.TypingTTL,
		onlineWindow: cfg.OnlineWindow,
		timers:       make(map[typingKey]*typingTimer),
	}, nil
}

// StartTyping marks userID as typing in roomID for the TTL and re-arms the local expiry.
// A failed write is logged and returned, never retried; the local expiry is armed regardless.
func (t *Tracker) StartTyping(ctx context.Context, roomID, userID, displayName string) error {
	now := t.clock.Now()
	state := entity.TypingState{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		StartedAt:   now,
		ExpiresAt:   now.Add(t.ttl),
	}

	t.arm(typingKey{roomID: roomID, userID: userID})

	if err := t.channel.Write(ctx, entity.TypingStatePath(roomID, userID), state); err != nil {
		t.logger.Warn("Failed to write typing state",
			logger.String("room_id", roomID),
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// StopTyping clears the typing record and cancels the local expiry
func (t *Tracker) StopTyping(ctx context.Context, roomID, userID string) error {
	t.disarm(typingKey{roomID: roomID, userID: userID})

	if err := t.channel.Write(ctx, entity.TypingStatePath(roomID, userID), nil); err != nil {
		t.logger.Warn("Failed to clear typing state",
			logger.String("room_id", roomID),
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func (t *Tracker) arm(key typingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if old := t.timers[key]; old != nil {
		old.timer.Stop()
	}

	t.gen++
	gen := t.gen
	tt := &typingTimer{gen: gen, deadline: t.clock.Now().Add(t.ttl)}
	tt.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(key, gen) })
	t.timers[key] = tt
}

func (t *Tracker) disarm(key typingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old := t.timers[key]; old != nil {
		old.timer.Stop()
		delete(t.timers, key)
	}
}

func (t *Tracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	current := t.timers[key]
	if current == nil || current.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.logger.Debug("Typing state expired", logger.String("room_id", key.roomID), logger.String("user_id", key.userID))
	_ = t.StopTyping(context.Background(), key.roomID, key.userID)
}

// ExpireNow clears every local typing record whose deadline has passed and returns how many
// were cleared. Expiry timers normally do this; a host that slept through them can call it on wake.
func (t *Tracker) ExpireNow(ctx context.Context) int {
	now := t.clock.Now()

	t.mu.Lock()
	var due []typingKey
	for key, tt := range t.timers {
		if !tt.deadline.After(now) {
			tt.timer.Stop()
			delete(t.timers, key)
			due = append(due, key)
		}
	}
	t.mu.Unlock()

	for _, key := range due {
		_ = t.StopTyping(ctx, key.roomID, key.userID)
	}
	return len(due)
}

// ActiveTimers returns the number of armed typing expiries
func (t *Tracker) ActiveTimers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// SubscribeTyping delivers the typers of roomID other than localUserID on every change.
// Entries past their expiry are dropped even if their owner never cleared them.
// A delivery already inside the callback when the handle is torn down is allowed to finish.
func (t *Tracker) SubscribeTyping(roomID, localUserID string, onTypers func([]entity.TypingState)) (*subscription.Handle, error) {
	w := &typingWatcher{tracker: t, roomID: roomID, localUserID: localUserID, onTypers: onTypers}

	sub, err := t.channel.Subscribe(entity.RoomTypingPath(roomID), w.onSnapshot)
	if err != nil {
		onTypers(nil)
		return nil, fmt.Errorf("failed to subscribe to typing of room %s: %w", roomID, err)
	}

	return t.registry.Register(entity.TypingKey(roomID), func() {
		w.close()
		sub.Unsubscribe()
	}), nil
}

type typingWatcher struct {
	tracker     *Tracker
	roomID      string
	localUserID string
	onTypers    func([]entity.TypingState)

	// deliverMu serializes callbacks from the feed and the expiry timer
	deliverMu sync.Mutex

	mu     sync.Mutex
	last   map[string]entity.TypingState
	timer  clockwork.Timer
	closed atomic.Bool
}

func (w *typingWatcher) onSnapshot(s entity.Snapshot) {
	states := map[string]entity.TypingState{}
	if err := s.Decode(&states); err != nil {
		w.tracker.logger.Warn("Failed to decode typing states", logger.String("room_id", w.roomID), logger.Error(err))
	}

	w.mu.Lock()
	w.last = states
	w.mu.Unlock()

	w.deliver()
}

// deliver recomputes the visible typers and arms a recheck at the earliest expiry
func (w *typingWatcher) deliver() {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.mu.Lock()
	if w.closed.Load() {
		w.mu.Unlock()
		return
	}

	now := w.tracker.clock.Now()
	typers := make([]entity.TypingState, 0, len(w.last))
	var next time.Time
	for uid, st := range w.last {
		if st.UserID == "" {
			st.UserID = uid
		}
		if st.RoomID == "" {
			st.RoomID = w.roomID
		}
		if st.UserID == w.localUserID || st.Expired(now) {
			continue
		}
		typers = append(typers, st)
		if !st.ExpiresAt.IsZero() && (next.IsZero() || st.ExpiresAt.Before(next)) {
			next = st.ExpiresAt
		}
	}
	entity.SortTypers(typers)

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if !next.IsZero() {
		w.timer = w.tracker.clock.AfterFunc(next.Sub(now), w.deliver)
	}
	w.mu.Unlock()

	// a teardown may have landed while the list was built
	if w.closed.Load() {
		return
	}
	w.onTypers(typers)
}

func (w *typingWatcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed.Store(true)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// SetPresence publishes the online status of a user
func (t *Tracker) SetPresence(ctx context.Context, user entity.User, status entity.PresenceStatus) error {
	p := entity.UserPresence{
		UserID:   user.ID,
		Name:     user.DisplayName(),
		Status:   status,
		LastSeen: t.clock.Now(),
	}

	if err := t.channel.Write(ctx, entity.UserPresencePath(user.ID), p); err != nil {
		t.logger.Warn("Failed to write presence",
			logger.String("user_id", user.ID),
			logger.String("status", string(status)),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// SubscribeOnlineUsers delivers users seen within the online window that are not offline
func (t *Tracker) SubscribeOnlineUsers(onUsers func([]entity.UserPresence)) (*subscription.Handle, error) {
	sub, err := t.channel.Subscribe(entity.PresencePath, func(s entity.Snapshot) {
		all := map[string]entity.UserPresence{}
		if err := s.Decode(&all); err != nil {
			t.logger.Warn("Failed to decode presence", logger.Error(err))
		}
		onUsers(t.online(all))
	})
	if err != nil {
		onUsers(nil)
		return nil, fmt.Errorf("failed to subscribe to presence: %w", err)
	}

	return t.registry.Register(entity.OnlineUsersKey(), sub.Unsubscribe), nil
}

func (t *Tracker) online(all map[string]entity.UserPresence) []entity.UserPresence {
	cutoff := t.clock.Now().Add(-t.onlineWindow)

	users := make([]entity.UserPresence, 0, len(all))
	for uid, p := range all {
		if p.UserID == "" {
			p.UserID = uid
		}
		if p.Status == entity.StatusOffline || p.LastSeen.Before(cutoff) {
			continue
		}
		users = append(users, p)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// Stop cancels every typing expiry and clears the typing records this tracker owns
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	keys := make([]typingKey, 0, len(t.timers))
	for k, tt := range t.timers {
		tt.timer.Stop()
		keys = append(keys, k)
	}
	t.timers = make(map[typingKey]*typingTimer)
	t.mu.Unlock()

	for _, k := range keys {
		if err := t.channel.Write(ctx, entity.TypingStatePath(k.roomID, k.userID), nil); err != nil {
			t.logger.Debug("Failed to clear typing state on stop", logger.String("room_id", k.roomID), logger.Error(err))
		}
	}

	t.logger.Info("Presence tracker stopped", logger.Int("cleared_typing", len(keys)))
}
