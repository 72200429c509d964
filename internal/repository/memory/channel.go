// Package memory implements the data channel and dead-letter log in process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/repository/feed"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// WriteInterceptor may veto a write to path by returning an error
type WriteInterceptor func(path string) error

// Channel is an in-process tree store implementing repository.DataChannel
type Channel struct {
	clock  clockwork.Clock
	logger *logger.Logger

	mu           sync.Mutex
	root         map[string]any
	subs         map[uint64]*subscriber
	nextID       uint64
	connected    bool
	closed       bool
	interceptor  WriteInterceptor
	subscribeErr error
}

type subscriber struct {
	path string
	feed *feed.Feed[entity.Snapshot]
}

// Config represents memory channel configuration
type Config struct {
	// Connected is the initial connectivity
	Connected bool
	Clock     clockwork.Clock
}

var _ repository.DataChannel = (*Channel)(nil)

// NewChannel creates an empty in-memory channel
func NewChannel(cfg Config, log *logger.Logger) *Channel {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Channel{
		clock:     clock,
		logger:    log,
		root:      map[string]any{},
		subs:      make(map[uint64]*subscriber),
		connected: cfg.Connected,
	}
}

// SetConnected flips connectivity and notifies connectivity subscribers on transition
func (c *Channel) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected == connected {
		return
	}
	c.connected = connected

	c.logger.Info("Memory channel connectivity changed", logger.Bool("connected", connected))

	for _, s := range c.subs {
		if s.path == entity.ConnectedPath {
			s.feed.Push(connectedSnapshot(connected))
		}
	}
}

// Connected reports the current connectivity
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetWriteInterceptor installs a hook consulted before every write
func (c *Channel) SetWriteInterceptor(fn WriteInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptor = fn
}

// FailSubscriptions makes every following Subscribe call fail with err. Nil restores normal behavior.
func (c *Channel) FailSubscriptions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// Write replaces the value at path
func (c *Channel) Write(ctx context.Context, path string, value any) error {
	return c.apply(ctx, path, map[string]any{"": value})
}

// Update writes several fields relative to path in one batch
func (c *Channel) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return c.apply(ctx, path, fields)
}

func (c *Channel) apply(ctx context.Context, base string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrChannelWriteFailed, err)
	}
	if entity.PathsOverlap(base, entity.ConnectedPath) && base != "" {
		return fmt.Errorf("%w: %s is reserved", entity.ErrChannelWriteFailed, entity.ConnectedPath)
	}

	paths := make([]string, 0, len(fields))
	values := make([]any, 0, len(fields))
	for rel, v := range fields {
		norm, err := normalize(v)
		if err != nil {
			return fmt.Errorf("%w: failed to encode %s: %v", entity.ErrChannelWriteFailed, rel, err)
		}
		paths = append(paths, entity.JoinPath(base, rel))
		values = append(values, norm)
	}

	c.mu.Lock()
	intercept := c.interceptor
	c.mu.Unlock()

	if intercept != nil {
		for _, p := range paths {
			if err := intercept(p); err != nil {
				return fmt.Errorf("%w: %v", entity.ErrChannelWriteFailed, err)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: channel is closed", entity.ErrChannelWriteFailed)
	}
	if !c.connected {
		return fmt.Errorf("%w: channel is offline", entity.ErrChannelWriteFailed)
	}

	for i, p := range paths {
		segs := entity.SplitPath(p)
		if len(segs) == 0 {
			if m, ok := values[i].(map[string]any); ok {
				c.root = m
			} else {
				c.root = map[string]any{}
			}
			continue
		}
		setAt(c.root, segs, values[i])
	}

	c.notifyLocked(paths)
	return nil
}

func (c *Channel) notifyLocked(changed []string) {
	for _, s := range c.subs {
		if s.path == entity.ConnectedPath {
			continue
		}
		for _, p := range changed {
			if entity.PathsOverlap(s.path, p) {
				s.feed.Push(c.snapshotLocked(s.path))
				break
			}
		}
	}
}

func (c *Channel) snapshotLocked(path string) entity.Snapshot {
	v := getAt(c.root, entity.SplitPath(path))
	if v == nil {
		return entity.Snapshot{Path: path}
	}

	raw, err := jsonMarshal(v)
	if err != nil {
		c.logger.Error("Failed to encode snapshot", logger.String("path", path), logger.Error(err))
		return entity.Snapshot{Path: path}
	}
	return entity.Snapshot{Path: path, Value: raw}
}

// Read returns the current value at path
func (c *Channel) Read(ctx context.Context, path string) (entity.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return entity.Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if path == entity.ConnectedPath {
		return connectedSnapshot(c.connected), nil
	}
	if !c.connected {
		return entity.Snapshot{}, fmt.Errorf("failed to read %s: channel is offline", path)
	}
	return c.snapshotLocked(path), nil
}

// Peek returns the value at path regardless of connectivity
func (c *Channel) Peek(path string) entity.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(path)
}

// Subscribe delivers the value at path now and after every overlapping change
func (c *Channel) Subscribe(path string, onChange func(entity.Snapshot)) (repository.Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("%w: callback cannot be nil", entity.ErrChannelSubscribeFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: channel is closed", entity.ErrChannelSubscribeFailed)
	}
	if c.subscribeErr != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrChannelSubscribeFailed, c.subscribeErr)
	}

	c.nextID++
	id := c.nextID
	s := &subscriber{path: path}
	s.feed = feed.New(onChange, feed.Options{
		Logger:  c.logger,
		OnClose: func() { c.remove(id) },
	})
	c.subs[id] = s

	if path == entity.ConnectedPath {
		s.feed.Push(connectedSnapshot(c.connected))
	} else {
		s.feed.Push(c.snapshotLocked(path))
	}

	c.logger.Debug("Subscribed", logger.String("path", path), logger.Uint64("subscription_id", id))
	return s.feed, nil
}

func (c *Channel) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// SubscriberCount returns the number of open subscriptions
func (c *Channel) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// NewKey returns a unique time-ordered key
func (c *Channel) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ServerTime returns the channel clock's now
func (c *Channel) ServerTime(ctx context.Context) (time.Time, error) {
	return c.clock.Now(), nil
}

// Close terminates every subscription
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	feeds := make([]*feed.Feed[entity.Snapshot], 0, len(c.subs))
	for _, s := range c.subs {
		feeds = append(feeds, s.feed)
	}
	c.subs = make(map[uint64]*subscriber)
	c.mu.Unlock()

	for _, f := range feeds {
		f.Unsubscribe()
	}
	return nil
}

func connectedSnapshot(connected bool) entity.Snapshot {
	if connected {
		return entity.Snapshot{Path: entity.ConnectedPath, Value: []byte("true")}
	}
	return entity.Snapshot{Path: entity.ConnectedPath, Value: []byte("false")}
}
