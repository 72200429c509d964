// Package redis implements the data channel on Redis: one key per leaf value and a pub/sub
// channel announcing changed paths.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/repository/feed"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

const (
	dataSegment    = "data:"
	changesChannel = "changes"
	scanCount      = 256
	requestTimeout = 5 * time.Second
)

// Config represents Redis channel configuration
type Config struct {
	Address      string
	Password     string
	DB           int
	KeyPrefix    string
	PingInterval time.Duration
	DialRetries  uint64
}

// Channel implements repository.DataChannel on Redis
type Channel struct {
	client    *redis.Client
	prefix    string
	pingEvery time.Duration
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pubsub *redis.PubSub

	mu        sync.Mutex
	subs      map[uint64]*subscriber
	nextID    uint64
	connected bool
	closed    bool
}

type subscriber struct {
	path string
	feed *feed.Feed[struct{}]
}

var _ repository.DataChannel = (*Channel)(nil)

// NewChannel connects to Redis. When the server stays unreachable after the dial retries the
// channel starts disconnected and keeps probing.
func NewChannel(ctx context.Context, cfg *Config, log *logger.Logger) (*Channel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	c := &Channel{
		client:    client,
		prefix:    cfg.KeyPrefix,
		pingEvery: cfg.PingInterval,
		logger:    log,
		subs:      make(map[uint64]*subscriber),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	dial := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.DialRetries), ctx)
	err := backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, dial)
	if err != nil {
		log.Warn("Redis is unreachable, starting offline",
			logger.String("address", cfg.Address),
			logger.Error(err),
		)
	} else {
		c.connected = true
		log.Info("Connected to Redis", logger.String("address", cfg.Address))
	}

	c.pubsub = client.Subscribe(c.ctx, c.prefix+changesChannel)

	c.wg.Add(2)
	go c.listen()
	go c.probe()

	return c, nil
}

func (c *Channel) key(path string) string {
	return c.prefix + dataSegment + strings.Trim(path, "/")
}

func (c *Channel) pathOf(key string) string {
	return strings.TrimPrefix(key, c.prefix+dataSegment)
}

// listen fans change announcements out to overlapping subscribers
func (c *Channel) listen() {
	defer c.wg.Done()

	for msg := range c.pubsub.Channel() {
		c.mu.Lock()
		for _, s := range c.subs {
			if s.path != entity.ConnectedPath && entity.PathsOverlap(s.path, msg.Payload) {
				s.feed.Push(struct{}{})
			}
		}
		c.mu.Unlock()
	}
}

// probe pings the server and publishes connectivity transitions
func (c *Channel) probe() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
			err := c.client.Ping(ctx).Err()
			cancel()
			c.setConnected(err == nil)
		}
	}
}

func (c *Channel) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected == connected || c.closed {
		return
	}
	c.connected = connected
	c.logger.Info("Redis connectivity changed", logger.Bool("connected", connected))

	// every subscriber refreshes: the connectivity path reports the flip, data paths catch up
	// on changes missed while offline
	for _, s := range c.subs {
		s.feed.Push(struct{}{})
	}
}

// Connected reports the last probed connectivity
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) writable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: channel is closed", entity.ErrChannelWriteFailed)
	}
	if !c.connected {
		return fmt.Errorf("%w: channel is offline", entity.ErrChannelWriteFailed)
	}
	return nil
}

// Write replaces the value at path
func (c *Channel) Write(ctx context.Context, path string, value any) error {
	return c.apply(ctx, path, map[string]any{"": value})
}

// Update writes several fields relative to path in one transaction
func (c *Channel) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return c.apply(ctx, path, fields)
}

func (c *Channel) apply(ctx context.Context, base string, fields map[string]any) error {
	if entity.PathsOverlap(base, entity.ConnectedPath) && base != "" {
		return fmt.Errorf("%w: %s is reserved", entity.ErrChannelWriteFailed, entity.ConnectedPath)
	}
	if err := c.writable(); err != nil {
		return err
	}

	var (
		deletes []string
		sets    = make(map[string]json.RawMessage)
		paths   = make([]string, 0, len(fields))
	)
	for rel, v := range fields {
		full := entity.JoinPath(base, rel)
		paths = append(paths, full)

		leaves, err := flatten(full, v)
		if err != nil {
			return fmt.Errorf("%w: failed to encode %s: %v", entity.ErrChannelWriteFailed, full, err)
		}
		for p, raw := range leaves {
			sets[c.key(p)] = raw
		}

		existing, err := c.scan(ctx, full)
		if err != nil {
			return fmt.Errorf("%w: %v", entity.ErrChannelWriteFailed, err)
		}
		deletes = append(deletes, existing...)
		for _, a := range ancestors(full) {
			deletes = append(deletes, c.key(a))
		}
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(deletes) > 0 {
			pipe.Del(ctx, deletes...)
		}
		for k, raw := range sets {
			pipe.Set(ctx, k, []byte(raw), 0)
		}
		for _, p := range paths {
			pipe.Publish(ctx, c.prefix+changesChannel, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrChannelWriteFailed, err)
	}
	return nil
}

// scan returns the key of path itself and of every descendant leaf
func (c *Channel) scan(ctx context.Context, path string) ([]string, error) {
	keys := []string{c.key(path)}

	iter := c.client.Scan(ctx, 0, c.descendants(path), scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return keys, nil
}

// descendants is the SCAN pattern matching every key below path
func (c *Channel) descendants(path string) string {
	base := escapeGlob(c.prefix + dataSegment)
	if p := strings.Trim(path, "/"); p != "" {
		return base + escapeGlob(p) + "/*"
	}
	return base + "*"
}

// Read returns the current value at path
func (c *Channel) Read(ctx context.Context, path string) (entity.Snapshot, error) {
	if path == entity.ConnectedPath {
		return connectedSnapshot(c.Connected()), nil
	}

	keys, err := c.scan(ctx, path)
	if err != nil {
		return entity.Snapshot{}, err
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	leaves := make(map[string]json.RawMessage, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		leaves[c.pathOf(keys[i])] = json.RawMessage(s)
	}

	raw, err := assemble(strings.Trim(path, "/"), leaves)
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to assemble %s: %w", path, err)
	}
	return entity.Snapshot{Path: path, Value: raw}, nil
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

	c.nextID++
	id := c.nextID
	s := &subscriber{path: path}
	s.feed = feed.New(func(struct{}) {
		ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
		defer cancel()

		snap, err := c.Read(ctx, path)
		if err != nil {
			c.logger.Warn("Failed to refresh subscription", logger.String("path", path), logger.Error(err))
			return
		}
		onChange(snap)
	}, feed.Options{
		Coalesce: true,
		Logger:   c.logger,
		OnClose: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
		},
	})
	c.subs[id] = s
	s.feed.Push(struct{}{})

	c.logger.Debug("Subscribed", logger.String("path", path), logger.Uint64("subscription_id", id))
	return s.feed, nil
}

// NewKey returns a unique time-ordered key
func (c *Channel) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ServerTime returns the Redis server clock
func (c *Channel) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := c.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get server time: %w", err)
	}
	return t.UTC(), nil
}

// Close stops the background loops, ends every subscription and closes the client
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.feed.Unsubscribe()
	}

	c.cancel()
	if err := c.pubsub.Close(); err != nil {
		c.logger.Warn("Failed to close pubsub", logger.Error(err))
	}
	c.wg.Wait()

	return c.client.Close()
}

func connectedSnapshot(connected bool) entity.Snapshot {
	raw, _ := json.Marshal(connected)
	return entity.Snapshot{Path: entity.ConnectedPath, Value: raw}
}
