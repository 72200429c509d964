// Package outbox queues outbound chat messages per room and retries them with bounded backoff.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Sender performs one delivery attempt of a queued message
type Sender func(ctx context.Context, item *entity.QueuedMessage) (*entity.Message, error)

// Result is the terminal outcome of a queued message
type Result struct {
	Item    entity.QueuedMessage
	Message *entity.Message
	Err     error
}

// Delivered reports whether the message was written
func (r Result) Delivered() bool {
	return r.Err == nil
}

// Config represents queue configuration
type Config struct {
	Policy RetryPolicy
	Clock  clockwork.Clock
}

type roomQueue struct {
	items        []*entity.QueuedMessage
	draining     bool
	retry        clockwork.Timer
	retryGen     uint64
	retryPending bool
}

// Queue holds messages that could not be written yet
type Queue struct {
	sender      Sender
	deadLetters repository.DeadLetterRepository
	connected   func() bool
	policy      RetryPolicy
	clock       clockwork.Clock
	logger      *logger.Logger
	metrics     *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	rooms    map[string]*roomQueue
	onResult func(Result)
	stopped  bool
}

// NewQueue creates an empty queue
func NewQueue(
	sender Sender,
	deadLetters repository.DeadLetterRepository,
	connected func() bool,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) (*Queue, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if deadLetters == nil {
		return nil, fmt.Errorf("dead letter repository cannot be nil")
	}
	if connected == nil {
		return nil, fmt.Errorf("connectivity probe cannot be nil")
	}
	if cfg.Policy.MaxAttempts < 1 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		sender:      sender,
		deadLetters: deadLetters,
		connected:   connected,
		policy:      cfg.Policy,
		clock:       cfg.Clock,
		logger:      log,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		rooms:       make(map[string]*roomQueue),
	}, nil
}

// Policy returns the retry policy in use
func (q *Queue) Policy() RetryPolicy {
	return q.policy
}

// OnResult sets the hook receiving terminal outcomes
func (q *Queue) OnResult(fn func(Result)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onResult = fn
}

// Enqueue appends item to its room's FIFO. An item that already failed waits for its
// backoff delay; a fresh item is sent right away when connected and nothing is in flight.
func (q *Queue) Enqueue(item *entity.QueuedMessage) error {
	if item == nil {
		return fmt.Errorf("queued message cannot be nil")
	}
	if item.RoomID == "" {
		return fmt.Errorf("queued message has no room")
	}
	if item.ClientID == "" {
		item.ClientID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.clock.Now()
	}

	if item.Attempts > 0 && q.policy.Exhausted(item.Attempts) {
		cause := errors.New("send failed")
		if item.LastError != "" {
			cause = errors.New(item.LastError)
		}
		q.deadLetter(q.ctx, item, cause)
		return nil
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return fmt.Errorf("queue is stopped")
	}

	rq := q.rooms[item.RoomID]
	if rq == nil {
		rq = &roomQueue{}
		q.rooms[item.RoomID] = rq
	}
	rq.items = append(rq.items, item)

	kick := false
	if item.Attempts > 0 {
		delay := q.policy.Delay(item.Attempts)
		item.NextRetryAt = q.clock.Now().Add(delay)
		q.scheduleLocked(item.RoomID, rq, delay)
	} else if !rq.draining && !rq.retryPending {
		kick = true
	}
	total := q.lenLocked()
	q.mu.Unlock()

	q.metrics.SetQueued(total)
	q.logger.Debug("Message queued",
		logger.String("room_id", item.RoomID),
		logger.String("client_id", item.ClientID),
		logger.Int("attempts", item.Attempts),
	)

	if kick && q.connected() {
		q.spawnDrain(item.RoomID)
	}
	return nil
}

// Drain sends every queued item, rooms in parallel and items of one room in order.
// It returns once every room drained or paused on a retry or disconnect.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	rooms := make([]string, 0, len(q.rooms))
	for id := range q.rooms {
		rooms = append(rooms, id)
	}
	q.mu.Unlock()

	if len(rooms) == 0 {
		return
	}

	q.logger.Info("Draining outbound queue", logger.Int("rooms", len(rooms)))

	var wg sync.WaitGroup
	for _, roomID := range rooms {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			q.drainRoom(ctx, roomID)
		}(roomID)
	}
	wg.Wait()
}

func (q *Queue) spawnDrain(roomID string) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		q.drainRoom(q.ctx, roomID)
	}()
}

func (q *Queue) drainRoom(ctx context.Context, roomID string) {
	q.mu.Lock()
	rq := q.rooms[roomID]
	if rq == nil || rq.draining || q.stopped {
		q.mu.Unlock()
		return
	}
	rq.draining = true
	q.cancelRetryLocked(rq)
	q.mu.Unlock()

	defer func() { q.metrics.SetQueued(q.Len()) }()

	for {
		if ctx.Err() != nil || !q.connected() {
			q.mu.Lock()
			q.releaseLocked(roomID, rq)
			q.mu.Unlock()

			q.logger.Info("Drain paused", logger.String("room_id", roomID), logger.Int("remaining", q.RoomLen(roomID)))
			// a reconnect may have raced with this exit
			if ctx.Err() == nil && q.connected() {
				q.spawnDrain(roomID)
			}
			return
		}

		q.mu.Lock()
		if len(rq.items) == 0 {
			q.releaseLocked(roomID, rq)
			q.mu.Unlock()
			return
		}
		item := rq.items[0]
		q.mu.Unlock()

		start := q.clock.Now()
		msg, err := q.sender(ctx, item)
		q.metrics.ObserveSend(q.clock.Since(start))

		if err == nil {
			q.mu.Lock()
			rq.items = rq.items[1:]
			q.mu.Unlock()

			q.metrics.IncSent()
			q.logger.Debug("Queued message delivered",
				logger.String("room_id", roomID),
				logger.String("client_id", item.ClientID),
			)
			q.emit(Result{Item: *item, Message: msg})
			continue
		}

		if !q.connected() {
			// lost the connection mid-send: keep the attempt budget for the next drain
			q.mu.Lock()
			item.LastError = err.Error()
			q.mu.Unlock()
			continue
		}

		q.mu.Lock()
		item.Attempts++
		item.LastError = err.Error()
		if q.policy.Exhausted(item.Attempts) {
			rq.items = rq.items[1:]
			q.mu.Unlock()
			q.deadLetter(ctx, item, err)
			continue
		}

		delay := q.policy.Delay(item.Attempts)
		item.NextRetryAt = q.clock.Now().Add(delay)
		q.scheduleLocked(roomID, rq, delay)
		q.releaseLocked(roomID, rq)
		attempts := item.Attempts
		q.mu.Unlock()

		q.metrics.IncRetries()
		q.logger.Warn("Send failed, retry scheduled",
			logger.String("room_id", roomID),
			logger.String("client_id", item.ClientID),
			logger.Int("attempts", attempts),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		return
	}
}

// releaseLocked ends a drain pass and forgets the room once it holds nothing
func (q *Queue) releaseLocked(roomID string, rq *roomQueue) {
	rq.draining = false
	if len(rq.items) == 0 && !rq.retryPending && q.rooms[roomID] == rq {
		delete(q.rooms, roomID)
	}
}

// scheduleLocked arms a retry drain for the room unless one is already pending
func (q *Queue) scheduleLocked(roomID string, rq *roomQueue, delay time.Duration) {
	if rq.retryPending || q.stopped {
		return
	}

	rq.retryGen++
	gen := rq.retryGen
	rq.retryPending = true
	rq.retry = q.clock.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.stopped || rq.retryGen != gen || !rq.retryPending {
			q.mu.Unlock()
			return
		}
		rq.retryPending = false
		rq.retry = nil
		q.wg.Add(1)
		q.mu.Unlock()

		defer q.wg.Done()
		q.drainRoom(q.ctx, roomID)
	})
}

func (q *Queue) cancelRetryLocked(rq *roomQueue) {
	if rq.retry != nil {
		rq.retry.Stop()
	}
	rq.retry = nil
	rq.retryPending = false
	rq.retryGen++
}

func (q *Queue) deadLetter(ctx context.Context, item *entity.QueuedMessage, cause error) {
	letter := &entity.DeadLetter{
		Message:  *item,
		Reason:   cause.Error(),
		FailedAt: q.clock.Now(),
	}

	if err := q.deadLetters.Put(ctx, letter); err != nil {
		q.logger.Error("Failed to record dead letter",
			logger.String("client_id", item.ClientID),
			logger.Error(err),
		)
	}

	q.metrics.IncDeadLetters()
	q.logger.Warn("Message moved to dead-letter log",
		logger.String("room_id", item.RoomID),
		logger.String("client_id", item.ClientID),
		logger.Int("attempts", item.Attempts),
		logger.Error(cause),
	)

	q.emit(Result{
		Item: *item,
		Err:  fmt.Errorf("%w: %v", entity.ErrMaxRetriesExceeded, cause),
	})
}

func (q *Queue) emit(r Result) {
	q.mu.Lock()
	fn := q.onResult
	q.mu.Unlock()

	if fn != nil {
		fn(r)
	}
}

// Retry moves a dead letter back into the queue with a fresh attempt budget
func (q *Queue) Retry(ctx context.Context, clientID string) (*entity.QueuedMessage, error) {
	letter, err := q.deadLetters.Take(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to take dead letter: %w", err)
	}

	item := letter.Message
	item.Attempts = 0
	item.NextRetryAt = time.Time{}
	item.LastError = ""

	if err := q.Enqueue(&item); err != nil {
		return nil, fmt.Errorf("failed to requeue message: %w", err)
	}

	q.logger.Info("Dead letter requeued",
		logger.String("room_id", item.RoomID),
		logger.String("client_id", item.ClientID),
	)
	return &item, nil
}

// Len returns the number of queued items across rooms
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *Queue) lenLocked() int {
	n := 0
	for _, rq := range q.rooms {
		n += len(rq.items)
	}
	return n
}

// RoomLen returns the number of queued items of a room
func (q *Queue) RoomLen(roomID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rq := q.rooms[roomID]; rq != nil {
		return len(rq.items)
	}
	return 0
}

// Snapshot returns copies of every queued item, ordered by enqueue time
func (q *Queue) Snapshot() []entity.QueuedMessage {
	q.mu.Lock()
	out := make([]entity.QueuedMessage, 0, q.lenLocked())
	for _, rq := range q.rooms {
		for _, item := range rq.items {
			out = append(out, *item)
		}
	}
	q.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// Stop cancels pending retries and waits for background drains. Queued items are kept.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for _, rq := range q.rooms {
		q.cancelRetryLocked(rq)
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.logger.Info("Outbound queue stopped", logger.Int("queued", q.Len()))
}
