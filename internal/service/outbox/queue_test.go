package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/internal/repository/memory"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// fakeSender records every attempt and fails while fail returns an error
type fakeSender struct {
	mu    sync.Mutex
	calls []entity.QueuedMessage
	fail  func(item *entity.QueuedMessage, call int) error
}

func (s *fakeSender) send(ctx context.Context, item *entity.QueuedMessage) (*entity.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, *item)
	n := len(s.calls)
	fail := s.fail
	s.mu.Unlock()

	if fail != nil {
		if err := fail(item, n); err != nil {
			return nil, err
		}
	}
	return &entity.Message{ID: "m-" + item.ClientID, RoomID: item.RoomID, Content: item.Content}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSender) contents(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if roomID == "" || c.RoomID == roomID {
			out = append(out, c.Content)
		}
	}
	return out
}

type results struct {
	mu  sync.Mutex
	all []Result
}

func (r *results) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, res)
}

func (r *results) get() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.all...)
}

type fixture struct {
	queue       *Queue
	sender      *fakeSender
	clock       fakeClock
	connected   *atomic.Bool
	deadLetters *memory.DeadLetters
	results     *results
}

func newFixture(t *testing.T, connected bool) *fixture {
	t.Helper()

	f := &fixture{
		sender:      &fakeSender{},
		clock:       clockwork.NewFakeClock(),
		connected:   &atomic.Bool{},
		deadLetters: memory.NewDeadLetters(),
		results:     &results{},
	}
	f.connected.Store(connected)

	q, err := NewQueue(f.sender.send, f.deadLetters, f.connected.Load, Config{
		Policy: DefaultRetryPolicy(),
		Clock:  f.clock,
	}, nil, metrics.New())
	require.NoError(t, err)
	q.OnResult(f.results.add)
	f.queue = q

	t.Cleanup(q.Stop)
	return f
}

func (f *fixture) attemptsOf(clientID string) int {
	for _, item := range f.queue.Snapshot() {
		if item.ClientID == clientID {
			return item.Attempts
		}
	}
	return -1
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))

	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestNewQueue_Validation(t *testing.T) {
	send := (&fakeSender{}).send
	dl := memory.NewDeadLetters()
	probe := func() bool { return true }

	_, err := NewQueue(nil, dl, probe, Config{}, nil, nil)
	assert.Error(t, err)
	_, err = NewQueue(send, nil, probe, Config{}, nil, nil)
	assert.Error(t, err)
	_, err = NewQueue(send, dl, nil, Config{}, nil, nil)
	assert.Error(t, err)

	q, err := NewQueue(send, dl, probe, Config{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetryPolicy(), q.Policy())
	q.Stop()
}

func TestQueue_EnqueueValidation(t *testing.T) {
	f := newFixture(t, false)

	assert.Error(t, f.queue.Enqueue(nil))
	assert.Error(t, f.queue.Enqueue(&entity.QueuedMessage{Content: "no room"}))

	item := &entity.QueuedMessage{RoomID: "r1", Content: "hi"}
	require.NoError(t, f.queue.Enqueue(item))
	assert.NotEmpty(t, item.ClientID)
	assert.False(t, item.EnqueuedAt.IsZero())
}

func TestQueue_OfflineThenDrainPreservesOrder(t *testing.T) {
	f := newFixture(t, false)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r1", Content: fmt.Sprintf("a%d", i)}))
		require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r2", Content: fmt.Sprintf("b%d", i)}))
	}
	assert.Equal(t, 10, f.queue.Len())
	assert.Equal(t, 0, f.sender.count())

	f.connected.Store(true)
	f.queue.Drain(context.Background())

	assert.Equal(t, 10, f.sender.count())
	assert.Equal(t, []string{"a0", "a1", "a2", "a3", "a4"}, f.sender.contents("r1"))
	assert.Equal(t, []string{"b0", "b1", "b2", "b3", "b4"}, f.sender.contents("r2"))
	assert.Equal(t, 0, f.queue.Len())

	res := f.results.get()
	require.Len(t, res, 10)
	for _, r := range res {
		assert.True(t, r.Delivered())
		require.NotNil(t, r.Message)
	}
}

func TestQueue_DeadLetterAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, true)
	f.sender.fail = func(*entity.QueuedMessage, int) error { return errors.New("write rejected") }

	item := &entity.QueuedMessage{ClientID: "c1", RoomID: "r1", Content: "doomed"}
	require.NoError(t, f.queue.Enqueue(item))

	// first attempt runs immediately, then 1s and 2s linear backoff
	require.Eventually(t, func() bool { return f.attemptsOf("c1") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.sender.count())

	f.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, f.sender.count())

	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return f.attemptsOf("c1") == 2 }, time.Second, time.Millisecond)

	f.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(f.results.get()) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 3, f.sender.count())
	assert.Equal(t, 0, f.queue.Len())

	res := f.results.get()[0]
	assert.False(t, res.Delivered())
	assert.ErrorIs(t, res.Err, entity.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, res.Item.Attempts)

	letters, err := f.deadLetters.List(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "c1", letters[0].Message.ClientID)
	assert.Equal(t, "write rejected", letters[0].Reason)

	// never a fourth attempt
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, f.sender.count())
}

func TestQueue_FailedItemBlocksOnlyItsRoom(t *testing.T) {
	f := newFixture(t, false)
	f.sender.fail = func(item *entity.QueuedMessage, _ int) error {
		if item.RoomID == "bad" {
			return errors.New("rejected")
		}
		return nil
	}

	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{ClientID: "x1", RoomID: "bad", Content: "x1"}))
	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{ClientID: "x2", RoomID: "bad", Content: "x2"}))
	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "good", Content: "g1"}))
	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "good", Content: "g2"}))

	f.connected.Store(true)
	f.queue.Drain(context.Background())

	assert.Equal(t, []string{"g1", "g2"}, f.sender.contents("good"))
	// x2 waits behind x1 to keep room order
	assert.Equal(t, []string{"x1"}, f.sender.contents("bad"))
	assert.Equal(t, 2, f.queue.RoomLen("bad"))
	assert.Equal(t, 1, f.attemptsOf("x1"))
	assert.Equal(t, 0, f.attemptsOf("x2"))
}

func TestQueue_DisconnectMidDrainKeepsItems(t *testing.T) {
	f := newFixture(t, false)
	f.sender.fail = func(item *entity.QueuedMessage, call int) error {
		if call == 2 {
			f.connected.Store(false)
			return errors.New("connection reset")
		}
		return nil
	}

	for _, c := range []string{"m1", "m2", "m3"} {
		require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{ClientID: c, RoomID: "r1", Content: c}))
	}

	f.connected.Store(true)
	f.queue.Drain(context.Background())

	assert.Equal(t, 2, f.queue.RoomLen("r1"))
	assert.Equal(t, 0, f.attemptsOf("m2"), "a failure caused by disconnect does not consume an attempt")
	assert.Zero(t, f.deadLetters.Len())

	f.sender.fail = nil
	f.connected.Store(true)
	f.queue.Drain(context.Background())

	assert.Equal(t, []string{"m1", "m2", "m2", "m3"}, f.sender.contents("r1"))
	assert.Equal(t, 0, f.queue.Len())
}

func TestQueue_EnqueueFailedItemWaitsForBackoff(t *testing.T) {
	f := newFixture(t, true)

	item := &entity.QueuedMessage{ClientID: "c1", RoomID: "r1", Content: "hi", Attempts: 1, LastError: "timeout"}
	require.NoError(t, f.queue.Enqueue(item))

	assert.Equal(t, f.clock.Now().Add(time.Second), item.NextRetryAt)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, f.sender.count())

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.sender.count() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.queue.Len() == 0 }, time.Second, time.Millisecond)
}

func TestQueue_EnqueueExhaustedItemGoesToDeadLetters(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{ClientID: "c1", RoomID: "r1", Attempts: 3, LastError: "boom"}))

	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, 1, f.deadLetters.Len())
	assert.Equal(t, 0, f.sender.count())
}

func TestQueue_ConnectedEnqueueSendsImmediately(t *testing.T) {
	f := newFixture(t, true)

	for i := 0; i < 20; i++ {
		require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r1", Content: fmt.Sprintf("%02d", i)}))
	}

	require.Eventually(t, func() bool { return f.sender.count() == 20 }, time.Second, time.Millisecond)
	got := f.sender.contents("r1")
	for i, c := range got {
		assert.Equal(t, fmt.Sprintf("%02d", i), c)
	}
}

func TestQueue_RetryDeadLetter(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.deadLetters.Put(ctx, &entity.DeadLetter{
		Message: entity.QueuedMessage{ClientID: "c1", RoomID: "r1", Content: "again", Attempts: 3},
	}))

	item, err := f.queue.Retry(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Attempts)

	require.Eventually(t, func() bool { return f.sender.count() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, f.deadLetters.Len())

	_, err = f.queue.Retry(ctx, "c1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

type mockDeadLetters struct {
	mock.Mock
}

func (m *mockDeadLetters) Put(ctx context.Context, letter *entity.DeadLetter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}

func (m *mockDeadLetters) Take(ctx context.Context, clientID string) (*entity.DeadLetter, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DeadLetter), args.Error(1)
}

func (m *mockDeadLetters) List(ctx context.Context) ([]*entity.DeadLetter, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*entity.DeadLetter), args.Error(1)
}

func TestQueue_DeadLetterStoreErrors(t *testing.T) {
	dl := &mockDeadLetters{}
	storeErr := errors.New("tarantool unavailable")
	dl.On("Put", mock.Anything, mock.MatchedBy(func(l *entity.DeadLetter) bool {
		return l.Message.ClientID == "c1" && l.Reason == "boom"
	})).Return(storeErr).Once()
	dl.On("Take", mock.Anything, "c1").Return(nil, storeErr).Once()

	connected := &atomic.Bool{}
	connected.Store(true)
	res := &results{}
	q, err := NewQueue((&fakeSender{}).send, dl, connected.Load, Config{Clock: clockwork.NewFakeClock()}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(q.Stop)
	q.OnResult(res.add)

	require.NoError(t, q.Enqueue(&entity.QueuedMessage{ClientID: "c1", RoomID: "r1", Attempts: 3, LastError: "boom"}))

	// the terminal result is still reported when the log rejects the letter
	require.Len(t, res.get(), 1)
	assert.ErrorIs(t, res.get()[0].Err, entity.ErrMaxRetriesExceeded)

	_, err = q.Retry(context.Background(), "c1")
	assert.ErrorIs(t, err, storeErr)
	assert.Zero(t, q.Len())

	dl.AssertExpectations(t)
}

func TestQueue_StopCancelsRetries(t *testing.T) {
	f := newFixture(t, true)
	f.sender.fail = func(*entity.QueuedMessage, int) error { return errors.New("rejected") }

	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{ClientID: "c1", RoomID: "r1"}))
	require.Eventually(t, func() bool { return f.attemptsOf("c1") == 1 }, time.Second, time.Millisecond)

	f.queue.Stop()
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, f.sender.count())
	assert.Equal(t, 1, f.queue.Len())
	assert.Error(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r1"}))
}

func TestQueue_SnapshotOrder(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r2", Content: "first"}))
	f.clock.Advance(time.Millisecond)
	require.NoError(t, f.queue.Enqueue(&entity.QueuedMessage{RoomID: "r1", Content: "second"}))

	snap := f.queue.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "first", snap[0].Content)
	assert.Equal(t, "second", snap[1].Content)
}
