package app

import (
	"context"
	"sync"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/service/subscription"
	"github.com/leesangbok1/vkc-sub001/internal/usecase"
)

// latest is a one-slot channel where a newer value replaces one the consumer has not taken yet
type latest[T any] struct {
	mu     sync.Mutex
	out    chan T
	closed bool
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{out: make(chan T, 1)}
}

func (l *latest[T]) push(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case <-l.out:
	default:
	}
	l.out <- v
}

func (l *latest[T]) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.out)
	}
}

// pipe closes the stream once ctx is done or the subscription is replaced
func pipe[T any](ctx context.Context, l *latest[T], h *subscription.Handle) {
	go func() {
		select {
		case <-ctx.Done():
		case <-h.Done():
		}
		h.Unsubscribe()
		l.close()
	}()
}

// WatchRoom streams the room's message list. It shares the room subscription with SubscribeRoom,
// so either call replaces the other.
func (s *Session) WatchRoom(ctx context.Context, roomID string) (<-chan []entity.Message, error) {
	l := newLatest[[]entity.Message]()
	h, err := s.chat.SubscribeToRoom(roomID, l.push)
	if err != nil {
		l.close()
		return nil, err
	}
	pipe(ctx, l, h)
	return l.out, nil
}

// WatchNotifications streams the notification feed of userID
func (s *Session) WatchNotifications(ctx context.Context, userID string) (<-chan usecase.Feed, error) {
	l := newLatest[usecase.Feed]()
	h, err := s.notifications.SubscribeToUserNotifications(userID, l.push, nil)
	if err != nil {
		l.close()
		return nil, err
	}
	pipe(ctx, l, h)
	return l.out, nil
}

// WatchTyping streams the users typing in the room
func (s *Session) WatchTyping(ctx context.Context, roomID string) (<-chan []entity.TypingState, error) {
	l := newLatest[[]entity.TypingState]()
	h, err := s.SubscribeTyping(roomID, l.push)
	if err != nil {
		l.close()
		return nil, err
	}
	pipe(ctx, l, h)
	return l.out, nil
}
