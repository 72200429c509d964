package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leesangbok1/vkc-sub001/internal/config"
	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/repository/memory"
	"github.com/leesangbok1/vkc-sub001/internal/usecase"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

var alice = &entity.User{ID: "alice", Name: "Alice"}

func newSession(t *testing.T, connected bool) (*Session, *memory.Channel, fakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	ch := memory.NewChannel(memory.Config{Connected: connected, Clock: clock}, nil)

	opts := DefaultOptions()
	opts.Clock = clock
	s, err := NewSession(Dependencies{Channel: ch, DeadLetters: memory.NewDeadLetters()}, opts)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Close(context.Background()) })
	if connected {
		require.Eventually(t, s.Monitor().Connected, time.Second, 5*time.Millisecond)
	}
	return s, ch, clock
}

func roomMessages(t *testing.T, ch *memory.Channel, roomID string) []entity.Message {
	t.Helper()
	raw := map[string]entity.Message{}
	require.NoError(t, ch.Peek(entity.RoomMessagesPath(roomID)).Decode(&raw))
	return entity.MessagesFromMap(raw)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(Dependencies{}, DefaultOptions())
	assert.EqualError(t, err, "data channel cannot be nil")

	_, err = NewSession(Dependencies{Channel: memory.NewChannel(memory.Config{}, nil)}, DefaultOptions())
	assert.EqualError(t, err, "dead letter repository cannot be nil")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.MaxAttempts = 5
	cfg.Realtime.BaseDelay = 2 * time.Second
	cfg.Display.SortBy = "oldest"
	cfg.Display.MaxDisplayCount = 0
	cfg.Realtime.NotificationLimit = 20

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 5, opts.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, opts.Retry.BaseDelay)
	assert.Equal(t, usecase.SortOldest, opts.Display.SortBy)
	assert.Equal(t, 20, opts.Display.MaxDisplayCount)

	assert.Equal(t, DefaultOptions(), OptionsFromConfig(nil))
}

func TestSession_OfflineSendDeliveredOnReconnect(t *testing.T) {
	s, ch, _ := newSession(t, false)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	p, err := s.SendMessage(ctx, "r1", "hi")
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPending, p.Status)
	assert.Equal(t, 1, s.Queue().Len())

	ch.SetConnected(true)

	require.Eventually(t, func() bool { return len(roomMessages(t, ch, "r1")) == 1 }, time.Second, 5*time.Millisecond)
	msg := roomMessages(t, ch, "r1")[0]
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Zero(t, s.Queue().Len())
	assert.Equal(t, entity.ConnectionConnected, s.Monitor().Current())
}

func TestSession_SendRequiresUser(t *testing.T) {
	s, _, _ := newSession(t, true)
	ctx := context.Background()

	_, err := s.SendMessage(ctx, "r1", "hi")
	assert.ErrorIs(t, err, entity.ErrNotAuthenticated)
	assert.ErrorIs(t, s.MarkRead(ctx, "n1"), entity.ErrNotAuthenticated)
	assert.ErrorIs(t, s.StartTyping(ctx, "r1"), entity.ErrNotAuthenticated)
	assert.ErrorIs(t, s.StopTyping(ctx, "r1"), entity.ErrNotAuthenticated)
}

func TestSession_SendOptions(t *testing.T) {
	s, ch, _ := newSession(t, true)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	p, err := s.SendMessage(ctx, "r1", "http://img", WithType(entity.MessageImage), WithMetadata(map[string]string{"w": "10"}))
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryConfirmed, p.Status)

	msgs := roomMessages(t, ch, "r1")
	require.Len(t, msgs, 1)
	assert.Equal(t, entity.MessageImage, msgs[0].Type)
	assert.Equal(t, "10", msgs[0].Metadata["w"])
}

func TestSession_SetUserPresence(t *testing.T) {
	s, ch, _ := newSession(t, true)
	ctx := context.Background()

	s.SetUser(ctx, alice)
	var p entity.UserPresence
	require.NoError(t, ch.Peek(entity.UserPresencePath("alice")).Decode(&p))
	assert.Equal(t, entity.StatusOnline, p.Status)

	_, err := s.SubscribeRoom("r1", func([]entity.Message) {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Registry().Count())

	s.SetUser(ctx, nil)
	assert.Zero(t, s.Registry().Count())
	require.NoError(t, ch.Peek(entity.UserPresencePath("alice")).Decode(&p))
	assert.Equal(t, entity.StatusOffline, p.Status)

	_, ok := s.CurrentUser()
	assert.False(t, ok)
}

func TestSession_TypingVisibleToOthers(t *testing.T) {
	s, ch, clock := newSession(t, true)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	typers, err := s.WatchTyping(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, s.StartTyping(ctx, "r1"))
	assert.True(t, ch.Peek(entity.TypingStatePath("r1", "alice")).Exists())

	for ts := range typers {
		assert.Empty(t, ts, "own typing state is filtered out")
		break
	}

	clock.Advance(6 * time.Second)
	require.Eventually(t, func() bool {
		return !ch.Peek(entity.TypingStatePath("r1", "alice")).Exists()
	}, time.Second, 5*time.Millisecond)
}

func TestSession_WatchRoom(t *testing.T) {
	s, _, clock := newSession(t, true)
	s.SetUser(context.Background(), alice)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.WatchRoom(ctx, "r1")
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, "r1", "one")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.SendMessage(ctx, "r1", "two")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case msgs := <-stream:
			return len(msgs) == 2 && msgs[1].Content == "two"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-stream:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
	assert.False(t, s.Registry().Has(entity.RoomKey("r1")))
}

func TestSession_WatchNotifications(t *testing.T) {
	s, _, _ := newSession(t, true)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	stream, err := s.WatchNotifications(ctx, "alice")
	require.NoError(t, err)

	_, err = s.Notifications().CreateNotification(ctx, "alice", usecase.NotificationInput{Title: "hello"})
	require.NoError(t, err)

	var feed usecase.Feed
	require.Eventually(t, func() bool {
		select {
		case feed = <-stream:
			return feed.UnreadCount == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	id := feed.Items[0].ID

	require.NoError(t, s.MarkRead(ctx, id))
	assert.Zero(t, s.Notifications().UnreadCount("alice"))
}

func TestSession_MarkAllRead(t *testing.T) {
	s, ch, _ := newSession(t, true)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	for i := 0; i < 5; i++ {
		_, err := s.Notifications().CreateNotification(ctx, "u1", usecase.NotificationInput{Title: "x"})
		require.NoError(t, err)
	}

	_, err := s.SubscribeNotifications("u1", nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Notifications().UnreadCount("u1") == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.MarkAllRead(ctx, "u1"))
	assert.Zero(t, s.Notifications().UnreadCount("u1"))

	raw := map[string]entity.Notification{}
	require.NoError(t, ch.Peek(entity.UserNotificationsPath("u1")).Decode(&raw))
	require.Len(t, raw, 5)
	for _, n := range raw {
		assert.True(t, n.Read)
	}
}

func TestSession_MarkAllReadRequiresUser(t *testing.T) {
	s, ch, _ := newSession(t, true)
	ctx := context.Background()

	n, err := s.Notifications().CreateNotification(ctx, "u1", usecase.NotificationInput{Title: "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.MarkAllRead(ctx, "u1"), entity.ErrNotAuthenticated)
	assert.ErrorIs(t, s.MarkRead(ctx, n.ID), entity.ErrNotAuthenticated)

	var stored entity.Notification
	require.NoError(t, ch.Peek(entity.NotificationPath("u1", n.ID)).Decode(&stored))
	assert.False(t, stored.Read)
}

func TestSession_Close(t *testing.T) {
	s, ch, _ := newSession(t, true)
	ctx := context.Background()
	s.SetUser(ctx, alice)

	require.NoError(t, s.StartTyping(ctx, "r1"))
	_, err := s.SubscribeRoom("r1", func([]entity.Message) {})
	require.NoError(t, err)

	s.Close(ctx)
	s.Close(ctx)

	assert.Zero(t, s.Registry().Count())
	assert.Zero(t, s.Presence().ActiveTimers())
	assert.False(t, ch.Peek(entity.TypingStatePath("r1", "alice")).Exists())

	var p entity.UserPresence
	require.NoError(t, ch.Peek(entity.UserPresencePath("alice")).Decode(&p))
	assert.Equal(t, entity.StatusOffline, p.Status)

	assert.Error(t, s.Start(ctx))
}
