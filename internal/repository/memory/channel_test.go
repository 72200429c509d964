package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

type recorder struct {
	mu    sync.Mutex
	snaps []entity.Snapshot
}

func (r *recorder) record(s entity.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() entity.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func newConnected() *Channel {
	return NewChannel(Config{Connected: true, Clock: clockwork.NewFakeClock()}, nil)
}

func TestChannel_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	ch := newConnected()

	require.NoError(t, ch.Write(ctx, "chat_rooms/r1", entity.Room{ID: "r1", Type: entity.RoomGroup, MessageCount: 2}))

	snap, err := ch.Read(ctx, "chat_rooms/r1")
	require.NoError(t, err)

	var room entity.Room
	require.NoError(t, snap.Decode(&room))
	assert.Equal(t, "r1", room.ID)
	assert.EqualValues(t, 2, room.MessageCount)

	count, err := ch.Read(ctx, "chat_rooms/r1/messageCount")
	require.NoError(t, err)
	assert.Equal(t, "2", string(count.Value))
}

func TestChannel_WriteNilDeletesAndPrunes(t *testing.T) {
	ctx := context.Background()
	ch := newConnected()

	require.NoError(t, ch.Write(ctx, "chat_typing/r1/u1", map[string]string{"userId": "u1"}))
	require.NoError(t, ch.Write(ctx, "chat_typing/r1/u1", nil))

	assert.False(t, ch.Peek("chat_typing/r1").Exists())
	assert.False(t, ch.Peek("chat_typing").Exists())
}

func TestChannel_Update(t *testing.T) {
	ctx := context.Background()
	ch := newConnected()

	require.NoError(t, ch.Write(ctx, "notifications/u1/n1", entity.Notification{ID: "n1", Title: "a"}))
	require.NoError(t, ch.Write(ctx, "notifications/u1/n2", entity.Notification{ID: "n2", Title: "b"}))

	require.NoError(t, ch.Update(ctx, "notifications/u1", map[string]any{
		"n1/read": true,
		"n2/read": true,
	}))

	var feed map[string]entity.Notification
	require.NoError(t, ch.Peek("notifications/u1").Decode(&feed))
	assert.True(t, feed["n1"].Read)
	assert.True(t, feed["n2"].Read)
	assert.Equal(t, "a", feed["n1"].Title)
}

func TestChannel_WriteOffline(t *testing.T) {
	ch := NewChannel(Config{}, nil)

	err := ch.Write(context.Background(), "chat_rooms/r1", map[string]string{"id": "r1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrChannelWriteFailed)

	_, err = ch.Read(context.Background(), "chat_rooms/r1")
	assert.Error(t, err)
}

func TestChannel_WriteInterceptor(t *testing.T) {
	ch := newConnected()
	ch.SetWriteInterceptor(func(path string) error {
		if path == "chat_messages/r1/m1" {
			return errors.New("quota exceeded")
		}
		return nil
	})

	err := ch.Write(context.Background(), "chat_messages/r1/m1", map[string]string{"content": "x"})
	assert.ErrorIs(t, err, entity.ErrChannelWriteFailed)
	assert.NoError(t, ch.Write(context.Background(), "chat_messages/r1/m2", map[string]string{"content": "y"}))
}

func TestChannel_ReservedPath(t *testing.T) {
	ch := newConnected()
	err := ch.Write(context.Background(), entity.ConnectedPath, false)
	assert.ErrorIs(t, err, entity.ErrChannelWriteFailed)
}

func TestChannel_SubscribeInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	ch := newConnected()
	rec := &recorder{}

	sub, err := ch.Subscribe("chat_messages/r1", rec.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, time.Millisecond)
	assert.False(t, rec.last().Exists())

	require.NoError(t, ch.Write(ctx, "chat_messages/r1/m1", entity.Message{ID: "m1", Content: "hi"}))
	require.NoError(t, ch.Write(ctx, "chat_messages/r2/m1", entity.Message{ID: "m1", Content: "other room"}))
	require.NoError(t, ch.Write(ctx, "chat_messages/r1/m1/content", "edited"))

	require.Eventually(t, func() bool { return rec.len() == 3 }, time.Second, time.Millisecond)

	var msgs map[string]entity.Message
	require.NoError(t, rec.last().Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs["m1"].Content)
}

func TestChannel_SubscribeAncestorWrite(t *testing.T) {
	ch := newConnected()
	rec := &recorder{}

	sub, err := ch.Subscribe("chat_messages/r1/m1", rec.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, ch.Write(context.Background(), "chat_messages/r1", map[string]any{
		"m1": map[string]string{"content": "bulk"},
	}))

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, time.Millisecond)
}

func TestChannel_Connectivity(t *testing.T) {
	ch := NewChannel(Config{}, nil)
	rec := &recorder{}

	sub, err := ch.Subscribe(entity.ConnectedPath, rec.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ch.SetConnected(true)
	ch.SetConnected(true)
	ch.SetConnected(false)

	require.Eventually(t, func() bool { return rec.len() == 3 }, time.Second, time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.False(t, rec.snaps[0].Bool())
	assert.True(t, rec.snaps[1].Bool())
	assert.False(t, rec.snaps[2].Bool())
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	ch := newConnected()
	rec := &recorder{}

	sub, err := ch.Subscribe("chat_rooms", rec.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, ch.SubscriberCount())

	require.NoError(t, ch.Write(context.Background(), "chat_rooms/r1", map[string]string{"id": "r1"}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.len())
}

func TestChannel_FailSubscriptions(t *testing.T) {
	ch := newConnected()
	ch.FailSubscriptions(errors.New("permission denied"))

	_, err := ch.Subscribe("chat_rooms", func(entity.Snapshot) {})
	assert.ErrorIs(t, err, entity.ErrChannelSubscribeFailed)

	ch.FailSubscriptions(nil)
	sub, err := ch.Subscribe("chat_rooms", func(entity.Snapshot) {})
	require.NoError(t, err)
	sub.Unsubscribe()
}

func TestChannel_Close(t *testing.T) {
	ch := newConnected()
	_, err := ch.Subscribe("a", func(entity.Snapshot) {})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, 0, ch.SubscriberCount())

	_, err = ch.Subscribe("a", func(entity.Snapshot) {})
	assert.ErrorIs(t, err, entity.ErrChannelSubscribeFailed)
}

func TestChannel_NewKeyOrdered(t *testing.T) {
	ch := newConnected()
	prev := ch.NewKey()
	for i := 0; i < 100; i++ {
		next := ch.NewKey()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestChannel_ServerTimeUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ch := NewChannel(Config{Connected: true, Clock: clock}, nil)

	now, err := ch.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), now)
}

func TestDeadLetters(t *testing.T) {
	ctx := context.Background()
	d := NewDeadLetters()

	require.NoError(t, d.Put(ctx, &entity.DeadLetter{Message: entity.QueuedMessage{ClientID: "c1"}, Reason: "boom"}))
	require.NoError(t, d.Put(ctx, &entity.DeadLetter{Message: entity.QueuedMessage{ClientID: "c2"}}))
	assert.Error(t, d.Put(ctx, nil))

	list, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].Message.ClientID)

	letter, err := d.Take(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "boom", letter.Reason)

	_, err = d.Take(ctx, "c1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
