package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

func TestNewChannel_NilConfig(t *testing.T) {
	_, err := NewChannel(context.Background(), nil, nil)
	assert.EqualError(t, err, "config cannot be nil")
}

func TestChannel_KeyMapping(t *testing.T) {
	c := &Channel{prefix: "rt:"}

	tests := []struct {
		path string
		key  string
	}{
		{path: "chat_rooms/r1", key: "rt:data:chat_rooms/r1"},
		{path: "/chat_rooms/r1/", key: "rt:data:chat_rooms/r1"},
		{path: "", key: "rt:data:"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.key, c.key(tt.path))
			assert.Equal(t, entity.JoinPath(tt.path), c.pathOf(tt.key))
		})
	}
}

func TestChannel_DescendantsPattern(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		path   string
		want   string
	}{
		{name: "plain prefix", prefix: "rt:", path: "chat_rooms/r1", want: "rt:data:chat_rooms/r1/*"},
		{name: "root", prefix: "rt:", path: "/", want: "rt:data:*"},
		{name: "glob prefix", prefix: "rt*[1]?:", path: "chat_rooms/r1", want: `rt\*\[1\]\?:data:chat_rooms/r1/*`},
		{name: "glob prefix root", prefix: "rt*:", path: "", want: `rt\*:data:*`},
		{name: "glob path", prefix: "rt:", path: "chat_rooms/r*", want: `rt:data:chat_rooms/r\*/*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Channel{prefix: tt.prefix}
			assert.Equal(t, tt.want, c.descendants(tt.path))
		})
	}
}

func TestChannel_ReservedPathRejected(t *testing.T) {
	c := &Channel{prefix: "rt:", connected: true}

	err := c.Write(context.Background(), entity.ConnectedPath, true)
	assert.ErrorIs(t, err, entity.ErrChannelWriteFailed)
}

func TestChannel_WriteOffline(t *testing.T) {
	c := &Channel{prefix: "rt:"}

	err := c.Write(context.Background(), "chat_rooms/r1", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, entity.ErrChannelWriteFailed)
	assert.Contains(t, err.Error(), "offline")
}

func TestChannel_ConnectedSnapshot(t *testing.T) {
	c := &Channel{connected: true}

	snap, err := c.Read(context.Background(), entity.ConnectedPath)
	require.NoError(t, err)
	assert.True(t, snap.Bool())
	assert.False(t, connectedSnapshot(false).Bool())
}
