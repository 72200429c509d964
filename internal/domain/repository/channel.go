package repository

import (
	"context"
	"time"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

// Subscription is a live feed opened on a DataChannel
type Subscription interface {
	// Unsubscribe stops delivery. It is idempotent and may be called from the feed's own callback.
	Unsubscribe()
}

// DataChannel is the keyed read/write/subscribe store the realtime core syncs with
type DataChannel interface {
	// Write replaces the value at path. A nil value deletes it.
	Write(ctx context.Context, path string, value any) error

	// Update writes several fields relative to path in one batch
	Update(ctx context.Context, path string, fields map[string]any) error

	// Read returns the current value at path
	Read(ctx context.Context, path string) (entity.Snapshot, error)

	// Subscribe delivers the full value at path now and after every overlapping change.
	// Deliveries for one subscription never run concurrently.
	// Subscribing to entity.ConnectedPath yields the connectivity flag.
	Subscribe(path string, onChange func(entity.Snapshot)) (Subscription, error)

	// NewKey returns a unique, time-ordered record key
	NewKey() string

	// ServerTime returns the store's notion of now
	ServerTime(ctx context.Context) (time.Time, error)
}
