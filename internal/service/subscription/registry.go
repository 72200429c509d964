// Package subscription keeps at most one live teardown per subscription key.
package subscription

import (
	"sort"
	"sync"

	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Handle is the caller's view of one registration
type Handle struct {
	key      string
	registry *Registry
	entry    *entry
}

type entry struct {
	teardown func()
	once     sync.Once
	done     chan struct{}
}

func (e *entry) close() {
	e.once.Do(func() {
		close(e.done)
		if e.teardown != nil {
			e.teardown()
		}
	})
}

// Key returns the subscription key
func (h *Handle) Key() string {
	return h.key
}

// Unsubscribe tears down this registration. It does nothing if the key has since been
// registered again, and is safe to call repeatedly or from the feed's own callback.
func (h *Handle) Unsubscribe() {
	h.registry.release(h.key, h.entry)
}

// Done is closed once the registration has been torn down
func (h *Handle) Done() <-chan struct{} {
	return h.entry.done
}

// Registry maps subscription keys to teardown functions
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(log *logger.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  log,
		metrics: m,
	}
}

// Register stores teardown under key. A teardown already registered under key is
// invoked first, so the old and new feeds never both deliver after Register returns.
func (r *Registry) Register(key string, teardown func()) *Handle {
	e := &entry{teardown: teardown, done: make(chan struct{})}

	r.mu.Lock()
	old := r.entries[key]
	r.entries[key] = e
	count := len(r.entries)
	r.mu.Unlock()

	if old != nil {
		r.logger.Debug("Replacing subscription", logger.String("key", key))
		old.close()
	}
	r.metrics.SetSubscriptions(count)

	return &Handle{key: key, registry: r, entry: e}
}

// Unregister tears down and forgets key. Missing keys are ignored.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	e := r.entries[key]
	delete(r.entries, key)
	count := len(r.entries)
	r.mu.Unlock()

	if e == nil {
		return
	}
	r.metrics.SetSubscriptions(count)
	e.close()
}

// UnregisterAll tears down every registration
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
	r.metrics.SetSubscriptions(0)

	if len(entries) > 0 {
		r.logger.Info("All subscriptions removed", logger.Int("count", len(entries)))
	}
}

// Has reports whether key has a live registration
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Count returns the number of live registrations
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns the live keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

func (r *Registry) release(key string, e *entry) {
	r.mu.Lock()
	current := r.entries[key]
	if current == e {
		delete(r.entries, key)
	}
	count := len(r.entries)
	r.mu.Unlock()

	if current == e {
		r.metrics.SetSubscriptions(count)
	}
	e.close()
}
