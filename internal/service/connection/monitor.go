// Package connection tracks the connectivity of the data channel.
package connection

import (
	"fmt"
	"sync"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/internal/metrics"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Listener is notified with the new state on every transition
type Listener func(state entity.ConnectionState)

// Monitor follows the reserved connectivity path and fans transitions out to listeners
type Monitor struct {
	channel repository.DataChannel
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     entity.ConnectionState
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64
	sub       repository.Subscription
}

// NewMonitor creates a monitor in the disconnected state
func NewMonitor(ch repository.DataChannel, log *logger.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Monitor{
		channel:   ch,
		logger:    log,
		metrics:   m,
		listeners: make(map[uint64]Listener),
	}
}

// Start subscribes to the connectivity path. Calling it again is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub != nil {
		return nil
	}

	sub, err := m.channel.Subscribe(entity.ConnectedPath, func(s entity.Snapshot) {
		m.set(entity.ConnectionStateOf(s.Bool()))
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to connectivity: %w", err)
	}
	m.sub = sub

	m.logger.Info("Connection monitor started")
	return nil
}

// Stop releases the connectivity subscription. Only used at session end.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		m.logger.Info("Connection monitor stopped")
	}
}

// Current returns the last known state
func (m *Monitor) Current() entity.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the last known state is connected
func (m *Monitor) Connected() bool {
	return m.Current() == entity.ConnectionConnected
}

// OnChange registers a listener and returns a function removing it
func (m *Monitor) OnChange(l Listener) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = l
	m.order = append(m.order, id)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Monitor) set(state entity.ConnectionState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state

	listeners := make([]Listener, 0, len(m.listeners))
	live := m.order[:0]
	for _, id := range m.order {
		if l, ok := m.listeners[id]; ok {
			listeners = append(listeners, l)
			live = append(live, id)
		}
	}
	m.order = live
	m.mu.Unlock()

	m.metrics.SetConnected(state == entity.ConnectionConnected)
	m.logger.Info("Connection state changed", logger.String("state", state.String()))

	for _, l := range listeners {
		l(state)
	}
}
