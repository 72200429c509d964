package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/repository/memory"
)

type staticIdentity struct {
	mu   sync.Mutex
	user *entity.User
}

func (s *staticIdentity) CurrentUser() (entity.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return entity.User{}, false
	}
	return *s.user, true
}

func (s *staticIdentity) set(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// channelConnection reads connectivity straight from the memory channel
type channelConnection struct {
	channel *memory.Channel
}

func (c channelConnection) Connected() bool {
	return c.channel.Connected()
}

func (c channelConnection) Current() entity.ConnectionState {
	return entity.ConnectionStateOf(c.channel.Connected())
}

type mockAttachments struct {
	mock.Mock
}

func (m *mockAttachments) Upload(ctx context.Context, objectName string, data []byte, contentType string) (int64, error) {
	args := m.Called(ctx, objectName, data, contentType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAttachments) GetObject(ctx context.Context, objectName string) ([]byte, error) {
	args := m.Called(ctx, objectName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockAttachments) GetObjectURL(objectName string) string {
	args := m.Called(objectName)
	return args.String(0)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Show(alert Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

func (m *mockAlerter) Dismiss(id string) {
	m.Called(id)
}

type hostState struct {
	mu         sync.Mutex
	granted    bool
	background bool
}

func (h *hostState) PermissionGranted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.granted
}

func (h *hostState) Backgrounded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.background
}

func (h *hostState) setBackground(b bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.background = b
}
