// Package grpc exposes the session connectivity through the standard gRPC health service.
package grpc

import (
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/service/connection"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// ServiceName is the health service name reporting the data channel connectivity
const ServiceName = "realtime.DataChannel"

// StateSource reports connectivity and its transitions
type StateSource interface {
	Current() entity.ConnectionState
	OnChange(l connection.Listener) (remove func())
}

// HealthHandler mirrors the connection state into a gRPC health server
type HealthHandler struct {
	server *health.Server
	logger *logger.Logger

	mu     sync.Mutex
	remove func()
}

// NewHealthHandler creates a health handler following src
func NewHealthHandler(src StateSource, log *logger.Logger) *HealthHandler {
	if log == nil {
		log = logger.NewNop()
	}

	h := &HealthHandler{
		server: health.NewServer(),
		logger: log,
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.set(src.Current())
	h.remove = src.OnChange(h.set)
	return h
}

func (h *HealthHandler) set(state entity.ConnectionState) {
	status := ServingStatus(state)
	h.server.SetServingStatus(ServiceName, status)
	h.logger.Debug("Health status updated",
		logger.String("service", ServiceName),
		logger.String("status", status.String()),
	)
}

// ServingStatus maps a connection state onto a health status
func ServingStatus(state entity.ConnectionState) healthpb.HealthCheckResponse_ServingStatus {
	if state == entity.ConnectionConnected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Register installs the health service and reflection on s
func (h *HealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
}

// Server returns the underlying health server
func (h *HealthHandler) Server() healthpb.HealthServer {
	return h.server
}

// Shutdown stops following the connection and reports every service as not serving
func (h *HealthHandler) Shutdown() {
	h.mu.Lock()
	remove := h.remove
	h.remove = nil
	h.mu.Unlock()

	if remove != nil {
		remove()
	}
	h.server.Shutdown()
}
