package broadcast

import (
	"context"
	"os"
	"strconv"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// DefaultOutboxSize is the per-connection frame queue length.
const DefaultOutboxSize = 256

// BroadcastModule owns the realtime delivery core: the connection hub, the
// presence registry and the message fanout.
type BroadcastModule struct {
	hub      *Hub
	registry *ConnectionRegistry
	presence *PresenceBroadcaster
	fanout   *MessageFanout
	logger   types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	size := DefaultOutboxSize
	if v := os.Getenv("OUTBOX_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}

	hub := NewHub(size, logger)
	registry := NewConnectionRegistry()
	presence := NewPresenceBroadcaster(hub, logger)
	registry.AddListener(presence)

	return &BroadcastModule{
		hub:      hub,
		registry: registry,
		presence: presence,
		fanout:   NewMessageFanout(hub, registry, logger),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module.
func (m *BroadcastModule) Start(_ context.Context) error {
	m.logger.Info("Broadcast module started", "outboxSize", m.hub.outboxSize)
	return nil
}

// Stop closes every live connection.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	m.hub.Close()
	m.logger.Info("Broadcast module stopped", "connections", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"active_rooms":      m.hub.RoomCount(),
			"online_users":      m.registry.OnlineCount(),
		},
	}
}

// Hub returns the connection hub.
func (m *BroadcastModule) Hub() *Hub {
	return m.hub
}

// Registry returns the connection registry.
func (m *BroadcastModule) Registry() *ConnectionRegistry {
	return m.registry
}

// Fanout returns the message fanout.
func (m *BroadcastModule) Fanout() *MessageFanout {
	return m.fanout
}
