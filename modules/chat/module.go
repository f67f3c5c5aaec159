package chat

import (
	"context"
	"fmt"

	"github.com/example/realtime-chat/events"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/identity"
	"github.com/example/realtime-chat/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// ChatModule owns the realtime operations: authentication of connections,
// room subscription, message send and mutation.
type ChatModule struct {
	identity  IdentityVerifier
	store     *store.StoreAdapter
	broadcast *broadcast.BroadcastModule
	eventBus  mono.EventBus
	service   *Service
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*ChatModule)(nil)
	_ mono.DependentModule       = (*ChatModule)(nil)
	_ mono.EventBusAwareModule   = (*ChatModule)(nil)
	_ mono.EventEmitterModule    = (*ChatModule)(nil)
	_ mono.HealthCheckableModule = (*ChatModule)(nil)
)

// NewModule creates a new ChatModule.
func NewModule(logger types.Logger) *ChatModule {
	return &ChatModule{logger: logger}
}

// Name returns the module name.
func (m *ChatModule) Name() string {
	return "chat"
}

// Dependencies returns the modules this module depends on.
func (m *ChatModule) Dependencies() []string {
	return []string{"identity", "store"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *ChatModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "identity":
		m.identity = identity.NewIdentityAdapter(container)
	case "store":
		m.store = store.NewStoreAdapter(container)
	}
}

// SetBroadcast injects the realtime delivery core.
func (m *ChatModule) SetBroadcast(b *broadcast.BroadcastModule) {
	m.broadcast = b
}

// SetEventBus receives the EventBus from the framework.
func (m *ChatModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *ChatModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePostedV1.ToBase(),
		events.MessageEditedV1.ToBase(),
		events.MessageDeletedV1.ToBase(),
		events.UserOnlineV1.ToBase(),
		events.UserOfflineV1.ToBase(),
	}
}

// Start builds the service from the injected collaborators.
func (m *ChatModule) Start(_ context.Context) error {
	if m.identity == nil {
		return fmt.Errorf("identity dependency not set")
	}
	if m.store == nil {
		return fmt.Errorf("store dependency not set")
	}
	if m.broadcast == nil {
		return fmt.Errorf("broadcast module not set")
	}

	m.service = NewService(Config{
		Identity:   m.identity,
		Messages:   m.store,
		Membership: m.store,
		Hub:        m.broadcast.Hub(),
		Registry:   m.broadcast.Registry(),
		Fanout:     m.broadcast.Fanout(),
		EventBus:   m.eventBus,
		Logger:     m.logger,
	})
	m.logger.Info("Chat module started")
	return nil
}

// Stop stops the module.
func (m *ChatModule) Stop(_ context.Context) error {
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *ChatModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"conversation_locks": m.service.locks.size(),
		},
	}
}

// Service returns the chat service. It is nil until the module has started.
func (m *ChatModule) Service() *Service {
	return m.service
}
