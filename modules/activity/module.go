package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/example/realtime-chat/events"
	"github.com/example/realtime-chat/modules/identity"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// LastSeenRecorder stores when a user was last active.
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// ActivityModule records user activity from chat domain events. Presence
// itself never touches persisted data; this consumer keeps last-seen
// timestamps up to date instead.
type ActivityModule struct {
	recorder LastSeenRecorder
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*ActivityModule)(nil)
	_ mono.DependentModule     = (*ActivityModule)(nil)
	_ mono.EventConsumerModule = (*ActivityModule)(nil)
)

// NewModule creates a new ActivityModule.
func NewModule(logger types.Logger) *ActivityModule {
	return &ActivityModule{logger: logger}
}

// Name returns the module name.
func (m *ActivityModule) Name() string {
	return "activity"
}

// Dependencies returns the modules this module depends on.
func (m *ActivityModule) Dependencies() []string {
	return []string{"identity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *ActivityModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "identity" {
		m.recorder = identity.NewIdentityAdapter(container)
	}
}

// RegisterEventConsumers subscribes to presence and message events.
func (m *ActivityModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.UserOnlineV1, m.handlePresence, m); err != nil {
		return fmt.Errorf("failed to register UserOnline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserOfflineV1, m.handlePresence, m); err != nil {
		return fmt.Errorf("failed to register UserOffline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.MessagePostedV1, m.handleMessagePosted, m); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}

	m.logger.Info("Registered activity event consumers", "events", "UserOnline, UserOffline, MessagePosted")
	return nil
}

func (m *ActivityModule) handlePresence(ctx context.Context, event events.PresenceEvent, _ *mono.Msg) error {
	m.touch(ctx, event.UserID, event.Timestamp)
	return nil
}

func (m *ActivityModule) handleMessagePosted(ctx context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	m.touch(ctx, event.SenderID, event.Timestamp)
	return nil
}

// touch records activity. Failures are logged and not retried.
func (m *ActivityModule) touch(ctx context.Context, userID string, at time.Time) {
	if m.recorder == nil || userID == "" {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	if err := m.recorder.TouchLastSeen(ctx, userID, at); err != nil {
		m.logger.Warn("Failed to record last seen", "userID", userID, "error", err)
		return
	}
	m.logger.Debug("Recorded last seen", "userID", userID, "at", at)
}

// Start starts the module.
func (m *ActivityModule) Start(_ context.Context) error {
	if m.recorder == nil {
		return fmt.Errorf("identity dependency not set")
	}
	m.logger.Info("Activity module started")
	return nil
}

// Stop stops the module.
func (m *ActivityModule) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}
