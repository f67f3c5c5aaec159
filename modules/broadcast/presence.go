package broadcast

import (
	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// PresenceBroadcaster turns registry edges into user_online and user_offline
// frames, and greets newly registered connections with the online snapshot.
type PresenceBroadcaster struct {
	hub    *Hub
	logger types.Logger
}

var _ PresenceListener = (*PresenceBroadcaster)(nil)

// NewPresenceBroadcaster creates a broadcaster delivering through hub.
func NewPresenceBroadcaster(hub *Hub, logger types.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{hub: hub, logger: logger}
}

// UserOnline tells every other bound connection that the user came online.
// The registering connection is not bound yet, so it is excluded.
func (p *PresenceBroadcaster) UserOnline(t Transition) {
	p.broadcast(domain.EventUserOnline, t)
}

// UserOffline tells every other bound connection that the user went offline.
func (p *PresenceBroadcaster) UserOffline(t Transition) {
	p.broadcast(domain.EventUserOffline, t)
}

// Registered binds the connection's identity and sends it the snapshot.
// Binding happens under the registry lock, so a concurrently
// authenticating user either appears in the snapshot or is announced later.
func (p *PresenceBroadcaster) Registered(t Transition, online []string) {
	if err := p.hub.Bind(t.ConnID, t.UserID, t.Username); err != nil {
		p.logger.Warn("Failed to bind connection", "connID", t.ConnID, "error", err)
		return
	}
	frame, err := domain.EncodeFrame(domain.EventAuthenticated, domain.Authenticated{
		Success:       true,
		UserID:        t.UserID,
		Username:      t.Username,
		OnlineUserIDs: online,
	})
	if err != nil {
		p.logger.Error("Failed to encode authenticated frame", "error", err)
		return
	}
	p.hub.Send(t.ConnID, frame)
}

func (p *PresenceBroadcaster) broadcast(eventType string, t Transition) {
	frame, err := domain.EncodeFrame(eventType, domain.Presence{UserID: t.UserID, Username: t.Username})
	if err != nil {
		p.logger.Error("Failed to encode presence frame", "type", eventType, "error", err)
		return
	}
	n := p.hub.BroadcastBound(frame, t.ConnID)
	p.logger.Debug("Presence broadcast", "type", eventType, "userID", t.UserID, "recipients", n)
}
