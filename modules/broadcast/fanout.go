package broadcast

import (
	"fmt"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Mutation is the kind of change applied to an existing message.
type Mutation int

// Message mutations.
const (
	MutationEdited Mutation = iota
	MutationDeleted
)

func (m Mutation) eventType() string {
	if m == MutationDeleted {
		return domain.EventMessageDeleted
	}
	return domain.EventMessageEdited
}

// MessageFanout computes the delivery population of a message and queues
// one frame per target connection. Callers publish only after the store
// write has succeeded.
type MessageFanout struct {
	hub      *Hub
	registry *ConnectionRegistry
	logger   types.Logger
}

// NewMessageFanout creates a fanout over hub and registry.
func NewMessageFanout(hub *Hub, registry *ConnectionRegistry, logger types.Logger) *MessageFanout {
	return &MessageFanout{hub: hub, registry: registry, logger: logger}
}

// PublishChannelMessage delivers msg to every subscriber of its channel,
// including the sender's own connection.
func (f *MessageFanout) PublishChannelMessage(msg *domain.Message) (int, error) {
	frame, err := domain.EncodeFrame(domain.EventNewMessage, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	n := f.hub.SendToRoom(msg.ChannelID, frame, "")
	f.logger.Debug("Channel message fanned out", "messageID", msg.ID, "channelID", msg.ChannelID, "deliveries", n)
	return n, nil
}

// PublishPrivateMessage delivers msg to every connection of the recipient
// and echoes it to originConnID. Each connection receives it at most once.
func (f *MessageFanout) PublishPrivateMessage(msg *domain.Message, originConnID string) (int, error) {
	frame, err := domain.EncodeFrame(domain.EventPrivateMessage, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	targets := f.privateTargets(msg, originConnID)
	n := f.hub.SendToConns(targets, frame)
	f.logger.Debug("Private message fanned out", "messageID", msg.ID, "recipientID", msg.RecipientID, "deliveries", n)
	return n, nil
}

// PublishMutation delivers an edited or deleted message to the same
// population its original publish reached. For private messages the
// requesting connection stands in for the original origin connection.
func (f *MessageFanout) PublishMutation(kind Mutation, msg *domain.Message, originConnID string) (int, error) {
	frame, err := domain.EncodeFrame(kind.eventType(), msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	var n int
	if msg.IsPrivate() {
		n = f.hub.SendToConns(f.privateTargets(msg, originConnID), frame)
	} else {
		n = f.hub.SendToRoom(msg.ChannelID, frame, "")
	}
	f.logger.Debug("Mutation fanned out", "type", kind.eventType(), "messageID", msg.ID, "deliveries", n)
	return n, nil
}

func (f *MessageFanout) privateTargets(msg *domain.Message, originConnID string) []string {
	targets := f.registry.Connections(msg.RecipientID)
	if originConnID != "" {
		targets = append(targets, originConnID)
	}
	return targets
}
