package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePostedEvent is emitted after a message is persisted and fanned out.
type MessagePostedEvent struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	ChannelID   string    `json:"channel_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Kind        string    `json:"message_type"`
	Deliveries  int       `json:"deliveries"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageEditedEvent is emitted after a sender edits a message.
type MessageEditedEvent struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageDeletedEvent is emitted after a sender soft-deletes a message.
type MessageDeletedEvent struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceEvent is emitted when a user goes online or offline.
type PresenceEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"chat",
		"MessagePosted",
		"v1",
	)

	MessageEditedV1 = helper.EventDefinition[MessageEditedEvent](
		"chat",
		"MessageEdited",
		"v1",
	)

	MessageDeletedV1 = helper.EventDefinition[MessageDeletedEvent](
		"chat",
		"MessageDeleted",
		"v1",
	)

	UserOnlineV1 = helper.EventDefinition[PresenceEvent](
		"chat",
		"UserOnline",
		"v1",
	)

	UserOfflineV1 = helper.EventDefinition[PresenceEvent](
		"chat",
		"UserOffline",
		"v1",
	)
)
