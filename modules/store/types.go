package store

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// Service names registered by the store module.
const (
	ServiceCreateMessage        = "create-message"
	ServiceEditMessage          = "edit-message"
	ServiceDeleteMessage        = "delete-message"
	ServiceChannelMessages      = "channel-messages"
	ServiceConversationMessages = "conversation-messages"
	ServiceSenderMessages       = "sender-messages"
	ServiceCreateChannel        = "create-channel"
	ServiceListChannels         = "list-channels"
	ServiceJoinChannel          = "join-channel"
	ServiceLeaveChannel         = "leave-channel"
	ServiceMayJoin              = "may-join"
)

// CreateMessageRequest asks the store to persist a fully built message.
type CreateMessageRequest struct {
	Message domain.Message `json:"message"`
}

// EditMessageRequest asks the store to replace a message's content.
type EditMessageRequest struct {
	MessageID string `json:"message_id"`
	EditorID  string `json:"editor_id"`
	Content   string `json:"content"`
}

// DeleteMessageRequest asks the store to soft-delete a message.
type DeleteMessageRequest struct {
	MessageID   string `json:"message_id"`
	RequesterID string `json:"requester_id"`
}

// MessageResponse returns a single message.
type MessageResponse struct {
	domain.Status
	Message *domain.Message `json:"message,omitempty"`
}

// HistoryRequest reads a conversation. ChannelID selects a channel history;
// otherwise PeerID selects the private conversation between UserID and PeerID.
type HistoryRequest struct {
	UserID    string     `json:"user_id"`
	ChannelID string     `json:"channel_id,omitempty"`
	PeerID    string     `json:"peer_id,omitempty"`
	Search    string     `json:"search,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// HistoryResponse returns messages oldest first.
type HistoryResponse struct {
	domain.Status
	Messages []*domain.Message `json:"messages"`
}

// CreateChannelRequest creates a channel owned by CreatedBy.
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
	CreatedBy   string `json:"created_by"`
}

// ChannelResponse returns a single channel.
type ChannelResponse struct {
	domain.Status
	Channel *domain.Channel `json:"channel,omitempty"`
}

// ListChannelsRequest lists the channels visible to UserID.
type ListChannelsRequest struct {
	UserID string `json:"user_id"`
}

// ListChannelsResponse returns the visible channels.
type ListChannelsResponse struct {
	domain.Status
	Channels []*domain.Channel `json:"channels"`
}

// MembershipRequest names a user and a channel.
type MembershipRequest struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

// MembershipResponse reports the outcome of a membership operation.
type MembershipResponse struct {
	domain.Status
	Allowed bool `json:"allowed"`
}
