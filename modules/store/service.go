package store

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/google/uuid"
)

const (
	maxChannelNameLength        = 50
	maxChannelDescriptionLength = 200
)

// createMessage handles the store.create-message service request.
func (m *StoreModule) createMessage(ctx context.Context, req CreateMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg := req.Message
	if msg.ID == "" || msg.SenderID == "" {
		return MessageResponse{Status: domain.StatusOf(domain.NewError(domain.ErrValidation, "Message id and sender are required."))}, nil
	}
	if err := msg.Validate(); err != nil {
		return MessageResponse{Status: domain.StatusOf(err)}, nil
	}
	if err := m.repo.CreateMessage(ctx, &msg); err != nil {
		m.logger.Error("Failed to create message", "messageID", msg.ID, "error", err)
		return MessageResponse{Status: domain.StatusOf(err)}, nil
	}
	return MessageResponse{Message: &msg}, nil
}

// editMessage handles the store.edit-message service request.
func (m *StoreModule) editMessage(ctx context.Context, req EditMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	if err := domain.ValidateContent(req.Content); err != nil {
		return MessageResponse{Status: domain.StatusOf(err)}, nil
	}
	msg, err := m.repo.EditMessage(ctx, req.MessageID, req.EditorID, req.Content)
	if err != nil {
		return MessageResponse{Status: domain.StatusOf(err)}, nil
	}
	return MessageResponse{Message: msg}, nil
}

// deleteMessage handles the store.delete-message service request.
func (m *StoreModule) deleteMessage(ctx context.Context, req DeleteMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.repo.SoftDeleteMessage(ctx, req.MessageID, req.RequesterID)
	if err != nil {
		return MessageResponse{Status: domain.StatusOf(err)}, nil
	}
	return MessageResponse{Message: msg}, nil
}

// channelMessages handles the store.channel-messages service request.
// Private channels are readable by members only.
func (m *StoreModule) channelMessages(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	allowed, err := m.repo.MayJoin(ctx, req.UserID, req.ChannelID)
	if err != nil {
		return HistoryResponse{Status: domain.StatusOf(err)}, nil
	}
	if !allowed {
		return HistoryResponse{Status: domain.StatusOf(domain.NewError(domain.ErrAuthorization, "Access denied"))}, nil
	}
	messages, err := m.repo.ChannelMessages(ctx, req.ChannelID, queryOf(req))
	if err != nil {
		return HistoryResponse{Status: domain.StatusOf(err)}, nil
	}
	return HistoryResponse{Messages: messages}, nil
}

// conversationMessages handles the store.conversation-messages service request.
func (m *StoreModule) conversationMessages(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if req.UserID == "" || req.PeerID == "" {
		return HistoryResponse{Status: domain.StatusOf(domain.NewError(domain.ErrValidation, "Both participants are required."))}, nil
	}
	messages, err := m.repo.ConversationMessages(ctx, req.UserID, req.PeerID, queryOf(req))
	if err != nil {
		return HistoryResponse{Status: domain.StatusOf(err)}, nil
	}
	return HistoryResponse{Messages: messages}, nil
}

// senderMessages handles the store.sender-messages service request.
func (m *StoreModule) senderMessages(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	messages, err := m.repo.SenderMessages(ctx, req.UserID, queryOf(req))
	if err != nil {
		return HistoryResponse{Status: domain.StatusOf(err)}, nil
	}
	return HistoryResponse{Messages: messages}, nil
}

func queryOf(req HistoryRequest) Query {
	return Query{Search: req.Search, Since: req.Since, Limit: req.Limit}
}

// createChannel handles the store.create-channel service request.
func (m *StoreModule) createChannel(ctx context.Context, req CreateChannelRequest, _ *mono.Msg) (ChannelResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxChannelNameLength {
		return ChannelResponse{Status: domain.StatusOf(domain.NewError(domain.ErrValidation, "Channel name must be 1-50 characters."))}, nil
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxChannelDescriptionLength {
		return ChannelResponse{Status: domain.StatusOf(domain.NewError(domain.ErrValidation, "Channel description must be at most 200 characters."))}, nil
	}
	if req.CreatedBy == "" {
		return ChannelResponse{Status: domain.StatusOf(domain.NewError(domain.ErrValidation, "Channel owner is required."))}, nil
	}

	ch := &domain.Channel{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		IsPrivate:   req.IsPrivate,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.repo.CreateChannel(ctx, ch); err != nil {
		return ChannelResponse{Status: domain.StatusOf(err)}, nil
	}
	m.logger.Info("Channel created", "channelID", ch.ID, "name", ch.Name, "private", ch.IsPrivate)
	return ChannelResponse{Channel: ch}, nil
}

// listChannels handles the store.list-channels service request.
func (m *StoreModule) listChannels(ctx context.Context, req ListChannelsRequest, _ *mono.Msg) (ListChannelsResponse, error) {
	channels, err := m.repo.VisibleChannels(ctx, req.UserID)
	if err != nil {
		return ListChannelsResponse{Status: domain.StatusOf(err)}, nil
	}
	return ListChannelsResponse{Channels: channels}, nil
}

// joinChannel handles the store.join-channel service request.
func (m *StoreModule) joinChannel(ctx context.Context, req MembershipRequest, _ *mono.Msg) (MembershipResponse, error) {
	if err := m.repo.JoinChannel(ctx, req.ChannelID, req.UserID); err != nil {
		return MembershipResponse{Status: domain.StatusOf(err)}, nil
	}
	return MembershipResponse{Allowed: true}, nil
}

// leaveChannel handles the store.leave-channel service request.
func (m *StoreModule) leaveChannel(ctx context.Context, req MembershipRequest, _ *mono.Msg) (MembershipResponse, error) {
	if err := m.repo.LeaveChannel(ctx, req.ChannelID, req.UserID); err != nil {
		return MembershipResponse{Status: domain.StatusOf(err)}, nil
	}
	return MembershipResponse{Allowed: true}, nil
}

// mayJoin handles the store.may-join service request.
func (m *StoreModule) mayJoin(ctx context.Context, req MembershipRequest, _ *mono.Msg) (MembershipResponse, error) {
	allowed, err := m.repo.MayJoin(ctx, req.UserID, req.ChannelID)
	if err != nil {
		return MembershipResponse{Status: domain.StatusOf(err)}, nil
	}
	return MembershipResponse{Allowed: allowed}, nil
}
