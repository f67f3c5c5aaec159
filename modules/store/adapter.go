package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// StorePort defines the store operations other modules use.
type StorePort interface {
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	EditMessage(ctx context.Context, messageID, editorID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) (*domain.Message, error)
	ChannelMessages(ctx context.Context, userID, channelID string, q Query) ([]*domain.Message, error)
	ConversationMessages(ctx context.Context, userID, peerID string, q Query) ([]*domain.Message, error)
	SenderMessages(ctx context.Context, senderID string, q Query) ([]*domain.Message, error)
	CreateChannel(ctx context.Context, req CreateChannelRequest) (*domain.Channel, error)
	ListChannels(ctx context.Context, userID string) ([]*domain.Channel, error)
	JoinChannel(ctx context.Context, channelID, userID string) error
	LeaveChannel(ctx context.Context, channelID, userID string) error
	MayJoin(ctx context.Context, userID, channelID string) (bool, error)
}

// StoreAdapter implements StorePort using the service container.
type StoreAdapter struct {
	container mono.ServiceContainer
}

var _ StorePort = (*StoreAdapter)(nil)

// NewStoreAdapter creates a new StoreAdapter.
func NewStoreAdapter(container mono.ServiceContainer) *StoreAdapter {
	if container == nil {
		panic("store: ServiceContainer is nil")
	}
	return &StoreAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, errors.Join(domain.ErrStore, err))
	}
	return nil
}

// CreateMessage persists a message built by the caller.
func (a *StoreAdapter) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	req := CreateMessageRequest{Message: *msg}
	var resp MessageResponse
	if err := call(ctx, a.container, ServiceCreateMessage, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// EditMessage replaces a message's content if editorID sent it.
func (a *StoreAdapter) EditMessage(ctx context.Context, messageID, editorID, content string) (*domain.Message, error) {
	req := EditMessageRequest{MessageID: messageID, EditorID: editorID, Content: content}
	var resp MessageResponse
	if err := call(ctx, a.container, ServiceEditMessage, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// DeleteMessage soft-deletes a message if requesterID sent it.
func (a *StoreAdapter) DeleteMessage(ctx context.Context, messageID, requesterID string) (*domain.Message, error) {
	req := DeleteMessageRequest{MessageID: messageID, RequesterID: requesterID}
	var resp MessageResponse
	if err := call(ctx, a.container, ServiceDeleteMessage, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// ChannelMessages reads a channel history on behalf of userID.
func (a *StoreAdapter) ChannelMessages(ctx context.Context, userID, channelID string, q Query) ([]*domain.Message, error) {
	req := HistoryRequest{UserID: userID, ChannelID: channelID, Search: q.Search, Since: q.Since, Limit: q.Limit}
	return a.history(ctx, ServiceChannelMessages, &req)
}

// ConversationMessages reads the private conversation between userID and peerID.
func (a *StoreAdapter) ConversationMessages(ctx context.Context, userID, peerID string, q Query) ([]*domain.Message, error) {
	req := HistoryRequest{UserID: userID, PeerID: peerID, Search: q.Search, Since: q.Since, Limit: q.Limit}
	return a.history(ctx, ServiceConversationMessages, &req)
}

// SenderMessages reads every message sent by senderID.
func (a *StoreAdapter) SenderMessages(ctx context.Context, senderID string, q Query) ([]*domain.Message, error) {
	req := HistoryRequest{UserID: senderID, Search: q.Search, Since: q.Since, Limit: q.Limit}
	return a.history(ctx, ServiceSenderMessages, &req)
}

func (a *StoreAdapter) history(ctx context.Context, service string, req *HistoryRequest) ([]*domain.Message, error) {
	var resp HistoryResponse
	if err := call(ctx, a.container, service, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateChannel creates a channel.
func (a *StoreAdapter) CreateChannel(ctx context.Context, req CreateChannelRequest) (*domain.Channel, error) {
	var resp ChannelResponse
	if err := call(ctx, a.container, ServiceCreateChannel, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Channel, nil
}

// ListChannels lists the channels visible to userID.
func (a *StoreAdapter) ListChannels(ctx context.Context, userID string) ([]*domain.Channel, error) {
	req := ListChannelsRequest{UserID: userID}
	var resp ListChannelsResponse
	if err := call(ctx, a.container, ServiceListChannels, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// JoinChannel adds userID to a public channel.
func (a *StoreAdapter) JoinChannel(ctx context.Context, channelID, userID string) error {
	return a.membership(ctx, ServiceJoinChannel, channelID, userID)
}

// LeaveChannel removes userID from a channel.
func (a *StoreAdapter) LeaveChannel(ctx context.Context, channelID, userID string) error {
	return a.membership(ctx, ServiceLeaveChannel, channelID, userID)
}

func (a *StoreAdapter) membership(ctx context.Context, service, channelID, userID string) error {
	req := MembershipRequest{ChannelID: channelID, UserID: userID}
	var resp MembershipResponse
	if err := call(ctx, a.container, service, &req, &resp); err != nil {
		return err
	}
	return resp.Err()
}

// MayJoin reports whether userID may subscribe to channelID's room.
func (a *StoreAdapter) MayJoin(ctx context.Context, userID, channelID string) (bool, error) {
	req := MembershipRequest{ChannelID: channelID, UserID: userID}
	var resp MembershipResponse
	if err := call(ctx, a.container, ServiceMayJoin, &req, &resp); err != nil {
		return false, err
	}
	if err := resp.Err(); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}
