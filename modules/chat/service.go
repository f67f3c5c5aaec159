package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrNotInRoom is returned when sending to a channel the connection has not joined.
	ErrNotInRoom = domain.NewError(domain.ErrAuthorization, "Join the channel before sending messages.")
	// ErrAlreadyAuthenticated is returned when a bound connection authenticates again.
	ErrAlreadyAuthenticated = domain.NewError(domain.ErrValidation, "Already authenticated.")
	// ErrRoomRequired is returned when a room frame has no room id.
	ErrRoomRequired = domain.NewError(domain.ErrValidation, "Room id is required.")
	// ErrMessageIDRequired is returned when a mutation frame has no message id.
	ErrMessageIDRequired = domain.NewError(domain.ErrValidation, "Message id is required.")
	// ErrRecipientNotFound is returned when a private message names an unknown user.
	ErrRecipientNotFound = domain.NewError(domain.ErrNotFound, "Recipient not found.")
)

// Config wires the collaborators of a Service.
type Config struct {
	Identity   IdentityVerifier
	Messages   MessageStore
	Membership MembershipAuthority
	Hub        *broadcast.Hub
	Registry   *broadcast.ConnectionRegistry
	Fanout     *broadcast.MessageFanout
	EventBus   mono.EventBus
	Logger     types.Logger
}

// Service handles the inbound operations of realtime connections.
// Calls for one connection are expected to arrive sequentially from its
// read loop; calls for different connections run concurrently.
type Service struct {
	identity   IdentityVerifier
	messages   MessageStore
	membership MembershipAuthority
	hub        *broadcast.Hub
	registry   *broadcast.ConnectionRegistry
	fanout     *broadcast.MessageFanout
	eventBus   mono.EventBus
	locks      *keyedMutex
	now        func() time.Time
	logger     types.Logger
}

// NewService creates a Service and subscribes it to presence transitions.
func NewService(cfg Config) *Service {
	s := &Service{
		identity:   cfg.Identity,
		messages:   cfg.Messages,
		membership: cfg.Membership,
		hub:        cfg.Hub,
		registry:   cfg.Registry,
		fanout:     cfg.Fanout,
		eventBus:   cfg.EventBus,
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     cfg.Logger,
	}
	s.registry.AddListener(s)
	return s
}

// Connect attaches an anonymous connection.
func (s *Service) Connect(connID string, conn broadcast.Conn) error {
	if err := s.hub.Attach(connID, conn); err != nil {
		return fmt.Errorf("failed to attach connection %s: %w", connID, err)
	}
	return nil
}

// Authenticate binds the connection to the identity behind token. On
// success the connection receives the online snapshot; on failure it
// receives a failed authenticated frame and stays anonymous.
func (s *Service) Authenticate(ctx context.Context, connID, token string) (*domain.User, error) {
	if _, _, bound := s.hub.Identity(connID); bound {
		s.reply(connID, domain.EventAuthenticated, domain.Authenticated{Message: ErrAlreadyAuthenticated.Message})
		return nil, ErrAlreadyAuthenticated
	}

	user, err := s.identity.Verify(ctx, strings.TrimSpace(token))
	if err != nil {
		s.logger.Debug("Authentication failed", "connID", connID, "error", err)
		s.reply(connID, domain.EventAuthenticated, domain.Authenticated{
			Message: domain.ClientMessage(err, "Authentication failed."),
		})
		return nil, err
	}

	s.registry.Register(user.ID, user.Username, connID)
	boundID, _, ok := s.hub.Identity(connID)
	if !ok {
		// The connection left the hub before it could be bound.
		s.registry.Unregister(connID)
		s.logger.Warn("Connection gone during authentication", "connID", connID, "userID", user.ID)
		return nil, fmt.Errorf("authenticate %s: %w", connID, broadcast.ErrUnknownConnection)
	}
	if boundID != user.ID {
		return nil, ErrAlreadyAuthenticated
	}
	s.logger.Info("Connection authenticated", "connID", connID, "userID", user.ID)
	return user, nil
}

// JoinChannel subscribes the connection to a channel room once the
// membership authority has approved it.
func (s *Service) JoinChannel(ctx context.Context, connID, roomID string) error {
	userID, _, err := s.boundIdentity(connID)
	if err != nil {
		return err
	}
	if roomID == "" {
		return ErrRoomRequired
	}

	allowed, err := s.membership.MayJoin(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrChannelForbidden
	}
	s.hub.Join(connID, roomID)
	s.logger.Debug("Joined room", "connID", connID, "userID", userID, "roomID", roomID)
	return nil
}

// LeaveChannel unsubscribes the connection from a room. It is a no-op for
// anonymous connections and rooms the connection is not in.
func (s *Service) LeaveChannel(connID, roomID string) {
	if _, _, bound := s.hub.Identity(connID); !bound {
		return
	}
	if s.hub.Leave(connID, roomID) {
		s.logger.Debug("Left room", "connID", connID, "roomID", roomID)
	}
}

// SendMessage validates, persists and fans out a new message. Messages of
// one conversation are written and queued under the same lock, so every
// subscriber observes them in store order.
func (s *Service) SendMessage(ctx context.Context, connID string, req domain.SendMessageRequest) (*domain.Message, error) {
	userID, username, err := s.boundIdentity(connID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &domain.Message{
		ID:          uuid.New().String(),
		SenderID:    userID,
		SenderName:  username,
		ChannelID:   strings.TrimSpace(req.ChannelID),
		RecipientID: strings.TrimSpace(req.RecipientID),
		Content:     req.Content,
		Kind:        req.MessageType,
		Attachment:  req.Attachment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if !msg.IsPrivate() && !s.hub.InRoom(connID, msg.ChannelID) {
		return nil, ErrNotInRoom
	}
	if msg.IsPrivate() {
		if _, err := s.identity.GetUser(ctx, msg.RecipientID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, ErrRecipientNotFound
			}
			return nil, err
		}
	}

	unlock := s.locks.Lock(conversationLockKey(msg))
	defer unlock()

	saved, err := s.messages.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	var deliveries int
	if saved.IsPrivate() {
		deliveries, err = s.fanout.PublishPrivateMessage(saved, connID)
	} else {
		deliveries, err = s.fanout.PublishChannelMessage(saved)
	}
	if err != nil {
		s.logger.Error("Failed to fan out message", "messageID", saved.ID, "error", err)
	}

	event := events.MessagePostedEvent{
		MessageID:   saved.ID,
		SenderID:    saved.SenderID,
		ChannelID:   saved.ChannelID,
		RecipientID: saved.RecipientID,
		Kind:        string(saved.Kind),
		Deliveries:  deliveries,
		Timestamp:   saved.CreatedAt,
	}
	s.emit("MessagePosted", func(bus mono.EventBus) error {
		return events.MessagePostedV1.Publish(bus, event, nil)
	})
	return saved, nil
}

// EditMessage replaces the body of a message sent by the connection's user.
func (s *Service) EditMessage(ctx context.Context, connID string, req domain.EditMessageRequest) (*domain.Message, error) {
	userID, _, err := s.boundIdentity(connID)
	if err != nil {
		return nil, err
	}
	if req.MessageID == "" {
		return nil, ErrMessageIDRequired
	}
	if err := domain.ValidateContent(req.NewContent); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("message:" + req.MessageID)
	defer unlock()

	msg, err := s.messages.EditMessage(ctx, req.MessageID, userID, req.NewContent)
	if err != nil {
		return nil, err
	}
	if _, err := s.fanout.PublishMutation(broadcast.MutationEdited, msg, connID); err != nil {
		s.logger.Error("Failed to fan out edit", "messageID", msg.ID, "error", err)
	}
	event := events.MessageEditedEvent{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Timestamp: msg.UpdatedAt,
	}
	s.emit("MessageEdited", func(bus mono.EventBus) error {
		return events.MessageEditedV1.Publish(bus, event, nil)
	})
	return msg, nil
}

// DeleteMessage soft-deletes a message sent by the connection's user.
// Deleting a deleted message returns and redelivers the same tombstone.
func (s *Service) DeleteMessage(ctx context.Context, connID, messageID string) (*domain.Message, error) {
	userID, _, err := s.boundIdentity(connID)
	if err != nil {
		return nil, err
	}
	if messageID == "" {
		return nil, ErrMessageIDRequired
	}

	unlock := s.locks.Lock("message:" + messageID)
	defer unlock()

	msg, err := s.messages.DeleteMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.fanout.PublishMutation(broadcast.MutationDeleted, msg, connID); err != nil {
		s.logger.Error("Failed to fan out delete", "messageID", msg.ID, "error", err)
	}
	event := events.MessageDeletedEvent{
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Timestamp: msg.UpdatedAt,
	}
	s.emit("MessageDeleted", func(bus mono.EventBus) error {
		return events.MessageDeletedV1.Publish(bus, event, nil)
	})
	return msg, nil
}

// Typing relays a typing indicator to the other connections in the room.
// Anonymous connections and connections outside the room are ignored.
func (s *Service) Typing(connID string, req domain.TypingRequest) int {
	userID, username, bound := s.hub.Identity(connID)
	if !bound || !s.hub.InRoom(connID, req.RoomID) {
		return 0
	}
	frame, err := domain.EncodeFrame(domain.EventUserTyping, domain.Typing{
		UserID:   userID,
		Username: username,
		RoomID:   req.RoomID,
		IsTyping: req.IsTyping,
	})
	if err != nil {
		s.logger.Error("Failed to encode typing frame", "error", err)
		return 0
	}
	return s.hub.SendToRoom(req.RoomID, frame, connID)
}

// Disconnect tears a connection down: it leaves every room, then the
// registry emits the offline transition, then the outbox is closed.
// Calling it again for the same connection does nothing.
func (s *Service) Disconnect(connID string) bool {
	rooms := s.hub.LeaveAll(connID)
	wentOffline := s.registry.Unregister(connID)
	if !s.hub.Detach(connID) {
		return false
	}
	s.logger.Info("Connection closed", "connID", connID, "rooms", len(rooms), "wentOffline", wentOffline)
	return true
}

// Dispatch decodes one inbound frame and runs the operation it names.
// Failures are reported to the originating connection only.
func (s *Service) Dispatch(ctx context.Context, connID string, frame []byte) {
	env, err := domain.DecodeFrame(frame)
	if err != nil {
		s.replyError(connID, err, "Invalid message format")
		return
	}

	switch env.Type {
	case domain.EventAuthenticate:
		var req domain.AuthenticateRequest
		if err := domain.DecodePayload(env, &req); err != nil {
			s.reply(connID, domain.EventAuthenticated, domain.Authenticated{Message: err.Error()})
			return
		}
		_, _ = s.Authenticate(ctx, connID, req.Token)

	case domain.EventJoinChannel:
		var req domain.RoomRequest
		if err = domain.DecodePayload(env, &req); err == nil {
			err = s.JoinChannel(ctx, connID, req.RoomID)
		}
		s.replyError(connID, err, "Failed to join channel")

	case domain.EventLeaveChannel:
		var req domain.RoomRequest
		if domain.DecodePayload(env, &req) == nil {
			s.LeaveChannel(connID, req.RoomID)
		}

	case domain.EventSendMessage, domain.EventPrivateMessage:
		var req domain.SendMessageRequest
		if err = domain.DecodePayload(env, &req); err == nil {
			_, err = s.SendMessage(ctx, connID, req)
		}
		s.replyError(connID, err, "Failed to send message")

	case domain.EventEditMessage:
		var req domain.EditMessageRequest
		if err = domain.DecodePayload(env, &req); err == nil {
			_, err = s.EditMessage(ctx, connID, req)
		}
		s.replyError(connID, err, "Failed to edit message")

	case domain.EventDeleteMessage:
		var req domain.DeleteMessageRequest
		if err = domain.DecodePayload(env, &req); err == nil {
			_, err = s.DeleteMessage(ctx, connID, req.MessageID)
		}
		s.replyError(connID, err, "Failed to delete message")

	case domain.EventTyping:
		var req domain.TypingRequest
		if domain.DecodePayload(env, &req) == nil {
			s.Typing(connID, req)
		}

	default:
		s.replyError(connID, domain.NewError(domain.ErrValidation, "Unknown message type: "+env.Type), "")
	}
}

// Registered implements broadcast.PresenceListener.
func (s *Service) Registered(broadcast.Transition, []string) {}

// UserOnline implements broadcast.PresenceListener.
func (s *Service) UserOnline(t broadcast.Transition) {
	event := events.PresenceEvent{UserID: t.UserID, Username: t.Username, Timestamp: s.now()}
	s.emit("UserOnline", func(bus mono.EventBus) error {
		return events.UserOnlineV1.Publish(bus, event, nil)
	})
}

// UserOffline implements broadcast.PresenceListener.
func (s *Service) UserOffline(t broadcast.Transition) {
	event := events.PresenceEvent{UserID: t.UserID, Username: t.Username, Timestamp: s.now()}
	s.emit("UserOffline", func(bus mono.EventBus) error {
		return events.UserOfflineV1.Publish(bus, event, nil)
	})
}

func (s *Service) boundIdentity(connID string) (userID, username string, err error) {
	userID, username, bound := s.hub.Identity(connID)
	if !bound {
		return "", "", domain.ErrAuthRequired
	}
	return userID, username, nil
}

func (s *Service) reply(connID, eventType string, data any) {
	frame, err := domain.EncodeFrame(eventType, data)
	if err != nil {
		s.logger.Error("Failed to encode reply", "type", eventType, "error", err)
		return
	}
	s.hub.Send(connID, frame)
}

func (s *Service) replyError(connID string, err error, fallback string) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrStore) || !errors.As(err, new(*domain.Error)) {
		s.logger.Error("Operation failed", "connID", connID, "error", err)
	}
	s.reply(connID, domain.EventMessageError, domain.ErrorNotice{Message: domain.ClientMessage(err, fallback)})
}

// emit publishes a domain event when an event bus is wired.
func (s *Service) emit(name string, publish func(bus mono.EventBus) error) {
	if s.eventBus == nil {
		return
	}
	if err := publish(s.eventBus); err != nil {
		s.logger.Warn("Failed to publish event", "event", name, "error", err)
	}
}

func conversationLockKey(msg *domain.Message) string {
	if !msg.IsPrivate() {
		return "channel:" + msg.ChannelID
	}
	a, b := msg.SenderID, msg.RecipientID
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}
