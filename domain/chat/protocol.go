package chat

import (
	"encoding/json"
	"fmt"
)

// Inbound event types sent by clients.
const (
	EventAuthenticate   = "authenticate"
	EventJoinChannel    = "join_channel"
	EventLeaveChannel   = "leave_channel"
	EventSendMessage    = "send_message"
	EventPrivateMessage = "private_message"
	EventEditMessage    = "edit_message"
	EventDeleteMessage  = "delete_message"
	EventTyping         = "typing"
)

// Outbound event types pushed to clients.
const (
	EventAuthenticated  = "authenticated"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventMessageError   = "message_error"
	EventUserTyping     = "user_typing"
)

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals an outbound frame of the given type.
func EncodeFrame(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// DecodePayload unmarshals the envelope data into v. A missing payload is
// a validation error.
func DecodePayload(env Envelope, v any) error {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, v) != nil {
		return NewError(ErrValidation, fmt.Sprintf("Invalid %s payload", env.Type))
	}
	return nil
}

// DecodeFrame parses an inbound frame into its envelope.
func DecodeFrame(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, NewError(ErrValidation, "Invalid message format")
	}
	if env.Type == "" {
		return Envelope{}, NewError(ErrValidation, "Message type is required")
	}
	return env, nil
}

// AuthenticateRequest carries the bearer token of an authenticate frame.
type AuthenticateRequest struct {
	Token string `json:"token"`
}

// UnmarshalJSON accepts a bare token string as well as an object.
func (r *AuthenticateRequest) UnmarshalJSON(b []byte) error {
	type plain AuthenticateRequest
	return unmarshalIDOrObject(b, &r.Token, (*plain)(r))
}

// RoomRequest names the room of a join_channel or leave_channel frame.
type RoomRequest struct {
	RoomID string `json:"room_id"`
}

// UnmarshalJSON accepts a bare room id string as well as an object.
func (r *RoomRequest) UnmarshalJSON(b []byte) error {
	type plain RoomRequest
	return unmarshalIDOrObject(b, &r.RoomID, (*plain)(r))
}

// SendMessageRequest is the payload of send_message and private_message.
type SendMessageRequest struct {
	ChannelID   string      `json:"channel_id,omitempty"`
	RecipientID string      `json:"recipient_id,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageKind `json:"message_type,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// EditMessageRequest is the payload of edit_message.
type EditMessageRequest struct {
	MessageID  string `json:"message_id"`
	NewContent string `json:"new_content"`
}

// DeleteMessageRequest is the payload of delete_message.
type DeleteMessageRequest struct {
	MessageID string `json:"message_id"`
}

// UnmarshalJSON accepts a bare message id string as well as an object.
func (r *DeleteMessageRequest) UnmarshalJSON(b []byte) error {
	type plain DeleteMessageRequest
	return unmarshalIDOrObject(b, &r.MessageID, (*plain)(r))
}

func unmarshalIDOrObject(b []byte, id *string, obj any) error {
	if err := json.Unmarshal(b, id); err == nil {
		return nil
	}
	return json.Unmarshal(b, obj)
}

// TypingRequest is the payload of typing.
type TypingRequest struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// Authenticated answers an authenticate frame.
type Authenticated struct {
	Success       bool     `json:"success"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	OnlineUserIDs []string `json:"online_user_ids,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// Presence is the payload of user_online and user_offline.
type Presence struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Typing is the payload of user_typing.
type Typing struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// ErrorNotice is the payload of message_error.
type ErrorNotice struct {
	Message string `json:"message"`
}
