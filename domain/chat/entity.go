package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxAttachmentSize is the largest attachment accepted on a message (5MB).
	MaxAttachmentSize int64 = 5 * 1024 * 1024
	// MaxContentLength is the maximum number of characters in a message body.
	MaxContentLength = 2000
	// Tombstone replaces the content of a soft-deleted message.
	Tombstone = "This message has been deleted."
)

// MessageKind is the type of content carried by a message.
type MessageKind string

// Supported message kinds.
const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindFile  MessageKind = "file"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindFile:
		return true
	}
	return false
}

// Attachment is an inline file carried by a non-text message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     string `json:"data,omitempty"`
}

// Message is a chat message addressed to exactly one channel or one recipient.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	SenderName  string      `json:"sender_name"`
	ChannelID   string      `json:"channel_id,omitempty"`
	RecipientID string      `json:"recipient_id,omitempty"`
	Content     string      `json:"content"`
	Kind        MessageKind `json:"message_type"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Edited      bool        `json:"edited"`
	Deleted     bool        `json:"deleted"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsPrivate reports whether the message belongs to a one-to-one conversation.
func (m *Message) IsPrivate() bool {
	return m.RecipientID != ""
}

// ConversationKey returns the channel id, or the peer id as seen by viewerID.
func (m *Message) ConversationKey(viewerID string) string {
	if !m.IsPrivate() {
		return m.ChannelID
	}
	if m.SenderID == viewerID {
		return m.RecipientID
	}
	return m.SenderID
}

// ApplyEdit replaces the body and marks the message edited.
func (m *Message) ApplyEdit(content string, at time.Time) {
	m.Content = content
	m.Edited = true
	m.UpdatedAt = at
}

// ApplyDelete turns the message into a tombstone. Applying it twice yields the same state.
func (m *Message) ApplyDelete(at time.Time) {
	m.Content = Tombstone
	m.Attachment = nil
	m.Deleted = true
	m.UpdatedAt = at
}

// Validate checks addressing, kind, body and attachment constraints.
func (m *Message) Validate() error {
	if (m.ChannelID == "") == (m.RecipientID == "") {
		return NewError(ErrValidation, "Message must target exactly one channel or recipient.")
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	if !m.Kind.Valid() {
		return NewError(ErrValidation, "Unsupported message type.")
	}
	if m.Attachment != nil {
		if m.Attachment.Size > MaxAttachmentSize {
			return ErrAttachmentTooLarge
		}
		if m.Attachment.Size < 0 {
			return NewError(ErrValidation, "Invalid attachment size.")
		}
	}
	if m.Kind != KindText && m.Attachment == nil {
		return NewError(ErrValidation, "Attachment is required for non-text messages.")
	}
	if m.Attachment == nil {
		return ValidateContent(m.Content)
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// ValidateContent checks a text body for emptiness and length.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return NewError(ErrValidation, "Message content is required.")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// User is a registered chat user.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Avatar    string     `json:"avatar,omitempty"`
	Email     string     `json:"email"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Channel is a named room that members can subscribe to.
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   string    `json:"created_by"`
	Members     []string  `json:"members"`
	Admins      []string  `json:"admins"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasMember reports whether userID belongs to the channel.
func (c *Channel) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}
