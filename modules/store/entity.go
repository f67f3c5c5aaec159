package store

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// MessageRecord is the persisted form of a chat message.
type MessageRecord struct {
	ID                 string    `gorm:"primarykey;size:36"`
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
	SenderID           string `gorm:"size:36;not null;index"`
	SenderName         string `gorm:"size:30"`
	ChannelID          string `gorm:"size:36;index"`
	RecipientID        string `gorm:"size:36;index"`
	Content            string `gorm:"size:2000"`
	Kind               string `gorm:"size:10;not null;default:text"`
	AttachmentName     string
	AttachmentMimeType string
	AttachmentSize     int64
	AttachmentData     string
	Edited             bool `gorm:"not null;default:false"`
	Deleted            bool `gorm:"not null;default:false"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "messages"
}

func newMessageRecord(m *domain.Message) *MessageRecord {
	r := &MessageRecord{
		ID:          m.ID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		ChannelID:   m.ChannelID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Kind:        string(m.Kind),
		Edited:      m.Edited,
		Deleted:     m.Deleted,
	}
	if a := m.Attachment; a != nil {
		r.AttachmentName = a.Name
		r.AttachmentMimeType = a.MimeType
		r.AttachmentSize = a.Size
		r.AttachmentData = a.Data
	}
	return r
}

func (r *MessageRecord) toDomain() *domain.Message {
	m := &domain.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		SenderName:  r.SenderName,
		ChannelID:   r.ChannelID,
		RecipientID: r.RecipientID,
		Content:     r.Content,
		Kind:        domain.MessageKind(r.Kind),
		Edited:      r.Edited,
		Deleted:     r.Deleted,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.AttachmentName != "" || r.AttachmentSize > 0 {
		m.Attachment = &domain.Attachment{
			Name:     r.AttachmentName,
			MimeType: r.AttachmentMimeType,
			Size:     r.AttachmentSize,
			Data:     r.AttachmentData,
		}
	}
	return m
}

// ChannelRecord is the persisted form of a channel.
type ChannelRecord struct {
	ID          string    `gorm:"primarykey;size:36"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:50;not null;uniqueIndex"`
	Description string `gorm:"size:200"`
	IsPrivate   bool   `gorm:"not null;default:false"`
	CreatedBy   string `gorm:"size:36;not null"`
	Members     []MemberRecord `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for ChannelRecord.
func (ChannelRecord) TableName() string {
	return "channels"
}

// MemberRecord links a user to a channel.
type MemberRecord struct {
	ChannelID string `gorm:"primarykey;size:36"`
	UserID    string `gorm:"primarykey;size:36;index"`
	IsAdmin   bool   `gorm:"not null;default:false"`
	JoinedAt  time.Time
}

// TableName returns the table name for MemberRecord.
func (MemberRecord) TableName() string {
	return "channel_members"
}

func (r *ChannelRecord) toDomain() *domain.Channel {
	c := &domain.Channel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsPrivate:   r.IsPrivate,
		CreatedBy:   r.CreatedBy,
		Members:     make([]string, 0, len(r.Members)),
		Admins:      []string{},
		CreatedAt:   r.CreatedAt,
	}
	for _, m := range r.Members {
		c.Members = append(c.Members, m.UserID)
		if m.IsAdmin {
			c.Admins = append(c.Admins, m.UserID)
		}
	}
	return c
}
