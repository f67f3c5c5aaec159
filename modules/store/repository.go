package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"gorm.io/gorm"
)

// DefaultHistoryLimit caps the number of messages returned by a history read.
const DefaultHistoryLimit = 100

// Query narrows a history read.
type Query struct {
	// Search keeps messages whose content contains the text, case-insensitively.
	Search string
	// Since keeps messages created strictly after this instant.
	Since *time.Time
	// Limit caps the result size. Zero means DefaultHistoryLimit.
	Limit int
}

// Repository provides access to message and channel storage.
type Repository struct {
	db    *gorm.DB
	limit int
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB, limit int) *Repository {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Repository{db: db, limit: limit}
}

func storeError(action string, err error) error {
	return fmt.Errorf("failed to %s: %w", action, errors.Join(domain.ErrStore, err))
}

// CreateMessage persists a new message.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(newMessageRecord(msg)).Error; err != nil {
		return storeError("create message", err)
	}
	return nil
}

// GetMessage retrieves a message by id.
func (r *Repository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var rec MessageRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, storeError("find message", err)
	}
	return rec.toDomain(), nil
}

// EditMessage replaces the content of a message. The sender check and the
// update run in one transaction.
func (r *Repository) EditMessage(ctx context.Context, id, editorID, content string) (*domain.Message, error) {
	return r.mutate(ctx, id, editorID, func(msg *domain.Message) error {
		if msg.Deleted {
			return domain.ErrMessageDeleted
		}
		msg.ApplyEdit(content, time.Now().UTC())
		return nil
	})
}

// SoftDeleteMessage turns a message into a tombstone. Deleting an already
// deleted message returns it unchanged.
func (r *Repository) SoftDeleteMessage(ctx context.Context, id, requesterID string) (*domain.Message, error) {
	return r.mutate(ctx, id, requesterID, func(msg *domain.Message) error {
		if msg.Deleted {
			return errUnchanged
		}
		msg.ApplyDelete(time.Now().UTC())
		return nil
	})
}

var errUnchanged = errors.New("unchanged")

func (r *Repository) mutate(ctx context.Context, id, actorID string, apply func(*domain.Message) error) (*domain.Message, error) {
	var result *domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec MessageRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMessageNotFound
			}
			return storeError("find message", err)
		}
		if rec.SenderID != actorID {
			return domain.ErrNotSender
		}

		msg := rec.toDomain()
		if err := apply(msg); err != nil {
			if errors.Is(err, errUnchanged) {
				result = msg
				return nil
			}
			return err
		}

		updated := newMessageRecord(msg)
		if err := tx.Model(&MessageRecord{}).Where("id = ?", id).Select(
			"content", "edited", "deleted", "updated_at",
			"attachment_name", "attachment_mime_type", "attachment_size", "attachment_data",
		).Updates(updated).Error; err != nil {
			return storeError("update message", err)
		}
		result = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChannelMessages returns a channel's history, oldest first.
func (r *Repository) ChannelMessages(ctx context.Context, channelID string, q Query) ([]*domain.Message, error) {
	tx := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	return r.findMessages(tx, q)
}

// ConversationMessages returns the private conversation between two users, oldest first.
func (r *Repository) ConversationMessages(ctx context.Context, userID, peerID string, q Query) ([]*domain.Message, error) {
	tx := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userID, peerID, peerID, userID,
	)
	return r.findMessages(tx, q)
}

// SenderMessages returns every message sent by a user, oldest first.
func (r *Repository) SenderMessages(ctx context.Context, senderID string, q Query) ([]*domain.Message, error) {
	tx := r.db.WithContext(ctx).Where("sender_id = ?", senderID)
	return r.findMessages(tx, q)
}

func (r *Repository) findMessages(tx *gorm.DB, q Query) ([]*domain.Message, error) {
	if q.Search != "" {
		tx = tx.Where("content LIKE ? ESCAPE '\\'", "%"+escapeLike(q.Search)+"%")
	}
	if q.Since != nil {
		tx = tx.Where("created_at > ?", q.Since.UTC())
	}
	limit := q.Limit
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	var records []MessageRecord
	if err := tx.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, storeError("find messages", err)
	}
	messages := make([]*domain.Message, 0, len(records))
	for i := range records {
		messages = append(messages, records[i].toDomain())
	}
	return messages, nil
}

// escapeLike makes the user's search text match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CreateChannel persists a channel with its creator as member and admin.
func (r *Repository) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	rec := &ChannelRecord{
		ID:          ch.ID,
		CreatedAt:   ch.CreatedAt,
		Name:        ch.Name,
		Description: ch.Description,
		IsPrivate:   ch.IsPrivate,
		CreatedBy:   ch.CreatedBy,
		Members: []MemberRecord{{
			UserID:   ch.CreatedBy,
			IsAdmin:  true,
			JoinedAt: ch.CreatedAt,
		}},
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			return domain.NewError(domain.ErrValidation, "Channel name already exists.")
		}
		return storeError("create channel", err)
	}
	ch.Members = []string{ch.CreatedBy}
	ch.Admins = []string{ch.CreatedBy}
	return nil
}

// GetChannel retrieves a channel with its members.
func (r *Repository) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var rec ChannelRecord
	if err := r.db.WithContext(ctx).Preload("Members").First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, storeError("find channel", err)
	}
	return rec.toDomain(), nil
}

// VisibleChannels returns public channels and private channels userID belongs to.
func (r *Repository) VisibleChannels(ctx context.Context, userID string) ([]*domain.Channel, error) {
	var records []ChannelRecord
	member := r.db.Model(&MemberRecord{}).Select("channel_id").Where("user_id = ?", userID)
	if err := r.db.WithContext(ctx).Preload("Members").
		Where("is_private = ? OR id IN (?)", false, member).
		Order("name ASC").
		Find(&records).Error; err != nil {
		return nil, storeError("list channels", err)
	}
	channels := make([]*domain.Channel, 0, len(records))
	for i := range records {
		channels = append(channels, records[i].toDomain())
	}
	return channels, nil
}

// JoinChannel adds userID to a public channel.
func (r *Repository) JoinChannel(ctx context.Context, channelID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch ChannelRecord
		if err := tx.First(&ch, "id = ?", channelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrChannelNotFound
			}
			return storeError("find channel", err)
		}
		if ch.IsPrivate {
			return domain.ErrChannelForbidden
		}
		var count int64
		if err := tx.Model(&MemberRecord{}).Where("channel_id = ? AND user_id = ?", channelID, userID).Count(&count).Error; err != nil {
			return storeError("check membership", err)
		}
		if count > 0 {
			return domain.NewError(domain.ErrValidation, "Already a member of this channel")
		}
		member := &MemberRecord{ChannelID: channelID, UserID: userID, JoinedAt: time.Now().UTC()}
		if err := tx.Create(member).Error; err != nil {
			return storeError("join channel", err)
		}
		return nil
	})
}

// LeaveChannel removes userID from a channel's members and admins.
func (r *Repository) LeaveChannel(ctx context.Context, channelID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ChannelRecord{}).Where("id = ?", channelID).Count(&count).Error; err != nil {
			return storeError("find channel", err)
		}
		if count == 0 {
			return domain.ErrChannelNotFound
		}
		result := tx.Delete(&MemberRecord{}, "channel_id = ? AND user_id = ?", channelID, userID)
		if result.Error != nil {
			return storeError("leave channel", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewError(domain.ErrValidation, "Not a member of this channel")
		}
		return nil
	})
}

// MayJoin reports whether userID may subscribe to a channel's room:
// the channel must exist and be public or have userID as a member.
func (r *Repository) MayJoin(ctx context.Context, userID, channelID string) (bool, error) {
	var ch ChannelRecord
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.ErrChannelNotFound
		}
		return false, storeError("find channel", err)
	}
	if !ch.IsPrivate {
		return true, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&MemberRecord{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error; err != nil {
		return false, storeError("check membership", err)
	}
	return count > 0, nil
}
