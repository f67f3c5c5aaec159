package identity

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// UserRecord is the persisted form of a user account.
type UserRecord struct {
	ID           string    `gorm:"primarykey;size:36"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Username     string `gorm:"size:30;not null;uniqueIndex"`
	Email        string `gorm:"size:254;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Avatar       string `gorm:"size:2048"`
	LastSeen     *time.Time
}

// TableName returns the table name for UserRecord.
func (UserRecord) TableName() string {
	return "users"
}

func (r *UserRecord) toDomain() *domain.User {
	return &domain.User{
		ID:        r.ID,
		Username:  r.Username,
		Avatar:    r.Avatar,
		Email:     r.Email,
		LastSeen:  r.LastSeen,
		CreatedAt: r.CreatedAt,
	}
}
