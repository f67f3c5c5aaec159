package chat

import (
	"context"

	domain "github.com/example/realtime-chat/domain/chat"
)

// IdentityVerifier resolves a bearer token to the user it was issued for,
// and looks users up by id.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// MessageStore persists messages. Edit and delete check the requester is
// the sender atomically with the write.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	EditMessage(ctx context.Context, messageID, editorID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) (*domain.Message, error)
}

// MembershipAuthority decides whether a user may subscribe to a channel.
type MembershipAuthority interface {
	MayJoin(ctx context.Context, userID, channelID string) (bool, error)
}
