package api

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse represents an authentication token response.
type TokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// UpdateProfileRequest changes the caller's profile. Omitted fields stay
// unchanged.
type UpdateProfileRequest struct {
	Username *string `json:"username"`
	Avatar   *string `json:"avatar"`
}

// CreateChannelRequest represents a channel creation request.
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

// ChannelListResponse represents a list of channels.
type ChannelListResponse struct {
	Channels []*domain.Channel `json:"channels"`
}

// UserListResponse represents a list of users.
type UserListResponse struct {
	Users []*domain.User `json:"users"`
}

// MessageListResponse represents a page of history, oldest first.
type MessageListResponse struct {
	Messages []*domain.Message `json:"messages"`
	Count    int               `json:"count"`
}

// StatusResponse acknowledges an action.
type StatusResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
