package identity

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// Service names registered by the identity module.
const (
	ServiceRegister      = "register"
	ServiceLogin         = "login"
	ServiceVerifyToken   = "verify-token"
	ServiceGetUser       = "get-user"
	ServiceListUsers     = "list-users"
	ServiceTouchLastSeen = "touch-last-seen"
	ServiceUpdateProfile = "update-profile"
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

// AuthResponse carries a session token for a registered or logged-in user.
type AuthResponse struct {
	domain.Status
	Token     string       `json:"token,omitempty"`
	ExpiresAt time.Time    `json:"expires_at,omitempty"`
	User      *domain.User `json:"user,omitempty"`
}

// VerifyTokenRequest represents a token verification request.
type VerifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyTokenResponse represents a token verification response.
type VerifyTokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GetUserRequest represents a get user request.
type GetUserRequest struct {
	UserID string `json:"user_id"`
}

// UserResponse returns a single user.
type UserResponse struct {
	domain.Status
	User *domain.User `json:"user,omitempty"`
}

// UpdateProfileRequest changes a user's profile. Nil fields stay unchanged.
type UpdateProfileRequest struct {
	UserID   string  `json:"user_id"`
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

// ListUsersRequest lists users other than ExcludeID.
type ListUsersRequest struct {
	ExcludeID string `json:"exclude_id"`
	Search    string `json:"search,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ListUsersResponse returns users ordered by username.
type ListUsersResponse struct {
	domain.Status
	Users []*domain.User `json:"users"`
}

// TouchLastSeenRequest records when a user was last seen.
type TouchLastSeenRequest struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// TouchLastSeenResponse reports the outcome of a last-seen update.
type TouchLastSeenResponse struct {
	domain.Status
}
