package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/google/uuid"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 6
	maxPasswordLength = 72
	maxAvatarLength   = 2048
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = domain.NewError(domain.ErrAuthentication, "Invalid email or password")
	// ErrInvalidUsername is returned when the username length is out of range.
	ErrInvalidUsername = domain.NewError(domain.ErrValidation, "Username must be 3-30 characters")
	// ErrInvalidEmail is returned when email format is invalid.
	ErrInvalidEmail = domain.NewError(domain.ErrValidation, "Invalid email format")
	// ErrWeakPassword is returned when the password is too short.
	ErrWeakPassword = domain.NewError(domain.ErrValidation, "Password must be at least 6 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = domain.NewError(domain.ErrValidation, "Password must be at most 72 characters")
	// ErrAccountExists is returned when the username or email is taken.
	ErrAccountExists = domain.NewError(domain.ErrValidation, "User already exists")
	// ErrUsernameTaken is returned when a profile update picks another user's name.
	ErrUsernameTaken = domain.NewError(domain.ErrValidation, "Username already taken")
	// ErrInvalidAvatar is returned when the avatar is not an http(s) URL.
	ErrInvalidAvatar = domain.NewError(domain.ErrValidation, "Avatar must be an http(s) URL of at most 2048 characters")
)

// Session is an issued token with its owner.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// IdentityService handles account and token business logic.
type IdentityService struct {
	repo   *UserRepository
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(repo *UserRepository, hasher *PasswordHasher, tokens *TokenManager) *IdentityService {
	return &IdentityService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates an account and returns a session for it.
func (s *IdentityService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if n := utf8.RuneCountInString(username); n < minUsernameLength || n > maxUsernameLength {
		return nil, ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return nil, ErrPasswordTooLong
	}

	exists, err := s.repo.Exists(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAccountExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &UserRecord{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		LastSeen:     &now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return s.session(user)
}

// Login verifies credentials and returns a new session.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *IdentityService) session(user *UserRecord) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user.toDomain()}, nil
}

// Verify resolves a token to the user it was issued for.
// The account must still exist.
func (s *IdentityService) Verify(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return user.toDomain(), nil
}

// GetUser returns a user by id.
func (s *IdentityService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, domain.NewError(domain.ErrNotFound, "User not found")
		}
		return nil, err
	}
	return user.toDomain(), nil
}

// UpdateProfile changes the username and/or avatar of a user. Nil fields are
// left unchanged and an empty avatar clears it.
func (s *IdentityService) UpdateProfile(ctx context.Context, id string, username, avatar *string) (*domain.User, error) {
	updates := make(map[string]any, 3)
	if username != nil {
		name := strings.TrimSpace(*username)
		if n := utf8.RuneCountInString(name); n < minUsernameLength || n > maxUsernameLength {
			return nil, ErrInvalidUsername
		}
		taken, err := s.repo.UsernameTaken(ctx, name, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrUsernameTaken
		}
		updates["username"] = name
	}
	if avatar != nil {
		a := strings.TrimSpace(*avatar)
		if a != "" && !validAvatar(a) {
			return nil, ErrInvalidAvatar
		}
		updates["avatar"] = a
	}
	if len(updates) == 0 {
		return s.GetUser(ctx, id)
	}
	updates["updated_at"] = time.Now().UTC()

	user, err := s.repo.UpdateProfile(ctx, id, updates)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, domain.NewError(domain.ErrNotFound, "User not found")
		case errors.Is(err, ErrUserExists):
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user.toDomain(), nil
}

func validAvatar(raw string) bool {
	if len(raw) > maxAvatarLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ListUsers returns users other than excludeID, optionally filtered by username.
func (s *IdentityService) ListUsers(ctx context.Context, excludeID, search string, limit int) ([]*domain.User, error) {
	records, err := s.repo.List(ctx, excludeID, strings.TrimSpace(search), limit)
	if err != nil {
		return nil, err
	}
	users := make([]*domain.User, 0, len(records))
	for _, r := range records {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// TouchLastSeen records when a user was last seen.
func (s *IdentityService) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	if err := s.repo.TouchLastSeen(ctx, id, at.UTC()); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return domain.NewError(domain.ErrNotFound, "User not found")
		}
		return err
	}
	return nil
}
