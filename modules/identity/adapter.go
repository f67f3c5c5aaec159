package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// IdentityPort defines the identity operations other modules use.
type IdentityPort interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Verify(ctx context.Context, token string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context, req ListUsersRequest) ([]*domain.User, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.User, error)
}

// IdentityAdapter implements IdentityPort using the service container.
type IdentityAdapter struct {
	container mono.ServiceContainer
}

var _ IdentityPort = (*IdentityAdapter)(nil)

// NewIdentityAdapter creates a new IdentityAdapter.
func NewIdentityAdapter(container mono.ServiceContainer) *IdentityAdapter {
	return &IdentityAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, errors.Join(domain.ErrStore, err))
	}
	return nil
}

// Register creates an account.
func (a *IdentityAdapter) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := call(ctx, a.container, ServiceRegister, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a session token.
func (a *IdentityAdapter) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := call(ctx, a.container, ServiceLogin, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify resolves a token to its user. Invalid tokens yield an authentication error.
func (a *IdentityAdapter) Verify(ctx context.Context, token string) (*domain.User, error) {
	req := VerifyTokenRequest{Token: token}
	var resp VerifyTokenResponse
	if err := call(ctx, a.container, ServiceVerifyToken, &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, domain.NewError(domain.ErrAuthentication, resp.Error)
	}
	return &domain.User{ID: resp.UserID, Username: resp.Username}, nil
}

// GetUser retrieves a user by id.
func (a *IdentityAdapter) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	req := GetUserRequest{UserID: userID}
	var resp UserResponse
	if err := call(ctx, a.container, ServiceGetUser, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ListUsers lists users other than req.ExcludeID.
func (a *IdentityAdapter) ListUsers(ctx context.Context, req ListUsersRequest) ([]*domain.User, error) {
	var resp ListUsersResponse
	if err := call(ctx, a.container, ServiceListUsers, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// TouchLastSeen records when a user was last seen.
func (a *IdentityAdapter) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	req := TouchLastSeenRequest{UserID: userID, At: at}
	var resp TouchLastSeenResponse
	if err := call(ctx, a.container, ServiceTouchLastSeen, &req, &resp); err != nil {
		return err
	}
	return resp.Err()
}

// UpdateProfile changes the username or avatar of req.UserID.
func (a *IdentityAdapter) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.User, error) {
	var resp UserResponse
	if err := call(ctx, a.container, ServiceUpdateProfile, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.User, nil
}
