package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IdentityModule issues and verifies session tokens and owns user accounts.
type IdentityModule struct {
	db      *gorm.DB
	service *IdentityService
	dbPath  string
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*IdentityModule)(nil)
var _ mono.ServiceProviderModule = (*IdentityModule)(nil)
var _ mono.HealthCheckableModule = (*IdentityModule)(nil)

// NewModule creates a new IdentityModule.
func NewModule(logger types.Logger) *IdentityModule {
	dbPath := os.Getenv("IDENTITY_DB_PATH")
	if dbPath == "" {
		dbPath = "identity.db"
	}
	return &IdentityModule{
		dbPath: dbPath,
		logger: logger,
	}
}

// Name returns the module name.
func (m *IdentityModule) Name() string {
	return "identity"
}

// Start opens the user database and wires the service.
func (m *IdentityModule) Start(_ context.Context) error {
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := db.AutoMigrate(&UserRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	m.service = NewIdentityService(
		NewUserRepository(db),
		NewPasswordHasher(loadBcryptCost()),
		NewTokenManager(loadTokenConfig()),
	)

	m.logger.Info("Identity module started", "database", m.dbPath)
	return nil
}

// Stop closes the user database.
func (m *IdentityModule) Stop(_ context.Context) error {
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	m.logger.Info("Identity module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *IdentityModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.dbPath,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *IdentityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRegister, json.Unmarshal, json.Marshal, m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register register service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLogin, json.Unmarshal, json.Marshal, m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register login service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceVerifyToken, json.Unmarshal, json.Marshal, m.handleVerifyToken,
	); err != nil {
		return fmt.Errorf("failed to register verify-token service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetUser, json.Unmarshal, json.Marshal, m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register get-user service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListUsers, json.Unmarshal, json.Marshal, m.handleListUsers,
	); err != nil {
		return fmt.Errorf("failed to register list-users service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceTouchLastSeen, json.Unmarshal, json.Marshal, m.handleTouchLastSeen,
	); err != nil {
		return fmt.Errorf("failed to register touch-last-seen service: %w", err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateProfile, json.Unmarshal, json.Marshal, m.handleUpdateProfile,
	); err != nil {
		return fmt.Errorf("failed to register update-profile service: %w", err)
	}

	m.logger.Info("Registered identity services",
		"services", "register,login,verify-token,get-user,list-users,touch-last-seen,update-profile")
	return nil
}

func (m *IdentityModule) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (AuthResponse, error) {
	session, err := m.service.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return AuthResponse{Status: domain.StatusOf(err)}, nil
	}
	m.logger.Info("User registered", "userID", session.User.ID, "username", session.User.Username)
	return authResponse(session), nil
}

func (m *IdentityModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (AuthResponse, error) {
	session, err := m.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		return AuthResponse{Status: domain.StatusOf(err)}, nil
	}
	return authResponse(session), nil
}

func authResponse(s *Session) AuthResponse {
	return AuthResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: s.User}
}

// handleVerifyToken reports failures in the response, not as an error.
func (m *IdentityModule) handleVerifyToken(ctx context.Context, req VerifyTokenRequest, _ *mono.Msg) (VerifyTokenResponse, error) {
	user, err := m.service.Verify(ctx, req.Token)
	if err != nil {
		return VerifyTokenResponse{
			Valid: false,
			Error: domain.ClientMessage(err, "Token verification failed"),
		}, nil
	}
	return VerifyTokenResponse{
		Valid:    true,
		UserID:   user.ID,
		Username: user.Username,
	}, nil
}

func (m *IdentityModule) handleGetUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.GetUser(ctx, req.UserID)
	if err != nil {
		return UserResponse{Status: domain.StatusOf(err)}, nil
	}
	return UserResponse{User: user}, nil
}

func (m *IdentityModule) handleUpdateProfile(ctx context.Context, req UpdateProfileRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.UpdateProfile(ctx, req.UserID, req.Username, req.Avatar)
	if err != nil {
		return UserResponse{Status: domain.StatusOf(err)}, nil
	}
	m.logger.Info("Profile updated", "userID", user.ID, "username", user.Username)
	return UserResponse{User: user}, nil
}

func (m *IdentityModule) handleListUsers(ctx context.Context, req ListUsersRequest, _ *mono.Msg) (ListUsersResponse, error) {
	users, err := m.service.ListUsers(ctx, req.ExcludeID, req.Search, req.Limit)
	if err != nil {
		return ListUsersResponse{Status: domain.StatusOf(err)}, nil
	}
	return ListUsersResponse{Users: users}, nil
}

func (m *IdentityModule) handleTouchLastSeen(ctx context.Context, req TouchLastSeenRequest, _ *mono.Msg) (TouchLastSeenResponse, error) {
	if err := m.service.TouchLastSeen(ctx, req.UserID, req.At); err != nil {
		return TouchLastSeenResponse{Status: domain.StatusOf(err)}, nil
	}
	return TouchLastSeenResponse{}, nil
}

// loadTokenConfig loads token configuration from environment variables.
func loadTokenConfig() TokenConfig {
	config := TokenConfig{
		SecretKey: "your-secret-key-change-in-production",
		TTL:       24 * time.Hour,
		Issuer:    "realtime-chat",
	}
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		config.SecretKey = secret
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		config.Issuer = issuer
	}
	if ttl := os.Getenv("JWT_TOKEN_TTL"); ttl != "" {
		if parsed, err := time.ParseDuration(ttl); err == nil && parsed > 0 {
			config.TTL = parsed
		}
	}
	return config
}

func loadBcryptCost() int {
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return bcrypt.DefaultCost
}
