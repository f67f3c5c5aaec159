package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoreModule provides message history, channels and memberships via GORM + SQLite.
type StoreModule struct {
	db           *gorm.DB
	repo         *Repository
	dbPath       string
	historyLimit int
	logger       types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*StoreModule)(nil)
var _ mono.ServiceProviderModule = (*StoreModule)(nil)
var _ mono.HealthCheckableModule = (*StoreModule)(nil)

// NewModule creates a new StoreModule.
func NewModule(logger types.Logger) *StoreModule {
	dbPath := os.Getenv("CHAT_DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	limit := DefaultHistoryLimit
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return &StoreModule{
		dbPath:       dbPath,
		historyLimit: limit,
		logger:       logger,
	}
}

// Name returns the module name.
func (m *StoreModule) Name() string {
	return "store"
}

// Health performs a health check on the store module.
func (m *StoreModule) Health(ctx context.Context) mono.HealthStatus {
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
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
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
			"driver":        "sqlite",
			"path":          m.dbPath,
			"history_limit": m.historyLimit,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *StoreModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateMessage, json.Unmarshal, json.Marshal, m.createMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateMessage, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceEditMessage, json.Unmarshal, json.Marshal, m.editMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceEditMessage, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteMessage, json.Unmarshal, json.Marshal, m.deleteMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteMessage, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceChannelMessages, json.Unmarshal, json.Marshal, m.channelMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceChannelMessages, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceConversationMessages, json.Unmarshal, json.Marshal, m.conversationMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceConversationMessages, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSenderMessages, json.Unmarshal, json.Marshal, m.senderMessages,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSenderMessages, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateChannel, json.Unmarshal, json.Marshal, m.createChannel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateChannel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListChannels, json.Unmarshal, json.Marshal, m.listChannels,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListChannels, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceJoinChannel, json.Unmarshal, json.Marshal, m.joinChannel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceJoinChannel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLeaveChannel, json.Unmarshal, json.Marshal, m.leaveChannel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLeaveChannel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceMayJoin, json.Unmarshal, json.Marshal, m.mayJoin,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceMayJoin, err)
	}

	m.logger.Info("Registered store services",
		"services", "create-message,edit-message,delete-message,channel-messages,conversation-messages,sender-messages,create-channel,list-channels,join-channel,leave-channel,may-join")
	return nil
}

// Start opens the database and runs migrations.
func (m *StoreModule) Start(_ context.Context) error {
	m.logger.Info("Connecting to SQLite database", "path", m.dbPath)

	db, err := OpenDB(m.dbPath, os.Getenv("DB_DEBUG") == "true")
	if err != nil {
		return err
	}
	m.db = db
	m.repo = NewRepository(db, m.historyLimit)

	m.logger.Info("Store module started")
	return nil
}

// Stop closes the database connection.
func (m *StoreModule) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Store database connection closed")
	return nil
}

// OpenDB opens a SQLite database and migrates the store schema.
// SQLite serializes writers, so the pool is limited to one connection.
func OpenDB(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&MessageRecord{}, &ChannelRecord{}, &MemberRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
