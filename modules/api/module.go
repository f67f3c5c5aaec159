package api

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/identity"
	"github.com/example/realtime-chat/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jaevor/go-nanoid"
)

const connIDLength = 21

// APIModule serves the REST API and the realtime WebSocket endpoint.
type APIModule struct {
	app            *fiber.App
	identity       identity.IdentityPort
	store          store.StorePort
	chat           *chat.ChatModule
	newConnID      func() string
	addr           string
	allowedOrigins string
	logger         types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(logger types.Logger) *APIModule {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	return &APIModule{
		addr:           ":" + port,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"identity", "store"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "identity":
		m.identity = identity.NewIdentityAdapter(container)
	case "store":
		m.store = store.NewStoreAdapter(container)
	}
}

// SetChat injects the chat module that serves WebSocket sessions.
func (m *APIModule) SetChat(c *chat.ChatModule) {
	m.chat = c
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.identity == nil {
		return fmt.Errorf("identity dependency not set")
	}
	if m.store == nil {
		return fmt.Errorf("store dependency not set")
	}
	if m.chat == nil {
		return fmt.Errorf("chat module not set")
	}

	newConnID, err := nanoid.Standard(connIDLength)
	if err != nil {
		return fmt.Errorf("failed to create connection id generator: %w", err)
	}
	m.newConnID = newConnID

	m.app = newApp(m.allowedOrigins, m.logger)
	m.setupRoutes(NewHandlers(m.identity, m.store, m.logger))

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr": m.addr,
		},
	}
}

// newApp builds the Fiber app with the shared middleware stack.
func newApp(allowedOrigins string, log types.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Realtime Chat",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Next:   websocket.IsWebSocketUpgrade,
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	return app
}

// setupRoutes configures all routes.
func (m *APIModule) setupRoutes(handlers *Handlers) {
	m.app.Get("/health", m.healthHandler)

	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))

	registerRESTRoutes(m.app, handlers, AuthMiddleware(m.identity))
}

// registerRESTRoutes mounts the /api/v1 routes.
func registerRESTRoutes(app *fiber.App, handlers *Handlers, auth fiber.Handler) {
	v1 := app.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", handlers.Register)
	authRoutes.Post("/login", handlers.Login)

	protected := v1.Group("")
	protected.Use(auth)
	protected.Get("/users", handlers.ListUsers)
	protected.Get("/users/me", handlers.Me)
	protected.Put("/users/me", handlers.UpdateProfile)
	protected.Get("/users/:id", handlers.GetUser)
	protected.Get("/users/:id/messages", handlers.ConversationMessages)
	protected.Get("/messages", handlers.SentMessages)

	protected.Get("/channels", handlers.ListChannels)
	protected.Post("/channels", handlers.CreateChannel)
	protected.Post("/channels/:id/join", handlers.JoinChannel)
	protected.Post("/channels/:id/leave", handlers.LeaveChannel)
	protected.Get("/channels/:id/messages", handlers.ChannelMessages)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	realtime := m.chat != nil && m.chat.Service() != nil
	status := "healthy"
	if !realtime {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":   status,
		"module":   "api",
		"realtime": realtime,
	})
}

// errorHandler handles Fiber errors.
func errorHandler(log types.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(ErrorResponse{
			Error:   "server_error",
			Message: message,
		})
	}
}
