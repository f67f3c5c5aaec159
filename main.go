package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/realtime-chat/modules/activity"
	"github.com/example/realtime-chat/modules/api"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/identity"
	"github.com/example/realtime-chat/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Realtime Chat - Fiber + WebSocket + EventBus ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	identityModule := identity.NewModule(logger)
	storeModule := store.NewModule(logger)
	broadcastModule := broadcast.NewModule(logger)
	chatModule := chat.NewModule(logger)
	activityModule := activity.NewModule(logger)
	apiModule := api.NewModule(logger)

	// The realtime core holds live connections, so it is wired in process
	// rather than through a ServiceContainer.
	chatModule.SetBroadcast(broadcastModule)
	apiModule.SetChat(chatModule)

	// Register modules with the framework.
	// - identity, store: service providers (request-reply)
	// - broadcast: connection hub, presence and fanout
	// - chat: realtime operations + event emitter
	// - activity: event consumer (last-seen)
	// - api: Fiber HTTP/WebSocket server
	app.Register(identityModule)
	app.Register(storeModule)
	app.Register(broadcastModule)
	app.Register(chatModule)
	app.Register(activityModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                      - Health check")
	log.Println("  POST   /api/v1/auth/register        - Create an account")
	log.Println("  POST   /api/v1/auth/login           - Obtain a bearer token")
	log.Println("  GET    /api/v1/users                - List users (?q=&limit=)")
	log.Println("  GET    /api/v1/users/me             - Current user")
	log.Println("  PUT    /api/v1/users/me             - Update username or avatar")
	log.Println("  GET    /api/v1/users/:id            - User details")
	log.Println("  GET    /api/v1/users/:id/messages   - Private conversation (?q=&since=)")
	log.Println("  GET    /api/v1/messages             - Messages you sent")
	log.Println("  GET    /api/v1/channels             - Visible channels")
	log.Println("  POST   /api/v1/channels             - Create a channel")
	log.Println("  POST   /api/v1/channels/:id/join    - Join a public channel")
	log.Println("  POST   /api/v1/channels/:id/leave   - Leave a channel")
	log.Println("  GET    /api/v1/channels/:id/messages - Channel history (?q=&since=)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Println(`  First frame: {"type":"authenticate","data":{"token":"<jwt>"}}`)
	log.Println("  Then: join_channel, leave_channel, send_message, private_message,")
	log.Println("        edit_message, delete_message, typing")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
