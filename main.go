package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/XuanSon0704/Reels-Chat/modules/api"
	"github.com/XuanSon0704/Reels-Chat/modules/auth"
	"github.com/XuanSon0704/Reels-Chat/modules/participants"
	"github.com/XuanSon0704/Reels-Chat/modules/presence"
	"github.com/XuanSon0704/Reels-Chat/modules/realtime"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Reels-Chat Realtime Service ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	authManager := auth.NewJWTManager(auth.DefaultJWTConfig())

	// Create modules
	participantsModule := participants.NewModule()
	presenceModule := presence.NewModule()
	realtimeModule := realtime.NewModule(participantsModule, presenceModule)
	apiModule := api.NewModule(authManager, realtimeModule)

	// Register modules with the framework.
	// Order: stores first, then the realtime core that uses them, then
	// the HTTP surface.
	app.Register(participantsModule) // membership store (PostgreSQL)
	app.Register(presenceModule)     // status cache (Redis)
	app.Register(realtimeModule)     // hub + event router + notification consumer
	app.Register(apiModule)          // HTTP/WebSocket server + notify publisher

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
	log.Println("Realtime service started successfully!")
	log.Println("")
	log.Printf("WebSocket endpoint (ws://localhost:%s/ws):", port)
	log.Println("  Authenticate with ?token=<jwt> or an Authorization: Bearer header")
	log.Println("  Client events: join_reel, leave_reel, join_conversation,")
	log.Println("    leave_conversation, typing_start, typing_stop,")
	log.Println("    comment_typing_start, comment_typing_stop, status_update,")
	log.Println("    message_read, like_notification, comment_notification,")
	log.Println("    follow_notification, call_initiate, call_answer,")
	log.Println("    call_ice_candidate, call_end")
	log.Println("")
	log.Printf("HTTP endpoints (http://localhost:%s):", port)
	log.Println("  GET  /health           - Health check")
	log.Println("  POST /internal/notify  - Queue a push to a user's personal room")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
