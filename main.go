package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"lanchat/internal/chat"
	"lanchat/internal/friends"
	"lanchat/internal/guard"
	"lanchat/internal/handlers"
	"lanchat/internal/identity"
	"lanchat/internal/observability"
	"lanchat/internal/rabbitmq"
	"lanchat/internal/rooms"
	"lanchat/internal/session"
	"lanchat/internal/store"
	"lanchat/internal/telemetry"
	"lanchat/internal/ws"
)

func main() {
	port := getEnv("PORT", "8080")
	adminPort := getEnv("ADMIN_PORT", "8081")
	dataDir := getEnv("DATA_DIR", "./data")
	uploadDir := getEnv("UPLOAD_DIR", filepath.Join(dataDir, "uploads"))
	amqpURL := getEnv("AMQP_URL", "")
	exchange := getEnv("AMQP_EXCHANGE", "lanchat.audit")
	environment := getEnv("ENVIRONMENT", "dev")
	superAdminPassword := getEnv("SUPER_ADMIN_PASSWORD", "changeme123")

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, getEnv("OTLP_ENDPOINT", ""), "lanchat", environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	st, err := store.Open(dataDir)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	publisher := rabbitmq.NewPublisher(amqpURL, exchange)
	defer publisher.Close()
	if reason := rabbitmq.PublisherNoopReason(publisher); reason != "" {
		log.Printf("audit publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), reason)
	} else {
		log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	}
	audit := telemetry.NewAuditEmitter(publisher, "moderation.events", "lanchat", environment)

	sessions := session.NewRegistry(st)
	identities := identity.NewService(st)
	if err := identities.EnsureSuperAdmin(superAdminPassword); err != nil {
		log.Fatalf("failed to bootstrap super admin: %v", err)
	}

	moderation := guard.New(st, sessions, audit)
	router := chat.NewRouter(st, sessions, moderation)
	roomManager := rooms.NewManager(st, sessions, moderation, router)
	friendGraph := friends.NewService(st, sessions, identities)

	var stateMu sync.Mutex
	gateway := ws.NewGateway(&stateMu, st, sessions, identities, friendGraph, moderation, router, roomManager)

	public := gin.Default()
	public.Use(gin.Recovery())
	public.Use(otelgin.Middleware("lanchat"))
	public.Use(observability.HTTPMetricsMiddleware())

	handlers.NewHTTPHandler(uploadDir).Register(public)
	public.GET("/metrics", gin.WrapH(promhttp.Handler()))
	public.GET("/ws", gateway.Handle)

	admin := handlers.NewAdminHandler(&stateMu, st, sessions, identities, moderation, roomManager)
	go func() {
		addr := "127.0.0.1:" + adminPort
		log.Printf("admin surface listening on %s", addr)
		if err := admin.Router().Run(addr); err != nil {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	log.Printf("lanchat listening on :%s data=%s", port, dataDir)
	if err := public.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
