package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"conversation-service/internal/config"
	"conversation-service/internal/db"
	"conversation-service/internal/events"
	"conversation-service/internal/handlers"
	"conversation-service/internal/identity"
	"conversation-service/internal/middleware"
	"conversation-service/internal/observability"
	"conversation-service/internal/rabbitmq"
	"conversation-service/internal/repositories"
	"conversation-service/internal/telemetry"
	"conversation-service/internal/ws"
)

const serviceName = "conversation-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint, serviceName)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer(context.Background())

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s noop_reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	bus := events.NewBus()
	defer bus.Close()

	convRepo := repositories.NewConversationRepo(database)
	msgRepo := repositories.NewMessageRepo(database)

	verifier := identity.NewJWTVerifier(cfg.JWTSecret)

	convHandler := handlers.NewConversationHandler(convRepo, msgRepo, bus, audit)
	sessionHandler := ws.NewSessionHandler(bus, convRepo, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/conversations", authMiddleware, convHandler.CreateConversation)
	router.GET("/conversations", authMiddleware, convHandler.ListConversations)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, convHandler.SendMessage)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, convHandler.ListMessages)
	router.POST("/conversations/:conversation_id/read", authMiddleware, convHandler.MarkConversationAsRead)
	router.DELETE("/conversations/:conversation_id", authMiddleware, convHandler.DeleteConversation)

	router.GET("/ws", sessionHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
