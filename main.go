package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"booklend-chat-service/internal/chat"
	"booklend-chat-service/internal/config"
	"booklend-chat-service/internal/db"
	"booklend-chat-service/internal/handlers"
	"booklend-chat-service/internal/middleware"
	"booklend-chat-service/internal/notifications"
	"booklend-chat-service/internal/observability"
	"booklend-chat-service/internal/rabbitmq"
	"booklend-chat-service/internal/repositories"
	"booklend-chat-service/internal/ws"
)

const serviceName = "booklend-chat-service"

func main() {
	cfg := config.Load()

	shutdownTracing, err := observability.SetupTracing(context.Background(), serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("notification publisher mode=%s", rabbitmq.PublisherMode(publisher))

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	listingRepo := repositories.NewListingRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		relay := ws.NewRedisRelay(redisClient, hub)
		defer relay.Close()
		log.Printf("websocket relay enabled via redis %s", cfg.RedisAddr)
	}

	notifier := notifications.NewNotifier(publisher, cfg.RoutingKey, serviceName, cfg.Environment)
	chatService := chat.NewChatService(roomRepo, messageRepo, listingRepo, userRepo, hub, notifier)

	chatHandler := handlers.NewChatHandler(chatService)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, cfg.JWTSecret)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	api := router.Group("/api/v1/chat", authMiddleware)
	chatHandler.RegisterRoutes(api)

	router.GET("/ws/rooms/:room_key", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, publisher, cfg.DebugEndpoint)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
