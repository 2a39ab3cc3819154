package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"junqo-chat/internal/auth"
	"junqo-chat/internal/broker"
	"junqo-chat/internal/config"
	"junqo-chat/internal/db"
	grpcserver "junqo-chat/internal/grpc"
	"junqo-chat/internal/handlers"
	"junqo-chat/internal/middleware"
	"junqo-chat/internal/observability"
	"junqo-chat/internal/redisx"
	"junqo-chat/internal/repositories"
	"junqo-chat/internal/services"
	"junqo-chat/internal/telemetry"
	"junqo-chat/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingOptions{
		Endpoint:    cfg.Tracing.OTLPEndpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Server.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := broker.NewPublisher(broker.Options{
		Backend:      cfg.Events.Backend,
		AMQPURL:      cfg.Events.AMQPURL,
		AMQPExchange: cfg.Events.AMQPExchange,
		KafkaBrokers: cfg.Events.KafkaBrokers,
		KafkaTopic:   cfg.Events.KafkaTopic,
	})
	defer publisher.Close()
	log.Printf("event publisher ready: mode=%s reason=%s", broker.PublisherMode(publisher), broker.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.Events.AuditKey, cfg.Tracing.ServiceName, cfg.Server.Environment)

	hub := ws.NewHub()
	var presence ws.Presence = ws.NewMemoryPresence()
	if cfg.Redis.URL != "" {
		rdb, err := redisx.Open(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		relay := redisx.NewRelay(rdb, redisx.DefaultRelayChannel)
		hub.SetRelay(relay)
		presence = redisx.NewPresence(rdb)
		go func() {
			if err := relay.Run(ctx, hub, nil); err != nil {
				log.Printf("redis relay stopped: %v", err)
			}
		}()
		log.Printf("redis relay enabled: node=%s", hub.Node())
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	messaging := services.NewMessagingService(conversationRepo, messageRepo, hub, publisher, services.Limits{
		HistoryDefault:   cfg.Messages.HistoryDefaultLimit,
		HistoryMax:       cfg.Messages.HistoryMaxLimit,
		MaxContentLength: cfg.Messages.MaxContentLength,
	})

	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret)
	conversationHandler := handlers.NewConversationHandler(messaging, auditEmitter)
	messageHandler := handlers.NewMessageHandler(messaging, auditEmitter)
	gateway := ws.NewGateway(hub, messaging, presence, validator, cfg.Messages.SocketSendTimeout)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterHealthRoutes(router, database)
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.Server.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(validator)

	api := router.Group("/conversations", authMiddleware)
	api.POST("", conversationHandler.CreateConversation)
	api.GET("", conversationHandler.ListConversations)
	api.GET("/:conversation_id", conversationHandler.GetConversation)
	api.GET("/:conversation_id/messages", messageHandler.ListMessages)
	api.POST("/:conversation_id/messages", messageHandler.PostMessage)
	api.PATCH("/:conversation_id/messages/:message_id", messageHandler.UpdateMessage)
	api.DELETE("/:conversation_id/messages/:message_id", messageHandler.DeleteMessage)
	api.POST("/:conversation_id/messages/:message_id/read", messageHandler.MarkRead)

	router.GET("/ws", gateway.Handle)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var health *grpcserver.HealthServer
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("failed to listen on grpc addr: %v", err)
		}
		health = grpcserver.NewHealthServer(database, 15*time.Second)
		go health.Watch(ctx)
		go func() {
			log.Printf("grpc health listening on %s", cfg.Server.GRPCAddr)
			if err := health.Serve(lis); err != nil {
				log.Printf("grpc server error: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("http listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if health != nil {
		health.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
