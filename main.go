package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"pharmacy-chat-service/internal/config"
	"pharmacy-chat-service/internal/db"
	"pharmacy-chat-service/internal/handlers"
	"pharmacy-chat-service/internal/middleware"
	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/observability"
	"pharmacy-chat-service/internal/presence"
	"pharmacy-chat-service/internal/rabbitmq"
	"pharmacy-chat-service/internal/repositories"
	"pharmacy-chat-service/internal/telemetry"
	"pharmacy-chat-service/internal/ws"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	registry := presence.NewRegistry(hub.BroadcastPresence)

	var defaultContact *models.PresenceEntry
	if cfg.DefaultPharmacistID > 0 {
		defaultContact = &models.PresenceEntry{
			PharmacistID: cfg.DefaultPharmacistID,
			DisplayName:  cfg.DefaultPharmacistName,
		}
	}

	chatHandler := handlers.NewChatHandler(messageRepo, registry, hub, defaultContact)
	chatWS := ws.NewChatWebSocketHandler(hub, registry, messageRepo, []byte(cfg.JWTSecret))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware([]byte(cfg.JWTSecret))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/pharmacists/online", authMiddleware, chatHandler.ListOnlinePharmacists)
	router.GET("/conversations/:partner_id/messages", authMiddleware, chatHandler.GetConversationMessages)
	router.POST("/conversations/:partner_id/messages", authMiddleware, chatHandler.PostConversationMessage)

	router.GET("/ws/chat", chatWS.Handle)

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
