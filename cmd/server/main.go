package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/blocktales/storyteller/internal/api"
	"github.com/blocktales/storyteller/internal/auth"
	"github.com/blocktales/storyteller/internal/db"
	"github.com/blocktales/storyteller/internal/knowledge"
	"github.com/blocktales/storyteller/internal/session"
	"github.com/blocktales/storyteller/internal/speech"
	"github.com/blocktales/storyteller/internal/store"
	"github.com/blocktales/storyteller/internal/story"
	"github.com/blocktales/storyteller/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalf("postgres: failed to connect: %v", err)
	}
	defer postgres.Close()

	if err := postgres.Ping(ctx); err != nil {
		sugar.Fatalf("postgres: ping failed: %v", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		sugar.Fatalf("postgres: ensure schema: %v", err)
	}

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		sugar.Fatalf("mongo: failed to connect: %v", err)
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			sugar.Errorf("mongo: close error: %v", err)
		}
	}()

	messages := store.NewMongoStore(mongoStore.Database)
	if err := messages.EnsureIndexes(ctx); err != nil {
		sugar.Fatalf("mongo: ensure indexes: %v", err)
	}

	// Generation must not serve before the knowledge base is loaded.
	knowledgeService := knowledge.NewService(cfg.Knowledge.AssetDir, sugar)
	if err := knowledgeService.Initialize(); err != nil {
		sugar.Fatalf("knowledge: initialize: %v", err)
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour, auth.NewPostgresRepo(postgres.Pool))
	if err != nil {
		sugar.Fatalf("auth: failed to initialise: %v", err)
	}

	storyClient := story.NewClient(cfg.StoryAPI, knowledgeService, sugar)
	orchestrator := session.NewOrchestrator(messages, storyClient, sugar)
	speechService := speech.NewService(cfg.Speech, sugar)

	router := setupRouter(authService, orchestrator, speechService, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(authService *auth.Service, orchestrator *session.Orchestrator, speechService *speech.Service, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(authService, orchestrator, speechService, sugar).RegisterRoutes(router)

	return router
}
