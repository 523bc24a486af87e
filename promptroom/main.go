package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"promptroom/promptroom/config"
	"promptroom/promptroom/controllers"
	"promptroom/promptroom/feed"
	"promptroom/promptroom/routes"
	"promptroom/promptroom/services/llm"
	"promptroom/promptroom/sources/psql"
	"promptroom/promptroom/sources/psql/dao"
	"promptroom/promptroom/utils/logging"
)

func main() {
	// No .env file is fine, the system environment is enough.
	_ = godotenv.Load()
	logging.InitLogger()
	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	userDAO := dao.NewUserDAO(db.DB)
	roomDAO := dao.NewRoomDAO(db.DB)
	messageDAO := dao.NewMessageDAO(db.DB)
	roleDAO := dao.NewRoomRoleDAO(db.DB)

	caps := llm.DefaultCapabilityTable()
	if cfg.ModelsConfig != "" {
		caps, err = llm.LoadCapabilityTable(cfg.ModelsConfig)
		if err != nil {
			logging.ErrorLogger.Error("capability config error", zap.Error(err))
			os.Exit(1)
		}
	}
	llmClient := llm.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	orchestrator := llm.NewOrchestrator(llmClient, caps)

	bus := feed.NewBus()
	var pub feed.Publisher = bus
	if cfg.RedisURL != "" {
		bridge, err := feed.NewRedisBridge(ctx, bus, cfg.RedisURL)
		if err != nil {
			logging.ErrorLogger.Error("redis connection error", zap.Error(err))
			os.Exit(1)
		}
		defer bridge.Close()
		pub = bridge
	}

	authCtrl := controllers.NewAuthController(userDAO, cfg)
	healthCtrl := controllers.NewHealthController()
	roleCtrl := controllers.NewRoleController(roomDAO, roleDAO, pub)
	roomCtrl := controllers.NewRoomController(
		roomDAO, messageDAO, roleDAO, userDAO,
		orchestrator, llmClient, cfg.EmbeddingModel, pub,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/auth", routes.AuthRoutes(authCtrl))
	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/rooms", routes.RoomRoutes(roomCtrl, roleCtrl, cfg))
	r.Mount("/feed", routes.FeedRoutes(roomDAO, messageDAO, roleDAO, bus, cfg))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
