package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/analyzer"
	"vidsage/video-backend/internal/api"
	"vidsage/video-backend/internal/config"
	"vidsage/video-backend/internal/downloader"
	"vidsage/video-backend/internal/logger"
	"vidsage/video-backend/internal/service"
	"vidsage/video-backend/internal/session"
	"vidsage/video-backend/internal/store"
	"vidsage/video-backend/internal/transcript"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	// --- Logging ---
	zlog := logger.New(cfg.Log.File, cfg.Log.Production)
	defer zlog.Sync()
	zlog.Info("Starting video backend server")

	// --- File Store ---
	videoStore, err := store.NewLocalStore(cfg.Store.Dir, cfg.Store.MaxUploadBytes, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize file store", zap.Error(err))
	}
	go store.RunSweeper(videoStore, cfg.Store.SweepInterval, cfg.Store.MaxAge, zlog)

	// --- Session Store ---
	var sessions session.Store
	switch cfg.Session.Backend {
	case "mongo":
		client, err := session.ConnectMongo(cfg.Session.Mongo.URI)
		if err != nil {
			zlog.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				zlog.Error("MongoDB disconnect failed", zap.Error(err))
			}
		}()
		sessions, err = session.NewMongoStore(client.Database(cfg.Session.Mongo.Name), cfg.Session.TTL)
		if err != nil {
			zlog.Fatal("Failed to initialize Mongo session store", zap.Error(err))
		}
		zlog.Info("Session store: mongo", zap.String("db", cfg.Session.Mongo.Name))
	default:
		sessions = session.NewMemoryStore(cfg.Session.TTL)
		zlog.Info("Session store: memory")
	}

	// --- AI Analyzer ---
	var ai analyzer.VideoAnalyzer
	if cfg.AI.UseMock || cfg.AI.GeminiAPIKey == "" {
		zlog.Warn("Using mock analyzer; set AI_GEMINI_API_KEY for real analysis")
		ai = analyzer.NewMock()
	} else {
		gemini, err := analyzer.NewGemini(context.Background(), cfg.AI.GeminiAPIKey, cfg.AI.Model, zlog)
		if err != nil {
			zlog.Fatal("Failed to initialize Gemini client", zap.Error(err))
		}
		ai = gemini
		zlog.Info("Using Gemini analyzer", zap.String("model", cfg.AI.Model))
	}

	// --- Downloaders ---
	ytdlp := downloader.NewYtdlp(cfg.Downloader, zlog)
	fallback := downloader.NewFallback(zlog)
	captions := transcript.NewFetcher(cfg.Downloader.TranscriptLanguages, zlog)

	// --- Services ---
	videoService := service.NewVideoService(videoStore, sessions, ytdlp, fallback, captions, zlog)
	analysisService := service.NewAnalysisService(videoStore, sessions, ai, zlog)

	// --- Gin Engine ---
	if cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router,
		cfg.Session.Secret,
		cfg.Session.TTL,
		cfg.Store.MaxUploadBytes,
		videoService,
		analysisService,
		videoStore,
		zlog,
	)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
		// No WriteTimeout: streaming playback and SSE chat hold
		// connections open for as long as the client keeps reading.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		zlog.Info("Server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		zlog.Fatal("Server forced to shutdown", zap.Error(err))
	}
	zlog.Info("Server exiting")
}
