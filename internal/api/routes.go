package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/service"
	"vidsage/video-backend/internal/store"
)

func SetupRoutes(
	router *gin.Engine,
	sessionSecret string,
	sessionTTL time.Duration,
	maxUploadBytes int64,
	videoService service.VideoService,
	analysisService service.AnalysisService,
	videoStore store.VideoStore,
	log *zap.Logger,
) {
	videoHandler := NewVideoHandler(videoService, videoStore, maxUploadBytes, log)
	streamHandler := NewStreamHandler(videoStore, log)
	analysisHandler := NewAnalysisHandler(analysisService, log)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	session := router.Group("")
	session.Use(SessionMiddleware(sessionSecret, sessionTTL))
	{
		session.POST("/download", videoHandler.Download)
		session.POST("/upload", videoHandler.Upload)
		session.POST("/info", videoHandler.Info)
		session.POST("/cleanup", videoHandler.Cleanup)
		session.GET("/list-downloads", videoHandler.ListDownloads)

		session.POST("/transcribe", analysisHandler.Transcribe)
		session.POST("/analyze", analysisHandler.Analyze)
		session.POST("/chat", analysisHandler.Chat)
		session.GET("/chat/stream", analysisHandler.ChatStream)
	}

	// File serving does not depend on session identity: filenames are
	// unguessable (sanitized title + timestamp) and playback must work
	// from cookie-less contexts like native video elements.
	router.GET("/stream/:filename", streamHandler.Stream)
	router.GET("/files/:filename", videoHandler.ServeFile)
	router.GET("/analysis-modes", analysisHandler.AnalysisModes)
}
