package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/service"
	"vidsage/video-backend/internal/store"
)

// VideoHandler serves acquisition, upload and file lifecycle routes.
type VideoHandler struct {
	videoService service.VideoService
	store        store.VideoStore
	maxUpload    int64
	log          *zap.Logger
}

func NewVideoHandler(videoService service.VideoService, videoStore store.VideoStore, maxUpload int64, log *zap.Logger) *VideoHandler {
	return &VideoHandler{videoService: videoService, store: videoStore, maxUpload: maxUpload, log: log}
}

// --- Request/Response Structs ---

type downloadRequest struct {
	URL string `json:"url" binding:"required"`
}

type infoRequest struct {
	URL string `json:"url" binding:"required"`
}

// Download handles POST /download.
func (h *VideoHandler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "URL is required")
		return
	}

	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.videoService.Acquire(c.Request.Context(), sid, req.URL)
	if err != nil {
		var blocked *service.BlockedError
		switch {
		case errors.As(err, &blocked):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":           blocked.Suggestion,
				"suggestion":      blocked.Suggestion,
				"technical_error": blocked.Technical,
				"help_link":       blocked.HelpLink,
			})
		case errors.Is(err, service.ErrDownloadTimeout):
			abortWithError(c, http.StatusInternalServerError, "Download took too long")
		case errors.Is(err, service.ErrMissingAfterFinish):
			abortWithError(c, http.StatusInternalServerError, "File not found after download")
		default:
			abortWithError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	sizeMB := fmt.Sprintf("%.2f MB", float64(result.SizeBytes)/(1024*1024))
	resp := gin.H{
		"success":                true,
		"filename":               result.Filename,
		"size":                   sizeMB,
		"video_info":             result.Info,
		"has_youtube_transcript": result.Transcript != "",
		"transcript_language":    result.TranscriptLanguage,
	}
	if result.TranscriptBlocked {
		resp["transcript_blocked"] = true
		resp["blocked_reason"] = "YouTube API blocked due to IP restrictions (common in Docker/WSL)"
	}
	c.JSON(http.StatusOK, resp)
}

// Upload handles POST /upload (multipart field "video").
func (h *VideoHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Video file is required")
		return
	}
	if fileHeader.Size > h.maxUpload {
		abortWithError(c, http.StatusBadRequest,
			fmt.Sprintf("File exceeds the maximum allowed size of %d MB", h.maxUpload/(1024*1024)))
		return
	}

	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Could not read uploaded file")
		return
	}
	defer src.Close()

	stored, info, err := h.videoService.Upload(c.Request.Context(), sid, fileHeader.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFormat):
			abortWithError(c, http.StatusBadRequest, "Unsupported video format. Allowed: .mp4, .avi, .mov, .mkv, .webm")
		case errors.Is(err, store.ErrPayloadTooLarge):
			abortWithError(c, http.StatusBadRequest,
				fmt.Sprintf("File exceeds the maximum allowed size of %d MB", h.maxUpload/(1024*1024)))
		default:
			abortWithError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"filename":   stored.Filename,
		"size":       stored.SizeMB(),
		"video_info": info,
	})
}

// Info handles POST /info: metadata only, nothing persisted.
func (h *VideoHandler) Info(c *gin.Context) {
	var req infoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "URL is required")
		return
	}

	info, err := h.videoService.Info(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, service.ErrDownloadTimeout) {
			abortWithError(c, http.StatusInternalServerError, "Metadata request took too long")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	durationStr := "N/A"
	if info.Duration > 0 {
		durationStr = fmt.Sprintf("%d:%02d", info.Duration/60, info.Duration%60)
	}
	description := info.Description
	if runes := []rune(description); len(runes) > 200 {
		description = string(runes[:200]) + "..."
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"title":       info.Title,
		"uploader":    info.Uploader,
		"duration":    durationStr,
		"views":       info.ViewCount,
		"thumbnail":   info.Thumbnail,
		"description": description,
	})
}

// ServeFile handles GET /files/:filename as an attachment download.
func (h *VideoHandler) ServeFile(c *gin.Context) {
	filename := c.Param("filename")
	stored, err := h.store.Stat(filename)
	if err != nil {
		abortWithError(c, http.StatusNotFound, "File not found")
		return
	}
	c.FileAttachment(h.store.Path(stored.Filename), stored.Filename)
}

// Cleanup handles POST /cleanup: delete everything this session owns.
func (h *VideoHandler) Cleanup(c *gin.Context) {
	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	deleted, err := h.videoService.Cleanup(c.Request.Context(), sid)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": len(deleted)})
}

// ListDownloads handles GET /list-downloads.
func (h *VideoHandler) ListDownloads(c *gin.Context) {
	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	files, err := h.videoService.ListOwned(c.Request.Context(), sid)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]gin.H, 0, len(files))
	for _, f := range files {
		out = append(out, gin.H{
			"name":     f.Filename,
			"size":     f.SizeMB(),
			"modified": f.ModTime.Format("02/01/2006 15:04"),
		})
	}
	c.JSON(http.StatusOK, out)
}
