package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/analyzer"
	"vidsage/video-backend/internal/domain"
	"vidsage/video-backend/internal/service"
	"vidsage/video-backend/internal/store"
)

// AnalysisHandler serves the AI routes: transcription, analysis, chat
// and the mode catalog.
type AnalysisHandler struct {
	analysisService service.AnalysisService
	log             *zap.Logger
}

func NewAnalysisHandler(analysisService service.AnalysisService, log *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService, log: log}
}

// --- Request/Response Structs ---

type transcribeRequest struct {
	Filename string `json:"filename" binding:"required"`
}

type analyzeRequest struct {
	Filename     string `json:"filename" binding:"required"`
	Mode         string `json:"mode"`
	CustomPrompt string `json:"custom_prompt"`
}

type chatRequest struct {
	Transcription string               `json:"transcription"`
	Question      string               `json:"question" binding:"required"`
	Context       []domain.ChatMessage `json:"context"`
}

// Transcribe handles POST /transcribe.
func (h *AnalysisHandler) Transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Filename is required")
		return
	}

	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	transcription, cached, err := h.analysisService.Transcribe(c.Request.Context(), sid, req.Filename)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			abortWithError(c, http.StatusNotFound, "File not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"transcription": transcription,
		"cached":        cached,
	})
}

// Analyze handles POST /analyze.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Filename is required")
		return
	}
	mode := domain.AnalysisMode(req.Mode)
	if req.Mode == "" {
		mode = domain.ModeSummary
	}

	sid, err := sessionIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	result, cached, err := h.analysisService.Analyze(c.Request.Context(), sid, req.Filename, mode, req.CustomPrompt)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			abortWithError(c, http.StatusNotFound, "File not found")
			return
		}
		// Model failures travel back as a failed result object so the
		// page renders degraded instead of erroring outright.
		h.log.Warn("analysis failed", zap.String("filename", req.Filename), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"result": domain.AnalysisResult{
				Status: domain.StatusFailed,
				Mode:   mode,
				Error:  err.Error(),
			},
			"cached": false,
		})
		return
	}

	resp := gin.H{
		"success": true,
		"result":  result,
		"cached":  cached,
	}
	if !cached && (result.Source == domain.SourceYouTube || result.Source == domain.SourceTranscript) {
		resp["source"] = "youtube_transcript"
	}
	c.JSON(http.StatusOK, resp)
}

// Chat handles POST /chat.
func (h *AnalysisHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Question is required")
		return
	}
	if req.Transcription == "" {
		abortWithError(c, http.StatusBadRequest, "Transcription not available")
		return
	}

	answer, err := h.analysisService.Chat(c.Request.Context(), req.Transcription, req.Question, req.Context)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": answer})
}

// chatEvent is one SSE payload of the chat stream protocol.
type chatEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func writeChatEvent(w io.Writer, ev chatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return sse.Encode(w, sse.Event{Data: string(data)})
}

// ChatStream handles GET /chat/stream. The protocol is a sequence of
// SSE data events: start, zero or more chunk events carrying response
// fragments, then end; any failure emits a single error event instead.
func (h *AnalysisHandler) ChatStream(c *gin.Context) {
	question := c.Query("question")
	transcription := c.Query("transcription")

	var history []domain.ChatMessage
	if raw := c.Query("context"); raw != "" {
		// Malformed context degrades to an empty history.
		_ = json.Unmarshal([]byte(raw), &history)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	if question == "" {
		writeChatEvent(c.Writer, chatEvent{Type: "error", Content: "Question is required"})
		return
	}

	sid, err := sessionIDFromContext(c)
	if err != nil {
		writeChatEvent(c.Writer, chatEvent{Type: "error", Content: err.Error()})
		return
	}

	flusher, _ := c.Writer.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := writeChatEvent(c.Writer, chatEvent{Type: "start"}); err != nil {
		return
	}
	flush()

	err = h.analysisService.ChatStream(c.Request.Context(), sid, transcription, question, history,
		func(chunk string) error {
			if err := writeChatEvent(c.Writer, chatEvent{Type: "chunk", Content: chunk}); err != nil {
				return err
			}
			flush()
			return nil
		})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, service.ErrNoTranscription) {
			msg = "Transcription not available"
		}
		writeChatEvent(c.Writer, chatEvent{Type: "error", Content: msg})
		flush()
		return
	}

	writeChatEvent(c.Writer, chatEvent{Type: "end"})
	flush()
}

// AnalysisModes handles GET /analysis-modes.
func (h *AnalysisHandler) AnalysisModes(c *gin.Context) {
	c.JSON(http.StatusOK, analyzer.Modes())
}
