package api

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/store"
)

// streamChunkSize is the unit of the manual copy loop. Small enough to
// keep per-connection memory bounded, large enough to saturate a
// typical player's buffer.
const streamChunkSize = 8192

var rangeHeaderRe = regexp.MustCompile(`bytes=(\d+)-(\d*)`)

// StreamHandler serves range-request video playback. Every response is
// a 206 with an explicit Content-Range, including whole-file requests;
// players negotiate seeking against that contract.
type StreamHandler struct {
	store store.VideoStore
	log   *zap.Logger
}

func NewStreamHandler(videoStore store.VideoStore, log *zap.Logger) *StreamHandler {
	return &StreamHandler{store: videoStore, log: log}
}

// Stream handles GET /stream/:filename.
func (h *StreamHandler) Stream(c *gin.Context) {
	filename := c.Param("filename")
	file, stored, err := h.store.Open(filename)
	if err != nil {
		abortWithError(c, http.StatusNotFound, "File not found")
		return
	}
	defer file.Close()

	size := stored.SizeBytes
	start, end := int64(0), size-1

	if m := rangeHeaderRe.FindStringSubmatch(c.GetHeader("Range")); m != nil {
		start, _ = strconv.ParseInt(m[1], 10, 64)
		if m[2] != "" {
			end, _ = strconv.ParseInt(m[2], 10, 64)
		}
	}

	if start > end || start >= size {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.AbortWithStatus(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= size {
		end = size - 1
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		abortWithError(c, http.StatusInternalServerError, "Could not seek in file")
		return
	}

	length := end - start + 1
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Header("Content-Type", stored.MimeType)
	c.Status(http.StatusPartialContent)

	// Manual chunked copy. The file may be swept mid-stream; a short
	// read then simply truncates the response, which players tolerate.
	buf := make([]byte, streamChunkSize)
	remaining := length
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := file.Read(buf[:n])
		if read > 0 {
			if _, werr := c.Writer.Write(buf[:read]); werr != nil {
				return
			}
			remaining -= int64(read)
		}
		if err != nil {
			if err != io.EOF {
				h.log.Debug("stream read ended early", zap.String("filename", filename), zap.Error(err))
			}
			return
		}
	}
}
