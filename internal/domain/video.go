package domain

import (
	"fmt"
	"time"
)

// StoredFile describes one video artifact on disk. Files are immutable
// once fully written; only the sweeper or an explicit cleanup removes them.
type StoredFile struct {
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	MimeType  string    `json:"mime_type"`
}

// SizeMB renders the file size the way the frontend expects it ("12.34 MB").
func (f StoredFile) SizeMB() string {
	return fmt.Sprintf("%.2f MB", float64(f.SizeBytes)/(1024*1024))
}

// VideoInfo is the metadata subset surfaced to the client after a probe.
// Description is truncated at probe time, not here.
type VideoInfo struct {
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Duration    int64  `json:"duration"`
	Uploader    string `json:"uploader"`
	ViewCount   int64  `json:"view_count"`
	Description string `json:"description"`
	UploadDate  string `json:"upload_date"`
}

// UploadInfo holds the ffprobe-derived properties of a user-uploaded file.
type UploadInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
	Bitrate  int64   `json:"bitrate"`
}

// AcquisitionResult is the combined outcome of a successful URL acquisition.
type AcquisitionResult struct {
	Filename           string
	SizeBytes          int64
	Info               VideoInfo
	Transcript         string // empty when none was obtained
	TranscriptLanguage string
	TranscriptBlocked  bool // caption provider signalled an IP block
}
