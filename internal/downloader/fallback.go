package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

var ErrNoUsableFormat = errors.New("no progressive format with audio available")

// Fallback downloads YouTube videos through a native client when the
// primary engine fails. It only handles progressive formats (video and
// audio muxed together), capped at 720p like the primary path.
type Fallback struct {
	client youtube.Client
	log    *zap.Logger
}

func NewFallback(log *zap.Logger) *Fallback {
	return &Fallback{log: log}
}

// Download fetches videoID into outputPath. The stream lands in a
// uniquely named temp file first and is renamed into place only on
// success, so listeners never observe a partial file.
func (f *Fallback) Download(ctx context.Context, videoID, outputPath string) error {
	video, err := f.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return fmt.Errorf("resolve video: %w", err)
	}

	format := pickFormat(video.Formats.WithAudioChannels())
	if format == nil {
		return ErrNoUsableFormat
	}
	f.log.Info("fallback download starting",
		zap.String("video_id", videoID),
		zap.Int("height", format.Height),
		zap.String("mime", format.MimeType))

	stream, _, err := f.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	tmpPath := filepath.Join(filepath.Dir(outputPath), uuid.NewString()+".part")
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, stream); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copy stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

// pickFormat prefers the tallest progressive format at or below 720p,
// falling back to the smallest available above that if nothing fits.
func pickFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	var overflow *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.Height <= 720 {
			if best == nil || f.Height > best.Height {
				best = f
			}
		} else if overflow == nil || f.Height < overflow.Height {
			overflow = f
		}
	}
	if best != nil {
		return best
	}
	return overflow
}
