package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vidsage/video-backend/internal/domain"
)

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// InspectVideo runs ffprobe against a local file and extracts container
// and video-stream properties for the upload response.
func InspectVideo(ctx context.Context, path string) (domain.UploadInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return domain.UploadInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return domain.UploadInfo{}, fmt.Errorf("ffprobe output: %w", err)
	}

	info := domain.UploadInfo{}
	info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	info.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)
	for _, s := range raw.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Codec = s.CodecName
		info.FPS = parseFrameRate(s.AvgFrameRate)
		break
	}
	return info, nil
}

// parseFrameRate evaluates ffprobe's fractional rates like "30000/1001".
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
