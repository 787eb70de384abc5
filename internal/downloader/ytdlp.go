package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"vidsage/video-backend/internal/config"
	"vidsage/video-backend/internal/domain"
)

// Outcome classifies a failed download attempt so callers can decide
// between surfacing a recoverable condition, retrying through the
// fallback client, or giving up.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeAuthRequired
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAuthRequired:
		return "auth_required"
	case OutcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

var (
	ErrProbeTimeout    = errors.New("metadata probe timed out")
	ErrDownloadTimeout = errors.New("download timed out")
	ErrProbeFailed     = errors.New("metadata probe failed")
)

// DownloadError carries the classified outcome of a failed yt-dlp run
// together with the tail of its stderr for logging and diagnostics.
type DownloadError struct {
	Outcome Outcome
	Stderr  string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed (%s): %s", e.Outcome, tail(e.Stderr, 300))
}

// Browser-like request identities sent with every download so the
// origin serves the same variants it would to a real client. Rotated
// per attempt.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var uaCounter atomic.Uint64

func nextUserAgent() string {
	n := uaCounter.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// Ytdlp drives the yt-dlp binary as the primary acquisition engine.
type Ytdlp struct {
	cfg config.DownloaderConfig
	log *zap.Logger
}

func NewYtdlp(cfg config.DownloaderConfig, log *zap.Logger) *Ytdlp {
	return &Ytdlp{cfg: cfg, log: log}
}

// probeInfo mirrors the fields of yt-dlp's --dump-json output we care
// about.
type probeInfo struct {
	Title       string  `json:"title"`
	Thumbnail   string  `json:"thumbnail"`
	Duration    float64 `json:"duration"`
	Uploader    string  `json:"uploader"`
	ViewCount   int64   `json:"view_count"`
	Description string  `json:"description"`
	UploadDate  string  `json:"upload_date"`
}

// Probe fetches video metadata without downloading anything. A timeout
// is distinguished from an ordinary failure: the former aborts the
// whole acquisition while the latter just degrades metadata to
// placeholders.
func (y *Ytdlp) Probe(ctx context.Context, videoURL string) (domain.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, y.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, y.cfg.YtdlpPath, "--dump-json", "--skip-download", videoURL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return domain.VideoInfo{}, ErrProbeTimeout
	}
	if err != nil {
		y.log.Warn("metadata probe failed", zap.String("url", videoURL), zap.String("stderr", tail(stderr.String(), 500)))
		return domain.VideoInfo{}, ErrProbeFailed
	}

	var raw probeInfo
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		y.log.Warn("metadata probe returned unparseable JSON", zap.String("url", videoURL), zap.Error(err))
		return domain.VideoInfo{}, ErrProbeFailed
	}

	description := raw.Description
	if runes := []rune(description); len(runes) > 500 {
		description = string(runes[:500])
	}
	return domain.VideoInfo{
		Title:       raw.Title,
		Thumbnail:   raw.Thumbnail,
		Duration:    int64(raw.Duration),
		Uploader:    raw.Uploader,
		ViewCount:   raw.ViewCount,
		Description: description,
		UploadDate:  raw.UploadDate,
	}, nil
}

// cookieArgSets enumerates the cookie sources to try, in order. The
// first entry is always "no cookies"; a configured cookie file or
// browser profiles add further attempts for origins that demand a
// signed-in session.
func (y *Ytdlp) cookieArgSets() [][]string {
	sets := [][]string{nil}
	if y.cfg.CookieFile != "" {
		sets = append(sets, []string{"--cookies", y.cfg.CookieFile})
	}
	for _, browser := range y.cfg.CookieBrowsers {
		sets = append(sets, []string{"--cookies-from-browser", browser})
	}
	return sets
}

// Download fetches the video at videoURL into outputPath, capped at
// 720p and merged to mp4. Cookie sources are tried in order until one
// attempt succeeds. A deadline hit maps to ErrDownloadTimeout; any
// other failure is returned as a *DownloadError classified from the
// last attempt's stderr.
func (y *Ytdlp) Download(ctx context.Context, videoURL, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, y.cfg.DownloadTimeout)
	defer cancel()

	var lastStderr string
	for _, cookies := range y.cookieArgSets() {
		args := []string{
			"-o", outputPath,
			"-f", "best[height<=720]/best",
			"--merge-output-format", "mp4",
			"--user-agent", nextUserAgent(),
			"--referer", "https://www.youtube.com/",
			"--add-header", "Accept-Language:en-US,en;q=0.9",
		}
		args = append(args, cookies...)
		args = append(args, videoURL)

		cmd := exec.CommandContext(ctx, y.cfg.YtdlpPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		err := cmd.Run()
		if ctx.Err() == context.DeadlineExceeded {
			return ErrDownloadTimeout
		}
		if err == nil {
			return nil
		}
		lastStderr = stderr.String()
		y.log.Warn("download attempt failed",
			zap.String("url", videoURL),
			zap.Strings("cookies", cookies),
			zap.String("stderr", tail(lastStderr, 500)))
	}

	return &DownloadError{Outcome: ClassifyStderr(lastStderr), Stderr: lastStderr}
}

// ClassifyStderr maps yt-dlp's stderr onto a typed Outcome. Matching
// is on lowercased substrings; auth demands are checked before rate
// limits because bot-check messages sometimes mention both.
func ClassifyStderr(stderr string) Outcome {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "sign in to confirm"),
		strings.Contains(s, "not a bot"),
		strings.Contains(s, "bot"),
		strings.Contains(s, "login required"),
		strings.Contains(s, "account cookies"):
		return OutcomeAuthRequired
	case strings.Contains(s, "429"),
		strings.Contains(s, "too many requests"),
		strings.Contains(s, "rate limit"),
		strings.Contains(s, "rate-limit"):
		return OutcomeRateLimited
	case strings.Contains(s, "timed out"),
		strings.Contains(s, "timeout"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "temporary failure"),
		strings.Contains(s, "network"):
		return OutcomeTransient
	default:
		return OutcomeFatal
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
