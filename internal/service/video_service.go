package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"vidsage/video-backend/internal/domain"
	"vidsage/video-backend/internal/downloader"
	"vidsage/video-backend/internal/session"
	"vidsage/video-backend/internal/store"
	"vidsage/video-backend/internal/transcript"
)

var (
	ErrDownloadTimeout    = errors.New("download took too long")
	ErrDownloadFailed     = errors.New("download failed")
	ErrUnsupportedFormat  = errors.New("unsupported video format")
	ErrMissingAfterFinish = errors.New("file not found after download")
)

// BlockedError means the origin refused the download with a condition
// the user can act on, typically a bot check or rate limit.
type BlockedError struct {
	Suggestion string
	Technical  string
	HelpLink   string
}

func (e *BlockedError) Error() string {
	return "download blocked: " + e.Suggestion
}

var allowedUploadExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// VideoService covers acquisition and lifecycle of stored videos.
type VideoService interface {
	// Acquire downloads the video at url into the store and records
	// ownership under sid. YouTube captions are fetched alongside when
	// available.
	Acquire(ctx context.Context, sid, url string) (domain.AcquisitionResult, error)
	// Info probes video metadata without downloading.
	Info(ctx context.Context, url string) (domain.VideoInfo, error)
	// Upload stores a user-provided file and inspects its properties.
	Upload(ctx context.Context, sid, originalName string, r io.Reader) (domain.StoredFile, domain.UploadInfo, error)
	// ListOwned returns the session's files that still exist on disk,
	// newest first.
	ListOwned(ctx context.Context, sid string) ([]domain.StoredFile, error)
	// Cleanup releases the session and deletes its files, returning
	// the names actually removed.
	Cleanup(ctx context.Context, sid string) ([]string, error)
}

type videoService struct {
	store    store.VideoStore
	sessions session.Store
	ytdlp    *downloader.Ytdlp
	fallback *downloader.Fallback
	captions *transcript.Fetcher
	log      *zap.Logger
}

func NewVideoService(
	videoStore store.VideoStore,
	sessions session.Store,
	ytdlp *downloader.Ytdlp,
	fallback *downloader.Fallback,
	captions *transcript.Fetcher,
	log *zap.Logger,
) VideoService {
	return &videoService{
		store:    videoStore,
		sessions: sessions,
		ytdlp:    ytdlp,
		fallback: fallback,
		captions: captions,
		log:      log,
	}
}

func (s *videoService) Acquire(ctx context.Context, sid, url string) (domain.AcquisitionResult, error) {
	videoID, isYouTube := downloader.ExtractVideoID(url)

	// Captions come first: a caption block is non-fatal, but we want
	// to know about it before committing to the download.
	var (
		transcriptText     string
		transcriptLanguage string
		transcriptBlocked  bool
	)
	if isYouTube {
		entries, lang, err := s.captions.Fetch(ctx, videoID)
		transcriptText, transcriptLanguage, transcriptBlocked = transcript.ToResult(entries, lang, err)
		if transcriptBlocked {
			s.log.Warn("caption fetch blocked", zap.String("video_id", videoID))
		}
	}

	info, err := s.ytdlp.Probe(ctx, url)
	switch {
	case errors.Is(err, downloader.ErrProbeTimeout):
		return domain.AcquisitionResult{}, ErrDownloadTimeout
	case err != nil:
		// Metadata degrades to placeholders; the download itself may
		// still succeed.
		info = domain.VideoInfo{Title: "video", Uploader: "Unknown"}
	}

	filename := store.BuildFilename(info.Title, time.Now(), ".mp4")
	outputPath := s.store.Path(filename)

	if err := s.download(ctx, url, videoID, isYouTube, outputPath); err != nil {
		return domain.AcquisitionResult{}, err
	}

	stored, err := s.store.Stat(filename)
	if errors.Is(err, store.ErrFileNotFound) {
		// yt-dlp occasionally lands the file under a variant name
		// (different extension before merge). Adopt anything that
		// shares our stem.
		stored, err = s.salvage(filename)
	}
	if err != nil {
		return domain.AcquisitionResult{}, ErrMissingAfterFinish
	}
	filename = stored.Filename

	if err := s.sessions.RecordOwnership(ctx, sid, filename); err != nil {
		return domain.AcquisitionResult{}, fmt.Errorf("record ownership: %w", err)
	}
	if transcriptText != "" {
		if err := s.sessions.CacheTranscript(ctx, sid, filename, transcriptText); err != nil {
			s.log.Warn("transcript caching failed", zap.String("filename", filename), zap.Error(err))
		}
	}

	s.log.Info("video acquired",
		zap.String("filename", filename),
		zap.Int64("size_bytes", stored.SizeBytes),
		zap.Bool("has_transcript", transcriptText != ""))

	return domain.AcquisitionResult{
		Filename:           filename,
		SizeBytes:          stored.SizeBytes,
		Info:               info,
		Transcript:         transcriptText,
		TranscriptLanguage: transcriptLanguage,
		TranscriptBlocked:  transcriptBlocked,
	}, nil
}

// download runs the primary engine and, for YouTube URLs, retries
// through the native fallback client on any failure except a timeout.
// Timeouts surface immediately so the user is not kept waiting through
// a second full attempt.
func (s *videoService) download(ctx context.Context, url, videoID string, isYouTube bool, outputPath string) error {
	err := s.ytdlp.Download(ctx, url, outputPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, downloader.ErrDownloadTimeout) {
		return ErrDownloadTimeout
	}
	var dlErr *downloader.DownloadError
	if !errors.As(err, &dlErr) {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	if isYouTube {
		s.log.Info("primary download failed, trying fallback client",
			zap.String("video_id", videoID),
			zap.String("outcome", dlErr.Outcome.String()))
		if fbErr := s.fallback.Download(ctx, videoID, outputPath); fbErr == nil {
			return nil
		} else {
			s.log.Warn("fallback download failed", zap.String("video_id", videoID), zap.Error(fbErr))
		}
	}

	switch dlErr.Outcome {
	case downloader.OutcomeAuthRequired:
		return &BlockedError{
			Suggestion: "YouTube is asking this server to verify it is not a bot. Provide a cookie file or try again later.",
			Technical:  dlErr.Stderr,
			HelpLink:   "https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp",
		}
	case downloader.OutcomeRateLimited:
		return &BlockedError{
			Suggestion: "YouTube is rate limiting this server. Wait a few minutes and try again.",
			Technical:  dlErr.Stderr,
			HelpLink:   "https://github.com/yt-dlp/yt-dlp/wiki/FAQ",
		}
	default:
		return fmt.Errorf("%w: %v", ErrDownloadFailed, dlErr)
	}
}

// salvage looks for a finished download whose name shares the expected
// stem but carries a different suffix.
func (s *videoService) salvage(expected string) (domain.StoredFile, error) {
	stem := strings.TrimSuffix(expected, filepath.Ext(expected))
	matches, err := filepath.Glob(s.store.Path(stem) + "*")
	if err != nil || len(matches) == 0 {
		return domain.StoredFile{}, store.ErrFileNotFound
	}
	return s.store.Stat(filepath.Base(matches[0]))
}

func (s *videoService) Info(ctx context.Context, url string) (domain.VideoInfo, error) {
	info, err := s.ytdlp.Probe(ctx, url)
	if errors.Is(err, downloader.ErrProbeTimeout) {
		return domain.VideoInfo{}, ErrDownloadTimeout
	}
	if err != nil {
		return domain.VideoInfo{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return info, nil
}

func (s *videoService) Upload(ctx context.Context, sid, originalName string, r io.Reader) (domain.StoredFile, domain.UploadInfo, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedUploadExts[ext] {
		return domain.StoredFile{}, domain.UploadInfo{}, ErrUnsupportedFormat
	}

	stem := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	filename := store.BuildFilename(stem, time.Now(), ext)

	stored, err := s.store.Save(r, filename)
	if err != nil {
		return domain.StoredFile{}, domain.UploadInfo{}, err
	}

	uploadInfo, err := downloader.InspectVideo(ctx, s.store.Path(stored.Filename))
	if err != nil {
		// Inspection failing does not invalidate the upload.
		s.log.Warn("upload inspection failed", zap.String("filename", stored.Filename), zap.Error(err))
		uploadInfo = domain.UploadInfo{}
	}

	if err := s.sessions.RecordOwnership(ctx, sid, stored.Filename); err != nil {
		return domain.StoredFile{}, domain.UploadInfo{}, fmt.Errorf("record ownership: %w", err)
	}
	return stored, uploadInfo, nil
}

func (s *videoService) ListOwned(ctx context.Context, sid string) ([]domain.StoredFile, error) {
	names, err := s.sessions.ListOwned(ctx, sid)
	if err != nil {
		return nil, err
	}
	files := make([]domain.StoredFile, 0, len(names))
	for _, name := range names {
		stored, err := s.store.Stat(name)
		if errors.Is(err, store.ErrFileNotFound) {
			// Swept by the background cleaner; skip silently.
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, stored)
	}
	return files, nil
}

func (s *videoService) Cleanup(ctx context.Context, sid string) ([]string, error) {
	names, err := s.sessions.Release(ctx, sid)
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0, len(names))
	for _, name := range names {
		if err := s.store.Delete(name); err != nil {
			s.log.Warn("cleanup deletion failed", zap.String("filename", name), zap.Error(err))
			continue
		}
		deleted = append(deleted, name)
	}
	s.log.Info("session cleaned up", zap.String("sid", sid), zap.Int("deleted", len(deleted)))
	return deleted, nil
}
