package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vidsage/video-backend/internal/analyzer"
	"vidsage/video-backend/internal/domain"
	"vidsage/video-backend/internal/session"
	"vidsage/video-backend/internal/store"
)

var ErrNoTranscription = errors.New("transcription not available")

// CachedTranscriptMarker is the sentinel a client sends instead of a
// transcription to request the session's most recently cached YouTube
// transcript.
const CachedTranscriptMarker = "YOUTUBE_CACHED"

// AnalysisService runs AI analysis over stored videos, caching results
// per session so repeated requests cost nothing.
type AnalysisService interface {
	// Transcribe returns a timestamped transcription of the file,
	// serving from the session cache when possible.
	Transcribe(ctx context.Context, sid, filename string) (transcription string, cached bool, err error)
	// Analyze runs the given mode against the file. A cached YouTube
	// transcript is preferred over uploading the video. Successful
	// results are cached per (filename, mode); failures are not, so a
	// retry gets a fresh attempt.
	Analyze(ctx context.Context, sid, filename string, mode domain.AnalysisMode, customPrompt string) (result domain.AnalysisResult, cached bool, err error)
	// Chat answers a question about a video from its transcription.
	Chat(ctx context.Context, transcription, question string, history []domain.ChatMessage) (string, error)
	// ChatStream streams the answer incrementally through emit. The
	// CachedTranscriptMarker resolves to the session's latest cached
	// transcript.
	ChatStream(ctx context.Context, sid, transcription, question string, history []domain.ChatMessage, emit func(chunk string) error) error
}

type analysisService struct {
	store    store.VideoStore
	sessions session.Store
	ai       analyzer.VideoAnalyzer
	log      *zap.Logger
}

func NewAnalysisService(videoStore store.VideoStore, sessions session.Store, ai analyzer.VideoAnalyzer, log *zap.Logger) AnalysisService {
	return &analysisService{store: videoStore, sessions: sessions, ai: ai, log: log}
}

func (s *analysisService) Transcribe(ctx context.Context, sid, filename string) (string, bool, error) {
	if cached, ok, err := s.sessions.GetTranscript(ctx, sid, filename); err != nil {
		return "", false, err
	} else if ok {
		return cached, true, nil
	}

	if _, err := s.store.Stat(filename); err != nil {
		return "", false, err
	}

	transcription, err := s.ai.QuickTranscription(ctx, s.store.Path(filename))
	if err != nil {
		return "", false, fmt.Errorf("transcription: %w", err)
	}

	if err := s.sessions.CacheTranscript(ctx, sid, filename, transcription); err != nil {
		s.log.Warn("transcription caching failed", zap.String("filename", filename), zap.Error(err))
	}
	return transcription, false, nil
}

func (s *analysisService) Analyze(ctx context.Context, sid, filename string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, bool, error) {
	if _, err := s.store.Stat(filename); err != nil {
		return domain.AnalysisResult{}, false, err
	}

	if cached, ok, err := s.sessions.GetAnalysis(ctx, sid, filename, mode); err != nil {
		return domain.AnalysisResult{}, false, err
	} else if ok {
		s.log.Info("serving cached analysis", zap.String("filename", filename), zap.String("mode", string(mode)))
		return cached, true, nil
	}

	result, err := s.analyze(ctx, sid, filename, mode, customPrompt)
	if err != nil {
		// Failed analyses are never cached.
		return domain.AnalysisResult{}, false, err
	}

	if err := s.sessions.CacheAnalysis(ctx, sid, filename, mode, result); err != nil {
		s.log.Warn("analysis caching failed", zap.String("filename", filename), zap.Error(err))
	}
	return result, false, nil
}

func (s *analysisService) analyze(ctx context.Context, sid, filename string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, error) {
	transcript, hasTranscript, err := s.sessions.GetTranscript(ctx, sid, filename)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if hasTranscript {
		// Transcript mode with a cached caption track needs no model
		// call at all.
		if mode == domain.ModeTranscript {
			return domain.AnalysisResult{
				Status:     domain.StatusSuccess,
				Mode:       mode,
				Transcript: transcript,
				Source:     domain.SourceYouTube,
				Timestamp:  time.Now().Unix(),
			}, nil
		}
		s.log.Info("analyzing via cached transcript", zap.String("filename", filename), zap.String("mode", string(mode)))
		return s.ai.AnalyzeTranscript(ctx, transcript, mode, customPrompt)
	}

	s.log.Info("analyzing via video upload", zap.String("filename", filename), zap.String("mode", string(mode)))
	return s.ai.AnalyzeVideo(ctx, s.store.Path(filename), mode, customPrompt)
}

func (s *analysisService) Chat(ctx context.Context, transcription, question string, history []domain.ChatMessage) (string, error) {
	return s.ai.Chat(ctx, transcription, question, history)
}

func (s *analysisService) ChatStream(ctx context.Context, sid, transcription, question string, history []domain.ChatMessage, emit func(chunk string) error) error {
	if transcription == CachedTranscriptMarker {
		latest, ok, err := s.sessions.LatestTranscript(ctx, sid)
		if err != nil {
			return err
		}
		if ok {
			transcription = latest
		}
	}
	if transcription == "" || transcription == CachedTranscriptMarker {
		return ErrNoTranscription
	}
	return s.ai.ChatStream(ctx, transcription, question, history, emit)
}
