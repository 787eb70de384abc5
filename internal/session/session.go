package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"vidsage/video-backend/internal/domain"
)

// Store is the process-external view of per-session state: file ownership,
// transcript cache and analysis cache. Implementations must tolerate
// overlapping requests mutating the same session.
//
// The registry never deletes files itself: Release hands the owned list to
// the caller, which drives the actual file deletion. That keeps the store
// free of any file-system dependency.
type Store interface {
	RecordOwnership(ctx context.Context, sessionID, filename string) error

	// ListOwned returns the session's filenames sorted descending, which is
	// newest-first by construction of the timestamp suffix.
	ListOwned(ctx context.Context, sessionID string) ([]string, error)

	CacheTranscript(ctx context.Context, sessionID, filename, transcript string) error
	GetTranscript(ctx context.Context, sessionID, filename string) (string, bool, error)

	// LatestTranscript returns the most recently cached transcript, used by
	// the chat stream when the client points at the cached-transcript marker.
	LatestTranscript(ctx context.Context, sessionID string) (string, bool, error)

	CacheAnalysis(ctx context.Context, sessionID, filename string, mode domain.AnalysisMode, result domain.AnalysisResult) error
	GetAnalysis(ctx context.Context, sessionID, filename string, mode domain.AnalysisMode) (domain.AnalysisResult, bool, error)

	// Release drops the session's registry entry and returns the filenames
	// it owned, in recording order.
	Release(ctx context.Context, sessionID string) ([]string, error)
}

// NewToken mints an opaque session identifier with 16 bytes of entropy,
// hex encoded. Tokens are only ever transported inside a signed cookie.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// analysisKey is the cache key for one (filename, mode) pair.
func analysisKey(filename string, mode domain.AnalysisMode) string {
	return filename + "_" + string(mode)
}
