package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"vidsage/video-backend/internal/domain"

	gocache "github.com/patrickmn/go-cache"
)

// record is one session's in-memory state. The mutex serializes overlapping
// requests from the same browser (e.g. two analysis calls in flight).
type record struct {
	mu          sync.Mutex
	files       []string
	transcripts map[string]string
	// transcriptOrder remembers insertion order so LatestTranscript can
	// return the most recent one.
	transcriptOrder []string
	analyses        map[string]domain.AnalysisResult
}

// memoryStore is the default Store backend: a TTL cache of session records,
// purged periodically. State lives in process memory only and is lost on
// restart.
type memoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates an in-memory session store whose entries expire
// after ttl of inactivity.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		cache: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

// get returns the session's record, creating it on first use. Touching a
// record refreshes its TTL.
func (m *memoryStore) get(sessionID string) *record {
	if x, found := m.cache.Get(sessionID); found {
		rec := x.(*record)
		m.cache.Set(sessionID, rec, m.ttl)
		return rec
	}
	rec := &record{
		transcripts: make(map[string]string),
		analyses:    make(map[string]domain.AnalysisResult),
	}
	// Add loses the race to a concurrent creator; fall back to theirs.
	if err := m.cache.Add(sessionID, rec, m.ttl); err != nil {
		if x, found := m.cache.Get(sessionID); found {
			return x.(*record)
		}
	}
	return rec
}

func (m *memoryStore) RecordOwnership(_ context.Context, sessionID, filename string) error {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.files = append(rec.files, filename)
	return nil
}

func (m *memoryStore) ListOwned(_ context.Context, sessionID string) ([]string, error) {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]string, len(rec.files))
	copy(out, rec.files)
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (m *memoryStore) CacheTranscript(_ context.Context, sessionID, filename, transcript string) error {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	// Re-caching moves the file to the most-recent position.
	for i, f := range rec.transcriptOrder {
		if f == filename {
			rec.transcriptOrder = append(rec.transcriptOrder[:i], rec.transcriptOrder[i+1:]...)
			break
		}
	}
	rec.transcriptOrder = append(rec.transcriptOrder, filename)
	rec.transcripts[filename] = transcript
	return nil
}

func (m *memoryStore) GetTranscript(_ context.Context, sessionID, filename string) (string, bool, error) {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	t, ok := rec.transcripts[filename]
	return t, ok, nil
}

func (m *memoryStore) LatestTranscript(_ context.Context, sessionID string) (string, bool, error) {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.transcriptOrder) == 0 {
		return "", false, nil
	}
	latest := rec.transcriptOrder[len(rec.transcriptOrder)-1]
	return rec.transcripts[latest], true, nil
}

func (m *memoryStore) CacheAnalysis(_ context.Context, sessionID, filename string, mode domain.AnalysisMode, result domain.AnalysisResult) error {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.analyses[analysisKey(filename, mode)] = result
	return nil
}

func (m *memoryStore) GetAnalysis(_ context.Context, sessionID, filename string, mode domain.AnalysisMode) (domain.AnalysisResult, bool, error) {
	rec := m.get(sessionID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	res, ok := rec.analyses[analysisKey(filename, mode)]
	return res, ok, nil
}

func (m *memoryStore) Release(_ context.Context, sessionID string) ([]string, error) {
	x, found := m.cache.Get(sessionID)
	if !found {
		return nil, nil
	}
	rec := x.(*record)
	rec.mu.Lock()
	files := make([]string, len(rec.files))
	copy(files, rec.files)
	rec.mu.Unlock()
	m.cache.Delete(sessionID)
	return files, nil
}
