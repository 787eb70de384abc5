package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, maxBytes int64) VideoStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), maxBytes, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSaveAndStat(t *testing.T) {
	s := newTestStore(t, 1<<20)
	stored, err := s.Save(strings.NewReader("hello video"), "clip_1700000000.mp4")
	require.NoError(t, err)
	assert.Equal(t, "clip_1700000000.mp4", stored.Filename)
	assert.Equal(t, int64(len("hello video")), stored.SizeBytes)
	assert.Equal(t, "video/mp4", stored.MimeType)

	got, err := s.Stat(stored.Filename)
	require.NoError(t, err)
	assert.Equal(t, stored.SizeBytes, got.SizeBytes)
}

func TestSaveEnforcesSizeCap(t *testing.T) {
	s := newTestStore(t, 10)
	_, err := s.Save(strings.NewReader("this is more than ten bytes"), "big_1700000000.mp4")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	// Nothing may remain on disk after a rejected save.
	files, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t, 1<<20)
	stored, err := s.Save(strings.NewReader("x"), "gone_1700000000.mp4")
	require.NoError(t, err)

	require.NoError(t, s.Delete(stored.Filename))
	assert.NoError(t, s.Delete(stored.Filename), "second delete must not error")
}

func TestStatMissing(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_, err := s.Stat("nope_1700000000.mp4")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPathFlattensTraversal(t *testing.T) {
	s := newTestStore(t, 1<<20)
	p := s.Path("../../etc/passwd")
	assert.Equal(t, filepath.Join(s.Dir(), "passwd"), p)
}

func TestSweepRemovesOnlyOldFiles(t *testing.T) {
	s := newTestStore(t, 1<<20)
	oldFile, err := s.Save(strings.NewReader("old"), "old_1700000000.mp4")
	require.NoError(t, err)
	fresh, err := s.Save(strings.NewReader("new"), "new_1700000001.mp4")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(s.Path(oldFile.Filename), past, past))

	removed := s.Sweep(30 * time.Minute)
	assert.Equal(t, 1, removed)

	_, err = s.Stat(oldFile.Filename)
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = s.Stat(fresh.Filename)
	assert.NoError(t, err)
}

func TestListSortsDescending(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_, err := s.Save(strings.NewReader("a"), "a_1700000000.mp4")
	require.NoError(t, err)
	_, err = s.Save(strings.NewReader("b"), "b_1700000500.mp4")
	require.NoError(t, err)

	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b_1700000500.mp4", files[0].Filename)
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "Hello World"},
		{"Video: The/Best?", "Video TheBest"},
		{"trailing spaces   ", "trailing spaces"},
		{"under_score-dash", "under_score-dash"},
		{"", "video"},
		{"!!!???", "video"},
		{strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), "input %q", tt.in)
	}
}

func TestBuildFilename(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "My Clip_1700000000.mp4", BuildFilename("My Clip", at, ".mp4"))
	assert.Equal(t, "clip_1700000000.webm", BuildFilename("clip", at, ".webm"))
	assert.Equal(t, "video_1700000000.mp4", BuildFilename("", at, ""))
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", MimeTypeFor("a.mp4"))
	assert.Equal(t, "video/webm", MimeTypeFor("a.webm"))
	assert.Equal(t, "video/mp4", MimeTypeFor("a.unknownext"))
}
