package store

import (
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"vidsage/video-backend/internal/domain"

	"go.uber.org/zap"
)

var (
	ErrFileNotFound    = errors.New("file not found in store")
	ErrPayloadTooLarge = errors.New("file exceeds the maximum allowed size")
)

// VideoStore is the directory-backed store for downloaded and uploaded
// videos. Files are immutable once written; writers must finish (or rename
// into place) before a filename becomes visible to readers.
type VideoStore interface {
	// Save writes r under filename (flattened to its base name). Callers
	// build collision-free names via BuildFilename. It fails with
	// ErrPayloadTooLarge when the persisted size would exceed the
	// configured cap, removing the partial file.
	Save(r io.Reader, filename string) (domain.StoredFile, error)

	// List reflects the directory contents at call time; no caching.
	List() ([]domain.StoredFile, error)

	// Delete removes a file. Deleting an absent file is not an error.
	Delete(filename string) error

	// Sweep deletes every file older than maxAge and reports how many went.
	Sweep(maxAge time.Duration) int

	// Open returns a reader positioned at the start of the file plus its
	// metadata. The caller closes the file.
	Open(filename string) (*os.File, domain.StoredFile, error)

	// Stat returns metadata without opening the file.
	Stat(filename string) (domain.StoredFile, error)

	// Path resolves a filename to its absolute location inside the store.
	// The filename is flattened to its base name, so callers cannot escape
	// the store directory.
	Path(filename string) string

	// Dir is the store directory, handed to the downloader as output target.
	Dir() string
}

type localStore struct {
	dir      string
	maxBytes int64
	log      *zap.Logger
}

// NewLocalStore creates the store directory if needed.
func NewLocalStore(dir string, maxBytes int64, log *zap.Logger) (VideoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localStore{dir: dir, maxBytes: maxBytes, log: log}, nil
}

func (s *localStore) Dir() string { return s.dir }

func (s *localStore) Path(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}

func (s *localStore) Save(r io.Reader, filename string) (domain.StoredFile, error) {
	filename = filepath.Base(filename)
	path := s.Path(filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return domain.StoredFile{}, err
	}

	// Copy one byte past the cap so oversized payloads are detectable
	// without buffering them whole.
	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return domain.StoredFile{}, err
	}
	if written > s.maxBytes {
		os.Remove(path)
		return domain.StoredFile{}, ErrPayloadTooLarge
	}

	return s.Stat(filename)
}

func (s *localStore) List() ([]domain.StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	files := make([]domain.StoredFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, domain.StoredFile{
			Filename:  e.Name(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			MimeType:  MimeTypeFor(e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename > files[j].Filename })
	return files, nil
}

func (s *localStore) Delete(filename string) error {
	err := os.Remove(s.Path(filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *localStore) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error("sweep: cannot read store directory", zap.Error(err))
		return 0
	}
	removed := 0
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			// Deletion failures never abort the sweep.
			s.log.Warn("sweep: failed to remove stale file",
				zap.String("filename", e.Name()), zap.Error(err))
			continue
		}
		s.log.Info("sweep: removed stale file", zap.String("filename", e.Name()))
		removed++
	}
	return removed
}

func (s *localStore) Open(filename string) (*os.File, domain.StoredFile, error) {
	meta, err := s.Stat(filename)
	if err != nil {
		return nil, domain.StoredFile{}, err
	}
	f, err := os.Open(s.Path(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.StoredFile{}, ErrFileNotFound
		}
		return nil, domain.StoredFile{}, err
	}
	return f, meta, nil
}

func (s *localStore) Stat(filename string) (domain.StoredFile, error) {
	info, err := os.Stat(s.Path(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.StoredFile{}, ErrFileNotFound
		}
		return domain.StoredFile{}, err
	}
	return domain.StoredFile{
		Filename:  filepath.Base(filename),
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		MimeType:  MimeTypeFor(filename),
	}, nil
}

// RunSweeper loops for the lifetime of the process, evicting stale files on
// a fixed interval. Intended to run on its own goroutine; it holds no locks,
// so an in-flight stream of a swept file simply ends early.
func RunSweeper(s VideoStore, interval, maxAge time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if n := s.Sweep(maxAge); n > 0 {
			log.Info("sweep cycle finished", zap.Int("removed", n))
		}
	}
}

// SanitizeTitle reduces a video title to a filesystem-safe stem: letters,
// digits, spaces, hyphens and underscores only, trailing spaces trimmed,
// at most 100 characters.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " ")
	runes := []rune(out)
	if len(runes) > 100 {
		out = string(runes[:100])
	}
	if out == "" {
		out = "video"
	}
	return out
}

// BuildFilename joins a sanitized stem with an acquisition timestamp and
// extension. The timestamp suffix makes lexicographic order track
// acquisition order within a session.
func BuildFilename(stem string, at time.Time, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return SanitizeTitle(stem) + "_" + strconv.FormatInt(at.Unix(), 10) + ext
}

// videoMimeTypes pins the types we serve regardless of the host's
// mime.types table.
var videoMimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
}

// MimeTypeFor infers a content type from the file extension, defaulting to
// video/mp4 for unknown extensions so players always get something playable.
func MimeTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := videoMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "video/mp4"
}
