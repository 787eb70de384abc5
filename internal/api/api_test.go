package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vidsage/video-backend/internal/config"
	"vidsage/video-backend/internal/domain"
	"vidsage/video-backend/internal/downloader"
	"vidsage/video-backend/internal/service"
	"vidsage/video-backend/internal/session"
	"vidsage/video-backend/internal/store"
	"vidsage/video-backend/internal/transcript"
)

const testMaxUpload = 1 << 20 // 1 MB keeps upload-rejection tests cheap

type testAnalyzer struct {
	analyzeCalls int
}

func (a *testAnalyzer) AnalyzeVideo(_ context.Context, _ string, mode domain.AnalysisMode, _ string) (domain.AnalysisResult, error) {
	a.analyzeCalls++
	return domain.AnalysisResult{
		Status:    domain.StatusSuccess,
		Mode:      mode,
		Analysis:  map[string]any{"summary": "test analysis"},
		Source:    domain.SourceVideo,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (a *testAnalyzer) AnalyzeTranscript(_ context.Context, _ string, mode domain.AnalysisMode, _ string) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{Status: domain.StatusSuccess, Mode: mode, Source: domain.SourceTranscript}, nil
}

func (a *testAnalyzer) QuickTranscription(_ context.Context, _ string) (string, error) {
	return "[00:00] test transcription", nil
}

func (a *testAnalyzer) Chat(_ context.Context, _, question string, _ []domain.ChatMessage) (string, error) {
	return "answer: " + question, nil
}

func (a *testAnalyzer) ChatStream(_ context.Context, _, _ string, _ []domain.ChatMessage, emit func(string) error) error {
	if err := emit("part one "); err != nil {
		return err
	}
	return emit("part two")
}

type fixture struct {
	router   *gin.Engine
	store    store.VideoStore
	sessions session.Store
	ai       *testAnalyzer
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDownloader(t, config.DownloaderConfig{
		YtdlpPath:       "yt-dlp",
		ProbeTimeout:    time.Second,
		DownloadTimeout: time.Second,
	})
}

func newFixtureWithDownloader(t *testing.T, dlCfg config.DownloaderConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	videoStore, err := store.NewLocalStore(t.TempDir(), testMaxUpload, log)
	require.NoError(t, err)
	sessions := session.NewMemoryStore(time.Hour)
	ai := &testAnalyzer{}

	ytdlp := downloader.NewYtdlp(dlCfg, log)
	videoService := service.NewVideoService(videoStore, sessions, ytdlp,
		downloader.NewFallback(log), transcript.NewFetcher(nil, log), log)
	analysisService := service.NewAnalysisService(videoStore, sessions, ai, log)

	router := gin.New()
	SetupRoutes(router, "test-secret", time.Hour, testMaxUpload, videoService, analysisService, videoStore, log)
	return &fixture{router: router, store: videoStore, sessions: sessions, ai: ai}
}

// do runs a request, carrying the given session cookie when non-empty,
// and returns the recorder.
func (f *fixture) do(t *testing.T, method, path, cookie string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// sessionCookie extracts the session cookie from a response.
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			return c.Name + "=" + c.Value
		}
	}
	t.Fatal("no session cookie in response")
	return ""
}

func (f *fixture) seedFile(t *testing.T, name, content string) {
	t.Helper()
	_, err := f.store.Save(strings.NewReader(content), name)
	require.NoError(t, err)
}

// --- Streaming ---

func TestStreamWholeFileIs206(t *testing.T) {
	f := newFixture(t)
	content := "0123456789abcdef"
	f.seedFile(t, "clip_1700000000.mp4", content)

	w := f.do(t, http.MethodGet, "/stream/clip_1700000000.mp4", "", nil, "")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, fmt.Sprintf("bytes 0-%d/%d", len(content)-1, len(content)), w.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, content, w.Body.String())
}

func TestStreamExactRange(t *testing.T) {
	f := newFixture(t)
	content := "0123456789abcdef"
	f.seedFile(t, "clip_1700000000.mp4", content)

	req := httptest.NewRequest(http.MethodGet, "/stream/clip_1700000000.mp4", nil)
	req.Header.Set("Range", "bytes=4-9")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "456789", w.Body.String())
	assert.Equal(t, fmt.Sprintf("bytes 4-9/%d", len(content)), w.Header().Get("Content-Range"))
	assert.Equal(t, "6", w.Header().Get("Content-Length"))
}

func TestStreamOpenEndedRange(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "clip_1700000000.mp4", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/stream/clip_1700000000.mp4", nil)
	req.Header.Set("Range", "bytes=7-")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "789", w.Body.String())
}

func TestStreamInvalidRanges(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "clip_1700000000.mp4", "0123456789")

	for _, header := range []string{"bytes=9-2", "bytes=10-", "bytes=100-200"} {
		req := httptest.NewRequest(http.MethodGet, "/stream/clip_1700000000.mp4", nil)
		req.Header.Set("Range", header)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code, "range %q", header)
		assert.Equal(t, "bytes */10", w.Header().Get("Content-Range"))
	}
}

func TestStreamMissingFile(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/stream/nope_1700000000.mp4", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- File serving ---

func TestServeFileAttachment(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "clip_1700000000.mp4", "video bytes")

	w := f.do(t, http.MethodGet, "/files/clip_1700000000.mp4", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "video bytes", w.Body.String())
}

// --- Sessions, uploads, cleanup ---

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRejectsBadExtension(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartUpload(t, "video", "notes.txt", "not a video")

	w := f.do(t, http.MethodPost, "/upload", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unsupported video format")

	files, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, files, "rejected upload must leave nothing behind")
}

func TestUploadRejectsOversize(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartUpload(t, "video", "big.mp4", strings.Repeat("x", testMaxUpload+100))

	w := f.do(t, http.MethodPost, "/upload", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum allowed size")

	files, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadRequiresFile(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartUpload(t, "wrongfield", "clip.mp4", "data")
	w := f.do(t, http.MethodPost, "/upload", "", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionIsolationInListDownloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Establish two distinct sessions by making cookie-less requests.
	wA := f.do(t, http.MethodGet, "/list-downloads", "", nil, "")
	cookieA := sessionCookie(t, wA)
	wB := f.do(t, http.MethodGet, "/list-downloads", "", nil, "")
	cookieB := sessionCookie(t, wB)
	require.NotEqual(t, cookieA, cookieB)

	// Seed a file owned by session A only.
	f.seedFile(t, "mine_1700000000.mp4", "content")
	sidA := extractSID(t, f, cookieA)
	require.NoError(t, f.sessions.RecordOwnership(ctx, sidA, "mine_1700000000.mp4"))

	var listA []map[string]any
	respA := f.do(t, http.MethodGet, "/list-downloads", cookieA, nil, "")
	require.NoError(t, json.Unmarshal(respA.Body.Bytes(), &listA))
	require.Len(t, listA, 1)
	assert.Equal(t, "mine_1700000000.mp4", listA[0]["name"])
	assert.Contains(t, listA[0]["size"], "MB")

	var listB []map[string]any
	respB := f.do(t, http.MethodGet, "/list-downloads", cookieB, nil, "")
	require.NoError(t, json.Unmarshal(respB.Body.Bytes(), &listB))
	assert.Empty(t, listB)
}

// extractSID round-trips a request to recover the sid the middleware
// assigned for a cookie, by recording a file and finding its owner.
func extractSID(t *testing.T, f *fixture, cookie string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/list-downloads", nil)
	req.Header.Set("Cookie", cookie)

	var sid string
	probe := gin.New()
	probe.Use(SessionMiddleware("test-secret", time.Hour))
	probe.GET("/list-downloads", func(c *gin.Context) {
		sid, _ = sessionIDFromContext(c)
	})
	probe.ServeHTTP(httptest.NewRecorder(), req)
	require.NotEmpty(t, sid)
	return sid
}

func TestCleanupDeletesOnlyOwnFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(t, http.MethodGet, "/list-downloads", "", nil, "")
	cookie := sessionCookie(t, w)
	sid := extractSID(t, f, cookie)

	f.seedFile(t, "mine_1700000000.mp4", "a")
	f.seedFile(t, "other_1700000001.mp4", "b")
	require.NoError(t, f.sessions.RecordOwnership(ctx, sid, "mine_1700000000.mp4"))

	resp := f.do(t, http.MethodPost, "/cleanup", cookie, nil, "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"success":true`)

	_, err := f.store.Stat("mine_1700000000.mp4")
	assert.ErrorIs(t, err, store.ErrFileNotFound)
	_, err = f.store.Stat("other_1700000001.mp4")
	assert.NoError(t, err, "files of other sessions must survive")

	after := f.do(t, http.MethodGet, "/list-downloads", cookie, nil, "")
	assert.Equal(t, "[]", strings.TrimSpace(after.Body.String()))
}

// --- Analysis routes ---

func TestAnalyzeCachedFlag(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "clip_1700000000.mp4", "video")

	body := `{"filename":"clip_1700000000.mp4","mode":"summary"}`
	w1 := f.do(t, http.MethodPost, "/analyze", "", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w1.Code)
	cookie := sessionCookie(t, w1)

	var resp1 map[string]any
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &resp1))
	assert.Equal(t, false, resp1["cached"])

	w2 := f.do(t, http.MethodPost, "/analyze", cookie, strings.NewReader(body), "application/json")
	var resp2 map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp2))
	assert.Equal(t, true, resp2["cached"])
	assert.Equal(t, 1, f.ai.analyzeCalls, "cached result must not re-invoke the analyzer")
}

func TestAnalyzeMissingFileIs404(t *testing.T) {
	f := newFixture(t)
	body := `{"filename":"ghost_1700000000.mp4"}`
	w := f.do(t, http.MethodPost, "/analyze", "", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTranscribeRoute(t *testing.T) {
	f := newFixture(t)
	f.seedFile(t, "clip_1700000000.mp4", "video")

	body := `{"filename":"clip_1700000000.mp4"}`
	w := f.do(t, http.MethodPost, "/transcribe", "", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Contains(t, resp["transcription"], "test transcription")
	assert.Equal(t, false, resp["cached"])
}

func TestChatRoute(t *testing.T) {
	f := newFixture(t)
	body := `{"transcription":"[00:00] hi","question":"what is said?"}`
	w := f.do(t, http.MethodPost, "/chat", "", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "answer: what is said?")
}

func TestChatRequiresTranscription(t *testing.T) {
	f := newFixture(t)
	body := `{"question":"what?"}`
	w := f.do(t, http.MethodPost, "/chat", "", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamProtocol(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/chat/stream?question=hello&transcription=some+text", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.Contains(t, body, `{"type":"start"}`)
	assert.Contains(t, body, `{"type":"chunk","content":"part one "}`)
	assert.Contains(t, body, `{"type":"chunk","content":"part two"}`)
	assert.Contains(t, body, `{"type":"end"}`)
}

func TestChatStreamWithoutQuestion(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/chat/stream?transcription=text", "", nil, "")
	assert.Contains(t, w.Body.String(), `"type":"error"`)
}

func TestChatStreamCachedMarkerMissing(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/chat/stream?question=hi&transcription=YOUTUBE_CACHED", "", nil, "")
	assert.Contains(t, w.Body.String(), "Transcription not available")
}

func TestAnalysisModesRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/analysis-modes", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var modes []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &modes))
	require.Len(t, modes, 7)
	assert.Equal(t, "summary", modes[0]["id"])
}

// fakeYtdlp writes an executable stand-in for yt-dlp. It prints stdout,
// prints stderr, and exits with the given code on every invocation.
func fakeYtdlp(t *testing.T, stdout, stderr string, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yt-dlp")
	script := "#!/bin/sh\n"
	if stdout != "" {
		script += "cat <<'EOF'\n" + stdout + "\nEOF\n"
	}
	if stderr != "" {
		script += "cat >&2 <<'EOF'\n" + stderr + "\nEOF\n"
	}
	script += fmt.Sprintf("exit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDownloadBotDetectionIs429(t *testing.T) {
	f := newFixtureWithDownloader(t, config.DownloaderConfig{
		YtdlpPath:       fakeYtdlp(t, "", "ERROR: Sign in to confirm you're not a bot. This helps protect our community.", 1),
		ProbeTimeout:    5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	})

	body := `{"url":"https://example.com/videos/clip"}`
	w := f.do(t, http.MethodPost, "/download", "", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["help_link"], "yt-dlp")
	assert.Contains(t, resp["technical_error"], "Sign in to confirm")
	assert.Contains(t, resp["suggestion"], "not a bot")
}

func TestInfoTruncatesDescriptionOnRuneBoundary(t *testing.T) {
	// 300 three-byte runes: over the 200-character display cap but under
	// the probe-time cap, so the handler does the cutting.
	desc := strings.Repeat("视", 300)
	meta := fmt.Sprintf(`{"title":"Vídeo","uploader":"Canal","duration":65,"description":%q}`, desc)

	f := newFixtureWithDownloader(t, config.DownloaderConfig{
		YtdlpPath:       fakeYtdlp(t, meta, "", 0),
		ProbeTimeout:    5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	})

	w := f.do(t, http.MethodPost, "/info", "", strings.NewReader(`{"url":"https://example.com/v"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, strings.Repeat("视", 200)+"...", resp["description"])
}

func TestDownloadRequiresURL(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/download", "", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "URL is required")
}

func TestInfoRequiresURL(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/info", "", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionCookieRoundTrip(t *testing.T) {
	f := newFixture(t)

	w1 := f.do(t, http.MethodGet, "/list-downloads", "", nil, "")
	cookie := sessionCookie(t, w1)

	// Presenting the cookie again must not mint a new session.
	w2 := f.do(t, http.MethodGet, "/list-downloads", cookie, nil, "")
	for _, c := range w2.Result().Cookies() {
		assert.NotEqual(t, "session", c.Name, "existing session must be reused")
	}
}

func TestTamperedSessionCookieIsReplaced(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/list-downloads", "session=garbage.token.value", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	// A fresh, valid cookie is issued.
	fresh := sessionCookie(t, w)
	assert.NotEqual(t, "session=garbage.token.value", fresh)
}
