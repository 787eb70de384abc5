package transcript

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoTranscript means the video simply has no captions in any
	// language. This is an ordinary condition, not a failure.
	ErrNoTranscript = errors.New("no transcript available")
	// ErrBlocked means the caption origin refused us, typically an IP
	// block or rate limit. Acquisition continues without a transcript.
	ErrBlocked = errors.New("transcript request blocked")
)

const timedtextBase = "https://video.google.com/timedtext"

// Entry is a single caption cue.
type Entry struct {
	Start float64
	Text  string
}

// Fetcher retrieves caption tracks for YouTube videos.
type Fetcher struct {
	httpClient *http.Client
	preferred  []string
	log        *zap.Logger
}

func NewFetcher(preferredLanguages []string, log *zap.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		preferred:  preferredLanguages,
		log:        log,
	}
}

type trackList struct {
	Tracks []struct {
		LangCode string `xml:"lang_code,attr"`
		Kind     string `xml:"kind,attr"`
	} `xml:"track"`
}

type caption struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// Fetch returns the video's transcript in the best available language:
// the configured preference order first, then English, then whatever
// track exists. The chosen language code is returned alongside the
// cues.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) ([]Entry, string, error) {
	langs, err := f.listLanguages(ctx, videoID)
	if err != nil {
		return nil, "", err
	}
	if len(langs) == 0 {
		return nil, "", ErrNoTranscript
	}

	order := make([]string, 0, len(f.preferred)+1+len(langs))
	order = append(order, f.preferred...)
	order = append(order, "en")
	order = append(order, langs...)

	seen := map[string]bool{}
	available := map[string]bool{}
	for _, l := range langs {
		available[l] = true
	}
	for _, lang := range order {
		if seen[lang] || !available[lang] {
			continue
		}
		seen[lang] = true
		entries, err := f.fetchLanguage(ctx, videoID, lang)
		if errors.Is(err, ErrBlocked) {
			return nil, "", err
		}
		if err != nil {
			f.log.Debug("caption track fetch failed", zap.String("video_id", videoID), zap.String("lang", lang), zap.Error(err))
			continue
		}
		if len(entries) > 0 {
			return entries, lang, nil
		}
	}
	return nil, "", ErrNoTranscript
}

func (f *Fetcher) listLanguages(ctx context.Context, videoID string) ([]string, error) {
	q := url.Values{"type": {"list"}, "v": {videoID}}
	body, err := f.get(ctx, timedtextBase+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var list trackList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse track list: %w", err)
	}
	langs := make([]string, 0, len(list.Tracks))
	for _, t := range list.Tracks {
		langs = append(langs, t.LangCode)
	}
	return langs, nil
}

func (f *Fetcher) fetchLanguage(ctx context.Context, videoID, lang string) ([]Entry, error) {
	q := url.Values{"lang": {lang}, "v": {videoID}}
	body, err := f.get(ctx, timedtextBase+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var track caption
	if err := xml.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("parse captions: %w", err)
	}
	entries := make([]Entry, 0, len(track.Texts))
	for _, t := range track.Texts {
		entries = append(entries, Entry{Start: t.Start, Text: html.UnescapeString(t.Body)})
	}
	return entries, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("caption request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, ErrBlocked
	default:
		return nil, fmt.Errorf("caption request: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ToResult shapes fetch output into the acquisition result fields,
// mapping a block to the non-fatal blocked flag.
func ToResult(entries []Entry, lang string, err error) (text, language string, blocked bool) {
	if errors.Is(err, ErrBlocked) {
		return "", "", true
	}
	if err != nil || len(entries) == 0 {
		return "", "", false
	}
	return Format(entries), lang, false
}
