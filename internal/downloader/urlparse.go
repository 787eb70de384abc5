package downloader

import (
	"net/url"
	"strings"
)

// ExtractVideoID pulls the platform-native video identifier out of a
// YouTube URL. It understands watch, embed, /v/, shorts and youtu.be
// short-link variants. A miss means "not a YouTube URL", not an error;
// acquisition proceeds through the generic downloader either way.
func ExtractVideoID(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())

	if host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") {
		if v := parsed.Query().Get("v"); v != "" {
			return v, true
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/"} {
			if strings.HasPrefix(parsed.Path, prefix) {
				rest := strings.TrimPrefix(parsed.Path, prefix)
				if id := firstSegment(rest); id != "" {
					return id, true
				}
			}
		}
		return "", false
	}

	if host == "youtu.be" {
		if id := firstSegment(strings.TrimPrefix(parsed.Path, "/")); id != "" {
			return id, true
		}
	}

	return "", false
}

func firstSegment(path string) string {
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		return path[:i]
	}
	return path
}
