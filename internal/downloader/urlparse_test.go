package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		wantID string
		wantOK bool
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch URL with extra params", "https://www.youtube.com/watch?v=abc123XYZ_-&t=42s", "abc123XYZ_-", true},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link with query", "https://youtu.be/dQw4w9WgXcQ?si=share", "dQw4w9WgXcQ", true},
		{"embed URL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"legacy v path", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"shorts URL", "https://www.youtube.com/shorts/abc123XYZ_-", "abc123XYZ_-", true},
		{"mobile host", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"no scheme watch", "youtube.com/watch?v=dQw4w9WgXcQ", "", false},
		{"other site", "https://vimeo.com/123456", "", false},
		{"channel page", "https://www.youtube.com/@somechannel", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
