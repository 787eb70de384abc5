package analyzer

import (
	"encoding/json"
	"regexp"
)

var (
	markdownJSONRe = regexp.MustCompile("```json\\n((?s:.*?))\\n```")
	rawJSONRe      = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractAnalysis pulls structured data out of a model response. It
// tries a fenced ```json block first, then any raw JSON object, and
// finally wraps the plain text under a "summary" key so callers always
// get a usable payload.
func extractAnalysis(text string) any {
	if m := markdownJSONRe.FindStringSubmatch(text); m != nil {
		if data := tryUnmarshal(m[1]); data != nil {
			return unwrap(data)
		}
	}
	if m := rawJSONRe.FindString(text); m != "" {
		if data := tryUnmarshal(m); data != nil {
			return unwrap(data)
		}
	}
	return map[string]any{"summary": text}
}

func tryUnmarshal(s string) any {
	var data any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil
	}
	return data
}

// unwrap flattens responses the model nested under a lone "analysis"
// key, repeatedly, so the payload shape stays flat.
func unwrap(data any) any {
	for {
		m, ok := data.(map[string]any)
		if !ok || len(m) != 1 {
			return data
		}
		inner, ok := m["analysis"]
		if !ok {
			return data
		}
		data = inner
	}
}

// truncateRunes caps s at n runes without splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
