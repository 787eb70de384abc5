package transcript

import (
	"fmt"
	"strings"
)

// Format renders caption cues as one timestamped line each, in the
// form "[MM:SS] text". Newlines inside a cue are flattened to spaces
// so every cue stays on a single line.
func Format(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		total := int(e.Start)
		text := strings.TrimSpace(strings.ReplaceAll(e.Text, "\n", " "))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%02d:%02d] %s\n", total/60, total%60, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
