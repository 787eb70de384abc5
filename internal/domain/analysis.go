package domain

// AnalysisMode names one analysis intent. The set is a fixed enumeration;
// unknown modes fall back to ModeSummary at the analyzer boundary.
type AnalysisMode string

const (
	ModeSummary     AnalysisMode = "summary"
	ModeKeyMoments  AnalysisMode = "key_moments"
	ModeTranscript  AnalysisMode = "transcript"
	ModeObjects     AnalysisMode = "objects"
	ModeSentiment   AnalysisMode = "sentiment"
	ModeEducational AnalysisMode = "educational"
	ModeCustom      AnalysisMode = "custom"
)

// AnalysisStatus discriminates success from failure inside a result object.
// Failures travel as values, not errors, so the page can render degraded.
type AnalysisStatus string

const (
	StatusSuccess AnalysisStatus = "success"
	StatusFailed  AnalysisStatus = "failed"
)

// AnalysisSource records which input produced the analysis.
type AnalysisSource string

const (
	SourceVideo      AnalysisSource = "video"
	SourceTranscript AnalysisSource = "transcript"
	SourceYouTube    AnalysisSource = "youtube"
)

// AnalysisResult is the tagged record cached per (filename, mode).
// Analysis holds the mode-specific payload: structured JSON when the model
// returned parseable JSON, otherwise a plain-text wrapper.
type AnalysisResult struct {
	Status          AnalysisStatus `json:"status"`
	Mode            AnalysisMode   `json:"mode"`
	ModeEmoji       string         `json:"mode_emoji,omitempty"`
	ModeDescription string         `json:"mode_description,omitempty"`
	Analysis        any            `json:"analysis,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
	Source          AnalysisSource `json:"source,omitempty"`
	Error           string         `json:"error,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}

// ChatMessage is one turn of the follow-up conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModeInfo is the display metadata served by the analysis-modes endpoint.
type ModeInfo struct {
	ID    AnalysisMode `json:"id"`
	Name  string       `json:"name"`
	Emoji string       `json:"emoji"`
}
