package analyzer

import (
	"context"

	"vidsage/video-backend/internal/domain"
)

// VideoAnalyzer produces AI analysis of local video files and
// transcripts. Implementations return an error for infrastructure
// failures; callers shape those into failed results.
type VideoAnalyzer interface {
	// AnalyzeVideo uploads the file to the model provider and runs the
	// prompt for the given mode against the video itself.
	AnalyzeVideo(ctx context.Context, videoPath string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, error)
	// AnalyzeTranscript runs the mode's prompt against caption text
	// only, with no video upload.
	AnalyzeTranscript(ctx context.Context, transcript string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, error)
	// QuickTranscription extracts a timestamped transcription from the
	// video for use as chat context.
	QuickTranscription(ctx context.Context, videoPath string) (string, error)
	// Chat answers a question grounded in the transcription and recent
	// conversation history.
	Chat(ctx context.Context, transcription, question string, history []domain.ChatMessage) (string, error)
	// ChatStream is Chat with incremental delivery: emit is called for
	// each response fragment as it arrives. Returning an error from
	// emit stops the stream.
	ChatStream(ctx context.Context, transcription, question string, history []domain.ChatMessage, emit func(chunk string) error) error
}

type modeConfig struct {
	Name        string
	Emoji       string
	Description string
	Prompt      string
}

var modes = map[domain.AnalysisMode]modeConfig{
	domain.ModeSummary: {
		Name:        "Summary",
		Emoji:       "📝",
		Description: "Comprehensive video summary",
		Prompt: `Analyze this video and provide:
1. A comprehensive summary of the main content
2. Key topics discussed or shown
3. Important moments with timestamps
Format the response as structured JSON with sections for summary, key_topics, and moments.`,
	},
	domain.ModeKeyMoments: {
		Name:        "Key Moments",
		Emoji:       "🔑",
		Description: "Extract key moments",
		Prompt: `Identify the most important moments in this video.
For each key moment, provide:
- Timestamp (approximate time in the video)
- Description of what happens
- Why it's important
Return as JSON with an array of moments.`,
	},
	domain.ModeTranscript: {
		Name:        "Transcript",
		Emoji:       "💬",
		Description: "Extract dialogue and text",
		Prompt: `Extract all spoken dialogue and important text from the video.
Include:
- Speaker identification (if possible)
- Timestamps for major sections
- Any on-screen text that appears
Format as JSON with transcript sections.`,
	},
	domain.ModeObjects: {
		Name:        "Objects & Scenes",
		Emoji:       "👁️",
		Description: "Detect objects and scenes",
		Prompt: `Identify all objects, people, and scenes in the video.
For each scene change, list:
- Timestamp
- Objects visible
- People count and description
- Scene setting/location
Return as structured JSON.`,
	},
	domain.ModeSentiment: {
		Name:        "Sentiment",
		Emoji:       "😊",
		Description: "Analyze emotional content",
		Prompt: `Analyze the emotional tone and sentiment throughout the video.
Track:
- Overall sentiment (positive/negative/neutral)
- Emotional moments with timestamps
- Mood changes
- Energy level variations
Return as JSON with sentiment analysis.`,
	},
	domain.ModeEducational: {
		Name:        "Educational",
		Emoji:       "🎓",
		Description: "Extract educational content",
		Prompt: `Extract educational content and learning points from the video.
Identify:
- Main concepts explained
- Key takeaways
- Examples or demonstrations
- Action items or recommendations
Format as structured JSON for learning.`,
	},
	domain.ModeCustom: {
		Name:        "Custom",
		Emoji:       "🔧",
		Description: "Custom analysis",
	},
}

const customPromptTemplate = `Analyze this video according to the following instructions:
%s

Return the analysis in structured JSON format.`

// modeFor resolves a mode to its configuration, falling back to
// summary for anything unknown.
func modeFor(mode domain.AnalysisMode) (domain.AnalysisMode, modeConfig) {
	if cfg, ok := modes[mode]; ok {
		return mode, cfg
	}
	return domain.ModeSummary, modes[domain.ModeSummary]
}

// Modes lists the available analysis modes for API discovery, in a
// stable order.
func Modes() []domain.ModeInfo {
	order := []domain.AnalysisMode{
		domain.ModeSummary,
		domain.ModeKeyMoments,
		domain.ModeTranscript,
		domain.ModeObjects,
		domain.ModeSentiment,
		domain.ModeEducational,
		domain.ModeCustom,
	}
	out := make([]domain.ModeInfo, 0, len(order))
	for _, m := range order {
		cfg := modes[m]
		out = append(out, domain.ModeInfo{ID: m, Name: cfg.Name, Emoji: cfg.Emoji})
	}
	return out
}
