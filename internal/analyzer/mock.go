package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vidsage/video-backend/internal/domain"
)

const mockNote = "This is mock data. Configure GEMINI_API_KEY for real analysis."

// Mock returns canned analysis payloads so the whole pipeline can be
// exercised without an API key.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

var mockPayloads = map[domain.AnalysisMode]any{
	domain.ModeSummary: map[string]any{
		"summary":    "This is a mock video analysis. The actual analysis will extract key information from your video.",
		"key_topics": []string{"Topic 1", "Topic 2", "Topic 3"},
		"moments": []map[string]string{
			{"time": "00:15", "description": "Introduction"},
			{"time": "01:30", "description": "Main content"},
			{"time": "03:45", "description": "Conclusion"},
		},
		"note": mockNote,
	},
	domain.ModeKeyMoments: map[string]any{
		"moments": []map[string]string{
			{"time": "00:30", "description": "Important point discussed", "importance": "High"},
			{"time": "02:15", "description": "Key demonstration", "importance": "Critical"},
		},
		"note": mockNote,
	},
	domain.ModeTranscript: map[string]any{
		"transcript": []map[string]string{
			{"time": "00:00", "text": "Video begins..."},
			{"time": "00:30", "text": "Main content starts..."},
		},
		"note": mockNote,
	},
}

func (m *Mock) AnalyzeVideo(_ context.Context, _ string, mode domain.AnalysisMode, _ string) (domain.AnalysisResult, error) {
	mode, cfg := modeFor(mode)
	payload, ok := mockPayloads[mode]
	if !ok {
		payload = mockPayloads[domain.ModeSummary]
	}
	return domain.AnalysisResult{
		Status:          domain.StatusSuccess,
		Mode:            mode,
		ModeEmoji:       cfg.Emoji,
		ModeDescription: cfg.Description,
		Analysis:        payload,
		Source:          domain.SourceVideo,
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (m *Mock) AnalyzeTranscript(_ context.Context, _ string, mode domain.AnalysisMode, _ string) (domain.AnalysisResult, error) {
	mode, cfg := modeFor(mode)
	return domain.AnalysisResult{
		Status:          domain.StatusSuccess,
		Mode:            mode,
		ModeEmoji:       cfg.Emoji,
		ModeDescription: cfg.Description,
		Analysis: map[string]any{
			"summary":    "Mock analysis of the video transcript.",
			"key_topics": []string{"Extracted from transcript"},
			"note":       mockNote,
		},
		Source:    domain.SourceTranscript,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (m *Mock) QuickTranscription(_ context.Context, _ string) (string, error) {
	return `[00:00] Mock video transcription begins
[00:15] Important point discussed in the video
[00:30] Another key moment with relevant content
[01:00] Main topic elaboration
[01:30] Examples and demonstrations
[02:00] Conclusion and summary points`, nil
}

func (m *Mock) Chat(_ context.Context, _, question string, _ []domain.ChatMessage) (string, error) {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "summary"), strings.Contains(q, "summarize"):
		return "This video appears to contain important information that would be analyzed with the Gemini API.", nil
	case strings.Contains(q, "what"):
		return "The video content would be analyzed to answer your specific question.", nil
	default:
		return fmt.Sprintf("To answer %q, I would need to analyze the video with the Gemini API. Please configure your API key.", question), nil
	}
}

func (m *Mock) ChatStream(ctx context.Context, transcription, question string, history []domain.ChatMessage, emit func(chunk string) error) error {
	answer, err := m.Chat(ctx, transcription, question, history)
	if err != nil {
		return err
	}
	// Emit word by word so streaming consumers see multiple chunks.
	words := strings.Fields(answer)
	for i, w := range words {
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
