package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"vidsage/video-backend/internal/domain"
)

const (
	uploadPollInterval = 5 * time.Second

	// Transcript caps keep prompts inside the model's token budget.
	chatTranscriptLimit   = 4000
	streamTranscriptLimit = 3000
)

// Gemini analyzes videos through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, log *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, log: log}, nil
}

// uploadVideo pushes the file to the provider and polls until it
// leaves the processing state.
func (g *Gemini) uploadVideo(ctx context.Context, videoPath string) (*genai.File, error) {
	g.log.Info("uploading video for analysis", zap.String("path", videoPath))
	file, err := g.client.Files.UploadFromPath(ctx, videoPath, &genai.UploadFileConfig{MIMEType: "video/mp4"})
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(uploadPollInterval):
		}
		file, err = g.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("poll upload state: %w", err)
		}
	}
	if file.State == genai.FileStateFailed {
		return nil, errors.New("video processing failed")
	}
	return file, nil
}

func (g *Gemini) generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 2048,
	}
}

func promptFor(mode domain.AnalysisMode, customPrompt string) (domain.AnalysisMode, modeConfig, string) {
	mode, cfg := modeFor(mode)
	if mode == domain.ModeCustom && customPrompt != "" {
		return mode, cfg, fmt.Sprintf(customPromptTemplate, customPrompt)
	}
	if cfg.Prompt == "" {
		cfg = modes[domain.ModeSummary]
	}
	return mode, cfg, cfg.Prompt
}

func (g *Gemini) AnalyzeVideo(ctx context.Context, videoPath string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, error) {
	file, err := g.uploadVideo(ctx, videoPath)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	mode, cfg, prompt := promptFor(mode, customPrompt)
	g.log.Info("analyzing video", zap.String("path", videoPath), zap.String("mode", string(mode)))

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromURI(file.URI, file.MIMEType),
	}, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.generationConfig())
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("generate analysis: %w", err)
	}

	return domain.AnalysisResult{
		Status:          domain.StatusSuccess,
		Mode:            mode,
		ModeEmoji:       cfg.Emoji,
		ModeDescription: cfg.Description,
		Analysis:        extractAnalysis(resp.Text()),
		Source:          domain.SourceVideo,
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (g *Gemini) AnalyzeTranscript(ctx context.Context, transcript string, mode domain.AnalysisMode, customPrompt string) (domain.AnalysisResult, error) {
	mode, cfg := modeFor(mode)
	prompt := cfg.Prompt
	if mode == domain.ModeCustom && customPrompt != "" {
		prompt = customPrompt
	}
	if prompt == "" {
		prompt = modes[domain.ModeSummary].Prompt
	}

	fullPrompt := fmt.Sprintf(`Analyze this video transcript and %s

Transcript:
%s

Provide a structured analysis in JSON format.`, prompt, transcript)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(fullPrompt), g.generationConfig())
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("generate transcript analysis: %w", err)
	}

	return domain.AnalysisResult{
		Status:          domain.StatusSuccess,
		Mode:            mode,
		ModeEmoji:       cfg.Emoji,
		ModeDescription: cfg.Description,
		Analysis:        extractAnalysis(resp.Text()),
		Source:          domain.SourceTranscript,
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (g *Gemini) QuickTranscription(ctx context.Context, videoPath string) (string, error) {
	file, err := g.uploadVideo(ctx, videoPath)
	if err != nil {
		return "", err
	}

	prompt := `Extract a quick transcription of this video with timestamps.
Format: [MM:SS] Text content
Focus on main dialogue and important moments.
Keep it concise but informative.`

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromURI(file.URI, file.MIMEType),
	}, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.generationConfig())
	if err != nil {
		return "", fmt.Errorf("generate transcription: %w", err)
	}
	return resp.Text(), nil
}

func historyText(history []domain.ChatMessage, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}

func (g *Gemini) Chat(ctx context.Context, transcription, question string, history []domain.ChatMessage) (string, error) {
	contextStr := historyText(history, 5)
	if contextStr == "" {
		contextStr = "No previous context"
	}

	prompt := fmt.Sprintf(`Based on this video transcription, answer the user's question.

Video Transcription:
%s

Previous Conversation:
%s

User Question: %s

Please provide a helpful, specific answer based on the video content.
Reference specific parts of the video when relevant.`,
		truncateRunes(transcription, chatTranscriptLimit), contextStr, question)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.generationConfig())
	if err != nil {
		return "", fmt.Errorf("generate chat response: %w", err)
	}
	return resp.Text(), nil
}

func (g *Gemini) ChatStream(ctx context.Context, transcription, question string, history []domain.ChatMessage, emit func(chunk string) error) error {
	transcript := truncateRunes(transcription, streamTranscriptLimit)
	if transcript == "" {
		transcript = "Not available"
	}
	contextStr := historyText(history, 3)
	if contextStr == "" {
		contextStr = "None"
	}

	prompt := fmt.Sprintf(`Based on this video transcription, answer the question:

Transcription:
%s

Question: %s

Previous context: %s

Provide a helpful, specific answer. Reference timestamps when relevant.`,
		transcript, question, contextStr)

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.generationConfig()) {
		if err != nil {
			return fmt.Errorf("stream chat response: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
	return nil
}
