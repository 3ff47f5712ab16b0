package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "github.com/avolkov/macrocoach/internal/errors"
	"github.com/avolkov/macrocoach/internal/logger"
	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

const geminiModel = "gemini-1.5-flash"

// ReviewRecommendation is the structured payload expected inside the AI
// reasoning response. The upstream contract guarantees nothing beyond
// "some text that should contain one JSON object with these keys".
type ReviewRecommendation struct {
	Analysis            string  `json:"analysis"`
	RecommendedCalories float64 `json:"recommendedCalories"`
	RecommendedProtein  float64 `json:"recommendedProtein"`
	RecommendedCarbs    float64 `json:"recommendedCarbs"`
	RecommendedFat      float64 `json:"recommendedFat"`
	ConfidenceLevel     string  `json:"confidenceLevel"`
	Reasoning           string  `json:"reasoning"`
}

type AIService struct {
	geminiClient *genai.Client
	openaiClient *openai.Client
	timeout      time.Duration
}

// NewAIService builds the reasoning client. Missing keys leave the
// corresponding provider nil; with no provider at all the service is
// disabled and every call fails with an external error, which callers
// treat as "manual-only mode".
func NewAIService(geminiAPIKey, openaiAPIKey string, timeout time.Duration) *AIService {
	s := &AIService{timeout: timeout}
	if timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	if geminiAPIKey != "" {
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(geminiAPIKey))
		if err != nil {
			logger.Error("failed to create Gemini client", "error", err)
		} else {
			s.geminiClient = client
		}
	}
	if openaiAPIKey != "" {
		s.openaiClient = openai.NewClient(openaiAPIKey)
	}

	return s
}

// Enabled reports whether at least one reasoning provider is configured.
func (s *AIService) Enabled() bool {
	return s.geminiClient != nil || s.openaiClient != nil
}

// GenerateRecommendation sends the prompt to the reasoning service and
// extracts the recommendation JSON from its free-text reply. Gemini is
// preferred; OpenAI serves as fallback when configured.
func (s *AIService) GenerateRecommendation(ctx context.Context, prompt string) (*ReviewRecommendation, error) {
	if !s.Enabled() {
		return nil, apperrors.New(apperrors.ErrorTypeExternal, "AI_DISABLED", "no AI reasoning provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var text string
	var err error
	if s.geminiClient != nil {
		text, err = s.generateWithGemini(ctx, prompt)
		if err != nil && s.openaiClient != nil && !isTimeout(ctx, err) {
			logger.Warn("Gemini call failed, falling back to OpenAI", "error", err)
			text, err = s.generateWithOpenAI(ctx, prompt)
		}
	} else {
		text, err = s.generateWithOpenAI(ctx, prompt)
	}
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, apperrors.NewUpstreamTimeoutError("AI reasoning")
		}
		return nil, apperrors.NewExternalAPIError(err, "AI reasoning")
	}

	return parseRecommendation(text)
}

func (s *AIService) generateWithGemini(ctx context.Context, prompt string) (string, error) {
	model := s.geminiClient.GenerativeModel(geminiModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty Gemini response")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", errors.New("unexpected Gemini response part type")
	}
	return string(text), nil
}

func (s *AIService) generateWithOpenAI(ctx context.Context, prompt string) (string, error) {
	resp, err := s.openaiClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT3Dot5Turbo,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty OpenAI response")
	}
	return resp.Choices[0].Message.Content, nil
}

func parseRecommendation(text string) (*ReviewRecommendation, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return nil, apperrors.NewUpstreamFormatError(errors.New("no JSON object in response"))
	}
	var rec ReviewRecommendation
	if err := json.Unmarshal([]byte(jsonStr), &rec); err != nil {
		return nil, apperrors.NewUpstreamFormatError(err)
	}
	return &rec, nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// extractJSON attempts to extract a valid JSON object from the given string.
// It handles cases where the JSON is wrapped in code blocks (```json ... ```) or other text.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
