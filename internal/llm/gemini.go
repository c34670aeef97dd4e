package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// Gemini is a chat model on the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGemini creates a Gemini chat model.
func NewGemini(ctx context.Context, apiKey, model string, temperature float32, maxTokens int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for chat model %s", errdefs.ErrConfig, model)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", errdefs.ErrConfig, err)
	}
	return &Gemini{client: client, model: model, temperature: temperature, maxTokens: int32(maxTokens)}, nil
}

func (g *Gemini) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
}

// Answer sends the context as the system instruction.
func (g *Gemini) Answer(ctx context.Context, query, contextText string) (string, error) {
	system, user := AnswerPrompts(query, contextText)
	cfg := g.config()
	cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		return "", externalErr("gemini", "answer", err)
	}
	return result.Text(), nil
}

// GenerateQuestion requests JSON output constrained by a response schema.
func (g *Gemini) GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error) {
	cfg := g.config()
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString},
			"answer":   {Type: genai.TypeString},
		},
		Required: []string{"question", "answer"},
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(QuestionPrompt(contextText)), cfg)
	if err != nil {
		return nil, externalErr("gemini", "generate question", err)
	}
	return ParseQuestion(result.Text())
}
