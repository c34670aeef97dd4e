package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// OpenAI is a chat model on an OpenAI-compatible API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAI creates an OpenAI chat model. baseURL may be empty for api.openai.com.
func NewOpenAI(apiKey, baseURL, model string, temperature float32, maxTokens int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required for chat model %s", errdefs.ErrConfig, model)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	// go-openai omits a zero temperature, which the API reads as 1.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (o *OpenAI) complete(ctx context.Context, messages []openai.ChatCompletionMessage, format *openai.ChatCompletionResponseFormat) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          o.model,
		Messages:       messages,
		Temperature:    o.temperature,
		MaxTokens:      o.maxTokens,
		ResponseFormat: format,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Answer sends the fixed system and user prompts.
func (o *OpenAI) Answer(ctx context.Context, query, contextText string) (string, error) {
	system, user := AnswerPrompts(query, contextText)
	out, err := o.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}, nil)
	if err != nil {
		return "", externalErr("openai", "answer", err)
	}
	return out, nil
}

// GenerateQuestion requests structured output constrained by the question schema.
func (o *OpenAI) GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error) {
	out, err := o.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: QuestionPrompt(contextText)},
	}, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "question",
			Schema: json.RawMessage(questionSchema),
			Strict: true,
		},
	})
	if err != nil {
		return nil, externalErr("openai", "generate question", err)
	}
	return ParseQuestion(out)
}
