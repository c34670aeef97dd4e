package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// Ollama is a chat model served by a local Ollama server.
type Ollama struct {
	client  *api.Client
	model   string
	options map[string]interface{}
}

// NewOllama creates an Ollama chat model. An empty baseURL uses OLLAMA_HOST or the default.
func NewOllama(baseURL, model string, temperature float32, maxTokens int) (*Ollama, error) {
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: ollama client: %w", errdefs.ErrConfig, err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama base_url: %w", errdefs.ErrConfig, err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	return &Ollama{
		client: client,
		model:  model,
		options: map[string]interface{}{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}, nil
}

func (o *Ollama) generate(ctx context.Context, system, prompt string, format json.RawMessage) (string, error) {
	stream := false
	req := api.GenerateRequest{
		Model:   o.model,
		System:  system,
		Prompt:  prompt,
		Format:  format,
		Stream:  &stream,
		Options: o.options,
	}
	var b strings.Builder
	err := o.client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := b.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Answer sends the fixed prompts as system and prompt.
func (o *Ollama) Answer(ctx context.Context, query, contextText string) (string, error) {
	system, user := AnswerPrompts(query, contextText)
	out, err := o.generate(ctx, system, user, nil)
	if err != nil {
		return "", externalErr("ollama", "answer", err)
	}
	return out, nil
}

// GenerateQuestion constrains the output with the question schema.
func (o *Ollama) GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error) {
	out, err := o.generate(ctx, "", QuestionPrompt(contextText), json.RawMessage(questionSchema))
	if err != nil {
		return nil, externalErr("ollama", "generate question", err)
	}
	return ParseQuestion(out)
}
