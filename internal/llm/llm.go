// Package llm provides the chat models used to answer questions and to generate test questions.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/internal/models"
)

// Model answers questions against a retrieved context and generates true/false questions.
type Model interface {
	// Answer returns the model's free-text answer to query given contextText.
	Answer(ctx context.Context, query, contextText string) (string, error)
	// GenerateQuestion returns a boolean question about contextText with its answer.
	GenerateQuestion(ctx context.Context, contextText string) (*models.Question, error)
}

// Fixed prompts. {context} and {query} are substituted verbatim.
const (
	answerSystemPrompt = "You are to answer questions taking into consideration the following context: {context}"
	answerHumanPrompt  = "Answer the question with the above context, lets think about this step by step: {query}"
	questionPrompt     = "create a question to context given. The question needs to have a boolean answer (True or False). The context: {context}"
)

// AnswerPrompts returns the system and user messages for answering query.
func AnswerPrompts(query, contextText string) (system, user string) {
	system = strings.ReplaceAll(answerSystemPrompt, "{context}", contextText)
	user = strings.ReplaceAll(answerHumanPrompt, "{query}", query)
	return system, user
}

// QuestionPrompt returns the prompt for generating a question about contextText.
func QuestionPrompt(contextText string) string {
	return strings.ReplaceAll(questionPrompt, "{context}", contextText)
}

// questionSchema is the JSON schema of the structured question output.
const questionSchema = `{"type":"object","properties":{"question":{"type":"string"},"answer":{"type":"string"}},"required":["question","answer"],"additionalProperties":false}`

// ParseQuestion decodes the model's structured output. Code fences are tolerated;
// anything else that is not a JSON object with a non-empty question and answer
// is errdefs.ErrGenerationFailed.
func ParseQuestion(raw string) (*models.Question, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty response", errdefs.ErrGenerationFailed)
	}
	var q models.Question
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return nil, fmt.Errorf("%w: malformed question JSON: %v", errdefs.ErrGenerationFailed, err)
	}
	if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
		return nil, fmt.Errorf("%w: question or answer missing", errdefs.ErrGenerationFailed)
	}
	return &q, nil
}

func externalErr(provider, call string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", errdefs.ErrExternalService, provider, call, err)
}
