// Package openai implements the MentionClassifier port with the OpenAI chat
// completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/sashabaranov/go-openai"

	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// DefaultModel is used when no model is configured.
const DefaultModel = oai.GPT4oMini

const systemPrompt = `You triage GitHub comments. A comment mentions a user with @login.
Decide whether the comment asks that user for a response: a question, a request for review,
input, a decision or an action. Mentions that only credit, notify or thank the user do not.
Reply with a JSON object only: {"requires_response": true|false, "reason": "<one short sentence>"}.`

// ErrEmptyResponse is returned when the API answers without a usable choice.
var ErrEmptyResponse = errors.New("classifier returned no answer")

// Compile-time interface satisfaction check.
var _ driven.MentionClassifier = (*Classifier)(nil)

// Classifier asks a chat model whether a mention needs an answer.
type Classifier struct {
	client *oai.Client
	model  string
	logger *slog.Logger
}

// NewClassifier creates a Classifier for the public API.
func NewClassifier(apiKey, model string) *Classifier {
	return NewClassifierWithBaseURL(apiKey, model, "")
}

// NewClassifierWithBaseURL creates a Classifier against an OpenAI-compatible
// endpoint. An empty baseURL keeps the public API.
func NewClassifierWithBaseURL(apiKey, model, baseURL string) *Classifier {
	cfg := oai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{
		client: oai.NewClientWithConfig(cfg),
		model:  model,
		logger: slog.Default(),
	}
}

type verdictJSON struct {
	RequiresResponse *bool  `json:"requires_response"`
	Reason           string `json:"reason"`
}

// ClassifyMention sends one mention to the model and parses its JSON verdict.
func (c *Classifier) ClassifyMention(ctx context.Context, m driven.MentionContext) (driven.MentionVerdict, error) {
	resp, err := c.client.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: c.model,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: oai.ChatMessageRoleUser, Content: buildPrompt(m)},
		},
		ResponseFormat: &oai.ChatCompletionResponseFormat{
			Type: oai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
		MaxTokens:   120,
	})
	if err != nil {
		return driven.MentionVerdict{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return driven.MentionVerdict{}, ErrEmptyResponse
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return driven.MentionVerdict{}, err
	}
	verdict.Model = resp.Model
	if verdict.Model == "" {
		verdict.Model = c.model
	}

	c.logger.Debug("mention classified",
		"target", m.TargetLogin,
		"requires_response", verdict.RequiresResponse,
		"model", verdict.Model,
	)
	return verdict, nil
}

func buildPrompt(m driven.MentionContext) string {
	var sb strings.Builder
	sb.WriteString("Thread title: " + m.SubjectTitle + "\n")
	sb.WriteString("Comment author: @" + m.AuthorLogin + "\n")
	sb.WriteString("Mentioned user: @" + m.TargetLogin + "\n\n")
	sb.WriteString("Comment:\n")
	sb.WriteString(m.CommentBody)
	return sb.String()
}

// parseVerdict reads the model's JSON answer. Some models wrap JSON in a
// markdown fence even in JSON mode.
func parseVerdict(content string) (driven.MentionVerdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return driven.MentionVerdict{}, ErrEmptyResponse
	}

	var v verdictJSON
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return driven.MentionVerdict{}, fmt.Errorf("parse classifier answer: %w", err)
	}
	if v.RequiresResponse == nil {
		return driven.MentionVerdict{}, fmt.Errorf("parse classifier answer: missing requires_response")
	}
	return driven.MentionVerdict{
		RequiresResponse: *v.RequiresResponse,
		Reason:           strings.TrimSpace(v.Reason),
	}, nil
}
