package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyExplanation is returned when the model answers without text.
var ErrEmptyExplanation = errors.New("LLM returned an empty explanation")

// ExplainResult is the JSON object the model is asked to produce.
type ExplainResult struct {
	Explanation string `json:"explanation"`
}

type cacheKey struct {
	questionID int
	chosen     string
}

// Client wraps an OpenAI-compatible API client and caches explanations.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant

	mu    sync.Mutex
	cache map[cacheKey]string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
		cache:   make(map[cacheKey]string),
	}
}

// Ping checks that the endpoint is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM list models: %w", err)
	}
	return nil
}

// Explain asks the model why the correct option of q is right. chosen is the
// student's option, or "" if the question was left unanswered. Successful
// answers are cached for the life of the client.
func (c *Client) Explain(ctx context.Context, q model.Question, chosen string) (string, error) {
	key := cacheKey{questionID: q.ID, chosen: chosen}
	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	prompt, err := prompts.BuildExplainPrompt(c.variant, q, chosen)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", q.ID, "raw", raw)

	text, err := parseExplanation(raw)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[key] = text
	c.mu.Unlock()
	return text, nil
}

// parseExplanation extracts the explanation from a model reply. Some models
// wrap JSON in a markdown fence even in JSON mode.
func parseExplanation(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var result ExplainResult
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	text := strings.TrimSpace(result.Explanation)
	if text == "" {
		return "", ErrEmptyExplanation
	}
	return text, nil
}
