// Package openai adapts OpenAI's Chat Completions API to hive.ModelClient.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hiveflow/hive/hive"
)

// Client implements hive.ModelClient against GPT models, retrying
// transient failures (timeouts, 5xx, rate limits) with a fixed or
// rate-limit-scaled backoff.
type Client struct {
	apiKey     string
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// New returns a Client for modelName with 3 retries and a 1-second base
// delay; an empty modelName defaults to gpt-4o.
func New(apiKey, modelName string) *Client {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &Client{apiKey: apiKey, modelName: modelName, maxRetries: 3, retryDelay: time.Second}
}

// Chat implements hive.ModelClient.
func (c *Client) Chat(ctx context.Context, messages []hive.ChatMessage, tools []hive.ToolSpec) (hive.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return hive.ChatOut{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err := c.complete(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransientError(err) || attempt >= c.maxRetries {
			return hive.ChatOut{}, err
		}

		delay := c.retryDelay
		if isRateLimitError(err) {
			delay = c.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return hive.ChatOut{}, ctx.Err()
		}
	}
	return hive.ChatOut{}, fmt.Errorf("hive/model/openai: failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) complete(ctx context.Context, messages []hive.ChatMessage, tools []hive.ToolSpec) (hive.ChatOut, error) {
	if c.apiKey == "" {
		return hive.ChatOut{}, errors.New("hive/model/openai: API key is required")
	}
	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return hive.ChatOut{}, fmt.Errorf("hive/model/openai: %w", err)
	}
	return convertResponse(resp), nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500", "429"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

type rateLimitError struct{ message string }

func (e *rateLimitError) Error() string { return e.message }

func convertMessages(messages []hive.ChatMessage) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case "system":
			out[i] = openaisdk.SystemMessage(msg.Content)
		case "assistant":
			out[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			out[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return out
}

func convertTools(tools []hive.ToolSpec) []openaisdk.ChatCompletionToolParam {
	out := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		}
	}
	return out
}

func convertResponse(resp *openaisdk.ChatCompletion) hive.ChatOut {
	if len(resp.Choices) == 0 {
		return hive.ChatOut{}
	}
	msg := resp.Choices[0].Message

	var calls []hive.ToolCall
	for _, tc := range msg.ToolCalls {
		calls = append(calls, hive.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseToolArguments(tc.Function.Arguments),
		})
	}
	return hive.ChatOut{
		Message: hive.ChatMessage{Role: "assistant", Content: msg.Content},
		Tools:   calls,
	}
}

// parseToolArguments decodes the model's JSON-encoded arguments string. A
// malformed payload is reported under "_raw" rather than dropped, so the
// caller can still see what the model actually sent.
func parseToolArguments(jsonStr string) map[string]any {
	if jsonStr == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return map[string]any{"_raw": jsonStr}
	}
	return out
}

var _ hive.ModelClient = (*Client)(nil)
