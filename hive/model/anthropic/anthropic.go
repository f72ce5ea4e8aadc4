// Package anthropic adapts Anthropic's Claude API to hive.ModelClient.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hiveflow/hive/hive"
)

// Client implements hive.ModelClient against Claude models. Anthropic
// keeps the system prompt out of the messages array, so Chat splits it
// out of the incoming hive.ChatMessage slice before calling the SDK.
type Client struct {
	apiKey    string
	modelName string
}

// New returns a Client for modelName; an empty modelName defaults to
// Claude Sonnet.
func New(apiKey, modelName string) *Client {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &Client{apiKey: apiKey, modelName: modelName}
}

// Chat implements hive.ModelClient.
func (c *Client) Chat(ctx context.Context, messages []hive.ChatMessage, tools []hive.ToolSpec) (hive.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return hive.ChatOut{}, err
	}
	if c.apiKey == "" {
		return hive.ChatOut{}, errors.New("hive/model/anthropic: API key is required")
	}

	systemPrompt, conversation := extractSystemPrompt(messages)

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  convertMessages(conversation),
		MaxTokens: 4096,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return hive.ChatOut{}, fmt.Errorf("hive/model/anthropic: %w", err)
	}
	return convertResponse(resp), nil
}

func extractSystemPrompt(messages []hive.ChatMessage) (string, []hive.ChatMessage) {
	var systemPrompt string
	var rest []hive.ChatMessage
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return systemPrompt, rest
}

func convertMessages(messages []hive.ChatMessage) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case "assistant":
			out[i] = anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content))
		default:
			out[i] = anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content))
		}
	}
	return out
}

func convertTools(tools []hive.ToolSpec) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		var properties any
		var required []string
		if t.Schema != nil {
			if props, ok := t.Schema["properties"]; ok {
				properties = props
			}
			if req, ok := t.Schema["required"].([]string); ok {
				required = req
			}
		}
		out[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		}
	}
	return out
}

func convertResponse(resp *anthropicsdk.Message) hive.ChatOut {
	var text string
	var calls []hive.ToolCall
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if text != "" {
				text += "\n"
			}
			text += b.Text
		case anthropicsdk.ToolUseBlock:
			calls = append(calls, hive.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: convertToolInput(b.Input),
			})
		}
	}
	return hive.ChatOut{
		Message: hive.ChatMessage{Role: "assistant", Content: text},
		Tools:   calls,
	}
}

func convertToolInput(input any) map[string]any {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{"_raw": input}
}

var _ hive.ModelClient = (*Client)(nil)
