// Package google adapts Google's Gemini API to hive.ModelClient.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hiveflow/hive/hive"
)

// Client implements hive.ModelClient against Gemini models.
type Client struct {
	apiKey    string
	modelName string
}

// New returns a Client for modelName; an empty modelName defaults to
// gemini-2.5-flash.
func New(apiKey, modelName string) *Client {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &Client{apiKey: apiKey, modelName: modelName}
}

// Chat implements hive.ModelClient. Gemini has no separate tool-call ID
// concept, so returned hive.ToolCall.ID is left empty.
func (c *Client) Chat(ctx context.Context, messages []hive.ChatMessage, tools []hive.ToolSpec) (hive.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return hive.ChatOut{}, err
	}
	if c.apiKey == "" {
		return hive.ChatOut{}, errors.New("hive/model/google: API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return hive.ChatOut{}, fmt.Errorf("hive/model/google: create client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}

	resp, err := genModel.GenerateContent(ctx, convertMessages(messages)...)
	if err != nil {
		return hive.ChatOut{}, fmt.Errorf("hive/model/google: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []hive.ChatMessage) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertTools(tools []hive.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			propMap, ok := val.(map[string]any)
			if !ok {
				continue
			}
			propSchema := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				propSchema.Type = convertTypeString(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				propSchema.Description = desc
			}
			properties[key] = propSchema
		}
		result.Properties = properties
	}
	if required, ok := schema["required"].([]string); ok {
		result.Required = required
	} else if required, ok := schema["required"].([]any); ok {
		strs := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				strs = append(strs, s)
			}
		}
		result.Required = strs
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) hive.ChatOut {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return hive.ChatOut{}
	}
	var text string
	var calls []hive.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if text != "" {
				text += "\n"
			}
			text += string(p)
		case genai.FunctionCall:
			calls = append(calls, hive.ToolCall{Name: p.Name, Arguments: p.Args})
		}
	}
	return hive.ChatOut{
		Message: hive.ChatMessage{Role: "assistant", Content: text},
		Tools:   calls,
	}
}

// SafetyFilterError reports a Gemini safety-filter block.
type SafetyFilterError struct {
	Reason   string
	Category string
}

func (e *SafetyFilterError) Error() string {
	return "hive/model/google: content blocked by safety filter: " + e.Category
}

var _ hive.ModelClient = (*Client)(nil)
