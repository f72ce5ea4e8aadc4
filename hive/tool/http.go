// Package tool collects hive.Tool adapters: an HTTP tool for calling out
// to external services, and a mock for deterministic tests.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hiveflow/hive/hive"
)

// HTTPTool issues GET/POST requests and reports the response as a JSON
// ToolResult.
//
// Call arguments:
//   - url (string, required)
//   - method ("GET" or "POST", defaults to "GET")
//   - headers (map[string]any of string values)
//   - body (string, request body for POST)
type HTTPTool struct {
	client *http.Client
	spec   hive.ToolSpec
}

// NewHTTPTool returns an HTTPTool using http.DefaultClient's timeout
// semantics; request deadlines flow through the call's context.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{
		client: &http.Client{},
		spec: hive.ToolSpec{
			Name:        "http_request",
			Description: "Issues an HTTP GET or POST request and returns status, headers and body.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":     map[string]any{"type": "string"},
					"method":  map[string]any{"type": "string", "enum": []string{"GET", "POST"}},
					"headers": map[string]any{"type": "object"},
					"body":    map[string]any{"type": "string"},
				},
				"required": []string{"url"},
			},
		},
	}
}

// Spec implements hive.Tool.
func (h *HTTPTool) Spec() hive.ToolSpec { return h.spec }

// Call implements hive.Tool.
func (h *HTTPTool) Call(ctx context.Context, args map[string]any) (hive.ToolResult, error) {
	urlStr, ok := args["url"].(string)
	if !ok || urlStr == "" {
		return hive.ToolResult{Content: "url parameter required (string)", IsError: true}, nil
	}

	method := "GET"
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return hive.ToolResult{Content: fmt.Sprintf("unsupported HTTP method: %s", method), IsError: true}, nil
	}

	var body io.Reader
	if bodyStr, ok := args["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return hive.ToolResult{}, fmt.Errorf("hive/tool: build request: %w", err)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return hive.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return hive.ToolResult{}, fmt.Errorf("hive/tool: read response: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	payload, err := json.Marshal(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	})
	if err != nil {
		return hive.ToolResult{}, fmt.Errorf("hive/tool: marshal result: %w", err)
	}

	return hive.ToolResult{Content: string(payload), IsError: resp.StatusCode >= 400}, nil
}

var _ hive.Tool = (*HTTPTool)(nil)
