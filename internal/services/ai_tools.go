// Package services implements clients for the external collaborators the
// workflow engine delegates to: the AI-inference service behind ai_tool steps
// and the task system behind human_task steps.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadpilot/governance/internal/workflow"
)

const defaultCallTimeout = 120 * time.Second

// AIToolClient invokes tools on the AI-inference service. It implements
// workflow.ToolInvoker: the workflow engine decides WHEN a tool runs and under
// which governance decision; this client only carries the call.
type AIToolClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewAIToolClient creates a client for the configured inference endpoint.
// callTimeout bounds a single tool invocation; per-step timeouts configured on
// workflow steps cancel the request context earlier when they are tighter.
func NewAIToolClient(baseURL, apiKey string, callTimeout time.Duration) *AIToolClient {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &AIToolClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: callTimeout,
		},
	}
}

// invokeRequest is the wire form of a tool invocation
type invokeRequest struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// InvokeTool calls POST {base}/v1/tools/invoke and decodes the tool result.
// A non-2xx status is an invocation error (the engine's retry policy applies);
// a 2xx response with success=false is a tool-level failure carried in the
// result.
func (c *AIToolClient) InvokeTool(ctx context.Context, toolName string, params map[string]any) (*workflow.ToolResult, error) {
	body, err := json.Marshal(invokeRequest{Tool: toolName, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("encode tool invocation for %s: %w", toolName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/tools/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke tool %s: %w", toolName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("invoke tool %s: unexpected status %d: %s", toolName, resp.StatusCode, string(snippet))
	}

	var result workflow.ToolResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tool result for %s: %w", toolName, err)
	}
	return &result, nil
}
