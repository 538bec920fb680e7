package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
)

// Handlers holds dependencies for the tool handlers.
type Handlers struct {
	runner   Runner
	describe Describer
}

// NewHandlers creates a Handlers instance.
func NewHandlers(runner Runner, describe Describer) *Handlers {
	return &Handlers{runner: runner, describe: describe}
}

// PageRequest is the argument set shared by both tools.
type PageRequest struct {
	URL string `json:"url"`
}

// ClassifyResult is returned by classify_page.
type ClassifyResult struct {
	Applicable bool         `json:"applicable"`
	Host       string       `json:"host,omitempty"`
	Page       page.Context `json:"page"`
}

func decodePage(req mcp.CallToolRequest) (PageRequest, *mcp.CallToolResult) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return input, errorResult(explain.Failure{Message: "invalid arguments", Detail: err.Error()})
	}
	input.URL = strings.TrimSpace(input.URL)
	if input.URL == "" {
		return input, errorResult(explain.Failure{Message: "url is required"})
	}
	return input, nil
}

// HandleClassify handles the classify_page tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, res := decodePage(req)
	if res != nil {
		return res, nil
	}
	pc, host := explain.Classify(input.URL)
	return successResult(ClassifyResult{Applicable: pc.Supported(), Host: host, Page: pc})
}

// HandleExplain handles the explain_page tool call.
func (h *Handlers) HandleExplain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, res := decodePage(req)
	if res != nil {
		return res, nil
	}
	out, err := h.runner.Run(ctx, input.URL)
	if err != nil {
		return errorResult(h.describe.Describe(err, out.Page.Kind)), nil
	}
	if !out.Applicable() || out.Result == nil {
		return successResult(ClassifyResult{Applicable: false, Host: out.Host, Page: out.Page})
	}
	return successResult(out.Result)
}

// errorResult reports a failure with IsError set so clients treat it as one.
// Only the user-facing message and hint are included.
func errorResult(f explain.Failure) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"message":    f.Message,
			"hint":       f.Hint,
			"request_id": f.RequestID,
		},
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
