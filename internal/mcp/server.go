// Package mcp exposes page classification and explanation as MCP tools.
package mcp

import (
	"context"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/page"
)

// Runner runs the explanation chain. *explain.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, rawURL string) (explain.Outcome, error)
}

// Describer turns errors into user-facing failures. *explain.Service implements it.
type Describer interface {
	Describe(err error, kind page.Kind) explain.Failure
}

var classifyToolDef = mcp.NewTool("classify_page",
	mcp.WithDescription("Classify a Salesforce setup URL as a validation rule, flow, Apex class or formula field page and extract the resource id."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Full URL of the Salesforce page")),
)

var explainToolDef = mcp.NewTool("explain_page",
	mcp.WithDescription("Fetch the metadata behind a Salesforce setup URL and return a plain-language explanation of it."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Full URL of the Salesforce page")),
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"classify_page": {
		def:     classifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClassify },
	},
	"explain_page": {
		def:     explainToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExplain },
	},
}

// AllToolNames returns the registered tool names, sorted.
func AllToolNames() []string {
	names := lo.Keys(toolRegistry)
	slices.Sort(names)
	return names
}

// NewServer creates an MCP server with the sfexplain tools registered.
func NewServer(runner Runner, describe Describer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sfexplain",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(runner, describe)
	for _, name := range AllToolNames() {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the tools over stdio.
func Run(runner Runner, describe Describer, version string) error {
	return server.ServeStdio(NewServer(runner, describe, version))
}
