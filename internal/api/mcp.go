package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"listkeep/internal/list"
	"listkeep/internal/translate"
)

// MCPDeps holds dependencies for the MCP server. Owner is the user every
// tool call acts on; the MCP transport carries no authentication, so the
// server is bound to one account at startup.
type MCPDeps struct {
	Lists *list.Service
	Owner string
}

// NewMCPServer creates an MCP server exposing the list through tools and
// resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"listkeep",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("listkeep — a personal list managed in plain language."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("request",
			mcp.WithDescription("Process a natural-language request against the list: add, change, remove, or show items."),
			mcp.WithString("text", mcp.Description("The request, e.g. 'add milk to my list'"), mcp.Required()),
		),
		mcpRequest(deps),
	)

	s.AddTool(
		mcp.NewTool("add_item",
			mcp.WithDescription("Add one item to the list directly, without going through the language model."),
			mcp.WithString("content", mcp.Description("Item content"), mcp.Required()),
		),
		mcpAddItem(deps),
	)

	s.AddTool(
		mcp.NewTool("update_item",
			mcp.WithDescription("Replace an item's content. The current content must match exactly."),
			mcp.WithString("from", mcp.Description("Current item content"), mcp.Required()),
			mcp.WithString("to", mcp.Description("New item content"), mcp.Required()),
		),
		mcpUpdateItem(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_item",
			mcp.WithDescription("Remove an item from the list. The content must match exactly."),
			mcp.WithString("content", mcp.Description("Item content"), mcp.Required()),
		),
		mcpRemoveItem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_items",
			mcp.WithDescription("Return every item on the list as JSON."),
		),
		mcpListItems(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"listkeep://items",
			"List Items",
			mcp.WithResourceDescription("Current list items as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceItems(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"listkeep://history",
			"Recent Requests",
			mcp.WithResourceDescription("Last 10 processed requests"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpRequest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		resp := deps.Lists.ProcessRequest(ctx, deps.Owner, text)
		return mcpOutcome(resp), nil
	}
}

func mcpAddItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		input := fmt.Sprintf("[add_item] %s", content)
		resp := deps.Lists.Apply(deps.Owner, input, translate.Insert{Content: content})
		return mcpOutcome(resp), nil
	}
}

func mcpUpdateItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		from, err := req.RequireString("from")
		if err != nil {
			return mcpError("from is required"), nil
		}
		to, err := req.RequireString("to")
		if err != nil {
			return mcpError("to is required"), nil
		}

		input := fmt.Sprintf("[update_item] %s -> %s", from, to)
		resp := deps.Lists.Apply(deps.Owner, input, translate.Update{Content: to, Target: from})
		return mcpOutcome(resp), nil
	}
}

func mcpRemoveItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		input := fmt.Sprintf("[remove_item] %s", content)
		resp := deps.Lists.Apply(deps.Owner, input, translate.Delete{Target: content})
		return mcpOutcome(resp), nil
	}
}

func mcpListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := deps.Lists.Items(deps.Owner)
		if err != nil {
			return mcpError(fmt.Sprintf("listing items failed: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpOutcome renders a list response for an MCP client. Failures the caller
// can do nothing about are flagged as errors; everything else, including
// conflicts and clarification requests, is a plain answer.
func mcpOutcome(resp list.Response) *mcp.CallToolResult {
	switch resp.Outcome {
	case list.OutcomeError, list.OutcomeUnavailable:
		return mcpError(resp.Message)
	}

	msg := resp.Message
	if resp.Suggestion != nil {
		msg += "\n" + resp.Suggestion.Message
		if len(resp.Suggestion.Items) > 0 {
			msg += " " + strings.Join(resp.Suggestion.Items, ", ")
		}
	}
	return mcpText(msg)
}

func mcpResourceItems(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := deps.Lists.Items(deps.Owner)
		if err != nil {
			return nil, fmt.Errorf("listing items: %w", err)
		}
		if items == nil {
			items = []list.ItemView{}
		}

		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshaling items: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		history, err := deps.Lists.History(deps.Owner, 10)
		if err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		if history == nil {
			history = []list.RequestView{}
		}

		b, err := json.Marshal(history)
		if err != nil {
			return nil, fmt.Errorf("marshaling history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
