package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. Every call acts on behalf
// of OwnerID.
type MCPDeps struct {
	Store      *storage.Store
	Fetcher    *pipeline.Fetcher
	Translator *pipeline.Translator
	Recorder   *runlog.Recorder
	OwnerID    string
}

// NewMCPServer creates an MCP server with the watchfeed tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"watchfeed",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("watchfeed caches recent posts of watchlist members and translates them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("fetch_watchlist",
			mcp.WithDescription("Fetch recent posts of every member of a watchlist and store the new ones."),
			mcp.WithString("watchlist_id", mcp.Description("Watchlist ID"), mcp.Required()),
		),
		mcpFetchWatchlist(deps),
	)

	s.AddTool(
		mcp.NewTool("translate_posts",
			mcp.WithDescription("Translate untranslated posts of a watchlist, or one post when post_id is given."),
			mcp.WithString("watchlist_id", mcp.Description("Watchlist ID"), mcp.Required()),
			mcp.WithString("post_id", mcp.Description("Translate only this post")),
			mcp.WithNumber("limit", mcp.Description("Maximum posts to translate (default 20, max 50)")),
		),
		mcpTranslatePosts(deps),
	)

	s.AddTool(
		mcp.NewTool("list_run_logs",
			mcp.WithDescription("List recent fetch and translate runs of a watchlist, newest first."),
			mcp.WithString("watchlist_id", mcp.Description("Watchlist ID"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum entries (default 50, max 200)")),
		),
		mcpListRunLogs(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"watchfeed://watchlists",
			"Watchlists",
			mcp.WithResourceDescription("Watchlists with their member handles as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceWatchlists(deps),
	)

	return s
}

func mcpFetchWatchlist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("watchlist_id")
		if err != nil {
			return mcpError("watchlist_id is required"), nil
		}

		seq, err := deps.Fetcher.Start(context.WithoutCancel(ctx), deps.OwnerID, id)
		if err != nil {
			return mcpError(runErrorMessage(err)), nil
		}
		done, ok := pipeline.Drain(seq)
		if !ok {
			return mcpError("fetch run ended without a summary"), nil
		}
		return mcpJSON(done.Data)
	}
}

func mcpTranslatePosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("watchlist_id")
		if err != nil {
			return mcpError("watchlist_id is required"), nil
		}
		if err := deps.Translator.CheckConfigured(ctx, deps.OwnerID); err != nil {
			return mcpError(runErrorMessage(err)), nil
		}

		if postID := req.GetString("post_id", ""); postID != "" {
			summary, err := deps.Translator.TranslateOne(ctx, deps.OwnerID, id, postID)
			if err != nil {
				return mcpError(runErrorMessage(err)), nil
			}
			return mcpJSON(summary)
		}

		seq, err := deps.Translator.Start(ctx, deps.OwnerID, id, req.GetInt("limit", pipeline.DefaultTranslateLimit))
		if err != nil {
			return mcpError(runErrorMessage(err)), nil
		}
		done, ok := pipeline.Drain(seq)
		if !ok {
			return mcpError("translate run cancelled"), nil
		}
		return mcpJSON(done.Data)
	}
}

func mcpListRunLogs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("watchlist_id")
		if err != nil {
			return mcpError("watchlist_id is required"), nil
		}
		wl, err := deps.Store.GetWatchlist(id)
		if err != nil || wl.OwnerID != deps.OwnerID {
			return mcpError("watchlist not found"), nil
		}

		logs, err := deps.Recorder.List(wl.ID, req.GetInt("limit", runlog.DefaultListLimit))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list run logs: %v", err)), nil
		}
		return mcpJSON(logs)
	}
}

func mcpResourceWatchlists(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		lists, err := deps.Store.ListWatchlists(deps.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to list watchlists: %w", err)
		}

		type watchlistSummary struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Members []string `json:"members"`
		}

		summaries := make([]watchlistSummary, len(lists))
		for i, wl := range lists {
			members, err := deps.Store.ListMembers(wl.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list members of %s: %w", wl.ID, err)
			}
			handles := make([]string, len(members))
			for j, m := range members {
				handles[j] = m.Username
			}
			summaries[i] = watchlistSummary{ID: wl.ID, Name: wl.Name, Members: handles}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal watchlists: %w", err)
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

func runErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "watchlist or post not found"
	case errors.Is(err, provider.ErrNotConfigured):
		return "provider API key not configured"
	}
	return err.Error()
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
