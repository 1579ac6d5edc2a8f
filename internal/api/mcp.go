package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

const maxBFileTerms = 1000

// NewMCPServer creates an MCP server with all oeis tools and resources registered.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"oeis",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("oeis: search the On-Line Encyclopedia of Integer Sequences with a local cache, bookmarks and history."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_sequences",
			mcp.WithDescription("Search OEIS by terms (e.g. 1,2,3,5,8), words, or prefixed queries like id:A000045 or keyword:nice."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("start", mcp.Description("Result offset for paging (default 0)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_sequence",
			mcp.WithDescription("Fetch a single sequence by A-number and record it as viewed."),
			mcp.WithString("id", mcp.Description("A-number, e.g. A000045 or 45"), mcp.Required()),
		),
		mcpGetSequence(deps),
	)

	s.AddTool(
		mcp.NewTool("random_sequence",
			mcp.WithDescription("Fetch a randomly chosen sequence."),
		),
		mcpRandom(deps),
	)

	s.AddTool(
		mcp.NewTool("get_bfile",
			mcp.WithDescription("Fetch the extended term listing (b-file) of a sequence."),
			mcp.WithString("id", mcp.Description("A-number"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of terms (default 100, max 1000)")),
		),
		mcpGetBFile(deps),
	)

	s.AddTool(
		mcp.NewTool("add_bookmark",
			mcp.WithDescription("Bookmark a sequence, optionally with notes."),
			mcp.WithString("id", mcp.Description("A-number"), mcp.Required()),
			mcp.WithString("notes", mcp.Description("Free-form notes")),
		),
		mcpAddBookmark(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_bookmark",
			mcp.WithDescription("Remove a bookmark."),
			mcp.WithString("id", mcp.Description("A-number"), mcp.Required()),
		),
		mcpRemoveBookmark(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"oeis://bookmarks",
			"Bookmarks",
			mcp.WithResourceDescription("Bookmarked sequences, most recent first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBookmarks(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"oeis://history",
			"Search History",
			mcp.WithResourceDescription("Last 20 distinct search queries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"oeis://recent",
			"Recently Viewed",
			mcp.WithResourceDescription("Last 20 viewed sequences"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

type sequenceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data string `json:"data"`
}

func summarize(seqs []oeis.Sequence) []sequenceSummary {
	out := make([]sequenceSummary, len(seqs))
	for i, s := range seqs {
		out[i] = sequenceSummary{ID: s.ANumber(), Name: s.Name, Data: s.Data}
	}
	return out
}

func mcpSearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		start := req.GetInt("start", 0)
		if start < 0 {
			start = 0
		}

		resp, _, err := deps.Catalog.Search(ctx, query, start, app.Lookup{History: true})
		switch {
		case errors.Is(err, oeis.ErrNoResults):
			return mcpText("[]"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		return mcpJSON(map[string]any{
			"count":   resp.Count,
			"start":   start,
			"results": summarize(resp.Results),
		})
	}
}

func mcpGetSequence(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, errResult := requireNumber(req)
		if errResult != nil {
			return errResult, nil
		}

		seq, _, err := deps.Catalog.Sequence(ctx, n, app.Lookup{})
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		deps.Catalog.RecordView(n)
		return mcpJSON(seq)
	}
}

func mcpRandom(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seq, err := deps.Catalog.Random(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("random pick failed: %v", err)), nil
		}
		return mcpJSON(seq)
	}
}

func mcpGetBFile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, errResult := requireNumber(req)
		if errResult != nil {
			return errResult, nil
		}
		limit := req.GetInt("limit", 100)
		if limit <= 0 {
			limit = 100
		}
		if limit > maxBFileTerms {
			limit = maxBFileTerms
		}

		entries, err := deps.Catalog.BFile(ctx, n)
		if err != nil {
			return mcpError(fmt.Sprintf("b-file fetch failed: %v", err)), nil
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return mcpJSON(entries)
	}
}

func mcpAddBookmark(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, errResult := requireNumber(req)
		if errResult != nil {
			return errResult, nil
		}
		if err := deps.Store.AddBookmark(n, req.GetString("notes", "")); err != nil {
			return mcpError(fmt.Sprintf("failed to save bookmark: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Bookmarked %s", oeis.FormatANumber(n))), nil
	}
}

func mcpRemoveBookmark(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, errResult := requireNumber(req)
		if errResult != nil {
			return errResult, nil
		}
		if err := deps.Store.RemoveBookmark(n); err != nil {
			return mcpError(fmt.Sprintf("failed to remove bookmark: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed bookmark %s", oeis.FormatANumber(n))), nil
	}
}

func mcpResourceBookmarks(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bookmarks, err := deps.Store.Bookmarks()
		if err != nil {
			return nil, fmt.Errorf("failed to list bookmarks: %w", err)
		}
		if bookmarks == nil {
			bookmarks = []storage.Bookmark{}
		}
		return jsonResource(req.Params.URI, bookmarks)
	}
}

func mcpResourceHistory(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.History(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list history: %w", err)
		}

		type historyItem struct {
			Query      string `json:"query"`
			SearchedAt string `json:"searched_at"`
		}
		items := make([]historyItem, len(entries))
		for i, e := range entries {
			items[i] = historyItem{Query: e.Query, SearchedAt: e.SearchedAt.Format(time.RFC3339)}
		}
		return jsonResource(req.Params.URI, items)
	}
}

func mcpResourceRecent(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		views, err := deps.Store.RecentlyViewed(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent views: %w", err)
		}
		if views == nil {
			views = []storage.RecentView{}
		}
		return jsonResource(req.Params.URI, views)
	}
}

func requireNumber(req mcp.CallToolRequest) (int, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return 0, mcpError("id is required")
	}
	n, err := oeis.ParseANumber(id)
	if err != nil {
		return 0, mcpError(fmt.Sprintf("invalid sequence id %q", id))
	}
	return n, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
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
