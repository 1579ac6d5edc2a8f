package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/oeis/internal/oeis"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPServer_Builds(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	if NewMCPServer(deps, "test") == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Search(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")
	handler := mcpSearch(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_sequences", map[string]interface{}{
		"query": "fibonacci",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var body struct {
		Results []sequenceSummary `json:"results"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].ID != "A000045" {
		t.Fatalf("unexpected results: %+v", body.Results)
	}

	hist, err := store.History(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
}

func TestMCPTool_Search_NoResults(t *testing.T) {
	deps, _, remote := newTestDeps(t, "")
	remote.searchFn = func(oeis.SearchQuery) (oeis.Response, error) { return oeis.Response{}, oeis.ErrNoResults }

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_sequences", map[string]interface{}{
		"query": "nothing here",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || toolText(t, result) != "[]" {
		t.Fatalf("expected empty list, got %q", toolText(t, result))
	}
}

func TestMCPTool_Search_TooMany(t *testing.T) {
	deps, _, remote := newTestDeps(t, "")
	remote.searchFn = func(oeis.SearchQuery) (oeis.Response, error) { return oeis.Response{}, oeis.ErrTooManyResults }

	result, _ := mcpSearch(deps)(context.Background(), makeCallToolRequest("search_sequences", map[string]interface{}{
		"query": "1",
	}))
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_GetSequence(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")

	result, err := mcpGetSequence(deps)(context.Background(), makeCallToolRequest("get_sequence", map[string]interface{}{
		"id": "A000045",
	}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v %s", err, toolText(t, result))
	}

	var seq oeis.Sequence
	if err := json.Unmarshal([]byte(toolText(t, result)), &seq); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.Number != 45 {
		t.Fatalf("Number = %d, want 45", seq.Number)
	}
	if _, err := store.GetViewRecord(45); err != nil {
		t.Fatalf("view not recorded: %v", err)
	}
}

func TestMCPTool_GetSequence_InvalidID(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	result, _ := mcpGetSequence(deps)(context.Background(), makeCallToolRequest("get_sequence", map[string]interface{}{
		"id": "B12",
	}))
	if !result.IsError {
		t.Fatal("expected error result")
	}

	result, _ = mcpGetSequence(deps)(context.Background(), makeCallToolRequest("get_sequence", map[string]interface{}{}))
	if !result.IsError || toolText(t, result) != "id is required" {
		t.Fatalf("unexpected result: %s", toolText(t, result))
	}
}

func TestMCPTool_GetBFile_Limit(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	result, _ := mcpGetBFile(deps)(context.Background(), makeCallToolRequest("get_bfile", map[string]interface{}{
		"id":    "45",
		"limit": 2,
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var entries []oeis.BFileEntry
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestMCPTool_Bookmarks(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")

	result, _ := mcpAddBookmark(deps)(context.Background(), makeCallToolRequest("add_bookmark", map[string]interface{}{
		"id":    "A000040",
		"notes": "primes",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if ok, _ := store.IsBookmarked(40); !ok {
		t.Fatal("bookmark not stored")
	}

	contents, err := mcpResourceBookmarks(deps)(context.Background(), makeReadResourceRequest("oeis://bookmarks"))
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var list []map[string]any
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(list) != 1 || list[0]["notes"] != "primes" {
		t.Fatalf("unexpected bookmarks: %s", text)
	}

	result, _ = mcpRemoveBookmark(deps)(context.Background(), makeCallToolRequest("remove_bookmark", map[string]interface{}{
		"id": "40",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if ok, _ := store.IsBookmarked(40); ok {
		t.Fatal("bookmark still present")
	}
}

func TestMCPResource_HistoryAndRecent(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")
	if err := store.AddSearchHistory("primes"); err != nil {
		t.Fatal(err)
	}

	contents, err := mcpResourceHistory(deps)(context.Background(), makeReadResourceRequest("oeis://history"))
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if tc.MIMEType != "application/json" {
		t.Fatalf("MIMEType = %q", tc.MIMEType)
	}
	var items []map[string]string
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 1 || items[0]["query"] != "primes" {
		t.Fatalf("unexpected history: %s", tc.Text)
	}

	contents, err = mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("oeis://recent"))
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if got := contents[0].(mcp.TextResourceContents).Text; got != "[]" {
		t.Fatalf("recent = %s, want []", got)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	searchHandler := mcpSearch(deps)
	bookmarkHandler := mcpAddBookmark(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := searchHandler(context.Background(), makeCallToolRequest("search_sequences", map[string]interface{}{
				"query": "fibonacci",
			}))
			if err != nil {
				errs <- err
			}
		}()
		go func(i int) {
			defer wg.Done()
			_, err := bookmarkHandler(context.Background(), makeCallToolRequest("add_bookmark", map[string]interface{}{
				"id": oeis.FormatANumber(i + 1),
			}))
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}
