package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

const testToken = "test-token-12345"

// --- mocks ---

type mockRemote struct {
	searches   atomic.Int32
	searchFn   func(q oeis.SearchQuery) (oeis.Response, error)
	sequenceFn func(n int) (*oeis.Sequence, error)
	randomFn   func() (*oeis.Sequence, error)
	bfileFn    func(n int) ([]oeis.BFileEntry, error)
}

func (m *mockRemote) Search(_ context.Context, q oeis.SearchQuery, _ int) (oeis.Response, error) {
	m.searches.Add(1)
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	return oeis.Response{Count: 1, Results: []oeis.Sequence{{Number: 45, Name: "Fibonacci numbers", Data: "0,1,1,2,3,5"}}}, nil
}

func (m *mockRemote) Sequence(_ context.Context, n int) (*oeis.Sequence, error) {
	if m.sequenceFn != nil {
		return m.sequenceFn(n)
	}
	return &oeis.Sequence{Number: n, Name: "seq " + oeis.FormatANumber(n)}, nil
}

func (m *mockRemote) Random(_ context.Context) (*oeis.Sequence, error) {
	if m.randomFn != nil {
		return m.randomFn()
	}
	return &oeis.Sequence{Number: 1113, Name: "random"}, nil
}

func (m *mockRemote) BFile(_ context.Context, n int) ([]oeis.BFileEntry, error) {
	if m.bfileFn != nil {
		return m.bfileFn(n)
	}
	return []oeis.BFileEntry{{Index: 0, Value: "0"}, {Index: 1, Value: "1"}, {Index: 2, Value: "1"}}, nil
}

// --- helpers ---

func newTestDeps(t *testing.T, token string) (Deps, *storage.Store, *mockRemote) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	remote := &mockRemote{}
	return Deps{
		Catalog: &app.Catalog{Store: store, Remote: remote, MaxAge: time.Hour, PageSize: 10},
		Store:   store,
		Token:   token,
	}, store, remote
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Type
}

// --- tests ---

func TestHealth(t *testing.T) {
	deps, _, _ := newTestDeps(t, testToken)
	rec := serve(NewHandler(deps), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsUnauthenticated(t *testing.T) {
	deps, _, _ := newTestDeps(t, testToken)
	rec := serve(NewHandler(deps), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	deps, _, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/stats", "", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_error", errorType(t, rec))

	rec = serve(h, authReq(http.MethodGet, "/stats", "", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, authReq(http.MethodGet, "/stats", "", testToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoTokenDisablesAuth(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	rec := serve(NewHandler(deps), authReq(http.MethodGet, "/stats", "", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearch_CachesFirstPage(t *testing.T) {
	deps, store, remote := newTestDeps(t, "")
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/search?q=1,1,2,3,5", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int             `json:"count"`
		Cached  bool            `json:"cached"`
		Results []oeis.Sequence `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Cached)
	require.Len(t, body.Results, 1)
	assert.Equal(t, 45, body.Results[0].Number)

	rec = serve(h, authReq(http.MethodGet, "/search?q=1,1,2,3,5", "", ""))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Cached)
	assert.EqualValues(t, 1, remote.searches.Load())

	hist, err := store.History(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "1,1,2,3,5", hist[0].Query)
}

func TestSearch_Errors(t *testing.T) {
	deps, store, remote := newTestDeps(t, "")
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/search", "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	remote.searchFn = func(oeis.SearchQuery) (oeis.Response, error) { return oeis.Response{}, oeis.ErrNoResults }
	rec = serve(h, authReq(http.MethodGet, "/search?q=zzz", "", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	remote.searchFn = func(oeis.SearchQuery) (oeis.Response, error) { return oeis.Response{}, oeis.ErrTooManyResults }
	rec = serve(h, authReq(http.MethodGet, "/search?q=1", "", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "too_many_results", errorType(t, rec))

	remote.searchFn = func(oeis.SearchQuery) (oeis.Response, error) { return oeis.Response{}, io.ErrUnexpectedEOF }
	rec = serve(h, authReq(http.MethodGet, "/search?q=2", "", ""))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	hist, err := store.History(10)
	require.NoError(t, err)
	assert.Empty(t, hist, "failed searches are not recorded")
}

func TestGetSequence_RecordsView(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/sequences/A000040", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var seq oeis.Sequence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seq))
	assert.Equal(t, 40, seq.Number)

	v, err := store.GetViewRecord(40)
	require.NoError(t, err)
	assert.Equal(t, 1, v.ViewCount)

	recent, err := store.RecentlyViewed(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "seq A000040", recent[0].Name)
}

func TestGetSequence_BadAndMissing(t *testing.T) {
	deps, _, remote := newTestDeps(t, "")
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/sequences/banana", "", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	remote.sequenceFn = func(int) (*oeis.Sequence, error) { return nil, nil }
	rec = serve(h, authReq(http.MethodGet, "/sequences/A999999", "", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBFile(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	rec := serve(NewHandler(deps), authReq(http.MethodGet, "/sequences/45/bfile", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []oeis.BFileEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)
}

func TestBookmarks_RoundTrip(t *testing.T) {
	deps, store, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodPut, "/bookmarks/A000045", `{"notes":"golden"}`, testToken))
	require.Equal(t, http.StatusOK, rec.Code)

	ok, err := store.IsBookmarked(45)
	require.NoError(t, err)
	assert.True(t, ok)

	rec = serve(h, authReq(http.MethodGet, "/bookmarks", "", testToken))
	var list []storage.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "golden", list[0].Notes)

	rec = serve(h, authReq(http.MethodDelete, "/bookmarks/45", "", testToken))
	require.Equal(t, http.StatusOK, rec.Code)
	ok, err = store.IsBookmarked(45)
	require.NoError(t, err)
	assert.False(t, ok)

	rec = serve(h, authReq(http.MethodGet, "/bookmarks", "", testToken))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBookmarks_InvalidBody(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	rec := serve(NewHandler(deps), authReq(http.MethodPut, "/bookmarks/45", `{not json`, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndClearCache(t *testing.T) {
	deps, store, _ := newTestDeps(t, "")
	h := NewHandler(deps)
	require.NoError(t, store.CacheSequence(oeis.Sequence{Number: 45}))
	require.NoError(t, store.AddBookmark(45, ""))

	rec := serve(h, authReq(http.MethodGet, "/stats", "", ""))
	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.SequenceCache)
	assert.Equal(t, 1, stats.Bookmarks)

	rec = serve(h, authReq(http.MethodDelete, "/cache", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SequenceCache)
	assert.Equal(t, 1, stats.Bookmarks)
}

func TestHistoryAndRecent_Empty(t *testing.T) {
	deps, _, _ := newTestDeps(t, "")
	h := NewHandler(deps)

	rec := serve(h, authReq(http.MethodGet, "/history?limit=5", "", ""))
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = serve(h, authReq(http.MethodGet, "/recent", "", ""))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestParseIntParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?a=7&b=-1&c=900&d=x", nil)
	assert.Equal(t, 7, parseIntParam(r, "a", 1, 100))
	assert.Equal(t, 1, parseIntParam(r, "b", 1, 100))
	assert.Equal(t, 100, parseIntParam(r, "c", 1, 100))
	assert.Equal(t, 1, parseIntParam(r, "d", 1, 100))
	assert.Equal(t, 3, parseIntParam(r, "missing", 3, 100))
}
