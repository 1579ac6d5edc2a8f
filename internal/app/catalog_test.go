package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

func newCatalog(t *testing.T) (*Catalog, *storage.Store, *stubFetcher) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newStubFetcher()
	return &Catalog{Store: store, Remote: f, MaxAge: time.Hour, PageSize: 10}, store, f
}

func TestCatalog_SearchReadsThroughCache(t *testing.T) {
	c, store, f := newCatalog(t)
	ctx := context.Background()

	resp, hit, err := c.Search(ctx, "fibonacci", 0, Lookup{History: true})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 45, resp.Results[0].Number)

	resp, hit, err = c.Search(ctx, "  fibonacci ", 0, Lookup{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 45, resp.Results[0].Number)
	assert.Equal(t, 1, f.searchCount())

	_, hit, err = c.Search(ctx, "fibonacci", 0, Lookup{NoCache: true})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.searchCount())

	seq, ok, err := store.GetCachedSequence(45, storage.NoExpiry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Fibonacci numbers", seq.Name)

	hist, err := store.History(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "fibonacci", hist[0].Query)
}

func TestCatalog_LaterPagesBypassCache(t *testing.T) {
	c, _, f := newCatalog(t)
	ctx := context.Background()

	_, _, err := c.Search(ctx, "primes", 10, Lookup{})
	require.NoError(t, err)
	_, hit, err := c.Search(ctx, "primes", 10, Lookup{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.searchCount())
}

func TestCatalog_FailedSearchNotRecorded(t *testing.T) {
	c, store, _ := newCatalog(t)
	ctx := context.Background()

	_, _, err := c.Search(ctx, "no such thing", 0, Lookup{History: true})
	require.ErrorIs(t, err, oeis.ErrNoResults)

	hist, err := store.History(10)
	require.NoError(t, err)
	assert.Empty(t, hist)

	_, _, err = c.Search(ctx, "primes", 0, Lookup{History: true})
	require.NoError(t, err)
	_, hit, err := c.Search(ctx, "primes", 0, Lookup{History: true})
	require.NoError(t, err)
	require.True(t, hit)

	hist, err = store.History(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "primes", hist[0].Query)
}

func TestCatalog_EmptyQuery(t *testing.T) {
	c, _, _ := newCatalog(t)
	_, _, err := c.Search(context.Background(), "   ", 0, Lookup{})
	assert.Error(t, err)
}

func TestCatalog_SequenceNotFound(t *testing.T) {
	c, _, f := newCatalog(t)
	f.sequenceFn = func(int) (*oeis.Sequence, error) { return nil, nil }

	_, _, err := c.Sequence(context.Background(), 999999, Lookup{})
	assert.ErrorIs(t, err, oeis.ErrNotFound)
}

func TestCatalog_SequenceCacheHit(t *testing.T) {
	c, store, f := newCatalog(t)
	require.NoError(t, store.CacheSequence(oeis.Sequence{Number: 40, Name: "cached primes"}))
	f.sequenceFn = func(int) (*oeis.Sequence, error) {
		t.Fatal("remote called on cache hit")
		return nil, nil
	}

	seq, hit, err := c.Sequence(context.Background(), 40, Lookup{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached primes", seq.Name)
}

func TestCatalog_RandomCaches(t *testing.T) {
	c, store, _ := newCatalog(t)
	seq, err := c.Random(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1113, seq.Number)

	c.RecordView(seq.Number)
	rec, err := store.GetViewRecord(1113)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ViewCount)

	_, ok, err := store.GetCachedSequence(1113, storage.NoExpiry)
	require.NoError(t, err)
	assert.True(t, ok)
}
