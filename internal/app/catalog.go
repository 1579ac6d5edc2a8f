package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/oeis/internal/oeis"
)

// RemoteSource is the subset of *oeis.Client used by Catalog.
type RemoteSource interface {
	Search(ctx context.Context, q oeis.SearchQuery, pageSize int) (oeis.Response, error)
	Sequence(ctx context.Context, number int) (*oeis.Sequence, error)
	Random(ctx context.Context) (*oeis.Sequence, error)
	BFile(ctx context.Context, number int) ([]oeis.BFileEntry, error)
}

// Catalog answers one-shot lookups for the command line and the server.
// It reads through the local cache and writes fetched records back.
type Catalog struct {
	Store    Store
	Remote   RemoteSource
	MaxAge   time.Duration
	PageSize int
	Logger   *slog.Logger
}

// Lookup options for a single Catalog call.
type Lookup struct {
	NoCache bool // skip the cache read; results are still written back
	History bool // record the query in search history when it succeeds
}

func (c *Catalog) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Catalog) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return DefaultMaxCacheAge
	}
	return c.MaxAge
}

func (c *Catalog) pageSize() int {
	if c.PageSize <= 0 {
		return DefaultResultsPerPage
	}
	return c.PageSize
}

// Search returns one page of results. Only the first page is served from
// and written to the cache. The boolean reports a cache hit.
func (c *Catalog) Search(ctx context.Context, query string, start int, opt Lookup) (oeis.Response, bool, error) {
	q := oeis.NewSearchQuery(query)
	if q.Query == "" {
		return oeis.Response{}, false, fmt.Errorf("empty query")
	}
	if start > 0 {
		q.Start = start
	}
	if q.Start == 0 && !opt.NoCache {
		resp, ok, err := c.Store.GetCachedSearch(q.Query, c.maxAge())
		if err != nil {
			c.logger().Debug("search cache read failed", "query", q.Query, "error", err)
		}
		if ok {
			c.recordHistory(q.Query, opt)
			return resp, true, nil
		}
	}

	resp, err := c.Remote.Search(ctx, q, c.pageSize())
	if err != nil {
		return oeis.Response{}, false, err
	}
	c.recordHistory(q.Query, opt)
	if q.Start == 0 {
		c.bestEffort("cache search", c.Store.CacheSearch(q.Query, resp))
	}
	for _, seq := range resp.Results {
		c.bestEffort("cache sequence", c.Store.CacheSequence(seq))
	}
	return resp, false, nil
}

// Sequence returns the record for number, or a wrapped oeis.ErrNotFound.
func (c *Catalog) Sequence(ctx context.Context, number int, opt Lookup) (*oeis.Sequence, bool, error) {
	if !opt.NoCache {
		seq, ok, err := c.Store.GetCachedSequence(number, c.maxAge())
		if err != nil {
			c.logger().Debug("sequence cache read failed", "number", number, "error", err)
		}
		if ok {
			return seq, true, nil
		}
	}

	seq, err := c.Remote.Sequence(ctx, number)
	if err != nil {
		return nil, false, err
	}
	if seq == nil {
		return nil, false, fmt.Errorf("%s: %w", oeis.FormatANumber(number), oeis.ErrNotFound)
	}
	c.bestEffort("cache sequence", c.Store.CacheSequence(*seq))
	return seq, false, nil
}

// Random picks a random sequence and caches it.
func (c *Catalog) Random(ctx context.Context) (*oeis.Sequence, error) {
	seq, err := c.Remote.Random(ctx)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, fmt.Errorf("random pick: %w", oeis.ErrNotFound)
	}
	c.bestEffort("cache sequence", c.Store.CacheSequence(*seq))
	return seq, nil
}

// BFile fetches the extended listing. B-files are never cached.
func (c *Catalog) BFile(ctx context.Context, number int) ([]oeis.BFileEntry, error) {
	return c.Remote.BFile(ctx, number)
}

// RecordView marks number as viewed.
func (c *Catalog) RecordView(number int) {
	c.bestEffort("record view", c.Store.RecordView(number))
}

// recordHistory adds a query that produced results to the search history.
func (c *Catalog) recordHistory(query string, opt Lookup) {
	if opt.History {
		c.bestEffort("add search history", c.Store.AddSearchHistory(query))
	}
}

func (c *Catalog) bestEffort(op string, err error) {
	if err != nil {
		c.logger().Debug(op+" failed", "error", err)
	}
}
