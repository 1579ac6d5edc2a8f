package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kalambet/oeis/internal/oeis"
)

// --- Cache ---

// NoExpiry accepts cached records regardless of age.
const NoExpiry = time.Duration(math.MaxInt64)

type cacheTable struct {
	keyCol, payloadCol string
}

var cacheTables = map[Collection]cacheTable{
	SearchCache:   {keyCol: "query", payloadCol: "response"},
	SequenceCache: {keyCol: "number", payloadCol: "data"},
}

func (s *Store) putCached(c Collection, key any, payload any) error {
	tbl, ok := cacheTables[c]
	if !ok {
		return fmt.Errorf("unknown collection %d", c)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", c, err)
	}
	_, err = s.db.Exec(fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(%[2]s) DO UPDATE SET %[3]s = excluded.%[3]s, cached_at = excluded.cached_at`,
		c, tbl.keyCol, tbl.payloadCol),
		key, string(data), s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", c, err)
	}
	return nil
}

// getCached decodes the payload stored under key into dst. It reports false
// when the record is absent or older than maxAge; expired rows are left in
// place. Pass NoExpiry to accept records of any age.
func (s *Store) getCached(c Collection, key any, maxAge time.Duration, dst any) (bool, error) {
	tbl, ok := cacheTables[c]
	if !ok {
		return false, fmt.Errorf("unknown collection %d", c)
	}

	var payload, cachedAt string
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT %s, cached_at FROM %s WHERE %s = ?", tbl.payloadCol, c, tbl.keyCol), key,
	).Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", c, err)
	}

	at, err := parseTime(cachedAt)
	if err != nil {
		return false, fmt.Errorf("%w: %s %v: bad timestamp %q", ErrCorruptRecord, c, key, cachedAt)
	}
	if s.now().Sub(at) > maxAge {
		return false, nil
	}

	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return false, fmt.Errorf("%w: %s %v: %v", ErrCorruptRecord, c, key, err)
	}
	return true, nil
}

// CacheSearch stores a search response under its normalized query.
func (s *Store) CacheSearch(query string, resp oeis.Response) error {
	return s.putCached(SearchCache, oeis.NormalizeQuery(query), resp)
}

// GetCachedSearch returns the cached response for query if younger than maxAge.
func (s *Store) GetCachedSearch(query string, maxAge time.Duration) (oeis.Response, bool, error) {
	var resp oeis.Response
	ok, err := s.getCached(SearchCache, oeis.NormalizeQuery(query), maxAge, &resp)
	if err != nil || !ok {
		return oeis.Response{}, false, err
	}
	return resp, true, nil
}

// CacheSequence stores a sequence under its number.
func (s *Store) CacheSequence(seq oeis.Sequence) error {
	return s.putCached(SequenceCache, seq.Number, seq)
}

// GetCachedSequence returns the cached sequence if younger than maxAge.
func (s *Store) GetCachedSequence(number int, maxAge time.Duration) (*oeis.Sequence, bool, error) {
	var seq oeis.Sequence
	ok, err := s.getCached(SequenceCache, number, maxAge, &seq)
	if err != nil || !ok {
		return nil, false, err
	}
	return &seq, true, nil
}

// --- History ---

// AddSearchHistory appends a query to the search history.
func (s *Store) AddSearchHistory(query string) error {
	_, err := s.db.Exec(
		"INSERT INTO search_history (query, searched_at) VALUES (?, ?)",
		query, s.timestamp(),
	)
	return err
}

// History returns distinct queries, most recently searched first.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT query, MAX(searched_at) AS last
		FROM search_history
		GROUP BY query
		ORDER BY last DESC, MAX(id) DESC
		LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var at string
		if err := rows.Scan(&e.Query, &at); err != nil {
			return nil, err
		}
		if e.SearchedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing searched_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Views ---

// RecordView inserts a view record or bumps its count and timestamp.
func (s *Store) RecordView(number int) error {
	_, err := s.db.Exec(`
		INSERT INTO viewed_sequences (number, viewed_at, view_count) VALUES (?, ?, 1)
		ON CONFLICT(number) DO UPDATE SET
			view_count = view_count + 1,
			viewed_at = excluded.viewed_at`,
		number, s.timestamp(),
	)
	return err
}

// GetViewRecord returns the view record for number or ErrNotFound.
func (s *Store) GetViewRecord(number int) (ViewRecord, error) {
	var v ViewRecord
	var at string
	err := s.db.QueryRow(
		"SELECT number, viewed_at, view_count FROM viewed_sequences WHERE number = ?", number,
	).Scan(&v.Number, &at, &v.ViewCount)
	if errors.Is(err, sql.ErrNoRows) {
		return ViewRecord{}, ErrNotFound
	}
	if err != nil {
		return ViewRecord{}, err
	}
	if v.ViewedAt, err = parseTime(at); err != nil {
		return ViewRecord{}, fmt.Errorf("parsing viewed_at: %w", err)
	}
	return v, nil
}

// RecentlyViewed returns viewed sequences, most recent first, with names from
// the sequence cache. Views without a decodable cached sequence are skipped.
func (s *Store) RecentlyViewed(limit int) ([]RecentView, error) {
	rows, err := s.db.Query(`
		SELECT v.number, v.viewed_at, v.view_count, c.data
		FROM viewed_sequences v
		LEFT JOIN sequence_cache c ON c.number = v.number
		ORDER BY v.viewed_at DESC, v.number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maxRows := limitOrAll(limit)
	var out []RecentView
	for rows.Next() {
		var r RecentView
		var at string
		var data sql.NullString
		if err := rows.Scan(&r.Number, &at, &r.ViewCount, &data); err != nil {
			return nil, err
		}
		if !data.Valid {
			continue
		}
		var seq oeis.Sequence
		if err := json.Unmarshal([]byte(data.String), &seq); err != nil {
			continue
		}
		if r.ViewedAt, err = parseTime(at); err != nil {
			continue
		}
		r.Name = seq.Name
		out = append(out, r)
		if len(out) >= maxRows {
			break
		}
	}
	return out, rows.Err()
}

// --- Bookmarks ---

// AddBookmark creates or replaces a bookmark. Empty notes are stored as NULL.
func (s *Store) AddBookmark(number int, notes string) error {
	var n sql.NullString
	if notes != "" {
		n = sql.NullString{String: notes, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO bookmarks (number, bookmarked_at, notes) VALUES (?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			bookmarked_at = excluded.bookmarked_at,
			notes = excluded.notes`,
		number, s.timestamp(), n,
	)
	return err
}

// RemoveBookmark deletes a bookmark. Removing an absent bookmark is not an error.
func (s *Store) RemoveBookmark(number int) error {
	_, err := s.db.Exec("DELETE FROM bookmarks WHERE number = ?", number)
	return err
}

// IsBookmarked reports whether number is bookmarked.
func (s *Store) IsBookmarked(number int) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM bookmarks WHERE number = ?", number).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Bookmarks lists all bookmarks, most recent first. Name is filled from the
// sequence cache when a decodable entry exists.
func (s *Store) Bookmarks() ([]Bookmark, error) {
	rows, err := s.db.Query(`
		SELECT b.number, b.bookmarked_at, b.notes, c.data
		FROM bookmarks b
		LEFT JOIN sequence_cache c ON c.number = b.number
		ORDER BY b.bookmarked_at DESC, b.number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var at string
		var notes, data sql.NullString
		if err := rows.Scan(&b.Number, &at, &notes, &data); err != nil {
			return nil, err
		}
		if b.BookmarkedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing bookmarked_at: %w", err)
		}
		b.Notes = notes.String
		if data.Valid {
			var seq oeis.Sequence
			if json.Unmarshal([]byte(data.String), &seq) == nil {
				b.Name = seq.Name
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}
