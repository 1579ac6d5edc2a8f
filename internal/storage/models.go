package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCorruptRecord is returned when a stored payload cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt cache record")
)

// Collection names one of the two cache tables.
type Collection int

const (
	SearchCache Collection = iota
	SequenceCache
)

func (c Collection) String() string {
	switch c {
	case SearchCache:
		return "search_cache"
	case SequenceCache:
		return "sequence_cache"
	default:
		return "unknown"
	}
}

type HistoryEntry struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searched_at"`
}

type ViewRecord struct {
	Number    int       `json:"number"`
	ViewedAt  time.Time `json:"viewed_at"`
	ViewCount int       `json:"view_count"`
}

// RecentView is a view record joined with the cached sequence name.
type RecentView struct {
	ViewRecord
	Name string `json:"name"`
}

type Bookmark struct {
	Number       int       `json:"number"`
	BookmarkedAt time.Time `json:"bookmarked_at"`
	Notes        string    `json:"notes,omitempty"`
	Name         string    `json:"name,omitempty"` // from sequence_cache, empty if not cached
}

// Stats holds row counts per collection.
type Stats struct {
	SearchCache    int `json:"search_cache"`
	SequenceCache  int `json:"sequence_cache"`
	SearchHistory  int `json:"search_history"`
	ViewedSequence int `json:"viewed_sequences"`
	Bookmarks      int `json:"bookmarks"`
}
