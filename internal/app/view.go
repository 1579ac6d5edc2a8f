package app

import (
	"slices"
	"time"

	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

// View is a read-only copy of State taken once per frame. Version increases
// whenever anything in it may have changed.
type View struct {
	Version uint64

	SearchBusy   bool
	RandomBusy   bool
	ExtendedBusy bool

	Query      string
	Terms      []string
	Page       int
	Results    []oeis.Sequence
	Count      int
	Selected   int
	LastSearch time.Time
	HasNext    bool
	HasPrev    bool

	Current           *oeis.Sequence
	CurrentBookmarked bool
	Extended          []oeis.BFileEntry
	ExtendedNumber    int
	ExtendedError     string

	Webcam         bool
	WebcamCategory oeis.Category
	WebcamInterval time.Duration
	WebcamNext     time.Time

	Error  string
	Status string

	Recent    []storage.RecentView
	Bookmarks []storage.Bookmark
	History   []storage.HistoryEntry
}

// Busy reports whether any slot has a job in flight.
func (v View) Busy() bool {
	return v.SearchBusy || v.RandomBusy || v.ExtendedBusy
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := s.busyFlags()
	v := View{
		Version:      s.version,
		SearchBusy:   busy[0],
		RandomBusy:   busy[1],
		ExtendedBusy: busy[2],

		Query:      s.query.Query,
		Terms:      slices.Clone(s.terms),
		Page:       s.query.Page(s.pageStep()),
		Results:    slices.Clone(s.results),
		Count:      s.count,
		Selected:   s.selected,
		LastSearch: s.lastSearch,
		HasNext:    s.hasNext(),
		HasPrev:    s.query.Query != "" && s.query.Start > 0,

		CurrentBookmarked: s.currentBookmarked,
		Extended:          slices.Clone(s.extended),
		ExtendedNumber:    s.extendedNumber,
		ExtendedError:     s.extendedErr,

		Webcam:         s.webcam.on,
		WebcamCategory: s.webcam.category,
		WebcamInterval: s.webcam.interval,
		WebcamNext:     s.webcam.next,

		Error:  s.errMsg,
		Status: s.status,

		Recent:    slices.Clone(s.recent),
		Bookmarks: slices.Clone(s.bookmarks),
		History:   slices.Clone(s.history),
	}
	if s.current != nil {
		cur := *s.current
		v.Current = &cur
	}
	return v
}
