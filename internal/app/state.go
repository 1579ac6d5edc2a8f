// Package app holds the application state read by the presentation layer.
// It starts background jobs, applies their outcomes on each tick and keeps
// the local store up to date as a side effect.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/oeis/internal/jobs"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

const (
	DefaultMaxCacheAge    = 30 * 24 * time.Hour
	DefaultResultsPerPage = 15
	DefaultRecentLimit    = 20
	DefaultHistoryLimit   = 50
)

// Store is the subset of *storage.Store used by State.
type Store interface {
	GetCachedSearch(query string, maxAge time.Duration) (oeis.Response, bool, error)
	CacheSearch(query string, resp oeis.Response) error
	GetCachedSequence(number int, maxAge time.Duration) (*oeis.Sequence, bool, error)
	CacheSequence(seq oeis.Sequence) error
	AddSearchHistory(query string) error
	History(limit int) ([]storage.HistoryEntry, error)
	RecordView(number int) error
	RecentlyViewed(limit int) ([]storage.RecentView, error)
	AddBookmark(number int, notes string) error
	RemoveBookmark(number int) error
	IsBookmarked(number int) (bool, error)
	Bookmarks() ([]storage.Bookmark, error)
	ClearCaches() error
	Stats() (storage.Stats, error)
}

// Supervisor is the subset of *jobs.Supervisor used by State.
type Supervisor interface {
	Start(job jobs.Job) string
	Cancel(slot jobs.Slot)
	Busy(slot jobs.Slot) bool
	Poll() []jobs.OutcomeEvent
}

// Options tunes a State. Zero or negative values fall back to the defaults.
type Options struct {
	MaxCacheAge    time.Duration
	ResultsPerPage int
	RecentLimit    int
	HistoryLimit   int
	Logger         *slog.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxCacheAge <= 0 {
		o.MaxCacheAge = DefaultMaxCacheAge
	}
	if o.ResultsPerPage <= 0 {
		o.ResultsPerPage = DefaultResultsPerPage
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State is the single source of truth for the presentation layer. Its
// methods are meant to be called from one update loop; a mutex guards
// against accidental concurrent use.
type State struct {
	store  Store
	sup    Supervisor
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	version  uint64
	lastBusy [3]bool

	query      oeis.SearchQuery
	terms      []string
	results    []oeis.Sequence
	count      int
	selected   int
	lastSearch time.Time

	current           *oeis.Sequence
	currentBookmarked bool
	extended          []oeis.BFileEntry
	extendedNumber    int
	extendedErr       string

	errMsg string
	status string

	// lookup is the number being fetched by a lookup job in the search
	// slot, or 0.
	lookup int
	webcam webcam

	recent    []storage.RecentView
	bookmarks []storage.Bookmark
	history   []storage.HistoryEntry
}

// New creates a State and loads the persisted lists.
func New(store Store, sup Supervisor, opts Options) *State {
	opts = opts.withDefaults()
	s := &State{
		store:  store,
		sup:    sup,
		opts:   opts,
		logger: opts.Logger,
	}
	s.refreshRecent()
	s.refreshBookmarks()
	s.refreshHistory()
	return s
}

// --- Actions ---

// Search starts a new query. A fresh cached response is applied immediately
// and any in-flight search-slot job is cancelled.
func (s *State) Search(input string) {
	q := oeis.NormalizeQuery(input)
	if q == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	s.terms = ParseSearchTerms(q)
	s.errMsg = ""

	resp, ok, err := s.store.GetCachedSearch(q, s.opts.MaxCacheAge)
	if err != nil {
		s.logger.Debug("search cache read failed", "query", q, "error", err)
	}
	if ok {
		s.sup.Cancel(jobs.SlotSearch)
		s.lookup = 0
		s.applyResults(oeis.NewSearchQuery(q), resp)
		s.status = "Loaded from cache"
		s.recordHistory(q)
		return
	}

	s.status = "Searching..."
	s.lookup = 0
	s.sup.Start(jobs.SearchJob{
		Kind:     jobs.SearchInitial,
		Query:    oeis.NewSearchQuery(q),
		PageSize: s.pageStep(),
	})
}

// NextPage requests the page after the current one. It is a no-op when the
// current page was not full.
func (s *State) NextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasNext() {
		return false
	}
	s.lookup = 0
	s.sup.Start(jobs.SearchJob{
		Kind:     jobs.SearchNextPage,
		Query:    s.query.NextPage(s.pageStep()),
		PageSize: s.pageStep(),
	})
	s.status = "Loading next page..."
	s.touch()
	return true
}

// PreviousPage requests the page before the current one. It is a no-op on
// the first page.
func (s *State) PreviousPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.query.Query == "" || s.query.Start == 0 {
		return false
	}
	s.lookup = 0
	s.sup.Start(jobs.SearchJob{
		Kind:     jobs.SearchPreviousPage,
		Query:    s.query.PrevPage(s.pageStep()),
		PageSize: s.pageStep(),
	})
	s.status = "Loading previous page..."
	s.touch()
	return true
}

// Random requests a random sequence.
func (s *State) Random() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sup.Start(jobs.RandomJob{})
	s.status = "Fetching random sequence..."
	s.touch()
}

// FetchExtended requests the b-file of the current sequence.
func (s *State) FetchExtended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	s.extended = nil
	s.extendedErr = ""
	s.extendedNumber = s.current.Number
	s.sup.Start(jobs.ExtendedFetchJob{Number: s.current.Number})
	s.status = "Fetching b-file..."
	s.touch()
	return true
}

// CancelSearch stops the in-flight search-slot job, if any.
func (s *State) CancelSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sup.Cancel(jobs.SlotSearch)
	s.lookup = 0
	s.status = "Search cancelled"
	s.touch()
}

// ViewResult opens the i-th result of the current page.
func (s *State) ViewResult(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.results) {
		return false
	}
	s.selected = i
	s.dropLookup()
	s.view(s.results[i])
	s.touch()
	return true
}

// OpenSequence shows sequence number n, from cache when fresh, otherwise
// through a lookup job on the search slot.
func (s *State) OpenSequence(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	seq, ok, err := s.store.GetCachedSequence(n, s.opts.MaxCacheAge)
	if err != nil {
		s.logger.Debug("sequence cache read failed", "number", n, "error", err)
	}
	if ok {
		s.dropLookup()
		s.view(*seq)
		return
	}
	s.lookup = n
	s.sup.Start(jobs.SearchJob{Kind: jobs.SearchLookup, Number: n})
	s.status = "Loading " + oeis.FormatANumber(n) + "..."
}

// ToggleBookmark flips the bookmark on the current sequence and returns the
// new state.
func (s *State) ToggleBookmark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	defer s.touch()

	n := s.current.Number
	var err error
	if s.currentBookmarked {
		err = s.store.RemoveBookmark(n)
	} else {
		err = s.store.AddBookmark(n, "")
	}
	if err != nil {
		s.logger.Debug("bookmark write failed", "number", n, "error", err)
	}
	s.refreshCurrentBookmarked()
	s.refreshBookmarks()
	return s.currentBookmarked
}

// RemoveBookmark deletes the bookmark for n.
func (s *State) RemoveBookmark(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	if err := s.store.RemoveBookmark(n); err != nil {
		s.logger.Debug("bookmark remove failed", "number", n, "error", err)
	}
	if s.current != nil && s.current.Number == n {
		s.refreshCurrentBookmarked()
	}
	s.refreshBookmarks()
}

// ClearCaches empties the response and sequence caches.
func (s *State) ClearCaches() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	if err := s.store.ClearCaches(); err != nil {
		s.errMsg = "Failed to clear cache: " + err.Error()
		return err
	}
	s.status = "Cache cleared"
	s.refreshRecent()
	s.refreshBookmarks()
	return nil
}

// Stats returns the store's row counts.
func (s *State) Stats() (storage.Stats, error) {
	return s.store.Stats()
}

// DismissError clears the error banner.
func (s *State) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMsg != "" {
		s.errMsg = ""
		s.touch()
	}
}

// --- Tick ---

// Tick polls the supervisor and applies finished outcomes. It never blocks
// and reports whether the snapshot changed.
func (s *State) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.sup.Poll()
	for _, ev := range events {
		s.apply(ev)
	}
	refreshed := s.webcamDue()
	if refreshed {
		s.startWebcamPick()
	}

	busy := s.busyFlags()
	changed := len(events) > 0 || refreshed || busy != s.lastBusy
	s.lastBusy = busy
	if changed {
		s.touch()
	}
	return changed
}

func (s *State) apply(ev jobs.OutcomeEvent) {
	switch ev.Slot {
	case jobs.SlotSearch:
		s.lookup = 0
	case jobs.SlotRandom:
		s.scheduleWebcam()
	case jobs.SlotExtended:
		job, _ := ev.Job.(jobs.ExtendedFetchJob)
		if s.current == nil || s.current.Number != job.Number {
			s.logger.Debug("dropping b-file for a sequence no longer shown", "number", job.Number, "outcome", ev.Kind)
			return
		}
	}

	if ev.Kind != jobs.OutcomeSuccess {
		msg := ev.Message()
		if ev.Slot == jobs.SlotExtended {
			s.extendedErr = msg
		}
		s.errMsg = msg
		s.status = ""
		return
	}

	s.errMsg = ""
	s.status = ""
	switch ev.Slot {
	case jobs.SlotSearch:
		job, _ := ev.Job.(jobs.SearchJob)
		if seq, ok := ev.Sequence(); ok {
			s.view(*seq)
			return
		}
		resp, ok := ev.Response()
		if !ok {
			return
		}
		s.applyResults(job.Query, resp)
		if job.Kind == jobs.SearchInitial {
			if err := s.store.CacheSearch(job.Query.Query, resp); err != nil {
				s.logger.Debug("search cache write failed", "query", job.Query.Query, "error", err)
			}
			s.recordHistory(job.Query.Query)
		}
	case jobs.SlotRandom:
		if seq, ok := ev.Sequence(); ok {
			s.view(*seq)
		}
	case jobs.SlotExtended:
		entries, _ := ev.BFile()
		job, _ := ev.Job.(jobs.ExtendedFetchJob)
		s.extended = entries
		s.extendedNumber = job.Number
		s.extendedErr = ""
	}
}

// pageStep is the distance between pages. OEIS never returns more than
// oeis.ServerPageSize entries per request, so larger page sizes would skip
// results.
func (s *State) pageStep() int {
	return min(s.opts.ResultsPerPage, oeis.ServerPageSize)
}

func (s *State) hasNext() bool {
	return s.query.Query != "" && len(s.results) > 0 && len(s.results) >= s.pageStep()
}

// dropLookup cancels a lookup still running in the search slot so it
// cannot replace a sequence opened after it.
func (s *State) dropLookup() {
	if s.lookup != 0 {
		s.sup.Cancel(jobs.SlotSearch)
		s.lookup = 0
	}
}

func (s *State) applyResults(q oeis.SearchQuery, resp oeis.Response) {
	s.query = q
	s.results = resp.Results
	s.count = resp.Count
	s.selected = 0
	s.lastSearch = s.opts.Now()
	if len(resp.Results) == 0 {
		s.status = "No results found."
	}
}

// view makes seq the current sequence and records the view.
func (s *State) view(seq oeis.Sequence) {
	if s.current == nil || s.current.Number != seq.Number {
		s.extended = nil
		s.extendedErr = ""
		s.extendedNumber = 0
	}
	s.current = &seq

	if err := s.store.RecordView(seq.Number); err != nil {
		s.logger.Debug("record view failed", "number", seq.Number, "error", err)
	}
	if err := s.store.CacheSequence(seq); err != nil {
		s.logger.Debug("sequence cache write failed", "number", seq.Number, "error", err)
	}
	s.refreshCurrentBookmarked()
	s.refreshRecent()
}

func (s *State) recordHistory(q string) {
	if err := s.store.AddSearchHistory(q); err != nil {
		s.logger.Debug("history write failed", "query", q, "error", err)
	}
	s.refreshHistory()
}

// --- Projections ---

func (s *State) refreshRecent() {
	recent, err := s.store.RecentlyViewed(s.opts.RecentLimit)
	if err != nil {
		s.logger.Debug("loading recent views failed", "error", err)
		return
	}
	s.recent = recent
}

func (s *State) refreshBookmarks() {
	bms, err := s.store.Bookmarks()
	if err != nil {
		s.logger.Debug("loading bookmarks failed", "error", err)
		return
	}
	s.bookmarks = bms
}

func (s *State) refreshHistory() {
	hist, err := s.store.History(s.opts.HistoryLimit)
	if err != nil {
		s.logger.Debug("loading history failed", "error", err)
		return
	}
	s.history = hist
}

func (s *State) refreshCurrentBookmarked() {
	if s.current == nil {
		s.currentBookmarked = false
		return
	}
	ok, err := s.store.IsBookmarked(s.current.Number)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("bookmark lookup failed", "number", s.current.Number, "error", err)
	}
	s.currentBookmarked = ok
}

func (s *State) busyFlags() [3]bool {
	var b [3]bool
	for i, slot := range jobs.Slots() {
		b[i] = s.sup.Busy(slot)
	}
	return b
}

func (s *State) touch() {
	s.version++
}
