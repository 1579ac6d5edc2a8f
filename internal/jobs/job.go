package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/kalambet/oeis/internal/oeis"
)

// Slot identifies one of the independent single-flight job lanes.
type Slot int

const (
	SlotSearch Slot = iota
	SlotRandom
	SlotExtended

	numSlots
)

func (s Slot) String() string {
	switch s {
	case SlotSearch:
		return "search"
	case SlotRandom:
		return "random"
	case SlotExtended:
		return "extended"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Slots lists every slot in a stable order.
func Slots() []Slot {
	return []Slot{SlotSearch, SlotRandom, SlotExtended}
}

// Fetcher is the remote service the jobs talk to. *oeis.Client satisfies it.
type Fetcher interface {
	Search(ctx context.Context, q oeis.SearchQuery, pageSize int) (oeis.Response, error)
	Sequence(ctx context.Context, number int) (*oeis.Sequence, error)
	Random(ctx context.Context) (*oeis.Sequence, error)
	BFile(ctx context.Context, number int) ([]oeis.BFileEntry, error)
}

var (
	// ErrNoRandomSequence is returned when the randomly chosen entry does not exist.
	ErrNoRandomSequence = errors.New("no random sequence found")
	// ErrEmptyBFile is returned when a b-file contained no data lines.
	ErrEmptyBFile = errors.New("b-file contains no data")
)

// Job is a unit of background work. The slot it occupies is fixed per job type.
type Job interface {
	Slot() Slot
	Describe() string

	run(ctx context.Context, f Fetcher) (any, error)
	failureMessage(err error) string
	panicMessage() string
}

// SearchKind distinguishes the operations sharing the search slot.
type SearchKind int

const (
	SearchInitial SearchKind = iota
	SearchNextPage
	SearchPreviousPage
	SearchLookup
)

func (k SearchKind) String() string {
	switch k {
	case SearchInitial:
		return "initial"
	case SearchNextPage:
		return "next_page"
	case SearchPreviousPage:
		return "previous_page"
	case SearchLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// SearchJob runs one page of a query, or looks up a single entry when Kind
// is SearchLookup. The payload is oeis.Response, or *oeis.Sequence for lookups.
type SearchJob struct {
	Kind     SearchKind
	Query    oeis.SearchQuery
	PageSize int
	Number   int // SearchLookup only
}

func (j SearchJob) Slot() Slot { return SlotSearch }

func (j SearchJob) Describe() string {
	if j.Kind == SearchLookup {
		return "lookup " + oeis.FormatANumber(j.Number)
	}
	return fmt.Sprintf("search %q (%s, start %d)", j.Query.Query, j.Kind, j.Query.Start)
}

func (j SearchJob) run(ctx context.Context, f Fetcher) (any, error) {
	if j.Kind == SearchLookup {
		seq, err := f.Sequence(ctx, j.Number)
		if err != nil {
			return nil, err
		}
		if seq == nil {
			return nil, fmt.Errorf("%s: %w", oeis.FormatANumber(j.Number), oeis.ErrNotFound)
		}
		return seq, nil
	}
	return f.Search(ctx, j.Query, j.PageSize)
}

func (j SearchJob) failureMessage(err error) string {
	switch j.Kind {
	case SearchNextPage:
		return fmt.Sprintf("Failed to load next page: %v", err)
	case SearchPreviousPage:
		return fmt.Sprintf("Failed to load previous page: %v", err)
	case SearchLookup:
		return fmt.Sprintf("Failed to load sequence: %v", err)
	default:
		return fmt.Sprintf("Search failed: %v", err)
	}
}

func (j SearchJob) panicMessage() string {
	switch j.Kind {
	case SearchNextPage:
		return "Next page task panicked"
	case SearchPreviousPage:
		return "Previous page task panicked"
	case SearchLookup:
		return "Sequence task panicked"
	default:
		return "Search task panicked"
	}
}

// RandomJob fetches a random entry. With a Category other than
// oeis.CategoryAll it searches that category and picks one of the first page.
// The payload is *oeis.Sequence.
type RandomJob struct {
	Category oeis.Category
	Pick     func(n int) int // index chooser for category picks; rand.IntN when nil
}

func (RandomJob) Slot() Slot { return SlotRandom }

func (j RandomJob) Describe() string {
	if j.Category == oeis.CategoryAll {
		return "random sequence"
	}
	return "random sequence from " + j.Category.String()
}

func (j RandomJob) run(ctx context.Context, f Fetcher) (any, error) {
	if j.Category == oeis.CategoryAll {
		seq, err := f.Random(ctx)
		if err != nil {
			return nil, err
		}
		if seq == nil {
			return nil, ErrNoRandomSequence
		}
		return seq, nil
	}

	resp, err := f.Search(ctx, oeis.NewSearchQuery(j.Category.Query()), oeis.ServerPageSize)
	if errors.Is(err, oeis.ErrNoResults) || (err == nil && len(resp.Results) == 0) {
		return nil, ErrNoRandomSequence
	}
	if err != nil {
		return nil, err
	}
	pick := j.Pick
	if pick == nil {
		pick = rand.IntN
	}
	seq := resp.Results[pick(len(resp.Results))]
	return &seq, nil
}

func (RandomJob) failureMessage(err error) string {
	if errors.Is(err, ErrNoRandomSequence) {
		return "No random sequence found"
	}
	return fmt.Sprintf("Failed to load random sequence: %v", err)
}

func (RandomJob) panicMessage() string { return "Random sequence task panicked" }

// ExtendedFetchJob downloads the b-file of a sequence. The payload is []oeis.BFileEntry.
type ExtendedFetchJob struct {
	Number int
}

func (j ExtendedFetchJob) Slot() Slot { return SlotExtended }

func (j ExtendedFetchJob) Describe() string {
	return "b-file " + oeis.FormatANumber(j.Number)
}

func (j ExtendedFetchJob) run(ctx context.Context, f Fetcher) (any, error) {
	entries, err := f.BFile(ctx, j.Number)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBFile
	}
	return entries, nil
}

func (j ExtendedFetchJob) failureMessage(err error) string {
	return fmt.Sprintf("B-file not available: %v", err)
}

func (j ExtendedFetchJob) panicMessage() string { return "B-file fetch failed: task panicked" }
