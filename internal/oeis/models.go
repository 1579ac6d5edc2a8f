package oeis

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Sequence is a single OEIS entry with the metadata returned by the JSON API.
type Sequence struct {
	Number      int      `json:"number"`
	ID          string   `json:"id,omitempty"`
	Data        string   `json:"data"`
	Name        string   `json:"name"`
	Offset      string   `json:"offset"`
	Comment     []string `json:"comment,omitempty"`
	Reference   []string `json:"reference,omitempty"`
	Link        []string `json:"link,omitempty"`
	Formula     []string `json:"formula,omitempty"`
	Example     []string `json:"example,omitempty"`
	Maple       []string `json:"maple,omitempty"`
	Mathematica []string `json:"mathematica,omitempty"`
	Program     []string `json:"program,omitempty"`
	Xref        []string `json:"xref,omitempty"`
	Keyword     string   `json:"keyword,omitempty"`
	Author      string   `json:"author,omitempty"`
	Created     string   `json:"created,omitempty"`
	Time        string   `json:"time,omitempty"`
	References  int      `json:"references,omitempty"`
	Revision    int      `json:"revision,omitempty"`
}

// ANumber returns the canonical identifier, e.g. "A000045".
func (s Sequence) ANumber() string {
	return FormatANumber(s.Number)
}

// Values splits the comma-separated data field into its terms.
func (s Sequence) Values() []string {
	var out []string
	for _, v := range strings.Split(s.Data, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseOffset returns (start index, index of first term > 1 in absolute value).
// Missing or malformed parts default to (0, 1).
func (s Sequence) ParseOffset() (int, int) {
	start, first := 0, 1
	parts := strings.Split(s.Offset, ",")
	if len(parts) > 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			start = v
		}
	}
	if len(parts) > 1 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			first = v
		}
	}
	return start, first
}

// Keywords returns the classification tags.
func (s Sequence) Keywords() []string {
	if s.Keyword == "" {
		return nil
	}
	parts := strings.Split(s.Keyword, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// HasKeyword reports whether kw is one of the sequence's keywords.
func (s Sequence) HasKeyword(kw string) bool {
	for _, k := range s.Keywords() {
		if k == kw {
			return true
		}
	}
	return false
}

// URL returns the sequence page on oeis.org.
func (s Sequence) URL() string {
	return DefaultBaseURL + "/" + s.ANumber()
}

// BFileURL returns the location of the extended data file.
func (s Sequence) BFileURL() string {
	return fmt.Sprintf("%s/b%06d.txt", DefaultBaseURL, s.Number)
}

// ServerPageSize is the number of entries OEIS returns per JSON page,
// whatever page size the caller asks for.
const ServerPageSize = 10

// Response is a page of search results. The OEIS API does not report a total,
// so Count is an estimate: 100 when a full page came back, otherwise len(Results).
type Response struct {
	Count   int        `json:"count"`
	Results []Sequence `json:"results"`
}

// BFileEntry is one "index value" line of a b-file. Values are kept as strings
// because they routinely exceed 64 bits.
type BFileEntry struct {
	Index int64  `json:"index"`
	Value string `json:"value"`
}

// ParseBFileLine parses a single b-file line. Comments and blank or
// malformed lines return ok == false.
func ParseBFileLine(line string) (BFileEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return BFileEntry{}, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return BFileEntry{}, false
	}
	idx, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return BFileEntry{}, false
	}
	return BFileEntry{Index: idx, Value: fields[1]}, true
}

// SearchQuery describes one page of an OEIS search.
type SearchQuery struct {
	Query  string `json:"query"`
	Format string `json:"format"`
	Start  int    `json:"start"`
}

// NewSearchQuery returns a JSON-format query for the first page.
func NewSearchQuery(q string) SearchQuery {
	return SearchQuery{Query: q, Format: "json"}
}

// WithFormat returns a copy of q requesting the given response format.
func (q SearchQuery) WithFormat(format string) SearchQuery {
	q.Format = format
	return q
}

// NextPage returns the query for the following page.
func (q SearchQuery) NextPage(pageSize int) SearchQuery {
	q.Start += pageSize
	return q
}

// PrevPage returns the query for the preceding page, never going below 0.
func (q SearchQuery) PrevPage(pageSize int) SearchQuery {
	q.Start -= pageSize
	if q.Start < 0 {
		q.Start = 0
	}
	return q
}

// Page returns the zero-based page index of q.
func (q SearchQuery) Page(pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return q.Start / pageSize
}

func (q SearchQuery) values() url.Values {
	format := q.Format
	if format == "" {
		format = "json"
	}
	v := url.Values{}
	v.Set("q", q.Query)
	v.Set("fmt", format)
	v.Set("start", strconv.Itoa(q.Start))
	return v
}

// NormalizeQuery collapses whitespace so equivalent inputs share a cache key.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// FormatANumber renders n as an A-number, e.g. 45 -> "A000045".
func FormatANumber(n int) string {
	return fmt.Sprintf("A%06d", n)
}

// ParseANumber accepts "A000045", "a45" or "45" and returns the sequence number.
func ParseANumber(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimLeft(trimmed, "Aa")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid A-number %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid A-number %q: must be positive", s)
	}
	return n, nil
}

// Category is a curated slice of the database used by webcam mode.
type Category int

const (
	CategoryAll Category = iota
	CategoryBest
	CategoryNeedingTerms
	CategoryRecent
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryAll, CategoryBest, CategoryNeedingTerms, CategoryRecent}
}

func (c Category) String() string {
	switch c {
	case CategoryAll:
		return "all"
	case CategoryBest:
		return "best"
	case CategoryNeedingTerms:
		return "more"
	case CategoryRecent:
		return "new"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Title is the human-readable name of c.
func (c Category) Title() string {
	switch c {
	case CategoryBest:
		return "Best sequences"
	case CategoryNeedingTerms:
		return "Sequences needing more terms"
	case CategoryRecent:
		return "Recent additions"
	default:
		return "All sequences"
	}
}

// Query returns the search backing c. CategoryAll has none and is served by
// a random lookup instead.
func (c Category) Query() string {
	switch c {
	case CategoryBest:
		return "keyword:nice"
	case CategoryNeedingTerms:
		return "keyword:more"
	case CategoryRecent:
		return "keyword:new"
	default:
		return ""
	}
}

// ParseCategory accepts a category name or its keyword.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return CategoryAll, nil
	case "best", "nice":
		return CategoryBest, nil
	case "more", "needing":
		return CategoryNeedingTerms, nil
	case "new", "recent":
		return CategoryRecent, nil
	}
	return CategoryAll, fmt.Errorf("unknown category %q (want all, best, more or new)", s)
}
