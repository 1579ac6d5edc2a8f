package oeis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public OEIS endpoint.
	DefaultBaseURL = "https://oeis.org"

	defaultTimeout   = 30 * time.Second
	defaultRateLimit = rate.Limit(2)
	defaultBurst     = 4
	maxBodySize      = 32 << 20

	// randomUpperBound approximates the number of sequences in the database.
	randomUpperBound = 370000

	userAgent = "oeis-terminal-client/1.0 (+https://oeis.org)"
)

var (
	// ErrTooManyResults is returned when OEIS refuses to list a query's matches.
	ErrTooManyResults = errors.New("too many results, please narrow your search")
	// ErrNoResults is returned when a query matched nothing.
	ErrNoResults = errors.New("no results found")
	// ErrUnparseable is returned when the response could not be interpreted.
	ErrUnparseable = errors.New("unable to parse OEIS response")
	// ErrNotFound is returned by callers that require an entry to exist.
	ErrNotFound = errors.New("sequence not found")
)

// Client talks to the OEIS web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	randIntN   func(n int) int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call deadline. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit bounds outgoing requests per second. Zero or negative disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), defaultBurst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRandom replaces the source used to pick random sequence numbers.
func WithRandom(fn func(n int) int) Option {
	return func(c *Client) { c.randIntN = fn }
}

// New creates a Client targeting baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		timeout:    defaultTimeout,
		limiter:    rate.NewLimiter(defaultRateLimit, defaultBurst),
		randIntN:   rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsReachable reports whether the OEIS endpoint answers within two seconds.
func (c *Client) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Search runs one page of a query. pageSize is only used to estimate Count;
// a page of ServerPageSize entries always counts as full.
func (c *Client) Search(ctx context.Context, q SearchQuery, pageSize int) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx, "/search", q.WithFormat("json").values().Encode())
	if err != nil {
		return Response{}, err
	}

	// OEIS answers "null" for both empty and oversized result sets; the text
	// format carries the actual reason.
	if string(bytes.TrimSpace(body)) == "null" {
		text, err := c.get(ctx, "/search", q.WithFormat("txt").values().Encode())
		if err != nil {
			return Response{}, err
		}
		return Response{}, classifyTextResponse(text)
	}

	seqs, err := decodeSequences(body)
	if err != nil {
		return Response{}, err
	}

	if pageSize > ServerPageSize {
		pageSize = ServerPageSize
	}
	count := len(seqs)
	if pageSize > 0 && len(seqs) >= pageSize {
		count = 100
	}
	return Response{Count: count, Results: seqs}, nil
}

// Sequence fetches a single entry by number. A missing entry returns (nil, nil).
func (c *Client) Sequence(ctx context.Context, number int) (*Sequence, error) {
	resp, err := c.Search(ctx, NewSearchQuery("id:"+FormatANumber(number)), 10)
	if errors.Is(err, ErrNoResults) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	seq := resp.Results[0]
	return &seq, nil
}

// Random fetches a randomly chosen entry. It may return (nil, nil) when the
// chosen number does not exist.
func (c *Client) Random(ctx context.Context) (*Sequence, error) {
	n := c.randIntN(randomUpperBound-1) + 1
	return c.Sequence(ctx, n)
}

// BFile downloads the extended data (b-file) of a sequence.
func (c *Client) BFile(ctx context.Context, number int) ([]BFileEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx, fmt.Sprintf("/b%06d.txt", number), "")
	if err != nil {
		return nil, fmt.Errorf("fetching b-file: %w", err)
	}

	var entries []BFileEntry
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		if e, ok := ParseBFileLine(sc.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading b-file: %w", err)
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, path, rawQuery string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("OEIS returned status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// decodeSequences accepts both the bare array and the {"results": [...]} envelope.
func decodeSequences(body []byte) ([]Sequence, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var seqs []Sequence
		if err := json.Unmarshal(trimmed, &seqs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		return seqs, nil
	}
	var envelope struct {
		Results []Sequence `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return envelope.Results, nil
}

// classifyTextResponse maps the human-readable fmt=txt answer (which OEIS
// often serves as HTML) onto a sentinel error.
func classifyTextResponse(body []byte) error {
	text := strings.ToLower(visibleText(body))
	switch {
	case strings.Contains(text, "too many to show"), strings.Contains(text, "please refine your search"):
		return ErrTooManyResults
	case strings.Contains(text, "no results"), strings.Contains(text, "sorry, but the terms do not match"):
		return ErrNoResults
	default:
		return ErrUnparseable
	}
}

// visibleText strips markup and returns the text content of an HTML document.
// Plain text passes through unchanged.
func visibleText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(sb.String()), " ")
}
