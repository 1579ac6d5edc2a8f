package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/jobs"
	"github.com/kalambet/oeis/internal/oeis"
)

// busyTick is the frame budget while any job is in flight.
const busyTick = 24 * time.Millisecond

const interactiveHelp = `Type a query to search (terms like 1,2,3,5,8, words, or id:A000045).
  :n / :p        next / previous page
  :o <i>         open result i of the current page
  :g <A-number>  open a sequence by number
  :r             random sequence
  :x             fetch the b-file of the current sequence
  :w [cat] [every] webcam mode: cat is all, best, more or new;
                 every is manual, 5s, 10s, 20s, 30s or 1m
  :w next / :w off next webcam pick / stop webcam mode
  :b             toggle bookmark on the current sequence
  :c             cancel the running search
  :e <fmt> [file] export the current sequence (json, csv, txt, markdown, bfile)
  :h             search history
  :k             bookmarks
  :recent        recently viewed
  :stats         cache statistics
  :clear         clear cached searches and sequences
  :d             dismiss the error message
  :help          this help
  :q             quit`

// runInteractive starts the line browser. Each of startup is handled as if
// typed before the first prompt.
func runInteractive(ctx context.Context, startup ...string) error {
	env, err := openEnvironment(true)
	if err != nil {
		return err
	}
	defer env.Close()

	sup := jobs.NewSupervisor(ctx, env.client, jobs.WithLogger(env.logger))
	defer sup.Shutdown(2 * time.Second)

	state := app.New(env.store, sup, app.Options{
		MaxCacheAge:    env.cfg.MaxCacheAge(),
		ResultsPerPage: env.cfg.Search.ResultsPerPage,
		Logger:         env.logger,
	})

	s := newSession(state, os.Stdout, terminalWidth())
	fmt.Fprintf(s.out, "%s %s. Type :help for commands.\n", colorize(colorBold, "oeis"), version)
	for _, line := range startup {
		s.handle(line)
	}
	s.prompt()

	return s.loop(ctx, readLines(os.Stdin), env.cfg.UI.TickInterval())
}

// readLines forwards lines from r until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// session is the line-driven presentation over app.State.
type session struct {
	state *app.State
	out   io.Writer
	width int

	version uint64
	last    renderKey
}

// renderKey captures the parts of a View that are printed on change.
type renderKey struct {
	query       string
	page        int
	results     int
	firstResult int
	current     int
	bookmarked  bool
	extended    int
	extendedErr string
	errMsg      string
	status      string
	webcam      string
}

func newSession(state *app.State, out io.Writer, width int) *session {
	return &session{state: state, out: out, width: width}
}

func (s *session) loop(ctx context.Context, lines <-chan string, idle time.Duration) error {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handle(line); quit {
				return nil
			}
			s.prompt()
		case <-timer.C:
		}

		s.state.Tick()
		v := s.state.Snapshot()
		if v.Version != s.version {
			if s.render(v) {
				s.prompt()
			}
		}

		next := idle
		if v.Busy() {
			next = busyTick
		}
		timer.Reset(next)
	}
}

func (s *session) prompt() {
	fmt.Fprint(s.out, colorize(colorBold, "oeis> "))
}

// handle runs one input line and reports whether the session should end.
func (s *session) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		s.state.Search(line)
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "q", "quit":
		return true
	case "help", "?":
		fmt.Fprintln(s.out, interactiveHelp)
	case "n":
		if !s.state.NextPage() {
			s.notice("No next page")
		}
	case "p":
		if !s.state.PreviousPage() {
			s.notice("Already on the first page")
		}
	case "o":
		i, err := strconv.Atoi(arg)
		if err != nil || !s.state.ViewResult(i-1) {
			s.notice("No result %q on this page", arg)
		}
	case "g":
		n, err := oeis.ParseANumber(arg)
		if err != nil {
			s.notice("%v", err)
			break
		}
		s.state.OpenSequence(n)
	case "r":
		s.state.Random()
	case "x":
		if !s.state.FetchExtended() {
			s.notice("Open a sequence first")
		}
	case "b":
		if s.state.Snapshot().Current == nil {
			s.notice("Open a sequence first")
			break
		}
		s.state.ToggleBookmark()
	case "w":
		s.webcam(arg)
	case "c":
		s.state.CancelSearch()
	case "d":
		s.state.DismissError()
	case "e":
		s.export(arg)
	case "h":
		s.printHistory(s.state.Snapshot())
	case "k":
		writeBookmarks(s.out, s.state.Snapshot().Bookmarks, s.width)
	case "recent":
		writeRecent(s.out, s.state.Snapshot().Recent, s.width)
	case "stats":
		stats, err := s.state.Stats()
		if err != nil {
			s.notice("Failed to read stats: %v", err)
			break
		}
		fmt.Fprintf(s.out, "searches %d  sequences %d  history %d  viewed %d  bookmarks %d\n",
			stats.SearchCache, stats.SequenceCache, stats.SearchHistory, stats.ViewedSequence, stats.Bookmarks)
	case "clear":
		if err := s.state.ClearCaches(); err != nil {
			s.notice("Failed to clear cache: %v", err)
		}
	default:
		s.notice("Unknown command :%s (try :help)", cmd)
	}
	return false
}

func (s *session) notice(format string, args ...any) {
	fmt.Fprintln(s.out, colorize(colorYellow, fmt.Sprintf(format, args...)))
}

// webcam handles ":w [category] [interval]", ":w next" and ":w off". A bare
// ":w" shows the next pick while webcam mode is on.
func (s *session) webcam(arg string) {
	fields := strings.Fields(arg)
	on := s.state.Snapshot().Webcam
	switch {
	case len(fields) == 0 && on, len(fields) == 1 && fields[0] == "next":
		if !s.state.WebcamNext() {
			s.notice("Webcam is off (start it with :w [category] [interval])")
		}
		return
	case len(fields) == 1 && (fields[0] == "off" || fields[0] == "stop"):
		if !on {
			s.notice("Webcam is off")
			return
		}
		s.state.StopWebcam()
		return
	}

	category := oeis.CategoryAll
	var interval time.Duration
	for _, f := range fields {
		if c, err := oeis.ParseCategory(f); err == nil {
			category = c
			continue
		}
		d, err := app.ParseWebcamInterval(f)
		if err != nil {
			s.notice("%v", err)
			return
		}
		interval = d
	}
	s.state.StartWebcam(category, interval)
}

func (s *session) export(arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		s.notice("Usage: :e <json|csv|txt|markdown|bfile> [file]")
		return
	}
	format, err := app.ParseExportFormat(fields[0])
	if err != nil {
		s.notice("%v", err)
		return
	}
	text, err := s.state.ExportCurrent(format)
	if err != nil {
		s.notice("%v", err)
		return
	}
	if len(fields) < 2 {
		fmt.Fprint(s.out, text)
		return
	}
	if err := os.WriteFile(fields[1], []byte(text), 0o644); err != nil {
		s.notice("Export failed: %v", err)
		return
	}
	fmt.Fprintln(s.out, colorize(colorGreen, "Exported to "+fields[1]))
}

func (s *session) printHistory(v app.View) {
	if len(v.History) == 0 {
		fmt.Fprintln(s.out, "No search history.")
		return
	}
	for _, h := range v.History {
		fmt.Fprintf(s.out, "%s  %s\n", colorize(colorDim, h.SearchedAt.Local().Format("2006-01-02 15:04")), h.Query)
	}
}

// render prints the parts of v that changed since the last frame and
// reports whether anything was written.
func (s *session) render(v app.View) bool {
	s.version = v.Version
	key := renderKey{
		query:       v.Query,
		page:        v.Page,
		results:     len(v.Results),
		extended:    len(v.Extended),
		extendedErr: v.ExtendedError,
		errMsg:      v.Error,
		status:      v.Status,
		bookmarked:  v.CurrentBookmarked,
	}
	if v.Webcam {
		key.webcam = v.WebcamCategory.Title() + ", " + app.WebcamIntervalLabel(v.WebcamInterval)
	}
	if len(v.Results) > 0 {
		key.firstResult = v.Results[0].Number
	}
	if v.Current != nil {
		key.current = v.Current.Number
	}

	prev := s.last
	s.last = key
	wrote := false

	if key.errMsg != prev.errMsg && key.errMsg != "" {
		fmt.Fprintln(s.out, colorize(colorRed, "✗ "+v.Error))
		wrote = true
	}
	if key.status != prev.status && key.status != "" && v.Error == "" {
		fmt.Fprintln(s.out, colorize(colorDim, v.Status))
		wrote = true
	}
	if key.webcam != prev.webcam && key.webcam != "" {
		fmt.Fprintln(s.out, colorize(colorCyan, "Webcam ("+key.webcam+")  :w next  :w off"))
		wrote = true
	}
	if key.query != prev.query || key.page != prev.page || key.results != prev.results || key.firstResult != prev.firstResult {
		if (key.query != "" && !v.SearchBusy) || key.results > 0 {
			s.renderResults(v)
			wrote = true
		}
	}
	if key.current != prev.current && v.Current != nil {
		s.renderCurrent(v)
		wrote = true
	} else if key.bookmarked != prev.bookmarked && v.Current != nil {
		if v.CurrentBookmarked {
			fmt.Fprintln(s.out, colorize(colorGreen, "★ bookmarked "+v.Current.ANumber()))
		} else {
			fmt.Fprintln(s.out, colorize(colorDim, "☆ removed bookmark "+v.Current.ANumber()))
		}
		wrote = true
	}
	if key.extended != prev.extended && key.extended > 0 {
		s.renderExtended(v)
		wrote = true
	}
	if key.extendedErr != prev.extendedErr && key.extendedErr != "" && key.extendedErr != key.errMsg {
		fmt.Fprintln(s.out, colorize(colorRed, "✗ "+v.ExtendedError))
		wrote = true
	}
	return wrote
}

func (s *session) renderResults(v app.View) {
	fmt.Fprintf(s.out, "\n%s '%s'  page %d  (%d found)\n",
		colorize(colorBold, "Results for"), colorize(colorCyan, v.Query), v.Page+1, v.Count)
	for i, seq := range v.Results {
		head := fmt.Sprintf("%2d. %s ", i+1, seq.ANumber())
		fmt.Fprintf(s.out, "%s%s\n", colorize(colorCyan, head), truncate(seq.Name, s.width-len(head)))
		values := seq.Values()
		if len(values) > previewTerms {
			values = values[:previewTerms]
		}
		fmt.Fprintf(s.out, "    %s\n", highlightValues(strings.Join(values, ","), v.Terms))
	}
	var nav []string
	if v.HasPrev {
		nav = append(nav, ":p previous")
	}
	if v.HasNext {
		nav = append(nav, ":n next")
	}
	if len(v.Results) > 0 {
		nav = append(nav, ":o <i> open")
	}
	if len(nav) > 0 {
		fmt.Fprintln(s.out, colorize(colorDim, strings.Join(nav, "  ")))
	}
}

func (s *session) renderCurrent(v app.View) {
	seq := *v.Current
	fmt.Fprintln(s.out)
	writeDetail(s.out, seq)
	mark := "☆"
	if v.CurrentBookmarked {
		mark = "★"
	}
	fmt.Fprintln(s.out, colorize(colorDim, mark+"  :b bookmark  :x b-file  :e <fmt> export  "+seq.URL()))
}

func (s *session) renderExtended(v app.View) {
	entries := v.Extended
	fmt.Fprintf(s.out, "%s %s: %d terms\n", colorize(colorBold, "B-file"), oeis.FormatANumber(v.ExtendedNumber), len(entries))
	const shown = 20
	for i, e := range entries {
		if i == shown {
			fmt.Fprintln(s.out, colorize(colorDim, fmt.Sprintf("  … %d more (:e bfile <file> to save)", len(entries)-shown)))
			break
		}
		fmt.Fprintf(s.out, "  %d %s\n", e.Index, e.Value)
	}
}
