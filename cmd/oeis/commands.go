package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/config"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

const maxConcurrentFetches = 4

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search OEIS by terms, words or prefixed fields",
	Long: `Search OEIS by terms, words or prefixed fields.

Examples:
  oeis search 1,2,3,5,8
  oeis search keyword:nice --limit 5
  oeis search fibonacci -f values        # just A-numbers
  oeis search prime -f values --names    # A-numbers and names
  oeis search triangle -f json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")
		start, _ := cmd.Flags().GetInt("start")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		names, _ := cmd.Flags().GetBool("names")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		if limit < 1 || limit > 50 {
			return fmt.Errorf("--limit must be between 1 and 50")
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		env.catalog.PageSize = limit
		resp, hit, err := env.catalog.Search(cmd.Context(), query, start, app.Lookup{NoCache: noCache, History: true})
		switch {
		case errors.Is(err, oeis.ErrNoResults):
			if format == formatPlain {
				printWarning("No results for '%s'", query)
			}
			return nil
		case errors.Is(err, oeis.ErrTooManyResults):
			return fmt.Errorf("too many results for '%s', please narrow your search", query)
		case err != nil:
			return fmt.Errorf("search failed: %w", err)
		}
		env.logger.Debug("search done", "query", query, "results", len(resp.Results), "cached", hit)

		return writeSearch(cmd.OutOrStdout(), query, resp, limit, format, names)
	},
}

func init() {
	searchCmd.Flags().IntP("limit", "n", 10, "maximum number of results (1-50)")
	searchCmd.Flags().Int("start", 0, "result offset for paging")
	searchCmd.Flags().Bool("no-cache", false, "skip the local cache")
	searchCmd.Flags().Bool("names", false, "print names next to A-numbers in csv, tsv and values formats")
	addFormatFlag(searchCmd)
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <A-number>...",
	Short: "Fetch one or more sequences by A-number",
	Long: `Fetch one or more sequences by A-number.

Examples:
  oeis fetch A000045
  oeis fetch A000045 -q                 # just the data
  oeis fetch A000045 -f csv > fib.csv
  oeis fetch A000045 -f tsv -q | gnuplot -p -e "plot '-' with lines"
  oeis fetch 40 45 108 -f json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		numbers := make([]int, len(args))
		for i, a := range args {
			if numbers[i], err = oeis.ParseANumber(a); err != nil {
				return err
			}
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		seqs, err := fetchAll(cmd, env.catalog, numbers, app.Lookup{NoCache: noCache})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, seq := range seqs {
			env.catalog.RecordView(seq.Number)
			if err := writeSequence(out, *seq, format, quiet); err != nil {
				return err
			}
		}
		return nil
	},
}

// fetchAll looks up numbers concurrently and returns them in input order.
func fetchAll(cmd *cobra.Command, c *app.Catalog, numbers []int, opt app.Lookup) ([]*oeis.Sequence, error) {
	seqs := make([]*oeis.Sequence, len(numbers))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(maxConcurrentFetches)
	for i, n := range numbers {
		g.Go(func() error {
			seq, _, err := c.Sequence(ctx, n, opt)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", oeis.FormatANumber(n), err)
			}
			seqs[i] = seq
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return seqs, nil
}

func init() {
	fetchCmd.Flags().BoolP("quiet", "q", false, "minimal output")
	fetchCmd.Flags().Bool("no-cache", false, "skip the local cache")
	addFormatFlag(fetchCmd)
}

// --- random ---

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Fetch a random sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		seq, err := env.catalog.Random(cmd.Context())
		if errors.Is(err, oeis.ErrNotFound) {
			if !quiet {
				printWarning("No random sequence available right now.")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("random pick failed: %w", err)
		}
		env.catalog.RecordView(seq.Number)

		out := cmd.OutOrStdout()
		if !quiet && format == formatPlain {
			fmt.Fprintln(out, colorize(colorBold, "Random sequence:"))
		}
		return writeSequence(out, *seq, format, quiet)
	},
}

func init() {
	randomCmd.Flags().BoolP("quiet", "q", false, "minimal output")
	addFormatFlag(randomCmd)
}

// --- webcam ---

var webcamCmd = &cobra.Command{
	Use:   "webcam",
	Short: "Browse random sequences from a category, refreshed on a timer",
	Long: `webcam starts the interactive browser in webcam mode.

Categories: all, best (keyword:nice), more (keyword:more), new (keyword:new).
Intervals: manual, 5s, 10s, 20s, 30s, 1m. With manual, :w shows the next pick.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := webcamStartLine(cmd)
		if err != nil {
			return err
		}
		return runInteractive(cmd.Context(), line)
	},
}

func init() {
	webcamCmd.Flags().StringP("category", "c", "all", "category: all, best, more, new")
	webcamCmd.Flags().StringP("interval", "i", "10s", "refresh interval: manual, 5s, 10s, 20s, 30s, 1m")
}

// webcamStartLine validates the webcam flags and returns the session command
// that starts webcam mode.
func webcamStartLine(cmd *cobra.Command) (string, error) {
	catStr, _ := cmd.Flags().GetString("category")
	intervalStr, _ := cmd.Flags().GetString("interval")
	category, err := oeis.ParseCategory(catStr)
	if err != nil {
		return "", err
	}
	interval, err := app.ParseWebcamInterval(intervalStr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(":w %s %s", category, app.WebcamIntervalLabel(interval)), nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <A-number>",
	Short: "Export a sequence as json, csv, txt, markdown or bfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		withBFile, _ := cmd.Flags().GetBool("bfile")

		format, err := app.ParseExportFormat(formatStr)
		if err != nil {
			return err
		}
		n, err := oeis.ParseANumber(args[0])
		if err != nil {
			return err
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		seq, _, err := env.catalog.Sequence(cmd.Context(), n, app.Lookup{})
		if err != nil {
			return err
		}

		var entries []oeis.BFileEntry
		if withBFile || format == app.ExportBFile {
			entries, err = env.catalog.BFile(cmd.Context(), n)
			if err != nil {
				printWarning("b-file not available, using data field: %v", err)
			}
		}

		text, err := app.ExportSequence(*seq, format, entries)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %s to %s", seq.ANumber(), output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "export format: json, csv, txt, markdown, bfile")
	exportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	exportCmd.Flags().Bool("bfile", false, "use the extended b-file listing where the format supports it")
}

// --- bookmarks ---

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List or manage bookmarked sequences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bookmarksListCmd.RunE(cmd, args)
	},
}

var bookmarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		bookmarks, err := env.store.Bookmarks()
		if err != nil {
			return fmt.Errorf("listing bookmarks: %w", err)
		}
		writeBookmarks(cmd.OutOrStdout(), bookmarks, terminalWidth())
		return nil
	},
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add <A-number> [notes...]",
	Short: "Bookmark a sequence",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := oeis.ParseANumber(args[0])
		if err != nil {
			return err
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		// Cache the entry so the bookmark list can show its name.
		if _, _, err := env.catalog.Sequence(cmd.Context(), n, app.Lookup{}); err != nil {
			printWarning("could not fetch %s: %v", oeis.FormatANumber(n), err)
		}
		if err := env.store.AddBookmark(n, strings.Join(args[1:], " ")); err != nil {
			return fmt.Errorf("saving bookmark: %w", err)
		}
		printSuccess("Bookmarked %s", oeis.FormatANumber(n))
		return nil
	},
}

var bookmarksRemoveCmd = &cobra.Command{
	Use:     "remove <A-number>",
	Aliases: []string{"rm"},
	Short:   "Remove a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := oeis.ParseANumber(args[0])
		if err != nil {
			return err
		}

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.RemoveBookmark(n); err != nil {
			return fmt.Errorf("removing bookmark: %w", err)
		}
		printSuccess("Removed bookmark %s", oeis.FormatANumber(n))
		return nil
	},
}

func init() {
	bookmarksCmd.AddCommand(bookmarksListCmd)
	bookmarksCmd.AddCommand(bookmarksAddCmd)
	bookmarksCmd.AddCommand(bookmarksRemoveCmd)
}

func writeBookmarks(w io.Writer, bookmarks []storage.Bookmark, width int) {
	if len(bookmarks) == 0 {
		fmt.Fprintln(w, "No bookmarks.")
		return
	}
	for _, b := range bookmarks {
		line := fmt.Sprintf("%s  %s", colorize(colorCyan, oeis.FormatANumber(b.Number)), b.BookmarkedAt.Local().Format("2006-01-02"))
		rest := b.Name
		if b.Notes != "" {
			rest = strings.TrimSpace(rest + "  [" + b.Notes + "]")
		}
		fmt.Fprintf(w, "%s  %s\n", line, truncate(rest, width-20))
	}
}

// --- history / recent ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent search queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.store.History(limit)
		if err != nil {
			return fmt.Errorf("listing history: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No search history.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s\n", colorize(colorDim, e.SearchedAt.Local().Format("2006-01-02 15:04")), e.Query)
		}
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recently viewed sequences",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		views, err := env.store.RecentlyViewed(limit)
		if err != nil {
			return fmt.Errorf("listing recent views: %w", err)
		}
		writeRecent(cmd.OutOrStdout(), views, terminalWidth())
		return nil
	},
}

func writeRecent(w io.Writer, views []storage.RecentView, width int) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No recently viewed sequences.")
		return
	}
	for _, v := range views {
		count := padRight(fmt.Sprintf("×%d", v.ViewCount), 5)
		fmt.Fprintf(w, "%s  %s %s\n", colorize(colorCyan, oeis.FormatANumber(v.Number)), colorize(colorDim, count), truncate(v.Name, width-16))
	}
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "maximum number of entries")
	recentCmd.Flags().IntP("limit", "n", 20, "maximum number of entries")
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.store.Stats()
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		printStats(stats)
		printStatus("Max age", "%d days", env.cfg.Cache.MaxAgeDays)
		printStatus("Data dir", "%s", env.cfg.Storage.DataDir)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached searches and sequences (bookmarks and history are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.ClearCaches(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		printSuccess("Cache cleared")
		return nil
	},
}

func printStats(stats storage.Stats) {
	printStatus("Cached searches", "%d", stats.SearchCache)
	printStatus("Cached sequences", "%d", stats.SequenceCache)
	printStatus("Search history", "%d", stats.SearchHistory)
	printStatus("Viewed sequences", "%d", stats.ViewedSequence)
	printStatus("Bookmarks", "%d", stats.Bookmarks)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			note := k.EnvVar
			if k.Value != k.Default {
				note += ", default " + k.Default
			}
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+note+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- helpers ---

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", string(formatPlain), "output format: plain, json, csv, tsv, values")
}

func formatFlag(cmd *cobra.Command) (outputFormat, error) {
	s, _ := cmd.Flags().GetString("format")
	return parseOutputFormat(s)
}
