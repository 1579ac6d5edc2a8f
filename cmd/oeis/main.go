package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/config"
	"github.com/kalambet/oeis/internal/logging"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

var version = "dev"

var (
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "oeis",
	Short: "Search the On-Line Encyclopedia of Integer Sequences from the terminal",
	Long: `oeis searches the On-Line Encyclopedia of Integer Sequences.

Run without a subcommand to start the interactive browser.

Examples:
  oeis search 1,1,2,3,5,8
  oeis fetch A000045 A000040 --format values
  oeis random
  oeis webcam --category best --interval 30s
  oeis serve --mcp`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("no-color") {
			noColor = os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd()))
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(webcamCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := run(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// environment bundles what every command needs: config, logger, store and
// the OEIS client behind a read-through catalog.
type environment struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.Store
	client  *oeis.Client
	catalog *app.Catalog
	closers []io.Closer
}

// openEnvironment loads config and opens the store. Long-running modes log
// to the configured file; one-shot commands log to stderr.
func openEnvironment(longRunning bool) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	env := &environment{cfg: cfg}
	if longRunning {
		logger, closer, err := logging.Setup(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("setting up logging: %w", err)
		}
		env.logger = logger
		env.closers = append(env.closers, closer)
	} else {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		env.logger = logging.New(os.Stderr, level, cfg.Log.Format)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	env.store = store
	env.closers = append([]io.Closer{store}, env.closers...)

	env.client = oeis.New(cfg.OEIS.BaseURL,
		oeis.WithTimeout(cfg.OEIS.TimeoutDuration()),
		oeis.WithRateLimit(cfg.OEIS.RateLimit),
	)
	env.catalog = &app.Catalog{
		Store:    store,
		Remote:   env.client,
		MaxAge:   cfg.MaxCacheAge(),
		PageSize: cfg.Search.ResultsPerPage,
		Logger:   env.logger,
	}
	return env, nil
}

// Close releases the store and the log file.
func (e *environment) Close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing: %v\n", err)
		}
	}
}
