package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/oeis/internal/api"
	"github.com/kalambet/oeis/internal/config"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local cache and OEIS lookups over HTTP or MCP",
	Long: `Serve the local cache and OEIS lookups.

By default a REST API listens on 127.0.0.1:<server.port>. Set OEIS_SERVER_TOKEN
to require a bearer token. With --mcp the same tools are exposed to an MCP
client over stdin/stdout instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		useMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")
		if useMCP {
			return runMCP(cmd.Context())
		}
		return runServer(cmd.Context(), port)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running oeis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	serveCmd.Flags().Int("port", 0, "override server.port")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "oeis.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newDeps(env *environment) api.Deps {
	return api.Deps{
		Catalog: env.catalog,
		Store:   env.store,
		Token:   env.cfg.Server.Token,
		Logger:  env.logger,
	}
}

func runServer(ctx context.Context, port int) error {
	env, err := openEnvironment(true)
	if err != nil {
		return err
	}
	defer env.Close()

	if port <= 0 {
		port = env.cfg.Server.Port
	}
	logger := env.logger

	pidPath := pidFilePath(env.cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("oeis is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("oeis is already running on port %d", port)
		return fmt.Errorf("server already running on port %d", port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if env.cfg.Server.Token == "" {
		logger.Warn("OEIS_SERVER_TOKEN not set, API is unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(newDeps(env)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("oeis %s listening on %s", version, addr)
		logger.Info("server started", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context) error {
	env, err := openEnvironment(true)
	if err != nil {
		return err
	}
	defer env.Close()

	mcpSrv := api.NewMCPServer(newDeps(env), version)
	stdioSrv := server.NewStdioServer(mcpSrv)
	env.logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		env.logger.Error("MCP stdio server error", "error", err)
		return err
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("oeis server is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop oeis (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to oeis (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	var stats storage.Stats
	if err := client.health(ctx); err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if err := client.getJSON(ctx, "/stats", &stats); err != nil {
			printWarning("could not read server stats: %v", err)
		} else {
			printStats(stats)
		}
	}

	if stats == (storage.Stats{}) {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			printStatus("Store", "unavailable (%v)", err)
		} else {
			if s, err := store.Stats(); err == nil {
				printStats(s)
			}
			store.Close()
		}
	}

	if oeis.New(cfg.OEIS.BaseURL).IsReachable(ctx) {
		printStatus("OEIS", "reachable at %s", cfg.OEIS.BaseURL)
	} else {
		printStatus("OEIS", "not reachable at %s", cfg.OEIS.BaseURL)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
