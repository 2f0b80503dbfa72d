package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/watchfeed/internal/api"
	"github.com/kalambet/watchfeed/internal/config"
	"github.com/kalambet/watchfeed/internal/llm/factory"
	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/scheduler"
	"github.com/kalambet/watchfeed/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background scheduler (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watchfeed server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watchfeed server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "watchfeed.pid")
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

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] unknown log.level %q, using info\n", level)
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// components holds the wired core shared by the server and the MCP command.
type components struct {
	store      *storage.Store
	ai         *factory.Factory
	recorder   *runlog.Recorder
	fetcher    *pipeline.Fetcher
	translator *pipeline.Translator
}

func buildComponents(cfg config.Config) (*components, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	resolver := provider.NewResolver(store, cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.RatePerMinute)
	ai := factory.New(store, factory.Options{
		OpenRouterBaseURL: cfg.AI.OpenRouterBaseURL,
		OllamaBaseURL:     cfg.AI.OllamaBaseURL,
		GeminiBaseURL:     cfg.AI.GeminiBaseURL,
	})
	recorder := runlog.NewRecorder(store)

	return &components{
		store:      store,
		ai:         ai,
		recorder:   recorder,
		fetcher:    pipeline.NewFetcher(store, resolver, recorder, cfg.Provider.PageSize),
		translator: pipeline.NewTranslator(store, ai, recorder, cfg.AI.MaxOutputTokens),
	}, nil
}

func (c *components) close() {
	if err := c.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func runServer(parent context.Context) error {
	fmt.Fprintf(os.Stderr, "watchfeed version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	var poll time.Duration
	if cfg.Scheduler.Enabled {
		if poll, err = cfg.Scheduler.PollDuration(); err != nil {
			return err
		}
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	if resp, err := statusClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	handler := api.NewAppHandler(api.AppDeps{
		Store:        c.store,
		Fetcher:      c.fetcher,
		Translator:   c.translator,
		Recorder:     c.recorder,
		AI:           c.ai,
		Token:        apiToken,
		DefaultOwner: cfg.Server.OwnerID,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "watchfeed listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		worker := scheduler.NewWorker(c.store, c.fetcher, c.translator, poll)
		g.Go(func() error {
			worker.Run(gCtx)
			return nil
		})
		slog.Info("scheduler started", "poll_interval", poll)
	}

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:      c.store,
		Fetcher:    c.fetcher,
		Translator: c.translator,
		Recorder:   c.recorder,
		OwnerID:    cfg.Server.OwnerID,
	})
	slog.Info("MCP server started (stdio transport)", "owner", cfg.Server.OwnerID)

	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("watchfeed is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop watchfeed (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to watchfeed (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	running := false
	resp, err := statusClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Scheduler.Enabled {
		printStatus("Scheduler", "enabled (poll %s)", cfg.Scheduler.PollInterval)
	} else {
		printStatus("Scheduler", "disabled")
	}
	printStatus("Owner", "%s", cfg.Server.OwnerID)

	if running {
		client, err := newAPIClient()
		if err == nil {
			if n, err := countWatchlists(ctx, client); err == nil {
				printStatus("Watchlists", "%d", n)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countWatchlists(ctx context.Context, client *apiClient) (int, error) {
	resp, err := client.get(ctx, "/watchlists")
	if err != nil {
		return 0, err
	}
	var lists []struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &lists); err != nil {
		return 0, err
	}
	return len(lists), nil
}
