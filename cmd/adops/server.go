package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/castora/adops/internal/api"
	"github.com/castora/adops/internal/backend"
	"github.com/castora/adops/internal/config"
	adcopy "github.com/castora/adops/internal/copy"
	"github.com/castora/adops/internal/meta"
	"github.com/castora/adops/internal/optimizer"
	"github.com/castora/adops/internal/secret"
	"github.com/castora/adops/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the adops server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running adops server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show adops system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "adops.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "adops version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("adops is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("adops is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// AI backend coordinator. Running without any key is allowed; analysis
	// then falls back to the rule-based heuristics.
	coordinator := backend.NewCoordinator(backend.Credentials{
		OpenAIKey: cfg.AI.OpenAIAPIKey,
		GeminiKey: cfg.AI.GeminiAPIKey,
	}, cfg.AI.OpenAIModel, cfg.AI.GeminiModel)
	if cfg.AI.OpenAIAPIKey == "" && cfg.AI.GeminiAPIKey == "" {
		slog.Warn("no AI backend credentials configured, analysis runs rule-based only")
	}

	newGateway := func(accessToken, accountID string) optimizer.Gateway {
		return meta.NewWithBaseURL(accessToken, accountID, cfg.Meta.BaseURL)
	}
	newAnalyzer := func(preferredBackend string) optimizer.Analyzer {
		return api.NewAnalyzer(coordinator, preferredBackend)
	}

	cipher := secret.Passthrough{}
	opt := optimizer.New(store, cipher, newGateway, newAnalyzer)

	// Copy generation uses the pay-per-use backend when available.
	var copyGen api.CopyGenerator
	if handle := coordinator.Select(backend.KindOpenAI); handle != nil {
		copyGen = adcopy.NewGenerator(handle)
	}

	deps := api.AppDeps{
		Store:       store,
		Cipher:      cipher,
		Coordinator: coordinator,
		Optimizer:   opt,
		Copy:        copyGen,
		Token:       apiToken,
		NewGateway:  newGateway,
		NewAnalyzer: newAnalyzer,
	}
	handler := api.NewAppHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the autonomous optimization scheduler.
	interval := time.Duration(cfg.Optimizer.IntervalMinutes) * time.Minute
	scheduler := optimizer.NewScheduler(store, opt, interval)
	go scheduler.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "adops listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("adops is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop adops (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to adops (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	switch {
	case cfg.AI.OpenAIAPIKey != "" && cfg.AI.GeminiAPIKey != "":
		printStatus("AI backends", "%s, %s", cfg.AI.OpenAIModel, cfg.AI.GeminiModel)
	case cfg.AI.OpenAIAPIKey != "":
		printStatus("AI backends", "%s", cfg.AI.OpenAIModel)
	case cfg.AI.GeminiAPIKey != "":
		printStatus("AI backends", "%s", cfg.AI.GeminiModel)
	default:
		printStatus("AI backends", "none (rule-based analysis only)")
	}

	printStatus("Ad platform", "%s", cfg.Meta.BaseURL)
	printStatus("Optimizer interval", "%dm", cfg.Optimizer.IntervalMinutes)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
