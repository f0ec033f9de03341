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

	"listkeep/internal/api"
	"listkeep/internal/auth"
	"listkeep/internal/config"
	"listkeep/internal/list"
	"listkeep/internal/llm"
	"listkeep/internal/ratelimit"
	"listkeep/internal/storage"
	"listkeep/internal/translate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the listkeep server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running listkeep server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show listkeep system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "listkeep.pid")
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
	fmt.Fprintf(os.Stderr, "listkeep version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: a live health endpoint means another instance
	// owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("listkeep is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("listkeep is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	translator := translate.NewTranslator(buildChatter(ctx, cfg))
	if translator.Configured() {
		slog.Info("translation backend ready", "backend", translator.Backend())
	} else {
		slog.Warn("no translation backend configured; natural-language requests will fail until one is set up")
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	authMgr := auth.NewManagerWithTTL(store, cfg.Auth.SessionLifetime())
	lists := list.NewService(store, translator)
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	// Purge expired sessions in the background.
	go func() {
		ticker := time.NewTicker(cfg.Auth.SweepEvery())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				authMgr.Sweep()
			}
		}
	}()

	handler := api.NewHandler(api.Deps{
		Auth:    authMgr,
		Lists:   lists,
		Limiter: limiter,
	})

	if cfg.MCP.Enabled {
		owner, err := store.GetUserByEmail(cfg.MCP.OwnerEmail)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("mcp.owner_email %q has no account; register it first", cfg.MCP.OwnerEmail)
			}
			return fmt.Errorf("resolving MCP owner: %w", err)
		}
		mcpSrv := api.NewMCPServer(api.MCPDeps{Lists: lists, Owner: owner.ID})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)", "owner", cfg.MCP.OwnerEmail)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listkeep listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildChatter picks the model backend from config. A nil return leaves the
// translator unconfigured; the server still runs, and requests come back as
// translation failures until a backend is available.
func buildChatter(ctx context.Context, cfg config.Config) llm.Chatter {
	switch cfg.LLM.Backend {
	case "gemini":
		if cfg.LLM.Gemini.APIKey == "" {
			printWarning("llm.backend is gemini but GEMINI_API_KEY is not set")
			return nil
		}
		g, err := llm.NewGemini(ctx, cfg.LLM.Gemini.APIKey, cfg.LLM.Gemini.Model)
		if err != nil {
			printWarning("could not initialize the Gemini backend: %v", err)
			return nil
		}
		return g
	default:
		c := llm.NewOllama(cfg.LLM.Ollama.BaseURL, cfg.LLM.Ollama.Model)
		if !c.IsRunning(ctx) {
			printWarning("Ollama is not reachable at %s; start it before sending requests", cfg.LLM.Ollama.BaseURL)
		} else if !c.HasModel(ctx) {
			printWarning("Ollama does not have model %q; run: ollama pull %s", cfg.LLM.Ollama.Model, cfg.LLM.Ollama.Model)
		}
		return c
	}
}

func stopServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("listkeep is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop listkeep (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to listkeep (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	serverUp := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	switch cfg.LLM.Backend {
	case "gemini":
		if os.Getenv("GEMINI_API_KEY") == "" {
			printStatus("Model", "gemini/%s (GEMINI_API_KEY not set)", cfg.LLM.Gemini.Model)
		} else {
			printStatus("Model", "gemini/%s", cfg.LLM.Gemini.Model)
		}
	default:
		ollama := llm.NewOllama(cfg.LLM.Ollama.BaseURL, cfg.LLM.Ollama.Model)
		if !ollama.IsRunning(ctx) {
			printStatus("Model", "%s (Ollama not running at %s)", ollama.Name(), cfg.LLM.Ollama.BaseURL)
		} else if !ollama.HasModel(ctx) {
			printStatus("Model", "%s (model not pulled)", ollama.Name())
		} else {
			printStatus("Model", "%s", ollama.Name())
		}
	}

	// With a session on hand, show how big the list is.
	if token, err := loadToken(cfg.Storage.DataDir); err == nil && serverUp {
		lk := &apiClient{
			baseURL:    serverURL,
			token:      token,
			dataDir:    cfg.Storage.DataDir,
			httpClient: client,
		}
		if resp, err := lk.get(ctx, "/items"); err == nil {
			var items []itemView
			if decodeJSON(resp, &items) == nil {
				printStatus("Items", "%d on your list", len(items))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
