package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/petal-labs/perplexity-mcp/config"
	"github.com/petal-labs/perplexity-mcp/journal"
	"github.com/petal-labs/perplexity-mcp/launch"
	mcpotel "github.com/petal-labs/perplexity-mcp/otel"
	"github.com/petal-labs/perplexity-mcp/perplexity"
	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/tool"
	"github.com/petal-labs/perplexity-mcp/transport"
)

const serverName = "Perplexity MCP"

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("transport", "", "Transport to serve: stdio | sse (default: auto-detect)")
	cmd.Flags().Bool("stdio", false, "Serve on stdin/stdout")
	cmd.Flags().Bool("sse", false, "Serve over Server-Sent Events")
	cmd.Flags().Bool("inspector", false, "Running under an MCP inspector (implies stdio)")
	cmd.Flags().IntP("port", "p", config.DefaultPort, "Listen port (implies sse)")
	cmd.Flags().String("host", config.DefaultHost, "Listen host")
	cmd.Flags().String("auth-token", "", "Require this bearer token on /sse and /messages")
	cmd.Flags().String("cors-origin", config.DefaultCORSOrigin, "Allowed CORS origin")
	cmd.Flags().String("journal", "", "Path to the SQLite event journal (disabled when empty)")
	cmd.Flags().Duration("heartbeat", config.DefaultHeartbeat, "Pipe-mode liveness log interval (negative disables)")
	cmd.Flags().Duration("shutdown-timeout", config.DefaultShutdownTimeout, "Graceful shutdown bound")
}

// loadConfig resolves the config file and environment, then applies flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicitPath, _ := cmd.Flags().GetString("config")
	path, _, err := config.DiscoverPath(explicitPath)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "%v", err)
	}
	cfg, err := config.Load(path, os.Getenv)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "invalid configuration: %v", err)
	}

	flags := cmd.Flags()
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Lookup("host") != nil && flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Lookup("auth-token") != nil && flags.Changed("auth-token") {
		cfg.AuthToken, _ = flags.GetString("auth-token")
	}
	if flags.Lookup("cors-origin") != nil && flags.Changed("cors-origin") {
		cfg.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Lookup("journal") != nil && flags.Changed("journal") {
		cfg.Journal.Path, _ = flags.GetString("journal")
	}
	if flags.Lookup("heartbeat") != nil && flags.Changed("heartbeat") {
		cfg.Heartbeat, _ = flags.GetDuration("heartbeat")
	}
	if flags.Lookup("shutdown-timeout") != nil && flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout, _ = flags.GetDuration("shutdown-timeout")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, exitError(exitConfig, "invalid configuration: %v", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, version string, rawArgs []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	transportFlag, _ := cmd.Flags().GetString("transport")
	stdioFlag, _ := cmd.Flags().GetBool("stdio")
	sseFlag, _ := cmd.Flags().GetBool("sse")
	inspectorFlag, _ := cmd.Flags().GetBool("inspector")
	mode, reason, err := launch.Classify(launch.Context{
		Transport:     transportFlag,
		StdioFlag:     stdioFlag,
		InspectorFlag: inspectorFlag,
		SSEFlag:       sseFlag,
		PortSet:       cmd.Flags().Changed("port"),
		Args:          rawArgs,
		Env:           os.Getenv,
	})
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	// stdout is the protocol channel in pipe mode.
	logOut := cmd.OutOrStdout()
	if mode == launch.ModeStdio {
		logOut = cmd.ErrOrStderr()
	}
	logger := newLogger(logOut, logLevel(cmd, cfg.LogLevel))
	logger.Info("starting perplexity-mcp", "version", version, "transport", string(mode), "reason", string(reason))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := mcpotel.Setup(ctx, mcpotel.ProviderConfig{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceVersion: version,
	})
	if err != nil {
		return exitError(exitConfig, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	otelObserver, err := mcpotel.NewObserver(telemetry.Meter, telemetry.Tracer)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	toolObservers := tool.MultiObserver{otelObserver}
	sessionObservers := session.MultiObserver{otelObserver}

	if cfg.Journal.Path != "" {
		store, err := journal.OpenFile(cfg.Journal.Path)
		if err != nil {
			return exitError(exitConfig, "opening journal: %v", err)
		}
		defer func() { _ = store.Close() }()

		pruner, err := journal.StartPruner(journal.PrunerConfig{
			Store:     store,
			Retention: cfg.Journal.Retention,
			Schedule:  cfg.Journal.Prune,
			Logger:    logger,
		})
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		defer pruner.Stop()

		recorder, err := journal.NewRecorder(journal.RecorderConfig{Store: store, Logger: logger})
		if err != nil {
			return fmt.Errorf("starting journal: %w", err)
		}
		defer recorder.Close()

		toolObservers = append(toolObservers, recorder)
		sessionObservers = append(sessionObservers, recorder)
		logger.Info("journal enabled", "path", cfg.Journal.Path)
	}

	if cfg.APIKey == "" {
		logger.Warn("PERPLEXITY_API_KEY is not set; tool calls will return configuration guidance")
	}
	chatter := perplexity.NewClient(perplexity.ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Logger:  logger,
	})

	mcpServer := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
		server.WithToolHandlerMiddleware(tool.RecoverMiddleware(logger, toolObservers)),
	)
	if err := tool.Register(mcpServer, tool.RegistryConfig{
		Chatter:  chatter,
		Observer: toolObservers,
		Logger:   logger,
	}); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	manager, err := session.NewManager(session.ManagerConfig{
		Server:   mcpServer,
		Logger:   logger,
		Observer: sessionObservers,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	if mode == launch.ModeStdio {
		return transport.RunStdio(ctx, transport.StdioConfig{
			Manager:           manager,
			In:                cmd.InOrStdin(),
			Out:               cmd.OutOrStdout(),
			Logger:            logger,
			HeartbeatInterval: cfg.Heartbeat,
			ShutdownTimeout:   cfg.ShutdownTimeout,
		})
	}
	return serveSSE(ctx, cfg, manager, logger)
}

func serveSSE(ctx context.Context, cfg config.Config, manager *session.Manager, logger *slog.Logger) error {
	handler, err := transport.NewSSEHandler(transport.SSEConfig{
		Manager:    manager,
		Logger:     logger,
		AuthToken:  cfg.AuthToken,
		CORSOrigin: cfg.CORSOrigin,
	})
	if err != nil {
		return fmt.Errorf("creating sse handler: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	// No WriteTimeout: event streams stay open for the life of a session.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "stream", "/sse", "messages", "/messages", "auth", cfg.AuthToken != "")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Closing sessions first ends the open streams so Shutdown can drain.
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Error("session shutdown error", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		_ = manager.Shutdown(context.Background())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}
