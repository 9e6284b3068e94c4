package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-lens/internal/cli"
	"github.com/sammcj/mcp-lens/internal/registry"
	"github.com/sammcj/mcp-lens/internal/telemetry"
	"github.com/sammcj/mcp-lens/internal/tools"
	"github.com/sirupsen/logrus"
	climain "github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/sammcj/mcp-lens/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
// Using atomic operations to prevent race conditions between signal handlers and cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
	errorLogger  atomic.Pointer[tools.ToolErrorLogger]
	shutdownOTEL atomic.Pointer[func() error]
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))

	switch logLevelStr {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

func main() {
	// Create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initially discard output - reconfigured once the command is known
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	registry.Init(logger)

	// Ensure cleanup runs on normal exit OR signal
	defer performCleanup(logger)

	app := &climain.Command{
		Name:    "mcp-lens",
		Usage:   "MCP server and CLI for Google Lens reverse image search",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []climain.Flag{
			&climain.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio or http)",
			},
			&climain.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for the Streamable HTTP transport",
			},
			&climain.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for the Streamable HTTP transport",
			},
		},
		Commands: []*climain.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *climain.Command) error {
					fmt.Printf("mcp-lens version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:      "search",
				Usage:     "Reverse image search a local file or an image URL",
				ArgsUsage: "[file]",
				Flags: []climain.Flag{
					&climain.StringFlag{
						Name:  "url",
						Usage: "Image URL to search instead of a local file",
					},
					&climain.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   string(cli.OutputText),
						Usage:   "Output format (text or json)",
					},
					&climain.IntFlag{
						Name:  "retries",
						Value: 0,
						Usage: "Retries for transient failures (0-5)",
					},
				},
				Action: func(ctx context.Context, cmd *climain.Command) error {
					output, err := cli.ParseOutputFormat(cmd.String("output"))
					if err != nil {
						return err
					}
					configureCLILogging(logger)

					runner := cli.NewRunner(logger, registry.GetCache(), output)
					return runner.Search(ctx, cli.SearchRequest{
						ImageURL: cmd.String("url"),
						FilePath: cmd.Args().First(),
						Retries:  int(cmd.Int("retries")),
					})
				},
			},
			{
				Name:  "tools",
				Usage: "List available tools or show help for one",
				Flags: []climain.Flag{
					&climain.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   string(cli.OutputText),
						Usage:   "Output format (text or json)",
					},
				},
				ArgsUsage: "[tool]",
				Action: func(ctx context.Context, cmd *climain.Command) error {
					output, err := cli.ParseOutputFormat(cmd.String("output"))
					if err != nil {
						return err
					}
					runner := cli.NewRunner(logger, registry.GetCache(), output)
					if name := cmd.Args().First(); name != "" {
						return runner.HelpTool(name)
					}
					return runner.ListTools()
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *climain.Command) error {
			transport := cmd.String("transport")
			isStdioMode.Store(transport == "stdio")

			configureServerLogging(logger)

			if transport != "stdio" {
				logger.Infof("Starting mcp-lens version %s (commit: %s, built: %s)", Version, Commit, BuildDate)
			}

			mcpSrv := mcpserver.NewMCPServer("mcp-lens", Version)
			registerTools(mcpSrv, logger, transport)

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "http":
				return startStreamableHTTPServer(cliCtx, cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// In stdio mode nothing may be written to stdout or stderr
		if !isStdioMode.Load() {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		performCleanup(logger)
		os.Exit(1)
	}
}

// configureServerLogging sends logs to ~/.mcp-lens/logs/mcp-lens.log in stdio mode and
// to stderr otherwise, then starts tracing and the tool error log.
func configureServerLogging(logger *logrus.Logger) {
	logLevel := parseLogLevel()
	var fallback io.Writer = os.Stderr
	if isStdioMode.Load() {
		fallback = io.Discard
	}

	logger.SetOutput(fallback)
	logDir := ""
	if homeDir, err := os.UserHomeDir(); err == nil {
		logDir = filepath.Join(homeDir, ".mcp-lens", "logs")
		if err := os.MkdirAll(logDir, 0700); err == nil && isStdioMode.Load() {
			logFile := filepath.Join(logDir, "mcp-lens.log")
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
				debugLogFile.Store(file)
				logger.SetOutput(file)
			}
		}
	}
	logger.SetLevel(logLevel)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logLevel)
	logger.WithField("level", logLevel.String()).Debug("Logging configured")

	startTracing(logger)

	if logDir != "" {
		el, err := tools.NewToolErrorLogger(logger, logDir)
		if err != nil {
			logger.WithError(err).Debug("Failed to initialise tool error logger")
		}
		errorLogger.Store(el)
	}
}

// configureCLILogging sends logs to stderr so stdout carries only results
func configureCLILogging(logger *logrus.Logger) {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	startTracing(logger)
}

func startTracing(logger *logrus.Logger) {
	shutdown, err := telemetry.InitTracer(logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing")
	}
	shutdownOTEL.Store(&shutdown)
}

// registerTools adds every enabled tool to the MCP server
func registerTools(mcpSrv *mcpserver.MCPServer, logger *logrus.Logger, transport string) {
	enabledTools := registry.GetEnabledTools()
	logger.WithField("tool_count", len(enabledTools)).Debug("Registering tools")

	for name, tool := range enabledTools {
		if transport != "stdio" {
			logger.Infof("Registering tool: %s", name)
		}

		mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			currentTool, ok := registry.GetTool(name)
			if !ok {
				return nil, fmt.Errorf("tool not found: %s", name)
			}

			args, ok := request.Params.Arguments.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
			}

			spanCtx, span := telemetry.StartToolSpan(toolCtx, name)
			result, err := currentTool.Execute(spanCtx, registry.GetLogger(), registry.GetCache(), args)
			telemetry.EndToolSpan(span, err)
			if err != nil {
				if transport != "stdio" {
					logger.WithError(err).Errorf("Tool execution failed: %s", name)
				}
				errorLogger.Load().LogToolError(name, args, err, transport)
				return nil, fmt.Errorf("tool execution failed: %w", err)
			}

			return result, nil
		})
	}
}

// performCleanup handles cleanup of resources on shutdown
func performCleanup(logger *logrus.Logger) {
	if shutdown := shutdownOTEL.Swap(nil); shutdown != nil {
		if err := (*shutdown)(); err != nil {
			logger.WithError(err).Debug("Failed to shutdown tracer")
		}
	}

	if el := errorLogger.Swap(nil); el != nil {
		if err := el.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}

	// Silently close - stdio mode allows no output and the logger may point at this file
	if file := debugLogFile.Swap(nil); file != nil {
		_ = file.Close()
	}
}

// startStreamableHTTPServer serves the Streamable HTTP transport until ctx is cancelled
func startStreamableHTTPServer(ctx context.Context, cmd *climain.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer,
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithHeartbeatInterval(30*time.Second),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	)

	mux := http.NewServeMux()
	mux.Handle(endpointPath, httpServer)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	logger.Info("HTTP server stopped gracefully")
	return nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
