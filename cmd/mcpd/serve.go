package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/config"
	"github.com/toolwire/mcpd/middleware"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to mcpd.yaml (optional)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Logging)

	srv, err := buildServer(cfg)
	if err != nil {
		return err
	}

	opts := []mcpd.ServeOption{
		mcpd.WithCallTimeout(cfg.Limits.CallTimeout),
		mcpd.WithMaxConcurrent(cfg.Limits.MaxConcurrent),
		mcpd.WithGracePeriod(cfg.Limits.GracePeriod),
		mcpd.WithMiddleware(buildMiddleware(cfg, logger)...),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport.Mode {
	case "websocket":
		logger.Info("serving websocket", mcpd.LogF("addr", cfg.Transport.Addr))
		return mcpd.ServeWebSocket(ctx, srv, cfg.Transport.Addr, nil, opts...)
	default:
		return mcpd.ServeStdio(ctx, srv, opts...)
	}
}

// buildServer registers the configured static resources and prompt
// templates.
func buildServer(cfg *config.Config) (*mcpd.Server, error) {
	srv := mcpd.NewServer(mcpd.ServerInfo{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
		Capabilities: mcpd.Capabilities{
			Resources: len(cfg.Resources) > 0,
			Prompts:   len(cfg.Prompts) > 0,
		},
	})

	if cfg.Server.DemoTools {
		registerDemoTools(srv)
	}

	for _, res := range cfg.Resources {
		text, err := res.Content()
		if err != nil {
			return nil, err
		}
		mimeType := res.MimeType
		if mimeType == "" {
			mimeType = "text/plain"
		}
		err = srv.Resource(res.URI).
			Name(res.Name).
			MimeType(mimeType).
			Handler(func(ctx context.Context, uri string, params map[string]string) (*mcpd.ResourceContent, error) {
				return &mcpd.ResourceContent{URI: uri, MimeType: mimeType, Text: text}, nil
			}).
			Err()
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", res.URI, err)
		}
	}

	for _, p := range cfg.Prompts {
		builder := srv.Prompt(p.Name).Description(p.Description)
		for _, arg := range p.Arguments {
			builder.Argument(arg.Name, arg.Description, arg.Required)
		}
		role := p.Role
		if role == "" {
			role = "user"
		}
		if err := builder.Template(role, p.Template).Err(); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", p.Name, err)
		}
	}

	return srv, nil
}

type echoInput struct {
	Message string `json:"message" jsonschema:"required,description=Message to echo back"`
}

// registerDemoTools adds the built-in smoke-test tools.
func registerDemoTools(srv *mcpd.Server) {
	srv.Tool("echo").
		Description("Echo the input back").
		Handler(func(input echoInput) (string, error) {
			return input.Message, nil
		})

	srv.Tool("server_time").
		Description("Current server time in RFC 3339 format").
		Handler(func(input struct{}) (string, error) {
			return time.Now().Format(time.RFC3339), nil
		})
}

func buildMiddleware(cfg *config.Config, logger mcpd.Logger) []mcpd.Middleware {
	stack := middleware.DefaultStack(logger)
	if cfg.Limits.MaxRequestBytes > 0 {
		stack = append(stack, mcpd.SizeLimit(cfg.Limits.MaxRequestBytes, mcpd.WithSizeLimitLogger(logger)))
	}
	if cfg.Limits.RateLimit > 0 {
		burst := cfg.Limits.RateBurst
		if burst <= 0 {
			burst = cfg.Limits.RateLimit
		}
		stack = append(stack, mcpd.RateLimit(cfg.Limits.RateLimit, burst, mcpd.WithRateLimitLogger(logger)))
	}
	return stack
}

// newLogger builds the process logger. Stdout carries the protocol in
// stdio mode, so logs always go to stderr.
func newLogger(cfg config.LoggingConfig) mcpd.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return middleware.NewSlogLogger(slog.New(handler))
}
