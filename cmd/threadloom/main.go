// ABOUTME: Entry point for the threadloom daemon
// ABOUTME: Wires the Matrix bridge, session store, and Anthropic backend together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/threadloom/internal/attach"
	"github.com/2389/threadloom/internal/backend"
	"github.com/2389/threadloom/internal/config"
	"github.com/2389/threadloom/internal/conversation"
	"github.com/2389/threadloom/internal/dedupe"
	"github.com/2389/threadloom/internal/frontend/matrix"
	"github.com/2389/threadloom/internal/markup"
	"github.com/2389/threadloom/internal/platform"
	"github.com/2389/threadloom/internal/session"
)

const banner = `
    ╭──────────────────────────────────────────╮
    │                                          │
    │   ╺┳╸╻ ╻┏━┓┏━╸┏━┓╺┳┓╻  ┏━┓┏━┓┏┳┓         │
    │    ┃ ┣━┫┣┳┛┣╸ ┣━┫ ┃┃┃  ┃ ┃┃ ┃┃┃┃         │
    │    ╹ ╹ ╹╹┗╸┗━╸╹ ╹╺┻┛┗━╸┗━┛┗━┛╹ ╹         │
    │                                          │
    │       thread conversation daemon         │
    │                                          │
    ╰──────────────────────────────────────────╯
`

// getConfigPath returns the path to the threadloom config file.
// Priority: THREADLOOM_CONFIG env var > XDG_CONFIG_HOME/threadloom/config.yaml > ~/.config/threadloom/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("THREADLOOM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "threadloom", "config.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Model:      %s\n", cfg.Anthropic.Model)
	if cfg.Matrix.CryptoDBPath != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	store := session.NewStore(logger)

	var cache attach.ByteCache
	if cfg.Cache.Path != "" {
		sqliteCache, err := attach.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("opening attachment cache: %w", err)
		}
		defer sqliteCache.Close()
		cache = sqliteCache
	} else {
		cache = attach.NewMemoryCache()
	}

	be := backend.NewAnthropicBackend(backend.AnthropicOptions{
		APIKey:    cfg.Anthropic.APIKey,
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
	}, logger)

	dedupeTTL := cfg.Dedupe.TTL
	if dedupeTTL == 0 {
		dedupeTTL = 10 * time.Minute
	}
	dedupeSize := cfg.Dedupe.MaxSize
	if dedupeSize == 0 {
		dedupeSize = 10000
	}
	seen := dedupe.New(dedupeTTL, dedupeSize)
	defer seen.Close()

	// The bridge and the conversation service reference each other: the bridge
	// feeds events in, the service posts replies back out. The handler closure
	// resolves the cycle; svc is assigned before Run starts the sync loop.
	var svc *conversation.Service
	handler := func(ev platform.Event) {
		if seen.CheckAndMark(eventKey(ev)) {
			logger.Debug("duplicate event dropped", "message_id", ev.MessageID)
			return
		}
		svc.HandleEvent(ev)
	}

	bridge, err := matrix.NewBridge(cfg.Matrix, handler, markup.NewMarkdown(), logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	resolver := attach.NewResolver(bridge, cache, logger)

	mentionToken := cfg.Conversation.MentionToken
	if mentionToken == "" {
		mentionToken = cfg.Matrix.UserID
	}
	svc = conversation.New(store, be, bridge, resolver, conversation.Options{
		MentionToken:   mentionToken,
		SystemPrompt:   cfg.Conversation.SystemPrompt,
		WorkingEmoji:   cfg.Conversation.WorkingEmoji,
		InlineLimit:    cfg.Conversation.InlineLimit,
		RequestTimeout: cfg.Conversation.RequestTimeout,
	}, logger)
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting threadloom")
	return bridge.Run(ctx)
}

// eventKey distinguishes the message, edit, and deletion deliveries that can
// share one message id.
func eventKey(ev platform.Event) string {
	switch {
	case ev.IsDeletion:
		return ev.MessageID + "|del"
	case ev.IsEdit:
		return ev.MessageID + "|edit|" + ev.Text
	}
	return ev.MessageID
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
