// ABOUTME: Interactive console for exercising the orchestrator locally
// ABOUTME: A REPL where each session is a thread against the real backend

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/threadloom/internal/attach"
	"github.com/2389/threadloom/internal/backend"
	"github.com/2389/threadloom/internal/conversation"
	"github.com/2389/threadloom/internal/platform"
	"github.com/2389/threadloom/internal/session"
)

const banner = `
    ╭──────────────────────────────────────────╮
    │                                          │
    │          threadloom console              │
    │                                          │
    ╰──────────────────────────────────────────╯
`

// mentionToken is prepended to session-starting messages so the console user
// never has to type it.
const mentionToken = "@loom"

// getConfigPath returns the path to the console config file.
// Priority: THREADLOOM_CONSOLE_CONFIG env var > XDG_CONFIG_HOME/threadloom/console.toml > ~/.config/threadloom/console.toml
func getConfigPath() string {
	if envPath := os.Getenv("THREADLOOM_CONSOLE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "threadloom", "console.toml")
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
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level)

	store := session.NewStore(logger)
	transport := newConsoleTransport()
	resolver := attach.NewResolver(transport, attach.NewMemoryCache(), logger)
	be := backend.NewAnthropicBackend(backend.AnthropicOptions{
		APIKey:    cfg.Anthropic.APIKey,
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
	}, logger)

	svc := conversation.New(store, be, transport, resolver, conversation.Options{
		MentionToken: mentionToken,
		SystemPrompt: cfg.Conversation.SystemPrompt,
		InlineLimit:  cfg.Conversation.InlineLimit,
	}, logger)
	defer svc.Close()

	fmt.Println("Type a message to start a thread. Commands: /new  /attach <path> <text>  /quit")
	fmt.Print("> ")

	var (
		msgCounter int
		threadID   string
	)
	nextMsgID := func() string {
		msgCounter++
		return fmt.Sprintf("msg-%d", msgCounter)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			fmt.Print("> ")
			continue

		case line == "/quit":
			return nil

		case line == "/new":
			threadID = ""
			fmt.Println("(next message starts a new thread)")
			fmt.Print("> ")
			continue

		case strings.HasPrefix(line, "/attach "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			path, text, _ := strings.Cut(rest, " ")
			ev := buildEvent(nextMsgID, &threadID, strings.TrimSpace(text))
			ev.Attachments = []platform.AttachmentRef{{
				FileID:   path,
				Filename: filepath.Base(path),
				MimeType: mimeFor(path),
			}}
			svc.HandleEvent(ev)

		default:
			svc.HandleEvent(buildEvent(nextMsgID, &threadID, line))
		}
	}
	return scanner.Err()
}

// buildEvent makes the next console event: top-level with the mention token
// when no thread is open, a reply otherwise.
func buildEvent(nextMsgID func() string, threadID *string, text string) platform.Event {
	id := nextMsgID()
	ev := platform.Event{
		MessageID: id,
		AuthorID:  "console",
		Text:      text,
	}
	if *threadID == "" {
		ev.Text = mentionToken + " " + text
		*threadID = id
	} else {
		ev.ThreadID = *threadID
	}
	return ev
}

// mimeFor guesses a media type from the file extension.
func mimeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		// Strip any charset parameter.
		if idx := strings.IndexByte(mt, ';'); idx > 0 {
			return mt[:idx]
		}
		return mt
	}
	return "application/octet-stream"
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		// The console shares the terminal with replies; stay quiet by default.
		logLevel = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
