// ABOUTME: Terminal transport for the threadloom console
// ABOUTME: Prints replies to stdout and serves attachments from the local disk

package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/2389/threadloom/internal/platform"
)

// consoleTransport implements platform.Transport against the terminal.
// Posted message ids are synthetic; attachments are local file paths.
type consoleTransport struct {
	mu      sync.Mutex
	counter atomic.Int64

	reply  *color.Color
	notice *color.Color
}

var _ platform.Transport = (*consoleTransport)(nil)

func newConsoleTransport() *consoleTransport {
	return &consoleTransport{
		reply:  color.New(color.FgCyan),
		notice: color.New(color.FgYellow),
	}
}

func (t *consoleTransport) nextID() string {
	return fmt.Sprintf("console-%d", t.counter.Add(1))
}

func (t *consoleTransport) PostMessage(_ context.Context, _ string, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Println()
	t.reply.Println(text)
	fmt.Print("> ")
	return t.nextID(), nil
}

func (t *consoleTransport) PostSnippet(_ context.Context, _ string, content, filename string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Println()
	t.notice.Printf("── %s (%d bytes) ──\n", filename, len(content))
	t.reply.Println(content)
	t.notice.Println("── end ──")
	fmt.Print("> ")
	return t.nextID(), nil
}

func (t *consoleTransport) DeleteMessage(_ context.Context, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.notice.Printf("(retracted %s)\n", messageID)
	return nil
}

func (t *consoleTransport) SetReaction(_ context.Context, _, emoji string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Printf("%s ", emoji)
	return nil
}

func (t *consoleTransport) RemoveReaction(context.Context, string, string) error {
	return nil
}

// FetchAttachment reads attachment bytes straight from disk; the console uses
// local file paths as file ids.
func (t *consoleTransport) FetchAttachment(_ context.Context, ref platform.AttachmentRef) ([]byte, error) {
	data, err := os.ReadFile(ref.FileID)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref.FileID, err)
	}
	return data, nil
}
