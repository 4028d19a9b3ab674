// ABOUTME: Orchestrator service: per-thread serialized event processing
// ABOUTME: Record first, then act - human turns commit before the backend call

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/threadloom/internal/attach"
	"github.com/2389/threadloom/internal/backend"
	"github.com/2389/threadloom/internal/directive"
	"github.com/2389/threadloom/internal/platform"
	"github.com/2389/threadloom/internal/session"
)

// ThreadStore defines what the service needs from session state.
type ThreadStore interface {
	Get(threadID string) (session.Thread, bool)
	Create(threadID, owner string, cfg session.Config, visibility session.Visibility) (session.Thread, error)
	AppendTurn(threadID string, turn *session.Turn) error
	UpdateConfig(threadID string, patch session.Overrides) error
	UpdateTurnText(threadID, turnID, text string) (bool, error)
	History(threadID string) ([]session.Turn, error)
	FindTurnsAfter(threadID, messageID string) ([]session.Turn, error)
	RemoveTurns(threadID string, turnIDs []string) error
}

// AttachmentResolver defines what the service needs from attachment handling.
type AttachmentResolver interface {
	Resolve(ctx context.Context, ref platform.AttachmentRef) (*attach.Attachment, error)
}

// Options tunes orchestrator behavior.
type Options struct {
	// MentionToken marks a top-level message as addressed to the bot,
	// e.g. "@threadloom". Required for session starts.
	MentionToken string
	// SystemPrompt is the process-wide default; directives override it
	// per thread. The literal {{currentDateTime}} is substituted at call time.
	SystemPrompt string
	// WorkingEmoji is the liveness reaction set while the backend call runs.
	WorkingEmoji string
	// InlineLimit is the largest reply posted inline; longer output becomes
	// a snippet upload.
	InlineLimit int
	// RequestTimeout bounds one event's processing including the backend call.
	RequestTimeout time.Duration
}

func (o *Options) fillDefaults() {
	if o.WorkingEmoji == "" {
		o.WorkingEmoji = "🤔"
	}
	if o.InlineLimit == 0 {
		o.InlineLimit = 3000
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 5 * time.Minute
	}
}

// Service orchestrates thread conversations. One instance serves all threads;
// state mutation is serialized per thread by dedicated worker queues.
type Service struct {
	store     ThreadStore
	backend   backend.Backend
	transport platform.Transport
	resolver  AttachmentResolver
	opts      Options
	logger    *slog.Logger

	mu      sync.Mutex
	workers map[string]chan platform.Event
	wg      sync.WaitGroup
	closed  bool
}

// New creates the orchestrator service.
func New(store ThreadStore, be backend.Backend, transport platform.Transport, resolver AttachmentResolver, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fillDefaults()
	return &Service{
		store:     store,
		backend:   be,
		transport: transport,
		resolver:  resolver,
		opts:      opts,
		logger:    logger.With("component", "conversation"),
		workers:   make(map[string]chan platform.Event),
	}
}

// HandleEvent enqueues a platform event for processing. Events for the same
// thread are applied strictly in the order they arrive here; events for
// different threads proceed concurrently.
func (s *Service) HandleEvent(ev platform.Event) {
	key := ev.ThreadID
	if key == "" {
		// A top-level message anchors the thread named by its own id, so it
		// serializes with any replies that follow it.
		key = ev.MessageID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ch, ok := s.workers[key]
	if !ok {
		ch = make(chan platform.Event, 128)
		s.workers[key] = ch
		s.wg.Add(1)
		go s.drain(ch)
	}

	// The send happens under the lock so Close cannot close the channel
	// between the lookup and the send. Workers drain without taking the lock,
	// so a full queue still makes progress.
	ch <- ev
}

// Close stops accepting events and waits for in-flight processing to finish.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.workers {
		close(ch)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// drain is the single writer for one thread's events.
func (s *Service) drain(ch <-chan platform.Event) {
	defer s.wg.Done()
	for ev := range ch {
		s.process(ev)
	}
}

// process applies one event with a bounded context.
func (s *Service) process(ev platform.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	switch {
	case ev.IsDeletion:
		s.handleDeletion(ctx, ev)
	case ev.IsEdit:
		s.handleEdit(ev)
	default:
		s.handleMessage(ctx, ev)
	}
}

// handleMessage runs the classify -> record -> respond pipeline.
func (s *Service) handleMessage(ctx context.Context, ev platform.Event) {
	cls := s.classify(ev)

	switch cls.kind {
	case KindIgnore:
		s.logger.Debug("event ignored", "message_id", ev.MessageID, "author", ev.AuthorID)
		return

	case KindSessionStart:
		s.startSession(ctx, ev, cls)

	case KindOwnerTurn:
		overrides, remainder := directive.Parse(cls.text)
		if !overrides.Empty() {
			if err := s.store.UpdateConfig(cls.threadID, overrides); err != nil {
				s.logger.Error("config patch failed", "thread_id", cls.threadID, "error", err)
			}
		}
		s.recordAndRespond(ctx, ev, cls.threadID, session.RoleOwner, remainder)

	case KindGuestTurn:
		s.recordAndRespond(ctx, ev, cls.threadID, session.RoleGuest, cls.text)

	case KindAside:
		turn := humanTurn(ev, session.RoleAside, cls.text)
		if err := s.store.AppendTurn(cls.threadID, turn); err != nil {
			s.logTurnError(cls.threadID, ev.MessageID, err)
			return
		}
		s.logger.Debug("aside recorded", "thread_id", cls.threadID, "message_id", ev.MessageID)
	}
}

// startSession creates the thread and records its first turn.
func (s *Service) startSession(ctx context.Context, ev platform.Event, cls classification) {
	overrides, remainder := directive.Parse(cls.text)
	cfg := session.DefaultConfig()
	cfg.Apply(overrides)

	visibility := session.VisibilityPrivate
	if cls.public {
		visibility = session.VisibilityPublic
	}

	if _, err := s.store.Create(cls.threadID, ev.AuthorID, cfg, visibility); err != nil {
		// DuplicateSession for a live thread is an internal invariant break,
		// not a user error: log and drop the event.
		s.logger.Error("session create failed",
			"thread_id", cls.threadID,
			"error", err)
		return
	}

	s.logger.Info("session started",
		"thread_id", cls.threadID,
		"owner", ev.AuthorID,
		"visibility", string(visibility))

	s.recordAndRespond(ctx, ev, cls.threadID, session.RoleOwner, remainder)
}

// recordAndRespond commits the human turn, then invokes the backend and
// dispatches its reply unless the thread has AI disabled.
func (s *Service) recordAndRespond(ctx context.Context, ev platform.Event, threadID string, role session.Role, text string) {
	turn := humanTurn(ev, role, text)
	if err := s.store.AppendTurn(threadID, turn); err != nil {
		s.logTurnError(threadID, ev.MessageID, err)
		return
	}

	th, ok := s.store.Get(threadID)
	if !ok {
		s.logger.Error("thread vanished after append", "thread_id", threadID)
		return
	}
	if !th.Config.AIEnabled {
		s.logger.Info("ai disabled, turn recorded without backend call",
			"thread_id", threadID,
			"message_id", ev.MessageID)
		return
	}

	s.setWorking(ctx, ev.MessageID, true)
	defer s.setWorking(ctx, ev.MessageID, false)

	turns, err := s.assemble(ctx, threadID)
	if err != nil {
		s.logger.Error("context assembly failed", "thread_id", threadID, "error", err)
		s.postFailureNotice(ctx, threadID, err)
		return
	}

	resp, err := s.backend.Complete(ctx, backend.Request{
		SystemPrompt: s.effectiveSystemPrompt(th.Config),
		Temperature:  th.Config.Temperature,
		Turns:        turns,
	})
	if err != nil {
		s.logger.Error("backend call failed", "thread_id", threadID, "error", err)
		s.postFailureNotice(ctx, threadID, err)
		return
	}

	s.logger.Info("completion received",
		"thread_id", threadID,
		"trigger", ev.MessageID,
		"chars", len(resp.Text),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)

	s.dispatch(ctx, threadID, ev.MessageID, resp.Text)
}

// handleEdit rewrites a known human turn's text in place. Edits never trigger
// re-evaluation; the change is picked up by the next new turn's assembly.
func (s *Service) handleEdit(ev platform.Event) {
	threadID := ev.ThreadID
	if threadID == "" {
		threadID = ev.MessageID
	}

	text := s.stripMarkers(ev.Text)
	_, remainder := directive.Parse(text)

	changed, err := s.store.UpdateTurnText(threadID, ev.MessageID, remainder)
	if err != nil {
		if !errors.Is(err, session.ErrUnknownThread) {
			s.logger.Error("edit update failed", "thread_id", threadID, "error", err)
		}
		return
	}
	if changed {
		s.logger.Debug("turn text updated", "thread_id", threadID, "message_id", ev.MessageID)
	}
}

// effectiveSystemPrompt picks the thread override or the process default and
// substitutes the date placeholder.
func (s *Service) effectiveSystemPrompt(cfg session.Config) string {
	prompt := s.opts.SystemPrompt
	if cfg.SystemPrompt != nil {
		prompt = *cfg.SystemPrompt
	}
	return strings.ReplaceAll(prompt, "{{currentDateTime}}", time.Now().Format("Monday, January 2, 2006"))
}

// stripMarkers removes mention/visibility/aside prefixes from message text.
func (s *Service) stripMarkers(text string) string {
	text = strings.TrimSpace(text)
	for {
		switch {
		case s.opts.MentionToken != "" && strings.HasPrefix(text, s.opts.MentionToken):
			text = strings.TrimSpace(text[len(s.opts.MentionToken):])
		case hasFoldedPrefix(text, publicMarker):
			text = strings.TrimSpace(text[len(publicMarker):])
		case hasFoldedPrefix(text, asideMarker):
			text = strings.TrimSpace(text[len(asideMarker):])
		default:
			return text
		}
	}
}

// setWorking toggles the liveness reaction on the triggering message.
func (s *Service) setWorking(ctx context.Context, messageID string, on bool) {
	var err error
	if on {
		err = s.transport.SetReaction(ctx, messageID, s.opts.WorkingEmoji)
	} else {
		err = s.transport.RemoveReaction(ctx, messageID, s.opts.WorkingEmoji)
	}
	if err != nil {
		s.logger.Debug("reaction update failed", "message_id", messageID, "error", err)
	}
}

// logTurnError classifies append failures: duplicates are routine (event
// redelivery), unknown threads are invariant breaks.
func (s *Service) logTurnError(threadID, messageID string, err error) {
	if errors.Is(err, session.ErrDuplicateTurn) {
		s.logger.Debug("duplicate turn dropped", "thread_id", threadID, "message_id", messageID)
		return
	}
	s.logger.Error("turn append failed",
		"thread_id", threadID,
		"message_id", messageID,
		"error", err)
}

// humanTurn builds a Turn from an incoming event with marker-stripped text.
func humanTurn(ev platform.Event, role session.Role, text string) *session.Turn {
	blocks := make([]session.Block, 0, 1+len(ev.Attachments))
	if text != "" {
		blocks = append(blocks, session.TextBlock(text))
	}
	for _, ref := range ev.Attachments {
		blocks = append(blocks, session.FileBlock(ref))
	}
	return &session.Turn{
		ID:     ev.MessageID,
		Author: ev.AuthorID,
		Role:   role,
		Blocks: blocks,
	}
}
