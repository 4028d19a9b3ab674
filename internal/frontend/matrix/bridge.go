// ABOUTME: Matrix bridge core for threadloom
// ABOUTME: Runs the sync loop and converts room events into platform events

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/threadloom/internal/config"
	"github.com/2389/threadloom/internal/markup"
	"github.com/2389/threadloom/internal/platform"
)

// Handler receives converted platform events. The conversation service's
// HandleEvent satisfies this.
type Handler func(platform.Event)

// Bridge connects a Matrix homeserver to the orchestrator. It implements
// platform.Transport for the threads it sees.
type Bridge struct {
	cfg      config.MatrixConfig
	matrix   *mautrix.Client
	crypto   *CryptoManager
	handler  Handler
	renderer markup.Renderer
	logger   *slog.Logger

	// mu guards the event bookkeeping below. Matrix events carry room-scoped
	// ids, but platform.Transport speaks thread and message ids only, so the
	// bridge remembers which room each id lives in.
	mu sync.RWMutex
	// roomOf maps message/thread/posted event ids to their room.
	roomOf map[string]id.RoomID
	// threadOf maps a message id to its thread root, for edits and redactions
	// that arrive without relation data.
	threadOf map[string]string
	// encFiles holds encrypted-file metadata by file id for decryption at
	// fetch time.
	encFiles map[string]*event.EncryptedFileInfo
	// reactionOf maps "messageID|emoji" to the reaction event to redact.
	reactionOf map[string]id.EventID
}

// NewBridge creates a Matrix bridge. The handler is invoked from the sync
// loop for every event worth orchestrating.
func NewBridge(cfg config.MatrixConfig, handler Handler, renderer markup.Renderer, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	if cfg.DeviceID != "" {
		client.DeviceID = id.DeviceID(cfg.DeviceID)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = markup.Passthrough{}
	}

	return &Bridge{
		cfg:        cfg,
		matrix:     client,
		handler:    handler,
		renderer:   renderer,
		logger:     logger.With("component", "matrix"),
		roomOf:     make(map[string]id.RoomID),
		threadOf:   make(map[string]string),
		encFiles:   make(map[string]*event.EncryptedFileInfo),
		reactionOf: make(map[string]id.EventID),
	}, nil
}

// Run starts the sync loop and blocks until the context is cancelled or the
// sync fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.cfg.Homeserver,
		"user_id", b.cfg.UserID,
	)

	if b.cfg.CryptoDBPath != "" {
		crypto, err := SetupCrypto(ctx, b.matrix, b.cfg, b.logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		b.crypto = crypto
		defer func() {
			if err := b.crypto.Close(); err != nil {
				b.logger.Warn("crypto store close failed", "error", err)
			}
		}()
	}

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.EventRedaction, b.handleRedactionEvent)

	b.logger.Info("connecting to matrix homeserver")
	if err := b.matrix.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync failed: %w", err)
	}

	b.logger.Info("matrix bridge stopped")
	return nil
}

// handleMessageEvent converts one room message into a platform event.
func (b *Bridge) handleMessageEvent(_ context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}
	if !b.isRoomAllowed(evt.RoomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return
	}

	pe, ok := b.convertMessage(evt)
	if !ok {
		return
	}

	b.remember(evt.RoomID, pe)

	b.logger.Debug("message event",
		"room", evt.RoomID.String(),
		"message_id", pe.MessageID,
		"thread_id", pe.ThreadID,
		"edit", pe.IsEdit,
	)
	b.handler(pe)
}

// handleRedactionEvent converts a redaction into a deletion event.
func (b *Bridge) handleRedactionEvent(_ context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}

	target := evt.Redacts.String()
	if target == "" {
		return
	}

	b.mu.RLock()
	// Unknown targets fall through with an empty thread id: the orchestrator
	// treats them as thread roots and ignores the rest.
	threadID := b.threadOf[target]
	b.mu.RUnlock()

	b.handler(platform.Event{
		MessageID:  target,
		ThreadID:   threadID,
		AuthorID:   evt.Sender.String(),
		IsDeletion: true,
	})
}

// convertMessage maps a Matrix message event to a platform event. Returns
// false for message types the orchestrator has no use for.
func (b *Bridge) convertMessage(evt *event.Event) (platform.Event, bool) {
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return platform.Event{}, false
	}

	pe := platform.Event{
		MessageID: evt.ID.String(),
		AuthorID:  evt.Sender.String(),
		Text:      content.Body,
	}

	if rel := content.RelatesTo; rel != nil {
		switch rel.Type {
		case event.RelThread:
			pe.ThreadID = rel.EventID.String()
		case event.RelReplace:
			// Edits target the original message id; the fallback body carries
			// a "* " prefix, so prefer the replacement content. The replace
			// relation does not repeat the thread relation, so the thread is
			// resolved from where the original was seen.
			pe.IsEdit = true
			pe.MessageID = rel.EventID.String()
			if content.NewContent != nil {
				pe.Text = content.NewContent.Body
			}
			b.mu.RLock()
			pe.ThreadID = b.threadOf[pe.MessageID]
			b.mu.RUnlock()
		}
	}

	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		// Text-only message.
	case event.MsgImage, event.MsgFile, event.MsgAudio, event.MsgVideo:
		ref, encInfo, ok := fileRef(content)
		if !ok {
			return platform.Event{}, false
		}
		if encInfo != nil {
			b.mu.Lock()
			b.encFiles[ref.FileID] = encInfo
			b.mu.Unlock()
		}
		pe.Attachments = []platform.AttachmentRef{ref}
		// A caption shares the body with the filename; only keep real text.
		if content.FileName != "" && content.Body != content.FileName {
			pe.Text = content.Body
		} else {
			pe.Text = ""
		}
	default:
		return platform.Event{}, false
	}

	return pe, true
}

// fileRef extracts an attachment reference from a media message.
func fileRef(content *event.MessageEventContent) (platform.AttachmentRef, *event.EncryptedFileInfo, bool) {
	var (
		uri id.ContentURIString
		enc *event.EncryptedFileInfo
	)
	switch {
	case content.File != nil:
		uri = content.File.URL
		enc = content.File
	case content.URL != "":
		uri = content.URL
	default:
		return platform.AttachmentRef{}, nil, false
	}

	name := content.FileName
	if name == "" {
		name = content.Body
	}
	mimeType := ""
	if content.Info != nil {
		mimeType = content.Info.MimeType
	}

	return platform.AttachmentRef{
		FileID:   string(uri),
		Filename: name,
		MimeType: mimeType,
	}, enc, true
}

// remember records room and thread membership for later transport calls.
func (b *Bridge) remember(roomID id.RoomID, pe platform.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.roomOf[pe.MessageID] = roomID
	if pe.ThreadID != "" {
		b.roomOf[pe.ThreadID] = roomID
		b.threadOf[pe.MessageID] = pe.ThreadID
	}
}

// roomFor resolves the room an event id was seen or posted in.
func (b *Bridge) roomFor(eventID string) (id.RoomID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	roomID, ok := b.roomOf[eventID]
	return roomID, ok
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID id.RoomID) bool {
	if len(b.cfg.AllowedRooms) == 0 {
		return true // Allow all if no filter
	}
	for _, allowed := range b.cfg.AllowedRooms {
		if allowed == roomID.String() {
			return true
		}
	}
	return false
}
