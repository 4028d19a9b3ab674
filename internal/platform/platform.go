// ABOUTME: Chat-platform boundary types and the Transport interface
// ABOUTME: Frontends translate native platform events/APIs into these contracts

package platform

import "context"

// Event is a normalized chat-platform event delivered to the orchestrator.
// ThreadID is empty for top-level messages; a top-level message that starts a
// session anchors a thread whose id equals its own MessageID.
type Event struct {
	MessageID   string
	ThreadID    string
	AuthorID    string
	Text        string
	Attachments []AttachmentRef
	IsEdit      bool
	IsDeletion  bool
}

// AttachmentRef identifies a file referenced by a message without carrying
// its bytes. MimeType is the platform-declared media type.
type AttachmentRef struct {
	FileID   string
	Filename string
	MimeType string
}

// Transport is the outbound chat-platform API consumed by the orchestrator.
// Implementations live in the frontends (Matrix, console).
type Transport interface {
	// PostMessage posts a reply into the given thread and returns the id of
	// the posted message.
	PostMessage(ctx context.Context, threadID, text string) (string, error)

	// PostSnippet uploads content as a file/snippet object attached to the
	// thread and returns the id of the posted object.
	PostSnippet(ctx context.Context, threadID, content, filename string) (string, error)

	// DeleteMessage removes a previously posted message. Deleting an already
	// removed message is not an error.
	DeleteMessage(ctx context.Context, messageID string) error

	// SetReaction attaches a reaction to a message; RemoveReaction clears it.
	SetReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error

	// FetchAttachment downloads the raw bytes for a file reference.
	FetchAttachment(ctx context.Context, ref AttachmentRef) ([]byte, error)
}
