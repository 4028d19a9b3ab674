// ABOUTME: platform.Transport implementation over the Matrix client
// ABOUTME: Threaded replies, snippet uploads, redactions, reactions, media fetch

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/threadloom/internal/platform"
)

var _ platform.Transport = (*Bridge)(nil)

// PostMessage sends a threaded reply. Markdown in the text becomes the
// formatted body; the raw text stays as the plain-text fallback.
func (b *Bridge) PostMessage(ctx context.Context, threadID, text string) (string, error) {
	roomID, ok := b.roomFor(threadID)
	if !ok {
		return "", fmt.Errorf("no known room for thread %s", threadID)
	}

	rendered := b.renderer.Render(text)
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    rendered.Plain,
		RelatesTo: &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(threadID),
		},
	}
	if rendered.Formatted != "" && rendered.Formatted != rendered.Plain {
		content.Format = event.FormatHTML
		content.FormattedBody = rendered.Formatted
	}

	resp, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}

	posted := resp.EventID.String()
	b.mu.Lock()
	b.roomOf[posted] = roomID
	b.threadOf[posted] = threadID
	b.mu.Unlock()
	return posted, nil
}

// PostSnippet uploads the content as a plain-text file and posts it as a
// threaded file message.
func (b *Bridge) PostSnippet(ctx context.Context, threadID, content, filename string) (string, error) {
	roomID, ok := b.roomFor(threadID)
	if !ok {
		return "", fmt.Errorf("no known room for thread %s", threadID)
	}

	upload, err := b.matrix.UploadBytes(ctx, []byte(content), "text/plain")
	if err != nil {
		return "", fmt.Errorf("uploading snippet: %w", err)
	}

	msg := &event.MessageEventContent{
		MsgType:  event.MsgFile,
		Body:     "Full response attached (too long to post inline)",
		FileName: filename,
		URL:      upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: "text/plain",
			Size:     len(content),
		},
		RelatesTo: &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(threadID),
		},
	}

	resp, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, msg)
	if err != nil {
		return "", fmt.Errorf("sending snippet: %w", err)
	}

	posted := resp.EventID.String()
	b.mu.Lock()
	b.roomOf[posted] = roomID
	b.threadOf[posted] = threadID
	b.mu.Unlock()
	return posted, nil
}

// DeleteMessage redacts a previously posted event.
func (b *Bridge) DeleteMessage(ctx context.Context, messageID string) error {
	roomID, ok := b.roomFor(messageID)
	if !ok {
		return fmt.Errorf("no known room for message %s", messageID)
	}

	if _, err := b.matrix.RedactEvent(ctx, roomID, id.EventID(messageID)); err != nil {
		return fmt.Errorf("redacting event: %w", err)
	}
	return nil
}

// SetReaction annotates a message with an emoji reaction.
func (b *Bridge) SetReaction(ctx context.Context, messageID, emoji string) error {
	roomID, ok := b.roomFor(messageID)
	if !ok {
		return fmt.Errorf("no known room for message %s", messageID)
	}

	resp, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventReaction, &event.ReactionEventContent{
		RelatesTo: event.RelatesTo{
			Type:    event.RelAnnotation,
			EventID: id.EventID(messageID),
			Key:     emoji,
		},
	})
	if err != nil {
		return fmt.Errorf("sending reaction: %w", err)
	}

	b.mu.Lock()
	b.reactionOf[messageID+"|"+emoji] = resp.EventID
	b.mu.Unlock()
	return nil
}

// RemoveReaction redacts a reaction this bridge previously set.
func (b *Bridge) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	b.mu.Lock()
	key := messageID + "|" + emoji
	reactionID, ok := b.reactionOf[key]
	delete(b.reactionOf, key)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	roomID, hasRoom := b.roomFor(messageID)
	if !hasRoom {
		return fmt.Errorf("no known room for message %s", messageID)
	}

	if _, err := b.matrix.RedactEvent(ctx, roomID, reactionID); err != nil {
		return fmt.Errorf("redacting reaction: %w", err)
	}
	return nil
}

// FetchAttachment downloads and, for encrypted rooms, decrypts a file.
func (b *Bridge) FetchAttachment(ctx context.Context, ref platform.AttachmentRef) ([]byte, error) {
	uri, err := id.ParseContentURI(ref.FileID)
	if err != nil {
		return nil, fmt.Errorf("parsing content uri %q: %w", ref.FileID, err)
	}

	data, err := b.matrix.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", ref.FileID, err)
	}

	b.mu.RLock()
	encInfo := b.encFiles[ref.FileID]
	b.mu.RUnlock()
	if encInfo != nil {
		encInfo.PrepareForDecryption()
		if err := encInfo.DecryptInPlace(data); err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", ref.FileID, err)
		}
	}

	return data, nil
}
