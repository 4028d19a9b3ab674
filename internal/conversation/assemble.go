// ABOUTME: Context assembly: retained turns -> ordered backend conversation
// ABOUTME: Asides excluded, attachments expanded inline, single human voice

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/threadloom/internal/attach"
	"github.com/2389/threadloom/internal/backend"
	"github.com/2389/threadloom/internal/platform"
	"github.com/2389/threadloom/internal/session"
)

// unsupportedPlaceholder replaces attachments the backend cannot consume so
// the rest of the turn still proceeds.
const unsupportedPlaceholder = "[unsupported attachment omitted]"

// assemble builds the bounded backend conversation from a thread's retained
// history. It is purely a function of that history: aside turns are excluded,
// attachment references are resolved inline at their original positions, and
// every human turn is presented as one undifferentiated user voice.
func (s *Service) assemble(ctx context.Context, threadID string) ([]backend.Turn, error) {
	history, err := s.store.History(threadID)
	if err != nil {
		return nil, fmt.Errorf("reading thread history: %w", err)
	}

	turns := make([]backend.Turn, 0, len(history))
	for _, turn := range history {
		if turn.Role == session.RoleAside {
			continue
		}

		role := backend.RoleUser
		if turn.Role == session.RoleBot {
			role = backend.RoleAssistant
		}

		var blocks []backend.Block
		for _, blk := range turn.Blocks {
			if blk.File == nil {
				if blk.Text != "" {
					blocks = append(blocks, backend.Block{Text: blk.Text})
				}
				continue
			}
			blocks = append(blocks, s.resolveBlock(ctx, *blk.File))
		}
		if len(blocks) == 0 {
			continue
		}

		turns = append(turns, backend.Turn{Role: role, Blocks: blocks})
	}

	return turns, nil
}

// resolveBlock expands one attachment reference into backend content.
// Resolution problems degrade to placeholder text; they never abort the turn.
func (s *Service) resolveBlock(ctx context.Context, ref platform.AttachmentRef) backend.Block {
	att, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, attach.ErrUnsupportedMedia) {
			return backend.Block{Text: unsupportedPlaceholder}
		}
		s.logger.Warn("attachment resolution failed",
			"file_id", ref.FileID,
			"error", err)
		return backend.Block{Text: fmt.Sprintf("[attachment unavailable: %s]", ref.Filename)}
	}

	switch att.Kind {
	case attach.KindImage:
		return backend.Block{Image: &backend.Media{MimeType: att.MimeType, Data: att.Data}}
	case attach.KindPDF:
		return backend.Block{Document: &backend.Media{MimeType: att.MimeType, Data: att.Data}}
	default:
		return backend.Block{Text: fmt.Sprintf("[%s content from %s]:\n\n%s", att.MimeType, att.Filename, string(att.Data))}
	}
}
