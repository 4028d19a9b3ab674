// ABOUTME: Response dispatch: inline post vs snippet upload by size
// ABOUTME: Posted object ids are recorded on a bot turn linked to its trigger

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/threadloom/internal/backend"
	"github.com/2389/threadloom/internal/session"
)

// snippetFilename names the uploaded file for oversized replies.
const snippetFilename = "llm_response.txt"

// dispatch posts the backend's reply and records the resulting bot turn.
// Replies over the inline limit become a single snippet upload to dodge
// platform per-message limits. Nothing is committed if posting fails.
func (s *Service) dispatch(ctx context.Context, threadID, triggerID, text string) {
	if text == "" {
		s.logger.Warn("empty completion, nothing to post", "thread_id", threadID)
		return
	}

	var postedIDs []string
	if len(text) > s.opts.InlineLimit {
		id, err := s.transport.PostSnippet(ctx, threadID, text, snippetFilename)
		if err != nil {
			s.logger.Error("snippet upload failed", "thread_id", threadID, "error", err)
			s.postFailureNotice(ctx, threadID, err)
			return
		}
		postedIDs = []string{id}
	} else {
		id, err := s.transport.PostMessage(ctx, threadID, text)
		if err != nil {
			s.logger.Error("reply post failed", "thread_id", threadID, "error", err)
			return
		}
		postedIDs = []string{id}
	}

	botTurn := &session.Turn{
		ID:        uuid.New().String(),
		Author:    "bot",
		Role:      session.RoleBot,
		Blocks:    []session.Block{session.TextBlock(text)},
		TriggerID: triggerID,
		PostedIDs: postedIDs,
	}
	if err := s.store.AppendTurn(threadID, botTurn); err != nil {
		s.logger.Error("bot turn append failed",
			"thread_id", threadID,
			"trigger", triggerID,
			"error", err)
		return
	}

	s.logger.Debug("response dispatched",
		"thread_id", threadID,
		"trigger", triggerID,
		"posted", postedIDs,
		"snippet", len(text) > s.opts.InlineLimit)
}

// postFailureNotice posts the single visible in-thread notice for a backend
// or transport failure. No retry; thread state stays as it was.
func (s *Service) postFailureNotice(ctx context.Context, threadID string, cause error) {
	notice := failureNotice(cause)
	if _, err := s.transport.PostMessage(ctx, threadID, notice); err != nil {
		s.logger.Error("failure notice post failed", "thread_id", threadID, "error", err)
	}
}

// failureNotice describes a failure condition to the thread's participants.
func failureNotice(err error) string {
	switch {
	case errors.Is(err, backend.ErrContextTooLarge):
		return "This conversation has grown too large for the backend. Start a new thread to continue."
	case errors.Is(err, backend.ErrRateLimited):
		return "The backend is rate limiting requests right now. Please try again in a moment."
	case errors.Is(err, backend.ErrUnavailable):
		return "The backend is unavailable right now. Please try again later."
	}
	return fmt.Sprintf("I encountered an error processing your message: %v", err)
}
