// ABOUTME: Deletion cascade: retract bot output downstream of a deleted message
// ABOUTME: Idempotent - repeats and unknown ids are silent no-ops

package conversation

import (
	"context"

	"github.com/2389/threadloom/internal/platform"
)

// handleDeletion retracts every bot turn causally downstream of the deleted
// message and drops the deleted turn itself from retained history. The walk
// uses the forward adjacency recorded at append time, so it costs O(depth)
// rather than a history scan.
//
// The cascade is never surfaced to users: deleting an unknown, already
// retracted, or non-turn message is a no-op.
func (s *Service) handleDeletion(ctx context.Context, ev platform.Event) {
	threadID := ev.ThreadID
	if threadID == "" {
		// Deleting a thread's root message: the thread is named by that id.
		threadID = ev.MessageID
	}

	if _, ok := s.store.Get(threadID); !ok {
		s.logger.Debug("deletion for unknown thread ignored",
			"thread_id", threadID,
			"message_id", ev.MessageID)
		return
	}

	downstream, err := s.store.FindTurnsAfter(threadID, ev.MessageID)
	if err != nil {
		s.logger.Debug("cascade lookup failed", "thread_id", threadID, "error", err)
		return
	}

	// Tombstone every posted object, then drop the turns in one atomic
	// mutation. Transport NotFound is fine: retraction is idempotent.
	removed := make([]string, 0, len(downstream)+1)
	for _, turn := range downstream {
		for _, postedID := range turn.PostedIDs {
			if err := s.transport.DeleteMessage(ctx, postedID); err != nil {
				s.logger.Warn("posted object delete failed",
					"thread_id", threadID,
					"posted_id", postedID,
					"error", err)
			}
		}
		removed = append(removed, turn.ID)
	}
	// The deleted human turn leaves retained history too; the Thread record
	// itself persists for late-arriving deletion replays.
	removed = append(removed, ev.MessageID)

	if err := s.store.RemoveTurns(threadID, removed); err != nil {
		s.logger.Error("turn removal failed", "thread_id", threadID, "error", err)
		return
	}

	if len(downstream) > 0 {
		s.logger.Info("cascade retraction complete",
			"thread_id", threadID,
			"deleted_message", ev.MessageID,
			"retracted_turns", len(downstream))
	}
}
