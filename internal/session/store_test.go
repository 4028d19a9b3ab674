// ABOUTME: Tests for the in-memory thread state store
// ABOUTME: Covers session lifecycle, turn ordering, adjacency walks, and removal

package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/threadloom/internal/platform"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(nil)

	_, ok := s.Get("t1")
	assert.False(t, ok)

	created, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, "t1", created.ID)
	assert.Equal(t, "alice", created.Owner)
	assert.Equal(t, VisibilityPrivate, created.Visibility)
	assert.True(t, created.Config.AIEnabled)

	got, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, created, got)
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	_, err = s.Create("t1", "bob", DefaultConfig(), VisibilityPublic)
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestStore_AppendTurnUnknownThread(t *testing.T) {
	s := NewStore(nil)

	err := s.AppendTurn("nope", &Turn{ID: "m1", Role: RoleOwner})
	assert.ErrorIs(t, err, ErrUnknownThread)
}

func TestStore_AppendTurnDuplicate(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "m1", Role: RoleOwner}))
	err = s.AppendTurn("t1", &Turn{ID: "m1", Role: RoleOwner})
	assert.ErrorIs(t, err, ErrDuplicateTurn)
}

func TestStore_HistoryPreservesOrder(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, s.AppendTurn("t1", &Turn{ID: id, Author: "alice", Role: RoleOwner}))
	}

	turns, err := s.History("t1")
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("m%d", i), turn.ID)
	}
}

func TestStore_HistoryReturnsCopies(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn("t1", &Turn{
		ID:     "m1",
		Role:   RoleOwner,
		Blocks: []Block{TextBlock("hello")},
	}))

	turns, err := s.History("t1")
	require.NoError(t, err)
	turns[0].Blocks[0].Text = "mutated"

	again, err := s.History("t1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Blocks[0].Text)
}

func TestStore_FindTurnsAfterWalksAdjacency(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "m1", Role: RoleOwner}))
	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "b1", Role: RoleBot, TriggerID: "m1", PostedIDs: []string{"p1"}}))
	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "m2", Role: RoleOwner}))
	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "b2", Role: RoleBot, TriggerID: "m2", PostedIDs: []string{"p2"}}))

	down, err := s.FindTurnsAfter("t1", "m1")
	require.NoError(t, err)
	require.Len(t, down, 1)
	assert.Equal(t, "b1", down[0].ID)

	// Unknown message ids have nothing downstream.
	down, err = s.FindTurnsAfter("t1", "ghost")
	require.NoError(t, err)
	assert.Empty(t, down)
}

func TestStore_RemoveTurnsIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "m1", Role: RoleOwner}))
	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "b1", Role: RoleBot, TriggerID: "m1"}))

	require.NoError(t, s.RemoveTurns("t1", []string{"b1", "m1"}))
	turns, err := s.History("t1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	// Second removal changes nothing and does not error.
	require.NoError(t, s.RemoveTurns("t1", []string{"b1", "m1"}))

	// Adjacency is cleared along with the turns.
	down, err := s.FindTurnsAfter("t1", "m1")
	require.NoError(t, err)
	assert.Empty(t, down)

	// The thread record itself persists with zero retained turns.
	th, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, 0, th.TurnCount)
}

func TestStore_UpdateConfigPatches(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	temp := 0.2
	require.NoError(t, s.UpdateConfig("t1", Overrides{Temperature: &temp}))

	th, ok := s.Get("t1")
	require.True(t, ok)
	require.NotNil(t, th.Config.Temperature)
	assert.Equal(t, 0.2, *th.Config.Temperature)
	// Untouched fields keep their values.
	assert.True(t, th.Config.AIEnabled)

	off := false
	require.NoError(t, s.UpdateConfig("t1", Overrides{AIEnabled: &off}))
	th, _ = s.Get("t1")
	assert.False(t, th.Config.AIEnabled)
	assert.Equal(t, 0.2, *th.Config.Temperature)
}

func TestStore_UpdateTurnText(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create("t1", "alice", DefaultConfig(), VisibilityPrivate)
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn("t1", &Turn{
		ID:   "m1",
		Role: RoleOwner,
		Blocks: []Block{
			TextBlock("before"),
			FileBlock(platform.AttachmentRef{FileID: "f1", MimeType: "image/png"}),
		},
	}))

	changed, err := s.UpdateTurnText("t1", "m1", "after")
	require.NoError(t, err)
	assert.True(t, changed)

	turns, err := s.History("t1")
	require.NoError(t, err)
	require.Len(t, turns[0].Blocks, 2)
	assert.Equal(t, "after", turns[0].Blocks[0].Text)
	require.NotNil(t, turns[0].Blocks[1].File)
	assert.Equal(t, "f1", turns[0].Blocks[1].File.FileID)

	// Bot turns and unknown ids are not editable.
	require.NoError(t, s.AppendTurn("t1", &Turn{ID: "b1", Role: RoleBot, TriggerID: "m1"}))
	changed, err = s.UpdateTurnText("t1", "b1", "nope")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.UpdateTurnText("t1", "ghost", "nope")
	require.NoError(t, err)
	assert.False(t, changed)
}
