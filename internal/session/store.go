// ABOUTME: In-memory thread state store with atomic per-event mutations
// ABOUTME: Records forward causal adjacency at append time for O(depth) cascades

package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrUnknownThread is returned when an operation targets a thread that has no
// live session.
var ErrUnknownThread = errors.New("unknown thread")

// ErrDuplicateSession is returned when a session-start is accepted for a
// thread that already has one.
var ErrDuplicateSession = errors.New("session already exists")

// ErrDuplicateTurn is returned when a turn id is appended twice to a thread.
var ErrDuplicateTurn = errors.New("turn already recorded")

// Store owns every Thread and Turn for the process lifetime. All mutations are
// atomic relative to a single triggering event: readers never observe a
// partially appended turn. Callers serialize events per thread; the store's
// own lock only guards cross-thread map access and snapshot consistency.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*threadState
	logger  *slog.Logger
}

// threadState is the mutable record behind a Thread snapshot.
type threadState struct {
	id         string
	owner      string
	visibility Visibility
	config     Config

	turns []*Turn
	byID  map[string]*Turn

	// downstream maps a human turn id to the ids of bot turns it triggered.
	downstream map[string][]string
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		threads: make(map[string]*threadState),
		logger:  logger.With("component", "session"),
	}
}

// Get returns a snapshot of the thread's identity and rules, or false if no
// session exists for the id.
func (s *Store) Get(threadID string) (Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.threads[threadID]
	if !ok {
		return Thread{}, false
	}
	return st.snapshot(), true
}

// Create registers a new session. It fails with ErrDuplicateSession if a
// Thread object currently exists for the id; a Thread whose turns were all
// retracted still counts as existing.
func (s *Store) Create(threadID, owner string, cfg Config, visibility Visibility) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[threadID]; exists {
		return Thread{}, ErrDuplicateSession
	}

	st := &threadState{
		id:         threadID,
		owner:      owner,
		visibility: visibility,
		config:     cfg,
		byID:       make(map[string]*Turn),
		downstream: make(map[string][]string),
	}
	s.threads[threadID] = st

	s.logger.Debug("session created",
		"thread_id", threadID,
		"owner", owner,
		"visibility", string(visibility))
	return st.snapshot(), nil
}

// AppendTurn adds a turn to the thread's retained history. Bot turns also
// record the forward edge from their triggering human turn.
func (s *Store) AppendTurn(threadID string, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.threads[threadID]
	if !ok {
		return ErrUnknownThread
	}
	if _, dup := st.byID[turn.ID]; dup {
		return ErrDuplicateTurn
	}

	t := cloneTurn(turn)
	st.turns = append(st.turns, t)
	st.byID[t.ID] = t
	if t.Role == RoleBot && t.TriggerID != "" {
		st.downstream[t.TriggerID] = append(st.downstream[t.TriggerID], t.ID)
	}
	return nil
}

// UpdateConfig applies a directive patch to the thread's configuration.
func (s *Store) UpdateConfig(threadID string, patch Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.threads[threadID]
	if !ok {
		return ErrUnknownThread
	}
	st.config.Apply(patch)
	return nil
}

// UpdateTurnText rewrites the text blocks of an existing human turn in place.
// Attachment blocks are preserved at their original positions. Returns false
// if the turn is unknown or bot-authored.
func (s *Store) UpdateTurnText(threadID, turnID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.threads[threadID]
	if !ok {
		return false, ErrUnknownThread
	}
	t, ok := st.byID[turnID]
	if !ok || t.Role == RoleBot {
		return false, nil
	}

	blocks := []Block{TextBlock(text)}
	for _, b := range t.Blocks {
		if b.File != nil {
			blocks = append(blocks, b)
		}
	}
	t.Blocks = blocks
	return true, nil
}

// History returns a copy of the thread's retained turns in causal order.
func (s *Store) History(threadID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.threads[threadID]
	if !ok {
		return nil, ErrUnknownThread
	}
	turns := make([]Turn, 0, len(st.turns))
	for _, t := range st.turns {
		turns = append(turns, *cloneTurn(t))
	}
	return turns, nil
}

// HasTurn reports whether the thread retains a turn with the given id.
func (s *Store) HasTurn(threadID, turnID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.threads[threadID]
	if !ok {
		return false
	}
	_, ok = st.byID[turnID]
	return ok
}

// FindTurnsAfter walks the forward adjacency from the given message id and
// returns every bot turn causally downstream of it, in causal order. The walk
// is transitive: edges recorded off an already-collected turn are followed.
func (s *Store) FindTurnsAfter(threadID, messageID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.threads[threadID]
	if !ok {
		return nil, ErrUnknownThread
	}

	collected := make(map[string]bool)
	queue := []string{messageID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, botID := range st.downstream[id] {
			if !collected[botID] {
				collected[botID] = true
				queue = append(queue, botID)
			}
		}
	}

	// Preserve causal order by filtering the retained history.
	var turns []Turn
	for _, t := range st.turns {
		if collected[t.ID] {
			turns = append(turns, *cloneTurn(t))
		}
	}
	return turns, nil
}

// RemoveTurns drops the given turns from the thread's retained history and
// clears their adjacency edges. Removing an already-removed turn is a no-op.
// The Thread record itself persists even when every turn is gone.
func (s *Store) RemoveTurns(threadID string, turnIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.threads[threadID]
	if !ok {
		return ErrUnknownThread
	}

	drop := make(map[string]bool, len(turnIDs))
	for _, id := range turnIDs {
		drop[id] = true
	}

	kept := st.turns[:0]
	for _, t := range st.turns {
		if drop[t.ID] {
			delete(st.byID, t.ID)
			delete(st.downstream, t.ID)
			if t.TriggerID != "" {
				st.downstream[t.TriggerID] = removeString(st.downstream[t.TriggerID], t.ID)
			}
			continue
		}
		kept = append(kept, t)
	}
	st.turns = kept
	return nil
}

// snapshot builds a Thread view. Must be called with the store lock held.
func (st *threadState) snapshot() Thread {
	return Thread{
		ID:         st.id,
		Owner:      st.owner,
		Visibility: st.visibility,
		Config:     st.config,
		TurnCount:  len(st.turns),
	}
}

// cloneTurn deep-copies a turn so snapshots never alias store internals.
func cloneTurn(t *Turn) *Turn {
	c := &Turn{
		ID:        t.ID,
		Author:    t.Author,
		Role:      t.Role,
		TriggerID: t.TriggerID,
	}
	c.Blocks = make([]Block, len(t.Blocks))
	for i, b := range t.Blocks {
		c.Blocks[i] = b
		if b.File != nil {
			ref := *b.File
			c.Blocks[i].File = &ref
		}
	}
	if len(t.PostedIDs) > 0 {
		c.PostedIDs = append([]string(nil), t.PostedIDs...)
	}
	return c
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
