// Package history is the ordered chat history that the UI renders from.
//
// Entries are addressed by a stable id assigned at Append. Partial updates
// target that id, never a position, so that a Clear racing an in-flight cycle
// turns the cycle's remaining updates into no-ops instead of corrupting
// whatever was appended afterwards.
package history

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeUpdated  ChangeKind = "updated"
	ChangeCleared  ChangeKind = "cleared"
)

// Change describes one mutation. Turn is nil for ChangeCleared.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Version uint64     `json:"version"`
	Turn    *Turn      `json:"turn,omitempty"`
}

// Listener receives changes in mutation order. It must not write to the store.
type Listener func(Change)

// Store is an append-mostly, ordered list of turns.
type Store struct {
	// notifyMu serializes writers so listeners observe changes in order.
	notifyMu sync.Mutex

	mu      sync.RWMutex
	turns   []Turn
	index   map[string]int
	version uint64

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextLID     int

	newID func() string
	now   func() time.Time
}

type StoreOption func(*Store)

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) {
		if f != nil {
			s.newID = f
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		index:     map[string]int{},
		listeners: map[int]Listener{},
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append inserts turn at the end and returns its id. An empty ID is replaced
// by a fresh one; a caller-provided ID that is already present gets a fresh
// one too, ids are never reused.
func (s *Store) Append(turn Turn) string {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if turn.ID == "" {
		turn.ID = s.newID()
	}
	for {
		if _, taken := s.index[turn.ID]; !taken {
			break
		}
		turn.ID = s.newID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	if turn.Status == "" {
		if turn.Role == RoleUser {
			turn.Status = StatusComplete
		} else {
			turn.Status = StatusStreaming
		}
	}
	turn = turn.clone()
	s.index[turn.ID] = len(s.turns)
	s.turns = append(s.turns, turn)
	s.version++
	change := Change{Kind: ChangeAppended, Version: s.version, Turn: ptr(turn.clone())}
	s.mu.Unlock()

	s.notify(change)
	return turn.ID
}

// Update merges patch into the turn with the given id. It returns false, and
// does nothing, when the id is unknown.
//
// User content is immutable, content of a finished assistant turn too, and a
// terminal status is never changed again. Timing can always be stamped.
func (s *Store) Update(id string, patch Patch) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	t := s.turns[i]
	changed := false
	if patch.Content != nil && t.Role == RoleAssistant && !t.Status.Terminal() && *patch.Content != t.Content {
		t.Content = *patch.Content
		changed = true
	}
	if patch.Status != nil && !t.Status.Terminal() && *patch.Status != t.Status {
		t.Status = *patch.Status
		changed = true
	}
	if patch.TimeToFirstToken != nil && (t.TimeToFirstToken == nil || *t.TimeToFirstToken != *patch.TimeToFirstToken) {
		t.TimeToFirstToken = ptr(*patch.TimeToFirstToken)
		changed = true
	}
	if patch.TotalTime != nil && (t.TotalTime == nil || *t.TotalTime != *patch.TotalTime) {
		t.TotalTime = ptr(*patch.TotalTime)
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		return true
	}
	s.turns[i] = t
	s.version++
	change := Change{Kind: ChangeUpdated, Version: s.version, Turn: ptr(t.clone())}
	s.mu.Unlock()

	s.notify(change)
	return true
}

// Clear drops every turn.
func (s *Store) Clear() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.turns = nil
	s.index = map[string]int{}
	s.version++
	change := Change{Kind: ChangeCleared, Version: s.version}
	s.mu.Unlock()

	s.notify(change)
}

// Snapshot returns a copy of the current history in order.
func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		out = append(out, t.clone())
	}
	return out
}

func (s *Store) Get(id string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return s.turns[i].clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Version increases with every effective mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.listenersMu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.listenersMu.RUnlock()

	for _, l := range ls {
		l(c)
	}
}

func ptr[T any](v T) *T { return &v }
