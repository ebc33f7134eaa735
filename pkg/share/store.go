package share

import "sync"

// Session is one sharer's record within a room view: either a remote
// participant whose stream is (or will be) received, or the local user's own
// share. Media stays nil until the inbound connection produces a stream.
type Session struct {
	OwnerID     string
	DisplayName string
	Media       MediaStream
	Peer        PeerConnection // owned by the manager; nil for the self entry
}

// Store is the per-room-view collection of active share sessions, keyed by
// owner. It is a pure data container: no network or connection logic, and it
// is mutated only through the manager.
type Store struct {
	mu      sync.RWMutex
	order   []string
	byOwner map[string]*Session
}

func NewStore() *Store {
	return &Store{
		byOwner: make(map[string]*Session),
	}
}

// Upsert creates the owner's session if absent and applies mutate to it.
// Merge semantics: mutate updates individual fields in place, so setting the
// media handle from one code path never clobbers a peer handle set by
// another. Identity by owner is stable within a room view.
func (st *Store) Upsert(ownerID string, mutate func(s *Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.byOwner[ownerID]
	if !ok {
		s = &Session{OwnerID: ownerID}
		st.byOwner[ownerID] = s
		st.order = append(st.order, ownerID)
	}
	if mutate != nil {
		mutate(s)
	}
}

// Remove deletes the owner's session and returns it, or nil if absent.
// Removing an absent owner is a safe no-op.
func (st *Store) Remove(ownerID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.byOwner[ownerID]
	if !ok {
		return nil
	}
	delete(st.byOwner, ownerID)
	for i, id := range st.order {
		if id == ownerID {
			st.order = append(st.order[:i:i], st.order[i+1:]...)
			break
		}
	}
	return s
}

// Get returns a copy of the owner's session.
func (st *Store) Get(ownerID string) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.byOwner[ownerID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Snapshot returns copies of all sessions in insertion order.
func (st *Store) Snapshot() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.byOwner[id])
	}
	return out
}

// HasMedia reports whether any session carries a live media handle.
func (st *Store) HasMedia() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for _, s := range st.byOwner {
		if s.Media != nil {
			return true
		}
	}
	return false
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byOwner)
}
