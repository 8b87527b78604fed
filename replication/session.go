package replication

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionEntry records a topology that was resolved earlier in the session.
type SessionEntry struct {
	Identity   DatasetID
	Topology   TopologyDescriptor
	ResolvedAt time.Time
}

// SessionStore remembers which datasets already converged during the current
// session so repeat requests return without touching the warehouse. It holds
// state for one process session only; it is created fresh per session and
// never persisted or shared across processes.
type SessionStore struct {
	id        uuid.UUID
	startedAt time.Time

	lock    sync.RWMutex
	entries map[DatasetID]SessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		id:        uuid.New(),
		startedAt: time.Now(),
		entries:   make(map[DatasetID]SessionEntry),
	}
}

// ID identifies this session instance.
func (s *SessionStore) ID() uuid.UUID {
	return s.id
}

func (s *SessionStore) StartedAt() time.Time {
	return s.startedAt
}

// Lookup returns the resolved topology for a dataset, if this session
// already converged it.
func (s *SessionStore) Lookup(id DatasetID) (SessionEntry, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entry, ok := s.entries[id]
	return entry, ok
}

// Store records a resolved topology. The first successful resolution wins;
// later calls for the same dataset within the session are ignored.
func (s *SessionStore) Store(id DatasetID, topology TopologyDescriptor) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.entries[id]; ok {
		return
	}
	s.entries[id] = SessionEntry{
		Identity:   id,
		Topology:   topology,
		ResolvedAt: time.Now(),
	}
}

// Len returns the number of datasets resolved so far.
func (s *SessionStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.entries)
}

// Snapshot returns a copy of all resolved entries.
func (s *SessionStore) Snapshot() []SessionEntry {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entries := make([]SessionEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries
}
