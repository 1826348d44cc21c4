package verifier

import (
	"sync"

	"HexPoQ/internal/storage"
)

// artifactKeyPrefix is the storage key prefix for accepted artifacts.
var artifactKeyPrefix = []byte("qa:")

// ArtifactStore records accepted proof artifacts. Entries are added on each
// successful first verification and never removed: artifacts are single-use
// credentials, and the store is the replay defense, not a cache.
type ArtifactStore interface {
	// Add records the artifact if it is not already present.
	// Returns true if the artifact was inserted, false if it was seen before.
	// The check-and-insert is atomic per artifact.
	Add(artifact string) (bool, error)

	// Seen reports whether the artifact was previously accepted.
	Seen(artifact string) (bool, error)
}

// MemoryStore is an in-memory ArtifactStore, suitable for single-process
// verifiers and for tests that need a fresh store per case.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

// Add records the artifact if absent. Atomic under the store mutex.
func (m *MemoryStore) Add(artifact string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[artifact]; ok {
		return false, nil
	}

	m.seen[artifact] = struct{}{}

	return true, nil
}

// Seen reports whether the artifact was previously accepted.
func (m *MemoryStore) Seen(artifact string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.seen[artifact]

	return ok, nil
}

// Len returns the number of recorded artifacts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.seen)
}

// PebbleStore is a persistent ArtifactStore backed by Pebble. Marks are
// written with a WAL sync so an accepted artifact stays spent across
// restarts and crashes.
type PebbleStore struct {
	db *storage.Store
	mu sync.Mutex // mu serializes the check-and-insert sequence
}

// NewPebbleStore creates an artifact store on top of an open Pebble store.
func NewPebbleStore(db *storage.Store) *PebbleStore {
	return &PebbleStore{db: db}
}

// Add records the artifact if absent. The read-check-write runs under the
// store mutex so concurrent verifications of one artifact cannot both win.
func (p *PebbleStore) Add(artifact string) (bool, error) {
	key := artifactKey(artifact)

	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.db.Has(key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := p.db.SetSync(key, []byte{1}); err != nil {
		return false, err
	}

	return true, nil
}

// Seen reports whether the artifact was previously accepted.
func (p *PebbleStore) Seen(artifact string) (bool, error) {
	return p.db.Has(artifactKey(artifact))
}

// Count returns the number of recorded artifacts.
func (p *PebbleStore) Count() (int, error) {
	count := 0

	err := p.db.IteratePrefix(artifactKeyPrefix, func(key, value []byte) error {
		count++
		return nil
	})

	return count, err
}

// artifactKey builds the storage key for an artifact.
func artifactKey(artifact string) []byte {
	key := make([]byte, 0, len(artifactKeyPrefix)+len(artifact))
	key = append(key, artifactKeyPrefix...)
	key = append(key, artifact...)

	return key
}
