package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// walSyncInterval is the interval between background WAL syncs.
	walSyncInterval = 200 * time.Millisecond
)

// KeyValue is a key-value pair for batch writes.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Store is a key-value store backed by Pebble.
//
// Regular writes are buffered (NoSync) and a background goroutine syncs the
// WAL periodically. Writes that must survive a crash (seen-artifact marks)
// go through SetSync.
type Store struct {
	db       *pebble.DB    // db is the underlying Pebble database
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
}

// Open opens (or creates) a store at the given path and starts the
// background WAL sync goroutine.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20), // 16 MB cache
		MemTableSize: 8 << 20,                   // 8 MB memtable
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Has reports whether the key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()

	return true, nil
}

// Set stores a key-value pair.
// The write is buffered and synced by the background goroutine.
func (s *Store) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// SetSync stores a key-value pair and syncs the WAL before returning.
func (s *Store) SetSync(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes a key from the store.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// SetBatch atomically stores multiple key-value pairs.
// Either all pairs are written or none.
func (s *Store) SetBatch(pairs []KeyValue) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

// IteratePrefix calls fn for each key-value pair with the given prefix,
// in lexicographic key order. Iteration stops on the first error from fn.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}

// Close stops the sync goroutine, performs a final WAL sync and closes
// the database.
func (s *Store) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background WAL sync goroutine.
func (s *Store) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(walSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Store) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
