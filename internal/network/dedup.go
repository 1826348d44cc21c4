package network

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// dedupTTL is how long a gossiped payload hash suppresses duplicates.
	// Proof gossip re-floods on each hop, so the window must outlast a full
	// propagation round.
	dedupTTL = 30 * time.Second

	// dedupSweepInterval is the interval between expiry sweeps.
	dedupSweepInterval = 5 * time.Second
)

// dedup suppresses re-processing of gossiped payloads by blake3 hash.
type dedup struct {
	seen map[[32]byte]int64 // seen maps payload hash to unix nano timestamp
	mu   sync.RWMutex
	ttl  int64
	stop chan struct{}
	wg   sync.WaitGroup
}

func newDedup() *dedup {
	d := &dedup{
		seen: make(map[[32]byte]int64),
		ttl:  int64(dedupTTL),
		stop: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.sweepLoop()

	return d
}

// check reports whether the payload is new and records it if so.
func (d *dedup) check(payload []byte) bool {
	hash := blake3.Sum256(payload)
	now := time.Now().UnixNano()

	d.mu.RLock()
	ts, exists := d.seen[hash]
	d.mu.RUnlock()

	if exists && now-ts < d.ttl {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring the write lock
	if ts, exists := d.seen[hash]; exists && now-ts < d.ttl {
		return false
	}

	d.seen[hash] = now
	return true
}

func (d *dedup) close() {
	close(d.stop)
	d.wg.Wait()
}

func (d *dedup) sweepLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(dedupSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

func (d *dedup) sweep() {
	now := time.Now().UnixNano()

	d.mu.Lock()
	for hash, ts := range d.seen {
		if now-ts >= d.ttl {
			delete(d.seen, hash)
		}
	}
	d.mu.Unlock()
}
