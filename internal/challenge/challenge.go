package challenge

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"HexPoQ/internal/circuit"
	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
	"HexPoQ/internal/storage"
	"HexPoQ/internal/verifier"
)

var (
	// ErrChallengeNotFound is returned when a submission names an unknown or
	// already-claimed challenge.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired is returned when a submission arrives past the
	// challenge deadline.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrCircuitMismatch is returned when the submitted proof was built for a
	// different circuit size than the challenge asked for.
	ErrCircuitMismatch = errors.New("proof circuit does not match challenge")
)

// Lifetime is how long a challenge stays claimable after issuance.
const Lifetime = 5 * time.Minute

// rewardPerQubit scales challenge rewards with circuit size.
const rewardPerQubit = 10

// scorePrefix namespaces validator score keys in storage.
const scorePrefix = "score:"

// Challenge is an open proof-of-quantum task. Whoever first submits a valid
// proof for its circuit size before the deadline claims the reward.
type Challenge struct {
	ID          string    `json:"id"`           // ID is the unique challenge identifier
	QubitCount  int       `json:"qubit_count"`  // QubitCount the proof circuit must have
	Difficulty  int       `json:"difficulty"`   // Difficulty passed to the layer mapper
	QubitBudget int       `json:"qubit_budget"` // QubitBudget the challenge was issued with
	Reward      int64     `json:"reward"`       // Reward credited on a valid submission
	Deadline    time.Time `json:"deadline"`     // Deadline after which submissions are rejected
}

// Manager issues challenges and scores validator submissions. Open challenges
// live in memory; validator scores persist in storage so they survive
// restarts.
type Manager struct {
	store    *storage.Store
	verifier *verifier.Verifier

	mu         sync.Mutex
	challenges map[string]*Challenge

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a challenge manager backed by the given storage and
// verifier, and starts its expiry sweeper.
func NewManager(store *storage.Store, v *verifier.Verifier) *Manager {
	m := &Manager{
		store:      store,
		verifier:   v,
		challenges: make(map[string]*Challenge),
		stop:       make(chan struct{}),
	}

	m.wg.Add(1)
	go m.expireLoop()

	return m
}

// Close stops the expiry sweeper.
func (m *Manager) Close() {
	close(m.stop)
	m.wg.Wait()
}

// Issue creates a new challenge for the given qubit budget and difficulty.
func (m *Manager) Issue(qubitBudget, difficulty int) (*Challenge, error) {
	qubits := circuit.QubitCount(proof.LayersFor(qubitBudget, difficulty))

	id, err := newChallengeID()
	if err != nil {
		return nil, fmt.Errorf("generate challenge id: %w", err)
	}

	c := &Challenge{
		ID:          id,
		QubitCount:  qubits,
		Difficulty:  difficulty,
		QubitBudget: qubitBudget,
		Reward:      int64(qubits) * rewardPerQubit,
		Deadline:    time.Now().Add(Lifetime),
	}

	m.mu.Lock()
	m.challenges[c.ID] = c
	m.mu.Unlock()

	logger.Info("challenge issued", "id", c.ID[:12], "qubits", qubits, "reward", c.Reward)
	return c, nil
}

// Submit verifies a proof against an open challenge and credits the reward
// to the validator. The challenge is consumed on success.
func (m *Manager) Submit(validator, challengeID string, p *proof.QuantumProof) (int64, error) {
	m.mu.Lock()
	c, ok := m.challenges[challengeID]
	m.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrChallengeNotFound, challengeID)
	}

	if time.Now().After(c.Deadline) {
		m.mu.Lock()
		delete(m.challenges, challengeID)
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrChallengeExpired, challengeID)
	}

	if p != nil && p.QubitCount != c.QubitCount {
		return 0, fmt.Errorf("%w: proof has %d qubits, challenge wants %d",
			ErrCircuitMismatch, p.QubitCount, c.QubitCount)
	}

	if err := m.verifier.Verify(p); err != nil {
		return 0, err
	}

	// Consume the challenge atomically; a concurrent submission that also
	// verified loses here instead of double-claiming the reward.
	m.mu.Lock()
	_, stillOpen := m.challenges[challengeID]
	delete(m.challenges, challengeID)
	m.mu.Unlock()

	if !stillOpen {
		return 0, fmt.Errorf("%w: %s", ErrChallengeNotFound, challengeID)
	}

	if err := m.credit(validator, c.Reward); err != nil {
		return 0, fmt.Errorf("credit score: %w", err)
	}

	logger.Info("challenge claimed", "id", c.ID[:12], "validator", validator, "reward", c.Reward)
	return c.Reward, nil
}

// Open returns the currently open, unexpired challenges.
func (m *Manager) Open() []*Challenge {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	open := make([]*Challenge, 0, len(m.challenges))
	for _, c := range m.challenges {
		if now.Before(c.Deadline) {
			open = append(open, c)
		}
	}

	return open
}

// Score returns the validator's accumulated score.
func (m *Manager) Score(validator string) (int64, error) {
	data, err := m.store.Get([]byte(scorePrefix + validator))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt score record for %s", validator)
	}

	return int64(binary.BigEndian.Uint64(data)), nil
}

// credit adds reward to the validator's persisted score. Submissions are
// serialized by the caller holding no lock here; the read-modify-write is
// protected by m.mu.
func (m *Manager) credit(validator string, reward int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.Score(validator)
	if err != nil {
		return err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(current+reward))

	return m.store.SetSync([]byte(scorePrefix+validator), buf)
}

// expireLoop drops expired challenges in the background.
func (m *Manager) expireLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

// sweepExpired removes challenges past their deadline.
func (m *Manager) sweepExpired() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.challenges {
		if now.After(c.Deadline) {
			delete(m.challenges, id)
			logger.Debug("challenge expired", "id", id[:12])
		}
	}
}

// DifficultyMultiplier scores how hard a circuit of the given size is to
// execute, relative to a 10-qubit baseline.
func DifficultyMultiplier(qubitCount int) float64 {
	return float64(qubitCount) / 10
}

// newChallengeID derives a random 32-byte identifier, hex-encoded.
// blake3 whitens the raw randomness so IDs never leak entropy pool state.
func newChallengeID() (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}

	sum := blake3.Sum256(seed)
	return hex.EncodeToString(sum[:]), nil
}
