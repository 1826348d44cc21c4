package backend

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"HexPoQ/internal/circuit"
)

// Simulator is the in-process backend generation. It samples measurement
// outcomes without simulating state-vector evolution: the schedule opens
// with a Hadamard layer, so ideal outcomes are uniform and the simulator
// draws them directly, applying an extra per-bit flip at the configured
// noise level.
type Simulator struct {
	shots int
	noise float64

	mu  sync.Mutex // mu protects rng; math/rand sources are not concurrency-safe
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded from the clock.
func NewSimulator(shots int, noise float64) *Simulator {
	return NewSimulatorSeeded(shots, noise, time.Now().UnixNano())
}

// NewSimulatorSeeded creates a simulator with a fixed seed for
// reproducible sampling.
func NewSimulatorSeeded(shots int, noise float64, seed int64) *Simulator {
	return &Simulator{
		shots: shots,
		noise: noise,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Name returns the backend name recorded in proof metadata.
func (s *Simulator) Name() string {
	return "qasm_simulator"
}

// Noise returns the configured noise level.
func (s *Simulator) Noise() float64 {
	return s.noise
}

// Shots returns the configured shot count.
func (s *Simulator) Shots() int {
	return s.shots
}

// Execute samples the configured number of shots for the lattice and
// returns the outcome histogram with its modal bitstring.
func (s *Simulator) Execute(ctx context.Context, lat *circuit.Lattice, sched *circuit.Schedule) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)

	s.mu.Lock()
	for i := 0; i < s.shots; i++ {
		counts[s.sampleLocked(lat.QubitCount)]++
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		MostCommon: modalBitstring(counts),
		Counts:     counts,
		Shots:      s.shots,
	}, nil
}

// sampleLocked draws one measurement bitstring. Caller holds s.mu.
func (s *Simulator) sampleLocked(qubitCount int) string {
	bits := make([]byte, qubitCount)

	for i := range bits {
		bit := byte(s.rng.Intn(2))

		// Depolarizing-style readout flip
		if s.noise > 0 && s.rng.Float64() < s.noise {
			bit ^= 1
		}

		bits[i] = '0' + bit
	}

	return string(bits)
}

// modalBitstring returns the most frequent bitstring. Ties break toward
// the lexicographically smallest string so the result is deterministic.
func modalBitstring(counts map[string]int) string {
	best := ""
	bestCount := -1

	for bitstring, count := range counts {
		if count > bestCount || (count == bestCount && bitstring < best) {
			best = bitstring
			bestCount = count
		}
	}

	return best
}
