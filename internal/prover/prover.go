package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HexPoQ/internal/backend"
	"HexPoQ/internal/circuit"
	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
)

// DefaultTimeout bounds a single backend execution.
const DefaultTimeout = 30 * time.Second

// Prover turns a qubit budget and difficulty into a complete proof by
// driving the circuit builder and a quantum backend.
type Prover struct {
	backend backend.Backend
	timeout time.Duration
}

// New creates a prover over the given backend. A zero timeout falls back
// to DefaultTimeout.
func New(b backend.Backend, timeout time.Duration) *Prover {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Prover{
		backend: b,
		timeout: timeout,
	}
}

// Generate builds the circuit for the given parameters, executes it on the
// backend and binds the outcome into a proof.
//
// Backend latency is bounded by the prover's timeout on top of any deadline
// already carried by ctx; expiry surfaces as backend.ErrUnavailable.
func (p *Prover) Generate(ctx context.Context, qubitBudget, difficulty int) (*proof.QuantumProof, error) {
	layers := proof.LayersFor(qubitBudget, difficulty)

	lat := circuit.BuildLattice(layers)
	sched := circuit.BuildSchedule(lat.QubitCount, lat.Layers)
	descriptor := circuit.EncodeDescriptor(lat, sched)

	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.backend.Execute(execCtx, lat, sched)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: execution timed out after %s", backend.ErrUnavailable, p.timeout)
		}
		return nil, fmt.Errorf("execute circuit: %w", err)
	}

	if err := backend.ValidateResult(result, lat.QubitCount); err != nil {
		return nil, err
	}

	meta := &proof.SimulationMetadata{
		Backend: p.backend.Name(),
		Shots:   result.Shots,
	}
	if noisy, ok := p.backend.(interface{ Noise() float64 }); ok {
		meta.NoiseLevel = noisy.Noise()
	}

	bits := proof.ParseBitString(result.MostCommon)
	built := proof.Build(descriptor, bits, lat.QubitCount, difficulty, meta)

	logger.Debug("proof generated",
		"qubits", lat.QubitCount,
		"layers", layers,
		"backend", p.backend.Name(),
		"took", time.Since(start).Round(time.Millisecond).String())

	return built, nil
}
