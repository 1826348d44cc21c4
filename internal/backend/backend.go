package backend

import (
	"context"
	"errors"
	"fmt"

	"HexPoQ/internal/circuit"
)

var (
	// ErrUnavailable is returned when the backend cannot be reached or the
	// execution deadline expires. Recoverable: retry with a fresh request.
	ErrUnavailable = errors.New("quantum backend unavailable")

	// ErrMalformedOutput is returned when the backend produces a bitstring
	// whose length does not match the circuit's qubit count. Not retryable
	// for that response; a new attempt may succeed.
	ErrMalformedOutput = errors.New("malformed backend output")
)

// Result is a measurement outcome from a quantum backend. The protocol only
// depends on MostCommon; the histogram is pass-through metadata.
type Result struct {
	MostCommon string         `json:"most_common"` // MostCommon is the modal bitstring
	Counts     map[string]int `json:"counts"`      // Counts maps bitstring to occurrences
	Shots      int            `json:"shots"`       // Shots is the number of runs
}

// Backend executes a circuit structure and returns a measurement outcome.
//
// Execution is the one long-latency step of the proof pipeline; callers pass
// a context with a deadline, and implementations must return promptly once
// it is cancelled. One implementation exists per backend generation and the
// generation is selected at configuration time, never probed at runtime.
type Backend interface {
	Execute(ctx context.Context, lat *circuit.Lattice, sched *circuit.Schedule) (*Result, error)
	Name() string
}

// Kind selects a backend generation.
type Kind string

const (
	// KindSimulator is the in-process sampling simulator.
	KindSimulator Kind = "simulator"

	// KindRemote executes circuits via a remote HTTP service.
	KindRemote Kind = "remote"

	// KindWasm executes circuits in a WASM simulator module.
	KindWasm Kind = "wasm"
)

// Config holds backend selection and tuning parameters.
type Config struct {
	Kind       Kind    // Kind selects the backend generation
	Shots      int     // Shots per execution (default 1024)
	NoiseLevel float64 // NoiseLevel for simulator backends
	RemoteURL  string  // RemoteURL is the endpoint for KindRemote
	WasmPath   string  // WasmPath is the module path for KindWasm
}

// defaultShots is used when Config.Shots is zero.
const defaultShots = 1024

// New constructs the configured backend generation.
func New(cfg Config) (Backend, error) {
	if cfg.Shots == 0 {
		cfg.Shots = defaultShots
	}

	switch cfg.Kind {
	case KindSimulator, "":
		return NewSimulator(cfg.Shots, cfg.NoiseLevel), nil
	case KindRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote backend requires a URL")
		}
		return NewRemote(cfg.RemoteURL, cfg.Shots), nil
	case KindWasm:
		if cfg.WasmPath == "" {
			return nil, fmt.Errorf("wasm backend requires a module path")
		}
		return NewWasm(cfg.WasmPath, cfg.Shots)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// ValidateResult checks a backend result against the circuit's qubit count.
func ValidateResult(r *Result, qubitCount int) error {
	if r == nil || r.MostCommon == "" {
		return fmt.Errorf("%w: empty result", ErrMalformedOutput)
	}

	if len(r.MostCommon) != qubitCount {
		return fmt.Errorf("%w: bitstring length %d for %d qubits",
			ErrMalformedOutput, len(r.MostCommon), qubitCount)
	}

	for i := 0; i < len(r.MostCommon); i++ {
		if c := r.MostCommon[i]; c != '0' && c != '1' {
			return fmt.Errorf("%w: character %q at index %d", ErrMalformedOutput, c, i)
		}
	}

	return nil
}
