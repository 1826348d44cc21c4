package verifier

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"HexPoQ/internal/circuit"
	"HexPoQ/internal/proof"
)

// newTestVerifier creates a verifier with a fresh in-memory store.
func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return New(NewMemoryStore())
}

// buildTestProof builds a valid proof for the given layer count.
func buildTestProof(t *testing.T, layers int) *proof.QuantumProof {
	t.Helper()

	lat := circuit.BuildLattice(layers)
	sched := circuit.BuildSchedule(lat.QubitCount, layers)
	descriptor := circuit.EncodeDescriptor(lat, sched)

	bits := make([]int, lat.QubitCount)
	for i := range bits {
		bits[i] = i % 2
	}

	return proof.Build(descriptor, bits, lat.QubitCount, 1, nil)
}

func TestVerifyAccepts(t *testing.T) {
	v := newTestVerifier(t)
	p := buildTestProof(t, 2)

	if err := v.Verify(p); err != nil {
		t.Fatalf("valid proof rejected: %v", err)
	}
}

func TestVerifyReplay(t *testing.T) {
	v := newTestVerifier(t)
	p := buildTestProof(t, 2)

	if err := v.Verify(p); err != nil {
		t.Fatalf("first verification failed: %v", err)
	}

	err := v.Verify(p)
	if !errors.Is(err, ErrReplayDetected) {
		t.Errorf("second verification: got %v, want ErrReplayDetected", err)
	}
}

func TestVerifyBitFlip(t *testing.T) {
	v := newTestVerifier(t)

	for flip := 0; flip < 7; flip++ {
		p := buildTestProof(t, 2)
		p.MeasurementResults[flip] ^= 1

		err := v.Verify(p)
		if !errors.Is(err, ErrArtifactMismatch) {
			t.Errorf("flipped bit %d: got %v, want ErrArtifactMismatch", flip, err)
		}
	}
}

func TestVerifyLengthMismatch(t *testing.T) {
	v := newTestVerifier(t)
	p := buildTestProof(t, 2)

	// Truncate the measurements and recompute a matching artifact: the
	// length check must fire regardless of hash correctness.
	p.MeasurementResults = p.MeasurementResults[:5]
	p.ProofArtifact = proof.Artifact(p.CircuitDescriptor, p.MeasurementResults)

	err := v.Verify(p)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("got %v, want ErrLengthMismatch", err)
	}
}

func TestVerifyInvalidBit(t *testing.T) {
	v := newTestVerifier(t)
	p := buildTestProof(t, 2)
	p.MeasurementResults[3] = 2

	err := v.Verify(p)
	if !errors.Is(err, ErrInvalidBit) {
		t.Errorf("got %v, want ErrInvalidBit", err)
	}
}

func TestVerifyMissingFields(t *testing.T) {
	v := newTestVerifier(t)

	cases := []struct {
		name   string
		mutate func(*proof.QuantumProof)
	}{
		{"descriptor", func(p *proof.QuantumProof) { p.CircuitDescriptor = "" }},
		{"measurements", func(p *proof.QuantumProof) { p.MeasurementResults = nil }},
		{"artifact", func(p *proof.QuantumProof) { p.ProofArtifact = "" }},
		{"qubit_count", func(p *proof.QuantumProof) { p.QubitCount = 0 }},
	}

	for _, c := range cases {
		p := buildTestProof(t, 2)
		c.mutate(p)

		err := v.Verify(p)
		if !errors.Is(err, ErrMissingFields) {
			t.Errorf("%s: got %v, want ErrMissingFields", c.name, err)
		}
	}

	if err := v.Verify(nil); !errors.Is(err, ErrMissingFields) {
		t.Errorf("nil proof: got %v, want ErrMissingFields", err)
	}
}

func TestVerifyMalformedDescriptor(t *testing.T) {
	v := newTestVerifier(t)

	for _, descriptor := range []string{
		"not json at all",
		`{"qubit_count":7}`,
		`{"layers":2}`,
		`[1,2,3]`,
	} {
		p := buildTestProof(t, 2)
		p.CircuitDescriptor = descriptor
		p.ProofArtifact = proof.Artifact(descriptor, p.MeasurementResults)

		err := v.Verify(p)
		if !errors.Is(err, ErrMalformedDescriptor) {
			t.Errorf("descriptor %q: got %v, want ErrMalformedDescriptor", descriptor, err)
		}
	}
}

func TestVerifyPipelineOrder(t *testing.T) {
	v := newTestVerifier(t)

	// A proof missing the artifact must fail at the presence check even
	// though it would also fail later stages.
	p := buildTestProof(t, 2)
	p.ProofArtifact = ""
	p.MeasurementResults = p.MeasurementResults[:3]

	err := v.Verify(p)
	if !errors.Is(err, ErrMissingFields) {
		t.Errorf("got %v, want ErrMissingFields before any hashing", err)
	}
}

func TestVerifyConcurrentSingleWinner(t *testing.T) {
	v := newTestVerifier(t)
	p := buildTestProof(t, 3)

	const workers = 16

	var accepted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			if err := v.Verify(p); err == nil {
				accepted.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("%d concurrent verifications accepted, want exactly 1", accepted.Load())
	}
}
