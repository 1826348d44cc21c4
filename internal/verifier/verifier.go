package verifier

import (
	"encoding/json"
	"fmt"

	"HexPoQ/internal/logger"
	"HexPoQ/internal/proof"
)

// Verifier validates quantum proofs against the protocol rules and rejects
// replayed artifacts via its injected ArtifactStore.
//
// All pure checks are stateless; only the final replay step touches the
// store, and that step is atomic per artifact. A Verifier is safe for
// concurrent use.
type Verifier struct {
	store ArtifactStore
}

// New creates a Verifier using the given artifact store.
func New(store ArtifactStore) *Verifier {
	return &Verifier{store: store}
}

// descriptorFields is the subset of the circuit descriptor the verifier
// requires. Pointers distinguish absent fields from zero values.
type descriptorFields struct {
	QubitCount *int `json:"qubit_count"`
	Layers     *int `json:"layers"`
}

// Verify runs the full validation pipeline, short-circuiting on the first
// failure. A nil return means the proof was accepted and its artifact
// recorded; acceptance is final, and a later call with the same artifact
// fails with ErrReplayDetected.
func (v *Verifier) Verify(p *proof.QuantumProof) error {
	if err := v.checkPresence(p); err != nil {
		return err
	}

	if err := v.checkDescriptor(p.CircuitDescriptor); err != nil {
		return err
	}

	if err := v.checkMeasurements(p); err != nil {
		return err
	}

	if err := v.checkArtifact(p); err != nil {
		return err
	}

	return v.checkReplay(p.ProofArtifact)
}

// checkPresence rejects proofs with absent or empty required fields.
// Runs before any hashing so a missing artifact never reaches the hash step.
func (v *Verifier) checkPresence(p *proof.QuantumProof) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrMissingFields)
	}

	switch {
	case p.CircuitDescriptor == "":
		return fmt.Errorf("%w: circuit_descriptor", ErrMissingFields)
	case len(p.MeasurementResults) == 0:
		return fmt.Errorf("%w: measurement_results", ErrMissingFields)
	case p.ProofArtifact == "":
		return fmt.Errorf("%w: proof_artifact", ErrMissingFields)
	case p.QubitCount == 0:
		return fmt.Errorf("%w: qubit_count", ErrMissingFields)
	}

	return nil
}

// checkDescriptor parses the descriptor and requires qubit_count and layers.
func (v *Verifier) checkDescriptor(descriptor string) error {
	var fields descriptorFields

	if err := json.Unmarshal([]byte(descriptor), &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	if fields.QubitCount == nil || fields.Layers == nil {
		return fmt.Errorf("%w: qubit_count and layers required", ErrMalformedDescriptor)
	}

	return nil
}

// checkMeasurements validates the measurement length against the proof's
// qubit_count field (not a recomputed value) and the bit domain.
func (v *Verifier) checkMeasurements(p *proof.QuantumProof) error {
	if len(p.MeasurementResults) != p.QubitCount {
		return fmt.Errorf("%w: %d measurements for %d qubits",
			ErrLengthMismatch, len(p.MeasurementResults), p.QubitCount)
	}

	for i, bit := range p.MeasurementResults {
		if bit != 0 && bit != 1 {
			return fmt.Errorf("%w: index %d is %d", ErrInvalidBit, i, bit)
		}
	}

	return nil
}

// checkArtifact recomputes the hash binding and compares it to the claimed
// artifact. This is an integrity check, not a secret comparison.
func (v *Verifier) checkArtifact(p *proof.QuantumProof) error {
	expected := proof.Artifact(p.CircuitDescriptor, p.MeasurementResults)

	if p.ProofArtifact != expected {
		return fmt.Errorf("%w: got %s, computed %s",
			ErrArtifactMismatch, p.ProofArtifact, expected)
	}

	return nil
}

// checkReplay atomically records the artifact, rejecting it if already spent.
func (v *Verifier) checkReplay(artifact string) error {
	added, err := v.store.Add(artifact)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	if !added {
		logger.Debug("replay rejected", "artifact", artifact[:16])
		return fmt.Errorf("%w: %s", ErrReplayDetected, artifact)
	}

	return nil
}
