package verifier

import "errors"

// Rejection reasons, in pipeline order. All are terminal for the proof
// instance being verified: retrying the same proof never changes the outcome.
var (
	// ErrMissingFields is returned when a required proof field is absent or empty.
	ErrMissingFields = errors.New("missing required proof fields")

	// ErrMalformedDescriptor is returned when the circuit descriptor does not
	// parse as canonical JSON or lacks qubit_count/layers.
	ErrMalformedDescriptor = errors.New("malformed circuit descriptor")

	// ErrLengthMismatch is returned when the measurement count does not match
	// the proof's qubit count.
	ErrLengthMismatch = errors.New("measurement length mismatch")

	// ErrInvalidBit is returned when a measurement entry is not 0 or 1.
	ErrInvalidBit = errors.New("measurement bit outside {0,1}")

	// ErrArtifactMismatch is returned when the recomputed hash does not match
	// the proof artifact.
	ErrArtifactMismatch = errors.New("proof artifact mismatch")

	// ErrReplayDetected is returned when the artifact was already accepted.
	ErrReplayDetected = errors.New("proof artifact already spent")
)
