package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Build constructs a QuantumProof from an already-serialized circuit
// descriptor and a measurement outcome. The wall clock is read once at
// construction time; everything else is a pure function of the inputs.
func Build(descriptor string, bits []int, qubitCount, difficultyLevel int, meta *SimulationMetadata) *QuantumProof {
	return &QuantumProof{
		CircuitDescriptor:  descriptor,
		DifficultyLevel:    difficultyLevel,
		MeasurementResults: bits,
		ProofArtifact:      Artifact(descriptor, bits),
		QubitCount:         qubitCount,
		Timestamp:          float64(time.Now().UnixNano()) / float64(time.Second),
		SimulationMetadata: meta,
	}
}

// Artifact computes the proof artifact for a descriptor and bit sequence:
// lowercase-hex SHA-256 over the descriptor bytes followed by the bit string.
func Artifact(descriptor string, bits []int) string {
	h := sha256.New()
	h.Write([]byte(descriptor))
	h.Write([]byte(BitString(bits)))

	return hex.EncodeToString(h.Sum(nil))
}

// BitString renders measurement bits as a '0'/'1' string in index order,
// with no separators.
func BitString(bits []int) string {
	out := make([]byte, len(bits))
	for i, b := range bits {
		if b == 0 {
			out[i] = '0'
		} else {
			out[i] = '1'
		}
	}

	return string(out)
}

// ParseBitString converts a '0'/'1' string into a bit slice.
// Any other character maps to -1 so downstream validation rejects it.
func ParseBitString(s string) []int {
	bits := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			bits[i] = 0
		case '1':
			bits[i] = 1
		default:
			bits[i] = -1
		}
	}

	return bits
}
