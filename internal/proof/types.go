package proof

// SimulationMetadata carries optional backend execution details.
// It is pass-through data and never enters the artifact hash.
type SimulationMetadata struct {
	Backend    string  `json:"backend"`     // Backend is the executing backend name
	NoiseLevel float64 `json:"noise_level"` // NoiseLevel is the simulated noise level
	Shots      int     `json:"shots"`       // Shots is the number of measurement runs
}

// QuantumProof binds a circuit descriptor to a measurement outcome.
//
// ProofArtifact is the lowercase-hex SHA-256 of the descriptor bytes
// concatenated with the measurement bits rendered as '0'/'1' characters.
// A proof is built once and never mutated; any alteration invalidates the
// hash binding.
type QuantumProof struct {
	CircuitDescriptor  string              `json:"circuit_descriptor"`
	DifficultyLevel    int                 `json:"difficulty_level"`
	MeasurementResults []int               `json:"measurement_results"`
	ProofArtifact      string              `json:"proof_artifact"`
	QubitCount         int                 `json:"qubit_count"`
	Timestamp          float64             `json:"timestamp"`
	SimulationMetadata *SimulationMetadata `json:"simulation_metadata,omitempty"`
}
