package proof

import "math"

// LayersFor maps a requested qubit budget and difficulty level to a lattice
// layer count: max(1, floor(sqrt(budget/3)) + difficulty). Monotonic
// non-decreasing in both inputs.
//
// The achieved qubit count is quantized by the lattice formula and usually
// differs from the budget; callers read the actual count from the proof's
// qubit_count field rather than the budget they asked for.
func LayersFor(qubitBudget, difficultyLevel int) int {
	layers := int(math.Sqrt(float64(qubitBudget)/3)) + difficultyLevel
	if layers < 1 {
		return 1
	}

	return layers
}
