package circuit

// LayerKind tags a gate layer as Hadamard or Connectivity.
type LayerKind int

const (
	// Hadamard layers apply a Hadamard gate to every qubit.
	Hadamard LayerKind = iota

	// Connectivity layers apply two-qubit gates between adjacent qubits.
	Connectivity
)

// GateLayer is one layer of the alternating gate schedule.
// Pairs is nil for Hadamard layers.
type GateLayer struct {
	Kind  LayerKind // Kind is the layer type
	Pairs [][2]int  // Pairs lists the (control, target) qubit index pairs
}

// Schedule is the ordered gate-layer sequence for a lattice.
// Derived purely from the layer count and qubit count; immutable once built.
type Schedule struct {
	QubitCount int         // QubitCount is the number of qubits addressed
	Layers     []GateLayer // Layers is the ordered layer sequence
}

// BuildSchedule derives the alternating schedule: even layers are Hadamard,
// odd layers connect qubit k to qubit k+1 for k in [0, qubitCount-2].
func BuildSchedule(qubitCount, layers int) *Schedule {
	s := &Schedule{
		QubitCount: qubitCount,
		Layers:     make([]GateLayer, 0, layers),
	}

	for i := 0; i < layers; i++ {
		if i%2 == 0 {
			s.Layers = append(s.Layers, GateLayer{Kind: Hadamard})
			continue
		}

		s.Layers = append(s.Layers, GateLayer{
			Kind:  Connectivity,
			Pairs: adjacentPairs(qubitCount),
		})
	}

	return s
}

// adjacentPairs returns the chain of (k, k+1) index pairs.
func adjacentPairs(qubitCount int) [][2]int {
	if qubitCount < 2 {
		return nil
	}

	pairs := make([][2]int, qubitCount-1)
	for k := 0; k < qubitCount-1; k++ {
		pairs[k] = [2]int{k, k + 1}
	}

	return pairs
}

// HadamardCount returns the total number of Hadamard applications:
// one per qubit in each even layer.
func (s *Schedule) HadamardCount() int {
	count := 0
	for _, l := range s.Layers {
		if l.Kind == Hadamard {
			count += s.QubitCount
		}
	}

	return count
}

// ConnectivityCount returns the total number of two-qubit gate applications.
func (s *Schedule) ConnectivityCount() int {
	count := 0
	for _, l := range s.Layers {
		count += len(l.Pairs)
	}

	return count
}

// ConnectivityPairs returns the adjacency pairs used by connectivity layers,
// or nil if the schedule has none. All connectivity layers share the same
// pair set, so the first one is authoritative.
func (s *Schedule) ConnectivityPairs() [][2]int {
	for _, l := range s.Layers {
		if l.Kind == Connectivity {
			return l.Pairs
		}
	}

	return nil
}
