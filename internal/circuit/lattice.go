package circuit

import "math"

// Coordinate is a 2D qubit position in the hexagonal lattice plane.
type Coordinate struct {
	X float64
	Y float64
}

// Lattice is a hexagonal arrangement of qubits. Qubit 0 sits at the origin
// and rings of 6*r qubits surround it. Immutable once built.
type Lattice struct {
	Layers     int          // Layers is the requested layer count
	QubitCount int          // QubitCount is the total number of qubits
	Positions  []Coordinate // Positions maps qubit index to its coordinate
}

// QubitCount returns the number of qubits in a hexagonal lattice with the
// given layer count: 1 + 3*(layers-1)*layers, or 1 for layers <= 1.
func QubitCount(layers int) int {
	if layers == 0 {
		return 1
	}

	return 1 + 3*(layers-1)*layers
}

// BuildLattice computes the qubit positions for an n-layer hexagonal lattice.
//
// Indices are assigned in generation order: ring-major, then side-major, then
// position along the side. The walk is fully deterministic, so the same layer
// count always produces the same index-to-coordinate mapping.
func BuildLattice(layers int) *Lattice {
	count := QubitCount(layers)

	positions := make([]Coordinate, 1, count)
	positions[0] = Coordinate{} // center qubit

	// Rings 1..layers-1, each ring a hexagon of 6*ring qubits.
	for ring := 1; ring < layers; ring++ {
		for side := 0; side < 6; side++ {
			angle := float64(side) * math.Pi / 3
			baseX := float64(ring) * math.Cos(angle)
			baseY := float64(ring) * math.Sin(angle)

			for pos := 0; pos < ring; pos++ {
				dx, dy := edgeOffset(side, pos)
				positions = append(positions, Coordinate{
					X: baseX + dx,
					Y: baseY + dy,
				})
			}
		}
	}

	return &Lattice{
		Layers:     layers,
		QubitCount: count,
		Positions:  positions,
	}
}

// edgeOffset advances along a hexagon side by pos steps.
// Each side uses its own unit direction so consecutive corners join up.
func edgeOffset(side, pos int) (dx, dy float64) {
	p := float64(pos)
	cos60 := math.Cos(math.Pi / 3)
	sin60 := math.Sin(math.Pi / 3)

	switch side {
	case 0: // top-right: +60 degrees
		return p * cos60, p * sin60
	case 1: // right: +x
		return p, 0
	case 2: // bottom-right: -60 degrees
		return p * math.Cos(-math.Pi/3), p * math.Sin(-math.Pi/3)
	case 3: // bottom-left: +60 degrees negated
		return -p * cos60, -p * sin60
	case 4: // left: -x
		return -p, 0
	default: // top-left: +60 degrees negated
		return -p * cos60, -p * sin60
	}
}
