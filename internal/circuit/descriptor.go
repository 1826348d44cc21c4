package circuit

import (
	"sort"
	"strconv"
	"strings"
)

// coordinatePrecision is the number of decimal places used when rendering
// lattice coordinates. Pinned so the descriptor is byte-identical across
// platforms; changing it breaks every existing proof artifact.
const coordinatePrecision = 6

// EncodeDescriptor serializes a lattice and its schedule into the canonical
// circuit descriptor string.
//
// The output is the sole descriptor-side input of the proof artifact hash, so
// it must be a pure function of the inputs: keys are emitted in lexicographic
// order, separators are compact, and coordinates use fixed-precision decimal
// formatting. Encoding the same lattice and schedule twice yields
// byte-identical strings.
func EncodeDescriptor(lat *Lattice, sched *Schedule) string {
	var b strings.Builder

	b.WriteString(`{"circuit_depth":`)
	b.WriteString(strconv.Itoa(len(sched.Layers)))

	b.WriteString(`,"circuit_width":`)
	b.WriteString(strconv.Itoa(lat.QubitCount))

	b.WriteString(`,"gate_counts":`)
	writeGateCounts(&b, sched)

	b.WriteString(`,"layers":`)
	b.WriteString(strconv.Itoa(lat.Layers))

	b.WriteString(`,"qubit_count":`)
	b.WriteString(strconv.Itoa(lat.QubitCount))

	b.WriteString(`,"structure":{"connections":`)
	writeConnections(&b, sched.ConnectivityPairs())

	b.WriteString(`,"qubit_positions":`)
	writePositions(&b, lat.Positions)

	b.WriteString(`}}`)

	return b.String()
}

// writeGateCounts emits the gate tally object with lexicographically
// sorted gate names. Gates with a zero count are omitted.
func writeGateCounts(b *strings.Builder, sched *Schedule) {
	counts := map[string]int{
		"cx": sched.ConnectivityCount(),
		"h":  sched.HadamardCount(),
	}

	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(name)
		b.WriteString(`":`)
		b.WriteString(strconv.Itoa(counts[name]))
	}
	b.WriteByte('}')
}

// writeConnections emits the adjacency pair list.
func writeConnections(b *strings.Builder, pairs [][2]int) {
	b.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(p[0]))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(p[1]))
		b.WriteByte(']')
	}
	b.WriteByte(']')
}

// writePositions emits the index-to-coordinate map. Keys are decimal index
// strings sorted lexicographically ("0", "1", "10", "11", ..., "2", ...),
// matching canonical JSON key ordering.
func writePositions(b *strings.Builder, positions []Coordinate) {
	keys := make([]string, len(positions))
	byKey := make(map[string]Coordinate, len(positions))

	for idx, c := range positions {
		key := strconv.Itoa(idx)
		keys[idx] = key
		byKey[key] = c
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		c := byKey[key]
		b.WriteByte('"')
		b.WriteString(key)
		b.WriteString(`":[`)
		b.WriteString(formatCoordinate(c.X))
		b.WriteByte(',')
		b.WriteString(formatCoordinate(c.Y))
		b.WriteByte(']')
	}
	b.WriteByte('}')
}

// formatCoordinate renders a coordinate with fixed precision.
// Negative zero is normalized so rounding never leaks a sign bit.
func formatCoordinate(v float64) string {
	s := strconv.FormatFloat(v, 'f', coordinatePrecision, 64)
	if s == "-0.000000" {
		return "0.000000"
	}

	return s
}
