package circuit

import (
	"strings"
	"testing"
)

// encodeFor builds lattice and schedule for the given layer count and
// returns the canonical descriptor.
func encodeFor(layers int) string {
	lat := BuildLattice(layers)
	sched := BuildSchedule(lat.QubitCount, layers)

	return EncodeDescriptor(lat, sched)
}

func TestEncodeDescriptorReproducible(t *testing.T) {
	for _, layers := range []int{0, 1, 2, 3, 5} {
		a := encodeFor(layers)
		b := encodeFor(layers)

		if a != b {
			t.Errorf("layers=%d: descriptor not byte-identical across encodings", layers)
		}
	}
}

func TestEncodeDescriptorSingleQubit(t *testing.T) {
	want := `{"circuit_depth":1,"circuit_width":1,"gate_counts":{"h":1},` +
		`"layers":1,"qubit_count":1,"structure":{"connections":[],` +
		`"qubit_positions":{"0":[0.000000,0.000000]}}}`

	if got := encodeFor(1); got != want {
		t.Errorf("descriptor mismatch:\n got:  %s\n want: %s", got, want)
	}
}

func TestEncodeDescriptorTwoLayers(t *testing.T) {
	want := `{"circuit_depth":2,"circuit_width":7,"gate_counts":{"cx":6,"h":7},` +
		`"layers":2,"qubit_count":7,"structure":{` +
		`"connections":[[0,1],[1,2],[2,3],[3,4],[4,5],[5,6]],` +
		`"qubit_positions":{` +
		`"0":[0.000000,0.000000],` +
		`"1":[1.000000,0.000000],` +
		`"2":[0.500000,0.866025],` +
		`"3":[-0.500000,0.866025],` +
		`"4":[-1.000000,0.000000],` +
		`"5":[-0.500000,-0.866025],` +
		`"6":[0.500000,-0.866025]}}}`

	if got := encodeFor(2); got != want {
		t.Errorf("descriptor mismatch:\n got:  %s\n want: %s", got, want)
	}
}

func TestEncodeDescriptorEmptySchedule(t *testing.T) {
	got := encodeFor(0)

	if !strings.Contains(got, `"gate_counts":{}`) {
		t.Errorf("layers=0 should have empty gate_counts: %s", got)
	}

	if !strings.Contains(got, `"circuit_depth":0`) {
		t.Errorf("layers=0 should have depth 0: %s", got)
	}
}

func TestEncodeDescriptorKeyOrdering(t *testing.T) {
	got := encodeFor(3)

	// Top-level keys must appear in lexicographic order.
	keys := []string{
		`"circuit_depth"`, `"circuit_width"`, `"gate_counts"`,
		`"layers"`, `"qubit_count"`, `"structure"`,
	}

	last := -1
	for _, key := range keys {
		idx := strings.Index(got, key)
		if idx < 0 {
			t.Fatalf("missing key %s", key)
		}
		if idx < last {
			t.Errorf("key %s out of order", key)
		}
		last = idx
	}
}

func TestEncodeDescriptorLexicographicIndices(t *testing.T) {
	// Layers=3 has 19 qubits, so two-digit indices exist: "10" must sort
	// before "2" in the canonical form.
	got := encodeFor(3)

	i10 := strings.Index(got, `"10":[`)
	i2 := strings.Index(got, `"2":[`)

	if i10 < 0 || i2 < 0 {
		t.Fatal("expected indices 10 and 2 in positions map")
	}

	if i10 > i2 {
		t.Error(`index "10" must precede index "2" in lexicographic key order`)
	}
}

func TestFormatCoordinateNegativeZero(t *testing.T) {
	if got := formatCoordinate(-1e-12); got != "0.000000" {
		t.Errorf("formatCoordinate(-1e-12) = %q, want %q", got, "0.000000")
	}
}
