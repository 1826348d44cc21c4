package backend

import (
	"context"
	"testing"

	"HexPoQ/internal/circuit"
)

func testCircuit(t *testing.T, layers int) (*circuit.Lattice, *circuit.Schedule) {
	t.Helper()

	lat := circuit.BuildLattice(layers)
	sched := circuit.BuildSchedule(lat.QubitCount, lat.Layers)
	return lat, sched
}

func TestSimulatorExecute(t *testing.T) {
	lat, sched := testCircuit(t, 2)
	sim := NewSimulatorSeeded(64, 0, 1)

	result, err := sim.Execute(context.Background(), lat, sched)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(result.MostCommon) != lat.QubitCount {
		t.Errorf("bitstring length = %d, want %d", len(result.MostCommon), lat.QubitCount)
	}

	if result.Shots != 64 {
		t.Errorf("Shots = %d, want 64", result.Shots)
	}

	total := 0
	for bitstring, count := range result.Counts {
		if len(bitstring) != lat.QubitCount {
			t.Errorf("histogram bitstring %q has length %d, want %d",
				bitstring, len(bitstring), lat.QubitCount)
		}
		total += count
	}
	if total != 64 {
		t.Errorf("histogram counts sum to %d, want 64", total)
	}

	if err := ValidateResult(result, lat.QubitCount); err != nil {
		t.Errorf("ValidateResult rejected simulator output: %v", err)
	}
}

func TestSimulatorDeterministicWithSeed(t *testing.T) {
	lat, sched := testCircuit(t, 2)

	a, err := NewSimulatorSeeded(128, 0.05, 42).Execute(context.Background(), lat, sched)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	b, err := NewSimulatorSeeded(128, 0.05, 42).Execute(context.Background(), lat, sched)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if a.MostCommon != b.MostCommon {
		t.Errorf("same seed produced different modal bitstrings: %q vs %q", a.MostCommon, b.MostCommon)
	}

	if len(a.Counts) != len(b.Counts) {
		t.Errorf("same seed produced different histograms: %d vs %d entries", len(a.Counts), len(b.Counts))
	}
}

func TestSimulatorCancelledContext(t *testing.T) {
	lat, sched := testCircuit(t, 2)
	sim := NewSimulatorSeeded(16, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.Execute(ctx, lat, sched); err == nil {
		t.Error("Execute succeeded with cancelled context")
	}
}

func TestModalBitstringTieBreak(t *testing.T) {
	counts := map[string]int{
		"1100": 5,
		"0011": 5,
		"1111": 2,
	}

	if got := modalBitstring(counts); got != "0011" {
		t.Errorf("modalBitstring = %q, want lexicographically smallest tie %q", got, "0011")
	}
}

func TestValidateResult(t *testing.T) {
	tests := []struct {
		name       string
		result     *Result
		qubitCount int
		wantErr    bool
	}{
		{"valid", &Result{MostCommon: "0101010"}, 7, false},
		{"nil result", nil, 7, true},
		{"empty bitstring", &Result{MostCommon: ""}, 7, true},
		{"wrong length", &Result{MostCommon: "0101"}, 7, true},
		{"invalid character", &Result{MostCommon: "01x1010"}, 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResult(tt.result, tt.qubitCount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResult() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
