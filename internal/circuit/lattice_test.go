package circuit

import (
	"math"
	"testing"
)

func TestQubitCountFormula(t *testing.T) {
	cases := []struct {
		layers int
		want   int
	}{
		{0, 1},
		{1, 1},
		{2, 7},
		{3, 19},
		{4, 37},
		{5, 61},
		{6, 91},
	}

	for _, c := range cases {
		if got := QubitCount(c.layers); got != c.want {
			t.Errorf("QubitCount(%d) = %d, want %d", c.layers, got, c.want)
		}
	}
}

func TestBuildLatticeCenter(t *testing.T) {
	for _, layers := range []int{0, 1, 2, 5} {
		lat := BuildLattice(layers)

		if lat.Positions[0].X != 0 || lat.Positions[0].Y != 0 {
			t.Errorf("layers=%d: qubit 0 at (%v, %v), want origin",
				layers, lat.Positions[0].X, lat.Positions[0].Y)
		}
	}
}

func TestBuildLatticePositionCount(t *testing.T) {
	for layers := 0; layers <= 6; layers++ {
		lat := BuildLattice(layers)

		if len(lat.Positions) != lat.QubitCount {
			t.Errorf("layers=%d: %d positions, want %d",
				layers, len(lat.Positions), lat.QubitCount)
		}
	}
}

func TestBuildLatticeDeterministic(t *testing.T) {
	a := BuildLattice(4)
	b := BuildLattice(4)

	for i := range a.Positions {
		if a.Positions[i] != b.Positions[i] {
			t.Fatalf("qubit %d: %v != %v", i, a.Positions[i], b.Positions[i])
		}
	}
}

func TestBuildLatticeRingRadius(t *testing.T) {
	lat := BuildLattice(4)

	// The first qubit of each ring is the side-0 corner at radius == ring.
	idx := 1
	for ring := 1; ring < 4; ring++ {
		p := lat.Positions[idx]
		r := math.Hypot(p.X, p.Y)

		if math.Abs(r-float64(ring)) > 1e-9 {
			t.Errorf("ring %d corner at radius %v, want %d", ring, r, ring)
		}

		idx += 6 * ring
	}
}

func TestBuildLatticeFirstRing(t *testing.T) {
	lat := BuildLattice(2)

	// Ring 1 is the six hexagon corners at 60-degree steps.
	for i := 0; i < 6; i++ {
		angle := float64(i) * math.Pi / 3
		p := lat.Positions[1+i]

		if math.Abs(p.X-math.Cos(angle)) > 1e-9 || math.Abs(p.Y-math.Sin(angle)) > 1e-9 {
			t.Errorf("ring-1 qubit %d at (%v, %v), want angle %d deg",
				1+i, p.X, p.Y, i*60)
		}
	}
}
