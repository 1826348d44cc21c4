package proof

import "testing"

func TestLayersFor(t *testing.T) {
	cases := []struct {
		budget, difficulty int
		want               int
	}{
		{20, 2, 4}, // floor(sqrt(20/3)) = 2, + 2
		{20, 0, 2},
		{10, 1, 2}, // floor(sqrt(10/3)) = 1
		{1, 0, 1},  // floored at 1
		{3, 0, 1},
		{300, 0, 10},
		{300, 5, 15},
	}

	for _, c := range cases {
		if got := LayersFor(c.budget, c.difficulty); got != c.want {
			t.Errorf("LayersFor(%d, %d) = %d, want %d",
				c.budget, c.difficulty, got, c.want)
		}
	}
}

func TestLayersForMonotonic(t *testing.T) {
	prev := 0
	for budget := 1; budget <= 200; budget++ {
		got := LayersFor(budget, 0)
		if got < prev {
			t.Fatalf("LayersFor(%d, 0) = %d decreased below %d", budget, got, prev)
		}
		prev = got
	}

	prev = 0
	for difficulty := 0; difficulty <= 20; difficulty++ {
		got := LayersFor(50, difficulty)
		if got < prev {
			t.Fatalf("LayersFor(50, %d) = %d decreased below %d", difficulty, got, prev)
		}
		prev = got
	}
}
