package random

import "testing"

func TestNewSeedProducesDistinctValues(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 16; i++ {
		seed, err := NewSeed()
		if err != nil {
			t.Fatalf("new seed: %v", err)
		}
		seen[seed] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected seeds to vary across calls")
	}
}
