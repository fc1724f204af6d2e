package outcome

import (
	"context"
	"testing"
)

func TestRandomDecider_ValidSides(t *testing.T) {
	dec := NewRandomDecider()

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		side, err := dec.Decide(context.Background(), "Will it happen?", "Yes", "No")
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if side != 0 && side != 1 {
			t.Fatalf("side = %d, want 0 or 1", side)
		}
		seen[side] = true
	}

	// 200 coin flips landing on one side only would mean a broken
	// generator, not bad luck.
	if !seen[0] || !seen[1] {
		t.Errorf("expected both sides over 200 decisions, saw %v", seen)
	}
}
