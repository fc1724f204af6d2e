// Package outcome decides the winning side of a locked market.
//
// The production decider is a uniform random choice; the interface is
// the seam for swapping in an oracle or a voting mechanism without
// touching the resolution scheduler.
package outcome

import (
	"context"
	"math/rand/v2"
)

// Decider produces a winning side index for a market. Implementations
// must always return a valid side (0 or 1) for well-formed input and
// may return either side for the same input on different calls.
type Decider interface {
	Decide(ctx context.Context, title, sideA, sideB string) (int, error)
}

// RandomDecider picks a side uniformly at random.
type RandomDecider struct{}

// NewRandomDecider creates the 50/50 decider.
func NewRandomDecider() *RandomDecider {
	return &RandomDecider{}
}

func (*RandomDecider) Decide(_ context.Context, _, _, _ string) (int, error) {
	return rand.IntN(2), nil
}
