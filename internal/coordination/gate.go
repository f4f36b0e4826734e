package coordination

import (
	"context"
	"sync"
)

// BonusGate is a reusable countdown that releases waiters once the expected number of
// arrivals has been counted. The first arrivals of each generation receive a bonus multiplier.
type BonusGate struct {
	slots  int
	factor int

	mu        sync.Mutex
	remaining int
	awarded   int
	gen       *gateGeneration
}

type gateGeneration struct {
	done   chan struct{}
	closed bool
	// full is true when the generation was released by the countdown reaching zero,
	// false when it was superseded by Reset.
	full bool
}

// NewBonusGate creates a gate expecting capacity arrivals. The first bonusSlots arrivals get
// bonusFactor as their multiplier, everybody else gets 1.
func NewBonusGate(capacity, bonusSlots, bonusFactor int) *BonusGate {
	if bonusSlots < 0 {
		bonusSlots = 0
	}
	if bonusFactor < 1 {
		bonusFactor = 1
	}

	g := &BonusGate{
		slots:  bonusSlots,
		factor: bonusFactor,
	}
	g.start(capacity)

	return g
}

func (g *BonusGate) start(capacity int) {
	if capacity < 0 {
		capacity = 0
	}

	g.remaining = capacity
	g.awarded = 0
	g.gen = &gateGeneration{done: make(chan struct{})}
	if capacity == 0 {
		g.gen.release(true)
	}
}

func (gen *gateGeneration) release(full bool) {
	if gen.closed {
		return
	}
	gen.closed = true
	gen.full = full
	close(gen.done)
}

// Arrive counts one arrival and returns the multiplier granted to it.
// The remaining capacity never drops below zero.
func (g *BonusGate) Arrive() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.remaining > 0 {
		g.remaining--
		if g.remaining == 0 {
			g.gen.release(true)
		}
	}

	if g.awarded < g.slots {
		g.awarded++
		return g.factor
	}

	return 1
}

// Await blocks until the remaining capacity of the current generation reaches zero, the
// generation is superseded by Reset, or ctx is done. It reports whether the countdown completed.
func (g *BonusGate) Await(ctx context.Context) bool {
	g.mu.Lock()
	gen := g.gen
	g.mu.Unlock()

	select {
	case <-gen.done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return gen.full
	case <-ctx.Done():
		return false
	}
}

// Reset starts a new generation expecting capacity arrivals. Waiters of the previous
// generation are woken and report an incomplete countdown.
func (g *BonusGate) Reset(capacity int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gen.release(false)
	g.start(capacity)
}

// Remaining returns how many arrivals the current generation still expects.
func (g *BonusGate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// Awarded returns how many bonus multipliers the current generation has handed out.
func (g *BonusGate) Awarded() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.awarded
}
