package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Broken is the position returned to a rendezvous waiter whose generation did not complete:
// it timed out, was broken explicitly or was superseded by Reset.
const Broken = -1

type generationState int

const (
	generationOpen generationState = iota
	generationComplete
	generationBroken
	generationStale
)

// TeamRendezvous holds the members of one team until all of them have arrived, the timeout
// elapses or the generation is broken. It is reset at the start of every team round.
type TeamRendezvous struct {
	size    int
	timeout time.Duration
	clock   clockwork.Clock

	mu  sync.Mutex
	gen *generation
}

type generation struct {
	id      uint64
	arrived int
	state   generationState
	done    chan struct{}
	timer   clockwork.Timer
}

// Ticket is a joined arrival. Joining never blocks; Wait blocks until the generation resolves.
type Ticket struct {
	Position int

	gen *generation
	rv  *TeamRendezvous
}

// NewTeamRendezvous creates a rendezvous for a team of size members. A zero timeout disables
// the local timeout, leaving Break and Reset as the only ways to release an incomplete generation.
func NewTeamRendezvous(size int, timeout time.Duration, clock clockwork.Clock) *TeamRendezvous {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	rv := &TeamRendezvous{
		size:    size,
		timeout: timeout,
		clock:   clock,
	}

	rv.mu.Lock()
	rv.open(0)
	rv.mu.Unlock()

	return rv
}

func (rv *TeamRendezvous) open(id uint64) {
	g := &generation{
		id:   id,
		done: make(chan struct{}),
	}
	rv.gen = g

	if rv.size <= 0 {
		rv.finish(g, generationComplete)
		return
	}

	if rv.timeout > 0 {
		g.timer = rv.clock.AfterFunc(rv.timeout, func() { rv.expire(g) })
	}
}

// finish resolves g. Callers must hold rv.mu.
func (rv *TeamRendezvous) finish(g *generation, state generationState) {
	if g.state != generationOpen {
		return
	}

	g.state = state
	close(g.done)
	if g.timer != nil {
		g.timer.Stop()
	}
}

func (rv *TeamRendezvous) expire(g *generation) {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	if rv.gen == g {
		rv.finish(g, generationBroken)
	}
}

// Join registers an arrival in the current generation and returns its 1-based position.
// If the generation is already resolved the ticket carries the Broken position.
func (rv *TeamRendezvous) Join() Ticket {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	g := rv.gen
	if g.state != generationOpen {
		return Ticket{Position: Broken}
	}

	g.arrived++
	t := Ticket{Position: g.arrived, gen: g, rv: rv}
	if g.arrived >= rv.size {
		rv.finish(g, generationComplete)
	}

	return t
}

// Wait blocks until the ticket's generation resolves or ctx is done. It returns the ticket
// position when every member arrived and Broken otherwise.
func (t Ticket) Wait(ctx context.Context) int {
	if t.gen == nil {
		return Broken
	}

	select {
	case <-t.gen.done:
	case <-ctx.Done():
		return Broken
	}

	t.rv.mu.Lock()
	defer t.rv.mu.Unlock()

	if t.gen.state != generationComplete {
		return Broken
	}

	return t.Position
}

// Arrive joins the current generation and waits for it to resolve.
func (rv *TeamRendezvous) Arrive(ctx context.Context) int {
	return rv.Join().Wait(ctx)
}

// Break resolves the current generation as broken, releasing all of its waiters with Broken.
func (rv *TeamRendezvous) Break() {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	rv.finish(rv.gen, generationBroken)
}

// Reset starts a new generation. Waiters that joined an unresolved earlier generation are
// released with Broken and do not count towards the new one.
func (rv *TeamRendezvous) Reset() {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	prev := rv.gen
	rv.finish(prev, generationStale)
	rv.open(prev.id + 1)
}

// Generation returns the current generation counter.
func (rv *TeamRendezvous) Generation() uint64 {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.gen.id
}

// IsBroken reports whether the current generation was broken or timed out.
func (rv *TeamRendezvous) IsBroken() bool {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.gen.state == generationBroken
}

// Arrived returns how many members joined the current generation.
func (rv *TeamRendezvous) Arrived() int {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.gen.arrived
}
