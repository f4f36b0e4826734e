package game

import (
	"context"
	"sync"

	"github.com/victornm/squadquiz/internal/domain"
)

type playerKey struct {
	team     string
	username string
}

// Round is the state of one question from broadcast to conclusion.
//
// The answer map has its own lock because team scorers read it while they wait on a rendezvous.
// Everything else is owned by the session lock.
type Round struct {
	Index    int
	Question domain.Question
	Team     bool

	mu      sync.RWMutex
	answers map[playerKey]int

	ended  bool
	points map[string]int
	scored map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newRound(ctx context.Context, index int, q domain.Question) *Round {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &Round{
		Index:    index,
		Question: q,
		Team:     domain.TeamQuestion(index),
		answers:  make(map[playerKey]int),
		points:   make(map[string]int),
		scored:   make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// record stores a player's answer. It returns false if the player already answered this round.
func (r *Round) record(k playerKey, option int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.answers[k]; ok {
		return false
	}
	r.answers[k] = option
	return true
}

func (r *Round) answer(k playerKey) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	option, ok := r.answers[k]
	return option, ok
}

func (r *Round) answered() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.answers)
}

// end flips the ended flag. Only the first caller gets true. Callers hold the session lock.
func (r *Round) end() bool {
	if r.ended {
		return false
	}
	r.ended = true
	r.cancel()
	return true
}
