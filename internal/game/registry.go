package game

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/quiz"
	"github.com/victornm/squadquiz/internal/telemetry"
)

type RegistryConfig struct {
	Bank     *quiz.Bank
	Settings Settings
	Clock    clockwork.Clock
	EventBus *event.Bus
	// EndedGrace is how long an ended session stays reachable before it is removed.
	EndedGrace time.Duration
}

type CreateRequest struct {
	TeamCount      int
	PlayersPerTeam int
	QuestionCount  int
}

// Registry is the set of active sessions, keyed by session ID.
type Registry struct {
	bank     *quiz.Bank
	settings Settings
	clock    clockwork.Clock
	eb       *event.Bus
	grace    time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(c RegistryConfig) *Registry {
	if c.Bank == nil {
		c.Bank = quiz.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	return &Registry{
		bank:     c.Bank,
		settings: c.Settings,
		clock:    c.Clock,
		eb:       c.EventBus,
		grace:    c.EndedGrace,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in the filling phase with questions picked from the bank.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.TeamCount < 1 || req.PlayersPerTeam < 1 || req.QuestionCount < 1 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("teams, players per team and questions must all be at least 1"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	s, err := NewSession(Config{
		SessionID:      id.String(),
		TeamCount:      req.TeamCount,
		PlayersPerTeam: req.PlayersPerTeam,
		Questions:      r.bank.Select(req.QuestionCount, nil),
		Settings:       r.settings,
		Clock:          r.clock,
		EventBus:       r.eb,
		OnEnded:        r.ended,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	telemetry.ActiveSessions.Inc()

	info := s.Snapshot()
	slog.InfoContext(ctx, "game: session created",
		"session_id", info.SessionID,
		"teams", info.TeamCount,
		"players_per_team", info.PlayersPerTeam,
		"questions", info.QuestionCount,
	)
	if r.eb != nil {
		r.eb.Publish(ctx, domain.EventSessionCreated{Session: info, CreatedAt: r.clock.Now()})
	}

	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session %s not found", id))
	}

	return s, nil
}

// List returns a summary of every active session, oldest first.
func (r *Registry) List() []domain.SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}

	// v7 IDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })

	return out
}

// ended schedules removal of a finished session. It runs under the session lock.
func (r *Registry) ended(id string) {
	if r.grace <= 0 {
		go r.remove(id)
		return
	}
	r.clock.AfterFunc(r.grace, func() { r.remove(id) })
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	telemetry.ActiveSessions.Dec()

	slog.Info("game: session removed", "session_id", id)
}
