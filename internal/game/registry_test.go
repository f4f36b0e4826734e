package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/quiz"
)

func makeRegistry(t *testing.T, eb *event.Bus) (*game.Registry, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	return game.NewRegistry(game.RegistryConfig{
		Bank:       quiz.Default(),
		Settings:   game.DefaultSettings(),
		Clock:      clock,
		EventBus:   eb,
		EndedGrace: 10 * time.Second,
	}), clock
}

func TestRegistry_Create(t *testing.T) {
	eb := event.NewBus()
	created := make(chan domain.EventSessionCreated, 1)
	eb.Subscribe(domain.EventNameSessionCreated, func(_ context.Context, e event.Event) error {
		created <- e.(domain.EventSessionCreated)
		return nil
	})

	r, _ := makeRegistry(t, eb)

	s, err := r.Create(context.Background(), game.CreateRequest{TeamCount: 3, PlayersPerTeam: 2, QuestionCount: 2})
	require.NoError(t, err)

	info := s.Snapshot()
	assert.Equal(t, domain.PhaseFilling, info.Phase)
	assert.Equal(t, 3, info.TeamCount)
	assert.Equal(t, 2, info.PlayersPerTeam)
	assert.Equal(t, 2, info.QuestionCount)
	assert.Equal(t, []domain.TeamStanding{{TeamID: "Team1"}, {TeamID: "Team2"}, {TeamID: "Team3"}}, info.Standings)

	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	select {
	case e := <-created:
		assert.Equal(t, s.ID(), e.Session.SessionID)
	case <-time.After(time.Second):
		t.Fatal("session created event not published")
	}
	eb.Stop()
}

func TestRegistry_CreateInvalid(t *testing.T) {
	tests := map[string]game.CreateRequest{
		"zero teams":     {TeamCount: 0, PlayersPerTeam: 1, QuestionCount: 1},
		"zero players":   {TeamCount: 1, PlayersPerTeam: 0, QuestionCount: 1},
		"zero questions": {TeamCount: 1, PlayersPerTeam: 1, QuestionCount: 0},
		"negative teams": {TeamCount: -2, PlayersPerTeam: 1, QuestionCount: 1},
	}

	for name, req := range tests {
		req := req
		t.Run(name, func(t *testing.T) {
			r, _ := makeRegistry(t, nil)

			_, err := r.Create(context.Background(), req)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
			assert.Empty(t, r.List())
		})
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := makeRegistry(t, nil)

	_, err := r.Get("nope")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRegistry_ListOldestFirst(t *testing.T) {
	r, _ := makeRegistry(t, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := r.Create(context.Background(), game.CreateRequest{TeamCount: 1, PlayersPerTeam: 1, QuestionCount: 1})
		require.NoError(t, err)
		ids = append(ids, s.ID())
		time.Sleep(2 * time.Millisecond)
	}

	var got []string
	for _, info := range r.List() {
		got = append(got, info.SessionID)
	}
	assert.Equal(t, ids, got)
}

func TestRegistry_RemovesEndedSessionAfterGrace(t *testing.T) {
	r, clock := makeRegistry(t, nil)

	s, err := r.Create(context.Background(), game.CreateRequest{TeamCount: 1, PlayersPerTeam: 1, QuestionCount: 1})
	require.NoError(t, err)

	ch := &recorder{}
	require.NoError(t, s.AddPlayer(context.Background(),
		domain.Enrollment{SessionID: s.ID(), TeamID: "Team1", Username: "solo"}, ch))

	info := s.Snapshot()
	require.Equal(t, domain.PhaseRunning, info.Phase)
	s.SubmitAnswer(context.Background(), domain.Answer{
		SessionID: s.ID(), TeamID: "Team1", Username: "solo", QuestionIndex: 0, Option: 0,
	})
	require.Equal(t, domain.PhaseEnded, s.Snapshot().Phase)

	_, err = r.Get(s.ID())
	require.NoError(t, err, "ended session stays reachable during the grace period")

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		_, err := r.Get(s.ID())
		return errors.HasCode(err, errors.CodeNotFound)
	}, time.Second, 5*time.Millisecond)
}
