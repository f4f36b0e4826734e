package game_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/telemetry"
)

const timeLimit = 30 * time.Second

type recorder struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (r *recorder) Send(_ context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) all(kind string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for _, m := range r.msgs {
		if m.Kind() == kind {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) scores() []domain.ScoreMessage {
	var out []domain.ScoreMessage
	for _, m := range r.all(domain.KindScore) {
		out = append(out, m.(domain.ScoreMessage))
	}
	return out
}

func (r *recorder) questions() []domain.QuestionMessage {
	var out []domain.QuestionMessage
	for _, m := range r.all(domain.KindQuestion) {
		out = append(out, m.(domain.QuestionMessage))
	}
	return out
}

func (r *recorder) lastStatus() domain.StatusMessage {
	st := r.all(domain.KindStatus)
	if len(st) == 0 {
		return domain.StatusMessage{}
	}
	return st[len(st)-1].(domain.StatusMessage)
}

type failingChannel struct{}

func (failingChannel) Send(context.Context, domain.Message) error {
	return fmt.Errorf("connection closed")
}

func questions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			Prompt:  fmt.Sprintf("Q%d", i),
			Options: []string{"a", "b", "c", "d"},
			Correct: 1,
			Points:  5,
		}
	}
	return qs
}

type sessionOpts struct {
	teams, players, questions int
	settings                  game.Settings
	eb                        *event.Bus
}

func makeSession(t *testing.T, o sessionOpts) (*game.Session, *clockwork.FakeClock) {
	t.Helper()

	if o.settings == (game.Settings{}) {
		o.settings = game.Settings{TimeLimit: timeLimit, BonusSlots: 2, BonusFactor: 2, BarrierTimeout: timeLimit}
	}

	clock := clockwork.NewFakeClock()
	s, err := game.NewSession(game.Config{
		SessionID:      "s1",
		TeamCount:      o.teams,
		PlayersPerTeam: o.players,
		Questions:      questions(o.questions),
		Settings:       o.settings,
		Clock:          clock,
		EventBus:       o.eb,
	})
	require.NoError(t, err)

	return s, clock
}

// enroll fills teams in order: players "Team1-0", "Team1-1", ...
func enroll(t *testing.T, s *game.Session, teams, players int) map[string]*recorder {
	t.Helper()

	chans := make(map[string]*recorder)
	for i := 1; i <= teams; i++ {
		for j := 0; j < players; j++ {
			team := fmt.Sprintf("Team%d", i)
			username := fmt.Sprintf("%s-%d", team, j)
			ch := &recorder{}
			require.NoError(t, s.AddPlayer(context.Background(), domain.Enrollment{
				SessionID: "s1", TeamID: team, Username: username,
			}, ch))
			chans[username] = ch
		}
	}
	return chans
}

func answer(s *game.Session, username string, index, option int) {
	team := username[:len("Team1")]
	s.SubmitAnswer(context.Background(), domain.Answer{
		SessionID:     "s1",
		TeamID:        team,
		Username:      username,
		QuestionIndex: index,
		Option:        option,
	})
}

func standing(s *game.Session, team string) int {
	for _, st := range s.Snapshot().Standings {
		if st.TeamID == team {
			return st.Score
		}
	}
	return -1
}

func playerScore(s *game.Session, username string) int {
	for _, p := range s.Snapshot().Players {
		if p.Username == username {
			return p.Score
		}
	}
	return -1
}

func TestNewSession_Invalid(t *testing.T) {
	tests := map[string]game.Config{
		"no teams":     {TeamCount: 0, PlayersPerTeam: 1, Questions: questions(1)},
		"no players":   {TeamCount: 1, PlayersPerTeam: 0, Questions: questions(1)},
		"no questions": {TeamCount: 1, PlayersPerTeam: 1},
	}

	for name, c := range tests {
		c := c
		t.Run(name, func(t *testing.T) {
			_, err := game.NewSession(c)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
		})
	}
}

func TestSession_AddPlayer(t *testing.T) {
	type outputs struct {
		err   error
		reply domain.StatusMessage
		s     *game.Session
	}

	tests := map[string]struct {
		arrange func(t *testing.T, s *game.Session) domain.Enrollment
		assert  func(t *testing.T, out outputs)
	}{
		"first player joins": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				return domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "alice"}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.True(t, out.reply.Success)
				assert.Contains(t, out.reply.Message, "SUCCESS")
				assert.Equal(t, domain.PhaseFilling, out.s.Snapshot().Phase)
			},
		},
		"team does not exist": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				return domain.Enrollment{SessionID: "s1", TeamID: "Team9", Username: "alice"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeNotFound))
				assert.False(t, out.reply.Success)
			},
		},
		"team is full": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				for _, u := range []string{"a", "b"} {
					require.NoError(t, s.AddPlayer(context.Background(),
						domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: u}, &recorder{}))
				}
				return domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "c"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeResourceExhausted))
				assert.False(t, out.reply.Success)
				assert.Contains(t, out.reply.Message, "full")
			},
		},
		"username taken in another team": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				require.NoError(t, s.AddPlayer(context.Background(),
					domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "alice"}, &recorder{}))
				return domain.Enrollment{SessionID: "s1", TeamID: "Team2", Username: "alice"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeAlreadyExists))
			},
		},
		"session already running": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				enroll(t, s, 2, 2)
				return domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "late"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeFailedPrecondition))
				assert.Equal(t, domain.PhaseRunning, out.s.Snapshot().Phase)
			},
		},
		"empty username": {
			arrange: func(t *testing.T, s *game.Session) domain.Enrollment {
				return domain.Enrollment{SessionID: "s1", TeamID: "Team1"}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.HasCode(out.err, errors.CodeInvalidArgument))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			s, _ := makeSession(t, sessionOpts{teams: 2, players: 2, questions: 2})
			e := tt.arrange(t, s)

			ch := &recorder{}
			err := s.AddPlayer(context.Background(), e, ch)

			tt.assert(t, outputs{err: err, reply: ch.lastStatus(), s: s})
		})
	}
}

func TestSession_StartsOnlyWhenEveryTeamIsFull(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 2, players: 2, questions: 1})

	steps := []struct {
		team, username string
	}{
		{"Team1", "a"}, {"Team1", "b"}, {"Team2", "c"},
	}
	for _, st := range steps {
		require.NoError(t, s.AddPlayer(context.Background(),
			domain.Enrollment{SessionID: "s1", TeamID: st.team, Username: st.username}, &recorder{}))
		assert.Equal(t, domain.PhaseFilling, s.Snapshot().Phase, "after %s joined", st.username)
	}

	last := &recorder{}
	require.NoError(t, s.AddPlayer(context.Background(),
		domain.Enrollment{SessionID: "s1", TeamID: "Team2", Username: "d"}, last))

	assert.Equal(t, domain.PhaseRunning, s.Snapshot().Phase)
	qs := last.questions()
	require.Len(t, qs, 1)
	assert.Equal(t, 0, qs[0].QuestionIndex)
	assert.False(t, qs[0].TeamQuestion)
	assert.Equal(t, int(timeLimit/time.Second), qs[0].TimeLimitSeconds)
}

func TestSession_BonusGoesToEarliestArrivals(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{
		teams: 1, players: 3, questions: 1,
		settings: game.Settings{TimeLimit: timeLimit, BonusSlots: 2, BonusFactor: 3},
	})
	chans := enroll(t, s, 1, 3)

	answer(s, "Team1-0", 0, 1)
	assert.Equal(t, 15, standing(s, "Team1"))
	answer(s, "Team1-1", 0, 1)
	assert.Equal(t, 30, standing(s, "Team1"))
	answer(s, "Team1-2", 0, 1)
	assert.Equal(t, 35, standing(s, "Team1"))

	assert.Equal(t, []domain.PlayerStanding{
		{TeamID: "Team1", Username: "Team1-0", Score: 15},
		{TeamID: "Team1", Username: "Team1-1", Score: 15},
		{TeamID: "Team1", Username: "Team1-2", Score: 5},
	}, s.Snapshot().Players)

	sc := chans["Team1-0"].scores()
	require.Len(t, sc, 1)
	assert.Equal(t, 35, sc[0].RoundPoints)
}

func TestSession_WrongAnswerStillTakesBonusSlot(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 1, players: 3, questions: 1})
	enroll(t, s, 1, 3)

	answer(s, "Team1-0", 0, 0) // wrong
	answer(s, "Team1-1", 0, 1)
	answer(s, "Team1-2", 0, 1)

	assert.Equal(t, 10+5, standing(s, "Team1"))
}

func TestSession_DuplicateAnswerIsIgnored(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 1, players: 3, questions: 1})
	chans := enroll(t, s, 1, 3)

	answer(s, "Team1-0", 0, 1)
	answer(s, "Team1-0", 0, 1)
	answer(s, "Team1-0", 0, 2)
	assert.Equal(t, 10, standing(s, "Team1"))
	assert.Empty(t, chans["Team1-0"].scores(), "repeated answers must not count towards all-answered")

	answer(s, "Team1-1", 0, 1)
	assert.Equal(t, 20, standing(s, "Team1"), "second player still gets the second bonus slot")

	answer(s, "Team1-2", 0, 1)
	assert.Equal(t, 25, standing(s, "Team1"))
}

func TestSession_DropsAnswersOutsideTheRound(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 1, players: 2, questions: 2})

	answer(s, "Team1-0", 0, 1) // not running yet
	enroll(t, s, 1, 2)
	assert.Equal(t, 0, standing(s, "Team1"))

	answer(s, "Team1-0", 1, 1) // future round
	s.SubmitAnswer(context.Background(), domain.Answer{TeamID: "Team1", Username: "mallory", Option: 1})
	s.SubmitAnswer(context.Background(), domain.Answer{TeamID: "Team7", Username: "Team1-0", Option: 1})
	assert.Equal(t, 0, standing(s, "Team1"))

	answer(s, "Team1-0", 0, 1)
	answer(s, "Team1-1", 0, 1)
	require.Equal(t, 20, standing(s, "Team1"))

	answer(s, "Team1-0", 0, 1) // late
	assert.Equal(t, 20, standing(s, "Team1"))
	assert.Equal(t, 1, s.Snapshot().QuestionIndex)
}

func TestSession_TeamConsensus(t *testing.T) {
	tests := map[string]struct {
		options []int // per player, -1 means no answer
		want    int
	}{
		"both correct":           {options: []int{1, 1}, want: 10},
		"one correct one wrong":  {options: []int{1, 0}, want: 5},
		"one correct one silent": {options: []int{1, -1}, want: 5},
		"both wrong":             {options: []int{2, 3}, want: 0},
		"nobody answers":         {options: []int{-1, -1}, want: 0},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			s, clock := makeSession(t, sessionOpts{teams: 1, players: 2, questions: 2})
			chans := enroll(t, s, 1, 2)

			// Question 0 is individual: answer it wrong to leave the score untouched.
			answer(s, "Team1-0", 0, 0)
			answer(s, "Team1-1", 0, 0)
			require.Len(t, chans["Team1-0"].questions(), 2)
			require.True(t, chans["Team1-0"].questions()[1].TeamQuestion)

			silent := false
			for i, opt := range tt.options {
				if opt < 0 {
					silent = true
					continue
				}
				answer(s, fmt.Sprintf("Team1-%d", i), 1, opt)
			}
			if silent {
				clock.Advance(timeLimit)
			}

			require.Eventually(t, func() bool {
				return len(chans["Team1-0"].all(domain.KindGameEnd)) == 1
			}, time.Second, 5*time.Millisecond)
			assert.Equal(t, tt.want, standing(s, "Team1"))
		})
	}
}

func TestSession_TeamScoredWhenRendezvousCompletes(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 2, players: 2, questions: 2})
	chans := enroll(t, s, 2, 2)

	for _, u := range []string{"Team1-0", "Team1-1", "Team2-0", "Team2-1"} {
		answer(s, u, 0, 0)
	}
	require.Equal(t, 1, s.Snapshot().QuestionIndex)

	answer(s, "Team1-0", 1, 1)
	answer(s, "Team1-1", 1, 1)

	require.Eventually(t, func() bool { return standing(s, "Team1") == 10 }, time.Second, 5*time.Millisecond)
	info := s.Snapshot()
	assert.Equal(t, 1, info.QuestionIndex)
	assert.Equal(t, domain.PhaseRunning, info.Phase)
	assert.Equal(t, 0, standing(s, "Team2"))
	assert.Len(t, chans["Team1-0"].scores(), 1, "round 1 still open")

	answer(s, "Team2-0", 1, 1)
	answer(s, "Team2-1", 1, 2)

	end := chans["Team2-0"].all(domain.KindGameEnd)
	require.Len(t, end, 1)
	assert.Equal(t, map[string]int{"Team1": 10, "Team2": 5}, end[0].(domain.GameEndMessage).FinalScores)
}

func TestSession_BarrierTimeoutScoresPresentAnswers(t *testing.T) {
	const barrier = 10 * time.Second

	s, clock := makeSession(t, sessionOpts{
		teams: 2, players: 2, questions: 2,
		settings: game.Settings{TimeLimit: timeLimit, BonusSlots: 2, BonusFactor: 2, BarrierTimeout: barrier},
	})
	chans := enroll(t, s, 2, 2)

	for _, u := range []string{"Team1-0", "Team1-1", "Team2-0", "Team2-1"} {
		answer(s, u, 0, 0)
	}
	require.Equal(t, 1, s.Snapshot().QuestionIndex)

	answer(s, "Team1-0", 1, 1)
	clock.Advance(barrier)

	require.Eventually(t, func() bool { return standing(s, "Team1") == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Snapshot().QuestionIndex)

	// Arrivals after the barrier expired do not rescore the team.
	answer(s, "Team1-1", 1, 1)
	assert.Equal(t, 5, standing(s, "Team1"))

	clock.Advance(timeLimit - barrier)
	require.Eventually(t, func() bool {
		return len(chans["Team1-0"].all(domain.KindGameEnd)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, standing(s, "Team1"))
	assert.Equal(t, 0, standing(s, "Team2"))
}

func TestSession_RoundsTheTimeLimitUp(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{
		teams: 1, players: 1, questions: 1,
		settings: game.Settings{TimeLimit: 1500 * time.Millisecond, BonusSlots: 1, BonusFactor: 2},
	})
	chans := enroll(t, s, 1, 1)

	qs := chans["Team1-0"].questions()
	require.Len(t, qs, 1)
	assert.Equal(t, 2, qs[0].TimeLimitSeconds)
}

func TestSession_AllAnsweredLeavesNothingForTheGate(t *testing.T) {
	suppressed := telemetry.ConclusionsSuppressed.WithLabelValues(string(domain.TriggerGate))
	before := testutil.ToFloat64(suppressed)

	s, _ := makeSession(t, sessionOpts{teams: 1, players: 2, questions: 1})
	chans := enroll(t, s, 1, 2)

	answer(s, "Team1-0", 0, 1)
	answer(s, "Team1-1", 0, 1)
	require.Len(t, chans["Team1-0"].all(domain.KindGameEnd), 1)

	assert.Never(t, func() bool {
		return testutil.ToFloat64(suppressed) > before
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSession_DeadlineConcludesRound(t *testing.T) {
	s, clock := makeSession(t, sessionOpts{teams: 2, players: 1, questions: 2})
	chans := enroll(t, s, 2, 1)
	ch := chans["Team1-0"]

	answer(s, "Team1-0", 0, 1)
	require.Empty(t, ch.scores())

	clock.Advance(timeLimit)
	require.Eventually(t, func() bool { return len(ch.questions()) == 2 }, time.Second, 5*time.Millisecond)

	sc := ch.scores()
	require.Len(t, sc, 1)
	assert.Equal(t, map[string]int{"Team1": 10, "Team2": 0}, sc[0].TeamScores)
	assert.Equal(t, 10, sc[0].RoundPoints)
	assert.Equal(t, 0, chans["Team2-0"].scores()[0].RoundPoints)

	clock.Advance(timeLimit)
	require.Eventually(t, func() bool { return len(ch.all(domain.KindGameEnd)) == 1 }, time.Second, 5*time.Millisecond)

	end := ch.all(domain.KindGameEnd)[0].(domain.GameEndMessage)
	assert.Equal(t, "Team1", end.WinningTeam)
	assert.Equal(t, domain.PhaseEnded, s.Snapshot().Phase)
}

func TestSession_TieGoesToFirstTeam(t *testing.T) {
	s, clock := makeSession(t, sessionOpts{teams: 3, players: 1, questions: 1})
	chans := enroll(t, s, 3, 1)

	clock.Advance(timeLimit)
	require.Eventually(t, func() bool {
		return len(chans["Team3-0"].all(domain.KindGameEnd)) == 1
	}, time.Second, 5*time.Millisecond)

	end := chans["Team3-0"].all(domain.KindGameEnd)[0].(domain.GameEndMessage)
	assert.Equal(t, "Team1", end.WinningTeam)
	assert.Equal(t, map[string]int{"Team1": 0, "Team2": 0, "Team3": 0}, end.FinalScores)
}

func TestSession_ConcludesEachRoundExactlyOnce(t *testing.T) {
	const players = 8

	for i := 0; i < 50; i++ {
		eb := event.NewBus()
		var mu sync.Mutex
		concluded := make(map[int]int)
		eb.Subscribe(domain.EventNameRoundConcluded, func(_ context.Context, e event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			concluded[e.(domain.EventRoundConcluded).QuestionIndex]++
			return nil
		})

		s, clock := makeSession(t, sessionOpts{teams: 2, players: players / 2, questions: 2, eb: eb})
		chans := enroll(t, s, 2, players/2)

		var wg sync.WaitGroup
		for username := range chans {
			username := username
			wg.Add(1)
			go func() {
				defer wg.Done()
				answer(s, username, 0, 1)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(timeLimit)
		}()
		wg.Wait()

		require.Eventually(t, func() bool {
			return s.Snapshot().QuestionIndex >= 1
		}, time.Second, time.Millisecond)

		// Let any straggling trigger for round 0 run before counting.
		clock.Advance(time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		eb.Stop()

		for username, ch := range chans {
			n := 0
			for _, sc := range ch.scores() {
				if sc.QuestionIndex == 0 {
					n++
				}
			}
			assert.Equal(t, 1, n, "score broadcasts of round 0 to %s", username)
		}
		mu.Lock()
		assert.Equal(t, 1, concluded[0])
		mu.Unlock()
	}
}

func TestSession_EndToEnd(t *testing.T) {
	eb := event.NewBus()
	ended := make(chan domain.EventGameEnded, 1)
	eb.Subscribe(domain.EventNameGameEnded, func(_ context.Context, e event.Event) error {
		ended <- e.(domain.EventGameEnded)
		return nil
	})

	s, _ := makeSession(t, sessionOpts{teams: 2, players: 2, questions: 3, eb: eb})
	chans := enroll(t, s, 2, 2)
	a, b, c, d := "Team1-0", "Team1-1", "Team2-0", "Team2-1"

	// Q0 individual, all correct in order.
	for _, u := range []string{a, b, c, d} {
		answer(s, u, 0, 1)
	}
	assert.Equal(t, 20, standing(s, "Team1"))
	assert.Equal(t, 10, standing(s, "Team2"))
	for u, want := range map[string]int{a: 10, b: 10, c: 5, d: 5} {
		assert.Equal(t, want, playerScore(s, u), u)
	}

	// Q1 team: Team1 both correct, Team2 split.
	answer(s, a, 1, 1)
	answer(s, c, 1, 1)
	answer(s, b, 1, 1)
	answer(s, d, 1, 3)
	assert.Equal(t, 30, standing(s, "Team1"))
	assert.Equal(t, 15, standing(s, "Team2"))

	// Q2 individual, everybody wrong.
	for _, u := range []string{d, c, b, a} {
		answer(s, u, 2, 0)
	}

	end := chans[c].all(domain.KindGameEnd)
	require.Len(t, end, 1)
	assert.Equal(t, domain.GameEndMessage{
		FinalScores: map[string]int{"Team1": 30, "Team2": 15},
		WinningTeam: "Team1",
	}, end[0])

	for u, ch := range chans {
		sc := ch.scores()
		require.Len(t, sc, 3, u)
		for i, m := range sc {
			assert.Equal(t, i, m.QuestionIndex)
		}
		qs := ch.questions()
		require.Len(t, qs, 3, u)
		assert.Equal(t, []bool{false, true, false}, []bool{qs[0].TeamQuestion, qs[1].TeamQuestion, qs[2].TeamQuestion})
	}
	assert.Equal(t, 10, chans[c].scores()[0].RoundPoints)
	assert.Equal(t, 5, chans[d].scores()[1].RoundPoints)

	// Team rounds credit the team only.
	for u, want := range map[string]int{a: 10, b: 10, c: 5, d: 5} {
		assert.Equal(t, want, playerScore(s, u), u)
	}

	select {
	case e := <-ended:
		assert.Equal(t, "Team1", e.WinningTeam)
		assert.Equal(t, []domain.TeamStanding{{TeamID: "Team1", Score: 30}, {TeamID: "Team2", Score: 15}}, e.Standings)
	case <-time.After(time.Second):
		t.Fatal("game ended event not published")
	}
	eb.Stop()
}

func TestSession_FailingChannelIsDisconnected(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 1, players: 2, questions: 1})

	require.NoError(t, s.AddPlayer(context.Background(),
		domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "Team1-0"}, failingChannel{}))
	assert.Equal(t, 0, s.Snapshot().ConnectedPlayers)

	ch := &recorder{}
	require.NoError(t, s.AddPlayer(context.Background(),
		domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "Team1-1"}, ch))
	assert.Equal(t, 1, s.Snapshot().ConnectedPlayers)

	// The disconnected player still counts towards the roster.
	answer(s, "Team1-0", 0, 1)
	answer(s, "Team1-1", 0, 1)
	assert.Equal(t, 20, standing(s, "Team1"))
	assert.Len(t, ch.all(domain.KindGameEnd), 1)
}

func TestSession_DisconnectKeepsNewerChannel(t *testing.T) {
	s, _ := makeSession(t, sessionOpts{teams: 1, players: 2, questions: 1})
	old := &recorder{}
	require.NoError(t, s.AddPlayer(context.Background(),
		domain.Enrollment{SessionID: "s1", TeamID: "Team1", Username: "a"}, old))

	s.Disconnect("a", &recorder{})
	assert.Equal(t, 1, s.Snapshot().ConnectedPlayers)

	s.Disconnect("a", old)
	assert.Equal(t, 0, s.Snapshot().ConnectedPlayers)
}
