// Package game runs quiz sessions: enrollment, the round lifecycle and scoring.
//
// All mutations of a session happen under its lock. Outbound messages and events are queued
// while the lock is held and delivered, in order, after it is released.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/squadquiz/internal/coordination"
	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/scoring"
	"github.com/victornm/squadquiz/internal/telemetry"
)

// Channel delivers outbound messages to one participant. Send must not block for long:
// it is called for every participant of a session in turn.
type Channel interface {
	Send(ctx context.Context, m domain.Message) error
}

type Settings struct {
	// TimeLimit is how long a round stays open.
	TimeLimit time.Duration
	// BonusSlots is how many early answers of an individual round get the bonus multiplier.
	BonusSlots  int
	BonusFactor int
	// BarrierTimeout bounds how long a team waits for all of its members in a team round.
	BarrierTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TimeLimit:      30 * time.Second,
		BonusSlots:     2,
		BonusFactor:    2,
		BarrierTimeout: 30 * time.Second,
	}
}

type Config struct {
	SessionID      string
	TeamCount      int
	PlayersPerTeam int
	Questions      []domain.Question
	Settings       Settings
	Clock          clockwork.Clock
	EventBus       *event.Bus
	// OnEnded is called once when the game ends, with the session lock held.
	// It must not call back into the session.
	OnEnded func(sessionID string)
}

type outgoing struct {
	to       Channel
	username string
	msg      domain.Message
	event    event.Event
}

type Session struct {
	id        string
	capacity  int
	questions []domain.Question
	settings  Settings
	clock     clockwork.Clock
	eb        *event.Bus
	onEnded   func(string)

	// sendMu keeps deliveries in the order they were queued.
	sendMu sync.Mutex

	mu        sync.Mutex
	phase     domain.Phase
	teams     map[string]*domain.Team
	teamOrder []string
	channels  map[string]Channel
	index     int
	round     *Round
	gate      *coordination.BonusGate
	huddles   map[string]*coordination.TeamRendezvous
	timer     clockwork.Timer
	outbox    []outgoing
}

func NewSession(c Config) (*Session, error) {
	if c.TeamCount < 1 || c.PlayersPerTeam < 1 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("team count and players per team must be at least 1"))
	}
	if len(c.Questions) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("session needs at least one question"))
	}

	st := c.Settings
	if st.TimeLimit <= 0 {
		st.TimeLimit = DefaultSettings().TimeLimit
	}
	if st.BonusSlots < 0 {
		st.BonusSlots = 0
	}
	if st.BonusFactor < 1 {
		st.BonusFactor = 1
	}
	if st.BarrierTimeout <= 0 {
		st.BarrierTimeout = st.TimeLimit
	}

	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Session{
		id:        c.SessionID,
		capacity:  c.PlayersPerTeam,
		questions: c.Questions,
		settings:  st,
		clock:     clock,
		eb:        c.EventBus,
		onEnded:   c.OnEnded,
		phase:     domain.PhaseFilling,
		teams:     make(map[string]*domain.Team, c.TeamCount),
		channels:  make(map[string]Channel),
		huddles:   make(map[string]*coordination.TeamRendezvous, c.TeamCount),
	}

	for i := 1; i <= c.TeamCount; i++ {
		id := fmt.Sprintf("Team%d", i)
		s.teamOrder = append(s.teamOrder, id)
		s.teams[id] = &domain.Team{TeamID: id, Capacity: c.PlayersPerTeam}
	}

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// AddPlayer enrolls a participant into a team and registers ch as its outbound channel.
// The reply, success or rejection, is delivered on ch. When the last team slot is taken the
// first round starts.
func (s *Session) AddPlayer(ctx context.Context, e domain.Enrollment, ch Channel) error {
	s.mu.Lock()
	err := s.enrollLocked(ctx, e, ch)
	if err != nil {
		s.enqueue(ch, e.Username, domain.StatusMessage{Success: false, Message: errors.Convert(err).Message})
	}
	s.mu.Unlock()

	result := "ok"
	if err != nil {
		result = codeName(err)
	}
	telemetry.Enrollments.WithLabelValues(result).Inc()

	s.flush(ctx)
	return err
}

func (s *Session) enrollLocked(ctx context.Context, e domain.Enrollment, ch Channel) error {
	if e.Username == "" {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("username is required"))
	}
	if s.phase != domain.PhaseFilling {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session %s is %s and no longer accepts players", s.id, s.phase))
	}

	team, ok := s.teams[e.TeamID]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("team %q not found", e.TeamID))
	}
	if team.Full() {
		return errors.New(errors.CodeResourceExhausted, errors.WithMessagef("team %s is full", team.TeamID))
	}
	for _, t := range s.teams {
		if t.Player(e.Username) != nil {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("username %q is already taken", e.Username))
		}
	}

	team.Players = append(team.Players, &domain.Player{Username: e.Username, TeamID: team.TeamID})
	s.channels[e.Username] = ch

	s.enqueue(ch, e.Username, domain.StatusMessage{
		Success: true,
		Message: fmt.Sprintf("SUCCESS: joined %s in session %s", team.TeamID, s.id),
	})
	s.publish(domain.EventPlayerEnrolled{SessionID: s.id, TeamID: team.TeamID, Username: e.Username})

	slog.InfoContext(ctx, "game: player enrolled",
		"session_id", s.id,
		"team_id", team.TeamID,
		"username", e.Username,
	)

	if s.allFullLocked() {
		s.startLocked(ctx)
	}

	return nil
}

func (s *Session) allFullLocked() bool {
	for _, t := range s.teams {
		if !t.Full() {
			return false
		}
	}
	return true
}

func (s *Session) startLocked(ctx context.Context) {
	s.phase = domain.PhaseRunning
	s.index = 0
	s.gate = coordination.NewBonusGate(s.requiredLocked(), s.settings.BonusSlots, s.settings.BonusFactor)
	for _, id := range s.teamOrder {
		s.huddles[id] = coordination.NewTeamRendezvous(s.capacity, s.settings.BarrierTimeout, s.clock)
	}

	telemetry.Games.WithLabelValues("started").Inc()
	slog.InfoContext(ctx, "game: started",
		"session_id", s.id,
		"teams", len(s.teams),
		"questions", len(s.questions),
	)

	s.startRoundLocked(ctx)
}

func (s *Session) startRoundLocked(ctx context.Context) {
	r := newRound(ctx, s.index, s.questions[s.index])
	s.round = r

	if r.Team {
		for _, id := range s.teamOrder {
			s.huddles[id].Reset()
		}
	} else {
		s.gate.Reset(s.requiredLocked())
		go s.watchGate(r)
	}

	q := domain.QuestionMessage{
		QuestionIndex:    r.Index,
		Prompt:           r.Question.Prompt,
		Options:          r.Question.Options,
		TimeLimitSeconds: int((s.settings.TimeLimit + time.Second - 1) / time.Second),
		TeamQuestion:     r.Team,
	}
	for username, ch := range s.channels {
		s.enqueue(ch, username, q)
	}

	s.timer = s.clock.AfterFunc(s.settings.TimeLimit, func() {
		s.conclude(context.Background(), r, domain.TriggerDeadline)
	})

	slog.DebugContext(ctx, "game: round started",
		"session_id", s.id,
		"question_index", r.Index,
		"team_question", r.Team,
	)
}

// watchGate concludes r when the bonus gate fills, unless the last arrival already did.
func (s *Session) watchGate(r *Round) {
	if !s.gate.Await(r.ctx) {
		return
	}

	s.mu.Lock()
	ended := r.ended
	s.mu.Unlock()
	if ended {
		return
	}
	s.conclude(r.ctx, r, domain.TriggerGate)
}

// SubmitAnswer records a participant's answer. Answers for another round, from unknown
// players or repeated by the same player are dropped.
func (s *Session) SubmitAnswer(ctx context.Context, a domain.Answer) {
	s.mu.Lock()
	s.answerLocked(ctx, a)
	s.mu.Unlock()

	s.flush(ctx)
}

func (s *Session) answerLocked(ctx context.Context, a domain.Answer) {
	if s.phase != domain.PhaseRunning {
		s.drop(ctx, a, telemetry.AnswerNotRunning)
		return
	}

	r := s.round
	if r == nil {
		slog.ErrorContext(ctx, "game: running session has no round",
			"session_id", s.id,
			"question_index", s.index,
		)
		return
	}

	switch {
	case a.QuestionIndex > r.Index:
		slog.WarnContext(ctx, "game: answer for unknown round",
			"session_id", s.id,
			"username", a.Username,
			"question_index", a.QuestionIndex,
			"current_index", r.Index,
		)
		telemetry.Answers.WithLabelValues(telemetry.AnswerUnknownRound).Inc()
		return
	case a.QuestionIndex < r.Index || r.ended:
		s.drop(ctx, a, telemetry.AnswerLate)
		return
	}

	team := s.teams[a.TeamID]
	if team == nil {
		s.drop(ctx, a, telemetry.AnswerUnknownPlayer)
		return
	}
	player := team.Player(a.Username)
	if player == nil {
		s.drop(ctx, a, telemetry.AnswerUnknownPlayer)
		return
	}

	if !r.record(playerKey{team: team.TeamID, username: player.Username}, a.Option) {
		s.drop(ctx, a, telemetry.AnswerDuplicate)
		return
	}
	telemetry.Answers.WithLabelValues(telemetry.AnswerAccepted).Inc()

	if r.Team {
		t := s.huddles[team.TeamID].Join()
		if t.Position == 1 {
			go s.huddle(r, team.TeamID, t)
		}
	} else {
		mult := s.gate.Arrive()
		pts := scoring.Individual(r.Question.Points, r.Question.IsCorrect(a.Option), mult)
		player.Score += pts
		team.Score += pts
		r.points[team.TeamID] += pts

		slog.DebugContext(ctx, "game: individual answer scored",
			"session_id", s.id,
			"username", player.Username,
			"multiplier", mult,
			"points", pts,
		)
	}

	if r.answered() >= s.requiredLocked() {
		s.concludeLocked(ctx, r, domain.TriggerAllAnswered)
	}
}

func (s *Session) drop(ctx context.Context, a domain.Answer, outcome string) {
	telemetry.Answers.WithLabelValues(outcome).Inc()
	slog.DebugContext(ctx, "game: answer dropped",
		"session_id", s.id,
		"username", a.Username,
		"question_index", a.QuestionIndex,
		"reason", outcome,
	)
}

// huddle waits for the first member's rendezvous and scores the team once it resolves.
// A timed out rendezvous scores the answers present at that moment.
func (s *Session) huddle(r *Round, teamID string, t coordination.Ticket) {
	pos := t.Wait(r.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ended {
		return
	}

	slog.DebugContext(r.ctx, "game: team rendezvous resolved",
		"session_id", s.id,
		"team_id", teamID,
		"complete", pos != coordination.Broken,
	)
	s.scoreTeamLocked(r, teamID)
}

func (s *Session) scoreTeamLocked(r *Round, teamID string) {
	if r.scored[teamID] {
		return
	}
	r.scored[teamID] = true

	team := s.teams[teamID]
	verdicts := make([]scoring.Verdict, 0, len(team.Players))
	for _, p := range team.Players {
		option, ok := r.answer(playerKey{team: teamID, username: p.Username})
		verdicts = append(verdicts, scoring.Judge(ok, option, r.Question.Correct))
	}

	pts := scoring.Team(r.Question.Points, verdicts)
	team.Score += pts
	r.points[teamID] = pts
}

func (s *Session) conclude(ctx context.Context, r *Round, trigger domain.Trigger) {
	s.mu.Lock()
	s.concludeLocked(ctx, r, trigger)
	s.mu.Unlock()

	s.flush(ctx)
}

// concludeLocked ends r exactly once, however many triggers race for it.
func (s *Session) concludeLocked(ctx context.Context, r *Round, trigger domain.Trigger) {
	if !r.end() {
		telemetry.ConclusionsSuppressed.WithLabelValues(string(trigger)).Inc()
		return
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if r.Team {
		for _, id := range s.teamOrder {
			s.scoreTeamLocked(r, id)
		}
		for _, h := range s.huddles {
			h.Break()
		}
	}

	scores := s.scoresLocked()
	for username, ch := range s.channels {
		s.enqueue(ch, username, domain.ScoreMessage{
			QuestionIndex: r.Index,
			TeamScores:    scores,
			RoundPoints:   r.points[s.teamOfLocked(username)],
		})
	}

	points := make(map[string]int, len(s.teamOrder))
	for _, id := range s.teamOrder {
		points[id] = r.points[id]
	}
	s.publish(domain.EventRoundConcluded{
		SessionID:     s.id,
		QuestionIndex: r.Index,
		TeamQuestion:  r.Team,
		Trigger:       trigger,
		RoundPoints:   points,
		Standings:     s.standingsLocked(),
		ConcludedAt:   s.clock.Now(),
	})

	telemetry.RoundsConcluded.WithLabelValues(string(trigger)).Inc()
	slog.InfoContext(ctx, "game: round concluded",
		"session_id", s.id,
		"question_index", r.Index,
		"trigger", trigger,
	)

	s.index++
	if s.index < len(s.questions) {
		s.startRoundLocked(ctx)
		return
	}
	s.endLocked(ctx)
}

func (s *Session) endLocked(ctx context.Context) {
	s.phase = domain.PhaseEnded
	for _, h := range s.huddles {
		h.Break()
	}

	winner, best := "", -1
	for _, id := range s.teamOrder {
		if sc := s.teams[id].Score; sc > best {
			winner, best = id, sc
		}
	}

	final := s.scoresLocked()
	for username, ch := range s.channels {
		s.enqueue(ch, username, domain.GameEndMessage{FinalScores: final, WinningTeam: winner})
	}
	s.publish(domain.EventGameEnded{
		SessionID:   s.id,
		Standings:   s.standingsLocked(),
		WinningTeam: winner,
		EndedAt:     s.clock.Now(),
	})

	telemetry.Games.WithLabelValues("ended").Inc()
	slog.InfoContext(ctx, "game: ended",
		"session_id", s.id,
		"winning_team", winner,
		"score", best,
	)

	if s.onEnded != nil {
		s.onEnded(s.id)
	}
}

// Disconnect unregisters ch as username's outbound channel. The player stays on its team and
// may still be counted for scoring; it just stops receiving messages.
func (s *Session) Disconnect(username string, ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.channels[username]; ok && cur == ch {
		delete(s.channels, username)
	}
}

// Snapshot returns a consistent summary of the session.
func (s *Session) Snapshot() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.SessionInfo{
		SessionID:        s.id,
		Phase:            s.phase,
		TeamCount:        len(s.teamOrder),
		PlayersPerTeam:   s.capacity,
		QuestionCount:    len(s.questions),
		QuestionIndex:    s.index,
		ConnectedPlayers: len(s.channels),
		Standings:        s.standingsLocked(),
		Players:          s.playersLocked(),
	}
}

func (s *Session) playersLocked() []domain.PlayerStanding {
	var out []domain.PlayerStanding
	for _, id := range s.teamOrder {
		for _, p := range s.teams[id].Players {
			out = append(out, domain.PlayerStanding{TeamID: id, Username: p.Username, Score: p.Score})
		}
	}
	return out
}

func (s *Session) requiredLocked() int {
	n := 0
	for _, t := range s.teams {
		n += len(t.Players)
	}
	return n
}

func (s *Session) teamOfLocked(username string) string {
	for _, t := range s.teams {
		if t.Player(username) != nil {
			return t.TeamID
		}
	}
	return ""
}

func (s *Session) scoresLocked() map[string]int {
	scores := make(map[string]int, len(s.teams))
	for id, t := range s.teams {
		scores[id] = t.Score
	}
	return scores
}

func (s *Session) standingsLocked() []domain.TeamStanding {
	out := make([]domain.TeamStanding, 0, len(s.teamOrder))
	for _, id := range s.teamOrder {
		out = append(out, domain.TeamStanding{TeamID: id, Score: s.teams[id].Score})
	}
	return out
}

func (s *Session) enqueue(ch Channel, username string, m domain.Message) {
	if ch == nil {
		return
	}
	s.outbox = append(s.outbox, outgoing{to: ch, username: username, msg: m})
}

func (s *Session) publish(e event.Event) {
	s.outbox = append(s.outbox, outgoing{event: e})
}

// flush delivers everything queued so far. A channel that fails a send is unregistered.
func (s *Session) flush(ctx context.Context) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	out := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for _, o := range out {
		if o.event != nil {
			if s.eb != nil {
				s.eb.Publish(ctx, o.event)
			}
			continue
		}

		if err := o.to.Send(ctx, o.msg); err != nil {
			slog.WarnContext(ctx, "game: deliver message failed",
				"session_id", s.id,
				"username", o.username,
				"kind", o.msg.Kind(),
				"error", err,
			)
			s.Disconnect(o.username, o.to)
		}
	}
}

func codeName(err error) string {
	return errors.Convert(err).Code.String()
}
