package domain

import "time"

const (
	EventNameSessionCreated     = "session.created"
	EventNamePlayerEnrolled     = "player.enrolled"
	EventNameRoundConcluded     = "round.concluded"
	EventNameGameEnded          = "game.ended"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// Trigger names what concluded a round.
type Trigger string

const (
	TriggerDeadline    Trigger = "deadline"
	TriggerAllAnswered Trigger = "all_answered"
	TriggerGate        Trigger = "gate"
)

type EventSessionCreated struct {
	Session   SessionInfo
	CreatedAt time.Time
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventPlayerEnrolled struct {
	SessionID string
	TeamID    string
	Username  string
}

func (EventPlayerEnrolled) Name() string { return EventNamePlayerEnrolled }

type EventRoundConcluded struct {
	SessionID     string
	QuestionIndex int
	TeamQuestion  bool
	Trigger       Trigger
	// RoundPoints holds the points each team earned in this round.
	RoundPoints map[string]int
	Standings   []TeamStanding
	ConcludedAt time.Time
}

func (EventRoundConcluded) Name() string { return EventNameRoundConcluded }

type EventGameEnded struct {
	SessionID   string
	Standings   []TeamStanding
	WinningTeam string
	EndedAt     time.Time
}

func (EventGameEnded) Name() string { return EventNameGameEnded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
