package domain

import (
	"fmt"
	"time"
)

// Phase is the lifecycle state of a quiz session.
type Phase int

const (
	PhaseFilling Phase = iota
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseFilling:
		return "filling"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Question is a single-choice question. It is immutable once loaded.
type Question struct {
	Prompt  string
	Options []string
	// Correct is the index of the correct option.
	Correct int
	Points  int
}

func (q Question) IsCorrect(option int) bool {
	return option == q.Correct
}

// TeamQuestion reports whether the question at index is answered as a team.
// Even indexes are individual rounds, odd indexes are team rounds.
func TeamQuestion(index int) bool {
	return index%2 == 1
}

// Player is an enrolled participant. Score is only mutated by the session coordinator
// while it holds the session lock.
type Player struct {
	Username string
	TeamID   string
	Score    int
}

// Team is a fixed-capacity group of players sharing a cumulative score.
type Team struct {
	TeamID   string
	Capacity int
	Players  []*Player
	Score    int
}

func (t *Team) Full() bool {
	return len(t.Players) >= t.Capacity
}

func (t *Team) Player(username string) *Player {
	for _, p := range t.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// TeamStanding is a team's cumulative score at a point in time.
type TeamStanding struct {
	TeamID string
	Score  int
}

// PlayerStanding is a player's cumulative score from individual rounds.
type PlayerStanding struct {
	TeamID   string
	Username string
	Score    int
}

// SessionInfo is a read-only summary of a session.
type SessionInfo struct {
	SessionID        string
	Phase            Phase
	TeamCount        int
	PlayersPerTeam   int
	QuestionCount    int
	QuestionIndex    int
	ConnectedPlayers int
	Standings        []TeamStanding
	Players          []PlayerStanding
}

// Leaderboard is the list of teams and their scores within a session,
// sorted by score in descending order.
type Leaderboard struct {
	SessionID string
	Entries   []LeaderboardEntry
}

type LeaderboardEntry struct {
	TeamID string
	Score  float64
}

// GameResult is the archived outcome of a finished session.
type GameResult struct {
	SessionID   string
	WinningTeam string
	Standings   []TeamStanding
	EndedAt     time.Time
}
