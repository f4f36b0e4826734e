package domain

// Inbound is an event received from a participant. The set of implementations is closed:
// Enrollment and Answer.
type Inbound interface {
	inbound()
}

// Enrollment asks to join a team of a session.
type Enrollment struct {
	SessionID string
	TeamID    string
	Username  string
}

// Answer is a participant's selected option for a question.
type Answer struct {
	SessionID     string
	TeamID        string
	Username      string
	QuestionIndex int
	Option        int
}

func (Enrollment) inbound() {}
func (Answer) inbound()     {}

const (
	KindQuestion = "question"
	KindScore    = "score"
	KindGameEnd  = "game_end"
	KindStatus   = "status"
)

// Message is an outbound message delivered to participants.
type Message interface {
	Kind() string
}

type QuestionMessage struct {
	QuestionIndex    int
	Prompt           string
	Options          []string
	TimeLimitSeconds int
	TeamQuestion     bool
}

// ScoreMessage carries the standings after a round. RoundPoints is what the
// recipient's own team earned in that round.
type ScoreMessage struct {
	QuestionIndex int
	TeamScores    map[string]int
	RoundPoints   int
}

type GameEndMessage struct {
	FinalScores map[string]int
	WinningTeam string
}

// StatusMessage reports the outcome of a request. Success is only used to acknowledge an
// enrollment; anything else is a user-facing error.
type StatusMessage struct {
	Success bool
	Message string
}

func (QuestionMessage) Kind() string { return KindQuestion }
func (ScoreMessage) Kind() string    { return KindScore }
func (GameEndMessage) Kind() string  { return KindGameEnd }
func (StatusMessage) Kind() string   { return KindStatus }
