package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/victornm/squadquiz/internal/domain"
)

// Inbound message types.
const (
	TypeEnroll = "enroll"
	TypeAnswer = "answer"
)

// envelope is the frame of every websocket message in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type enrollData struct {
	SessionID string `json:"session_id"`
	TeamID    string `json:"team_id"`
	Username  string `json:"username"`
}

type answerData struct {
	SessionID     string `json:"session_id"`
	TeamID        string `json:"team_id"`
	Username      string `json:"username"`
	QuestionIndex int    `json:"question_index"`
	Option        int    `json:"option"`
}

type questionData struct {
	QuestionIndex    int      `json:"question_index"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	TeamQuestion     bool     `json:"team_question"`
}

type scoreData struct {
	QuestionIndex int            `json:"question_index"`
	TeamScores    map[string]int `json:"team_scores"`
	RoundPoints   int            `json:"round_points"`
}

type gameEndData struct {
	FinalScores map[string]int `json:"final_scores"`
	WinningTeam string         `json:"winning_team"`
}

type statusData struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func decode(b []byte) (domain.Inbound, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeEnroll:
		var d enrollData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode enroll: %w", err)
		}
		return domain.Enrollment{SessionID: d.SessionID, TeamID: d.TeamID, Username: d.Username}, nil
	case TypeAnswer:
		var d answerData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		return domain.Answer{
			SessionID:     d.SessionID,
			TeamID:        d.TeamID,
			Username:      d.Username,
			QuestionIndex: d.QuestionIndex,
			Option:        d.Option,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func encode(m domain.Message) ([]byte, error) {
	var data any
	switch m := m.(type) {
	case domain.QuestionMessage:
		data = questionData{
			QuestionIndex:    m.QuestionIndex,
			Prompt:           m.Prompt,
			Options:          m.Options,
			TimeLimitSeconds: m.TimeLimitSeconds,
			TeamQuestion:     m.TeamQuestion,
		}
	case domain.ScoreMessage:
		data = scoreData{QuestionIndex: m.QuestionIndex, TeamScores: m.TeamScores, RoundPoints: m.RoundPoints}
	case domain.GameEndMessage:
		data = gameEndData{FinalScores: m.FinalScores, WinningTeam: m.WinningTeam}
	case domain.StatusMessage:
		data = statusData{Success: m.Success, Message: m.Message}
	default:
		return nil, fmt.Errorf("unsupported message kind %q", m.Kind())
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{Type: m.Kind(), Data: raw})
}
