package api

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/squadquiz/internal/archive"
	"github.com/victornm/squadquiz/internal/domain"
)

type (
	CreateSessionRequest struct {
		TeamCount      int
		PlayersPerTeam int
		QuestionCount  int
	}

	Session struct {
		SessionID        string
		Phase            string
		TeamCount        int
		PlayersPerTeam   int
		QuestionCount    int
		QuestionIndex    int
		ConnectedPlayers int
		Standings        []Standing
	}

	Standing struct {
		TeamID string
		Score  int
	}

	Result struct {
		SessionID   string
		WinningTeam string
		Standings   []Standing
		EndedAt     time.Time
		Rounds      []Round
	}

	// Round is one team's outcome in one archived round.
	Round struct {
		QuestionIndex int
		TeamID        string
		TeamQuestion  bool
		Trigger       string
		RoundPoints   int
		TotalScore    int
	}
)

func sessionRequest(sessionID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id": structpb.NewStringValue(sessionID),
	}}
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func intField(s *structpb.Struct, name string) int {
	return int(s.GetFields()[name].GetNumberValue())
}

func standingsValue(standings []domain.TeamStanding) *structpb.Value {
	values := make([]*structpb.Value, 0, len(standings))
	for _, st := range standings {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"team_id": structpb.NewStringValue(st.TeamID),
			"score":   structpb.NewNumberValue(float64(st.Score)),
		}}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func standingsFromValue(v *structpb.Value) []Standing {
	var out []Standing
	for _, item := range v.GetListValue().GetValues() {
		s := item.GetStructValue()
		out = append(out, Standing{TeamID: stringField(s, "team_id"), Score: intField(s, "score")})
	}
	return out
}

func sessionToStruct(info domain.SessionInfo) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id":        structpb.NewStringValue(info.SessionID),
		"phase":             structpb.NewStringValue(info.Phase.String()),
		"team_count":        structpb.NewNumberValue(float64(info.TeamCount)),
		"players_per_team":  structpb.NewNumberValue(float64(info.PlayersPerTeam)),
		"question_count":    structpb.NewNumberValue(float64(info.QuestionCount)),
		"question_index":    structpb.NewNumberValue(float64(info.QuestionIndex)),
		"connected_players": structpb.NewNumberValue(float64(info.ConnectedPlayers)),
		"standings":         standingsValue(info.Standings),
	}}
}

func sessionFromStruct(s *structpb.Struct) *Session {
	return &Session{
		SessionID:        stringField(s, "session_id"),
		Phase:            stringField(s, "phase"),
		TeamCount:        intField(s, "team_count"),
		PlayersPerTeam:   intField(s, "players_per_team"),
		QuestionCount:    intField(s, "question_count"),
		QuestionIndex:    intField(s, "question_index"),
		ConnectedPlayers: intField(s, "connected_players"),
		Standings:        standingsFromValue(s.GetFields()["standings"]),
	}
}

func leaderboardToStruct(l *domain.Leaderboard) *structpb.Struct {
	entries := make([]*structpb.Value, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"team_id": structpb.NewStringValue(e.TeamID),
			"score":   structpb.NewNumberValue(e.Score),
		}}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id": structpb.NewStringValue(l.SessionID),
		"entries":    structpb.NewListValue(&structpb.ListValue{Values: entries}),
	}}
}

func leaderboardFromStruct(s *structpb.Struct) *Leaderboard {
	l := &Leaderboard{SessionID: stringField(s, "session_id")}
	for _, v := range s.GetFields()["entries"].GetListValue().GetValues() {
		e := v.GetStructValue()
		l.Entries = append(l.Entries, LeaderboardEntry{
			TeamID: stringField(e, "team_id"),
			Score:  e.GetFields()["score"].GetNumberValue(),
		})
	}
	return l
}

func resultToStruct(r *domain.GameResult, rounds []archive.RoundResult) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(rounds))
	for _, rr := range rounds {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"question_index": structpb.NewNumberValue(float64(rr.QuestionIndex)),
			"team_id":        structpb.NewStringValue(rr.TeamID),
			"team_question":  structpb.NewBoolValue(rr.TeamQuestion),
			"trigger":        structpb.NewStringValue(string(rr.Trigger)),
			"round_points":   structpb.NewNumberValue(float64(rr.RoundPoints)),
			"total_score":    structpb.NewNumberValue(float64(rr.TotalScore)),
		}}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id":   structpb.NewStringValue(r.SessionID),
		"winning_team": structpb.NewStringValue(r.WinningTeam),
		"standings":    standingsValue(r.Standings),
		"ended_at":     structpb.NewStringValue(r.EndedAt.UTC().Format(time.RFC3339Nano)),
		"rounds":       structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func resultFromStruct(s *structpb.Struct) *Result {
	endedAt, _ := time.Parse(time.RFC3339Nano, stringField(s, "ended_at"))

	res := &Result{
		SessionID:   stringField(s, "session_id"),
		WinningTeam: stringField(s, "winning_team"),
		Standings:   standingsFromValue(s.GetFields()["standings"]),
		EndedAt:     endedAt,
	}

	for _, v := range s.GetFields()["rounds"].GetListValue().GetValues() {
		r := v.GetStructValue()
		res.Rounds = append(res.Rounds, Round{
			QuestionIndex: intField(r, "question_index"),
			TeamID:        stringField(r, "team_id"),
			TeamQuestion:  r.GetFields()["team_question"].GetBoolValue(),
			Trigger:       stringField(r, "trigger"),
			RoundPoints:   intField(r, "round_points"),
			TotalScore:    intField(r, "total_score"),
		})
	}

	return res
}
