package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/squadquiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		TeamID string  `json:"team_id"`
		Score  float64 `json:"score"`
	}

	GameEnded struct {
		SessionID   string         `json:"session_id"`
		WinningTeam string         `json:"winning_team"`
		FinalScores map[string]int `json:"final_scores"`
	}
)

// PublishLeaderboardUpdated pushes the leaderboard to the session channel and to every team's channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			TeamID: entry.TeamID,
			Score:  entry.Score,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.sessionChannel(l.SessionID), e.Name(), data)
	})
	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, a.teamChannel(l.SessionID, entry.TeamID), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) PublishGameEnded(ctx context.Context, e domain.EventGameEnded) error {
	data := GameEnded{
		SessionID:   e.SessionID,
		WinningTeam: e.WinningTeam,
		FinalScores: make(map[string]int, len(e.Standings)),
	}
	for _, st := range e.Standings {
		data.FinalScores[st.TeamID] = st.Score
	}

	return a.publishNotification(ctx, a.sessionChannel(e.SessionID), e.Name(), data)
}

func (a *API) sessionChannel(session string) string {
	return fmt.Sprintf("%s:session:%s", a.prefix, session)
}

func (a *API) teamChannel(session, team string) string {
	return fmt.Sprintf("%s:session:%s:team:%s", a.prefix, session, team)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
