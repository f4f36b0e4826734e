package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
)

type sessionView struct {
	SessionID        string         `json:"session_id"`
	Phase            string         `json:"phase"`
	TeamCount        int            `json:"team_count"`
	PlayersPerTeam   int            `json:"players_per_team"`
	QuestionCount    int            `json:"question_count"`
	QuestionIndex    int            `json:"question_index"`
	ConnectedPlayers int            `json:"connected_players"`
	Standings        []standingView `json:"standings"`
	Players          []playerView   `json:"players"`
}

type playerView struct {
	TeamID   string `json:"team_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type standingView struct {
	TeamID string `json:"team_id"`
	Score  int    `json:"score"`
}

// RegisterHTTP mounts the read-only session views used by lobby pages and spectators.
func (a *API) RegisterHTTP(r gin.IRouter) {
	r.GET("/sessions", a.listSessionsHTTP)
	r.GET("/sessions/:id", a.getSessionHTTP)
}

func (a *API) listSessionsHTTP(c *gin.Context) {
	infos := a.reg.List()

	out := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSessionView(info))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (a *API) getSessionHTTP(c *gin.Context) {
	s, err := a.reg.Get(c.Param("id"))
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), e)
		return
	}

	c.JSON(http.StatusOK, toSessionView(s.Snapshot()))
}

func toSessionView(info domain.SessionInfo) sessionView {
	standings := make([]standingView, 0, len(info.Standings))
	for _, st := range info.Standings {
		standings = append(standings, standingView{TeamID: st.TeamID, Score: st.Score})
	}
	players := make([]playerView, 0, len(info.Players))
	for _, p := range info.Players {
		players = append(players, playerView{TeamID: p.TeamID, Username: p.Username, Score: p.Score})
	}

	return sessionView{
		SessionID:        info.SessionID,
		Phase:            info.Phase.String(),
		TeamCount:        info.TeamCount,
		PlayersPerTeam:   info.PlayersPerTeam,
		QuestionCount:    info.QuestionCount,
		QuestionIndex:    info.QuestionIndex,
		ConnectedPlayers: info.ConnectedPlayers,
		Standings:        standings,
		Players:          players,
	}
}
