package api

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/squadquiz/internal/archive"
	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
	"github.com/victornm/squadquiz/internal/game"
	"github.com/victornm/squadquiz/internal/leaderboard"
)

type Config struct {
	GRPC     *grpc.Server
	EventBus *event.Bus
	Registry *game.Registry
	// Leaderboard and Archive are optional; they are nil when redis or postgres is disabled.
	Leaderboard *leaderboard.Service
	Archive     *archive.Service
	// Redis enables the spectator feed when set.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	reg *game.Registry
	ls  *leaderboard.Service
	as  *archive.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		reg:    c.Registry,
		ls:     c.Leaderboard,
		as:     c.Archive,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// gRPC APIs
	RegisterOperatorServer(c.GRPC, a)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
			return a.PublishGameEnded(ctx, e.(domain.EventGameEnded))
		})
	}

	return a
}

func (a *API) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s, err := a.reg.Create(ctx, game.CreateRequest{
		TeamCount:      intField(req, "team_count"),
		PlayersPerTeam: intField(req, "players_per_team"),
		QuestionCount:  intField(req, "question_count"),
	})
	if err != nil {
		return nil, err
	}

	return sessionToStruct(s.Snapshot()), nil
}

func (a *API) ListSessions(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	infos := a.reg.List()

	values := make([]*structpb.Value, 0, len(infos))
	for _, info := range infos {
		values = append(values, structpb.NewStructValue(sessionToStruct(info)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"sessions": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}, nil
}

func (a *API) GetSession(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s, err := a.reg.Get(stringField(req, "session_id"))
	if err != nil {
		return nil, err
	}

	return sessionToStruct(s.Snapshot()), nil
}

// GetLeaderboard reads the redis leaderboard when available and falls back to the live
// standings of an active session.
func (a *API) GetLeaderboard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "session_id")

	if a.ls != nil {
		l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{SessionID: id})
		if err == nil {
			return leaderboardToStruct(l), nil
		}
		if !errors.HasCode(err, errors.CodeNotFound) {
			return nil, err
		}
	}

	s, err := a.reg.Get(id)
	if err != nil {
		return nil, err
	}

	return leaderboardToStruct(liveLeaderboard(s.Snapshot())), nil
}

func (a *API) GetResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if a.as == nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithMessagef("result archive is disabled"))
	}

	id := stringField(req, "session_id")
	r, err := a.as.GetResult(ctx, archive.GetResultRequest{SessionID: id})
	if err != nil {
		return nil, err
	}

	rounds, err := a.as.ListRounds(ctx, archive.ListRoundsRequest{SessionID: id})
	if err != nil {
		return nil, err
	}

	return resultToStruct(r, rounds), nil
}

func liveLeaderboard(info domain.SessionInfo) *domain.Leaderboard {
	standings := make([]domain.TeamStanding, len(info.Standings))
	copy(standings, info.Standings)
	sort.SliceStable(standings, func(i, j int) bool { return standings[i].Score > standings[j].Score })

	l := &domain.Leaderboard{
		SessionID: info.SessionID,
		Entries:   make([]domain.LeaderboardEntry, 0, len(standings)),
	}
	for _, st := range standings {
		l.Entries = append(l.Entries, domain.LeaderboardEntry{TeamID: st.TeamID, Score: float64(st.Score)})
	}

	return l
}
