package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	retention       = 24 * time.Hour
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service mirrors team standings into a redis sorted set per session and announces changes.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameRoundConcluded, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventRoundConcluded))
	})
	s.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.FinalizeLeaderboard(ctx, e.(domain.EventGameEnded))
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionID string
}

// GetLeaderboard returns the teams of a session and their scores, highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.SessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: session=%s", req.SessionID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			TeamID: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Leaderboard{
		SessionID: req.SessionID,
		Entries:   entries,
	}, nil
}

// UpdateLeaderboard raises every team's cumulative score after a round. Handlers run
// concurrently, so a stale round never lowers a score written by a later one.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventRoundConcluded) error {
	if err := s.store(ctx, e.SessionID, e.Standings); err != nil {
		return err
	}

	return s.schedulePublishLeaderboard(ctx, e.SessionID, e.ConcludedAt)
}

// FinalizeLeaderboard stores the final standings and always publishes them.
func (s *Service) FinalizeLeaderboard(ctx context.Context, e domain.EventGameEnded) error {
	if err := s.store(ctx, e.SessionID, e.Standings); err != nil {
		return err
	}

	return s.publishLeaderboard(ctx, e.SessionID, e.EndedAt)
}

func (s *Service) store(ctx context.Context, sessionID string, standings []domain.TeamStanding) error {
	if len(standings) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(standings))
	for _, st := range standings {
		members = append(members, redis.Z{Score: float64(st.Score), Member: st.TeamID})
	}

	key := s.getLeaderboardKey(sessionID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddGT(ctx, key, members...)
		p.Expire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return nil
}

// schedulePublishLeaderboard publishes at most one leaderboard per session per publish interval.
// Rounds concluding in quick succession, typically on all-answered, collapse into one update.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, sessionID string, at time.Time) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(sessionID), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, sessionID, at)
}

func (s *Service) publishLeaderboard(ctx context.Context, sessionID string, at time.Time) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%s: %w", sessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(sessionID), at.UnixMilli(), publishInterval).Err()
}

func (s *Service) getLeaderboardKey(session string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, session)
}

func (s *Service) getLeaderboardTimeKey(session string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, session)
}
