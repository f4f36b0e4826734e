// Package archive keeps an audit trail of sessions, rounds and final results in Postgres.
package archive

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/squadquiz/internal/domain"
	"github.com/victornm/squadquiz/internal/errors"
	"github.com/victornm/squadquiz/internal/event"
)

//go:embed schema.sql
var schema string

const codeUniqueViolation = "23505"

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	s := &Service{
		db: c.DB,
		eb: c.EventBus,
	}

	s.eb.Subscribe(domain.EventNameSessionCreated, func(ctx context.Context, e event.Event) error {
		return s.RecordSession(ctx, e.(domain.EventSessionCreated))
	})
	s.eb.Subscribe(domain.EventNameRoundConcluded, func(ctx context.Context, e event.Event) error {
		return s.RecordRound(ctx, e.(domain.EventRoundConcluded))
	})
	s.eb.Subscribe(domain.EventNameGameEnded, func(ctx context.Context, e event.Event) error {
		return s.RecordResult(ctx, e.(domain.EventGameEnded))
	})

	return s
}

// Migrate creates the archive tables if they do not exist yet.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate archive: %w", err)
	}
	return nil
}

func (s *Service) RecordSession(ctx context.Context, e domain.EventSessionCreated) error {
	const stmt = `
INSERT INTO sessions (session_id, team_count, players_per_team, question_count, create_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id) DO NOTHING;`

	ss := e.Session
	if _, err := s.db.Exec(ctx, stmt, ss.SessionID, ss.TeamCount, ss.PlayersPerTeam, ss.QuestionCount, e.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// RecordRound stores one row per team for a concluded round. Replaying the same round is a no-op.
func (s *Service) RecordRound(ctx context.Context, e domain.EventRoundConcluded) error {
	const stmt = `
INSERT INTO round_results (session_id, question_index, team_id, team_question, trigger, round_points, total_score, concluded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, question_index, team_id) DO NOTHING;`

	b := new(pgx.Batch)
	for _, st := range e.Standings {
		b.Queue(stmt, e.SessionID, e.QuestionIndex, st.TeamID, e.TeamQuestion, string(e.Trigger),
			e.RoundPoints[st.TeamID], st.Score, e.ConcludedAt)
	}

	if err := s.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert round results: %w", err)
	}

	return nil
}

func (s *Service) RecordResult(ctx context.Context, e domain.EventGameEnded) error {
	const stmt = `
INSERT INTO game_results (session_id, winning_team, standings, ended_at)
VALUES ($1, $2, $3, $4);`

	_, err := s.db.Exec(ctx, stmt, e.SessionID, e.WinningTeam, e.Standings, e.EndedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result already recorded: session=%s", e.SessionID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}

	return nil
}

type GetResultRequest struct {
	SessionID string
}

func (s *Service) GetResult(ctx context.Context, req GetResultRequest) (*domain.GameResult, error) {
	const stmt = `
SELECT session_id::text, winning_team, standings, ended_at
FROM game_results
WHERE session_id = $1;`

	if _, err := uuid.Parse(req.SessionID); err != nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("result not found: session=%s", req.SessionID))
	}

	var r domain.GameResult
	err := s.db.QueryRow(ctx, stmt, req.SessionID).Scan(&r.SessionID, &r.WinningTeam, &r.Standings, &r.EndedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("result not found: session=%s", req.SessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("get game result: %w", err)
	}

	return &r, nil
}

type ListRoundsRequest struct {
	SessionID string
}

// RoundResult is one team's outcome in one round.
type RoundResult struct {
	QuestionIndex int
	TeamID        string
	TeamQuestion  bool
	Trigger       domain.Trigger
	RoundPoints   int
	TotalScore    int
}

func (s *Service) ListRounds(ctx context.Context, req ListRoundsRequest) ([]RoundResult, error) {
	const stmt = `
SELECT question_index, team_id, team_question, trigger, round_points, total_score
FROM round_results
WHERE session_id = $1
ORDER BY question_index, team_id;`

	rows, err := s.db.Query(ctx, stmt, req.SessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (RoundResult, error) {
		var (
			rr      RoundResult
			trigger string
		)
		if err := r.Scan(&rr.QuestionIndex, &rr.TeamID, &rr.TeamQuestion, &trigger, &rr.RoundPoints, &rr.TotalScore); err != nil {
			return RoundResult{}, err
		}
		rr.Trigger = domain.Trigger(trigger)
		return rr, nil
	})
}
