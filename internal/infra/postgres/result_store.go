package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-match-service/internal/domain"
)

// ResultStore appends final match records and their answer audit log.
// Rows are only ever inserted.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) AppendResult(ctx context.Context, result domain.MatchResult) error {
	standings, err := json.Marshal(result.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var startedAt interface{}
	if !result.StartedAt.IsZero() {
		startedAt = result.StartedAt
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO match_results (match_id, kind, reason, started_at, ended_at, standings)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		result.MatchID, result.Kind, string(result.Reason), startedAt, result.EndedAt, string(standings))
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}

	if len(result.Answers) > 0 {
		batch := &pgx.Batch{}
		for _, a := range result.Answers {
			batch.Queue(
				`INSERT INTO match_answers
				 (match_id, seq, question_id, user_id, choice_id, received_at, latency_ms, correct, points)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				result.MatchID, a.Seq, a.QuestionID, a.UserID, a.ChoiceID, a.ReceivedAt, a.LatencyMs, a.Correct, a.Points)
		}
		br := tx.SendBatch(ctx, batch)
		for range result.Answers {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert match answer: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close answer batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit result tx: %w", err)
	}
	return nil
}

// LoadResult reads a persisted result back, mainly for dispute review and tests.
func (s *ResultStore) LoadResult(ctx context.Context, matchID string) (domain.MatchResult, error) {
	var (
		result    domain.MatchResult
		reason    string
		standings []byte
		startedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT match_id, kind, reason, started_at, ended_at, standings FROM match_results WHERE match_id=$1`, matchID).
		Scan(&result.MatchID, &result.Kind, &reason, &startedAt, &result.EndedAt, &standings)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load match result: %w", err)
	}
	result.Reason = domain.EndReason(reason)
	if startedAt != nil {
		result.StartedAt = *startedAt
	}
	if err := json.Unmarshal(standings, &result.Standings); err != nil {
		return domain.MatchResult{}, fmt.Errorf("unmarshal standings: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, question_id, user_id, choice_id, received_at, latency_ms, correct, points
		 FROM match_answers WHERE match_id=$1 ORDER BY seq, id`, matchID)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("load match answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.AnswerAudit
		if err := rows.Scan(&a.Seq, &a.QuestionID, &a.UserID, &a.ChoiceID, &a.ReceivedAt, &a.LatencyMs, &a.Correct, &a.Points); err != nil {
			return domain.MatchResult{}, fmt.Errorf("scan match answer: %w", err)
		}
		result.Answers = append(result.Answers, a)
	}
	return result, rows.Err()
}
