package app

import (
	"sort"
	"time"

	"quiz-match-service/internal/domain"
)

// Latency is the server-observed answer time relative to window open, never negative.
func Latency(sub domain.Submission, w *domain.Window) time.Duration {
	l := sub.ReceivedAt.Sub(w.OpenedAt)
	if l < 0 {
		return 0
	}
	return l
}

// Score computes the points for one submission. It is a pure function of
// correctness, server latency and configuration.
func Score(sub domain.Submission, w *domain.Window, q domain.Question, cfg domain.ScoringConfig) (int, bool) {
	if sub.ChoiceID != q.CorrectChoiceID {
		return 0, false
	}
	points := cfg.BasePoints
	if w.Duration <= 0 || cfg.TimeBonusMax <= 0 {
		return points, true
	}

	// whole milliseconds; answers inside the grace period earn no bonus, never a negative one
	durationMs := w.Duration.Milliseconds()
	if durationMs <= 0 {
		return points, true
	}
	latencyMs := min(Latency(sub, w).Milliseconds(), durationMs)
	points += int((durationMs - latencyMs) * int64(cfg.TimeBonusMax) / durationMs)
	return points, true
}

// Rank orders players by score desc, then cumulative correct latency asc, then user id.
// Players with equal score and latency share a rank. Scores are not modified.
func Rank(players []*domain.Player) []domain.Standing {
	standings := make([]domain.Standing, 0, len(players))
	for _, p := range players {
		standings = append(standings, domain.Standing{
			UserID:           p.UserID,
			Score:            p.Score,
			CorrectLatencyMs: p.CorrectLatency.Milliseconds(),
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectLatencyMs != b.CorrectLatencyMs {
			return a.CorrectLatencyMs < b.CorrectLatencyMs
		}
		return a.UserID < b.UserID
	})

	for i := range standings {
		if i > 0 &&
			standings[i].Score == standings[i-1].Score &&
			standings[i].CorrectLatencyMs == standings[i-1].CorrectLatencyMs {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}
	return standings
}
