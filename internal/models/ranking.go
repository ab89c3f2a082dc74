package models

import "time"

// ── Ranking ──────────────────────────────────────────────

// RankingEntry is derived on demand from attempt history and never stored.
type RankingEntry struct {
	Rank            int     `json:"rank"`
	LearnerID       int64   `json:"learner_id"`
	DisplayName     string  `json:"display_name"`
	AttemptCount    int     `json:"attempt_count"`
	WeightedAverage float64 `json:"weighted_average"`
	CompositeScore  float64 `json:"composite_score"`
	Percentile      int     `json:"percentile"`
	IsCurrentUser   bool    `json:"is_current_user"`
}

// Leaderboard is the top of the ranking plus the requesting learner's
// placement within the whole population.
type Leaderboard struct {
	Entries           []RankingEntry `json:"entries"`
	CurrentUser       *RankingEntry  `json:"current_user,omitempty"`
	CurrentRank       int            `json:"current_rank"`
	TotalParticipants int            `json:"total_participants"`
	Percentile        int            `json:"percentile"`
	GeneratedAt       time.Time      `json:"generated_at"`
}
