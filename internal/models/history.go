package models

import (
	"time"

	"github.com/google/uuid"
)

// ── History Types ────────────────────────────────────────

// AttemptSummary is an attempt without its submission and reference payloads.
type AttemptSummary struct {
	ID          uuid.UUID  `json:"id"`
	RecordingID string     `json:"recording_id"`
	Category    string     `json:"recording_category"`
	Difficulty  Difficulty `json:"difficulty"`
	Score       int        `json:"score"`
	IsPassing   bool       `json:"is_passing"`
	IsPerfect   bool       `json:"is_perfect"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// Summary projects an attempt to its history row.
func (a Attempt) Summary() AttemptSummary {
	return AttemptSummary{
		ID:          a.ID,
		RecordingID: a.RecordingID,
		Category:    a.RecordingCategory,
		Difficulty:  a.Difficulty,
		Score:       a.Score,
		IsPassing:   a.IsPassing,
		IsPerfect:   a.IsPerfect(),
		OccurredAt:  a.OccurredAt,
	}
}

// ── Response Types ────────────────────────────────────────

type HistoryListResponse struct {
	Attempts []AttemptSummary `json:"attempts"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

type HistoryStatsResponse struct {
	TotalAttempts   int                     `json:"total_attempts"`
	TotalPassed     int                     `json:"total_passed"`
	PassRate        float64                 `json:"pass_rate"`
	AverageScore    float64                 `json:"average_score"`
	CategoryStats   map[string]AccuracyStat `json:"category_stats"`
	DifficultyStats DifficultyBreakdown     `json:"difficulty_stats"`
	RecentTrend     []DailyAccuracy         `json:"recent_trend"`
}

type DifficultyBreakdown struct {
	Easy   AccuracyStat `json:"easy"`
	Medium AccuracyStat `json:"medium"`
	Hard   AccuracyStat `json:"hard"`
}

type AccuracyStat struct {
	Attempts     int     `json:"attempts"`
	Passed       int     `json:"passed"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
}

type DailyAccuracy struct {
	Date         string  `json:"date"`
	Attempts     int     `json:"attempts"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"average_score"`
}
