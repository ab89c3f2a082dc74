// Package ranking turns every learner's attempt history into a comparable
// leaderboard. Rankings are derived, never stored.
package ranking

import (
	"math"
	"sort"

	"github.com/rhythmcheck/backend/internal/models"
)

type learnerTotals struct {
	learnerID   int64
	attempts    int
	weightedSum float64
	weightSum   float64
}

// Rank scores and orders every eligible learner. Staff accounts, learners
// without a profile and learners without attempts are left out. Equal
// composite scores keep the order in which learners first appear in
// attempts, so the same snapshot always yields the same ranking.
func Rank(attempts []models.Attempt, profiles map[int64]models.Profile, weights models.RankingWeights) []models.RankingEntry {
	var order []*learnerTotals
	byLearner := make(map[int64]*learnerTotals)

	for _, a := range attempts {
		p, ok := profiles[a.LearnerID]
		if !ok || p.Role.IsStaff() {
			continue
		}
		t, ok := byLearner[a.LearnerID]
		if !ok {
			t = &learnerTotals{learnerID: a.LearnerID}
			byLearner[a.LearnerID] = t
			order = append(order, t)
		}
		w := weights.DifficultyWeight(a.Difficulty)
		t.attempts++
		t.weightedSum += w * float64(a.Score)
		t.weightSum += w
	}

	maxAttempts := 0
	for _, t := range order {
		if t.attempts > maxAttempts {
			maxAttempts = t.attempts
		}
	}

	entries := make([]models.RankingEntry, 0, len(order))
	for _, t := range order {
		avg := t.weightedSum / t.weightSum
		activity := 100 * math.Min(float64(t.attempts)/float64(maxAttempts), 1)
		entries = append(entries, models.RankingEntry{
			LearnerID:       t.learnerID,
			DisplayName:     profiles[t.learnerID].DisplayName(),
			AttemptCount:    t.attempts,
			WeightedAverage: avg,
			CompositeScore:  weights.AccuracyWeight*avg + weights.ActivityWeight*activity,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CompositeScore > entries[j].CompositeScore
	})

	n := len(entries)
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Percentile = Percentile(i+1, n)
		entries[i].WeightedAverage = round2(entries[i].WeightedAverage)
		entries[i].CompositeScore = round2(entries[i].CompositeScore)
	}
	return entries
}

// Percentile is the share of other participants ranked below rank, 0-100.
func Percentile(rank, total int) int {
	if total <= 1 || rank < 1 || rank > total {
		return 0
	}
	return int(math.Round(100 * float64(total-rank) / float64(total-1)))
}

// View cuts a full ranking down to topN entries and locates the current
// learner within the whole population.
func View(ranked []models.RankingEntry, currentLearnerID int64, topN int) models.Leaderboard {
	lb := models.Leaderboard{TotalParticipants: len(ranked)}

	limit := topN
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	lb.Entries = make([]models.RankingEntry, limit)
	copy(lb.Entries, ranked[:limit])

	for i, e := range ranked {
		if e.LearnerID != currentLearnerID {
			continue
		}
		e.IsCurrentUser = true
		lb.CurrentUser = &e
		lb.CurrentRank = e.Rank
		lb.Percentile = e.Percentile
		if i < limit {
			lb.Entries[i].IsCurrentUser = true
		}
		break
	}
	return lb
}

// BuildLeaderboard ranks the snapshot and returns the view for one learner.
func BuildLeaderboard(attempts []models.Attempt, profiles map[int64]models.Profile, currentLearnerID int64, topN int, weights models.RankingWeights) models.Leaderboard {
	return View(Rank(attempts, profiles, weights), currentLearnerID, topN)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
