package ranking

import (
	"testing"

	"github.com/rhythmcheck/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultWeights() models.RankingWeights {
	return models.RankingWeights{
		DifficultyWeights: map[models.Difficulty]float64{
			models.DifficultyEasy:   1.0,
			models.DifficultyMedium: 1.25,
			models.DifficultyHard:   1.5,
		},
		AccuracyWeight: 0.7,
		ActivityWeight: 0.3,
	}
}

func attempt(learnerID int64, score int, d models.Difficulty) models.Attempt {
	return models.Attempt{LearnerID: learnerID, Score: score, Difficulty: d}
}

func learners(ids ...int64) map[int64]models.Profile {
	out := make(map[int64]models.Profile, len(ids))
	for _, id := range ids {
		out[id] = models.Profile{LearnerID: id, Name: "Learner Number", Role: models.RoleLearner}
	}
	return out
}

func TestRankDifficultyWeightedAverage(t *testing.T) {
	attempts := []models.Attempt{
		attempt(1, 80, models.DifficultyEasy),
		attempt(1, 100, models.DifficultyHard),
	}
	ranked := Rank(attempts, learners(1), defaultWeights())
	require.Len(t, ranked, 1)
	// (80*1 + 100*1.5) / 2.5 = 92
	assert.Equal(t, 92.0, ranked[0].WeightedAverage)
	// 0.7*92 + 0.3*100
	assert.Equal(t, 94.4, ranked[0].CompositeScore)
	assert.Equal(t, 2, ranked[0].AttemptCount)
	assert.Equal(t, "Learner N.", ranked[0].DisplayName)
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	// learners 10 and 20 tie on composite score
	attempts := []models.Attempt{
		attempt(20, 88, models.DifficultyEasy),
		attempt(10, 88, models.DifficultyEasy),
		attempt(30, 50, models.DifficultyEasy),
		attempt(30, 100, models.DifficultyEasy),
		attempt(20, 88, models.DifficultyEasy),
		attempt(10, 88, models.DifficultyEasy),
	}
	w := defaultWeights()
	for run := 0; run < 20; run++ {
		ranked := Rank(attempts, learners(10, 20, 30), w)
		require.Len(t, ranked, 3)
		assert.Equal(t, []int64{20, 10, 30}, []int64{ranked[0].LearnerID, ranked[1].LearnerID, ranked[2].LearnerID})
		assert.Equal(t, []float64{91.6, 91.6, 82.5}, []float64{ranked[0].CompositeScore, ranked[1].CompositeScore, ranked[2].CompositeScore})
		assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	}
}

func TestRankCompositeExample(t *testing.T) {
	// two learners at 91.2 composite and one at 85.0, ranked on accuracy alone
	w := models.RankingWeights{AccuracyWeight: 1, ActivityWeight: 0}
	attempts := []models.Attempt{
		attempt(1, 85, models.DifficultyEasy),
		{LearnerID: 2, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 2, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 2, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 2, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 2, Score: 92, Difficulty: models.DifficultyEasy},
		{LearnerID: 3, Score: 92, Difficulty: models.DifficultyEasy},
		{LearnerID: 3, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 3, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 3, Score: 91, Difficulty: models.DifficultyEasy},
		{LearnerID: 3, Score: 91, Difficulty: models.DifficultyEasy},
	}
	ranked := Rank(attempts, learners(1, 2, 3), w)
	require.Len(t, ranked, 3)
	assert.Equal(t, 91.2, ranked[0].CompositeScore)
	assert.Equal(t, 91.2, ranked[1].CompositeScore)
	assert.Equal(t, 85.0, ranked[2].CompositeScore)
	assert.Equal(t, int64(2), ranked[0].LearnerID)
	assert.Equal(t, int64(3), ranked[1].LearnerID)
	assert.Equal(t, int64(1), ranked[2].LearnerID)
}

func TestRankActivityBonusIsCapped(t *testing.T) {
	var attempts []models.Attempt
	for i := 0; i < 40; i++ {
		attempts = append(attempts, attempt(1, 60, models.DifficultyEasy))
	}
	for i := 0; i < 10; i++ {
		attempts = append(attempts, attempt(2, 60, models.DifficultyEasy))
	}
	ranked := Rank(attempts, learners(1, 2), defaultWeights())
	require.Len(t, ranked, 2)
	assert.Equal(t, 72.0, ranked[0].CompositeScore) // 0.7*60 + 0.3*100
	assert.Equal(t, 49.5, ranked[1].CompositeScore) // 0.7*60 + 0.3*25
}

func TestRankExcludesStaffAndUnknownProfiles(t *testing.T) {
	profiles := learners(1, 2)
	profiles[3] = models.Profile{LearnerID: 3, Name: "Dr Admin", Role: models.RoleAdmin}
	profiles[5] = models.Profile{LearnerID: 5, Name: "Idle", Role: models.RoleLearner}

	attempts := []models.Attempt{
		attempt(1, 70, models.DifficultyEasy),
		attempt(2, 90, models.DifficultyMedium),
		attempt(3, 100, models.DifficultyHard),
		attempt(4, 100, models.DifficultyHard),
	}
	ranked := Rank(attempts, profiles, defaultWeights())
	require.Len(t, ranked, 2)
	for _, e := range ranked {
		assert.NotContains(t, []int64{3, 4, 5}, e.LearnerID)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		rank, total, want int
	}{
		{1, 1, 0},
		{1, 2, 100},
		{2, 2, 0},
		{1, 5, 100},
		{3, 5, 50},
		{5, 5, 0},
		{2, 4, 67},
		{0, 4, 0},
		{9, 4, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentile(tt.rank, tt.total), "rank %d of %d", tt.rank, tt.total)
	}
}

func TestBuildLeaderboardCapsEntriesButNotRank(t *testing.T) {
	var attempts []models.Attempt
	ids := []int64{1, 2, 3, 4, 5}
	for i, id := range ids {
		attempts = append(attempts, attempt(id, 90-10*i, models.DifficultyEasy))
	}

	lb := BuildLeaderboard(attempts, learners(ids...), 4, 2, defaultWeights())
	assert.Len(t, lb.Entries, 2)
	assert.Equal(t, 5, lb.TotalParticipants)
	assert.Equal(t, 4, lb.CurrentRank)
	assert.Equal(t, 25, lb.Percentile)
	require.NotNil(t, lb.CurrentUser)
	assert.True(t, lb.CurrentUser.IsCurrentUser)
	for _, e := range lb.Entries {
		assert.False(t, e.IsCurrentUser)
	}

	top := BuildLeaderboard(attempts, learners(ids...), 1, 2, defaultWeights())
	assert.True(t, top.Entries[0].IsCurrentUser)
	assert.Equal(t, 100, top.Percentile)

	none := BuildLeaderboard(attempts, learners(ids...), 99, 0, defaultWeights())
	assert.Len(t, none.Entries, 5)
	assert.Nil(t, none.CurrentUser)
	assert.Zero(t, none.CurrentRank)
	assert.Zero(t, none.Percentile)
}

func TestBuildLeaderboardEmpty(t *testing.T) {
	lb := BuildLeaderboard(nil, nil, 1, 10, defaultWeights())
	assert.NotNil(t, lb.Entries)
	assert.Empty(t, lb.Entries)
	assert.Zero(t, lb.TotalParticipants)
}
