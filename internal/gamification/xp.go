package gamification

import (
	"math"
	"sort"
	"time"

	"github.com/rhythmcheck/backend/internal/models"
)

// BaseXP returns XP for a score (0-100) before bonuses. The curve is
// super-linear: MaxBaseXP * (score/100)^Exponent.
func BaseXP(score int, curve models.XPCurve) int64 {
	if score <= 0 {
		return 0
	}
	if score > 100 {
		score = 100
	}
	frac := float64(score) / 100
	return int64(math.Round(float64(curve.MaxBaseXP) * math.Pow(frac, curve.Exponent)))
}

// AttemptXP adds the pass and perfect bonuses to the base curve.
func AttemptXP(score int, passing, perfect bool, curve models.XPCurve) int64 {
	xp := BaseXP(score, curve)
	if passing {
		xp += int64(curve.PassBonus)
	}
	if perfect {
		xp += int64(curve.PerfectBonus)
	}
	return xp
}

// EffectiveMultiplier resolves the multiplier for learnerID at the given time.
// Under the "max" policy only the single highest applicable factor counts;
// under "stack" applicable factors multiply. Both are bounded by rules.Cap.
func EffectiveMultiplier(events []models.MultiplierEvent, learnerID int64, at time.Time, rules models.MultiplierRules) float64 {
	multiplier := 1.0
	for _, e := range events {
		if !e.AppliesTo(learnerID, at) || e.Factor <= 1 {
			continue
		}
		if rules.Policy == models.MultiplierPolicyStack {
			multiplier *= e.Factor
		} else if e.Factor > multiplier {
			multiplier = e.Factor
		}
	}
	if rules.Cap >= 1 && multiplier > rules.Cap {
		multiplier = rules.Cap
	}
	return multiplier
}

// ApplyMultiplier rounds the multiplied XP to the nearest integer.
func ApplyMultiplier(xp int64, multiplier float64) int64 {
	return int64(math.Round(float64(xp) * multiplier))
}

// LevelForXP is the level step function over cumulative XP thresholds.
func LevelForXP(totalXP int64, thresholds []int64) int {
	level, _, _ := XPProgressToNextLevel(totalXP, thresholds)
	return level
}

// XPProgressToNextLevel returns the level for totalXP, the XP earned inside
// that level and the XP span of the level. Beyond the last configured
// threshold levels continue with the last configured gap, so
// xpIntoLevel < xpNeeded always holds.
func XPProgressToNextLevel(totalXP int64, thresholds []int64) (level int, xpIntoLevel, xpNeeded int64) {
	if totalXP < 0 {
		totalXP = 0
	}
	n := len(thresholds)
	last := thresholds[n-1]

	if totalXP < last {
		// thresholds[0] is 0, so the first threshold above totalXP has index >= 1.
		level = sort.Search(n, func(i int) bool { return thresholds[i] > totalXP })
	} else {
		level = n + int((totalXP-last)/lastGap(thresholds))
	}

	floor := levelFloor(level, thresholds)
	next := levelFloor(level+1, thresholds)
	return level, totalXP - floor, next - floor
}

// LevelProgress is XPProgressToNextLevel shaped for responses.
func LevelProgress(totalXP int64, thresholds []int64) models.LevelProgress {
	level, into, needed := XPProgressToNextLevel(totalXP, thresholds)
	return models.LevelProgress{Level: level, XPIntoLevel: into, XPForNext: needed, TotalXP: totalXP}
}

// levelFloor is the cumulative XP at which a 1-based level starts.
func levelFloor(level int, thresholds []int64) int64 {
	n := len(thresholds)
	if level <= n {
		return thresholds[level-1]
	}
	return thresholds[n-1] + int64(level-n)*lastGap(thresholds)
}

func lastGap(thresholds []int64) int64 {
	n := len(thresholds)
	return thresholds[n-1] - thresholds[n-2]
}

// creditXP is the single XP-delta path shared by attempts, achievement
// rewards and admin corrections. Total XP never drops below zero.
func creditXP(stats *models.ProgressionStats, delta int64, curve models.XPCurve) {
	stats.TotalXP += delta
	if stats.TotalXP < 0 {
		stats.TotalXP = 0
	}
	stats.Level = LevelForXP(stats.TotalXP, curve.LevelThresholds)
}
