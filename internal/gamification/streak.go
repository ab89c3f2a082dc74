package gamification

import (
	"time"

	"github.com/rhythmcheck/backend/internal/models"
)

// AdvanceStreak applies one activity at the given instant to the streak
// counters and last-activity timestamp.
//
// Streak periods are UTC calendar days. A second activity on the same day
// leaves the streak unchanged. An activity on a later day continues the
// streak (+1) when it is inside the grace window and resets it to 1
// otherwise. In calendar mode (GraceWindowHours == 0) the window is "the next
// calendar day". Activities older than the last one are ignored.
func AdvanceStreak(stats *models.ProgressionStats, at time.Time, rules models.StreakRules) models.StreakInfo {
	info := models.StreakInfo{}
	at = at.UTC()

	switch {
	case stats.LastActivityAt == nil || stats.CurrentStreak == 0:
		stats.CurrentStreak = 1
		info.Incremented = true
		stats.LastActivityAt = &at
	case at.Before(*stats.LastActivityAt):
		// out of order: never rewind
	default:
		last := stats.LastActivityAt.UTC()
		gap := calendarDaysBetween(last, at)
		switch {
		case gap == 0:
		case withinGrace(last, at, gap, rules):
			stats.CurrentStreak++
			info.Incremented = true
		default:
			stats.CurrentStreak = 1
			info.Reset = true
		}
		stats.LastActivityAt = &at
	}

	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	info.Current = stats.CurrentStreak
	info.Longest = stats.LongestStreak
	return info
}

func withinGrace(last, at time.Time, dayGap int, rules models.StreakRules) bool {
	if rules.GraceWindowHours <= 0 {
		return dayGap == 1
	}
	return at.Sub(last) <= time.Duration(rules.GraceWindowHours)*time.Hour
}

func calendarDaysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
