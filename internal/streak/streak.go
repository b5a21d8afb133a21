// Package streak holds the rolling-window streak algorithm. Everything here is
// pure; persistence lives in services.StreakService.
package streak

import (
	"nutriLensAPI/internal/daykey"
	types "nutriLensAPI/internal/types/streak"
	"time"
)

// Milestones are the streak lengths that trigger a push notification.
var Milestones = []int{3, 7, 14, 30, 60}

// LevelForProgress maps calorie progress to an activity level. A non-positive
// target always yields level 0.
func LevelForProgress(currentCalories, targetCalories float64) types.Level {
	if targetCalories <= 0 {
		return 0
	}
	progress := currentCalories / targetCalories * 100

	switch {
	case progress >= 80:
		return 4
	case progress >= 60:
		return 3
	case progress >= 40:
		return 2
	case progress >= 20:
		return 1
	default:
		return 0
	}
}

// NewRecord is the record a user starts with: all counters zero, a full window
// of zero levels and no update date.
func NewRecord(userID string, now time.Time) types.Record {
	return types.Record{
		UserID:          userID,
		ActivityHistory: make([]types.Level, types.HistoryCapacity),
		StartDate:       now,
		LastUpdate:      now,
	}
}

// Advance appends today's level to the window, evicting the oldest entry when
// full, and recomputes the counters. rec is not modified.
//
// longestStreak only ever ratchets up; totalDays is recounted from the window,
// so days that scroll out of it stop counting.
func Advance(rec types.Record, level types.Level, today daykey.Date, now time.Time) types.Record {
	history := rec.ActivityHistory
	if len(history) >= types.HistoryCapacity {
		history = history[len(history)-types.HistoryCapacity+1:]
	}
	next := make([]types.Level, 0, types.HistoryCapacity)
	next = append(next, history...)
	next = append(next, level)

	rec.ActivityHistory = next
	rec.CurrentStreak = TrailingRun(next)
	rec.LongestStreak = max(rec.LongestStreak, rec.CurrentStreak)
	rec.TotalDays = ActiveDays(next)
	rec.LastUpdateDate = today
	rec.LastUpdate = now
	return rec
}

// TrailingRun counts the consecutive active days ending at the newest entry.
func TrailingRun(history []types.Level) int {
	n := 0
	for i := len(history) - 1; i >= 0 && history[i] > 0; i-- {
		n++
	}
	return n
}

func ActiveDays(history []types.Level) int {
	n := 0
	for _, l := range history {
		if l > 0 {
			n++
		}
	}
	return n
}

// UpdatedOn reports whether rec has already been advanced for today.
func UpdatedOn(rec types.Record, today daykey.Date) bool {
	return rec.LastUpdateDate != "" && rec.LastUpdateDate == today
}

// CurrentDay is the 1-based day number since the streak started, counted in
// calendar days of now's location.
func CurrentDay(start, now time.Time) int {
	n, err := daykey.DaysBetween(daykey.FromTime(start.In(now.Location())), daykey.FromTime(now))
	if err != nil {
		return 1
	}
	return max(1, n+1)
}

// ReachedMilestone returns the milestone crossed when the streak grew from
// prev to current, or 0.
func ReachedMilestone(prev, current int) int {
	if current <= prev {
		return 0
	}
	for _, m := range Milestones {
		if current == m {
			return m
		}
	}
	return 0
}
