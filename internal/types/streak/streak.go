package streak

import (
	"time"

	"nutriLensAPI/internal/daykey"
)

// HistoryCapacity is the length of the rolling activity window.
const HistoryCapacity = 60

// Level buckets how close a day's intake came to its calorie target (0..4).
type Level int

type Record struct {
	UserID          string      `json:"userId" firestore:"userId"`
	CurrentStreak   int         `json:"currentStreak" firestore:"currentStreak"`
	LongestStreak   int         `json:"longestStreak" firestore:"longestStreak"`
	TotalDays       int         `json:"totalDays" firestore:"totalDays"`
	ActivityHistory []Level     `json:"activityHistory" firestore:"activityHistory"`
	StartDate       time.Time   `json:"startDate" firestore:"startDate"`
	LastUpdateDate  daykey.Date `json:"lastStreakUpdate" firestore:"lastStreakUpdate"`
	LastUpdate      time.Time   `json:"lastUpdate" firestore:"lastUpdate"`
}

// View is the record as served to clients, with the derived day counter.
type View struct {
	Record
	CurrentDay int `json:"currentDay"`
}
