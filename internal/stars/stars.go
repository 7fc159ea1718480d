// Package stars turns a player's aggregate stats into the capped stars total
// shown on profiles.
package stars

import (
	"math"

	"github.com/advent-arcade/internal/domain"
)

// Per-category caps
const (
	MaxGameScore    = 1000
	MaxMastery      = 500
	MaxConsistency  = 300
	MaxImprovement  = 200
	MaxEngagement   = 400
	MaxVariety      = 150
	MaxDedication   = 250
	MaxAchievements = 200

	MaxTotal = MaxGameScore + MaxMastery + MaxConsistency + MaxImprovement +
		MaxEngagement + MaxVariety + MaxDedication + MaxAchievements
)

// Calculate derives the stars from stats. Each category is clamped to
// [0, cap] on its own before summing.
func Calculate(s domain.UserStats) domain.Stars {
	top1 := nonNegative(int64(s.Top1Count))
	podium := nonNegative(int64(s.Top3Count) - int64(s.Top1Count))

	b := domain.StarsBreakdown{
		GameScore:    capped(nonNegative(s.TotalScore)/10, MaxGameScore),
		Mastery:      capped(top1*50+podium*20, MaxMastery),
		Consistency:  capped(nonNegative(int64(s.LongestStreak))*10, MaxConsistency),
		Improvement:  capped(floorTimes(s.ImprovementRate, 2), MaxImprovement),
		Engagement:   capped(nonNegative(int64(s.DailyLoginCount))*2+nonNegative(int64(s.DoorsOpened))*5, MaxEngagement),
		Variety:      capped(nonNegative(int64(s.UniqueGamesPlayed))*15, MaxVariety),
		Dedication:   capped(nonNegative(s.TotalPlayTime)/120, MaxDedication),
		Achievements: capped(nonNegative(int64(s.AchievementCount))*10, MaxAchievements),
	}

	return domain.Stars{
		Total: b.GameScore + b.Mastery + b.Consistency + b.Improvement +
			b.Engagement + b.Variety + b.Dedication + b.Achievements,
		Breakdown: b,
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func floorTimes(rate, factor float64) int64 {
	if math.IsNaN(rate) || rate <= 0 {
		return 0
	}
	v := math.Floor(rate * factor)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(v)
}

func capped(v int64, max int) int {
	if v < 0 {
		return 0
	}
	if v > int64(max) {
		return max
	}
	return int(v)
}
