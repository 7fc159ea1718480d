package users

import (
	"sort"
	"time"

	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/stars"
)

const dayLayout = "2006-01-02"

type achievement struct {
	id      string
	reached func(s domain.UserStats, doors int) bool
}

var achievements = []achievement{
	{"first-game", func(s domain.UserStats, _ int) bool { return s.TotalGamesPlayed >= 1 }},
	{"ten-games", func(s domain.UserStats, _ int) bool { return s.TotalGamesPlayed >= 10 }},
	{"hundred-games", func(s domain.UserStats, _ int) bool { return s.TotalGamesPlayed >= 100 }},
	{"explorer", func(s domain.UserStats, _ int) bool { return s.UniqueGamesPlayed >= 5 }},
	{"champion", func(s domain.UserStats, _ int) bool { return s.Top1Count >= 1 }},
	{"podium-regular", func(s domain.UserStats, _ int) bool { return s.Top3Count >= 3 }},
	{"week-streak", func(s domain.UserStats, _ int) bool { return s.LongestStreak >= 7 }},
	{"marathon", func(s domain.UserStats, _ int) bool { return s.TotalPlayTime >= 3600 }},
	{"door-opener", func(s domain.UserStats, _ int) bool { return s.DoorsOpened >= 1 }},
	{"calendar-complete", func(s domain.UserStats, doors int) bool { return doors > 0 && s.DoorsOpened >= doors }},
}

type unlock struct {
	item  string
	stars int
}

var unlocks = []unlock{
	{"santa-hat", 100},
	{"reindeer-antlers", 250},
	{"snow-globe", 500},
	{"golden-star", 1000},
	{"northern-lights", 2000},
}

// refresh re-derives achievements, stars and unlocked items from the stats.
// Achievements and items are never taken away once earned.
func refresh(p *domain.UserProfile, doors int) {
	for _, a := range achievements {
		if a.reached(p.Stats, doors) && !contains(p.Achievements, a.id) {
			p.Achievements = append(p.Achievements, a.id)
		}
	}
	p.Stats.AchievementCount = len(p.Achievements)

	p.Stars = stars.Calculate(p.Stats)

	for _, u := range unlocks {
		if p.Stars.Total >= u.stars && !contains(p.UnlockedItems, u.item) {
			p.UnlockedItems = append(p.UnlockedItems, u.item)
		}
	}
}

// applyGame folds one finished game into the stats
func applyGame(s *domain.UserStats, r domain.GameResult, placements domain.Placements, loc *time.Location) {
	score := r.Score
	if score < 0 {
		score = 0
	}
	playTime := r.PlayTime
	if playTime < 0 {
		playTime = 0
	}

	s.TotalGamesPlayed++
	s.TotalPlayTime += playTime
	s.TotalScore += score

	if s.Games == nil {
		s.Games = make(map[string]domain.GameStats)
	}
	g, seen := s.Games[r.Game]
	g.Plays++
	g.PlayTime += playTime
	if !seen || r.Score > g.BestScore {
		g.BestScore = r.Score
	}
	s.Games[r.Game] = g
	s.UniqueGamesPlayed = len(s.Games)

	advanceStreak(s, r.At.In(loc))
	s.FavoriteGame, s.BestGame, s.WorstGame = rankGames(s.Games)

	s.Top1Count = placements.First
	s.Top3Count = placements.Top3()
}

// advanceStreak counts consecutive calendar days with at least one game
func advanceStreak(s *domain.UserStats, at time.Time) {
	day := at.Format(dayLayout)
	switch {
	case s.LastPlayedDay == day:
		return
	case s.LastPlayedDay != "" && day < s.LastPlayedDay:
		return
	case s.LastPlayedDay == at.AddDate(0, 0, -1).Format(dayLayout):
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}
	s.LastPlayedDay = day
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
}

// recordLogin counts distinct login days
func recordLogin(s *domain.UserStats, at time.Time) {
	day := at.Format(dayLayout)
	if s.LastLoginDay == day {
		return
	}
	s.DailyLoginCount++
	s.LastLoginDay = day
}

// rankGames picks the most played game and the games with the highest and
// lowest best score. The worst game is only reported once two games were
// played. Ties go to the alphabetically smaller game.
func rankGames(games map[string]domain.GameStats) (favorite, best, worst string) {
	names := make([]string, 0, len(games))
	for name := range games {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		g := games[name]
		if favorite == "" || g.Plays > games[favorite].Plays {
			favorite = name
		}
		if best == "" || g.BestScore > games[best].BestScore {
			best = name
		}
		if worst == "" || g.BestScore < games[worst].BestScore {
			worst = name
		}
	}
	if len(names) < 2 {
		worst = ""
	}
	return favorite, best, worst
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
