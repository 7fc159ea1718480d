// Package ranking derives per-game standings and the cross-game global
// leaderboard from score entries. Nothing here is stored; every call recomputes
// from the entries it is given.
package ranking

import (
	"sort"
	"time"

	"github.com/advent-arcade/internal/domain"
)

// RankGame orders a game's entries best first and assigns 1-based ranks.
// Duplicate entries for the same player collapse to their best one. Equal
// highscores go to whoever reached the score first, then to the earlier
// first play, then to the alphabetically smaller name.
func RankGame(entries []domain.ScoreEntry) []domain.RankedEntry {
	best := make(map[string]int, len(entries))
	unique := make([]domain.ScoreEntry, 0, len(entries))
	for _, e := range entries {
		key := domain.FoldName(e.Username)
		if i, ok := best[key]; ok {
			if e.Highscore > unique[i].Highscore {
				unique[i] = e
			}
			continue
		}
		best[key] = len(unique)
		unique = append(unique, e)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return entryLess(unique[i], unique[j])
	})

	ranked := make([]domain.RankedEntry, len(unique))
	for i, e := range unique {
		ranked[i] = domain.RankedEntry{Rank: i + 1, ScoreEntry: e}
	}
	return ranked
}

func entryLess(a, b domain.ScoreEntry) bool {
	if a.Highscore != b.Highscore {
		return a.Highscore > b.Highscore
	}
	if ta, tb := reachedAt(a), reachedAt(b); !ta.Equal(tb) {
		return ta.Before(tb)
	}
	if !a.FirstPlayed.Equal(b.FirstPlayed) {
		return a.FirstPlayed.Before(b.FirstPlayed)
	}
	return domain.FoldName(a.Username) < domain.FoldName(b.Username)
}

// reachedAt falls back to lastPlayed for entries written before highscoreAt
// was tracked.
func reachedAt(e domain.ScoreEntry) time.Time {
	if e.HighscoreAt.IsZero() {
		return e.LastPlayed
	}
	return e.HighscoreAt
}

// Global computes the cross-game leaderboard over activeGames. When
// activeGames is nil every game present in scores takes part. Games without
// entries contribute nothing.
func Global(activeGames []string, scores map[string][]domain.ScoreEntry) []domain.GlobalLeaderboardRow {
	games := activeGames
	if games == nil {
		games = sortedGames(scores)
	}

	index := make(map[string]int)
	var rows []domain.GlobalLeaderboardRow
	seen := make(map[string]bool, len(games))

	for _, game := range games {
		if seen[game] {
			continue
		}
		seen[game] = true

		for _, e := range RankGame(scores[game]) {
			key := domain.FoldName(e.Username)
			i, ok := index[key]
			if !ok {
				i = len(rows)
				index[key] = i
				rows = append(rows, domain.GlobalLeaderboardRow{Username: e.Username})
			}
			row := &rows[i]
			switch e.Rank {
			case 1:
				row.FirstPlaces++
			case 2:
				row.SecondPlaces++
			case 3:
				row.ThirdPlaces++
			}
			row.TotalScore += e.Highscore
			row.GamesPlayed++
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rowLess(rows[i], rows[j])
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	if rows == nil {
		rows = []domain.GlobalLeaderboardRow{}
	}
	return rows
}

func rowLess(a, b domain.GlobalLeaderboardRow) bool {
	if a.FirstPlaces != b.FirstPlaces {
		return a.FirstPlaces > b.FirstPlaces
	}
	if a.SecondPlaces != b.SecondPlaces {
		return a.SecondPlaces > b.SecondPlaces
	}
	if a.ThirdPlaces != b.ThirdPlaces {
		return a.ThirdPlaces > b.ThirdPlaces
	}
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.GamesPlayed != b.GamesPlayed {
		return a.GamesPlayed > b.GamesPlayed
	}
	return domain.FoldName(a.Username) < domain.FoldName(b.Username)
}

// Placements returns the podium finishes of a single player
func Placements(activeGames []string, scores map[string][]domain.ScoreEntry, username string) domain.Placements {
	for _, row := range Global(activeGames, scores) {
		if domain.SameName(row.Username, username) {
			return domain.Placements{
				First:  row.FirstPlaces,
				Second: row.SecondPlaces,
				Third:  row.ThirdPlaces,
			}
		}
	}
	return domain.Placements{}
}

func sortedGames(scores map[string][]domain.ScoreEntry) []string {
	games := make([]string, 0, len(scores))
	for g := range scores {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}
