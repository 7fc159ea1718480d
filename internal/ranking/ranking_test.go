package ranking

import (
	"sort"
	"testing"
	"time"

	"github.com/advent-arcade/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.December, 1, 12, 0, 0, 0, time.UTC)

func entry(name string, score int64, minute int) domain.ScoreEntry {
	at := base.Add(time.Duration(minute) * time.Minute)
	return domain.ScoreEntry{
		Username:    name,
		Highscore:   score,
		LastScore:   score,
		GamesPlayed: 1,
		FirstPlayed: at,
		LastPlayed:  at,
		HighscoreAt: at,
	}
}

func TestRankGame_SortsDescending(t *testing.T) {
	ranked := RankGame([]domain.ScoreEntry{
		entry("a", 10, 0),
		entry("b", 30, 1),
		entry("c", 20, 2),
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Username)
	assert.Equal(t, "c", ranked[1].Username)
	assert.Equal(t, "a", ranked[2].Username)
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRankGame_TieBreaks(t *testing.T) {
	tests := []struct {
		name    string
		entries []domain.ScoreEntry
		want    []string
	}{
		{
			name:    "earlier highscore wins",
			entries: []domain.ScoreEntry{entry("late", 50, 10), entry("early", 50, 5)},
			want:    []string{"early", "late"},
		},
		{
			name: "earlier first play wins when reached together",
			entries: func() []domain.ScoreEntry {
				a, b := entry("veteran", 50, 5), entry("rookie", 50, 5)
				a.FirstPlayed = base.Add(-time.Hour)
				return []domain.ScoreEntry{b, a}
			}(),
			want: []string{"veteran", "rookie"},
		},
		{
			name:    "name breaks full ties",
			entries: []domain.ScoreEntry{entry("Zed", 50, 5), entry("amy", 50, 5)},
			want:    []string{"amy", "Zed"},
		},
		{
			name: "missing highscoreAt falls back to lastPlayed",
			entries: func() []domain.ScoreEntry {
				legacy := entry("legacy", 50, 1)
				legacy.HighscoreAt = time.Time{}
				return []domain.ScoreEntry{entry("modern", 50, 3), legacy}
			}(),
			want: []string{"legacy", "modern"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := RankGame(tt.entries)
			got := make([]string, len(ranked))
			for i, r := range ranked {
				got[i] = r.Username
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankGame_CollapsesDuplicates(t *testing.T) {
	ranked := RankGame([]domain.ScoreEntry{
		entry("Max", 10, 0),
		entry("max", 40, 1),
		entry("Eve", 20, 2),
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, "max", ranked[0].Username)
	assert.Equal(t, int64(40), ranked[0].Highscore)
}

func TestRankGame_Empty(t *testing.T) {
	assert.Empty(t, RankGame(nil))
}

func TestGlobal_ThreeWinnersNoOverlap(t *testing.T) {
	scores := map[string][]domain.ScoreEntry{
		"bubble-shooter": {entry("ann", 100, 0)},
		"flappy-santa":   {entry("ben", 100, 0)},
		"gift-catcher":   {entry("cid", 100, 0)},
	}

	rows := Global([]string{"bubble-shooter", "flappy-santa", "gift-catcher"}, scores)

	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, 1, r.FirstPlaces)
		assert.Equal(t, 0, r.SecondPlaces)
		assert.Equal(t, 0, r.ThirdPlaces)
		assert.Equal(t, 1, r.GamesPlayed)
	}
}

func TestGlobal_AggregatesPlacements(t *testing.T) {
	scores := map[string][]domain.ScoreEntry{
		"puzzle": {
			entry("ann", 300, 0),
			entry("ben", 200, 1),
			entry("cid", 100, 2),
			entry("dan", 50, 3),
		},
		"word-search": {
			entry("ben", 90, 0),
			entry("Ann", 80, 1),
		},
		"retired-game": {
			entry("dan", 9999, 0),
		},
	}

	rows := Global([]string{"puzzle", "word-search"}, scores)
	require.Len(t, rows, 4)

	assert.Equal(t, "ann", rows[0].Username)
	assert.Equal(t, 1, rows[0].FirstPlaces)
	assert.Equal(t, 1, rows[0].SecondPlaces)
	assert.Equal(t, int64(380), rows[0].TotalScore)
	assert.Equal(t, 2, rows[0].GamesPlayed)

	assert.Equal(t, "ben", rows[1].Username)
	assert.Equal(t, 1, rows[1].FirstPlaces)
	assert.Equal(t, 1, rows[1].SecondPlaces)
	assert.Equal(t, int64(290), rows[1].TotalScore)

	assert.Equal(t, "cid", rows[2].Username)
	assert.Equal(t, 1, rows[2].ThirdPlaces)

	assert.Equal(t, "dan", rows[3].Username)
	assert.Equal(t, int64(50), rows[3].TotalScore, "inactive games do not count")
	assert.Equal(t, 4, rows[3].Rank)
}

func TestGlobal_TotalOrder(t *testing.T) {
	scores := map[string][]domain.ScoreEntry{
		"g1": {entry("a", 9, 0), entry("b", 8, 0), entry("c", 7, 0), entry("d", 6, 0)},
		"g2": {entry("d", 9, 0), entry("c", 8, 0), entry("b", 7, 0)},
		"g3": {entry("c", 9, 0), entry("a", 1, 0), entry("e", 5, 0)},
		"g4": {entry("e", 3, 0), entry("f", 3, 1)},
	}

	rows := Global(nil, scores)
	ordered := sort.SliceIsSorted(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.FirstPlaces != b.FirstPlaces {
			return a.FirstPlaces > b.FirstPlaces
		}
		if a.SecondPlaces != b.SecondPlaces {
			return a.SecondPlaces > b.SecondPlaces
		}
		if a.ThirdPlaces != b.ThirdPlaces {
			return a.ThirdPlaces > b.ThirdPlaces
		}
		return a.TotalScore > b.TotalScore
	})
	assert.True(t, ordered)
	assert.Len(t, rows, 6)
}

func TestGlobal_MissingGamesContributeNothing(t *testing.T) {
	rows := Global([]string{"nobody-played-this"}, map[string][]domain.ScoreEntry{})
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestGlobal_DuplicateActiveGameCountsOnce(t *testing.T) {
	scores := map[string][]domain.ScoreEntry{"memory": {entry("ann", 10, 0)}}
	rows := Global([]string{"memory", "memory"}, scores)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].FirstPlaces)
}

func TestPlacements(t *testing.T) {
	scores := map[string][]domain.ScoreEntry{
		"g1": {entry("ann", 10, 0), entry("ben", 5, 0)},
		"g2": {entry("ben", 10, 0), entry("ann", 5, 0)},
		"g3": {entry("ann", 10, 0)},
	}

	p := Placements(nil, scores, "ANN")
	assert.Equal(t, domain.Placements{First: 2, Second: 1}, p)
	assert.Equal(t, 3, p.Top3())

	assert.Equal(t, domain.Placements{}, Placements(nil, scores, "ghost"))
}
