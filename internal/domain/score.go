package domain

import (
	"strings"
	"time"
)

// ScoreEntry is a player's best-score record for one game
type ScoreEntry struct {
	Username    string    `json:"username"`
	Highscore   int64     `json:"highscore"`
	LastScore   int64     `json:"lastScore"`
	PlayTime    int64     `json:"playTime"`
	GamesPlayed int64     `json:"gamesPlayed"`
	FirstPlayed time.Time `json:"firstPlayed"`
	LastPlayed  time.Time `json:"lastPlayed"`
	HighscoreAt time.Time `json:"highscoreAt"`
}

// RankedEntry is a ScoreEntry with its 1-based position in a game ranking
type RankedEntry struct {
	Rank int `json:"rank"`
	ScoreEntry
}

// ScoreSubmission represents a request to submit a score
type ScoreSubmission struct {
	GameName string `json:"gameName"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	PlayTime int64  `json:"playTime"`
}

// BatchScoreSubmission represents multiple score submissions
type BatchScoreSubmission struct {
	Scores []ScoreSubmission `json:"scores"`
}

// SubmitResult describes the stored entry after a submission
type SubmitResult struct {
	Entry        ScoreEntry `json:"entry"`
	NewHighscore bool       `json:"newHighscore"`
	Rank         int        `json:"rank"`
}

// GlobalLeaderboardRow aggregates one player's placements across all active
// games. It is derived on every request and never stored.
type GlobalLeaderboardRow struct {
	Rank         int    `json:"rank"`
	Username     string `json:"username"`
	FirstPlaces  int    `json:"firstPlaces"`
	SecondPlaces int    `json:"secondPlaces"`
	ThirdPlaces  int    `json:"thirdPlaces"`
	TotalScore   int64  `json:"totalScore"`
	GamesPlayed  int    `json:"gamesPlayed"`
}

// Placements counts a single player's podium finishes
type Placements struct {
	First  int `json:"first"`
	Second int `json:"second"`
	Third  int `json:"third"`
}

// Top3 returns the number of podium finishes of any rank
func (p Placements) Top3() int {
	return p.First + p.Second + p.Third
}

// Game is an entry of the game catalog
type Game struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Door   int    `json:"door,omitempty"`
	Active bool   `json:"active"`
}

// FoldName returns the case-insensitive key used to compare usernames
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName reports whether two usernames refer to the same player
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}
