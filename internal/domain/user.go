package domain

import "time"

// UserProfile is the persisted account of a registered player
type UserProfile struct {
	UserID          string           `json:"userId"`
	DisplayName     string           `json:"displayName"`
	PasswordHash    string           `json:"password,omitempty"`
	Stats           UserStats        `json:"stats"`
	Stars           Stars            `json:"stars"`
	Avatar          Avatar           `json:"avatar"`
	Achievements    []string         `json:"achievements"`
	UnlockedItems   []string         `json:"unlockedItems"`
	DoorsOpened     []int            `json:"doorsOpened"`
	UsernameHistory []UsernameChange `json:"usernameHistory"`
	UsernameChanges int              `json:"usernameChanges"`
	CreatedAt       time.Time        `json:"createdAt"`
	LastActive      time.Time        `json:"lastActive"`
}

// Public returns a copy of the profile with the password hash stripped
func (u UserProfile) Public() UserProfile {
	u.PasswordHash = ""
	return u
}

// UsernameChange is an audit record of a display name change
type UsernameChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changedAt"`
}

// UserStats holds a player's aggregate counters
type UserStats struct {
	TotalGamesPlayed  int64                `json:"totalGamesPlayed"`
	TotalPlayTime     int64                `json:"totalPlayTime"`
	TotalScore        int64                `json:"totalScore"`
	CurrentStreak     int                  `json:"currentStreak"`
	LongestStreak     int                  `json:"longestStreak"`
	LastPlayedDay     string               `json:"lastPlayedDay,omitempty"`
	DailyLoginCount   int                  `json:"dailyLoginCount"`
	LastLoginDay      string               `json:"lastLoginDay,omitempty"`
	FavoriteGame      string               `json:"favoriteGame,omitempty"`
	BestGame          string               `json:"bestGame,omitempty"`
	WorstGame         string               `json:"worstGame,omitempty"`
	Top1Count         int                  `json:"top1Count"`
	Top3Count         int                  `json:"top3Count"`
	ImprovementRate   float64              `json:"improvementRate"`
	DoorsOpened       int                  `json:"doorsOpened"`
	UniqueGamesPlayed int                  `json:"uniqueGamesPlayed"`
	AchievementCount  int                  `json:"achievementCount"`
	Games             map[string]GameStats `json:"games"`
}

// GameStats holds a player's counters for a single game
type GameStats struct {
	Plays     int64 `json:"plays"`
	BestScore int64 `json:"bestScore"`
	PlayTime  int64 `json:"playTime"`
}

// GameResult is one completed game as reported by a client
type GameResult struct {
	Game     string
	Score    int64
	PlayTime int64
	At       time.Time
}

// Stars is the derived gamification total and its per-category breakdown
type Stars struct {
	Total     int            `json:"total"`
	Breakdown StarsBreakdown `json:"breakdown"`
}

// StarsBreakdown lists each capped category of the stars total
type StarsBreakdown struct {
	GameScore    int `json:"gameScore"`
	Mastery      int `json:"mastery"`
	Consistency  int `json:"consistency"`
	Improvement  int `json:"improvement"`
	Engagement   int `json:"engagement"`
	Variety      int `json:"variety"`
	Dedication   int `json:"dedication"`
	Achievements int `json:"achievements"`
}

// Avatar is the cosmetic avatar selection of a player
type Avatar struct {
	Style   string            `json:"style"`
	Options map[string]string `json:"options,omitempty"`
}

// RegisterRequest represents a registration or login payload
type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

// ChangeNameRequest represents a display name change payload
type ChangeNameRequest struct {
	DisplayName string `json:"displayName"`
}

// ChangePasswordRequest represents a password change payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Session is returned after a successful login
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Profile   UserProfile `json:"profile"`
}
