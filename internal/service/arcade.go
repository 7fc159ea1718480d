// Package service wires the score, user and catalog stores into the
// operations exposed over HTTP and Kafka.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/games"
	"github.com/advent-arcade/internal/metrics"
	"github.com/advent-arcade/internal/ranking"
	"github.com/advent-arcade/internal/scores"
	"github.com/advent-arcade/internal/stars"
	"github.com/advent-arcade/internal/users"
)

var gameNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

const maxUsernameLength = 64

// Broadcaster receives leaderboard changes for live clients
type Broadcaster interface {
	BroadcastGameUpdate(game string, latest domain.SubmitResult, entries []domain.RankedEntry)
	BroadcastGlobalUpdate(rows []domain.GlobalLeaderboardRow)
}

// TokenIssuer creates session tokens
type TokenIssuer interface {
	GenerateToken(userID, displayName string) (string, time.Time, error)
}

// ArcadeService provides the business logic of the arcade
type ArcadeService struct {
	scores  *scores.Store
	users   *users.Store
	catalog *games.Catalog
	tokens  TokenIssuer
	hub     Broadcaster
	config  *config.LeaderboardConfig
	logger  *slog.Logger
}

// NewArcadeService creates a new arcade service. hub may be nil.
func NewArcadeService(
	scoreStore *scores.Store,
	userStore *users.Store,
	catalog *games.Catalog,
	tokens TokenIssuer,
	hub Broadcaster,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *ArcadeService {
	return &ArcadeService{
		scores:  scoreStore,
		users:   userStore,
		catalog: catalog,
		tokens:  tokens,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

func validateSubmission(sub *domain.ScoreSubmission) error {
	sub.GameName = strings.TrimSpace(sub.GameName)
	sub.Username = strings.TrimSpace(sub.Username)

	if !gameNamePattern.MatchString(sub.GameName) {
		return fmt.Errorf("%w: invalid gameName %q", domain.ErrInvalidRequest, sub.GameName)
	}
	if sub.Username == "" || utf8.RuneCountInString(sub.Username) > maxUsernameLength {
		return fmt.Errorf("%w: username is required", domain.ErrInvalidRequest)
	}
	if sub.Score < 0 {
		return domain.ErrInvalidScore
	}
	return nil
}

// SubmitScore stores a score reported over HTTP
func (s *ArcadeService) SubmitScore(ctx context.Context, sub domain.ScoreSubmission) (domain.SubmitResult, error) {
	return s.submit(ctx, sub, metrics.SourceHTTP)
}

// SubmitScoreBatch stores several scores and returns how many were accepted.
// Invalid or failing submissions are logged and skipped.
func (s *ArcadeService) SubmitScoreBatch(ctx context.Context, batch domain.BatchScoreSubmission) (int, error) {
	accepted := 0
	for _, sub := range batch.Scores {
		if _, err := s.submit(ctx, sub, metrics.SourceKafka); err != nil {
			s.logger.Error("failed to submit score in batch",
				"game", sub.GameName,
				"username", sub.Username,
				"error", err,
			)
			continue
		}
		accepted++
	}
	return accepted, nil
}

func (s *ArcadeService) submit(ctx context.Context, sub domain.ScoreSubmission, source string) (domain.SubmitResult, error) {
	if err := validateSubmission(&sub); err != nil {
		return domain.SubmitResult{}, err
	}

	result, err := s.scores.SubmitScore(ctx, sub.GameName, sub.Username, sub.Score, sub.PlayTime)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("submitting score: %w", err)
	}
	metrics.RecordSubmission(sub.GameName, source, result.NewHighscore)

	// The score is stored at this point. Profile and broadcast failures are
	// logged only.
	all, err := s.scores.AllScores(ctx)
	if err != nil {
		s.logger.Warn("failed to reload scores after submit", "error", err)
		return result, nil
	}
	active, err := s.catalog.Active(ctx)
	if err != nil {
		s.logger.Warn("failed to load active games", "error", err)
		active = nil
	}

	s.recordProfileGame(ctx, sub, active, all)
	s.broadcast(sub.GameName, result, active, all)

	return result, nil
}

func (s *ArcadeService) recordProfileGame(ctx context.Context, sub domain.ScoreSubmission, active []string, all map[string][]domain.ScoreEntry) {
	placements := ranking.Placements(active, all, sub.Username)
	_, err := s.users.RecordGame(ctx, sub.Username, domain.GameResult{
		Game:     sub.GameName,
		Score:    sub.Score,
		PlayTime: sub.PlayTime,
	}, placements)
	switch {
	case err == nil, errors.Is(err, domain.ErrUserNotFound):
	default:
		s.logger.Error("failed to update profile stats", "username", sub.Username, "error", err)
	}
}

func (s *ArcadeService) broadcast(game string, result domain.SubmitResult, active []string, all map[string][]domain.ScoreEntry) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastGameUpdate(game, result, s.clampRanked(ranking.RankGame(all[game]), s.config.BroadcastLimit))
	s.hub.BroadcastGlobalUpdate(s.buildGlobal(active, all))
}

func (s *ArcadeService) clampRanked(entries []domain.RankedEntry, n int) []domain.RankedEntry {
	if n > 0 && n < len(entries) {
		return entries[:n]
	}
	return entries
}

func (s *ArcadeService) buildGlobal(active []string, all map[string][]domain.ScoreEntry) []domain.GlobalLeaderboardRow {
	start := time.Now()
	rows := ranking.Global(active, all)
	metrics.ObserveLeaderboardBuild(time.Since(start))
	return rows
}

func (s *ArcadeService) limit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}

// GameScores returns every entry of a game, best first
func (s *ArcadeService) GameScores(ctx context.Context, game string) ([]domain.RankedEntry, error) {
	entries, err := s.scores.GameScores(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("getting game scores: %w", err)
	}
	return entries, nil
}

// TopN returns the best entries of a game. The limit falls back to the
// configured default and is capped at the configured maximum.
func (s *ArcadeService) TopN(ctx context.Context, game string, n int) ([]domain.RankedEntry, error) {
	entries, err := s.scores.TopN(ctx, game, s.limit(n))
	if err != nil {
		return nil, fmt.Errorf("getting top scores: %w", err)
	}
	return entries, nil
}

// GlobalLeaderboard ranks players across the active games
func (s *ArcadeService) GlobalLeaderboard(ctx context.Context) ([]domain.GlobalLeaderboardRow, error) {
	all, err := s.scores.AllScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading scores: %w", err)
	}
	active, err := s.catalog.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active games: %w", err)
	}
	return s.buildGlobal(active, all), nil
}

// Games returns the game catalog
func (s *ArcadeService) Games(ctx context.Context, activeOnly bool) ([]domain.Game, error) {
	return s.catalog.List(ctx, activeOnly)
}

func (s *ArcadeService) session(profile domain.UserProfile) (domain.Session, error) {
	token, expiresAt, err := s.tokens.GenerateToken(profile.UserID, profile.DisplayName)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issuing token: %w", err)
	}
	return domain.Session{Token: token, ExpiresAt: expiresAt, Profile: profile}, nil
}

// Register creates an account and signs the new user in
func (s *ArcadeService) Register(ctx context.Context, req domain.RegisterRequest) (domain.Session, error) {
	profile, err := s.users.Register(ctx, req.DisplayName, req.Password)
	metrics.RecordRegistration(err == nil)
	if err != nil {
		return domain.Session{}, err
	}
	return s.session(profile)
}

// Login verifies credentials and issues a session token
func (s *ArcadeService) Login(ctx context.Context, req domain.RegisterRequest) (domain.Session, error) {
	profile, err := s.users.Login(ctx, req.DisplayName, req.Password)
	metrics.RecordLogin(err == nil)
	if err != nil {
		return domain.Session{}, err
	}
	return s.session(profile)
}

// Profile returns the profile of userID
func (s *ArcadeService) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	return s.users.Get(ctx, userID)
}

// ChangeDisplayName renames a user together with their score entries
func (s *ArcadeService) ChangeDisplayName(ctx context.Context, userID, displayName string) (domain.UserProfile, error) {
	return s.users.UpdateDisplayName(ctx, userID, displayName)
}

// ChangePassword replaces a user's password
func (s *ArcadeService) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	return s.users.UpdatePassword(ctx, userID, req.CurrentPassword, req.NewPassword)
}

// UpdateAvatar replaces a user's avatar selection
func (s *ArcadeService) UpdateAvatar(ctx context.Context, userID string, avatar domain.Avatar) (domain.UserProfile, error) {
	return s.users.UpdateAvatar(ctx, userID, avatar)
}

// Avatars looks up avatars by display name
func (s *ArcadeService) Avatars(ctx context.Context, names []string) (map[string]domain.Avatar, error) {
	return s.users.Avatars(ctx, names)
}

// Stars recomputes the stars of userID from their current stats
func (s *ArcadeService) Stars(ctx context.Context, userID string) (domain.Stars, error) {
	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.Stars{}, err
	}
	return stars.Calculate(profile.Stats), nil
}

// OpenDoor opens an advent calendar door
func (s *ArcadeService) OpenDoor(ctx context.Context, userID string, day int) (domain.UserProfile, error) {
	return s.users.OpenDoor(ctx, userID, day)
}
