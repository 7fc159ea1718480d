package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/advent-arcade/internal/auth"
	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/games"
	"github.com/advent-arcade/internal/scores"
	"github.com/advent-arcade/internal/storage"
	"github.com/advent-arcade/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu     sync.Mutex
	games  []string
	top    [][]domain.RankedEntry
	global [][]domain.GlobalLeaderboardRow
}

func (h *fakeHub) BroadcastGameUpdate(game string, _ domain.SubmitResult, entries []domain.RankedEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.games = append(h.games, game)
	h.top = append(h.top, entries)
}

func (h *fakeHub) BroadcastGlobalUpdate(rows []domain.GlobalLeaderboardRow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.global = append(h.global, rows)
}

func newTestService(t *testing.T) (*ArcadeService, *fakeHub, *auth.JWTService) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Auth.BcryptCost = 4
	cfg.Leaderboard.DefaultLimit = 3
	cfg.Leaderboard.MaxLimit = 5
	cfg.Leaderboard.BroadcastLimit = 2

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := storage.NewMemoryStore()
	scoreStore := scores.NewStore(docs, logger)
	userStore := users.NewStore(docs, scoreStore, &cfg.Auth, &cfg.Calendar, logger)
	catalog := games.NewCatalog(docs, logger)
	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour)
	hub := &fakeHub{}

	return NewArcadeService(scoreStore, userStore, catalog, tokens, hub, &cfg.Leaderboard, logger), hub, tokens
}

func submit(t *testing.T, s *ArcadeService, game, user string, score, playTime int64) domain.SubmitResult {
	t.Helper()
	res, err := s.SubmitScore(context.Background(), domain.ScoreSubmission{
		GameName: game,
		Username: user,
		Score:    score,
		PlayTime: playTime,
	})
	require.NoError(t, err)
	return res
}

func TestSubmitScore_Example(t *testing.T) {
	s, hub, _ := newTestService(t)

	submit(t, s, "bubble-shooter", "Max", 100, 30)
	res := submit(t, s, "bubble-shooter", "Max", 80, 20)

	assert.Equal(t, int64(100), res.Entry.Highscore)
	assert.Equal(t, int64(80), res.Entry.LastScore)
	assert.Equal(t, int64(50), res.Entry.PlayTime)
	assert.Equal(t, int64(2), res.Entry.GamesPlayed)

	assert.Equal(t, []string{"bubble-shooter", "bubble-shooter"}, hub.games)
	require.Len(t, hub.global, 2)
	require.Len(t, hub.global[1], 1)
	assert.Equal(t, 1, hub.global[1][0].FirstPlaces)
}

func TestSubmitScore_Validation(t *testing.T) {
	s, hub, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		sub  domain.ScoreSubmission
		want error
	}{
		{"missing game", domain.ScoreSubmission{Username: "Max", Score: 1}, domain.ErrInvalidRequest},
		{"bad game name", domain.ScoreSubmission{GameName: "../etc", Username: "Max", Score: 1}, domain.ErrInvalidRequest},
		{"missing user", domain.ScoreSubmission{GameName: "puzzle", Username: "  ", Score: 1}, domain.ErrInvalidRequest},
		{"negative score", domain.ScoreSubmission{GameName: "puzzle", Username: "Max", Score: -1}, domain.ErrInvalidScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SubmitScore(ctx, tt.sub)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, hub.games)
}

func TestSubmitScore_BroadcastIsClamped(t *testing.T) {
	s, hub, _ := newTestService(t)

	for i, name := range []string{"a", "b", "c", "d"} {
		submit(t, s, "puzzle", name, int64(10*(i+1)), 1)
	}

	last := hub.top[len(hub.top)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].Username)
	assert.Equal(t, "c", last[1].Username)
}

func TestSubmitScore_UpdatesRegisteredProfile(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, domain.RegisterRequest{DisplayName: "Max", Password: "password1"})
	require.NoError(t, err)

	submit(t, s, "puzzle", "max", 500, 240)
	submit(t, s, "memory", "MAX", 100, 120)
	submit(t, s, "memory", "guest", 50, 10)

	p, err := s.Profile(ctx, sess.Profile.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stats.TotalGamesPlayed)
	assert.Equal(t, int64(600), p.Stats.TotalScore)
	assert.Equal(t, 2, p.Stats.UniqueGamesPlayed)
	assert.Equal(t, 2, p.Stats.Top1Count)
	assert.Equal(t, 2, p.Stats.Top3Count)
	assert.Equal(t, "puzzle", p.Stats.BestGame)

	st, err := s.Stars(ctx, sess.Profile.UserID)
	require.NoError(t, err)
	assert.Equal(t, p.Stars, st)
	assert.Equal(t, 100, st.Breakdown.Mastery)
	assert.Equal(t, 60, st.Breakdown.GameScore)
}

func TestSubmitScoreBatch(t *testing.T) {
	s, _, _ := newTestService(t)

	n, err := s.SubmitScoreBatch(context.Background(), domain.BatchScoreSubmission{Scores: []domain.ScoreSubmission{
		{GameName: "puzzle", Username: "a", Score: 1},
		{GameName: "", Username: "b", Score: 1},
		{GameName: "puzzle", Username: "c", Score: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.GameScores(context.Background(), "puzzle")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTopN_Limits(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		submit(t, s, "memory", string(rune('a'+i)), int64(i), 1)
	}

	def, err := s.TopN(ctx, "memory", 0)
	require.NoError(t, err)
	assert.Len(t, def, 3)

	capped, err := s.TopN(ctx, "memory", 50)
	require.NoError(t, err)
	assert.Len(t, capped, 5)
	assert.Equal(t, int64(7), capped[0].Highscore)

	two, err := s.TopN(ctx, "memory", 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestGlobalLeaderboard_ThreeWinners(t *testing.T) {
	s, _, _ := newTestService(t)

	submit(t, s, "puzzle", "ann", 100, 1)
	submit(t, s, "memory", "ben", 100, 1)
	submit(t, s, "sleigh-run", "cid", 100, 1)

	rows, err := s.GlobalLeaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, 1, r.FirstPlaces)
		assert.Zero(t, r.SecondPlaces)
	}
}

func TestGlobalLeaderboard_IgnoresGamesOutsideCatalog(t *testing.T) {
	s, _, _ := newTestService(t)

	submit(t, s, "puzzle", "ann", 10, 1)
	submit(t, s, "homebrew", "ben", 1000, 1)

	rows, err := s.GlobalLeaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ann", rows[0].Username)
}

func TestRegisterLoginAndToken(t *testing.T) {
	s, _, tokens := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, domain.RegisterRequest{DisplayName: "Max", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Empty(t, sess.Profile.PasswordHash)

	claims, err := tokens.ValidateToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.UserID, claims.UserID)

	_, err = s.Register(ctx, domain.RegisterRequest{DisplayName: "MAX", Password: "password1"})
	assert.ErrorIs(t, err, domain.ErrNameTaken)

	_, err = s.Login(ctx, domain.RegisterRequest{DisplayName: "max", Password: "nope-nope"})
	assert.ErrorIs(t, err, domain.ErrAuth)

	again, err := s.Login(ctx, domain.RegisterRequest{DisplayName: "max", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.UserID, again.Profile.UserID)
}

func TestChangeDisplayName_MigratesScores(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, domain.RegisterRequest{DisplayName: "Max", Password: "password1"})
	require.NoError(t, err)
	submit(t, s, "puzzle", "Max", 70, 1)
	submit(t, s, "memory", "Max", 30, 1)

	_, err = s.ChangeDisplayName(ctx, sess.Profile.UserID, "Santa")
	require.NoError(t, err)

	for _, game := range []string{"puzzle", "memory"} {
		entries, err := s.GameScores(ctx, game)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Santa", entries[0].Username)
	}

	// new submissions under the new name still reach the profile
	submit(t, s, "puzzle", "santa", 10, 1)
	p, err := s.Profile(ctx, sess.Profile.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Stats.TotalGamesPlayed)
}
