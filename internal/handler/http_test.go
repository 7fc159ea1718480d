package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/advent-arcade/internal/auth"
	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/games"
	"github.com/advent-arcade/internal/scores"
	"github.com/advent-arcade/internal/service"
	"github.com/advent-arcade/internal/storage"
	"github.com/advent-arcade/internal/users"
	"github.com/advent-arcade/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Auth.BcryptCost = 4

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := storage.NewMemoryStore()
	scoreStore := scores.NewStore(docs, logger)
	userStore := users.NewStore(docs, scoreStore, &cfg.Auth, &cfg.Calendar, logger)
	catalog := games.NewCatalog(docs, logger)
	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Hour)

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	svc := service.NewArcadeService(scoreStore, userStore, catalog, tokens, hub, &cfg.Leaderboard, logger)
	return NewHandler(svc, hub, tokens, cfg.Server.AllowedOrigins, logger).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, token string) (int, testResponse) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func register(t *testing.T, h http.Handler, name string) domain.Session {
	t.Helper()
	code, resp := do(t, h, http.MethodPost, "/api/users/register", domain.RegisterRequest{DisplayName: name, Password: "password1"}, "")
	require.Equal(t, http.StatusCreated, code, resp.Error)
	return decode[domain.Session](t, resp.Data)
}

func TestHealth(t *testing.T) {
	h := setupRouter(t)

	code, resp := do(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _ = do(t, h, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestSubmitAndReadScores(t *testing.T) {
	h := setupRouter(t)

	for _, s := range []domain.ScoreSubmission{
		{GameName: "bubble-shooter", Username: "Max", Score: 100, PlayTime: 30},
		{GameName: "bubble-shooter", Username: "max", Score: 80, PlayTime: 20},
		{GameName: "bubble-shooter", Username: "Ann", Score: 120, PlayTime: 5},
		{GameName: "bubble-shooter", Username: "Cid", Score: 10, PlayTime: 5},
	} {
		code, resp := do(t, h, http.MethodPost, "/api/stats", s, "")
		require.Equal(t, http.StatusOK, code, resp.Error)
	}

	code, resp := do(t, h, http.MethodGet, "/api/stats/bubble-shooter/all", nil, "")
	require.Equal(t, http.StatusOK, code)
	all := decode[[]domain.RankedEntry](t, resp.Data)
	require.Len(t, all, 3)
	assert.Equal(t, "Ann", all[0].Username)
	assert.Equal(t, "Max", all[1].Username)
	assert.Equal(t, int64(100), all[1].Highscore)
	assert.Equal(t, int64(80), all[1].LastScore)
	assert.Equal(t, int64(50), all[1].PlayTime)
	assert.Equal(t, int64(2), all[1].GamesPlayed)

	code, resp = do(t, h, http.MethodGet, "/api/stats/bubble-shooter/top?limit=2", nil, "")
	require.Equal(t, http.StatusOK, code)
	top := decode[[]domain.RankedEntry](t, resp.Data)
	require.Len(t, top, 2)
	assert.Equal(t, 2, top[1].Rank)

	code, resp = do(t, h, http.MethodGet, "/api/stats/unknown-game/all", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]domain.RankedEntry](t, resp.Data))

	code, resp = do(t, h, http.MethodGet, "/api/leaderboard/global", nil, "")
	require.Equal(t, http.StatusOK, code)
	rows := decode[[]domain.GlobalLeaderboardRow](t, resp.Data)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ann", rows[0].Username)
	assert.Equal(t, 1, rows[0].FirstPlaces)
	assert.Equal(t, 1, rows[1].SecondPlaces)
	assert.Equal(t, 1, rows[2].ThirdPlaces)
}

func TestSubmitScore_BadRequests(t *testing.T) {
	h := setupRouter(t)

	code, resp := do(t, h, http.MethodPost, "/api/stats", "{broken", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	code, _ = do(t, h, http.MethodPost, "/api/stats", domain.ScoreSubmission{GameName: "puzzle", Username: "Max", Score: -3}, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodPost, "/api/stats", domain.ScoreSubmission{Username: "Max", Score: 3}, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, h, http.MethodGet, "/api/stats/puzzle/top?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, http.MethodGet, "/api/stats/puzzle/top?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListGames(t *testing.T) {
	h := setupRouter(t)

	code, resp := do(t, h, http.MethodGet, "/api/games?active=true", nil, "")
	require.Equal(t, http.StatusOK, code)
	list := decode[[]domain.Game](t, resp.Data)
	assert.NotEmpty(t, list)
	for _, g := range list {
		assert.True(t, g.Active)
	}

	code, _ = do(t, h, http.MethodGet, "/api/games?active=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRegisterAndLogin(t *testing.T) {
	h := setupRouter(t)
	sess := register(t, h, "Max")
	assert.NotEmpty(t, sess.Token)
	assert.Empty(t, sess.Profile.PasswordHash)

	code, resp := do(t, h, http.MethodPost, "/api/users/register", domain.RegisterRequest{DisplayName: "MAX", Password: "password1"}, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)

	code, _ = do(t, h, http.MethodPost, "/api/users/register", domain.RegisterRequest{DisplayName: "🎄🎄🎄", Password: "password1"}, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, wrong := do(t, h, http.MethodPost, "/api/users/login", domain.RegisterRequest{DisplayName: "Max", Password: "nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, unknown := do(t, h, http.MethodPost, "/api/users/login", domain.RegisterRequest{DisplayName: "Nobody", Password: "password1"}, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, wrong.Error, unknown.Error)

	code, resp = do(t, h, http.MethodPost, "/api/users/login", domain.RegisterRequest{DisplayName: "max", Password: "password1"}, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sess.Profile.UserID, decode[domain.Session](t, resp.Data).Profile.UserID)
}

func TestProfileRoutesRequireToken(t *testing.T) {
	h := setupRouter(t)

	code, _ := do(t, h, http.MethodGet, "/api/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, h, http.MethodGet, "/api/users/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, code)

	sess := register(t, h, "Max")
	code, resp := do(t, h, http.MethodGet, "/api/users/me", nil, sess.Token)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(resp.Data), `"password"`)
	assert.Equal(t, "Max", decode[domain.UserProfile](t, resp.Data).DisplayName)
}

func TestChangeNameMigratesScores(t *testing.T) {
	h := setupRouter(t)
	sess := register(t, h, "Max")
	register(t, h, "Ann")

	code, _ := do(t, h, http.MethodPost, "/api/stats", domain.ScoreSubmission{GameName: "puzzle", Username: "Max", Score: 70}, "")
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPut, "/api/users/me/name", domain.ChangeNameRequest{DisplayName: "ann"}, sess.Token)
	assert.Equal(t, http.StatusConflict, code)

	code, resp := do(t, h, http.MethodPut, "/api/users/me/name", domain.ChangeNameRequest{DisplayName: "Santa"}, sess.Token)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, 1, decode[domain.UserProfile](t, resp.Data).UsernameChanges)

	code, resp = do(t, h, http.MethodGet, "/api/stats/puzzle/all", nil, "")
	require.Equal(t, http.StatusOK, code)
	entries := decode[[]domain.RankedEntry](t, resp.Data)
	require.Len(t, entries, 1)
	assert.Equal(t, "Santa", entries[0].Username)
	assert.Equal(t, int64(70), entries[0].Highscore)

}

func TestChangePassword(t *testing.T) {
	h := setupRouter(t)
	sess := register(t, h, "Max")

	code, _ := do(t, h, http.MethodPut, "/api/users/me/password", domain.ChangePasswordRequest{CurrentPassword: "wrong-one", NewPassword: "another1"}, sess.Token)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, h, http.MethodPut, "/api/users/me/password", domain.ChangePasswordRequest{CurrentPassword: "password1", NewPassword: "another1"}, sess.Token)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/api/users/login", domain.RegisterRequest{DisplayName: "Max", Password: "another1"}, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAvatars(t *testing.T) {
	h := setupRouter(t)
	sess := register(t, h, "Max")
	register(t, h, "Ann")

	code, _ := do(t, h, http.MethodPut, "/api/users/me/avatar", domain.Avatar{Style: "no-such-style"}, sess.Token)
	assert.Equal(t, http.StatusBadRequest, code)

	avatar := domain.Avatar{Style: "pixel-art", Options: map[string]string{"hat": "santa"}}
	code, _ = do(t, h, http.MethodPut, "/api/users/me/avatar", avatar, sess.Token)
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, h, http.MethodGet, "/api/users/avatars?names=max,ghost&name=Ann", nil, "")
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]domain.Avatar](t, resp.Data)
	assert.Len(t, got, 2)
	assert.Equal(t, avatar, got["max"])
	assert.Equal(t, users.DefaultAvatarStyle, got["Ann"].Style)
}

func TestStarsAndDoors(t *testing.T) {
	h := setupRouter(t)
	sess := register(t, h, "Max")

	code, _ := do(t, h, http.MethodPost, "/api/stats", domain.ScoreSubmission{GameName: "puzzle", Username: "Max", Score: 250, PlayTime: 240}, "")
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, h, http.MethodGet, "/api/users/me/stars", nil, sess.Token)
	require.Equal(t, http.StatusOK, code)
	st := decode[domain.Stars](t, resp.Data)
	assert.Equal(t, 25, st.Breakdown.GameScore)
	assert.Equal(t, 50, st.Breakdown.Mastery)
	assert.Equal(t, 2, st.Breakdown.Dedication)

	code, _ = do(t, h, http.MethodPost, "/api/users/me/doors/25", nil, sess.Token)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, http.MethodPost, "/api/users/me/doors/first", nil, sess.Token)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWebSocketStats(t *testing.T) {
	h := setupRouter(t)

	code, resp := do(t, h, http.MethodGet, "/api/ws/stats", nil, "")
	require.Equal(t, http.StatusOK, code)
	stats := decode[websocket.Stats](t, resp.Data)
	assert.Zero(t, stats.Connections)
}

func TestMetricsAndCORS(t *testing.T) {
	h := setupRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", "https://advent.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
