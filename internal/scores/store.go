// Package scores keeps the best-score record of every player per game in a
// single "stats" document.
package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/ranking"
	"github.com/advent-arcade/internal/storage"
)

// Store provides score operations on top of a document store
type Store struct {
	docs   storage.Store
	logger *slog.Logger
	now    func() time.Time

	// mu serializes read-modify-write cycles on the stats document
	mu sync.Mutex
}

// NewStore creates a new score store
func NewStore(docs storage.Store, logger *slog.Logger) *Store {
	return &Store{
		docs:   docs,
		logger: logger,
		now:    time.Now,
	}
}

// document maps a game name to its encoded entry list. Games are decoded
// lazily so one damaged game does not hide the others.
type document map[string]json.RawMessage

func (s *Store) load(ctx context.Context) (document, error) {
	data, err := s.docs.Read(ctx, storage.KeyStats)
	if errors.Is(err, storage.ErrNotFound) {
		return document{}, nil
	}
	if err != nil {
		return nil, domain.Persistence("reading stats", err)
	}

	doc := document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.Persistence("decoding stats", err)
	}
	return doc, nil
}

func (s *Store) save(ctx context.Context, doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.Persistence("encoding stats", err)
	}
	if err := s.docs.Write(ctx, storage.KeyStats, data); err != nil {
		return domain.Persistence("writing stats", err)
	}
	return nil
}

func decodeGame(raw json.RawMessage) ([]domain.ScoreEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []domain.ScoreEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// gameEntries decodes a game for reading. Damaged games count as empty.
func (s *Store) gameEntries(doc document, game string) []domain.ScoreEntry {
	entries, err := decodeGame(doc[game])
	if err != nil {
		s.logger.Warn("skipping unreadable game scores", "game", game, "error", err)
		return nil
	}
	return entries
}

// SubmitScore upserts the entry of username in game. The stored document is
// left untouched when the write fails.
func (s *Store) SubmitScore(ctx context.Context, game, username string, score, playTime int64) (domain.SubmitResult, error) {
	game = strings.TrimSpace(game)
	username = strings.TrimSpace(username)
	if playTime < 0 {
		playTime = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	entries, err := decodeGame(doc[game])
	if err != nil {
		return domain.SubmitResult{}, domain.Persistence(fmt.Sprintf("decoding scores of %s", game), err)
	}

	now := s.now().UTC()
	newHighscore := false
	idx := -1
	for i := range entries {
		if domain.SameName(entries[i].Username, username) {
			idx = i
			break
		}
	}

	if idx >= 0 {
		e := &entries[idx]
		e.GamesPlayed++
		e.PlayTime += playTime
		e.LastScore = score
		e.LastPlayed = now
		if score > e.Highscore {
			e.Highscore = score
			e.HighscoreAt = now
			newHighscore = true
		}
	} else {
		entries = append(entries, domain.ScoreEntry{
			Username:    username,
			Highscore:   score,
			LastScore:   score,
			PlayTime:    playTime,
			GamesPlayed: 1,
			FirstPlayed: now,
			LastPlayed:  now,
			HighscoreAt: now,
		})
		idx = len(entries) - 1
		newHighscore = true
	}
	stored := entries[idx]

	raw, err := json.Marshal(entries)
	if err != nil {
		return domain.SubmitResult{}, domain.Persistence("encoding game scores", err)
	}
	doc[game] = raw

	if err := s.save(ctx, doc); err != nil {
		return domain.SubmitResult{}, err
	}

	result := domain.SubmitResult{Entry: stored, NewHighscore: newHighscore}
	for _, r := range ranking.RankGame(entries) {
		if domain.SameName(r.Username, stored.Username) {
			result.Rank = r.Rank
			break
		}
	}

	s.logger.Debug("score submitted",
		"game", game,
		"username", stored.Username,
		"score", score,
		"highscore", stored.Highscore,
	)

	return result, nil
}

// GameScores returns every entry of game, best first. Unknown games yield an
// empty list.
func (s *Store) GameScores(ctx context.Context, game string) ([]domain.RankedEntry, error) {
	s.mu.Lock()
	doc, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return ranking.RankGame(s.gameEntries(doc, strings.TrimSpace(game))), nil
}

// TopN returns at most n entries of game, best first
func (s *Store) TopN(ctx context.Context, game string, n int) ([]domain.RankedEntry, error) {
	all, err := s.GameScores(ctx, game)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// AllScores returns the entries of every readable game
func (s *Store) AllScores(ctx context.Context) (map[string][]domain.ScoreEntry, error) {
	s.mu.Lock()
	doc, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]domain.ScoreEntry, len(doc))
	for game := range doc {
		if entries := s.gameEntries(doc, game); len(entries) > 0 {
			out[game] = entries
		}
	}
	return out, nil
}

// Games returns the sorted names of games holding at least one entry
func (s *Store) Games(ctx context.Context) ([]string, error) {
	all, err := s.AllScores(ctx)
	if err != nil {
		return nil, err
	}
	games := make([]string, 0, len(all))
	for g := range all {
		games = append(games, g)
	}
	sort.Strings(games)
	return games, nil
}

// HasEntries reports whether any game holds an entry for username
func (s *Store) HasEntries(ctx context.Context, username string) (bool, error) {
	all, err := s.AllScores(ctx)
	if err != nil {
		return false, err
	}
	for _, entries := range all {
		for _, e := range entries {
			if domain.SameName(e.Username, username) {
				return true, nil
			}
		}
	}
	return false, nil
}

// RenameUser rewrites the username of every entry owned by oldName. It fails
// with ErrNameTaken when newName already owns entries, unless the two names
// only differ in case. It returns the number of entries rewritten.
func (s *Store) RenameUser(ctx context.Context, oldName, newName string) (int, error) {
	newName = strings.TrimSpace(newName)
	caseOnly := domain.SameName(oldName, newName)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for game, raw := range doc {
		entries, err := decodeGame(raw)
		if err != nil {
			s.logger.Warn("rename skipped unreadable game", "game", game, "error", err)
			continue
		}

		touched := false
		for i := range entries {
			switch {
			case domain.SameName(entries[i].Username, oldName):
				entries[i].Username = newName
				touched = true
				changed++
			case !caseOnly && domain.SameName(entries[i].Username, newName):
				return 0, fmt.Errorf("renaming scores in %s: %w", game, domain.ErrNameTaken)
			}
		}
		if !touched {
			continue
		}

		encoded, err := json.Marshal(entries)
		if err != nil {
			return 0, domain.Persistence("encoding game scores", err)
		}
		doc[game] = encoded
	}

	if changed == 0 {
		return 0, nil
	}
	if err := s.save(ctx, doc); err != nil {
		return 0, err
	}

	s.logger.Info("renamed score entries", "from", oldName, "to", newName, "entries", changed)
	return changed, nil
}
