// Package users persists player accounts in the "users" document, keyed by
// generated user ID.
package users

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

	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ScoreRenamer moves score entries from one display name to another
type ScoreRenamer interface {
	RenameUser(ctx context.Context, oldName, newName string) (int, error)
}

// Store provides account operations on top of a document store
type Store struct {
	docs     storage.Store
	renamer  ScoreRenamer
	cost     int
	calendar *config.CalendarConfig
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes read-modify-write cycles on the users document
	mu sync.Mutex
}

// NewStore creates a new user store. renamer may be nil when display name
// changes need not reach any score data.
func NewStore(
	docs storage.Store,
	renamer ScoreRenamer,
	authCfg *config.AuthConfig,
	calendar *config.CalendarConfig,
	logger *slog.Logger,
) *Store {
	cost := authCfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		docs:     docs,
		renamer:  renamer,
		cost:     cost,
		calendar: calendar,
		loc:      calendar.Location(),
		logger:   logger,
		now:      time.Now,
	}
}

type document map[string]domain.UserProfile

func (s *Store) load(ctx context.Context) (document, error) {
	data, err := s.docs.Read(ctx, storage.KeyUsers)
	if errors.Is(err, storage.ErrNotFound) {
		return document{}, nil
	}
	if err != nil {
		return nil, domain.Persistence("reading users", err)
	}

	doc := document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.Persistence("decoding users", err)
	}
	return doc, nil
}

func (s *Store) save(ctx context.Context, doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.Persistence("encoding users", err)
	}
	if err := s.docs.Write(ctx, storage.KeyUsers, data); err != nil {
		return domain.Persistence("writing users", err)
	}
	return nil
}

// byName finds the profile whose display name matches case-insensitively
func (doc document) byName(name string) (domain.UserProfile, bool) {
	key := domain.FoldName(name)
	for _, p := range doc {
		if domain.FoldName(p.DisplayName) == key {
			return p, true
		}
	}
	return domain.UserProfile{}, false
}

// nameTaken reports whether name belongs to anyone but exceptID
func (doc document) nameTaken(name, exceptID string) bool {
	p, ok := doc.byName(name)
	return ok && p.UserID != exceptID
}

func (s *Store) day(t time.Time) time.Time {
	return t.In(s.loc)
}

// Register creates an account with zeroed stats and the default avatar
func (s *Store) Register(ctx context.Context, displayName, password string) (domain.UserProfile, error) {
	displayName = strings.TrimSpace(displayName)
	if err := ValidateDisplayName(displayName); err != nil {
		return domain.UserProfile{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return domain.UserProfile{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if doc.nameTaken(displayName, "") {
		return domain.UserProfile{}, domain.ErrNameTaken
	}

	now := s.now().UTC()
	profile := domain.UserProfile{
		UserID:          uuid.NewString(),
		DisplayName:     displayName,
		PasswordHash:    string(hash),
		Stats:           domain.UserStats{Games: map[string]domain.GameStats{}},
		Avatar:          domain.Avatar{Style: DefaultAvatarStyle},
		Achievements:    []string{},
		UnlockedItems:   []string{},
		DoorsOpened:     []int{},
		UsernameHistory: []domain.UsernameChange{},
		CreatedAt:       now,
		LastActive:      now,
	}
	doc[profile.UserID] = profile

	if err := s.save(ctx, doc); err != nil {
		return domain.UserProfile{}, err
	}

	s.logger.Info("user registered", "user_id", profile.UserID, "display_name", displayName)
	return profile.Public(), nil
}

// Login verifies the credentials and records the visit. Unknown names and
// wrong passwords both fail with ErrAuth.
func (s *Store) Login(ctx context.Context, displayName, password string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc.byName(displayName)
	if !ok {
		return domain.UserProfile{}, domain.ErrAuth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return domain.UserProfile{}, domain.ErrAuth
	}

	now := s.now().UTC()
	profile.LastActive = now
	recordLogin(&profile.Stats, s.day(now))
	refresh(&profile, s.calendar.Doors)
	doc[profile.UserID] = profile

	if err := s.save(ctx, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return profile.Public(), nil
}

// Get returns the profile of userID
func (s *Store) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	return profile.Public(), nil
}

// FindByName returns the profile with the given display name, ignoring case
func (s *Store) FindByName(ctx context.Context, displayName string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc.byName(displayName)
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	return profile.Public(), nil
}

// UpdateDisplayName renames a user and moves their score entries along. The
// score rename is undone when the profile cannot be written.
func (s *Store) UpdateDisplayName(ctx context.Context, userID, newName string) (domain.UserProfile, error) {
	newName = strings.TrimSpace(newName)
	if err := ValidateDisplayName(newName); err != nil {
		return domain.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	oldName := profile.DisplayName
	if oldName == newName {
		return profile.Public(), nil
	}
	if doc.nameTaken(newName, userID) {
		return domain.UserProfile{}, domain.ErrNameTaken
	}

	moved := 0
	if s.renamer != nil {
		moved, err = s.renamer.RenameUser(ctx, oldName, newName)
		if err != nil {
			return domain.UserProfile{}, fmt.Errorf("renaming score entries: %w", err)
		}
	}

	now := s.now().UTC()
	profile.DisplayName = newName
	profile.UsernameHistory = append(profile.UsernameHistory, domain.UsernameChange{
		From:      oldName,
		To:        newName,
		ChangedAt: now,
	})
	profile.UsernameChanges++
	profile.LastActive = now
	doc[userID] = profile

	if err := s.save(ctx, doc); err != nil {
		if moved > 0 {
			if _, rerr := s.renamer.RenameUser(ctx, newName, oldName); rerr != nil {
				s.logger.Error("failed to revert score rename",
					"user_id", userID,
					"from", newName,
					"to", oldName,
					"error", rerr,
				)
			}
		}
		return domain.UserProfile{}, err
	}

	s.logger.Info("display name changed",
		"user_id", userID,
		"from", oldName,
		"to", newName,
		"score_entries", moved,
	)
	return profile.Public(), nil
}

// UpdatePassword replaces the password hash once currentPassword verifies
func (s *Store) UpdatePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	profile, ok := doc[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(currentPassword)); err != nil {
		return domain.ErrAuth
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	profile.PasswordHash = string(hash)
	profile.LastActive = s.now().UTC()
	doc[userID] = profile

	return s.save(ctx, doc)
}

// UpdateAvatar replaces the avatar selection of userID
func (s *Store) UpdateAvatar(ctx context.Context, userID string, avatar domain.Avatar) (domain.UserProfile, error) {
	if err := ValidateAvatar(avatar); err != nil {
		return domain.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}

	profile.Avatar = avatar
	profile.LastActive = s.now().UTC()
	doc[userID] = profile

	if err := s.save(ctx, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return profile.Public(), nil
}

// Avatars returns the avatar of every requested name that belongs to a
// registered user, keyed by the name as requested. With no names it returns
// every user's avatar keyed by display name.
func (s *Store) Avatars(ctx context.Context, names []string) (map[string]domain.Avatar, error) {
	s.mu.Lock()
	doc, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.Avatar, len(doc))
	display := make(map[string]string, len(doc))
	for _, p := range doc {
		key := domain.FoldName(p.DisplayName)
		byName[key] = p.Avatar
		display[key] = p.DisplayName
	}

	out := make(map[string]domain.Avatar)
	if len(names) == 0 {
		for key, a := range byName {
			out[display[key]] = a
		}
		return out, nil
	}
	for _, name := range names {
		if a, ok := byName[domain.FoldName(name)]; ok {
			out[name] = a
		}
	}
	return out, nil
}

// RecordGame folds a finished game into the stats of the player registered
// under displayName. It returns ErrUserNotFound for guests.
func (s *Store) RecordGame(ctx context.Context, displayName string, result domain.GameResult, placements domain.Placements) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc.byName(displayName)
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}

	if result.At.IsZero() {
		result.At = s.now()
	}
	applyGame(&profile.Stats, result, placements, s.loc)
	refresh(&profile, s.calendar.Doors)
	profile.LastActive = result.At.UTC()
	doc[profile.UserID] = profile

	if err := s.save(ctx, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return profile.Public(), nil
}

// OpenDoor opens advent calendar door day for userID. Door d opens once the
// calendar month has reached day d in the configured timezone. Opening a
// door twice is a no-op.
func (s *Store) OpenDoor(ctx context.Context, userID string, day int) (domain.UserProfile, error) {
	if day < 1 || day > s.calendar.Doors {
		return domain.UserProfile{}, domain.ErrInvalidDoor
	}
	today := s.day(s.now())
	if int(today.Month()) != s.calendar.Month || today.Day() < day {
		return domain.UserProfile{}, domain.ErrDoorLocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, ok := doc[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	if contains(profile.DoorsOpened, day) {
		return profile.Public(), nil
	}

	profile.DoorsOpened = append(profile.DoorsOpened, day)
	sort.Ints(profile.DoorsOpened)
	profile.Stats.DoorsOpened = len(profile.DoorsOpened)
	profile.LastActive = today.UTC()
	refresh(&profile, s.calendar.Doors)
	doc[userID] = profile

	if err := s.save(ctx, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return profile.Public(), nil
}
