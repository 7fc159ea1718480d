// Package games serves the arcade's game catalog
package games

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/storage"
)

// builtin is used while no "games" document has been stored
var builtin = []domain.Game{
	{ID: "bubble-shooter", Name: "Bubble Shooter", Door: 1, Active: true},
	{ID: "flappy-santa", Name: "Flappy Santa", Door: 3, Active: true},
	{ID: "gift-catcher", Name: "Gift Catcher", Door: 5, Active: true},
	{ID: "puzzle", Name: "Christmas Puzzle", Door: 8, Active: true},
	{ID: "word-search", Name: "Word Search", Door: 11, Active: true},
	{ID: "snowball-fight", Name: "Snowball Fight", Door: 14, Active: true},
	{ID: "memory", Name: "Memory", Door: 17, Active: true},
	{ID: "sleigh-run", Name: "Sleigh Run", Door: 20, Active: true},
}

// DefaultGames returns a copy of the built-in catalog
func DefaultGames() []domain.Game {
	out := make([]domain.Game, len(builtin))
	copy(out, builtin)
	return out
}

// Catalog reads the game list from the document store
type Catalog struct {
	docs   storage.Store
	logger *slog.Logger
}

// NewCatalog creates a new catalog
func NewCatalog(docs storage.Store, logger *slog.Logger) *Catalog {
	return &Catalog{
		docs:   docs,
		logger: logger,
	}
}

func (c *Catalog) load(ctx context.Context) ([]domain.Game, error) {
	data, err := c.docs.Read(ctx, storage.KeyGames)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultGames(), nil
	}
	if err != nil {
		return nil, domain.Persistence("reading games", err)
	}

	var list []domain.Game
	if err := json.Unmarshal(data, &list); err != nil {
		c.logger.Warn("games document unreadable, using built-in catalog", "error", err)
		return DefaultGames(), nil
	}
	return list, nil
}

// List returns the catalog, optionally restricted to active games
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]domain.Game, error) {
	list, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return list, nil
	}

	active := make([]domain.Game, 0, len(list))
	for _, g := range list {
		if g.Active {
			active = append(active, g)
		}
	}
	return active, nil
}

// Active returns the IDs of the active games
func (c *Catalog) Active(ctx context.Context) ([]string, error) {
	list, err := c.List(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, g := range list {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// Get looks up a game by ID
func (c *Catalog) Get(ctx context.Context, id string) (domain.Game, error) {
	list, err := c.load(ctx)
	if err != nil {
		return domain.Game{}, err
	}
	id = strings.TrimSpace(id)
	for _, g := range list {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.Game{}, domain.ErrGameNotFound
}

// Save replaces the stored catalog
func (c *Catalog) Save(ctx context.Context, list []domain.Game) error {
	data, err := json.Marshal(list)
	if err != nil {
		return domain.Persistence("encoding games", err)
	}
	if err := c.docs.Write(ctx, storage.KeyGames, data); err != nil {
		return domain.Persistence("writing games", err)
	}
	return nil
}
