// Package storage provides the document backends behind the score and user
// stores. A document is an opaque JSON blob addressed by a short key; every
// mutation rewrites the whole document.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/advent-arcade/internal/config"
)

// Well-known document keys
const (
	KeyStats = "stats"
	KeyUsers = "users"
	KeyGames = "games"
)

// ErrNotFound is returned by Read when no document is stored under the key
var ErrNotFound = errors.New("document not found")

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Store reads and writes whole documents
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Backend is a Store holding external resources
type Backend interface {
	Store
	Name() string
	Close() error
}

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid document key %q", key)
	}
	return nil
}

// Open creates the backend selected by sc
func Open(ctx context.Context, sc config.StorageConfig, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch sc.Backend {
	case config.BackendFile:
		return NewFileStore(sc.DataDir)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendRedis:
		return NewRedisStore(ctx, &cfg.Redis, logger)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, &cfg.Postgres, logger)
	case config.BackendS3:
		return NewS3Store(ctx, &cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}
