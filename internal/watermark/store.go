package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gncimport/internal/config"
)

// TimeTag is the tag used by streams that keep a single cursor.
const TimeTag = "time"

// State maps sub-stream tags to the last claimed instant.
type State map[string]time.Time

// Clone returns an independent copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Store loads and saves stream state. Load never fails on missing or corrupt
// data; it reports an empty state instead.
type Store interface {
	Load(ctx context.Context, stream string) (State, error)
	Save(ctx context.Context, stream string, state State) error
}

// Claimer advances a single tag only if the recorded instant is older than
// at. It reports false when another worker already advanced past it.
type Claimer interface {
	Claim(ctx context.Context, stream, tag string, at time.Time) (bool, error)
}

// Backend is a Store that also supports atomic claims and owns resources.
type Backend interface {
	Store
	Claimer
	Close() error
}

// Open returns the backend selected by cfg.Watermark.Backend.
func Open(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Watermark.Backend {
	case config.BackendSQLite:
		store, err := OpenSQLite(cfg.Watermark.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendFile, "":
		return NewFileStore(cfg.Paths.StateDir, logger), nil
	default:
		return nil, fmt.Errorf("watermark backend %q not supported", cfg.Watermark.Backend)
	}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
