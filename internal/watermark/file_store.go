package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"gncimport/internal/fileutil"
	"gncimport/internal/logging"
)

const claimRetryDelay = 25 * time.Millisecond

// FileStore keeps one JSON document per stream at <dir>/<stream>-state.json,
// shaped {"<tag>": <epochMillis>}.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logging.NewComponentLogger(logger, "watermark")}
}

// Path returns the state file for stream.
func (s *FileStore) Path(stream string) string {
	return filepath.Join(s.dir, stream+"-state.json")
}

// Load reads the stream document. Missing or unparsable files yield an empty
// state; the latter is logged so an operator can inspect it.
func (s *FileStore) Load(ctx context.Context, stream string) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(stream)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(s.logger, "watermark unreadable; starting empty", "watermark_unreadable",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on state_dir"),
				logging.String(logging.FieldImpact, "stream may reprocess files already published"),
			)
		}
		return State{}, nil
	}
	state, err := decodeState(data)
	if err != nil {
		logging.WarnWithContext(s.logger, "watermark corrupt; starting empty", "watermark_corrupt",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or delete the state file"),
			logging.String(logging.FieldImpact, "stream may reprocess files already published"),
		)
		return State{}, nil
	}
	return state, nil
}

// Save replaces the stream document atomically.
func (s *FileStore) Save(ctx context.Context, stream string, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.Path(stream), data, 0o644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

// Claim reloads the document under an exclusive file lock, and advances tag
// to at when the recorded instant is older.
func (s *FileStore) Claim(ctx context.Context, stream, tag string, at time.Time) (bool, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, fmt.Errorf("ensure state dir: %w", err)
	}
	lock := flock.New(s.Path(stream) + ".lock")
	locked, err := lock.TryLockContext(ctx, claimRetryDelay)
	if err != nil {
		return false, fmt.Errorf("lock watermark: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("lock watermark: %s not acquired", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	state, err := s.Load(ctx, stream)
	if err != nil {
		return false, err
	}
	if prev, ok := state[tag]; ok && !prev.Before(at) {
		return false, nil
	}
	state[tag] = at
	if err := s.Save(ctx, stream, state); err != nil {
		return false, err
	}
	return true, nil
}

// Close is a no-op; the file store holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func encodeState(state State) ([]byte, error) {
	raw := make(map[string]int64, len(state))
	for tag, t := range state {
		raw[tag] = t.UnixMilli()
	}
	return json.Marshal(raw)
}

// decodeState accepts the flat tag map and the older nested layouts
// ({"bands": {...}}, {"subproducts": {...}}) whose inner maps are flattened.
func decodeState(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	state := State{}
	for key, value := range raw {
		var ms json.Number
		if err := json.Unmarshal(value, &ms); err == nil {
			if n, err := ms.Int64(); err == nil {
				state[key] = fromMillis(n)
				continue
			}
			if f, err := ms.Float64(); err == nil {
				state[key] = fromMillis(int64(f))
				continue
			}
		}
		var nested map[string]json.Number
		if err := json.Unmarshal(value, &nested); err != nil {
			continue
		}
		for tag, n := range nested {
			if v, err := n.Int64(); err == nil {
				state[tag] = fromMillis(v)
			} else if f, err := n.Float64(); err == nil {
				state[tag] = fromMillis(int64(f))
			}
		}
	}
	return state, nil
}
