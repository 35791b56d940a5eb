package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// FileLock is an advisory lock on a local file. It only excludes processes
// sharing the same filesystem.
type FileLock struct {
	path   string
	logger zerolog.Logger
}

func NewFileLock(path string, logger zerolog.Logger) *FileLock {
	return &FileLock{
		path:   path,
		logger: logger.With().Str("component", "file_lock").Str("path", path).Logger(),
	}
}

func (l *FileLock) TryLock(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("create lock directory: %w", err)
		}
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		if err := fl.Unlock(); err != nil {
			l.logger.Warn().Err(err).Msg("failed to release lock")
		}
	}
	return unlock, true, nil
}
