package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"podingest/internal/config"
)

// RunLock guards against two ingestion runs operating on the same store
// concurrently. Concurrent runs would race on status transitions and GPU
// model execution, so only one run is allowed per store directory at a time.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock attempts to take the run lock for cfg's store directory. It
// returns an error if another run already holds it.
func AcquireRunLock(cfg *config.Config) (*RunLock, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	path := filepath.Join(cfg.StoreDir, "run.lock")
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another ingestion run is already in progress for this store")
	}
	return &RunLock{lock: lock}, nil
}

// Release unlocks the run lock. Safe to call on a nil *RunLock.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
