package source

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// ProcessLock is the whole-process advisory lock spec §5 requires over
// the trust store and cache directory, "so that concurrent engine
// invocations in the same working directory do not corrupt them."
// Grounded on the pack's `gofrs/flock` manifests (compozy-compozy,
// githubnext-gh-aw) — an OS-level file lock rather than a purely
// in-process mutex, since the invocations it guards against are separate
// processes.
type ProcessLock struct {
	fl *flock.Flock
}

// NewProcessLock returns a lock backed by a lock file at path (typically
// alongside the cache directory or trust store).
func NewProcessLock(path string) *ProcessLock {
	return &ProcessLock{fl: flock.New(path)}
}

// Acquire blocks (honoring ctx) until the lock is held, then returns a
// release function.
func (l *ProcessLock) Acquire(ctx context.Context) (func(), error) {
	locked, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ctx.Err()
	}
	return func() { _ = l.fl.Unlock() }, nil
}
