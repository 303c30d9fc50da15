package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Resource is the system-wide "cracking host is busy" lock. At most one
// holder exists at a time. A resource built with NewHostResource also
// holds an advisory lock on a file, so that the daemon and "audit run"
// exclude each other across processes.
type Resource struct {
	slot     chan struct{}
	lockPath string

	mu     sync.Mutex
	holder string
	lock   *os.File
}

// NewResource returns a free resource local to this process.
func NewResource() *Resource {
	return &Resource{slot: make(chan struct{}, 1)}
}

// NewHostResource returns a free resource that also locks lockPath while
// held.
func NewHostResource(lockPath string) *Resource {
	r := NewResource()
	r.lockPath = lockPath
	return r
}

// TryAcquire takes the resource for holder without blocking. It returns a
// ResourceBusyError naming the current holder when the resource is taken,
// in this process or another one.
func (r *Resource) TryAcquire(holder string) error {
	select {
	case r.slot <- struct{}{}:
	default:
		return &domain.ResourceBusyError{ActiveAuditID: r.Holder()}
	}
	if r.lockPath != "" {
		f, owner, err := lockFile(r.lockPath, holder)
		if err != nil {
			<-r.slot
			if errors.Is(err, errLocked) {
				return &domain.ResourceBusyError{ActiveAuditID: owner}
			}
			return fmt.Errorf("job: locking %s: %w", r.lockPath, err)
		}
		r.mu.Lock()
		r.lock = f
		r.mu.Unlock()
	}
	r.setHolder(holder)
	return nil
}

// Acquire blocks until the resource is free or ctx is done. Shutdown uses
// it to wait for the active audit of this process; the host lock is not
// taken.
func (r *Resource) Acquire(ctx context.Context, holder string) error {
	select {
	case r.slot <- struct{}{}:
		r.setHolder(holder)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the resource. Releasing a free resource is a no-op.
func (r *Resource) Release() {
	r.mu.Lock()
	r.holder = ""
	f := r.lock
	r.lock = nil
	r.mu.Unlock()
	if f != nil {
		unlockFile(f)
	}
	select {
	case <-r.slot:
	default:
	}
}

// Busy reports whether the resource is held by this process.
func (r *Resource) Busy() bool { return len(r.slot) == 1 }

// Holder returns the ID of the current holder, or "".
func (r *Resource) Holder() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holder
}

func (r *Resource) setHolder(h string) {
	r.mu.Lock()
	r.holder = h
	r.mu.Unlock()
}
