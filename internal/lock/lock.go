package lock

import (
	"strings"
	"sync"
)

// Registry provides per-key reader/writer locks. Locks are created on first
// use and reclaimed once the last holder releases them, so the table never
// grows beyond the set of keys currently under contention.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	rw   sync.RWMutex
	refs int
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*entry),
	}
}

// Key builds a lock key from its parts. Parts are joined with NUL so that
// ("ab","c") and ("a","bc") never collide; S3 bucket names and keys cannot
// contain NUL.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (r *Registry) acquire(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.locks[key]
	if !ok {
		e = &entry{}
		r.locks[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.locks, key)
	}
}

// Lock acquires the write lock for key and returns the unlock function.
func (r *Registry) Lock(key string) func() {
	e := r.acquire(key)
	e.rw.Lock()
	return func() {
		e.rw.Unlock()
		r.release(key)
	}
}

// RLock acquires the read lock for key and returns the unlock function.
func (r *Registry) RLock(key string) func() {
	e := r.acquire(key)
	e.rw.RLock()
	return func() {
		e.rw.RUnlock()
		r.release(key)
	}
}

// RLockThenLock read-locks src and write-locks dst, ordering acquisition
// lexicographically. Used by copy operations which read the source while
// writing the destination.
func (r *Registry) RLockThenLock(src, dst string) func() {
	if src == dst {
		return r.Lock(dst)
	}
	if src < dst {
		unlockSrc := r.RLock(src)
		unlockDst := r.Lock(dst)
		return func() {
			unlockDst()
			unlockSrc()
		}
	}
	unlockDst := r.Lock(dst)
	unlockSrc := r.RLock(src)
	return func() {
		unlockSrc()
		unlockDst()
	}
}

// Size returns the number of live lock entries. Used by tests to verify
// idle locks are reclaimed.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
