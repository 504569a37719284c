package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "bucket", Key("bucket"))
	assert.Equal(t, "bucket\x00key", Key("bucket", "key"))
	// Keys containing the separator of a naive join must not collide.
	assert.NotEqual(t, Key("a\x00b"), Key("a", "b"))
}

func TestLockExcludesWriters(t *testing.T) {
	r := NewRegistry()

	unlock := r.Lock(Key("b", "k"))

	acquired := make(chan struct{})
	go func() {
		inner := r.Lock(Key("b", "k"))
		close(acquired)
		inner()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the lock while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}

func TestReadersShareLock(t *testing.T) {
	r := NewRegistry()

	unlock1 := r.RLock(Key("b", "k"))
	unlock2 := r.RLock(Key("b", "k"))
	unlock1()
	unlock2()

	assert.Equal(t, 0, r.Size())
}

func TestIdleLocksReclaimed(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := r.Lock(Key("bucket", string(rune('a'+n%10))))
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Size())
}

func TestRLockThenLockSameKey(t *testing.T) {
	r := NewRegistry()

	// A self-copy degenerates to a single write lock; it must not deadlock.
	done := make(chan struct{})
	go func() {
		unlock := r.RLockThenLock(Key("b", "k"), Key("b", "k"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RLockThenLock deadlocked on identical keys")
	}
	require.Equal(t, 0, r.Size())
}

func TestRLockThenLockDistinctKeys(t *testing.T) {
	r := NewRegistry()

	unlock := r.RLockThenLock(Key("b", "src"), Key("b", "dst"))

	// The source stays readable while the copy holds it.
	readable := make(chan struct{})
	go func() {
		inner := r.RLock(Key("b", "src"))
		close(readable)
		inner()
	}()
	select {
	case <-readable:
	case <-time.After(time.Second):
		t.Fatal("source read lock blocked during copy")
	}

	unlock()
	assert.Equal(t, 0, r.Size())
}
